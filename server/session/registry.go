// Package session associates connected client IDs with their outbound
// delivery channels, making group fan-out deliverable.
package session

import (
	"errors"
	"sync"

	"github.com/lorikeet-im/lorikeet/proto"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionBusy     = errors.New("session outbound buffer is full")
)

// DefaultBufferSize bounds the per-session outbound queue.
const DefaultBufferSize = 64

// Session is the live association between one client ID and its connection.
// Encoded frames pushed through Send are consumed by the connection's single
// writer goroutine via Outbound.
type Session struct {
	clientID uint32
	out      chan []byte
}

func (s *Session) ClientID() uint32 {
	return s.clientID
}

// Outbound is the frame stream to write to the client's socket. It is closed
// by Unregister; a closed stream ends the writer.
func (s *Session) Outbound() <-chan []byte {
	return s.out
}

// Registry holds every live session keyed by client ID.
type Registry struct {
	lock     sync.RWMutex
	sessions map[uint32]*Session
	bufSize  int
}

func NewRegistry(bufSize int) *Registry {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &Registry{
		sessions: make(map[uint32]*Session),
		bufSize:  bufSize,
	}
}

// Register creates the session for a newly accepted connection. A stale
// session under the same ID is replaced and its outbound stream closed.
func (r *Registry) Register(clientID uint32) *Session {
	s := &Session{
		clientID: clientID,
		out:      make(chan []byte, r.bufSize),
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	if old, ok := r.sessions[clientID]; ok {
		close(old.out)
	}
	r.sessions[clientID] = s
	return s
}

// Unregister tears the session down and closes its outbound stream.
// Idempotent.
func (r *Registry) Unregister(clientID uint32) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if s, ok := r.sessions[clientID]; ok {
		close(s.out)
		delete(r.sessions, clientID)
	}
}

// Send encodes packet and queues it for delivery to clientID. The push never
// blocks: a full outbound buffer drops the frame and reports ErrSessionBusy,
// keeping a slow receiver from stalling the sending connection.
func (r *Registry) Send(clientID uint32, packet *proto.Packet) error {
	buf := make([]byte, proto.PacketSize)
	if err := packet.Marshal(buf); err != nil {
		return err
	}

	r.lock.RLock()
	defer r.lock.RUnlock()

	s, ok := r.sessions[clientID]
	if !ok {
		return ErrSessionNotFound
	}
	select {
	case s.out <- buf:
		return nil
	default:
		return ErrSessionBusy
	}
}

// Count reports the number of live sessions.
func (r *Registry) Count() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.sessions)
}
