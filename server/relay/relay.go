// Package relay is the chat relay runtime: it accepts TCP connections,
// schedules one long-lived handling task per connection on the worker pool,
// and wires the group registry, message cache and session registry together.
package relay

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	ilog "github.com/lorikeet-im/lorikeet/log"
	"github.com/lorikeet-im/lorikeet/server/cache"
	"github.com/lorikeet-im/lorikeet/server/group"
	"github.com/lorikeet-im/lorikeet/server/sched"
	"github.com/lorikeet-im/lorikeet/server/session"
	guuid "github.com/satori/go.uuid"
)

// Options are the construction parameters of a Relay. Zero values fall back
// to the documented defaults.
type Options struct {
	Workers           uint
	Policy            sched.Policy
	CacheCapacity     uint
	CacheTTL          time.Duration
	SweepPeriod       time.Duration
	HistoryLimit      uint
	SessionBufferSize uint
}

var ErrRelayClosed = errors.New("Relay is closed.")

const (
	DefaultWorkers      = 4
	DefaultHistoryLimit = 10

	// connEstimate is the time estimate attached to every connection task.
	// Connections are open-ended, so the value is a fixed nominal cost; it
	// only matters under SJF relative to other estimates.
	connEstimate = 10
)

// Relay owns every runtime service. Constructed at startup, torn down by
// Shutdown; nothing here is ambient global state.
type Relay struct {
	NodeID guuid.UUID

	opts     Options
	cache    *cache.MessageCache
	groups   *group.Registry
	sessions *session.Registry
	pool     *sched.Pool

	nextClientID uint32
	started      time.Time
	log          *ilog.Logger

	lock     sync.Mutex
	listener net.Listener
	conns    map[uint32]net.Conn
	closing  bool

	sweepStop chan struct{}
}

// New assembles a relay and starts its worker pool.
func New(opts Options) *Relay {
	if opts.Workers == 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.HistoryLimit == 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = cache.DefaultTTL
	}

	r := &Relay{
		NodeID:    guuid.NewV4(),
		opts:      opts,
		cache:     cache.New(int(opts.CacheCapacity)),
		groups:    group.NewRegistry(),
		sessions:  session.NewRegistry(int(opts.SessionBufferSize)),
		pool:      sched.NewPool(int(opts.Workers), opts.Policy),
		started:   time.Now(),
		log:       ilog.NewLogger(),
		conns:     make(map[uint32]net.Conn),
		sweepStop: make(chan struct{}),
	}
	r.log.Fields["entity"] = "relay"

	if opts.SweepPeriod > 0 {
		go r.sweeper(opts.SweepPeriod)
	}
	return r
}

// sweeper drives the cache's explicit expiry sweep. The cache itself stays
// lazy; this is the external timer the sweep contract assumes.
func (r *Relay) sweeper(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.cache.ClearExpired()
			r.log.Debug("Expiry sweep done.")
		case <-r.sweepStop:
			return
		}
	}
}

// ListenAndServe binds endpoint and runs the accept loop until Shutdown.
func (r *Relay) ListenAndServe(endpoint string) error {
	listener, err := net.Listen("tcp", endpoint)
	if err != nil {
		return fmt.Errorf("Failed to listen on %v: %v", endpoint, err.Error())
	}
	return r.Serve(listener)
}

// Serve accepts connections, assigns each a sequential client ID, and hands
// the connection to the pool as one long-lived task. Returns once the
// listener is closed.
func (r *Relay) Serve(listener net.Listener) error {
	r.lock.Lock()
	if r.closing {
		r.lock.Unlock()
		listener.Close()
		return ErrRelayClosed
	}
	r.listener = listener
	r.lock.Unlock()

	r.log.Infof0("Relay serving at %v.", listener.Addr())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if r.isClosing() {
				return nil
			}
			r.log.Error("Accept failure: " + err.Error())
			continue
		}

		clientID := atomic.AddUint32(&r.nextClientID, 1)
		if !r.trackConn(clientID, conn) {
			conn.Close()
			return nil
		}

		err = r.pool.Enqueue(func() {
			r.handleConnection(conn, clientID)
		}, connEstimate, clientID)
		if err != nil {
			r.untrackConn(clientID)
			conn.Close()
			return nil
		}
	}
}

// Addr reports the bound listener address, nil before Serve.
func (r *Relay) Addr() net.Addr {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

func (r *Relay) isClosing() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.closing
}

// trackConn registers a live connection for shutdown disconnect. Refused once
// the relay is closing: a connection accepted in the window between Shutdown's
// disconnect snapshot and the listener close would otherwise keep a worker
// blocked on a socket nothing ever closes.
func (r *Relay) trackConn(clientID uint32, conn net.Conn) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.closing {
		return false
	}
	r.conns[clientID] = conn
	return true
}

func (r *Relay) untrackConn(clientID uint32) {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.conns, clientID)
}

// Shutdown stops accepting, disconnects every live client, and blocks until
// the pool has drained all connection tasks. In-flight client writes are not
// guaranteed to complete.
func (r *Relay) Shutdown() {
	r.lock.Lock()
	if r.closing {
		r.lock.Unlock()
		return
	}
	r.closing = true
	listener := r.listener
	conns := make([]net.Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.lock.Unlock()

	close(r.sweepStop)
	if listener != nil {
		listener.Close()
	}
	for _, conn := range conns {
		conn.Close()
	}

	r.pool.Shutdown()
	r.log.Info0("Relay drained.")
}

// StatsSnapshot aggregates the counters of every runtime service.
type StatsSnapshot struct {
	TasksProcessed uint64 `json:"tasks_processed"`
	AvgTaskMicros  uint64 `json:"avg_task_micros"`
	CacheHits      uint64 `json:"cache_hits"`
	CacheMisses    uint64 `json:"cache_misses"`
	CacheEvictions uint64 `json:"cache_evictions"`
	Sessions       int    `json:"sessions"`
	Groups         int    `json:"groups"`
}

func (r *Relay) Stats() StatsSnapshot {
	poolStats := r.pool.Stats()
	cacheStats := r.cache.Stats()
	return StatsSnapshot{
		TasksProcessed: poolStats.Processed,
		AvgTaskMicros:  poolStats.AvgTaskMicros,
		CacheHits:      cacheStats.Hits,
		CacheMisses:    cacheStats.Misses,
		CacheEvictions: cacheStats.Evictions,
		Sessions:       r.sessions.Count(),
		Groups:         r.groups.Count(),
	}
}

// PrintStats writes the shutdown statistics block to stdout.
func (r *Relay) PrintStats() {
	stats := r.Stats()
	fmt.Println("\n=== Server Statistics ===")
	fmt.Printf("Tasks processed: %v\n", stats.TasksProcessed)
	fmt.Printf("Avg task time: %v µs\n", stats.AvgTaskMicros)
	fmt.Printf("Cache hits: %v\n", stats.CacheHits)
	fmt.Printf("Cache misses: %v\n", stats.CacheMisses)
	fmt.Printf("Cache evictions: %v\n", stats.CacheEvictions)
}
