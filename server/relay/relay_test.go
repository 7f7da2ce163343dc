package relay

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/lorikeet-im/lorikeet/proto"
	"github.com/lorikeet-im/lorikeet/server/sched"
)

func startTestRelay(t *testing.T, opts Options) *Relay {
	t.Helper()

	r := New(opts)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	served := make(chan error, 1)
	go func() { served <- r.Serve(listener) }()

	t.Cleanup(func() {
		r.Shutdown()
		select {
		case <-served:
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return after Shutdown")
		}
	})

	deadline := time.Now().Add(5 * time.Second)
	for r.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("Serve never registered the listener")
		}
		time.Sleep(time.Millisecond)
	}
	return r
}

// testClient drives the wire protocol over a real TCP connection.
type testClient struct {
	t    *testing.T
	conn net.Conn
}

func dialTestRelay(t *testing.T, r *Relay) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", r.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn}
}

func (c *testClient) send(packet *proto.Packet) {
	c.t.Helper()
	buf := make([]byte, proto.PacketSize)
	if err := packet.Marshal(buf); err != nil {
		c.t.Fatalf("Marshal failed: %v", err)
	}
	if _, err := c.conn.Write(buf); err != nil {
		c.t.Fatalf("Write failed: %v", err)
	}
}

func (c *testClient) recv() proto.Packet {
	c.t.Helper()
	buf := make([]byte, proto.PacketSize)
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		c.t.Fatalf("Read failed: %v", err)
	}
	var packet proto.Packet
	if _, err := packet.Unmarshal(buf); err != nil {
		c.t.Fatalf("Unmarshal failed: %v", err)
	}
	return packet
}

func (c *testClient) expectAck(text string) proto.Packet {
	c.t.Helper()
	packet := c.recv()
	if packet.Type != proto.MSG_ACK {
		c.t.Fatalf("Expected ACK, got type %d payload %q", packet.Type, packet.Text())
	}
	if text != "" && packet.Text() != text {
		c.t.Fatalf("ACK payload = %q, want %q", packet.Text(), text)
	}
	if packet.SenderID != proto.ServerID {
		c.t.Errorf("ACK sender = %d, want server (0)", packet.SenderID)
	}
	return packet
}

func (c *testClient) join(groupID uint16) {
	c.t.Helper()
	c.send(&proto.Packet{Type: proto.MSG_JOIN_GROUP, GroupID: groupID})
	c.expectAck(fmt.Sprintf("Joined group %d", groupID))
}

func TestCreateJoinTextScenario(t *testing.T) {
	r := startTestRelay(t, Options{})

	clientA := dialTestRelay(t, r)
	clientB := dialTestRelay(t, r)

	// A creates "Team"; the relay assigns the next ID after General.
	create := &proto.Packet{Type: proto.MSG_CREATE_GROUP}
	create.SetText("Team")
	clientA.send(create)
	ack := clientA.expectAck("Created group 'Team' with ID 2")
	if ack.GroupID != 2 {
		t.Fatalf("Created group ID = %d, want 2", ack.GroupID)
	}

	clientA.join(2)
	clientB.join(2) // no history yet, join ACK arrives directly

	text := &proto.Packet{Type: proto.MSG_TEXT, GroupID: 2}
	text.SetText("hello")
	clientA.send(text)

	// B gets the fan-out copy, stamped with A's identity.
	delivered := clientB.recv()
	if delivered.Type != proto.MSG_TEXT {
		t.Fatalf("Expected TEXT fan-out, got type %d", delivered.Type)
	}
	if delivered.Text() != "hello" || delivered.GroupID != 2 {
		t.Errorf("Fan-out = group %d payload %q", delivered.GroupID, delivered.Text())
	}
	if delivered.SenderID == proto.ServerID {
		t.Errorf("Fan-out sender = %d, want A's client ID", delivered.SenderID)
	}

	// A only gets the acknowledgement.
	clientA.expectAck("Message sent")

	if got := r.cache.Len(); got != 1 {
		t.Errorf("Cache holds %d entries, want 1", got)
	}
	if _, ok := r.cache.Get(2, delivered.Timestamp); !ok {
		t.Error("Cached message not retrievable by (group, timestamp)")
	}
}

func TestJoinNonexistentGroup(t *testing.T) {
	r := startTestRelay(t, Options{})
	client := dialTestRelay(t, r)

	client.send(&proto.Packet{Type: proto.MSG_JOIN_GROUP, GroupID: 99})
	packet := client.recv()
	if packet.Type != proto.MSG_ERROR {
		t.Fatalf("Expected ERROR, got type %d", packet.Type)
	}
	if packet.Text() != "Failed to join group 99" {
		t.Errorf("Error payload = %q", packet.Text())
	}

	// Failed join leaves membership untouched.
	if members := r.groups.Members(1); len(members) != 0 {
		t.Errorf("Membership changed by failed join: %v", members)
	}
}

func TestListGroups(t *testing.T) {
	r := startTestRelay(t, Options{})
	r.groups.Create("Team")

	client := dialTestRelay(t, r)
	client.send(&proto.Packet{Type: proto.MSG_LIST_GROUPS})
	ack := client.expectAck("")

	listing := ack.Text()
	for _, unit := range []string{"1:General;", "2:Team;"} {
		if !containsUnit(listing, unit) {
			t.Errorf("Listing %q missing %q", listing, unit)
		}
	}
}

func containsUnit(listing, unit string) bool {
	for i := 0; i+len(unit) <= len(listing); i++ {
		if listing[i:i+len(unit)] == unit {
			return true
		}
	}
	return false
}

func TestHistoryReplayOnJoin(t *testing.T) {
	r := startTestRelay(t, Options{HistoryLimit: 10})

	// Seed history with distinct second-granularity timestamps.
	for i, text := range []string{"first", "second", "third"} {
		p := &proto.Packet{
			Type:      proto.MSG_TEXT,
			GroupID:   1,
			Timestamp: uint32(1000 + i),
			SenderID:  42,
		}
		p.SetText(text)
		r.cache.Put(p, 0)
	}

	client := dialTestRelay(t, r)
	client.send(&proto.Packet{Type: proto.MSG_JOIN_GROUP, GroupID: 1})

	// Replay precedes the join ACK: most recent first, retyped HISTORY.
	want := []string{"third", "second", "first"}
	for _, text := range want {
		packet := client.recv()
		if packet.Type != proto.MSG_HISTORY {
			t.Fatalf("Expected HISTORY frame, got type %d payload %q", packet.Type, packet.Text())
		}
		if packet.Text() != text {
			t.Errorf("History payload = %q, want %q", packet.Text(), text)
		}
		if packet.SenderID != 42 {
			t.Errorf("History sender = %d, want original sender 42", packet.SenderID)
		}
	}
	client.expectAck("Joined group 1")
}

func TestHistoryReplayCapped(t *testing.T) {
	r := startTestRelay(t, Options{HistoryLimit: 2})

	for i := 0; i < 5; i++ {
		p := &proto.Packet{Type: proto.MSG_TEXT, GroupID: 1, Timestamp: uint32(2000 + i)}
		p.SetText("m")
		r.cache.Put(p, 0)
	}

	client := dialTestRelay(t, r)
	client.send(&proto.Packet{Type: proto.MSG_JOIN_GROUP, GroupID: 1})
	for i := 0; i < 2; i++ {
		if packet := client.recv(); packet.Type != proto.MSG_HISTORY {
			t.Fatalf("Expected HISTORY frame, got type %d", packet.Type)
		}
	}
	client.expectAck("Joined group 1")
}

func TestLeaveGroup(t *testing.T) {
	r := startTestRelay(t, Options{})
	client := dialTestRelay(t, r)

	client.join(1)
	client.send(&proto.Packet{Type: proto.MSG_LEAVE_GROUP})
	client.expectAck("Left group")

	if members := r.groups.Members(1); len(members) != 0 {
		t.Errorf("Members after leave = %v", members)
	}
}

func TestUnknownMessageType(t *testing.T) {
	r := startTestRelay(t, Options{})
	client := dialTestRelay(t, r)

	client.send(&proto.Packet{Type: 77})
	packet := client.recv()
	if packet.Type != proto.MSG_ERROR || packet.Text() != "Unknown message type" {
		t.Errorf("Got type %d payload %q", packet.Type, packet.Text())
	}

	// The connection survives a protocol-logic error.
	client.send(&proto.Packet{Type: proto.MSG_LIST_GROUPS})
	client.expectAck("")
}

func TestDisconnectTearsDownMembership(t *testing.T) {
	r := startTestRelay(t, Options{})
	client := dialTestRelay(t, r)
	client.join(1)

	client.conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(r.groups.Members(1)) == 0 && r.sessions.Count() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("Teardown incomplete: members=%v sessions=%d",
		r.groups.Members(1), r.sessions.Count())
}

func TestShutdownDrainsConnectionTasks(t *testing.T) {
	r := New(Options{Workers: 4, Policy: sched.RoundRobin})
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	served := make(chan error, 1)
	go func() { served <- r.Serve(listener) }()

	for i := 0; i < 2; i++ {
		conn, err := net.Dial("tcp", listener.Addr().String())
		if err != nil {
			t.Fatalf("Dial failed: %v", err)
		}
		defer conn.Close()
	}

	// Let both connection tasks start before requesting the drain.
	deadline := time.Now().Add(5 * time.Second)
	for r.sessions.Count() != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("Sessions = %d, want 2", r.sessions.Count())
		}
		time.Sleep(10 * time.Millisecond)
	}

	r.Shutdown()
	select {
	case <-served:
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}

	// Both tasks ran to completion, not merely started.
	if got := r.Stats().TasksProcessed; got != 2 {
		t.Errorf("TasksProcessed = %d, want 2", got)
	}
}

func TestWorkerCountCapsConcurrentClients(t *testing.T) {
	r := startTestRelay(t, Options{Workers: 1})

	first := dialTestRelay(t, r)
	first.join(1)

	// The single worker is pinned by the first connection; the second
	// connection is accepted but its task stays queued.
	second := dialTestRelay(t, r)
	second.send(&proto.Packet{Type: proto.MSG_LIST_GROUPS})

	second.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	buf := make([]byte, proto.PacketSize)
	if _, err := io.ReadFull(second.conn, buf); err == nil {
		t.Error("Second client should not be served while the worker is pinned")
	}

	// Freeing the worker lets the queued connection task run.
	first.conn.Close()
	second.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.ReadFull(second.conn, buf); err != nil {
		t.Errorf("Second client still unserved after worker freed: %v", err)
	}
}

// lateListener hands out one final connection from Close, modeling a client
// accepted in the same instant the listener shuts down.
type lateListener struct {
	conn   net.Conn
	accept chan net.Conn
	once   sync.Once
}

func (l *lateListener) Accept() (net.Conn, error) {
	conn, ok := <-l.accept
	if !ok {
		return nil, errors.New("listener closed")
	}
	return conn, nil
}

func (l *lateListener) Close() error {
	l.once.Do(func() {
		l.accept <- l.conn
		close(l.accept)
	})
	return nil
}

func (l *lateListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
}

func TestShutdownDisconnectsLateAccept(t *testing.T) {
	r := New(Options{Workers: 1})

	client, server := net.Pipe()
	defer client.Close()
	listener := &lateListener{conn: server, accept: make(chan net.Conn, 1)}

	served := make(chan error, 1)
	go func() { served <- r.Serve(listener) }()

	deadline := time.Now().Add(5 * time.Second)
	for r.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("Serve never registered the listener")
		}
		time.Sleep(time.Millisecond)
	}

	shutdownDone := make(chan struct{})
	go func() {
		r.Shutdown()
		close(shutdownDone)
	}()

	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return; the late connection kept a worker pinned")
	}
	select {
	case <-shutdownDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return")
	}

	// The late connection must have been closed on the shutdown path.
	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err := client.Read(make([]byte, 1))
	if err == nil {
		t.Error("Late connection still open after Shutdown")
	} else if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
		t.Error("Late connection was never closed")
	}
}

func TestServeAfterShutdown(t *testing.T) {
	r := New(Options{})
	r.Shutdown()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	if err := r.Serve(listener); err != ErrRelayClosed {
		t.Errorf("Serve on closed relay = %v, want ErrRelayClosed", err)
	}
	// Serve closes the listener it refused.
	if conn, err := net.Dial("tcp", listener.Addr().String()); err == nil {
		conn.Close()
		t.Error("Listener left open by refused Serve")
	}
}
