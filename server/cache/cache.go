// Package cache keeps a bounded, time-expiring window of recent chat
// messages. It backs history replay on group join and the relay statistics.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/lorikeet-im/lorikeet/proto"
)

// DefaultTTL is applied when Put is given a non-positive TTL.
const DefaultTTL = 3600 * time.Second

// DefaultCapacity matches the relay's construction default.
const DefaultCapacity = 200

// Stats holds monotonically increasing counters since construction.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

type entry struct {
	message proto.Packet
	created time.Time
	ttl     time.Duration
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.created) > e.ttl
}

// Key packs a message identity into one index key. Two messages of the same
// group within the same second share a key; the later Put wins.
func Key(groupID uint16, timestamp uint32) uint64 {
	return uint64(groupID)<<32 | uint64(timestamp)
}

// MessageCache is an LRU store of packets with per-entry TTL. Recency is a
// doubly-linked sequence (front = most recent) plus a key index, making Put
// and Get O(1). Expiry is lazy: entries are dropped only when touched by Get,
// skipped by GroupHistory, or swept by ClearExpired.
type MessageCache struct {
	lock     sync.Mutex
	capacity int
	seq      *list.List
	index    map[uint64]*list.Element
	clock    func() time.Time

	hits      uint64
	misses    uint64
	evictions uint64
}

func New(capacity int) *MessageCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MessageCache{
		capacity: capacity,
		seq:      list.New(),
		index:    make(map[uint64]*list.Element, capacity),
		clock:    time.Now,
	}
}

// Put inserts a snapshot of packet keyed by (GroupID, Timestamp), overwriting
// any colliding entry, and evicts the least recently used entry when the
// bound is exceeded.
func (c *MessageCache) Put(packet *proto.Packet, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	key := Key(packet.GroupID, packet.Timestamp)
	if elem, ok := c.index[key]; ok {
		c.seq.Remove(elem)
		delete(c.index, key)
	}

	c.index[key] = c.seq.PushFront(&entry{
		message: *packet,
		created: c.clock(),
		ttl:     ttl,
	})

	if c.seq.Len() > c.capacity {
		back := c.seq.Back()
		last := back.Value.(*entry)
		delete(c.index, Key(last.message.GroupID, last.message.Timestamp))
		c.seq.Remove(back)
		c.evictions++
	}
}

// Get looks up one message. A hit refreshes its recency; a located entry past
// its TTL is removed and counted as a miss.
func (c *MessageCache) Get(groupID uint16, timestamp uint32) (proto.Packet, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	elem, ok := c.index[Key(groupID, timestamp)]
	if !ok {
		c.misses++
		return proto.Packet{}, false
	}

	ent := elem.Value.(*entry)
	if ent.expired(c.clock()) {
		c.seq.Remove(elem)
		delete(c.index, Key(groupID, timestamp))
		c.misses++
		return proto.Packet{}, false
	}

	c.seq.MoveToFront(elem)
	c.hits++
	return ent.message, true
}

// GroupHistory returns up to limit non-expired messages of one group, most
// recent first. The scan is read-only and leaves recency order untouched.
func (c *MessageCache) GroupHistory(groupID uint16, limit int) []proto.Packet {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.clock()
	history := make([]proto.Packet, 0, limit)
	for elem := c.seq.Front(); elem != nil && len(history) < limit; elem = elem.Next() {
		ent := elem.Value.(*entry)
		if ent.message.GroupID == groupID && !ent.expired(now) {
			history = append(history, ent.message)
		}
	}
	return history
}

// ClearExpired sweeps every expired entry regardless of group.
func (c *MessageCache) ClearExpired() {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.clock()
	for elem := c.seq.Front(); elem != nil; {
		next := elem.Next()
		ent := elem.Value.(*entry)
		if ent.expired(now) {
			delete(c.index, Key(ent.message.GroupID, ent.message.Timestamp))
			c.seq.Remove(elem)
		}
		elem = next
	}
}

func (c *MessageCache) Stats() Stats {
	c.lock.Lock()
	defer c.lock.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Evictions: c.evictions}
}

// Len reports the number of entries currently held, expired or not.
func (c *MessageCache) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.seq.Len()
}
