// Package group tracks chat groups and which clients belong to them.
package group

import (
	"errors"
	"sync"
)

// ErrGroupNotFound is returned by Join for a group ID nobody created.
var ErrGroupNotFound = errors.New("group not found")

// DefaultGroupName is pre-created as group 1 at registry construction.
const DefaultGroupName = "General"

// Info is one row of a group listing.
type Info struct {
	ID   uint16
	Name string
}

// Group owns one member set. Membership is mutated only through Registry
// operations; the per-group lock guards the set itself while the registry
// lock serializes cross-group moves.
type Group struct {
	id      uint16
	name    string
	lock    sync.Mutex
	members map[uint32]struct{}
}

func newGroup(id uint16, name string) *Group {
	return &Group{
		id:      id,
		name:    name,
		members: make(map[uint32]struct{}),
	}
}

func (g *Group) addMember(clientID uint32) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.members[clientID] = struct{}{}
}

func (g *Group) removeMember(clientID uint32) {
	g.lock.Lock()
	defer g.lock.Unlock()
	delete(g.members, clientID)
}

// Members returns a snapshot copy of the member set.
func (g *Group) Members() []uint32 {
	g.lock.Lock()
	defer g.lock.Unlock()
	members := make([]uint32, 0, len(g.members))
	for clientID := range g.members {
		members = append(members, clientID)
	}
	return members
}

func (g *Group) MemberCount() int {
	g.lock.Lock()
	defer g.lock.Unlock()
	return len(g.members)
}

// Registry maps group IDs to groups and, inversely, each client to its
// current group (a client is in at most one group at a time). The registry
// lock is held across the whole cross-group move in Join so no caller ever
// observes a client in two groups or in none mid-transition.
type Registry struct {
	lock         sync.Mutex
	groups       map[uint16]*Group
	clientGroups map[uint32]uint16
	nextGroupID  uint16
}

// NewRegistry creates a registry with the default group pre-created as ID 1.
func NewRegistry() *Registry {
	r := &Registry{
		groups:       make(map[uint16]*Group),
		clientGroups: make(map[uint32]uint16),
		nextGroupID:  1,
	}
	r.Create(DefaultGroupName)
	return r
}

// Create allocates the next sequential group ID for an empty group with the
// given name. Names need not be unique.
func (r *Registry) Create(name string) uint16 {
	r.lock.Lock()
	defer r.lock.Unlock()

	groupID := r.nextGroupID
	r.nextGroupID++
	r.groups[groupID] = newGroup(groupID, name)
	return groupID
}

// Join moves clientID into groupID, leaving its current group first if it
// has one. Fails without side effects when the target does not exist.
func (r *Registry) Join(clientID uint32, groupID uint16) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	target, ok := r.groups[groupID]
	if !ok {
		return ErrGroupNotFound
	}

	if currentID, ok := r.clientGroups[clientID]; ok {
		if current, ok := r.groups[currentID]; ok {
			current.removeMember(clientID)
		}
	}

	target.addMember(clientID)
	r.clientGroups[clientID] = groupID
	return nil
}

// Leave removes clientID from its current group, if any. Idempotent.
func (r *Registry) Leave(clientID uint32) {
	r.lock.Lock()
	defer r.lock.Unlock()

	currentID, ok := r.clientGroups[clientID]
	if !ok {
		return
	}
	if current, ok := r.groups[currentID]; ok {
		current.removeMember(clientID)
	}
	delete(r.clientGroups, clientID)
}

// List snapshots all groups in arbitrary order.
func (r *Registry) List() []Info {
	r.lock.Lock()
	defer r.lock.Unlock()

	infos := make([]Info, 0, len(r.groups))
	for _, g := range r.groups {
		infos = append(infos, Info{ID: g.id, Name: g.name})
	}
	return infos
}

// Members snapshots the member set of groupID; empty for unknown groups.
func (r *Registry) Members(groupID uint16) []uint32 {
	r.lock.Lock()
	g, ok := r.groups[groupID]
	r.lock.Unlock()

	if !ok {
		return nil
	}
	return g.Members()
}

// ClientGroup reports the group clientID currently belongs to, 0 for none.
func (r *Registry) ClientGroup(clientID uint32) uint16 {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.clientGroups[clientID]
}

// Count reports the number of existing groups.
func (r *Registry) Count() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.groups)
}
