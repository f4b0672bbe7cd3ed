package signaling

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/techie-mohit/videoCalling/internal/callerr"
	"github.com/techie-mohit/videoCalling/internal/protocol"
)

// Registry maps connection handles to room memberships. Video and audio rooms
// are separate namespaces. Every method is safe for concurrent use and the
// capacity check and insert of Join happen under one lock.
type Registry struct {
	mu      sync.Mutex
	members map[memberKey]Membership
	// rooms holds member handles per namespaced room key in arrival order.
	rooms map[string][]string
}

func NewRegistry() *Registry {
	return &Registry{
		members: make(map[memberKey]Membership),
		rooms:   make(map[string][]string),
	}
}

// Join records handle as a member of roomID. It fails with callerr.ErrRoomFull
// when the room already holds two other members, in which case nothing is
// recorded. Joining the room the handle is already in returns the other
// members unchanged.
func (r *Registry) Join(handle string, p Participant, roomID string, mod protocol.Modality) (JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := memberKey{mod, handle}
	target := mod.RoomKey(roomID)

	if cur, ok := r.members[key]; ok && cur.RoomID == roomID {
		return JoinResult{Existing: r.lookupLocked(target, mod, handle)}, nil
	}

	if len(r.rooms[target]) >= maxRoomSize {
		return JoinResult{}, errors.Wrapf(callerr.ErrRoomFull, "%s room %s", mod, roomID)
	}

	var res JoinResult
	if prev, ok := r.members[key]; ok {
		r.removeLocked(prev)
		res.Previous = &prev
	}

	res.Existing = r.lookupLocked(target, mod, handle)
	m := Membership{Handle: handle, Participant: p, RoomID: roomID, Modality: mod}
	r.members[key] = m
	r.rooms[target] = append(r.rooms[target], handle)
	return res, nil
}

// Leave removes the membership of handle in mod. It reports false when there
// was nothing to remove.
func (r *Registry) Leave(handle string, mod protocol.Modality) (Membership, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[memberKey{mod, handle}]
	if !ok {
		return Membership{}, false
	}
	r.removeLocked(m)
	return m, true
}

// Disconnect removes every membership of handle and returns what was removed.
func (r *Registry) Disconnect(handle string) []Membership {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []Membership
	for _, mod := range protocol.Modalities {
		if m, ok := r.members[memberKey{mod, handle}]; ok {
			r.removeLocked(m)
			removed = append(removed, m)
		}
	}
	return removed
}

// Lookup returns the members of roomID in arrival order, excluding exclude.
func (r *Registry) Lookup(roomID string, mod protocol.Modality, exclude string) []Membership {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookupLocked(mod.RoomKey(roomID), mod, exclude)
}

func (r *Registry) MembershipOf(handle string, mod protocol.Modality) (Membership, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[memberKey{mod, handle}]
	return m, ok
}

func (r *Registry) Occupancy(roomID string, mod protocol.Modality) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[mod.RoomKey(roomID)])
}

// InUse reports whether roomID is occupied in any modality.
func (r *Registry) InUse(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, mod := range protocol.Modalities {
		if len(r.rooms[mod.RoomKey(roomID)]) > 0 {
			return true
		}
	}
	return false
}

// RoomCount returns the number of occupied rooms in mod.
func (r *Registry) RoomCount(mod protocol.Modality) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	prefix := mod.RoomKey("")
	n := 0
	for key := range r.rooms {
		if strings.HasPrefix(key, prefix) {
			n++
		}
	}
	return n
}

// Rooms lists every occupied room sorted by modality then room id.
func (r *Registry) Rooms() []RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool)
	var out []RoomInfo
	for _, m := range r.members {
		key := m.Modality.RoomKey(m.RoomID)
		if seen[key] {
			continue
		}
		seen[key] = true

		info := RoomInfo{RoomID: m.RoomID, Modality: m.Modality}
		for _, h := range r.rooms[key] {
			info.Members = append(info.Members, r.members[memberKey{m.Modality, h}].Peer())
		}
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Modality != out[j].Modality {
			return out[i].Modality > out[j].Modality
		}
		return out[i].RoomID < out[j].RoomID
	})
	return out
}

func (r *Registry) lookupLocked(key string, mod protocol.Modality, exclude string) []Membership {
	var out []Membership
	for _, h := range r.rooms[key] {
		if h == exclude {
			continue
		}
		out = append(out, r.members[memberKey{mod, h}])
	}
	return out
}

func (r *Registry) removeLocked(m Membership) {
	delete(r.members, memberKey{m.Modality, m.Handle})

	key := m.Modality.RoomKey(m.RoomID)
	handles := r.rooms[key]
	for i, h := range handles {
		if h == m.Handle {
			handles = append(handles[:i:i], handles[i+1:]...)
			break
		}
	}
	if len(handles) == 0 {
		delete(r.rooms, key)
	} else {
		r.rooms[key] = handles
	}
}
