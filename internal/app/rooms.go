package app

import (
	"github.com/voiceline/signaling/internal/domain"
)

// MaxRoomSize caps the number of participants in a single room.
const MaxRoomSize = 10

type JoinStatus int

const (
	Joined JoinStatus = iota
	AlreadyMember
	RoomFull
)

// Removal reports one room a disconnecting connection was removed from.
type Removal struct {
	Room  domain.RoomID
	Empty bool
}

// Rooms is the in-memory room registry: a membership set per room plus a
// connection→rooms reverse index kept in lockstep, so a disconnect costs
// O(memberships) instead of a scan over every room.
//
// A room exists iff its member set is non-empty; an emptied room is deleted
// in the same call that empties it.
//
// Rooms is not safe for concurrent use. The controller owns the only
// instance and serializes all access.
type Rooms struct {
	members map[domain.RoomID]map[domain.ConnID]struct{}
	index   map[domain.ConnID]map[domain.RoomID]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[domain.RoomID]map[domain.ConnID]struct{}),
		index:   make(map[domain.ConnID]map[domain.RoomID]struct{}),
	}
}

// Join adds conn to room, creating the room on first join. A room at
// capacity rejects with RoomFull and stays unchanged; the capacity check
// applies even to connections that are already members. Below capacity,
// re-joining is idempotent.
func (r *Rooms) Join(room domain.RoomID, conn domain.ConnID) JoinStatus {
	set := r.members[room]
	if len(set) >= MaxRoomSize {
		return RoomFull
	}
	if _, ok := set[conn]; ok {
		return AlreadyMember
	}
	if set == nil {
		set = make(map[domain.ConnID]struct{})
		r.members[room] = set
	}
	set[conn] = struct{}{}

	idx := r.index[conn]
	if idx == nil {
		idx = make(map[domain.RoomID]struct{})
		r.index[conn] = idx
	}
	idx[room] = struct{}{}
	return Joined
}

// Leave removes conn from room. Safe to call speculatively: an unknown room
// or a non-member is a no-op reported as left=false. When the removal
// empties the room, the room is deleted and empty=true.
func (r *Rooms) Leave(room domain.RoomID, conn domain.ConnID) (left, empty bool) {
	set, ok := r.members[room]
	if !ok {
		return false, false
	}
	if _, ok := set[conn]; !ok {
		return false, false
	}
	delete(set, conn)
	r.dropIndex(conn, room)
	if len(set) == 0 {
		delete(r.members, room)
		return true, true
	}
	return true, false
}

// RemoveEverywhere removes conn from every room it belongs to and reports
// one Removal per membership. Rooms the connection was not in are untouched.
func (r *Rooms) RemoveEverywhere(conn domain.ConnID) []Removal {
	idx := r.index[conn]
	if len(idx) == 0 {
		return nil
	}
	out := make([]Removal, 0, len(idx))
	for room := range idx {
		set := r.members[room]
		delete(set, conn)
		empty := len(set) == 0
		if empty {
			delete(r.members, room)
		}
		out = append(out, Removal{Room: room, Empty: empty})
	}
	delete(r.index, conn)
	return out
}

// Size returns the number of members in room, 0 for an unknown room.
func (r *Rooms) Size(room domain.RoomID) int {
	return len(r.members[room])
}

// Members returns the current member set of room, in no particular order.
func (r *Rooms) Members(room domain.RoomID) []domain.ConnID {
	set := r.members[room]
	out := make([]domain.ConnID, 0, len(set))
	for conn := range set {
		out = append(out, conn)
	}
	return out
}

// RoomCount returns the number of live rooms.
func (r *Rooms) RoomCount() int {
	return len(r.members)
}

func (r *Rooms) dropIndex(conn domain.ConnID, room domain.RoomID) {
	idx, ok := r.index[conn]
	if !ok {
		return
	}
	delete(idx, room)
	if len(idx) == 0 {
		delete(r.index, conn)
	}
}
