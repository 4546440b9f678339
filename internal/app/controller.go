package app

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/voiceline/signaling/internal/core"
	"github.com/voiceline/signaling/internal/domain"
)

// Finalizer is notified when a room's membership returns to zero. The call
// must not block; any external work happens in the background.
type Finalizer interface {
	RoomEmptied(room domain.RoomID)
}

// Controller binds the room registry to the transport: it consumes
// connection lifecycle events and relay messages, mutates the registry and
// emits the resulting frames. It holds the only reference to the registry;
// membership mutations and the enqueue of their broadcasts happen under one
// write lock, so recipients observe frames in mutation order.
type Controller struct {
	mu    sync.RWMutex
	rooms *Rooms
	conns map[domain.ConnID]core.SignalConnection
	fin   Finalizer
}

// NewController creates a controller with an empty registry. fin may be nil
// to disable room finalization.
func NewController(fin Finalizer) *Controller {
	return &Controller{
		rooms: NewRooms(),
		conns: make(map[domain.ConnID]core.SignalConnection),
		fin:   fin,
	}
}

// Register binds a live connection to its transport endpoint.
func (c *Controller) Register(id domain.ConnID, sc core.SignalConnection) {
	c.mu.Lock()
	c.conns[id] = sc
	c.mu.Unlock()
	log.Info().Str("module", "app.controller").Str("conn", string(id)).Msg("connection registered")
}

// JoinRoom attempts to add id to room. A full room answers the requester
// with room-full; a successful join broadcasts user-joined to the other
// members; re-joining is silent.
func (c *Controller) JoinRoom(id domain.ConnID, room domain.RoomID) {
	c.mu.Lock()
	status := c.rooms.Join(room, id)
	switch status {
	case RoomFull:
		if frame, ok := marshalEvent(roomFullEvent{Type: "room-full", RoomID: string(room), Max: MaxRoomSize}); ok {
			c.sendLocked(id, frame)
		}
	case Joined:
		if frame, ok := marshalEvent(presenceEvent{Type: "user-joined", UserID: string(id)}); ok {
			c.broadcastLocked(room, id, frame)
		}
	case AlreadyMember:
	}
	c.mu.Unlock()

	switch status {
	case Joined:
		log.Info().Str("module", "app.controller").Str("conn", string(id)).Str("room", string(room)).Msg("joined room")
	case RoomFull:
		log.Info().Str("module", "app.controller").Str("conn", string(id)).Str("room", string(room)).Msg("room full")
	}
}

// LeaveRoom removes id from room. Leaving a room one is not in is a no-op.
// user-left goes to every connection that was in the room at the time of
// the leave, the departing one included; if the room emptied, the finalizer
// is notified.
func (c *Controller) LeaveRoom(id domain.ConnID, room domain.RoomID) {
	c.mu.Lock()
	left, empty := c.rooms.Leave(room, id)
	if left {
		if frame, ok := marshalEvent(presenceEvent{Type: "user-left", UserID: string(id)}); ok {
			c.broadcastLocked(room, "", frame)
			c.sendLocked(id, frame)
		}
	}
	c.mu.Unlock()

	if !left {
		return
	}
	log.Info().Str("module", "app.controller").Str("conn", string(id)).Str("room", string(room)).Bool("empty", empty).Msg("left room")
	if empty && c.fin != nil {
		c.fin.RoomEmptied(room)
	}
}

// Disconnect is terminal for id: it removes the connection from the table
// and from every room it was a member of, broadcasting one user-left per
// room and finalizing each room that emptied.
func (c *Controller) Disconnect(id domain.ConnID) {
	c.mu.Lock()
	delete(c.conns, id)
	removals := c.rooms.RemoveEverywhere(id)
	if len(removals) > 0 {
		if frame, ok := marshalEvent(presenceEvent{Type: "user-left", UserID: string(id)}); ok {
			for _, rm := range removals {
				c.broadcastLocked(rm.Room, "", frame)
			}
		}
	}
	c.mu.Unlock()

	log.Info().Str("module", "app.controller").Str("conn", string(id)).Int("rooms", len(removals)).Msg("disconnected")
	if c.fin == nil {
		return
	}
	for _, rm := range removals {
		if rm.Empty {
			c.fin.RoomEmptied(rm.Room)
		}
	}
}

// ForwardOffer relays an opaque session offer to the target connection,
// annotated with the sender's identity. No membership or liveness check:
// an unknown target makes the forward a silent no-op.
func (c *Controller) ForwardOffer(from domain.ConnID, roomID string, offer json.RawMessage, to domain.ConnID) {
	c.forward(to, offerEvent{Type: "voice-offer", From: string(from), Offer: offer, RoomID: roomID})
}

// ForwardAnswer relays an opaque session answer; same semantics as
// ForwardOffer.
func (c *Controller) ForwardAnswer(from domain.ConnID, roomID string, answer json.RawMessage, to domain.ConnID) {
	c.forward(to, answerEvent{Type: "voice-answer", From: string(from), Answer: answer, RoomID: roomID})
}

// ForwardCandidate relays an opaque network candidate; candidates carry no
// room id.
func (c *Controller) ForwardCandidate(from domain.ConnID, candidate json.RawMessage, to domain.ConnID) {
	c.forward(to, candidateEvent{Type: "ice-candidate", From: string(from), Candidate: candidate})
}

// Stats reports the number of live rooms and connections.
func (c *Controller) Stats() (rooms, conns int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms.RoomCount(), len(c.conns)
}

func (c *Controller) forward(to domain.ConnID, v any) {
	frame, ok := marshalEvent(v)
	if !ok {
		return
	}
	c.mu.RLock()
	sc := c.conns[to]
	c.mu.RUnlock()
	if sc == nil {
		log.Debug().Str("module", "app.controller").Str("to", string(to)).Msg("forward target not connected")
		return
	}
	_ = sc.TrySend(frame)
}

// sendLocked and broadcastLocked require c.mu held. Send failures (closed
// or backpressured connections) are tolerated per recipient.

func (c *Controller) sendLocked(id domain.ConnID, frame core.Frame) {
	if sc := c.conns[id]; sc != nil {
		_ = sc.TrySend(frame)
	}
}

func (c *Controller) broadcastLocked(room domain.RoomID, except domain.ConnID, frame core.Frame) {
	for _, member := range c.rooms.Members(room) {
		if member == except {
			continue
		}
		c.sendLocked(member, frame)
	}
}
