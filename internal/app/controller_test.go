package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voiceline/signaling/internal/core"
	"github.com/voiceline/signaling/internal/domain"
)

type mockConn struct {
	mu      sync.Mutex
	frames  []core.Frame
	sendErr error
}

func (m *mockConn) TrySend(f core.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.frames = append(m.frames, f)
	return nil
}

func (m *mockConn) Close() {}

func (m *mockConn) events(t *testing.T) []map[string]any {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]any, 0, len(m.frames))
	for _, f := range m.frames {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(f, &ev))
		out = append(out, ev)
	}
	return out
}

func (m *mockConn) eventsOfType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, ev := range m.events(t) {
		if ev["type"] == typ {
			out = append(out, ev)
		}
	}
	return out
}

type mockFinalizer struct {
	mu    sync.Mutex
	calls map[domain.RoomID]int
}

func newMockFinalizer() *mockFinalizer {
	return &mockFinalizer{calls: make(map[domain.RoomID]int)}
}

func (m *mockFinalizer) RoomEmptied(room domain.RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[room]++
}

func (m *mockFinalizer) count(room domain.RoomID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[room]
}

func (m *mockFinalizer) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func register(c *Controller, id domain.ConnID) *mockConn {
	conn := &mockConn{}
	c.Register(id, conn)
	return conn
}

func TestJoinBroadcastsToPeersOnly(t *testing.T) {
	c := NewController(nil)
	a := register(c, "A")
	b := register(c, "B")

	c.JoinRoom("A", "r")
	require.Empty(t, a.events(t), "first joiner hears nothing")

	c.JoinRoom("B", "r")

	joined := a.eventsOfType(t, "user-joined")
	require.Len(t, joined, 1)
	assert.Equal(t, "B", joined[0]["userId"])
	assert.Empty(t, b.events(t), "joiner does not receive its own user-joined")
}

func TestJoinRoomFullRejectsEleventh(t *testing.T) {
	c := NewController(nil)
	for i := 0; i < MaxRoomSize; i++ {
		id := domain.ConnID(fmt.Sprintf("c%d", i))
		register(c, id)
		c.JoinRoom(id, "r")
	}
	late := register(c, "late")

	c.JoinRoom("late", "r")

	full := late.eventsOfType(t, "room-full")
	require.Len(t, full, 1)
	assert.Equal(t, "r", full[0]["roomId"])
	assert.Equal(t, float64(10), full[0]["max"])
	assert.Empty(t, late.eventsOfType(t, "user-joined"))
	assert.Equal(t, MaxRoomSize, c.rooms.Size("r"))
}

func TestRejoinFullRoomGetsRoomFull(t *testing.T) {
	c := NewController(nil)
	first := register(c, "c0")
	c.JoinRoom("c0", "r")
	for i := 1; i < MaxRoomSize; i++ {
		id := domain.ConnID(fmt.Sprintf("c%d", i))
		register(c, id)
		c.JoinRoom(id, "r")
	}

	c.JoinRoom("c0", "r")

	full := first.eventsOfType(t, "room-full")
	require.Len(t, full, 1)
	assert.Equal(t, "r", full[0]["roomId"])
	assert.Equal(t, float64(10), full[0]["max"])
	assert.Equal(t, MaxRoomSize, c.rooms.Size("r"), "membership unchanged")
}

func TestJoinIdempotentNoSecondBroadcast(t *testing.T) {
	c := NewController(nil)
	a := register(c, "A")
	register(c, "B")

	c.JoinRoom("A", "r")
	c.JoinRoom("B", "r")
	c.JoinRoom("B", "r")

	assert.Len(t, a.eventsOfType(t, "user-joined"), 1)
	assert.Equal(t, 2, c.rooms.Size("r"))
}

func TestLeaveBroadcastsToWholeRoom(t *testing.T) {
	fin := newMockFinalizer()
	c := NewController(fin)
	a := register(c, "A")
	b := register(c, "B")
	c.JoinRoom("A", "r")
	c.JoinRoom("B", "r")

	c.LeaveRoom("A", "r")

	for name, conn := range map[string]*mockConn{"A": a, "B": b} {
		left := conn.eventsOfType(t, "user-left")
		require.Len(t, left, 1, "%s should see the departure", name)
		assert.Equal(t, "A", left[0]["userId"])
	}
	assert.Equal(t, 1, c.rooms.Size("r"))
	assert.Zero(t, fin.total(), "room not empty, no finalize")
}

func TestLeaveUnknownRoomIsSilent(t *testing.T) {
	fin := newMockFinalizer()
	c := NewController(fin)
	a := register(c, "A")

	c.LeaveRoom("A", "ghost")

	assert.Empty(t, a.events(t))
	assert.Zero(t, fin.total())
}

func TestLastLeaveFinalizesRoom(t *testing.T) {
	fin := newMockFinalizer()
	c := NewController(fin)
	register(c, "A")
	c.JoinRoom("A", "r")

	c.LeaveRoom("A", "r")

	assert.Equal(t, 1, fin.count("r"))
	assert.Equal(t, 0, c.rooms.Size("r"))
	assert.Equal(t, 0, c.rooms.RoomCount())
}

func TestReemptiedRoomFinalizesAgain(t *testing.T) {
	fin := newMockFinalizer()
	c := NewController(fin)
	register(c, "A")

	c.JoinRoom("A", "r")
	c.LeaveRoom("A", "r")
	c.JoinRoom("A", "r")
	c.LeaveRoom("A", "r")

	assert.Equal(t, 2, fin.count("r"))
}

func TestDisconnectLeavesAllRooms(t *testing.T) {
	fin := newMockFinalizer()
	c := NewController(fin)
	register(c, "A")
	b := register(c, "B")
	c.JoinRoom("A", "r1")
	c.JoinRoom("A", "r2")
	c.JoinRoom("B", "r2")

	c.Disconnect("A")

	left := b.eventsOfType(t, "user-left")
	require.Len(t, left, 1)
	assert.Equal(t, "A", left[0]["userId"])
	assert.Equal(t, 1, fin.count("r1"), "r1 emptied exactly once")
	assert.Zero(t, fin.count("r2"), "r2 still has B")
	assert.Equal(t, 1, c.rooms.Size("r2"))

	rooms, conns := c.Stats()
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 1, conns)
}

func TestDisconnectWithoutMemberships(t *testing.T) {
	fin := newMockFinalizer()
	c := NewController(fin)
	register(c, "A")

	c.Disconnect("A")

	assert.Zero(t, fin.total())
	_, conns := c.Stats()
	assert.Zero(t, conns)
}

func TestForwardOfferPreservesPayload(t *testing.T) {
	c := NewController(nil)
	register(c, "c1")
	c2 := register(c, "c2")

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 0 0 IN IP4 127.0.0.1"}`)
	c.ForwardOffer("c1", "r1", offer, "c2")

	c2.mu.Lock()
	frames := c2.frames
	c2.mu.Unlock()
	require.Len(t, frames, 1)

	var got struct {
		Type   string          `json:"type"`
		From   string          `json:"from"`
		Offer  json.RawMessage `json:"offer"`
		RoomID string          `json:"roomId"`
	}
	require.NoError(t, json.Unmarshal(frames[0], &got))
	assert.Equal(t, "voice-offer", got.Type)
	assert.Equal(t, "c1", got.From)
	assert.Equal(t, "r1", got.RoomID)
	assert.Equal(t, []byte(offer), []byte(got.Offer))
}

func TestForwardAnswerAnnotatesSender(t *testing.T) {
	c := NewController(nil)
	register(c, "c1")
	c2 := register(c, "c2")

	c.ForwardAnswer("c1", "r1", json.RawMessage(`{"type":"answer"}`), "c2")

	answers := c2.eventsOfType(t, "voice-answer")
	require.Len(t, answers, 1)
	assert.Equal(t, "c1", answers[0]["from"])
	assert.Equal(t, "r1", answers[0]["roomId"])
}

func TestForwardCandidateHasNoRoom(t *testing.T) {
	c := NewController(nil)
	register(c, "c1")
	c2 := register(c, "c2")

	c.ForwardCandidate("c1", json.RawMessage(`{"candidate":"candidate:0 1 UDP"}`), "c2")

	cands := c2.eventsOfType(t, "ice-candidate")
	require.Len(t, cands, 1)
	assert.Equal(t, "c1", cands[0]["from"])
	assert.NotContains(t, cands[0], "roomId")
}

func TestForwardNoMembershipCheck(t *testing.T) {
	c := NewController(nil)
	register(c, "c1")
	c2 := register(c, "c2")
	// Neither peer joined any room; the relay forwards regardless.
	c.ForwardOffer("c1", "r1", json.RawMessage(`{}`), "c2")

	assert.Len(t, c2.eventsOfType(t, "voice-offer"), 1)
}

func TestForwardUnknownTargetIsNoop(t *testing.T) {
	c := NewController(nil)
	c1 := register(c, "c1")

	c.ForwardOffer("c1", "r1", json.RawMessage(`{}`), "ghost")

	assert.Empty(t, c1.events(t), "no error surfaced to the sender")
}

func TestBroadcastToleratesSendErrors(t *testing.T) {
	c := NewController(nil)
	register(c, "A")
	slow := &mockConn{sendErr: errors.New("backpressure")}
	c.Register("B", slow)
	c.JoinRoom("A", "r")
	c.JoinRoom("B", "r")

	c.LeaveRoom("A", "r")

	// The slow member missed the frame but stays a member.
	assert.Equal(t, 1, c.rooms.Size("r"))
}
