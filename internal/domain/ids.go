package domain

// ConnID identifies a live transport connection. It is assigned by the
// server when the connection is accepted, is valid only for the
// connection's lifetime and is never reused after disconnect.
type ConnID string

// RoomID is the caller-supplied room key. Treated as an opaque,
// case-sensitive string; no parsing or normalization.
type RoomID string
