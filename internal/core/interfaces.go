package core

// Frame is a raw signaling payload, marshaled once per send.
type Frame []byte

// SignalConnection abstracts the per-connection messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
