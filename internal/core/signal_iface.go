package core

// Frame is a raw encoded payload pushed to a viewer.
type Frame []byte

// SignalConnection abstracts a viewer's event stream (main view, PiP view).
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
