package rtc

import (
	"sync/atomic"

	"github.com/pion/rtp"
)

// Sink consumes RTP packets of one remote track: a recorder, a renderer
// bridge, a local loopback.
type Sink interface {
	WriteRTP(*rtp.Packet) error
	Close() error
}

type SinkState int32

const (
	SinkStateOk SinkState = iota
	SinkStateMuted
	SinkStateDelete
)

// Outlet is a sink attached to a relay together with its forwarding state.
type Outlet struct {
	Sink  Sink
	state atomic.Int32 // zero is SinkStateOk
}

func NewOutlet(sink Sink) *Outlet {
	return &Outlet{Sink: sink}
}

func (o *Outlet) State() SinkState {
	return SinkState(o.state.Load())
}

func (o *Outlet) MarkOk() {
	o.state.Store(int32(SinkStateOk))
}

func (o *Outlet) MarkMuted() {
	o.state.Store(int32(SinkStateMuted))
}

func (o *Outlet) MarkDelete() {
	o.state.Store(int32(SinkStateDelete))
}
