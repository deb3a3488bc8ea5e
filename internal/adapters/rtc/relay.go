package rtc

import (
	"context"
	"maps"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// rtpSource is what a relay reads; *webrtc.TrackRemote satisfies it.
type rtpSource interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Relay reads one remote track and fans its packets out to outlets.
type Relay struct {
	src rtpSource

	mu      sync.RWMutex
	outlets map[string]*Outlet

	cancel context.CancelFunc
	done   chan struct{}
}

func NewRelay(src rtpSource, cancel context.CancelFunc) *Relay {
	return &Relay{
		src:     src,
		outlets: make(map[string]*Outlet),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// loop reads RTP packets from the source track and forwards them until the
// source ends or ctx is cancelled. Outlets are closed on the way out.
func (r *Relay) loop(ctx context.Context, logger *zerolog.Logger) {
	defer close(r.done)
	defer r.closeAll()
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("relay ctx done")
			return
		default:
		}
		pkt, _, err := r.src.ReadRTP()
		if err != nil {
			logger.Debug().Err(err).Msg("relay source ended")
			return
		}
		r.forward(pkt, logger)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := maps.Clone(r.outlets)
	r.mu.RUnlock()

	var dirty []string
	for name, o := range snapshot {
		switch o.State() {
		case SinkStateDelete:
			dirty = append(dirty, name)
		case SinkStateMuted:
		case SinkStateOk:
			if err := o.Sink.WriteRTP(pkt); err != nil {
				logger.Warn().Err(err).Str("sink", name).Msg("sink write failed, detaching")
				o.MarkDelete()
				dirty = append(dirty, name)
			}
		}
	}

	if len(dirty) > 0 {
		r.cleanup(dirty)
	}
}

func (r *Relay) cleanup(names []string) {
	r.mu.Lock()
	removed := make([]*Outlet, 0, len(names))
	for _, name := range names {
		if o, ok := r.outlets[name]; ok {
			removed = append(removed, o)
			delete(r.outlets, name)
		}
	}
	r.mu.Unlock()
	for _, o := range removed {
		_ = o.Sink.Close()
	}
}

func (r *Relay) closeAll() {
	r.mu.Lock()
	all := r.outlets
	r.outlets = make(map[string]*Outlet)
	r.mu.Unlock()
	for _, o := range all {
		o.MarkDelete()
		_ = o.Sink.Close()
	}
}

// Attach adds sink under name, replacing and closing an earlier one.
func (r *Relay) Attach(name string, sink Sink) *Outlet {
	o := NewOutlet(sink)
	r.mu.Lock()
	old := r.outlets[name]
	r.outlets[name] = o
	r.mu.Unlock()
	if old != nil {
		old.MarkDelete()
		_ = old.Sink.Close()
	}
	return o
}

// Detach marks the named outlet for removal on the next packet.
func (r *Relay) Detach(name string) {
	r.mu.RLock()
	o, ok := r.outlets[name]
	r.mu.RUnlock()
	if ok {
		o.MarkDelete()
	}
}

func (r *Relay) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Relay) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.outlets)
}
