package orch

import (
	"context"

	"github.com/dkeye/Duet/internal/app"
	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/dkeye/Duet/internal/session"
	"github.com/rs/zerolog/log"
)

// Controller is the part of *session.Session the control surface drives.
type Controller interface {
	Start(mode domain.Mode)
	Stop()
	Next()
	End()
	Abort()
	Invite(user domain.UserID)
	CancelInvite()
	AcceptIncoming(id domain.CallID)
	DeclineIncoming(id domain.CallID)
	ToggleMic()
	ToggleCam()
	EnterPiP()
	ExitPiP()
	SetBackgrounded(b bool)

	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Event, func())
}

var _ Controller = (*session.Session)(nil)

// Orchestrator relays session events to the attached viewers.
type Orchestrator struct {
	Session  Controller
	Registry *app.Registry
	Policy   app.Policy
}

func New(sess Controller, reg *app.Registry, policy app.Policy) *Orchestrator {
	return &Orchestrator{Session: sess, Registry: reg, Policy: policy}
}

// Run forwards events until ctx ends or the session closes.
func (o *Orchestrator) Run(ctx context.Context) {
	events, cancel := o.Session.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				log.Info().Str("module", "app.orch").Msg("session closed")
				return
			}
			data, err := EncodeEvent(ev)
			if err != nil {
				log.Error().Err(err).Str("module", "app.orch").Str("kind", string(ev.Kind)).Msg("encode event")
				continue
			}
			o.OnFrame(data)
		}
	}
}

func (o *Orchestrator) OnFrame(data core.Frame) {
	res := o.Registry.Broadcast(data)
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(slow) {
		case app.KickViewer:
			o.Kick(slow.ID())
		case app.DropFrame, app.NoAction:
		}
	}
}

// Attach registers v and greets it with the current snapshot.
func (o *Orchestrator) Attach(v core.ViewerSession, cancel context.CancelFunc) {
	o.Registry.Bind(v, cancel)
	data, err := EncodeSnapshot(o.Session.Snapshot())
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Msg("encode snapshot")
		return
	}
	if err := v.Signal().TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "app.orch").Str("viewer", string(v.ID())).Msg("snapshot not delivered")
	}
}

func (o *Orchestrator) Detach(v core.ViewerSession) {
	o.Registry.Unbind(v)
}

func (o *Orchestrator) Kick(id core.ViewerID) {
	if o.Registry.Cancel(id) {
		log.Warn().Str("module", "app.orch").Str("viewer", string(id)).Msg("kicked slow viewer")
	}
}
