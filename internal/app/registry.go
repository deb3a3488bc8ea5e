package app

import (
	"context"
	"sync"

	"github.com/dkeye/Duet/internal/core"
	"github.com/rs/zerolog/log"
)

type viewerEntry struct {
	Viewer core.ViewerSession
	Cancel context.CancelFunc
}

// Registry tracks the UI viewers attached to the local session.
type Registry struct {
	mu      sync.RWMutex
	viewers map[core.ViewerID]*viewerEntry
}

func NewRegistry() *Registry {
	return &Registry{viewers: make(map[core.ViewerID]*viewerEntry)}
}

// Bind attaches v, replacing and cancelling any earlier viewer with the
// same id. Callers fold the viewer kind into the id.
func (r *Registry) Bind(v core.ViewerSession, cancel context.CancelFunc) {
	r.mu.Lock()
	prev, ok := r.viewers[v.ID()]
	r.viewers[v.ID()] = &viewerEntry{Viewer: v, Cancel: cancel}
	r.mu.Unlock()

	if ok && prev.Cancel != nil {
		prev.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("viewer", string(v.ID())).Str("kind", string(v.Kind())).Msg("bound viewer")
}

// Unbind removes v if it is still the registered viewer for its id.
func (r *Registry) Unbind(v core.ViewerSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.viewers[v.ID()]; ok && e.Viewer == v {
		delete(r.viewers, v.ID())
		log.Info().Str("module", "app.registry").Str("viewer", string(v.ID())).Msg("unbind viewer")
	}
}

func (r *Registry) Get(id core.ViewerID) (core.ViewerSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.viewers[id]; ok {
		return e.Viewer, true
	}
	return nil, false
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.viewers)
}

// Broadcast pushes data to every viewer without blocking.
func (r *Registry) Broadcast(data core.Frame) core.PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := core.PublishResult{}
	for _, e := range r.viewers {
		if err := e.Viewer.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, e.Viewer)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "app.registry").Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// Cancel stops the viewer's stream loop.
func (r *Registry) Cancel(id core.ViewerID) bool {
	r.mu.RLock()
	e, ok := r.viewers[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("viewer", string(id)).Msg("canceled viewer")
	return true
}
