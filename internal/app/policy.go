package app

import "github.com/dkeye/Duet/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickViewer
	DropFrame
)

type Policy interface {
	OnBackPressure(viewer core.ViewerSession) BackpressureAction
}

// SimplePolicy kicks a lagging viewer; it reconnects and reads the
// snapshot again.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.ViewerSession) BackpressureAction {
	return KickViewer
}

// LenientPolicy keeps lagging PiP viewers and drops their frame instead.
type LenientPolicy struct{}

func (LenientPolicy) OnBackPressure(v core.ViewerSession) BackpressureAction {
	if v.Kind() == core.ViewerPiP {
		return DropFrame
	}
	return SimplePolicy{}.OnBackPressure(v)
}
