package app

import (
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/Duet/internal/core"
	"github.com/stretchr/testify/require"
)

type fakeSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
}

func (f *fakeSignal) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return errors.New("backpressure")
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSignal) Close() {}

func TestRegistryBroadcastReportsDropped(t *testing.T) {
	reg := NewRegistry()
	okSig := &fakeSignal{}
	slowSig := &fakeSignal{full: true}
	main := core.NewViewerSession("v-main", core.ViewerMain, okSig)
	pip := core.NewViewerSession("v-pip", core.ViewerPiP, slowSig)
	reg.Bind(main, nil)
	reg.Bind(pip, nil)

	res := reg.Broadcast(core.Frame(`{"type":"x"}`))
	require.Equal(t, 1, res.SentTo)
	require.Len(t, res.Dropped, 1)
	require.Equal(t, pip, res.Dropped[0])
	require.Len(t, okSig.frames, 1)
}

func TestRegistryRebindCancelsPrevious(t *testing.T) {
	reg := NewRegistry()
	cancelled := 0
	first := core.NewViewerSession("v", core.ViewerMain, &fakeSignal{})
	second := core.NewViewerSession("v", core.ViewerMain, &fakeSignal{})

	reg.Bind(first, func() { cancelled++ })
	reg.Bind(second, nil)
	require.Equal(t, 1, cancelled)
	require.Equal(t, 1, reg.Len())

	// a stale unbind from the replaced viewer must not evict the new one
	reg.Unbind(first)
	got, ok := reg.Get("v")
	require.True(t, ok)
	require.Equal(t, second, got)

	reg.Unbind(second)
	require.Zero(t, reg.Len())
	require.False(t, reg.Cancel("v"))
}

func TestPolicies(t *testing.T) {
	main := core.NewViewerSession("a", core.ViewerMain, &fakeSignal{})
	pip := core.NewViewerSession("b", core.ViewerPiP, &fakeSignal{})

	require.Equal(t, KickViewer, SimplePolicy{}.OnBackPressure(pip))
	require.Equal(t, KickViewer, LenientPolicy{}.OnBackPressure(main))
	require.Equal(t, DropFrame, LenientPolicy{}.OnBackPressure(pip))
}
