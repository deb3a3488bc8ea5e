package session

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

func newTestEngine(pc *fakePC) (*NegotiationEngine, *CandidateQueue) {
	q := NewCandidateQueue(0)
	return newNegotiationEngine(pc, "p1", q, newDedupeSet(clock.NewMock(), 10*time.Second), syncRun), q
}

func TestNegotiationOfferAnswer(t *testing.T) {
	pc := &fakePC{}
	n, _ := newTestEngine(pc)

	var sent []webrtc.SessionDescription
	require.NoError(t, n.CreateOffer(false, func(d webrtc.SessionDescription) { sent = append(sent, d) }))
	require.Len(t, sent, 1)
	require.Equal(t, webrtc.SDPTypeOffer, sent[0].Type)
	require.False(t, n.Ready())

	// a second initial offer is refused
	require.ErrorIs(t, n.CreateOffer(false, func(webrtc.SessionDescription) {}), ErrNegotiation)

	applied := 0
	require.NoError(t, n.ApplyAnswer("p1", answerDesc("remote"), func() { applied++ }))
	require.Equal(t, 1, applied)
	require.True(t, n.Ready())

	// duplicate answer is stale
	require.ErrorIs(t, n.ApplyAnswer("p1", answerDesc("remote"), func() { applied++ }), ErrTransientSignaling)
	require.Equal(t, 1, applied)
	require.Equal(t, 1, pc.offerCount())
	require.Equal(t, 1, pc.remoteCount())
}

func TestNegotiationDuplicateOfferAnsweredOnce(t *testing.T) {
	pc := &fakePC{}
	n, _ := newTestEngine(pc)

	answers := 0
	done := func(webrtc.SessionDescription) { answers++ }
	require.NoError(t, n.ApplyOffer("p1", offerDesc("remote-1"), false, done))
	require.ErrorIs(t, n.ApplyOffer("p1", offerDesc("remote-1"), false, done), ErrTransientSignaling)
	// a different offer after answering is refused outside renegotiation
	require.ErrorIs(t, n.ApplyOffer("p1", offerDesc("remote-2"), false, done), ErrTransientSignaling)
	require.Equal(t, 1, answers)
	require.Equal(t, 1, pc.answerCount())
	require.True(t, n.Ready())

	// ICE restart from the caller
	require.NoError(t, n.ApplyOffer("p1", offerDesc("remote-3"), true, done))
	require.Equal(t, 2, answers)
}

func TestNegotiationGlareRejected(t *testing.T) {
	pc := &fakePC{}
	n, _ := newTestEngine(pc)
	require.NoError(t, n.CreateOffer(false, func(webrtc.SessionDescription) {}))

	err := n.ApplyOffer("p1", offerDesc("crossing"), false, func(webrtc.SessionDescription) {})
	require.ErrorIs(t, err, ErrNegotiation)
	require.ErrorIs(t, err, errGlare)
	require.Zero(t, pc.remoteCount())
}

func TestNegotiationRejectsWrongPartnerAndBadSDP(t *testing.T) {
	pc := &fakePC{}
	n, _ := newTestEngine(pc)

	require.ErrorIs(t, n.ApplyOffer("p2", offerDesc("x"), false, func(webrtc.SessionDescription) {}), ErrTransientSignaling)

	bad := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "not sdp"}
	require.ErrorIs(t, n.ApplyOffer("p1", bad, false, func(webrtc.SessionDescription) {}), ErrNegotiation)

	wrongType := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: testSDP("x")}
	require.ErrorIs(t, n.ApplyOffer("p1", wrongType, false, func(webrtc.SessionDescription) {}), ErrNegotiation)
	require.Zero(t, pc.remoteCount())
}

func TestNegotiationQueuesCandidatesUntilRemoteDescription(t *testing.T) {
	pc := &fakePC{}
	n, q := newTestEngine(pc)

	require.NoError(t, n.AddCandidate("p1", cand(1)))
	require.NoError(t, n.AddCandidate("p1", cand(2)))
	require.Empty(t, pc.appliedCandidates())
	require.Equal(t, 2, q.Len("p1"))

	require.NoError(t, n.ApplyOffer("p1", offerDesc("remote"), false, func(webrtc.SessionDescription) {}))
	require.Equal(t, []webrtc.ICECandidateInit{cand(1), cand(2)}, pc.appliedCandidates())

	require.NoError(t, n.AddCandidate("p1", cand(3)))
	require.Len(t, pc.appliedCandidates(), 3)

	// candidates from someone else never reach the connection
	require.NoError(t, n.AddCandidate("p9", cand(4)))
	require.Len(t, pc.appliedCandidates(), 3)
	require.Equal(t, 1, q.Len("p9"))
}

func TestNegotiationIceRestartOffer(t *testing.T) {
	pc := &fakePC{}
	n, _ := newTestEngine(pc)
	require.NoError(t, n.CreateOffer(false, func(webrtc.SessionDescription) {}))
	require.NoError(t, n.ApplyAnswer("p1", answerDesc("a"), func() {}))

	require.NoError(t, n.CreateOffer(true, func(webrtc.SessionDescription) {}))
	// re-offer while the previous restart is unanswered
	require.NoError(t, n.CreateOffer(true, func(webrtc.SessionDescription) {}))
	require.Equal(t, 2, pc.restartCount())
}
