package session

import (
	"fmt"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

func cand(i int) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: fmt.Sprintf("candidate:%d 1 udp 1 10.0.0.%d 5000 typ host", i, i)}
}

func TestCandidateQueueKeepsOrderPerPartner(t *testing.T) {
	q := NewCandidateQueue(0)
	require.True(t, q.Push("p1", cand(1)))
	require.True(t, q.Push("p2", cand(9)))
	require.True(t, q.Push("p1", cand(2)))

	require.Equal(t, []webrtc.ICECandidateInit{cand(1), cand(2)}, q.Drain("p1"))
	require.Empty(t, q.Drain("p1"))
	require.Equal(t, 1, q.Len("p2"))
}

func TestCandidateQueueDiscardsAbandonedPartner(t *testing.T) {
	q := NewCandidateQueue(0)
	q.Push("p1", cand(1))
	q.Abandon("p1")
	require.Zero(t, q.Len("p1"))
	require.False(t, q.Push("p1", cand(2)))
	require.True(t, q.Abandoned("p1"))

	q.Revive("p1")
	require.True(t, q.Push("p1", cand(3)))
}

func TestCandidateQueueBounded(t *testing.T) {
	q := NewCandidateQueue(2)
	require.True(t, q.Push("p1", cand(1)))
	require.True(t, q.Push("p1", cand(2)))
	require.False(t, q.Push("p1", cand(3)))
	require.False(t, q.Push("", cand(4)))
}
