package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// TrackKind selects the audio or video track of a local stream.
type TrackKind int

const (
	TrackAudio TrackKind = iota
	TrackVideo
)

func (k TrackKind) String() string {
	if k == TrackVideo {
		return "video"
	}
	return "audio"
}

// LocalStream is the local capture (camera + microphone).
// Owned by the session; released through MediaEngine.ReleaseLocalStream.
type LocalStream interface {
	ID() string
	Enabled(kind TrackKind) bool
}

// RemoteStream is the media the partner sends us.
type RemoteStream interface {
	ID() string
}

// MediaEngine acquires capture devices and creates peer connections.
// Every method may block; the session calls them off its task loop.
type MediaEngine interface {
	AcquireLocalStream(ctx context.Context) (LocalStream, error)
	ReleaseLocalStream(LocalStream)
	// NewPeerConnection creates a connection with the stream's tracks attached
	// and both audio and video transceivers present.
	NewPeerConnection(ctx context.Context, local LocalStream) (PeerConnection, error)
	SetTrackEnabled(local LocalStream, kind TrackKind, enabled bool) error
}

// PeerConnection is the single negotiated link to a partner.
type PeerConnection interface {
	// CreateAndSetOffer creates an offer and applies it as local description.
	CreateAndSetOffer(ctx context.Context, iceRestart bool) (webrtc.SessionDescription, error)
	// CreateAndSetAnswer answers the applied remote offer.
	CreateAndSetAnswer(ctx context.Context) (webrtc.SessionDescription, error)
	SetRemoteDescription(ctx context.Context, desc webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// RequestKeyframe asks the partner for a fresh video keyframe.
	RequestKeyframe() error

	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnConnectionStateChange reports the aggregate connection state.
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	// OnRemoteStream fires once per remote stream.
	OnRemoteStream(func(RemoteStream))

	// Close should stop all underlying media resources.
	Close() error
	IsClosed() bool
}
