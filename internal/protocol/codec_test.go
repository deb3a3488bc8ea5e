package protocol

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

func TestDecodeMatchFound(t *testing.T) {
	raw := []byte(`{"event":"match_found","data":{"partnerId":"p1","partnerUserId":"u1","roomId":"r1","extra":true}}`)
	m, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, MatchFound{PartnerID: "p1", PartnerUserID: "u1", RoomID: "r1"}, m)
}

func TestDecodeOfferCarriesSessionDescription(t *testing.T) {
	raw := []byte(`{"event":"offer","data":{"from":"p1","to":"a","offer":{"type":"offer","sdp":"v=0"},"roomId":"r"}}`)
	m, err := Decode(raw)
	require.NoError(t, err)
	offer, ok := m.(Offer)
	require.True(t, ok)
	require.Equal(t, "p1", offer.From)
	require.Equal(t, webrtc.SDPTypeOffer, offer.Offer.Type)
	require.Equal(t, "v=0", offer.Offer.SDP)
}

func TestDecodeEmptyPayload(t *testing.T) {
	for _, raw := range []string{
		`{"event":"call:busy"}`,
		`{"event":"disconnected","data":null}`,
		`{"event":"peer:stopped","data":{}}`,
	} {
		m, err := Decode([]byte(raw))
		require.NoError(t, err, raw)
		require.NotNil(t, m)
	}
}

func TestDecodeRejectsUnknownAndMalformed(t *testing.T) {
	_, err := Decode([]byte(`{"event":"teleport","data":{}}`))
	require.ErrorIs(t, err, ErrUnknownEvent)

	_, err = Decode([]byte(`{"data":{}}`))
	require.ErrorIs(t, err, ErrBadEnvelope)

	_, err = Decode([]byte(`not json`))
	require.ErrorIs(t, err, ErrBadEnvelope)

	_, err = Decode([]byte(`{"event":"cam-toggle","data":{"enabled":"yes"}}`))
	require.ErrorIs(t, err, ErrBadEnvelope)
}

func TestEncodeUsesEventName(t *testing.T) {
	idx := uint16(0)
	raw, err := Encode(ICECandidate{
		To:        "p1",
		Candidate: webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host", SDPMLineIndex: &idx},
		RoomID:    "r1",
	})
	require.NoError(t, err)
	require.Contains(t, string(raw), `"event":"ice-candidate"`)

	back, err := Decode(raw)
	require.NoError(t, err)
	cand := back.(ICECandidate)
	require.Equal(t, "p1", cand.To)
	require.Equal(t, uint16(0), *cand.Candidate.SDPMLineIndex)
}

func TestPiPStateFieldName(t *testing.T) {
	raw, err := Encode(PiPState{InPiP: true, From: "a", RoomID: "r"})
	require.NoError(t, err)
	require.Contains(t, string(raw), `"inPiP":true`)
}
