package core

import "github.com/dkeye/Duet/internal/protocol"

// SignalingTransport is the message bus to the matchmaking/relay server.
// Delivery is ordered per partner but not globally.
type SignalingTransport interface {
	// LocalID is our transport id as the server knows it.
	LocalID() string
	Send(protocol.Message) error
	// Subscribe returns inbound messages until cancel is called.
	Subscribe() (<-chan protocol.Message, func())
}
