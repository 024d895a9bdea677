package ports

import (
	"context"

	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
)

// Capability is a feature a peer announces for optional negotiations.
type Capability string

const (
	// CapabilityTradeStatistics tells that the peer is able to publish trade
	// statistics records.
	CapabilityTradeStatistics Capability = "TRADE_STATISTICS_3"
	// CapabilityBsqSwapOffer tells that the peer supports BSQ swaps.
	CapabilityBsqSwapOffer Capability = "BSQ_SWAP_OFFER"
)

// SendListener is notified about the outcome of a send. Exactly one of its
// methods is invoked once per send, possibly synchronously during the call
// to Send itself.
type SendListener interface {
	OnArrived()
	OnStoredInMailbox()
	OnFault(errMsg string)
}

// Network is the peer to peer message service. Delivery, mailbox storage and
// encryption are its responsibility.
type Network interface {
	// NodeAddress returns the address of the local node.
	NodeAddress() string
	// Send sends the envelope to the peer at the given address, encrypted for
	// the given pubkey ring, as a direct message or as a mailbox message if
	// the peer is offline.
	Send(
		ctx context.Context, peerAddress string, peerPubKeyRing []byte,
		envelope domain.Envelope, listener SendListener,
	)
	// Capabilities returns the capabilities announced by the peer.
	Capabilities(peerAddress string) []Capability
}
