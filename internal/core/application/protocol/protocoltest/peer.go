package protocoltest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/ports"
)

type KeyRing struct {
	key *btcec.PrivateKey
}

func NewKeyRing() (KeyRing, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return KeyRing{}, err
	}
	return KeyRing{key}, nil
}

func (k KeyRing) PubKey() []byte {
	return k.key.PubKey().SerializeCompressed()
}

func (k KeyRing) Sign(_ context.Context, hash []byte) ([]byte, error) {
	return ecdsa.Sign(k.key, hash).Serialize(), nil
}

// FeeService always returns the same fee rate.
type FeeService uint64

func (f FeeService) GetFeeRatePerVbyte(context.Context) (uint64, error) {
	return uint64(f), nil
}

// OfferBook holds the single offer of a test trade and is shared by both
// parties.
type OfferBook struct {
	lock    sync.Mutex
	offer   domain.Offer
	removed bool
}

func NewOfferBook(offer domain.Offer) *OfferBook {
	return &OfferBook{offer: offer}
}

func (b *OfferBook) GetOffer(_ context.Context, offerId string) (*domain.Offer, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if offerId != b.offer.Id || b.removed {
		return nil, fmt.Errorf("offer %s not found", offerId)
	}
	offer := b.offer
	return &offer, nil
}

func (b *OfferBook) RemoveOffer(context.Context, string) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.removed = true
	return nil
}

func (b *OfferBook) IsRemoved() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.removed
}

// MessageHandler is the inbound side of a protocol service.
type MessageHandler interface {
	HandleMessage(ctx context.Context, env domain.Envelope) error
}

// Network delivers envelopes synchronously to the handler registered for the
// peer address, after reporting them as arrived. A tamper func can alter the
// envelopes in transit.
type Network struct {
	address string

	lock   sync.Mutex
	peers  map[string]MessageHandler
	tamper func(env *domain.Envelope)
}

func NewNetwork(address string) *Network {
	return &Network{
		address: address,
		peers:   make(map[string]MessageHandler),
	}
}

func (n *Network) NodeAddress() string {
	return n.address
}

func (n *Network) Send(
	ctx context.Context, peerAddress string, _ []byte,
	env domain.Envelope, listener ports.SendListener,
) {
	n.lock.Lock()
	peer := n.peers[peerAddress]
	tamper := n.tamper
	n.lock.Unlock()

	if peer == nil {
		listener.OnFault("peer offline")
		return
	}
	listener.OnArrived()
	if tamper != nil {
		tamper(&env)
	}
	// nolint
	peer.HandleMessage(ctx, env)
}

func (n *Network) Capabilities(string) []ports.Capability {
	return []ports.Capability{
		ports.CapabilityTradeStatistics, ports.CapabilityBsqSwapOffer,
	}
}

// Connect routes the envelopes addressed to the given peer to its handler.
func (n *Network) Connect(address string, peer MessageHandler) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.peers[address] = peer
}

func (n *Network) SetTamper(fn func(env *domain.Envelope)) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.tamper = fn
}

// TamperWith returns a tamper func that alters the messages of the given
// kind, keeping their uid.
func TamperWith(kind domain.MessageKind, fn func(msg domain.Message)) func(env *domain.Envelope) {
	return func(env *domain.Envelope) {
		if env.Kind != kind {
			return
		}
		msg, err := env.Decode()
		if err != nil {
			return
		}
		fn(msg)
		payload, err := json.Marshal(msg)
		if err != nil {
			return
		}
		env.Payload = payload
	}
}
