package protocol_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/mock"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/ports"
)

type mockWallet struct {
	mock.Mock
}

func (m *mockWallet) SelectInputs(
	ctx context.Context, asset ports.Asset, targetAmount uint64,
) (*ports.InputSelection, error) {
	args := m.Called(ctx, asset, targetAmount)
	var res *ports.InputSelection
	if a := args.Get(0); a != nil {
		res = a.(*ports.InputSelection)
	}
	return res, args.Error(1)
}

func (m *mockWallet) ReserveInputs(
	ctx context.Context, tradeId string, inputs []domain.RawTransactionInput,
) error {
	args := m.Called(ctx, tradeId, inputs)
	return args.Error(0)
}

func (m *mockWallet) ReleaseInputs(ctx context.Context, tradeId string) error {
	args := m.Called(ctx, tradeId)
	return args.Error(0)
}

func (m *mockWallet) DeriveAddress(
	ctx context.Context, asset ports.Asset, tradeId string,
) (string, error) {
	args := m.Called(ctx, asset, tradeId)
	return args.String(0), args.Error(1)
}

func (m *mockWallet) DeriveMultisigKey(ctx context.Context, tradeId string) ([]byte, error) {
	args := m.Called(ctx, tradeId)
	var res []byte
	if a := args.Get(0); a != nil {
		res = a.([]byte)
	}
	return res, args.Error(1)
}

func (m *mockWallet) SignInputs(
	ctx context.Context, tx *wire.MsgTx,
	prevOuts []domain.RawTransactionInput, inputIndexes []int,
) (*wire.MsgTx, error) {
	args := m.Called(ctx, tx, prevOuts, inputIndexes)
	var res *wire.MsgTx
	if a := args.Get(0); a != nil {
		res = a.(*wire.MsgTx)
	}
	return res, args.Error(1)
}

func (m *mockWallet) SignMultisigInput(
	ctx context.Context, tradeId string, tx *wire.MsgTx, inIndex int,
	witnessScript []byte, amount int64,
) ([]byte, error) {
	args := m.Called(ctx, tradeId, tx, inIndex, witnessScript, amount)
	var res []byte
	if a := args.Get(0); a != nil {
		res = a.([]byte)
	}
	return res, args.Error(1)
}

func (m *mockWallet) BroadcastTransaction(ctx context.Context, tx *wire.MsgTx) (string, error) {
	args := m.Called(ctx, tx)
	return args.String(0), args.Error(1)
}

func (m *mockWallet) GetConfirmations(ctx context.Context, txid string) (int, error) {
	args := m.Called(ctx, txid)
	return args.Int(0), args.Error(1)
}

func (m *mockWallet) GetAddressBalance(ctx context.Context, address string) (uint64, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(uint64), args.Error(1)
}

type mockOfferBook struct {
	mock.Mock
}

func (m *mockOfferBook) GetOffer(ctx context.Context, offerId string) (*domain.Offer, error) {
	args := m.Called(ctx, offerId)
	var res *domain.Offer
	if a := args.Get(0); a != nil {
		res = a.(*domain.Offer)
	}
	return res, args.Error(1)
}

func (m *mockOfferBook) RemoveOffer(ctx context.Context, offerId string) error {
	args := m.Called(ctx, offerId)
	return args.Error(0)
}

type mockFeeService struct {
	mock.Mock
}

func (m *mockFeeService) GetFeeRatePerVbyte(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

type mockFilter struct {
	mock.Mock
}

func (m *mockFilter) IsNodeBanned(ctx context.Context, nodeAddress string) (bool, error) {
	args := m.Called(ctx, nodeAddress)
	return args.Bool(0), args.Error(1)
}

func (m *mockFilter) IsPaymentAccountBanned(ctx context.Context, hash []byte) (bool, error) {
	args := m.Called(ctx, hash)
	return args.Bool(0), args.Error(1)
}

type staticKeyRing struct {
	pubkey []byte
}

func (k staticKeyRing) PubKey() []byte {
	return k.pubkey
}

func (k staticKeyRing) Sign(context.Context, []byte) ([]byte, error) {
	return []byte{0x30}, nil
}

type deliveryMode int

const (
	deliverArrived deliveryMode = iota
	deliverMailbox
	deliverFault
	deliverNever
)

type sentMessage struct {
	peer     string
	envelope domain.Envelope
	listener ports.SendListener
}

// fakeNetwork records every sent envelope and reports its delivery
// synchronously according to the configured mode. With deliverNever, the
// test is in charge of firing the listener.
type fakeNetwork struct {
	address string

	lock         sync.Mutex
	mode         deliveryMode
	sent         []sentMessage
	capabilities []ports.Capability
}

func newFakeNetwork(address string) *fakeNetwork {
	return &fakeNetwork{address: address}
}

func (n *fakeNetwork) NodeAddress() string {
	return n.address
}

func (n *fakeNetwork) Send(
	_ context.Context, peerAddress string, _ []byte,
	env domain.Envelope, listener ports.SendListener,
) {
	n.lock.Lock()
	n.sent = append(n.sent, sentMessage{peerAddress, env, listener})
	mode := n.mode
	n.lock.Unlock()

	switch mode {
	case deliverArrived:
		listener.OnArrived()
	case deliverMailbox:
		listener.OnStoredInMailbox()
	case deliverFault:
		listener.OnFault("peer unreachable")
	}
}

func (n *fakeNetwork) Capabilities(string) []ports.Capability {
	return n.capabilities
}

func (n *fakeNetwork) setMode(mode deliveryMode) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.mode = mode
}

// sentOfKind returns the sent messages of the given kind.
func (n *fakeNetwork) sentOfKind(kind domain.MessageKind) []sentMessage {
	n.lock.Lock()
	defer n.lock.Unlock()

	list := make([]sentMessage, 0)
	for _, m := range n.sent {
		if m.envelope.Kind == kind {
			list = append(list, m)
		}
	}
	return list
}

// flakyRepo rejects every process model write once failModelWrites is set.
type flakyRepo struct {
	ports.RepoManager
	failModelWrites atomic.Bool
}

func (r *flakyRepo) ProcessModelRepository() domain.ProcessModelRepository {
	return flakyModelRepo{r.RepoManager.ProcessModelRepository(), &r.failModelWrites}
}

type flakyModelRepo struct {
	domain.ProcessModelRepository
	fail *atomic.Bool
}

func (r flakyModelRepo) SaveProcessModel(
	ctx context.Context, model *domain.ProcessModel,
) error {
	if r.fail.Load() {
		return errors.New("disk full")
	}
	return r.ProcessModelRepository.SaveProcessModel(ctx, model)
}

// countingRepo counts the trades loaded by id.
type countingRepo struct {
	ports.RepoManager
	loads atomic.Int64
}

func (r *countingRepo) TradeRepository() domain.TradeRepository {
	return countingTradeRepo{r.RepoManager.TradeRepository(), &r.loads}
}

func (r *countingRepo) tradeLoads() int64 {
	return r.loads.Load()
}

type countingTradeRepo struct {
	domain.TradeRepository
	loads *atomic.Int64
}

func (r countingTradeRepo) GetTrade(
	ctx context.Context, tradeId string,
) (*domain.Trade, error) {
	r.loads.Add(1)
	return r.TradeRepository.GetTrade(ctx, tradeId)
}
