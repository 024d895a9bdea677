package escrow

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/application/protocol"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/ports"
	"github.com/tdex-network/tdex-tradeprotocol/pkg/txutil"
)

// contribution is what one party brings to the deposit tx.
type contribution struct {
	accountId                 string
	nodeAddress               string
	pubKeyRing                []byte
	paymentAccountPayloadHash []byte
	multisigPubKey            []byte
	payoutAddress             string
	inputs                    []domain.RawTransactionInput
	changeAddress             string
	change                    uint64
}

func ownContribution(m *domain.ProcessModel) contribution {
	return contribution{
		accountId:                 m.AccountId,
		nodeAddress:               m.NodeAddress,
		pubKeyRing:                m.PubKeyRing,
		paymentAccountPayloadHash: m.PaymentAccountPayloadHash,
		multisigPubKey:            m.MultisigPubKey,
		payoutAddress:             m.PayoutAddress,
		inputs:                    m.RawInputs,
		changeAddress:             m.ChangeAddress,
		change:                    m.ChangeValue,
	}
}

func peerContribution(p domain.TradingPeer) contribution {
	return contribution{
		accountId:                 p.AccountId,
		nodeAddress:               p.NodeAddress,
		pubKeyRing:                p.PubKeyRing,
		paymentAccountPayloadHash: p.PaymentAccountPayloadHash,
		multisigPubKey:            p.MultisigPubKey,
		payoutAddress:             p.PayoutAddress,
		inputs:                    p.RawInputs,
		changeAddress:             p.ChangeAddress,
		change:                    p.ChangeValue,
	}
}

func makerAndTaker(tc *protocol.TaskContext) (maker, taker contribution) {
	own, peer := ownContribution(tc.Model), peerContribution(tc.Model.Peer)
	if tc.Trade.IsMaker {
		return own, peer
	}
	return peer, own
}

func buyerAndSeller(tc *protocol.TaskContext) (buyer, seller contribution) {
	own, peer := ownContribution(tc.Model), peerContribution(tc.Model.Peer)
	if tc.Trade.IsBuyer() {
		return own, peer
	}
	return peer, own
}

func buildContract(tc *protocol.TaskContext) domain.Contract {
	t := tc.Trade
	maker, taker := makerAndTaker(tc)
	return domain.Contract{
		TradeId:                        t.Id,
		OfferId:                        t.OfferId,
		Direction:                      t.Direction.String(),
		Amount:                         t.Amount,
		Price:                          t.Price.String(),
		PaymentMethod:                  t.PaymentMethod,
		CurrencyCode:                   t.CurrencyCode,
		BuyerSecurityDeposit:           t.BuyerSecurityDeposit,
		SellerSecurityDeposit:          t.SellerSecurityDeposit,
		TxFee:                          t.TxFee,
		MakerAccountId:                 maker.accountId,
		MakerNodeAddress:               maker.nodeAddress,
		MakerPubKeyRing:                maker.pubKeyRing,
		MakerPaymentAccountPayloadHash: maker.paymentAccountPayloadHash,
		MakerMultisigPubKey:            maker.multisigPubKey,
		MakerPayoutAddress:             maker.payoutAddress,
		TakerAccountId:                 taker.accountId,
		TakerNodeAddress:               taker.nodeAddress,
		TakerPubKeyRing:                taker.pubKeyRing,
		TakerPaymentAccountPayloadHash: taker.paymentAccountPayloadHash,
		TakerMultisigPubKey:            taker.multisigPubKey,
		TakerPayoutAddress:             taker.payoutAddress,
	}
}

// signContract stores the contract together with the local signature of its
// hash into the model.
func signContract(tc *protocol.TaskContext, contract domain.Contract) error {
	buf, err := contract.Serialize()
	if err != nil {
		return err
	}
	hash := contract.Hash()
	sig, err := tc.Provider.KeyRing.Sign(tc.Ctx, hash)
	if err != nil {
		return err
	}
	tc.Model.ContractJson = buf
	tc.Model.ContractHash = hash
	tc.Model.ContractSignature = sig
	return nil
}

func depositTxParams(tc *protocol.TaskContext) DepositTxParams {
	maker, taker := makerAndTaker(tc)
	buyer, seller := buyerAndSeller(tc)
	return DepositTxParams{
		TakerInputs:          taker.inputs,
		MakerInputs:          maker.inputs,
		BuyerMultisigPubKey:  buyer.multisigPubKey,
		SellerMultisigPubKey: seller.multisigPubKey,
		DepositAmount:        tc.Trade.DepositOutputValue(),
		TakerChangeAddress:   taker.changeAddress,
		TakerChange:          taker.change,
		MakerChangeAddress:   maker.changeAddress,
		MakerChange:          maker.change,
		Network:              tc.Config.Network,
	}
}

// ownInputIndexes returns the indexes of the local party's inputs within the
// deposit tx.
func ownInputIndexes(tc *protocol.TaskContext) []int {
	offset := 0
	if tc.Trade.IsMaker {
		offset = len(tc.Model.Peer.RawInputs)
	}
	indexes := make([]int, 0, len(tc.Model.RawInputs))
	for i := range tc.Model.RawInputs {
		indexes = append(indexes, offset+i)
	}
	return indexes
}

// peerInputIndexes returns the indexes of the peer's inputs within the
// deposit tx.
func peerInputIndexes(tc *protocol.TaskContext) []int {
	offset := 0
	if !tc.Trade.IsMaker {
		offset = len(tc.Model.RawInputs)
	}
	indexes := make([]int, 0, len(tc.Model.Peer.RawInputs))
	for i := range tc.Model.Peer.RawInputs {
		indexes = append(indexes, offset+i)
	}
	return indexes
}

func depositPrevOuts(tc *protocol.TaskContext) []domain.RawTransactionInput {
	maker, taker := makerAndTaker(tc)
	prevOuts := make([]domain.RawTransactionInput, 0, len(maker.inputs)+len(taker.inputs))
	prevOuts = append(prevOuts, taker.inputs...)
	return append(prevOuts, maker.inputs...)
}

func multisigWitnessScript(tc *protocol.TaskContext) ([]byte, error) {
	buyer, seller := buyerAndSeller(tc)
	return txutil.MultisigWitnessScript(buyer.multisigPubKey, seller.multisigPubKey)
}

func payoutTxParams(tc *protocol.TaskContext) PayoutTxParams {
	buyer, seller := buyerAndSeller(tc)
	return PayoutTxParams{
		DepositTxId:         tc.Trade.DepositTxId,
		DepositAmount:       tc.Trade.DepositOutputValue(),
		BuyerPayoutAddress:  buyer.payoutAddress,
		BuyerPayout:         tc.Trade.BuyerPayoutAmount(),
		SellerPayoutAddress: seller.payoutAddress,
		SellerPayout:        tc.Trade.SellerPayoutAmount(),
		Network:             tc.Config.Network,
	}
}

// checkContribution makes sure that inputs minus change cover exactly what
// the party must commit, plus the deposit fee that the taker pays on top.
func checkContribution(c contribution, expected uint64, isTaker bool) error {
	total, err := domain.SumRawInputs(c.inputs)
	if err != nil {
		return err
	}
	if total < c.change {
		return ErrContributionMismatch
	}
	committed := total - c.change
	if committed < expected || (!isTaker && committed != expected) {
		return ErrContributionMismatch
	}
	return nil
}

// reserveInputs reserves the selected inputs, derives the keys and addresses
// of the local party and starts watching the address of the first input.
func reserveInputs(tc *protocol.TaskContext, selection *ports.InputSelection) error {
	ctx, wallet := tc.Ctx, tc.Provider.Wallet
	tradeId := tc.Trade.Id

	if err := wallet.ReserveInputs(ctx, tradeId, selection.Inputs); err != nil {
		return err
	}
	multisigKey, err := wallet.DeriveMultisigKey(ctx, tradeId)
	if err != nil {
		return err
	}
	payoutAddress, err := wallet.DeriveAddress(ctx, ports.AssetBtc, tradeId)
	if err != nil {
		return err
	}
	changeAddress := ""
	if selection.Change > 0 {
		if changeAddress, err = wallet.DeriveAddress(ctx, ports.AssetBtc, tradeId); err != nil {
			return err
		}
	}

	m := tc.Model
	m.RawInputs = selection.Inputs
	m.ChangeValue = selection.Change
	m.ChangeAddress = changeAddress
	m.MultisigPubKey = multisigKey
	m.PayoutAddress = payoutAddress
	m.ReservedAddress = inputAddress(tc, selection.Inputs[0])

	if notifier := tc.Provider.ChainNotifier; notifier != nil && len(m.ReservedAddress) > 0 {
		if err := notifier.WatchAddress(ctx, tradeId, m.ReservedAddress); err != nil {
			tc.Logger().WithError(err).Warn("failed to watch reserved address")
		}
	}
	return nil
}

func inputAddress(tc *protocol.TaskContext, in domain.RawTransactionInput) string {
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(in.Script, tc.Config.Network)
	if err != nil || len(addrs) <= 0 {
		return ""
	}
	return addrs[0].EncodeAddress()
}
