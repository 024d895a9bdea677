package domain

import "bytes"

// TradingPeer holds everything the counterparty supplied during the trade.
// None of these fields can be trusted for fund-moving decisions until it has
// been independently verified by a dedicated task.
type TradingPeer struct {
	AccountId                 string
	NodeAddress               string
	PubKeyRing                []byte
	PaymentAccountPayloadHash []byte
	// Only filled in the dispute path.
	PaymentAccountPayload []byte

	MultisigPubKey []byte
	PayoutAddress  string
	RawInputs      []RawTransactionInput
	ChangeAddress  string
	ChangeValue    uint64

	ContractSignature []byte
	ContractVerified  bool

	AccountAgeWitnessNonce     []byte
	AccountAgeWitnessSignature []byte

	DepositTx       []byte
	PayoutTx        []byte
	PayoutSignature []byte
	SwapTx          []byte
}

// BindNodeAddress binds the peer to the given network address. Once bound,
// a different address is rejected instead of being silently adopted.
func (p *TradingPeer) BindNodeAddress(addr string) error {
	if len(p.NodeAddress) > 0 && p.NodeAddress != addr {
		return ErrPeerAddressMismatch
	}
	p.NodeAddress = addr
	return nil
}

// BindPubKeyRing binds the public key used to verify the peer's signatures.
func (p *TradingPeer) BindPubKeyRing(pubkey []byte) error {
	if len(pubkey) <= 0 {
		return ErrMissingPubKeyRing
	}
	if len(p.PubKeyRing) > 0 && !bytes.Equal(p.PubKeyRing, pubkey) {
		return ErrPeerPubKeyMismatch
	}
	p.PubKeyRing = pubkey
	return nil
}

// SetContractSignature stores the signature the peer claims to have produced
// over the contract. It can't be replaced once verified.
func (p *TradingPeer) SetContractSignature(sig []byte) error {
	if p.ContractVerified {
		if bytes.Equal(p.ContractSignature, sig) {
			return nil
		}
		return ErrPeerContractLocked
	}
	p.ContractSignature = sig
	return nil
}

// MarkContractVerified locks the contract signature.
func (p *TradingPeer) MarkContractVerified() {
	p.ContractVerified = true
}

// SetDepositContribution stores the peer's contribution to the deposit tx.
// It is rejected once the contract has been verified, since the contract
// commits to it.
func (p *TradingPeer) SetDepositContribution(
	multisigPubKey []byte, payoutAddress string,
	inputs []RawTransactionInput, changeAddress string, changeValue uint64,
) error {
	if p.ContractVerified {
		return ErrPeerContractLocked
	}
	if len(multisigPubKey) <= 0 {
		return ErrMissingMultisigPubKey
	}
	if len(payoutAddress) <= 0 {
		return ErrMissingPayoutAddress
	}
	p.MultisigPubKey = multisigPubKey
	p.PayoutAddress = payoutAddress
	p.RawInputs = inputs
	p.ChangeAddress = changeAddress
	p.ChangeValue = changeValue
	return nil
}

// SetSwapContribution stores the peer's contribution to a BSQ swap tx.
func (p *TradingPeer) SetSwapContribution(
	inputs []RawTransactionInput, changeAddress string, changeValue uint64,
	payoutAddress string,
) error {
	if len(p.RawInputs) > 0 {
		return ErrPeerContributionLocked
	}
	if len(payoutAddress) <= 0 {
		return ErrMissingPayoutAddress
	}
	p.RawInputs = inputs
	p.ChangeAddress = changeAddress
	p.ChangeValue = changeValue
	p.PayoutAddress = payoutAddress
	return nil
}

// Reset clears everything supplied by the peer. It must be used only when the
// protocol is explicitly restarted.
func (p *TradingPeer) Reset() {
	*p = TradingPeer{NodeAddress: p.NodeAddress, PubKeyRing: p.PubKeyRing}
}
