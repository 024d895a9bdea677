package domain

import (
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Contract is the document both parties sign before committing any funds.
// Each party builds it locally from the fields visible to both and compares
// the canonical serialization with the one signed by the counterparty.
type Contract struct {
	TradeId       string
	OfferId       string
	Direction     string
	Amount        uint64
	Price         string
	PaymentMethod string
	CurrencyCode  string

	BuyerSecurityDeposit  uint64
	SellerSecurityDeposit uint64
	TxFee                 uint64

	MakerAccountId                 string
	MakerNodeAddress               string
	MakerPubKeyRing                []byte
	MakerPaymentAccountPayloadHash []byte
	MakerMultisigPubKey            []byte
	MakerPayoutAddress             string

	TakerAccountId                 string
	TakerNodeAddress               string
	TakerPubKeyRing                []byte
	TakerPaymentAccountPayloadHash []byte
	TakerMultisigPubKey            []byte
	TakerPayoutAddress             string
}

// Serialize returns the canonical serialization of the contract.
func (c Contract) Serialize() ([]byte, error) {
	buf, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize contract: %w", err)
	}
	return buf, nil
}

// Hash returns the sha256 digest of the canonical serialization.
func (c Contract) Hash() []byte {
	buf, _ := c.Serialize()
	return chainhash.HashB(buf)
}

// DeserializeContract parses a serialized contract.
func DeserializeContract(buf []byte) (*Contract, error) {
	c := &Contract{}
	if err := json.Unmarshal(buf, c); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedContract, err)
	}
	return c, nil
}
