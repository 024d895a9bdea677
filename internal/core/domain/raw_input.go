package domain

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// RawTransactionInput is the unsigned descriptor of a spendable output that
// peers exchange before any signature is produced. The Segwit flag drives the
// virtual size estimation of the transaction the input is part of.
type RawTransactionInput struct {
	Txid   string
	Index  uint32
	Value  uint64
	Script []byte
	Segwit bool
}

// OutPoint returns the wire outpoint referenced by the input.
func (i RawTransactionInput) OutPoint() (*wire.OutPoint, error) {
	hash, err := chainhash.NewHashFromStr(i.Txid)
	if err != nil {
		return nil, fmt.Errorf("invalid input txid %s: %w", i.Txid, err)
	}
	return wire.NewOutPoint(hash, i.Index), nil
}

// Key returns a string uniquely identifying the referenced outpoint.
func (i RawTransactionInput) Key() string {
	return fmt.Sprintf("%s:%d", i.Txid, i.Index)
}

// Validate checks that the input is well formed.
func (i RawTransactionInput) Validate() error {
	if _, err := i.OutPoint(); err != nil {
		return err
	}
	if i.Value == 0 {
		return ErrInputZeroValue
	}
	if i.Value > btcutil.MaxSatoshi {
		return ErrInputValueOutOfRange
	}
	if len(i.Script) <= 0 {
		return ErrInputMissingScript
	}
	return nil
}

// SumRawInputs returns the total value of the given inputs. Both every
// value and the total must not exceed the maximum amount of bitcoin.
func SumRawInputs(inputs []RawTransactionInput) (uint64, error) {
	var sum uint64
	for _, in := range inputs {
		if in.Value > btcutil.MaxSatoshi || sum+in.Value > btcutil.MaxSatoshi {
			return 0, ErrInputValueOutOfRange
		}
		sum += in.Value
	}
	return sum, nil
}

// ValidateRawInputs validates every input and makes sure that no outpoint is
// referenced twice and that the total value is in range.
func ValidateRawInputs(inputs []RawTransactionInput) error {
	if len(inputs) <= 0 {
		return ErrMissingInputs
	}
	seen := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		if err := in.Validate(); err != nil {
			return err
		}
		if _, ok := seen[in.Key()]; ok {
			return ErrDuplicatedInput
		}
		seen[in.Key()] = struct{}{}
	}
	_, err := SumRawInputs(inputs)
	return err
}
