package txutil

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// Serialize returns the serialization of the tx, including witnesses.
func Serialize(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Deserialize parses a serialized tx.
func Deserialize(buf []byte) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(buf)); err != nil {
		return nil, fmt.Errorf("invalid tx: %w", err)
	}
	return tx, nil
}

// Strip returns a copy of the tx without any input script or witness, ie.
// the tx as it was before any party signed it.
func Strip(tx *wire.MsgTx) *wire.MsgTx {
	stripped := tx.Copy()
	for _, in := range stripped.TxIn {
		in.SignatureScript = nil
		in.Witness = nil
	}
	return stripped
}

// StrippedBytes returns the serialization of the stripped tx.
func StrippedBytes(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := Strip(tx).SerializeNoWitness(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EqualUnsigned returns whether the two txs are byte-identical once stripped
// of all signatures.
func EqualUnsigned(a, b *wire.MsgTx) (bool, error) {
	aBytes, err := StrippedBytes(a)
	if err != nil {
		return false, err
	}
	bBytes, err := StrippedBytes(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(aBytes, bBytes), nil
}

// SumOutputs returns the total value of the tx outputs.
func SumOutputs(tx *wire.MsgTx) uint64 {
	var sum uint64
	for _, out := range tx.TxOut {
		sum += uint64(out.Value)
	}
	return sum
}

// AddressScript returns the output script for the given address.
func AddressScript(address string, net *chaincfg.Params) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, net)
	if err != nil {
		return nil, fmt.Errorf("invalid address %s: %w", address, err)
	}
	if !addr.IsForNet(net) {
		return nil, fmt.Errorf("address %s is not for network %s", address, net.Name)
	}
	return txscript.PayToAddrScript(addr)
}

// IsSigned returns whether the input at the given index carries either a
// script sig or a witness.
func IsSigned(tx *wire.MsgTx, inIndex int) bool {
	if inIndex < 0 || inIndex >= len(tx.TxIn) {
		return false
	}
	in := tx.TxIn[inIndex]
	return len(in.SignatureScript) > 0 || len(in.Witness) > 0
}

// NetworkParams returns the chain params for the given network name.
func NetworkParams(network string) (*chaincfg.Params, error) {
	switch network {
	case chaincfg.MainNetParams.Name, "mainnet":
		return &chaincfg.MainNetParams, nil
	case chaincfg.TestNet3Params.Name, "testnet":
		return &chaincfg.TestNet3Params, nil
	case chaincfg.RegressionNetParams.Name:
		return &chaincfg.RegressionNetParams, nil
	case chaincfg.SigNetParams.Name:
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %s", network)
	}
}
