package protocoltest

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/ports"
	"github.com/tdex-network/tdex-tradeprotocol/pkg/txutil"
)

// Wallet owns one P2WPKH key per asset, funded with a single utxo, and a
// multisig key. It signs for real, so that the txs it contributes to pass
// the validation of the Chain.
type Wallet struct {
	chain       *Chain
	net         *chaincfg.Params
	keys        map[ports.Asset]*btcec.PrivateKey
	multisigKey *btcec.PrivateKey
	utxos       map[ports.Asset][]domain.RawTransactionInput

	lock     sync.Mutex
	reserved map[string][]domain.RawTransactionInput
	released []string
}

// NewWallet returns a wallet funded on the given chain with the given amount
// of each asset.
func NewWallet(
	chain *Chain, net *chaincfg.Params, funds map[ports.Asset]uint64,
) (*Wallet, error) {
	multisigKey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	w := &Wallet{
		chain:       chain,
		net:         net,
		keys:        make(map[ports.Asset]*btcec.PrivateKey),
		multisigKey: multisigKey,
		utxos:       make(map[ports.Asset][]domain.RawTransactionInput),
		reserved:    make(map[string][]domain.RawTransactionInput),
	}

	for _, asset := range []ports.Asset{ports.AssetBtc, ports.AssetBsq} {
		key, err := btcec.NewPrivateKey()
		if err != nil {
			return nil, err
		}
		w.keys[asset] = key
		if funds[asset] <= 0 {
			continue
		}
		script, err := w.script(key)
		if err != nil {
			return nil, err
		}
		w.utxos[asset] = []domain.RawTransactionInput{chain.Fund(script, funds[asset])}
	}
	return w, nil
}

func (w *Wallet) address(key *btcec.PrivateKey) (btcutil.Address, error) {
	return btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(key.PubKey().SerializeCompressed()), w.net,
	)
}

func (w *Wallet) script(key *btcec.PrivateKey) ([]byte, error) {
	addr, err := w.address(key)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(addr)
}

func (w *Wallet) keyForScript(script []byte) (*btcec.PrivateKey, error) {
	for _, key := range w.keys {
		s, err := w.script(key)
		if err != nil {
			return nil, err
		}
		if string(s) == string(script) {
			return key, nil
		}
	}
	return nil, fmt.Errorf("input not owned by wallet")
}

// Released returns the ids of the trades whose inputs have been released.
func (w *Wallet) Released() []string {
	w.lock.Lock()
	defer w.lock.Unlock()
	return append([]string{}, w.released...)
}

// Reserved returns the inputs reserved for the trade.
func (w *Wallet) Reserved(tradeId string) []domain.RawTransactionInput {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.reserved[tradeId]
}

// MultisigPubKey returns the compressed multisig pubkey of the wallet.
func (w *Wallet) MultisigPubKey() []byte {
	return w.multisigKey.PubKey().SerializeCompressed()
}

func (w *Wallet) SelectInputs(
	_ context.Context, asset ports.Asset, target uint64,
) (*ports.InputSelection, error) {
	utxos := w.utxos[asset]
	total, err := domain.SumRawInputs(utxos)
	if err != nil {
		return nil, err
	}
	if total < target {
		return nil, fmt.Errorf("insufficient %s funds: %d < %d", asset, total, target)
	}
	return &ports.InputSelection{Inputs: utxos, Change: total - target}, nil
}

func (w *Wallet) ReserveInputs(
	_ context.Context, tradeId string, inputs []domain.RawTransactionInput,
) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.reserved[tradeId] = inputs
	return nil
}

func (w *Wallet) ReleaseInputs(_ context.Context, tradeId string) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	delete(w.reserved, tradeId)
	w.released = append(w.released, tradeId)
	return nil
}

func (w *Wallet) DeriveAddress(
	_ context.Context, asset ports.Asset, _ string,
) (string, error) {
	addr, err := w.address(w.keys[asset])
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

func (w *Wallet) DeriveMultisigKey(context.Context, string) ([]byte, error) {
	return w.MultisigPubKey(), nil
}

func (w *Wallet) SignInputs(
	_ context.Context, tx *wire.MsgTx,
	prevOuts []domain.RawTransactionInput, inputIndexes []int,
) (*wire.MsgTx, error) {
	if len(prevOuts) != len(tx.TxIn) {
		return nil, fmt.Errorf("prevouts do not match inputs")
	}
	signed := tx.Copy()
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, in := range signed.TxIn {
		fetcher.AddPrevOut(in.PreviousOutPoint, wire.NewTxOut(
			int64(prevOuts[i].Value), prevOuts[i].Script,
		))
	}
	sigHashes := txscript.NewTxSigHashes(signed, fetcher)

	for _, i := range inputIndexes {
		prevOut := prevOuts[i]
		key, err := w.keyForScript(prevOut.Script)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		witness, err := txscript.WitnessSignature(
			signed, sigHashes, i, int64(prevOut.Value), prevOut.Script,
			txscript.SigHashAll, key, true,
		)
		if err != nil {
			return nil, err
		}
		signed.TxIn[i].Witness = witness
	}
	return signed, nil
}

func (w *Wallet) SignMultisigInput(
	_ context.Context, _ string, tx *wire.MsgTx, inIndex int,
	witnessScript []byte, amount int64,
) ([]byte, error) {
	pkScript, err := txutil.P2WSHScript(witnessScript)
	if err != nil {
		return nil, err
	}
	fetcher := txscript.NewCannedPrevOutputFetcher(pkScript, amount)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	return txscript.RawTxInWitnessSignature(
		tx, sigHashes, inIndex, amount, witnessScript, txscript.SigHashAll,
		w.multisigKey,
	)
}

func (w *Wallet) BroadcastTransaction(_ context.Context, tx *wire.MsgTx) (string, error) {
	return w.chain.Broadcast(tx)
}

func (w *Wallet) GetConfirmations(_ context.Context, txid string) (int, error) {
	return w.chain.Confirmations(txid), nil
}

func (w *Wallet) GetAddressBalance(context.Context, string) (uint64, error) {
	return 0, nil
}
