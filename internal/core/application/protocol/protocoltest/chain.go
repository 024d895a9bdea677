// Package protocoltest provides in-memory collaborators to run whole trades
// between two protocol services in tests: a chain validating the scripts of
// the broadcast txs, a wallet that signs for real, and a network routing
// envelopes synchronously between services.
package protocoltest

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
)

// Chain keeps a utxo set and validates every input of the broadcast txs
// against it with the script engine.
type Chain struct {
	lock  sync.Mutex
	seq   uint64
	utxos map[wire.OutPoint]*wire.TxOut
	txs   map[string]*wire.MsgTx
	confs map[string]int
}

func NewChain() *Chain {
	return &Chain{
		utxos: make(map[wire.OutPoint]*wire.TxOut),
		txs:   make(map[string]*wire.MsgTx),
		confs: make(map[string]int),
	}
}

// Fund adds a new utxo locked by the given script.
func (c *Chain) Fund(pkScript []byte, value uint64) domain.RawTransactionInput {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.seq++
	hash := chainhash.HashH(append([]byte(fmt.Sprintf("%d", c.seq)), pkScript...))
	c.utxos[*wire.NewOutPoint(&hash, 0)] = wire.NewTxOut(int64(value), pkScript)
	return domain.RawTransactionInput{
		Txid:   hash.String(),
		Index:  0,
		Value:  value,
		Script: pkScript,
		Segwit: true,
	}
}

// Broadcast validates the tx and applies it to the utxo set. Broadcasting a
// tx already known is a no-op.
func (c *Chain) Broadcast(tx *wire.MsgTx) (string, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	txid := tx.TxHash().String()
	if _, ok := c.txs[txid]; ok {
		return txid, nil
	}

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for _, in := range tx.TxIn {
		prevOut, ok := c.utxos[in.PreviousOutPoint]
		if !ok {
			return "", fmt.Errorf("missing or spent input %s", in.PreviousOutPoint)
		}
		fetcher.AddPrevOut(in.PreviousOutPoint, prevOut)
	}
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	for i, in := range tx.TxIn {
		prevOut := c.utxos[in.PreviousOutPoint]
		engine, err := txscript.NewEngine(
			prevOut.PkScript, tx, i, txscript.StandardVerifyFlags, nil,
			sigHashes, prevOut.Value, fetcher,
		)
		if err != nil {
			return "", err
		}
		if err := engine.Execute(); err != nil {
			return "", fmt.Errorf("invalid input %d: %w", i, err)
		}
	}

	for _, in := range tx.TxIn {
		delete(c.utxos, in.PreviousOutPoint)
	}
	hash := tx.TxHash()
	for i, out := range tx.TxOut {
		c.utxos[*wire.NewOutPoint(&hash, uint32(i))] = out
	}
	c.txs[txid] = tx
	return txid, nil
}

// Confirm adds a confirmation to the given tx.
func (c *Chain) Confirm(txid string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.confs[txid]++
}

func (c *Chain) Confirmations(txid string) int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.confs[txid]
}

// Tx returns the broadcast tx with the given id.
func (c *Chain) Tx(txid string) (*wire.MsgTx, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	tx, ok := c.txs[txid]
	return tx, ok
}

// TxCount returns the number of broadcast txs.
func (c *Chain) TxCount() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.txs)
}
