package ports

import (
	"context"

	"github.com/btcsuite/btcd/wire"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
)

// Asset is the asset a set of inputs is selected for. BSQ is a colored coin
// on top of bitcoin, so BSQ inputs are plain bitcoin outputs tracked by a
// dedicated wallet.
type Asset int

const (
	AssetBtc Asset = iota
	AssetBsq
)

func (a Asset) String() string {
	if a == AssetBsq {
		return "BSQ"
	}
	return "BTC"
}

// InputSelection is the result of a coin selection: the selected inputs and
// the resulting change.
type InputSelection struct {
	Inputs []domain.RawTransactionInput
	Change uint64
}

// Wallet is the collaborator owning the keys of the local party. Signing is
// delegated entirely to it.
type Wallet interface {
	// SelectInputs selects unspents of the given asset whose total covers the
	// target amount.
	SelectInputs(
		ctx context.Context, asset Asset, targetAmount uint64,
	) (*InputSelection, error)
	// ReserveInputs locks the given inputs for the trade so that they can't be
	// selected by any other trade.
	ReserveInputs(
		ctx context.Context, tradeId string, inputs []domain.RawTransactionInput,
	) error
	// ReleaseInputs unlocks the inputs reserved for the trade.
	ReleaseInputs(ctx context.Context, tradeId string) error
	// DeriveAddress returns a new address of the given asset for the trade.
	DeriveAddress(ctx context.Context, asset Asset, tradeId string) (string, error)
	// DeriveMultisigKey returns the compressed pubkey of a fresh key that the
	// local party uses for the 2-of-2 deposit output of the trade.
	DeriveMultisigKey(ctx context.Context, tradeId string) ([]byte, error)
	// SignInputs signs only the inputs of the tx at the given indexes, that
	// are expected to be owned by the wallet.
	SignInputs(
		ctx context.Context, tx *wire.MsgTx,
		prevOuts []domain.RawTransactionInput, inputIndexes []int,
	) (*wire.MsgTx, error)
	// SignMultisigInput returns the DER signature (with sighash type) of the
	// multisig key of the trade for the given segwit input.
	SignMultisigInput(
		ctx context.Context, tradeId string, tx *wire.MsgTx, inIndex int,
		witnessScript []byte, amount int64,
	) ([]byte, error)
	// BroadcastTransaction publishes the tx and returns its id.
	BroadcastTransaction(ctx context.Context, tx *wire.MsgTx) (string, error)
	// GetConfirmations returns the confirmation depth of the tx, 0 if still
	// in mempool.
	GetConfirmations(ctx context.Context, txid string) (int, error)
	// GetAddressBalance returns the confirmed and unconfirmed balance of an
	// address.
	GetAddressBalance(ctx context.Context, address string) (uint64, error)
}
