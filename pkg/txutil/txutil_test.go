package txutil_test

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-tradeprotocol/pkg/txutil"
)

func TestEqualUnsigned(t *testing.T) {
	tx := newSpendingTx(t)
	signed := tx.Copy()
	signed.TxIn[0].Witness = wire.TxWitness{{1, 2, 3}, {4, 5}}
	signed.TxIn[0].SignatureScript = []byte{0x16, 0x00}

	equal, err := txutil.EqualUnsigned(tx, signed)
	require.NoError(t, err)
	require.True(t, equal)
	require.True(t, txutil.IsSigned(signed, 0))
	require.False(t, txutil.IsSigned(txutil.Strip(signed), 0))
	require.False(t, txutil.IsSigned(signed, 1))

	mutated := signed.Copy()
	mutated.TxOut[1].Value--
	equal, err = txutil.EqualUnsigned(tx, mutated)
	require.NoError(t, err)
	require.False(t, equal)
}

func TestSerialize(t *testing.T) {
	tx := newSpendingTx(t)
	tx.TxIn[0].Witness = wire.TxWitness{{1}}

	buf, err := txutil.Serialize(tx)
	require.NoError(t, err)

	parsed, err := txutil.Deserialize(buf)
	require.NoError(t, err)
	require.Equal(t, tx.TxHash(), parsed.TxHash())
	require.Equal(t, uint64(130_000_000), txutil.SumOutputs(parsed))

	_, err = txutil.Deserialize([]byte{0x01})
	require.Error(t, err)
}

func TestAddressScript(t *testing.T) {
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		make([]byte, 20), &chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)

	script, err := txutil.AddressScript(addr.EncodeAddress(), &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	require.Len(t, script, 22)

	_, err = txutil.AddressScript("notanaddress", &chaincfg.RegressionNetParams)
	require.Error(t, err)

	_, err = txutil.AddressScript(addr.EncodeAddress(), &chaincfg.MainNetParams)
	require.Error(t, err)

	params, err := txutil.NetworkParams("regtest")
	require.NoError(t, err)
	require.Equal(t, &chaincfg.RegressionNetParams, params)
}
