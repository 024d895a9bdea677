package txutil_test

import (
	"crypto/sha256"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-tradeprotocol/pkg/txutil"
)

func TestVerifyWitnessSignature(t *testing.T) {
	buyerKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	sellerKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	buyerPub := buyerKey.PubKey().SerializeCompressed()
	sellerPub := sellerKey.PubKey().SerializeCompressed()

	script, err := txutil.MultisigWitnessScript(buyerPub, sellerPub)
	require.NoError(t, err)

	amount := int64(130_005_000)
	tx := newSpendingTx(t)
	sig := signWitnessInput(t, tx, script, amount, buyerKey, txscript.SigHashAll)

	t.Run("valid", func(t *testing.T) {
		err := txutil.VerifyWitnessSignature(tx, 0, script, amount, buyerPub, sig)
		require.NoError(t, err)
	})

	t.Run("wrong_pubkey", func(t *testing.T) {
		err := txutil.VerifyWitnessSignature(tx, 0, script, amount, sellerPub, sig)
		require.ErrorIs(t, err, txutil.ErrInvalidSignature)
	})

	t.Run("wrong_amount", func(t *testing.T) {
		err := txutil.VerifyWitnessSignature(tx, 0, script, amount-1, buyerPub, sig)
		require.ErrorIs(t, err, txutil.ErrInvalidSignature)
	})

	t.Run("tampered_output", func(t *testing.T) {
		tampered := tx.Copy()
		tampered.TxOut[0].Value++
		err := txutil.VerifyWitnessSignature(tampered, 0, script, amount, buyerPub, sig)
		require.ErrorIs(t, err, txutil.ErrInvalidSignature)
	})

	t.Run("missing_sighash_type", func(t *testing.T) {
		err := txutil.VerifyWitnessSignature(tx, 0, script, amount, buyerPub, []byte{1})
		require.ErrorIs(t, err, txutil.ErrMissingSighashType)
	})

	hashTypes := []struct {
		name     string
		hashType txscript.SigHashType
	}{
		{"sighash_none", txscript.SigHashNone},
		{"sighash_single", txscript.SigHashSingle},
		{"sighash_all_anyone_can_pay", txscript.SigHashAll | txscript.SigHashAnyOneCanPay},
	}
	for _, tt := range hashTypes {
		t.Run(tt.name, func(t *testing.T) {
			sig := signWitnessInput(t, tx, script, amount, buyerKey, tt.hashType)
			err := txutil.VerifyWitnessSignature(tx, 0, script, amount, buyerPub, sig)
			require.ErrorIs(t, err, txutil.ErrUnsupportedSighashType)
		})
	}

	t.Run("high_s", func(t *testing.T) {
		malleated := append(toHighS(t, sig[:len(sig)-1]), byte(txscript.SigHashAll))
		err := txutil.VerifyWitnessSignature(tx, 0, script, amount, buyerPub, malleated)
		require.ErrorIs(t, err, txutil.ErrNonCanonicalSignature)
	})
}

func TestMultisigWitnessScript(t *testing.T) {
	buyerKey, _ := btcec.NewPrivateKey()
	sellerKey, _ := btcec.NewPrivateKey()

	_, err := txutil.MultisigWitnessScript([]byte{1, 2, 3}, sellerKey.PubKey().SerializeCompressed())
	require.Error(t, err)

	script, err := txutil.MultisigWitnessScript(
		buyerKey.PubKey().SerializeCompressed(), sellerKey.PubKey().SerializeCompressed(),
	)
	require.NoError(t, err)

	class, addrs, required, err := txscript.ExtractPkScriptAddrs(script, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	require.Equal(t, txscript.MultiSigTy, class)
	require.Len(t, addrs, 2)
	require.Equal(t, 2, required)

	pkScript, err := txutil.P2WSHScript(script)
	require.NoError(t, err)
	require.True(t, txscript.IsPayToWitnessScriptHash(pkScript))
}

func TestVerifyHashSignature(t *testing.T) {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	hash := sha256.Sum256([]byte("contract"))
	sig := ecdsa.Sign(key, hash[:]).Serialize()

	require.NoError(t, txutil.VerifyHashSignature(key.PubKey().SerializeCompressed(), hash[:], sig))

	other := sha256.Sum256([]byte("other contract"))
	require.ErrorIs(
		t,
		txutil.VerifyHashSignature(key.PubKey().SerializeCompressed(), other[:], sig),
		txutil.ErrInvalidSignature,
	)
}

func newSpendingTx(t *testing.T) *wire.MsgTx {
	t.Helper()

	hash, err := chainhash.NewHashFromStr(
		"0d3e2a6a5bcbd1d9c6b0b6b5d4f4b3f3a6a3c2a1d1c0b0a09080706050403020",
	)
	require.NoError(t, err)

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(115_000_000, []byte{0x00, 0x14}))
	tx.AddTxOut(wire.NewTxOut(15_000_000, []byte{0x00, 0x14}))
	return tx
}

func signWitnessInput(
	t *testing.T, tx *wire.MsgTx, script []byte, amount int64,
	key *btcec.PrivateKey, hashType txscript.SigHashType,
) []byte {
	t.Helper()

	pkScript, err := txutil.P2WSHScript(script)
	require.NoError(t, err)
	fetcher := txscript.NewCannedPrevOutputFetcher(pkScript, amount)
	hash, err := txscript.CalcWitnessSigHash(
		script, txscript.NewTxSigHashes(tx, fetcher), hashType, tx, 0, amount,
	)
	require.NoError(t, err)
	sig := ecdsa.Sign(key, hash).Serialize()
	return append(sig, byte(hashType))
}

// toHighS returns the DER encoding of the same signature with S replaced by
// its complement N-S, which is valid as well.
func toHighS(t *testing.T, der []byte) []byte {
	t.Helper()

	rLen := int(der[3])
	r := der[4 : 4+rLen]
	sLen := int(der[5+rLen])
	s := new(big.Int).SetBytes(der[6+rLen : 6+rLen+sLen])
	s.Sub(btcec.S256().Params().N, s)

	sBytes := s.Bytes()
	if sBytes[0]&0x80 != 0 {
		sBytes = append([]byte{0}, sBytes...)
	}
	body := append([]byte{0x02, byte(len(r))}, r...)
	body = append(body, 0x02, byte(len(sBytes)))
	body = append(body, sBytes...)
	return append([]byte{0x30, byte(len(body))}, body...)
}
