package txutil

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrInvalidSignature ...
	ErrInvalidSignature = errors.New("signature verification failed")
	// ErrMissingSighashType ...
	ErrMissingSighashType = errors.New("signature is missing the sighash type")
	// ErrUnsupportedSighashType ...
	ErrUnsupportedSighashType = errors.New("signature must commit to all inputs and outputs")
	// ErrNonCanonicalSignature ...
	ErrNonCanonicalSignature = errors.New("signature is not strict DER with low S")
)

// MultisigWitnessScript returns the 2-of-2 witness script locking the
// deposit. The buyer's key always comes first so that both parties derive
// the same script.
func MultisigWitnessScript(buyerPubKey, sellerPubKey []byte) ([]byte, error) {
	if _, err := btcec.ParsePubKey(buyerPubKey); err != nil {
		return nil, fmt.Errorf("invalid buyer multisig pubkey: %w", err)
	}
	if _, err := btcec.ParsePubKey(sellerPubKey); err != nil {
		return nil, fmt.Errorf("invalid seller multisig pubkey: %w", err)
	}

	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_2).
		AddData(buyerPubKey).
		AddData(sellerPubKey).
		AddOp(txscript.OP_2).
		AddOp(txscript.OP_CHECKMULTISIG).
		Script()
}

// P2WSHScript returns the output script paying to the given witness script.
func P2WSHScript(witnessScript []byte) ([]byte, error) {
	hash := sha256.Sum256(witnessScript)
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(hash[:]).
		Script()
}

// MultisigWitness returns the witness spending a 2-of-2 output.
func MultisigWitness(buyerSig, sellerSig, witnessScript []byte) wire.TxWitness {
	return wire.TxWitness{nil, buyerSig, sellerSig, witnessScript}
}

// VerifyWitnessSignature verifies the signature (with trailing sighash type)
// of a segwit v0 input spending the given witness script. Only SIGHASH_ALL
// signatures in canonical low-S DER form are accepted.
func VerifyWitnessSignature(
	tx *wire.MsgTx, inIndex int, witnessScript []byte, amount int64,
	pubkey, sig []byte,
) error {
	if len(sig) <= 1 {
		return ErrMissingSighashType
	}
	hashType := txscript.SigHashType(sig[len(sig)-1])
	if hashType != txscript.SigHashAll {
		return ErrUnsupportedSighashType
	}
	der := sig[:len(sig)-1]
	parsed, err := ecdsa.ParseDERSignature(der)
	if err != nil || !bytes.Equal(parsed.Serialize(), der) {
		return ErrNonCanonicalSignature
	}

	pkScript, err := P2WSHScript(witnessScript)
	if err != nil {
		return err
	}
	fetcher := txscript.NewCannedPrevOutputFetcher(pkScript, amount)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	hash, err := txscript.CalcWitnessSigHash(
		witnessScript, sigHashes, hashType, tx, inIndex, amount,
	)
	if err != nil {
		return err
	}
	return VerifyHashSignature(pubkey, hash, der)
}

// VerifyHashSignature verifies a DER encoded ecdsa signature of the given
// hash against the given compressed pubkey.
func VerifyHashSignature(pubkey, hash, sig []byte) error {
	pub, err := btcec.ParsePubKey(pubkey)
	if err != nil {
		return fmt.Errorf("invalid pubkey: %w", err)
	}
	signature, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}
	if !signature.Verify(hash, pub) {
		return ErrInvalidSignature
	}
	return nil
}
