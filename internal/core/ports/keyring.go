package ports

import "context"

// KeyRing holds the identity key of the local party. Its pubkey is the
// pubkey ring peers bind to, and its signatures authenticate contracts.
type KeyRing interface {
	PubKey() []byte
	// Sign returns a DER encoded ecdsa signature of the given 32-byte hash.
	Sign(ctx context.Context, hash []byte) ([]byte, error)
}
