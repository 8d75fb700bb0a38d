// Package wallet is the signing gateway boundary. The protocol core never
// touches key material; it hands canonical payloads to a Signer and attaches
// the returned envelope verbatim.
package wallet

import (
	"context"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/Daehan-Base/awesome-x402-on-base/pkg/signature"
)

// Signer signs canonical mandate payloads and EIP-712 typed structures.
type Signer interface {
	// Address returns the signer identity as a 0x-prefixed hex address.
	Address(ctx context.Context) (string, error)
	// Sign hashes the canonical JSON encoding of payload and returns a
	// detached envelope. The purpose string lands in the envelope context so
	// a signature for one mandate kind cannot be replayed as another.
	Sign(ctx context.Context, payload any, purpose string) (signature.Envelope, error)
	// SignTypedData signs an EIP-712 structure and returns the 65-byte
	// signature as 0x-hex with the 27/28 recovery convention.
	SignTypedData(ctx context.Context, td apitypes.TypedData) (string, error)
}
