package signature

import (
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrInvalidIssuedAt      = errors.New("invalid issued_at")
	ErrPayloadHashMismatch  = errors.New("payload hash mismatch")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrInvalidEncoding      = errors.New("invalid encoding")
	ErrSignerMismatch       = errors.New("recovered signer does not match signer_address")
)

type VerifyResult struct {
	IssuedAt time.Time
	Signer   common.Address
}

// Digest returns the keccak256 digest of the canonical JSON encoding of v.
func Digest(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return ethcrypto.Keccak256(b), nil
}

// VerifyEnvelope recomputes the canonical digest of payload, checks it
// against env.PayloadHash, recovers the secp256k1 signer and compares it to
// env.SignerAddress. Mutating any byte of the canonical payload after
// signing makes this fail.
func VerifyEnvelope(payload any, env Envelope) (VerifyResult, error) {
	if strings.TrimSpace(env.Version) != EnvelopeVersion {
		return VerifyResult{}, ErrUnsupportedAlgorithm
	}
	if strings.ToLower(strings.TrimSpace(env.Algorithm)) != AlgorithmSecp256k1 {
		return VerifyResult{}, ErrUnsupportedAlgorithm
	}
	issuedAtRaw := strings.TrimSpace(env.IssuedAt)
	if issuedAtRaw == "" || !strings.HasSuffix(issuedAtRaw, "Z") {
		return VerifyResult{}, ErrInvalidIssuedAt
	}
	issuedAt, err := time.Parse(time.RFC3339Nano, issuedAtRaw)
	if err != nil {
		return VerifyResult{}, ErrInvalidIssuedAt
	}

	digest, err := Digest(payload)
	if err != nil {
		return VerifyResult{}, err
	}
	claimed, err := decodeLowerHex32(strings.TrimSpace(strings.TrimPrefix(env.PayloadHash, "0x")))
	if err != nil {
		return VerifyResult{}, err
	}
	if subtle.ConstantTimeCompare(digest, claimed) != 1 {
		return VerifyResult{}, ErrPayloadHashMismatch
	}

	sig, err := decodeSignature(env.Signature)
	if err != nil {
		return VerifyResult{}, err
	}
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return VerifyResult{}, ErrInvalidSignature
	}
	recovered := ethcrypto.PubkeyToAddress(*pub)

	if !common.IsHexAddress(env.SignerAddress) {
		return VerifyResult{}, ErrInvalidEncoding
	}
	if recovered != common.HexToAddress(env.SignerAddress) {
		return VerifyResult{}, ErrSignerMismatch
	}
	return VerifyResult{IssuedAt: issuedAt.UTC(), Signer: recovered}, nil
}

func decodeSignature(in string) ([]byte, error) {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(in, "0x"), "0X"))
	sig, err := hex.DecodeString(s)
	if err != nil || len(sig) != 65 {
		return nil, ErrInvalidEncoding
	}
	// Accept both the raw recovery id and the 27/28 wire convention.
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return nil, ErrInvalidEncoding
	}
	return sig, nil
}

func decodeLowerHex32(s string) ([]byte, error) {
	if s == "" || s != strings.ToLower(s) {
		return nil, ErrInvalidEncoding
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return nil, ErrInvalidEncoding
	}
	return b, nil
}
