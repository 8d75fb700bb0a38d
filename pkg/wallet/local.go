package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/Daehan-Base/awesome-x402-on-base/pkg/signature"
)

// LocalWallet signs with an in-process secp256k1 key. It backs the wallet
// service and the test doubles; nothing else should hold raw keys.
type LocalWallet struct {
	key *ecdsa.PrivateKey
	now func() time.Time
}

func NewLocalWallet(key *ecdsa.PrivateKey) *LocalWallet {
	return &LocalWallet{key: key, now: time.Now}
}

// GenerateLocalWallet creates a wallet with a fresh random key.
func GenerateLocalWallet() (*LocalWallet, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate wallet key: %w", err)
	}
	return NewLocalWallet(key), nil
}

// LocalWalletFromHex loads a wallet from a hex private key, with or without
// the 0x prefix.
func LocalWalletFromHex(privKeyHex string) (*LocalWallet, error) {
	pk := strings.TrimPrefix(strings.TrimSpace(privKeyHex), "0x")
	if pk == "" {
		return nil, fmt.Errorf("empty private key")
	}
	key, err := ethcrypto.HexToECDSA(pk)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}
	return NewLocalWallet(key), nil
}

// WithClock pins the wallet's clock; tests use it for stable issued_at.
func (w *LocalWallet) WithClock(now func() time.Time) *LocalWallet {
	w.now = now
	return w
}

func (w *LocalWallet) Address(context.Context) (string, error) {
	return ethcrypto.PubkeyToAddress(w.key.PublicKey).Hex(), nil
}

func (w *LocalWallet) Sign(ctx context.Context, payload any, purpose string) (signature.Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return signature.Envelope{}, fmt.Errorf("encode payload: %w", err)
	}
	return w.SignBytes(ctx, b, purpose)
}

// SignBytes signs canonical bytes as-is. The wallet service uses this so the
// signed bytes are exactly what the caller serialized, not a re-encoding.
func (w *LocalWallet) SignBytes(_ context.Context, b []byte, purpose string) (signature.Envelope, error) {
	digest := ethcrypto.Keccak256(b)
	sig, err := ethcrypto.Sign(digest, w.key)
	if err != nil {
		return signature.Envelope{}, fmt.Errorf("sign payload: %w", err)
	}
	return signature.Envelope{
		Version:       signature.EnvelopeVersion,
		Algorithm:     signature.AlgorithmSecp256k1,
		SignerAddress: ethcrypto.PubkeyToAddress(w.key.PublicKey).Hex(),
		Signature:     "0x" + hex.EncodeToString(sig),
		PayloadHash:   hex.EncodeToString(digest),
		IssuedAt:      w.now().UTC().Format(time.RFC3339Nano),
		Context:       strings.TrimSpace(purpose),
	}, nil
}

func (w *LocalWallet) SignTypedData(_ context.Context, td apitypes.TypedData) (string, error) {
	digest, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return "", fmt.Errorf("hash typed data: %w", err)
	}
	sig, err := ethcrypto.Sign(digest, w.key)
	if err != nil {
		return "", fmt.Errorf("sign typed data: %w", err)
	}
	// On-chain verifiers expect the legacy 27/28 recovery byte.
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}
