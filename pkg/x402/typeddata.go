package x402

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/Daehan-Base/awesome-x402-on-base/pkg/ap2"
)

// AuthorizationValidity is the window granted to each transfer
// authorization: valid from signing time until an hour later.
const AuthorizationValidity = time.Hour

// TokenDomain identifies the EIP-712 signing domain of the stablecoin
// contract. Name and version come from the token contract itself.
type TokenDomain struct {
	Contract     string
	ChainID      int64
	TokenName    string
	TokenVersion string
}

// NewNonce draws a fresh 32-byte nonce. Every authorization gets its own;
// a collision would allow replay, so the source must be crypto/rand.
func NewNonce() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("draw nonce: %w", err)
	}
	return "0x" + hex.EncodeToString(b[:]), nil
}

// NewAuthorization prepares an unsigned EIP-3009 authorization for the given
// transfer, valid from now until now+AuthorizationValidity.
func NewAuthorization(from, to string, valueMicro int64, now time.Time) (Authorization, error) {
	nonce, err := NewNonce()
	if err != nil {
		return Authorization{}, err
	}
	nowUTC := now.UTC()
	return Authorization{
		From:        from,
		To:          to,
		Value:       strconv.FormatInt(valueMicro, 10),
		ValidAfter:  strconv.FormatInt(nowUTC.Unix(), 10),
		ValidBefore: strconv.FormatInt(nowUTC.Add(AuthorizationValidity).Unix(), 10),
		Nonce:       nonce,
	}, nil
}

// TransferWithAuthTypedData renders the authorization as the EIP-712 typed
// structure the wallet signs (EIP-3009 TransferWithAuthorization).
func TransferWithAuthTypedData(auth Authorization, domain TokenDomain) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.TokenName,
			Version:           domain.TokenVersion,
			ChainId:           math.NewHexOrDecimal256(domain.ChainID),
			VerifyingContract: domain.Contract,
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From,
			"to":          auth.To,
			"value":       auth.Value,
			"validAfter":  auth.ValidAfter,
			"validBefore": auth.ValidBefore,
			"nonce":       auth.Nonce,
		},
	}
}

// CheckWindow enforces validAfter <= now <= validBefore at the point of use.
func CheckWindow(auth Authorization, now time.Time) error {
	after, err := strconv.ParseInt(auth.ValidAfter, 10, 64)
	if err != nil {
		return fmt.Errorf("bad validAfter %q", auth.ValidAfter)
	}
	before, err := strconv.ParseInt(auth.ValidBefore, 10, 64)
	if err != nil {
		return fmt.Errorf("bad validBefore %q", auth.ValidBefore)
	}
	ts := now.UTC().Unix()
	if ts < after {
		return fmt.Errorf("authorization not yet valid (validAfter %d)", after)
	}
	if ts > before {
		return fmt.Errorf("%w: authorization validBefore %d", ap2.ErrExpiredArtifact, before)
	}
	return nil
}
