// Package canonhash defines the canonical serialization every mandate
// signature binds to: json.Marshal bytes of the document hashed with SHA-256.
// Both agents must hash the exact same bytes, so mandates are hashed from
// their typed structs (whose field order is fixed by the struct definition),
// never from ad-hoc maps.
package canonhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// CanonicalSHA256 returns the lowercase hex SHA-256 of the canonical JSON
// encoding of v, along with the encoded bytes.
func CanonicalSHA256(v any) (hexHash string, bytes []byte, err error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), b, nil
}

// SumObject is CanonicalSHA256 with a "sha256:" prefix, used where hashes
// travel next to other hash kinds (webhook receipts, audit rows).
func SumObject(v any) (string, []byte, error) {
	h, b, err := CanonicalSHA256(v)
	if err != nil {
		return "", nil, err
	}
	return "sha256:" + h, b, nil
}

// SumBytes hashes raw bytes that are already in canonical form.
func SumBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
