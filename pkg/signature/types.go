package signature

// Envelope is a detached signature over the canonical JSON encoding of a
// mandate document. The digest is keccak256 of the canonical bytes and the
// signature is recoverable secp256k1, so the signer identity is the
// recovered Ethereum address rather than an attached public key.
type Envelope struct {
	Version       string `json:"version"`
	Algorithm     string `json:"algorithm"`
	SignerAddress string `json:"signer_address"`
	Signature     string `json:"signature"`
	PayloadHash   string `json:"payload_hash"`
	IssuedAt      string `json:"issued_at"`
	Context       string `json:"context,omitempty"`
}

const (
	EnvelopeVersion    = "sig-eth-v1"
	AlgorithmSecp256k1 = "eth-secp256k1"
)
