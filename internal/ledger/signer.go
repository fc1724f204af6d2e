package ledger

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Signer holds the custodial backend key that executes ledger operations
// on behalf of participants. End users authorize joins off-chain; only
// this key ever signs transactions. Keeping it here, behind the Client
// interface, means the orchestrator core never touches key material.
type Signer struct {
	priv ed25519.PrivateKey
	addr Address
}

// NewSigner creates a signer from a 0x-prefixed hex ed25519 seed.
func NewSigner(seedHex string) (*Signer, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(seedHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("ledger: decode private key: %w", err)
	}
	if len(raw) != ed25519.SeedSize {
		return nil, fmt.Errorf("ledger: private key must be %d bytes, got %d", ed25519.SeedSize, len(raw))
	}

	priv := ed25519.NewKeyFromSeed(raw)

	// Account address = SHA3-256(pubkey ‖ 0x00).
	h := sha3.New256()
	h.Write(priv.Public().(ed25519.PublicKey))
	h.Write([]byte{schemeEd25519})

	var addr Address
	copy(addr[:], h.Sum(nil))

	return &Signer{priv: priv, addr: addr}, nil
}

// Address returns the signer's on-ledger account address. This is the
// deployer account that namespaces escrow address derivation.
func (s *Signer) Address() Address {
	return s.addr
}

// PublicKeyHex returns the 0x-prefixed hex public key.
func (s *Signer) PublicKeyHex() string {
	return "0x" + hex.EncodeToString(s.priv.Public().(ed25519.PublicKey))
}

// Sign signs the SHA3-256 digest of message.
func (s *Signer) Sign(message []byte) []byte {
	digest := sha3.Sum256(message)
	return ed25519.Sign(s.priv, digest[:])
}
