// Package ledger talks to the settlement ledger: it derives escrow
// account addresses, signs operations with the custodial backend key,
// and submits them to a fullnode, blocking until each transaction
// reaches a terminal state.
package ledger

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Address is a 32-byte account address on the settlement ledger.
type Address [32]byte

// Derivation scheme bytes appended to the hash preimage. They keep
// authentication-key derivation and seeded account derivation in
// disjoint hash domains.
const (
	schemeEd25519 = 0x00
	schemeSeeded  = 0xFF
)

// ErrInvalidAddress is returned when parsing a malformed address string.
var ErrInvalidAddress = errors.New("ledger: invalid address")

// DeriveEscrowAddress maps a market ID to its escrow account address:
// SHA3-256(deployer ‖ UTF-8(marketID) ‖ 0xFF). Pure and deterministic —
// any holder of the deployer address recomputes the same escrow address
// without querying the ledger or the store.
func DeriveEscrowAddress(deployer Address, marketID string) Address {
	h := sha3.New256()
	h.Write(deployer[:])
	h.Write([]byte(marketID))
	h.Write([]byte{schemeSeeded})

	var a Address
	copy(a[:], h.Sum(nil))
	return a
}

// AddressFromHex parses a 0x-prefixed or bare 64-character hex address.
func AddressFromHex(s string) (Address, error) {
	s = strings.TrimPrefix(s, "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %s", ErrInvalidAddress, s)
	}
	if len(raw) != len(Address{}) {
		return Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, len(Address{}), len(raw))
	}
	var a Address
	copy(a[:], raw)
	return a, nil
}

// Hex returns the 0x-prefixed lowercase hex form.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) String() string {
	return a.Hex()
}
