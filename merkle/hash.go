package merkle

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	"golang.org/x/crypto/sha3"
	"golang.org/x/xerrors"
)

// HashLength is the byte width of all digests on the network.
const HashLength = 32

// Hash is a 32-byte Keccak-256 digest. It is rendered as a 0x-prefixed hex
// string on all external interfaces.
type Hash [HashLength]byte

// Keccak256 computes the legacy Keccak-256 digest (the Ethereum variant, not
// NIST SHA3) over the concatenation of the given byte slices.
func Keccak256(data ...[]byte) Hash {
	var h Hash
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b) // nolint:errcheck // hash.Hash never errors
	}
	d.Sum(h[:0])
	return h
}

// combineHashes derives a parent digest from two child digests.
func combineHashes(left, right Hash) Hash {
	return Keccak256(left[:], right[:])
}

// HexToHash parses a 0x-prefixed (or bare) hex string into a Hash.
func HexToHash(s string) (Hash, error) {
	var h Hash
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, xerrors.Errorf("decoding hash hex: %w", err)
	}
	if len(b) != HashLength {
		return Hash{}, xerrors.Errorf("invalid hash length %d, expected %d", len(b), HashLength)
	}
	copy(h[:], b)
	return h, nil
}

func (h Hash) Hex() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) String() string {
	return h.Hex()
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Hex())
}

func (h *Hash) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := HexToHash(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
