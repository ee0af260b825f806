package common

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Hash is a 32-byte SHA3-256 digest, used uniformly across the NMT (C5),
// commit-reveal beacon (C14) and work-template identity (C15) so that the
// domain-separation convention lives in exactly one place.
type Hash [32]byte

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool { return h == Hash{} }

// Bytes returns h as a byte slice.
func (h Hash) Bytes() []byte { return h[:] }

// Hex returns h as a "0x"-prefixed lowercase hex string.
func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

// HashFromHex parses a "0x"-prefixed (or bare) hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(h) {
		return Hash{}, NewValidationError("common.HashFromHex", errBadHexLength)
	}
	copy(h[:], b)
	return h, nil
}

// MarshalJSON renders h as a quoted hex string, matching go-ethereum's
// common.Hash wire format.
func (h Hash) MarshalJSON() ([]byte, error) {
	return []byte(`"` + h.Hex() + `"`), nil
}

// UnmarshalJSON parses a quoted hex string into h.
func (h *Hash) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := HashFromHex(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

type hashError struct{ msg string }

func (e hashError) Error() string { return e.msg }

var errBadHexLength = hashError{"hash must be exactly 32 bytes of hex"}

// Sum256 computes a tagged SHA3-256 digest: H(tag ‖ parts...). Tags must be
// fixed at genesis and never reused across domains.
func Sum256(tag byte, parts ...[]byte) Hash {
	h := sha3.New256()
	h.Write([]byte{tag})
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	h.Sum(out[:0])
	return out
}

// AppendUvarint appends the unsigned varint encoding of v to dst, matching
// the NMT leaf encoding's uvarint(ns) field.
func AppendUvarint(dst []byte, v uint64) []byte {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	return append(dst, buf[:n]...)
}
