package hasher

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// Digest is a computed hash value together with the algorithm that produced it.
type Digest struct {
	algorithm string
	value     []byte
}

func newDigest(algorithm string, value []byte) Digest {
	v := make([]byte, len(value))
	copy(v, value)
	return Digest{algorithm: algorithm, value: v}
}

// Algorithm returns the name of the hash algorithm.
func (d Digest) Algorithm() string {
	return d.algorithm
}

// Value returns a copy of the raw digest bytes.
func (d Digest) Value() []byte {
	v := make([]byte, len(d.value))
	copy(v, d.value)
	return v
}

// Hex returns the lowercase hex encoding of the digest.
func (d Digest) Hex() string {
	return hex.EncodeToString(d.value)
}

func (d Digest) String() string {
	return fmt.Sprintf("%s:%s", d.algorithm, d.Hex())
}

// Equal reports whether both digests use the same algorithm and value.
func (d Digest) Equal(other Digest) bool {
	if d.algorithm != other.algorithm {
		return false
	}
	return subtle.ConstantTimeCompare(d.value, other.value) == 1
}

// SplitStored separates a stored hash written by String into its algorithm
// and hex value. Untagged values yield an empty algorithm.
func SplitStored(stored string) (algorithm, value string) {
	s := strings.TrimSpace(stored)
	if alg, v, ok := strings.Cut(s, ":"); ok && Supported(alg) {
		return alg, v
	}
	return "", s
}

// EqualHex compares the digest with a hash as stored on a ledger, either
// bare hex or tagged "algorithm:hex". A tag naming another algorithm never
// matches. An optional "0x" prefix and letter case are ignored.
func (d Digest) EqualHex(stored string) bool {
	alg, value := SplitStored(stored)
	if alg != "" && alg != d.algorithm {
		return false
	}
	s := strings.ToLower(strings.TrimPrefix(value, "0x"))
	raw, err := hex.DecodeString(s)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(d.value, raw) == 1
}
