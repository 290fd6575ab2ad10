// Package hasher computes deterministic fingerprints of certificate content.
//
// Certificate fields are canonicalized (trimmed, dates reduced to ISO-8601
// date-only form, fixed key order) and serialized before hashing, so two
// logically identical certificates always produce byte-identical digests.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

const (
	AlgorithmSHA256     = "sha256"
	AlgorithmSHA3256    = "sha3-256"
	AlgorithmBLAKE2b256 = "blake2b-256"
)

// DefaultAlgorithm is used when no algorithm is configured.
const DefaultAlgorithm = AlgorithmSHA256

type hashFactory func() (hash.Hash, error)

var factories = map[string]hashFactory{
	AlgorithmSHA256: func() (hash.Hash, error) {
		return sha256.New(), nil
	},
	AlgorithmSHA3256: func() (hash.Hash, error) {
		return sha3.New256(), nil
	},
	AlgorithmBLAKE2b256: func() (hash.Hash, error) {
		return blake2b.New256(nil)
	},
}

// Supported reports whether algorithm is a known digest algorithm.
func Supported(algorithm string) bool {
	_, ok := factories[algorithm]
	return ok
}

// Fields is the set of certificate attributes covered by the content hash.
type Fields struct {
	ID             string
	Recipient      string
	Issuer         string
	Course         string
	IssueDate      string
	AdditionalInfo string
}

// canonicalFields fixes the serialized key order.
type canonicalFields struct {
	ID             canonicalString `json:"id"`
	Recipient      canonicalString `json:"recipient"`
	Issuer         canonicalString `json:"issuer"`
	Course         canonicalString `json:"course"`
	IssueDate      canonicalString `json:"issueDate"`
	AdditionalInfo canonicalString `json:"additionalInfo"`
}

// canonicalString serializes text that is not valid UTF-8 as {"hex": ...}.
// encoding/json would otherwise map every invalid byte to U+FFFD.
type canonicalString string

func (s canonicalString) MarshalJSON() ([]byte, error) {
	if utf8.ValidString(string(s)) {
		return json.Marshal(string(s))
	}
	return json.Marshal(struct {
		Hex string `json:"hex"`
	}{Hex: hex.EncodeToString([]byte(s))})
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006/01/02",
	"02-01-2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// NormalizeDate converts a date in any accepted layout to YYYY-MM-DD.
func NormalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("unrecognized date %q", s)
}

// Canonicalize trims every field and normalizes the issue date. A date that
// does not parse is kept as trimmed text so it still hashes deterministically.
func Canonicalize(f Fields) Fields {
	c := Fields{
		ID:             strings.TrimSpace(f.ID),
		Recipient:      strings.TrimSpace(f.Recipient),
		Issuer:         strings.TrimSpace(f.Issuer),
		Course:         strings.TrimSpace(f.Course),
		IssueDate:      strings.TrimSpace(f.IssueDate),
		AdditionalInfo: strings.TrimSpace(f.AdditionalInfo),
	}
	if d, err := NormalizeDate(c.IssueDate); err == nil {
		c.IssueDate = d
	}
	return c
}

// Serialize returns the canonical byte form of f that Hash digests.
func Serialize(f Fields) []byte {
	c := Canonicalize(f)
	b, err := json.Marshal(canonicalFields{
		ID:             canonicalString(c.ID),
		Recipient:      canonicalString(c.Recipient),
		Issuer:         canonicalString(c.Issuer),
		Course:         canonicalString(c.Course),
		IssueDate:      canonicalString(c.IssueDate),
		AdditionalInfo: canonicalString(c.AdditionalInfo),
	})
	if err != nil {
		// marshalling a struct of strings cannot fail
		panic(fmt.Sprintf("hasher: serialize fields: %v", err))
	}
	return b
}

// Hasher computes digests with a fixed algorithm. It holds no mutable state
// and is safe for concurrent use.
type Hasher struct {
	algorithm string
	factory   hashFactory
}

// New returns a Hasher for the named algorithm. An empty name selects
// DefaultAlgorithm.
func New(algorithm string) (*Hasher, error) {
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	factory, ok := factories[algorithm]
	if !ok {
		return nil, fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
	if _, err := factory(); err != nil {
		return nil, fmt.Errorf("failed to initialize %s: %w", algorithm, err)
	}
	return &Hasher{algorithm: algorithm, factory: factory}, nil
}

// Algorithm returns the configured algorithm name.
func (h *Hasher) Algorithm() string {
	return h.algorithm
}

// Hash digests the canonical serialization of f.
func (h *Hasher) Hash(f Fields) Digest {
	return h.HashBytes(Serialize(f))
}

// HashBytes digests raw content such as an uploaded certificate file.
func (h *Hasher) HashBytes(b []byte) Digest {
	hh, _ := h.factory() // validated in New
	hh.Write(b)
	return newDigest(h.algorithm, hh.Sum(nil))
}
