package oid

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Hash is the content hash of a commit or a resource version. It is the
// hex encoding of a SHA-256 digest and is always 64 characters long once
// non-zero.
type Hash string

// ZeroHash is the empty hash, used as the sentinel "no parent" /
// "no previous version" value.
const ZeroHash Hash = ""

// ComputeHash derives a content hash from the given parts. Parts are
// joined with a NUL separator so that "ab"+"c" cannot collide with
// "a"+"bc". Callers are responsible for sorting any part that must be
// order-independent (e.g. a change set) before calling this.
func ComputeHash(parts ...string) Hash {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// SortedJoin canonicalizes a slice of strings by sorting it, so that
// hash inputs built from unordered sets (e.g. changed-resource lists)
// are deterministic regardless of the order changes were buffered in.
func SortedJoin(items []string) string {
	cp := make([]string, len(items))
	copy(cp, items)
	sort.Strings(cp)
	return strings.Join(cp, ",")
}

func (h Hash) String() string { return string(h) }

// IsZero reports whether this is the empty/sentinel hash.
func (h Hash) IsZero() bool { return h == ZeroHash }

// Short returns a truncated form suitable for logs (first 12 hex chars,
// matching the git-style short-hash convention).
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

func (h Hash) Equal(other Hash) bool { return h == other }

func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(h))
}

func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("oid: unmarshal hash: %w", err)
	}
	*h = Hash(s)
	return nil
}

// Scan implements sql.Scanner.
func (h *Hash) Scan(value interface{}) error {
	if value == nil {
		*h = ZeroHash
		return nil
	}
	switch v := value.(type) {
	case string:
		*h = Hash(v)
	case []byte:
		*h = Hash(v)
	default:
		return errors.New("oid: cannot scan non-string value into Hash")
	}
	return nil
}

// Value implements driver.Valuer.
func (h Hash) Value() (driver.Value, error) {
	return string(h), nil
}
