package oid

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

var branchNamePattern = regexp.MustCompile(`^[a-z][a-z0-9/-]*$`)

// System branch names. Bookkeeping metadata that spec.md splits across
// "_system" and "_versions" is consolidated onto a single reserved
// branch per the Open Question decision in DESIGN.md.
const (
	BranchMain         = "main"
	BranchBookkeeping  = "oms-internal/bookkeeping"
	BranchProposals    = "_proposals"
	BranchOutbox       = "_outbox"
)

// ProtectedBranches lists the branch names that can never be deleted or
// force-updated directly by a caller.
var ProtectedBranches = map[string]bool{
	BranchMain:        true,
	BranchBookkeeping: true,
	BranchProposals:   true,
	BranchOutbox:      true,
}

// BranchName is a validated branch reference name.
type BranchName string

// ErrInvalidBranchName is returned by NewBranchName when the input does
// not match the branch grammar.
var ErrInvalidBranchName = errors.New("oid: branch name must match ^[a-z][a-z0-9/-]*$")

// NewBranchName validates and wraps a branch name.
func NewBranchName(s string) (BranchName, error) {
	if !branchNamePattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidBranchName, s)
	}
	return BranchName(s), nil
}

func (b BranchName) String() string { return string(b) }

// IsProtected reports whether this branch is one of the system branches
// that reject direct writes or deletes.
func (b BranchName) IsProtected() bool {
	return ProtectedBranches[string(b)]
}

func (b BranchName) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(b))
}

func (b *BranchName) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("oid: unmarshal branch name: %w", err)
	}
	*b = BranchName(s)
	return nil
}

func (b *BranchName) Scan(value interface{}) error {
	if value == nil {
		*b = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*b = BranchName(v)
	case []byte:
		*b = BranchName(v)
	default:
		return errors.New("oid: cannot scan non-string value into BranchName")
	}
	return nil
}

func (b BranchName) Value() (driver.Value, error) {
	return string(b), nil
}
