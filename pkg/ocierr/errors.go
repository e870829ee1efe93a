// Package ocierr defines the error taxonomy used across the ontology
// management service (§7 of the error-handling design). Each kind is a
// distinct Go type so call sites can dispatch with errors.As instead of
// comparing strings, while still wrapping the underlying cause for
// %w-style chains.
package ocierr

import "fmt"

// NotFound indicates a missing entity, branch, commit, or proposal.
type NotFound struct {
	Kind string // e.g. "branch", "commit", "document"
	ID   string
	Err  error
}

func (e *NotFound) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %q not found: %v", e.Kind, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFound) Unwrap() error { return e.Err }

// AlreadyExists indicates a duplicate name or ref.
type AlreadyExists struct {
	Kind string
	ID   string
}

func (e *AlreadyExists) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.ID)
}

// FieldError is one entry in a ValidationFailed's Fields list.
type FieldError struct {
	Field   string
	Message string
}

// ValidationFailed indicates a rule or schema violation. It carries the
// full list of per-field problems rather than just the first one, since
// §7 requires validation errors to always surface in full.
type ValidationFailed struct {
	Fields []FieldError
}

func (e *ValidationFailed) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msg := fmt.Sprintf("validation failed: %s: %s", e.Fields[0].Field, e.Fields[0].Message)
	if len(e.Fields) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(e.Fields)-1)
	}
	return msg
}

// ProtectedBranch indicates a write or delete attempted against a
// system/protected branch.
type ProtectedBranch struct {
	Branch string
}

func (e *ProtectedBranch) Error() string {
	return fmt.Sprintf("branch %q is protected", e.Branch)
}

// Conflict indicates an OCC mismatch, a merge conflict, or an invalid
// state-machine transition. Expected/Actual carry the parent hash the
// caller assumed versus the branch's current HEAD; Hints suggests a
// rebase path.
type Conflict struct {
	Expected string
	Actual   string
	Hints    []string
}

func (e *Conflict) Error() string {
	return fmt.Sprintf("conflict: expected head %s, actual head %s", e.Expected, e.Actual)
}

// InUse indicates a delete blocked by referential integrity.
type InUse struct {
	Kind       string
	ID         string
	ReferredBy []string
}

func (e *InUse) Error() string {
	return fmt.Sprintf("%s %q is in use by %v", e.Kind, e.ID, e.ReferredBy)
}

// PermissionDenied indicates the caller lacks a required capability.
// Authorization itself is out of scope; this type exists so upstream
// callers (outside this module) have a stable kind to map onto their
// own authz layer.
type PermissionDenied struct {
	Capability string
}

func (e *PermissionDenied) Error() string {
	return fmt.Sprintf("permission denied: requires %q", e.Capability)
}

// Transient indicates an upstream timeout or DB contention that the
// caller should retry with backoff.
type Transient struct {
	Err error
}

func (e *Transient) Error() string { return fmt.Sprintf("transient error: %v", e.Err) }
func (e *Transient) Unwrap() error { return e.Err }

// Fatal indicates store corruption or an invariant breach. Operations
// that surface Fatal must not be retried automatically.
type Fatal struct {
	Reason string
	Err    error
}

func (e *Fatal) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fatal: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("fatal: %s", e.Reason)
}

func (e *Fatal) Unwrap() error { return e.Err }
