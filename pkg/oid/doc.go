// Package oid implements the content-addressed identifier types used
// throughout the ontology store: commit hashes and branch names.
//
// Hash is a SHA-256 digest computed deterministically over a commit's
// sorted changes, parents, author, message, and timestamp (§4.1 of the
// store's commit contract). BranchName enforces the branch-naming
// grammar at construction time rather than scattering regex checks
// across callers. Both types implement driver.Valuer and sql.Scanner so
// GORM can persist them as plain text columns, and json.Marshaler /
// json.Unmarshaler so they serialize the same way whether they travel
// over the wire or sit in a jsonb column.
//
// Migration note: columns that predate these types stored raw strings;
// Scan accepts both []byte and string so existing rows read back
// without a backfill.
package oid
