package models

import (
	"time"

	"github.com/foundry/oms/pkg/oid"
)

// ChangedResource is one entry in a Commit's changed_resources list: the
// type/id/operation triple that the commit's Tx buffered before
// publishing.
type ChangedResource struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Op   string `json:"op"` // create | update | delete
}

// Commit is an immutable record of a set of changes. Hash is
// content-addressed (pkg/oid.ComputeHash) over the sorted changed
// resources, parents, author, message, and timestamp — never over a
// database-assigned surrogate key, so two processes computing the same
// logical commit always agree on its identity.
type Commit struct {
	Hash             oid.Hash          `gorm:"primaryKey;type:varchar(64)" json:"hash"`
	Parents          []string          `gorm:"serializer:json;type:jsonb" json:"parents"`
	Author           string            `gorm:"type:varchar(255);not null" json:"author"`
	Message          string            `gorm:"type:text" json:"message"`
	Timestamp        time.Time         `gorm:"not null;index:idx_commits_timestamp" json:"timestamp"`
	ChangedResources []ChangedResource `gorm:"serializer:json;type:jsonb" json:"changedResources"`
	TreeHash         oid.Hash          `gorm:"type:varchar(64)" json:"treeHash"`
}

func (Commit) TableName() string { return "commits" }

// ComputeCommitHash derives the content hash for a commit from its
// logical fields. Parent hashes and changed-resource keys are sorted
// before hashing so that buffering order inside a Tx never affects the
// resulting hash.
func ComputeCommitHash(parents []string, author, message string, timestamp time.Time, changed []ChangedResource) oid.Hash {
	keys := make([]string, len(changed))
	for i, c := range changed {
		keys[i] = c.Type + "/" + c.ID + "/" + c.Op
	}
	return oid.ComputeHash(
		oid.SortedJoin(parents),
		author,
		message,
		timestamp.UTC().Format(time.RFC3339Nano),
		oid.SortedJoin(keys),
	)
}
