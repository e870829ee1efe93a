package models

import (
	"time"

	"github.com/foundry/oms/pkg/oid"
)

// ChangeType is the kind of mutation a ResourceVersion records.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// ResourceVersion is one row in the time-travel read model: a single
// committed version of a typed document, keyed by (type, id, branch,
// version). A change_type=delete row is a tombstone — the key is
// logically absent at and after that version.
type ResourceVersion struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	Type   string         `gorm:"type:varchar(100);not null;index:idx_rv_asof,priority:1" json:"type"`
	ResourceID string     `gorm:"column:resource_id;type:varchar(255);not null" json:"resourceId"`
	Branch oid.BranchName `gorm:"type:varchar(255);not null;index:idx_rv_asof,priority:2" json:"branch"`
	Version int           `gorm:"not null" json:"version"`

	CommitHash oid.Hash   `gorm:"type:varchar(64);not null;index:idx_rv_by_commit" json:"commitHash"`
	ModifiedAt time.Time  `gorm:"not null;index:idx_rv_asof,priority:3,sort:desc" json:"modifiedAt"`
	ModifiedBy string     `gorm:"type:varchar(255);not null" json:"modifiedBy"`
	ChangeType ChangeType `gorm:"type:varchar(10);not null" json:"changeType"`

	ContentJSON   JSON     `gorm:"column:content_json;type:jsonb" json:"contentJson"`
	FieldsChanged []string `gorm:"serializer:json;type:jsonb" json:"fieldsChanged"`
	VersionHash   oid.Hash `gorm:"type:varchar(64);not null" json:"versionHash"`
}

func (ResourceVersion) TableName() string { return "resource_versions" }

// IsTombstone reports whether this version represents a deletion.
func (rv *ResourceVersion) IsTombstone() bool {
	return rv.ChangeType == ChangeDelete
}

// VersionDelta is an optional precomputed diff between two adjacent
// versions of the same resource, stored so BETWEEN/timeline queries
// don't have to recompute field-level diffs on every read.
type VersionDelta struct {
	ID          uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Type        string         `gorm:"type:varchar(100);not null" json:"type"`
	ResourceID  string         `gorm:"column:resource_id;type:varchar(255);not null" json:"resourceId"`
	Branch      oid.BranchName `gorm:"type:varchar(255);not null" json:"branch"`
	FromVersion int            `gorm:"not null" json:"fromVersion"`
	ToVersion   int            `gorm:"not null" json:"toVersion"`
	DeltaJSON   JSON           `gorm:"column:delta_json;type:jsonb" json:"deltaJson"`
}

func (VersionDelta) TableName() string { return "version_deltas" }
