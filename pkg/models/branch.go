package models

import (
	"time"

	"github.com/foundry/oms/pkg/oid"
)

// BranchState is the branch lifecycle state machine (§3). Valid
// transitions are enforced by pkg/store's UpdateBranchState (via
// CanTransition), not by this model — the model
// only stores the current value.
type BranchState string

const (
	BranchStateActive         BranchState = "ACTIVE"
	BranchStateLockedForWrite BranchState = "LOCKED_FOR_WRITE"
	BranchStateReady          BranchState = "READY"
	BranchStateMerged         BranchState = "MERGED"
	BranchStateArchived       BranchState = "ARCHIVED"
	BranchStateFailed         BranchState = "FAILED"
)

// validBranchTransitions mirrors the state diagram in spec.md §3.
var validBranchTransitions = map[BranchState]map[BranchState]bool{
	BranchStateActive: {
		BranchStateLockedForWrite: true,
		BranchStateReady:          true,
		BranchStateArchived:       true,
	},
	BranchStateLockedForWrite: {
		BranchStateActive: true,
		BranchStateReady:  true,
		BranchStateFailed: true,
	},
	BranchStateReady: {
		BranchStateMerged:   true,
		BranchStateActive:   true,
		BranchStateArchived: true,
	},
	BranchStateMerged: {
		BranchStateArchived: true,
	},
	BranchStateFailed: {
		BranchStateActive:  true,
		BranchStateArchived: true,
	},
	BranchStateArchived: {},
}

// CanTransition reports whether moving from "from" to "to" is legal.
func CanTransition(from, to BranchState) bool {
	next, ok := validBranchTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// Branch is a mutable named reference to a commit.
type Branch struct {
	Name            oid.BranchName `gorm:"primaryKey;type:varchar(255)" json:"name"`
	Head            oid.Hash       `gorm:"type:varchar(64);index:idx_branches_head" json:"head"`
	ParentBranch    *oid.BranchName `gorm:"type:varchar(255)" json:"parentBranch,omitempty"`
	IsProtected     bool            `gorm:"not null;default:false" json:"isProtected"`
	State           BranchState     `gorm:"type:varchar(30);not null;default:'ACTIVE'" json:"state"`
	StateChangedAt  time.Time       `json:"stateChangedAt"`
	StateChangedBy  string          `gorm:"type:varchar(255)" json:"stateChangedBy"`
	StateChangedReason string       `gorm:"type:text" json:"stateChangedReason,omitempty"`
}

func (Branch) TableName() string { return "branches" }

// BranchStateRow persists arbitrary opaque state data alongside a
// branch (the branch_states table in §6), separate from the typed
// lifecycle State field above, for caller-defined bookkeeping that the
// store itself does not interpret.
type BranchStateRow struct {
	BranchName oid.BranchName `gorm:"primaryKey;type:varchar(255)" json:"branchName"`
	StateData  string         `gorm:"type:jsonb" json:"stateDataJson"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	UpdatedBy  string         `gorm:"type:varchar(255)" json:"updatedBy"`
}

func (BranchStateRow) TableName() string { return "branch_states" }
