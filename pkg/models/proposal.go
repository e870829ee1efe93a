package models

import (
	"time"

	"github.com/foundry/oms/pkg/oid"
)

// ProposalStatus is a ChangeProposal's review state.
type ProposalStatus string

const (
	ProposalDraft    ProposalStatus = "DRAFT"
	ProposalReview   ProposalStatus = "REVIEW"
	ProposalApproved ProposalStatus = "APPROVED"
	ProposalRejected ProposalStatus = "REJECTED"
	ProposalMerged   ProposalStatus = "MERGED"
)

// ChangeProposal bridges a source and target branch, gating merges on
// review. It lives logically on the "_proposals" branch.
type ChangeProposal struct {
	ID string `gorm:"primaryKey;type:varchar(64)" json:"id"` // "proposal_<uuid>"

	Title       string `gorm:"type:varchar(500);not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`

	SourceBranch oid.BranchName `gorm:"type:varchar(255);not null" json:"sourceBranch"`
	TargetBranch oid.BranchName `gorm:"type:varchar(255);not null" json:"targetBranch"`

	BaseHash   oid.Hash `gorm:"type:varchar(64)" json:"baseHash"`
	SourceHash oid.Hash `gorm:"type:varchar(64)" json:"sourceHash"`
	TargetHash oid.Hash `gorm:"type:varchar(64)" json:"targetHash"`

	Status ProposalStatus `gorm:"type:varchar(20);not null;default:'DRAFT';index:idx_proposals_status" json:"status"`

	Diff      JSON     `gorm:"type:jsonb" json:"diff"`
	Conflicts []string `gorm:"serializer:json;type:jsonb" json:"conflicts"`

	Author    string   `gorm:"type:varchar(255);not null" json:"author"`
	Reviewers []string `gorm:"serializer:json;type:jsonb" json:"reviewers"`
	Approvals []string `gorm:"serializer:json;type:jsonb" json:"approvals"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	MergedAt  *time.Time `json:"mergedAt,omitempty"`
	MergedBy  string     `gorm:"type:varchar(255)" json:"mergedBy,omitempty"`
}

func (ChangeProposal) TableName() string { return "proposals" }

// ReadyToMerge reports whether the proposal's state permits merge().
// Merge additionally requires the caller to re-verify SourceHash
// against the live branch HEAD; this only checks the status invariant.
func (p *ChangeProposal) ReadyToMerge() bool {
	return p.Status == ProposalApproved
}
