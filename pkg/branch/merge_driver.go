package branch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/foundry/oms/pkg/merge"
	"github.com/foundry/oms/pkg/models"
	"github.com/foundry/oms/pkg/ocierr"
	"github.com/foundry/oms/pkg/oid"
)

// resourceTypes enumerates every entity kind the merge driver walks.
// Kept as a literal list rather than derived reflectively.
var resourceTypes = []string{
	"object_type", "property", "link_type", "interface",
	"shared_property", "action_type", "function_type", "data_type",
}

// MergeOutcome is the result of a successful Merge call.
type MergeOutcome struct {
	CommitHash oid.Hash
	Conflicts  []merge.ResourceConflict
}

// Merge resolves proposalID against strategy, landing a commit on the
// proposal's target branch when it succeeds. docs provides read/write
// access into the version store in merge.Document shape.
//
// Only MERGE honors a supplied resolutions map; SQUASH and REBASE
// replay source commits wholesale and have no per-resource conflict
// surface to resolve against (a conflict there means the whole merge
// aborts, per §4.6).
func (svc *Service) Merge(ctx context.Context, docs MergeDocSource, proposalID string, strategy MergeStrategy, resolutions map[string]map[string]merge.Document, mergedBy string) (*MergeOutcome, error) {
	proposal, err := svc.getProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if !proposal.ReadyToMerge() {
		return nil, &ocierr.Conflict{Expected: string(models.ProposalApproved), Actual: string(proposal.Status)}
	}

	release := svc.acquireSorted(string(proposal.SourceBranch), string(proposal.TargetBranch))
	defer release()

	currentSourceHead, err := svc.store.BranchHead(ctx, proposal.SourceBranch)
	if err != nil {
		return nil, err
	}
	if currentSourceHead != proposal.SourceHash {
		return nil, &ocierr.Conflict{
			Expected: string(proposal.SourceHash),
			Actual:   string(currentSourceHead),
			Hints:    []string{"source branch advanced since proposal was opened; refresh and re-approve"},
		}
	}

	var outcome *MergeOutcome
	switch strategy {
	case StrategySquash:
		outcome, err = svc.mergeSquash(ctx, proposal, mergedBy)
	case StrategyRebase:
		outcome, err = svc.mergeRebase(ctx, proposal, mergedBy)
	default:
		outcome, err = svc.mergeThreeWay(ctx, docs, proposal, resolutions, mergedBy)
	}
	if err != nil {
		return nil, err
	}
	if len(outcome.Conflicts) > 0 {
		return outcome, nil
	}

	proposal.Status = models.ProposalMerged
	now := time.Now()
	proposal.MergedAt = &now
	proposal.MergedBy = mergedBy
	proposal.UpdatedAt = now
	if err := svc.db.WithContext(ctx).Save(proposal).Error; err != nil {
		return nil, fmt.Errorf("branch: marking proposal %q merged: %w", proposalID, err)
	}
	return outcome, nil
}

// mergeThreeWay implements the default MERGE strategy: per resource
// type, load base/source/target states and run pkg/merge, then apply
// every resource type's merged documents (plus any caller resolutions)
// as a single commit on the target branch with parents=[target_head,
// source_head] (§4.6, scenario S3).
func (svc *Service) mergeThreeWay(ctx context.Context, docs MergeDocSource, proposal *models.ChangeProposal, resolutions map[string]map[string]merge.Document, author string) (*MergeOutcome, error) {
	var allConflicts []merge.ResourceConflict
	changes := make(map[string]merge.ResourceChanges)

	for _, resourceType := range resourceTypes {
		base, err := docs.BranchDocuments(ctx, proposal.TargetBranch, resourceType)
		if err != nil {
			return nil, err
		}
		source, err := docs.BranchDocuments(ctx, proposal.SourceBranch, resourceType)
		if err != nil {
			return nil, err
		}
		target, err := docs.BranchDocuments(ctx, proposal.TargetBranch, resourceType)
		if err != nil {
			return nil, err
		}

		result := merge.Merge(base, source, target, resolutions[resourceType])
		if result.HasConflicts() {
			allConflicts = append(allConflicts, result.Conflicts...)
			continue
		}

		var deletions []string
		for id := range base {
			if _, kept := result.Merged[id]; !kept {
				deletions = append(deletions, id)
			}
		}

		if len(result.Merged) == 0 && len(deletions) == 0 {
			continue
		}

		changes[resourceType] = merge.ResourceChanges{Merged: result.Merged, Deletions: deletions}
	}

	if len(allConflicts) > 0 {
		return &MergeOutcome{Conflicts: allConflicts}, nil
	}

	if len(changes) == 0 {
		head, err := svc.store.BranchHead(ctx, proposal.TargetBranch)
		return &MergeOutcome{CommitHash: head}, err
	}

	hash, err := docs.ApplyMerged(ctx, proposal.TargetBranch, proposal.SourceHash, changes, author,
		fmt.Sprintf("merge %s into %s (proposal %s)", proposal.SourceBranch, proposal.TargetBranch, proposal.ID))
	if err != nil {
		return nil, err
	}
	return &MergeOutcome{CommitHash: hash}, nil
}

// mergeSquash collects the full diff between target and source,
// replays it as a single commit on a temp branch, then fast-forwards
// target and discards the temp branch.
func (svc *Service) mergeSquash(ctx context.Context, proposal *models.ChangeProposal, author string) (*MergeOutcome, error) {
	tempName := oid.BranchName(fmt.Sprintf("oms-internal/merge-tmp-%s", proposal.ID))
	if _, err := svc.store.CreateBranch(ctx, tempName, proposal.TargetBranch); err != nil {
		return nil, err
	}
	defer svc.store.DeleteBranch(ctx, tempName)

	diffs, err := svc.store.CompareBranches(ctx, proposal.TargetBranch, proposal.SourceBranch)
	if err != nil {
		return nil, err
	}
	if len(diffs) == 0 {
		head, err := svc.store.BranchHead(ctx, proposal.TargetBranch)
		return &MergeOutcome{CommitHash: head}, err
	}

	tx, err := svc.store.BeginTx(ctx, tempName)
	if err != nil {
		return nil, err
	}
	for _, d := range diffs {
		rv, err := svc.store.GetResourceAt(ctx, proposal.SourceBranch, d.Type, d.ResourceID, time.Now())
		if err != nil {
			if d.InCompare {
				return nil, err
			}
			if err := tx.DeleteDocument(d.Type, d.ResourceID); err != nil {
				return nil, err
			}
			continue
		}
		content, err := decodeContent(rv.ContentJSON)
		if err != nil {
			return nil, err
		}
		if d.InBase {
			if err := tx.UpdateDocument(d.Type, d.ResourceID, content); err != nil {
				return nil, err
			}
		} else {
			if err := tx.InsertDocument(d.Type, d.ResourceID, content); err != nil {
				return nil, err
			}
		}
	}

	if _, err := tx.Commit(ctx, author, fmt.Sprintf("squash merge %s into %s (proposal %s)", proposal.SourceBranch, proposal.TargetBranch, proposal.ID)); err != nil {
		return nil, err
	}

	if err := svc.store.FastForward(ctx, tempName, proposal.TargetBranch); err != nil {
		return nil, err
	}

	head, err := svc.store.BranchHead(ctx, proposal.TargetBranch)
	return &MergeOutcome{CommitHash: head}, err
}

// mergeRebase replays source's commits since the proposal's base hash,
// one at a time, onto a temp branch from target; on the first conflict
// it aborts and surfaces the offending commit.
func (svc *Service) mergeRebase(ctx context.Context, proposal *models.ChangeProposal, author string) (*MergeOutcome, error) {
	sourceHistory, err := svc.store.GetCommitHistory(ctx, proposal.SourceBranch, nil, 0)
	if err != nil {
		return nil, err
	}

	var toReplay []models.Commit
	for _, c := range sourceHistory {
		if c.Hash == proposal.BaseHash {
			break
		}
		toReplay = append([]models.Commit{c}, toReplay...) // prepend, since history is newest-first
	}

	tempName := oid.BranchName(fmt.Sprintf("oms-internal/merge-tmp-%s", proposal.ID))
	if _, err := svc.store.CreateBranch(ctx, tempName, proposal.TargetBranch); err != nil {
		return nil, err
	}
	defer svc.store.DeleteBranch(ctx, tempName)

	for _, commit := range toReplay {
		tx, err := svc.store.BeginTx(ctx, tempName)
		if err != nil {
			return nil, err
		}
		for _, changed := range commit.ChangedResources {
			if changed.Op == "delete" {
				if err := tx.DeleteDocument(changed.Type, changed.ID); err != nil {
					return nil, &ocierr.Conflict{Hints: []string{fmt.Sprintf("rebase aborted replaying commit %s: %v", commit.Hash, err)}}
				}
				continue
			}
			rv, err := svc.store.GetResourceAt(ctx, proposal.SourceBranch, changed.Type, changed.ID, commit.Timestamp)
			if err != nil {
				return nil, &ocierr.Conflict{Hints: []string{fmt.Sprintf("rebase aborted replaying commit %s: %v", commit.Hash, err)}}
			}
			content, err := decodeContent(rv.ContentJSON)
			if err != nil {
				return nil, err
			}
			if changed.Op == "create" {
				err = tx.InsertDocument(changed.Type, changed.ID, content)
			} else {
				err = tx.UpdateDocument(changed.Type, changed.ID, content)
			}
			if err != nil {
				return nil, &ocierr.Conflict{Hints: []string{fmt.Sprintf("rebase aborted replaying commit %s: %v", commit.Hash, err)}}
			}
		}
		if _, err := tx.Commit(ctx, author, commit.Message); err != nil {
			return nil, &ocierr.Conflict{Hints: []string{fmt.Sprintf("rebase aborted committing replay of %s: %v", commit.Hash, err)}}
		}
	}

	if err := svc.store.FastForward(ctx, tempName, proposal.TargetBranch); err != nil {
		return nil, err
	}

	head, err := svc.store.BranchHead(ctx, proposal.TargetBranch)
	return &MergeOutcome{CommitHash: head}, err
}

func decodeContent(raw []byte) (map[string]interface{}, error) {
	var content map[string]interface{}
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("branch: decoding resource content: %w", err)
	}
	return content, nil
}
