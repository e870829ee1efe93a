package validator

import (
	"fmt"
	"time"
)

// MigrationStep is one step of a generated migration plan, with a
// symmetric rollback step alongside it.
type MigrationStep struct {
	Type             string        `json:"type"`
	Description      string        `json:"description"`
	EstimatedDuration time.Duration `json:"estimatedDuration"`
	RequiresDowntime bool          `json:"requiresDowntime"`
	BatchSize        int           `json:"batchSize"`
	Rollback         *MigrationStep `json:"rollback,omitempty"`
}

const defaultMigrationBatchSize = 500

// GenerateMigrationPlan emits one MigrationStep per breaking change,
// each carrying a symmetric rollback step, per §4.5.
func GenerateMigrationPlan(changes []BreakingChange) []MigrationStep {
	var plan []MigrationStep
	for _, bc := range changes {
		step := migrationStepFor(bc)
		plan = append(plan, step)
	}
	return plan
}

func migrationStepFor(bc BreakingChange) MigrationStep {
	switch bc.Rule {
	case "PrimaryKeyChange":
		return MigrationStep{
			Type:             "reindex_primary_key",
			Description:      fmt.Sprintf("rebuild primary-key index for %s %s", bc.EntityType, bc.EntityID),
			RequiresDowntime: true,
			BatchSize:        defaultMigrationBatchSize,
			Rollback: &MigrationStep{
				Type:        "restore_primary_key",
				Description: fmt.Sprintf("restore previous primary-key index for %s %s", bc.EntityType, bc.EntityID),
				BatchSize:   defaultMigrationBatchSize,
			},
		}
	case "RequiredFieldRemoval":
		return MigrationStep{
			Type:        "backfill_then_drop",
			Description: fmt.Sprintf("backfill dependents of %s before dropping field %q", bc.EntityID, bc.Field),
			BatchSize:   defaultMigrationBatchSize,
			Rollback: &MigrationStep{
				Type:        "restore_field",
				Description: fmt.Sprintf("restore field %q on %s", bc.Field, bc.EntityID),
				BatchSize:   defaultMigrationBatchSize,
			},
		}
	case "TypeIncompatibility", "SharedPropertyChange":
		return MigrationStep{
			Type:        "convert_column_type",
			Description: fmt.Sprintf("convert stored values of %s.%s to new type", bc.EntityID, bc.Field),
			BatchSize:   defaultMigrationBatchSize,
			Rollback: &MigrationStep{
				Type:        "revert_column_type",
				Description: fmt.Sprintf("revert stored values of %s.%s to previous type", bc.EntityID, bc.Field),
				BatchSize:   defaultMigrationBatchSize,
			},
		}
	default:
		return MigrationStep{
			Type:        "manual_review",
			Description: fmt.Sprintf("manual review required for %s on %s", bc.Rule, bc.EntityID),
			BatchSize:   defaultMigrationBatchSize,
			Rollback: &MigrationStep{
				Type:        "manual_review",
				Description: fmt.Sprintf("manual review required to roll back %s on %s", bc.Rule, bc.EntityID),
				BatchSize:   defaultMigrationBatchSize,
			},
		}
	}
}

// PlanSummary holds aggregate duration/downtime and the step order of
// a full plan, as computed by Summarize. Validate does not call
// Summarize; its Result carries only the list of steps.
type PlanSummary struct {
	TotalDuration    time.Duration
	RequiresDowntime bool
	ExecutionOrder   []string
}

// Summarize walks plan in the order given (already execution order, as
// GenerateMigrationPlan emits one step per breaking change in severity
// order) and totals duration/downtime.
func Summarize(plan []MigrationStep) PlanSummary {
	summary := PlanSummary{}
	for _, step := range plan {
		summary.TotalDuration += step.EstimatedDuration
		summary.RequiresDowntime = summary.RequiresDowntime || step.RequiresDowntime
		summary.ExecutionOrder = append(summary.ExecutionOrder, step.Type)
	}
	return summary
}
