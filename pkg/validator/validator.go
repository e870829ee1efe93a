// Package validator implements the breaking-change validator (C5): a
// parallel pipeline of independent rules, each inspecting a schema diff
// between two branches and producing breaking changes and warnings.
//
// Grounded on pkg/indexer/pipeline/executor.go's Step interface (a
// capability contract with no class hierarchy, registered into a map
// and run by name) — generalized here to run all registered Rules
// concurrently via golang.org/x/sync/errgroup instead of sequentially,
// since §4.5's performance contract requires the rule pipeline to be
// parallel and cancellable.
package validator

import (
	"context"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/foundry/oms/pkg/merge"
)

// Severity orders how serious a breaking change is. Defined so that
// higher values compare greater, matching "CRITICAL > HIGH > MEDIUM >
// LOW" (§4.5).
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "CRITICAL"
	case SeverityHigh:
		return "HIGH"
	case SeverityMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// BreakingChange is one detected incompatibility between source and
// target branch schemas.
type BreakingChange struct {
	Rule       string   `json:"rule"`
	Severity   Severity `json:"severity"`
	EntityType string   `json:"entityType"`
	EntityID   string   `json:"entityId"`
	Field      string   `json:"field,omitempty"`
	Message    string   `json:"message"`
}

// Warning is a non-breaking but notable schema change.
type Warning struct {
	Rule       string `json:"rule"`
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Message    string `json:"message"`
}

// Diff is the input every Rule inspects: the entity-level three-way
// comparison already computed by pkg/merge, reduced to a before/after
// pair per resource since validation compares exactly two branches
// (no three-way ancestor needed here).
type Diff struct {
	EntityType string
	Before     merge.Document // nil if the entity is new on source
	After      merge.Document // nil if the entity was removed on source
}

// ImpactEstimate is the data-impact a breaking change would have if
// applied, produced by Pipeline.computeImpact.
type ImpactEstimate struct {
	AffectedRecords   int           `json:"affectedRecords"`
	EstimatedDuration time.Duration `json:"estimatedDuration"`
	RequiresDowntime  bool          `json:"requiresDowntime"`
	AffectedServices  []string      `json:"affectedServices,omitempty"`
}

// RuleResult is one rule's output.
type RuleResult struct {
	Rule            string            `json:"rule"`
	BreakingChanges []BreakingChange  `json:"breakingChanges"`
	Warnings        []Warning         `json:"warnings"`
	Duration        time.Duration     `json:"duration"`
}

// Rule is the capability every validation rule implements — no shared
// base type, just this contract, matching the teacher's Step interface
// shape.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, diffs []Diff) (breaking []BreakingChange, warnings []Warning, err error)
}

// RecordCounter supplies affected-record counts to Pipeline.computeImpact;
// a thin seam so the validator package doesn't import pkg/store
// directly (kept decoupled from the persistence layer per the
// teacher's provider-interface style).
type RecordCounter interface {
	CountRecords(ctx context.Context, entityType, branch string) (int, error)
}

// Result is the full output of Validate.
type Result struct {
	IsValid            bool              `json:"isValid"`
	BreakingChanges     []BreakingChange  `json:"breakingChanges"`
	Warnings            []Warning         `json:"warnings"`
	ImpactAnalysis      *ImpactAnalysis   `json:"impactAnalysis,omitempty"`
	SuggestedMigrations []MigrationStep   `json:"suggestedMigrations"`
	RuleResults         []RuleResult      `json:"ruleResults"`
	Timings             map[string]time.Duration `json:"timings"`
}

// ImpactAnalysis aggregates per-change impact estimates into an
// overall risk level.
type ImpactAnalysis struct {
	TotalAffectedRecords int                        `json:"totalAffectedRecords"`
	RiskLevel            Severity                   `json:"riskLevel"`
	PerChange            map[string]ImpactEstimate  `json:"perChange"`
}

// Pipeline runs a fixed set of Rules in parallel against a Diff set.
type Pipeline struct {
	rules   []Rule
	counter RecordCounter
}

// NewPipeline constructs a Pipeline from an explicit rule set. Use
// DefaultRules() for the ADR-004 set (the authoritative default per
// the design decision recorded for this question).
func NewPipeline(rules []Rule, counter RecordCounter) *Pipeline {
	return &Pipeline{rules: rules, counter: counter}
}

// Validate runs every rule concurrently and assembles the aggregate
// Result. Rule errors (not breaking changes — actual execution
// failures) are aggregated with go-multierror and abort the whole
// validation, since a rule that failed to run cannot be trusted to
// have reported every breaking change.
func (p *Pipeline) Validate(ctx context.Context, sourceBranch, targetBranch string, diffs []Diff, includeImpact bool) (*Result, error) {
	type ruleOutcome struct {
		result RuleResult
		err    error
	}

	outcomes := make([]ruleOutcome, len(p.rules))
	g, gctx := errgroup.WithContext(ctx)

	for i, rule := range p.rules {
		i, rule := i, rule
		g.Go(func() error {
			start := time.Now()
			breaking, warnings, err := rule.Evaluate(gctx, diffs)
			outcomes[i] = ruleOutcome{
				result: RuleResult{
					Rule:            rule.Name(),
					BreakingChanges: breaking,
					Warnings:        warnings,
					Duration:        time.Since(start),
				},
				err: err,
			}
			return nil // errors are collected per-rule below, not aborted
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merr *multierror.Error
	result := &Result{Timings: make(map[string]time.Duration)}
	for _, o := range outcomes {
		if o.err != nil {
			merr = multierror.Append(merr, o.err)
			continue
		}
		result.RuleResults = append(result.RuleResults, o.result)
		result.BreakingChanges = append(result.BreakingChanges, o.result.BreakingChanges...)
		result.Warnings = append(result.Warnings, o.result.Warnings...)
		result.Timings[o.result.Rule] = o.result.Duration
	}
	if merr.ErrorOrNil() != nil {
		return nil, merr
	}

	sort.Slice(result.BreakingChanges, func(i, j int) bool {
		return result.BreakingChanges[i].Severity > result.BreakingChanges[j].Severity
	})

	result.IsValid = true
	for _, bc := range result.BreakingChanges {
		if bc.Severity >= SeverityHigh {
			result.IsValid = false
			break
		}
	}

	if includeImpact && p.counter != nil {
		result.ImpactAnalysis = p.computeImpact(ctx, sourceBranch, result.BreakingChanges)
	}

	result.SuggestedMigrations = GenerateMigrationPlan(result.BreakingChanges)
	return result, nil
}

func (p *Pipeline) computeImpact(ctx context.Context, branch string, changes []BreakingChange) *ImpactAnalysis {
	analysis := &ImpactAnalysis{PerChange: make(map[string]ImpactEstimate)}
	maxSeverity := SeverityLow

	for _, bc := range changes {
		count, err := p.counter.CountRecords(ctx, bc.EntityType, branch)
		if err != nil {
			count = 0
		}
		estimate := ImpactEstimate{
			AffectedRecords:   count,
			EstimatedDuration: time.Duration(count) * time.Millisecond,
			RequiresDowntime:  bc.Severity == SeverityCritical,
		}
		key := bc.EntityType + "/" + bc.EntityID + "/" + bc.Field
		analysis.PerChange[key] = estimate
		analysis.TotalAffectedRecords += count
		if bc.Severity > maxSeverity {
			maxSeverity = bc.Severity
		}
	}

	analysis.RiskLevel = riskFromImpact(maxSeverity, analysis.TotalAffectedRecords)
	return analysis
}

// riskFromImpact derives the overall risk level from the worst
// individual severity and the total affected-record volume (§4.5
// thresholds: 1,000,000 -> CRITICAL, 100,000 -> HIGH, 10,000 -> MEDIUM).
func riskFromImpact(maxSeverity Severity, totalRecords int) Severity {
	risk := maxSeverity
	switch {
	case totalRecords >= 1_000_000 && risk < SeverityCritical:
		risk = SeverityCritical
	case totalRecords >= 100_000 && risk < SeverityHigh:
		risk = SeverityHigh
	case totalRecords >= 10_000 && risk < SeverityMedium:
		risk = SeverityMedium
	}
	return risk
}
