package validator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	counts map[string]int
}

func (f *fakeCounter) CountRecords(ctx context.Context, entityType, branch string) (int, error) {
	return f.counts[entityType], nil
}

func TestPrimaryKeyChangeIsCritical(t *testing.T) {
	diffs := []Diff{{
		EntityType: "object_type",
		Before: map[string]interface{}{
			"name": "Employee",
			"properties": []interface{}{
				map[string]interface{}{"name": "id", "dataTypeId": "string", "isPrimary": true},
			},
		},
		After: map[string]interface{}{
			"name": "Employee",
			"properties": []interface{}{
				map[string]interface{}{"name": "employeeId", "dataTypeId": "long", "isPrimary": true},
			},
		},
	}}

	p := NewPipeline(DefaultRules(), nil)
	result, err := p.Validate(context.Background(), "feature/x", "main", diffs, false)
	require.NoError(t, err)
	require.False(t, result.IsValid)
	require.NotEmpty(t, result.BreakingChanges)
	assert.Equal(t, SeverityCritical, result.BreakingChanges[0].Severity)
}

func TestRequiredFieldRemovalIsHigh(t *testing.T) {
	diffs := []Diff{{
		EntityType: "object_type",
		Before: map[string]interface{}{
			"name": "Employee",
			"properties": []interface{}{
				map[string]interface{}{"name": "ssn", "dataTypeId": "string", "required": true},
			},
		},
		After: map[string]interface{}{
			"name":       "Employee",
			"properties": []interface{}{},
		},
	}}

	p := NewPipeline(DefaultRules(), nil)
	result, err := p.Validate(context.Background(), "feature/x", "main", diffs, false)
	require.NoError(t, err)
	require.False(t, result.IsValid)
	assert.Equal(t, "RequiredFieldRemoval", result.BreakingChanges[0].Rule)
}

func TestTypeWideningIsWarningNotBreaking(t *testing.T) {
	diffs := []Diff{{
		EntityType: "property",
		Before:     map[string]interface{}{"name": "count", "dataTypeId": "int"},
		After:      map[string]interface{}{"name": "count", "dataTypeId": "long"},
	}}

	p := NewPipeline(DefaultRules(), nil)
	result, err := p.Validate(context.Background(), "feature/x", "main", diffs, false)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Empty(t, result.BreakingChanges)
	require.Len(t, result.Warnings, 1)
}

func TestImpactAnalysisRiskThresholds(t *testing.T) {
	diffs := []Diff{{
		EntityType: "object_type",
		Before: map[string]interface{}{
			"name": "Employee",
			"properties": []interface{}{
				map[string]interface{}{"name": "id", "dataTypeId": "string", "isPrimary": true},
			},
		},
		After: map[string]interface{}{
			"name": "Employee",
			"properties": []interface{}{
				map[string]interface{}{"name": "id2", "dataTypeId": "long", "isPrimary": true},
			},
		},
	}}

	counter := &fakeCounter{counts: map[string]int{"object_type": 2_000_000}}
	p := NewPipeline(DefaultRules(), counter)
	result, err := p.Validate(context.Background(), "feature/x", "main", diffs, true)
	require.NoError(t, err)
	require.NotNil(t, result.ImpactAnalysis)
	assert.Equal(t, SeverityCritical, result.ImpactAnalysis.RiskLevel)
	assert.Equal(t, 2_000_000, result.ImpactAnalysis.TotalAffectedRecords)
	require.NotEmpty(t, result.SuggestedMigrations)
	assert.True(t, result.SuggestedMigrations[0].RequiresDowntime)
}
