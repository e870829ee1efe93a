package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeAddAddConflict(t *testing.T) {
	base := map[string]Document{}
	source := map[string]Document{"A": {"name": "A", "value": 1}}
	target := map[string]Document{"A": {"name": "A", "value": 2}}

	result := Merge(base, source, target, nil)
	require.True(t, result.HasConflicts())
	assert.Equal(t, ConflictAddAdd, result.Conflicts[0].Kind)
}

func TestMergeOneSidedChangeTakesChangedSide(t *testing.T) {
	base := map[string]Document{"A": {"name": "A", "value": 1}}
	source := map[string]Document{"A": {"name": "A", "value": 2}}
	target := map[string]Document{"A": {"name": "A", "value": 1}}

	result := Merge(base, source, target, nil)
	require.False(t, result.HasConflicts())
	assert.Equal(t, 2, result.Merged["A"]["value"])
}

func TestMergeDeleteModifyConflict(t *testing.T) {
	base := map[string]Document{"A": {"name": "A", "value": 1}}
	source := map[string]Document{}
	target := map[string]Document{"A": {"name": "A", "value": 2}}

	result := Merge(base, source, target, nil)
	require.True(t, result.HasConflicts())
	assert.Equal(t, ConflictDeleteModify, result.Conflicts[0].Kind)
}

func TestMergeDeletionAcceptedWhenOtherSideUnchanged(t *testing.T) {
	base := map[string]Document{"A": {"name": "A", "value": 1}}
	source := map[string]Document{}
	target := map[string]Document{"A": {"name": "A", "value": 1}}

	result := Merge(base, source, target, nil)
	require.False(t, result.HasConflicts())
	_, exists := result.Merged["A"]
	assert.False(t, exists)
}

func TestMergeFieldLevelBothChangedDifferently(t *testing.T) {
	base := map[string]Document{"A": {"name": "A", "displayName": "Orig", "color": "#ffffff"}}
	source := map[string]Document{"A": {"name": "A", "displayName": "FromSource", "color": "#ffffff"}}
	target := map[string]Document{"A": {"name": "A", "displayName": "FromTarget", "color": "#ffffff"}}

	result := Merge(base, source, target, nil)
	require.True(t, result.HasConflicts())
	assert.Equal(t, ConflictModifyModify, result.Conflicts[0].Kind)
	require.Len(t, result.Conflicts[0].FieldConflicts, 1)
	assert.Equal(t, "displayName", result.Conflicts[0].FieldConflicts[0].Field)
}

func TestMergePropertiesByNameConflict(t *testing.T) {
	base := map[string]Document{"A": {
		"name":       "A",
		"properties": []interface{}{map[string]interface{}{"name": "id", "dataTypeId": "string"}},
	}}
	source := map[string]Document{"A": {
		"name":       "A",
		"properties": []interface{}{map[string]interface{}{"name": "id", "dataTypeId": "long"}},
	}}
	target := map[string]Document{"A": {
		"name":       "A",
		"properties": []interface{}{map[string]interface{}{"name": "id", "dataTypeId": "uuid"}},
	}}

	result := Merge(base, source, target, nil)
	require.True(t, result.HasConflicts())
	assert.Equal(t, ConflictModifyModify, result.Conflicts[0].Kind)
}

func TestMergeResolutionsOverrideConflicts(t *testing.T) {
	base := map[string]Document{}
	source := map[string]Document{"A": {"name": "A", "value": 1}}
	target := map[string]Document{"A": {"name": "A", "value": 2}}

	resolved := Document{"name": "A", "value": 3}
	result := Merge(base, source, target, map[string]Document{"A": resolved})
	require.False(t, result.HasConflicts())
	assert.Equal(t, 3, result.Merged["A"]["value"])
}
