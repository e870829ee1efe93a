package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectType_Validate(t *testing.T) {
	valid := &ObjectType{Name: "Asset", DisplayName: "Asset", TypeClass: "object", Color: "#1A2B3C"}
	assert.NoError(t, valid.Validate())

	badName := &ObjectType{Name: "1Asset"}
	assert.Error(t, badName.Validate())

	badColor := &ObjectType{Name: "Asset", Color: "red"}
	assert.Error(t, badColor.Validate())

	tooManyPK := &ObjectType{
		Name: "Asset",
		Properties: []PropertyRef{
			{Name: "id", IsPrimary: true},
			{Name: "altId", IsPrimary: true},
		},
	}
	assert.ErrorIs(t, tooManyPK.Validate(), errTooManyPrimaryKeys)
}

func TestObjectType_PrimaryKeyProperty(t *testing.T) {
	ot := &ObjectType{Properties: []PropertyRef{{Name: "a"}, {Name: "id", IsPrimary: true}}}
	assert.Equal(t, "id", ot.PrimaryKeyProperty())

	none := &ObjectType{Properties: []PropertyRef{{Name: "a"}}}
	assert.Equal(t, "", none.PrimaryKeyProperty())
}

func TestActionType_RejectsSelfCycle(t *testing.T) {
	a := &ActionType{Name: "Approve", References: []string{"Approve"}}
	assert.ErrorIs(t, a.Validate(), errSelfCycle)

	ok := &ActionType{Name: "Approve", References: []string{"Notify"}}
	assert.NoError(t, ok.Validate())
}

func TestFunctionType_Validate(t *testing.T) {
	dup := &FunctionType{Name: "Compute", Parameters: []FunctionParameter{{Name: "x"}, {Name: "x"}}}
	assert.ErrorIs(t, dup.Validate(), errDuplicateParam)

	overBudget := &FunctionType{Name: "Compute", TimeoutMillis: maxFunctionTimeoutMillis + 1}
	assert.ErrorIs(t, overBudget.Validate(), errOutOfBounds)

	ok := &FunctionType{Name: "Compute", Parameters: []FunctionParameter{{Name: "x"}, {Name: "y"}}, TimeoutMillis: 5000, MemoryMB: 512}
	assert.NoError(t, ok.Validate())
}

func TestFieldErr_IdentifiesField(t *testing.T) {
	ot := &ObjectType{Name: ""}
	err := ot.Validate()
	var fe FieldError
	if assert.ErrorAs(t, err, &fe) {
		assert.Equal(t, "name", fe.Field())
	}
}
