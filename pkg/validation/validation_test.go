package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ProfileID *int64  `json:"profileId" validate:"required,gt=0"`
	Level     string  `form:"level" validate:"omitempty,risk_level"`
	MinScore  float64 `form:"min_score" validate:"gte=0,lte=100"`
}

func TestValidateStruct_OK(t *testing.T) {
	id := int64(7)
	assert.NoError(t, ValidateStruct(&sample{ProfileID: &id, Level: "high", MinScore: 50}))
}

func TestValidateStruct_FieldErrors(t *testing.T) {
	err := ValidateStruct(&sample{Level: "spicy", MinScore: 120})
	require.Error(t, err)

	verr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.True(t, verr.HasErrors())

	msg, ok := verr.GetFieldError("profileId")
	require.True(t, ok)
	assert.Equal(t, "profileId is required", msg)

	msg, _ = verr.GetFieldError("level")
	assert.Contains(t, msg, "valid risk level")

	msg, _ = verr.GetFieldError("min_score")
	assert.Equal(t, "min_score must be less than or equal to 100", msg)
}

func TestValidateStruct_PointerValueChecked(t *testing.T) {
	zero := int64(0)
	err := ValidateStruct(&sample{ProfileID: &zero})
	require.Error(t, err)

	msg, ok := err.(*ValidationError).GetFieldError("profileId")
	require.True(t, ok)
	assert.Equal(t, "profileId must be greater than 0", msg)
}

func TestValidationError_ErrorIsSorted(t *testing.T) {
	v := &ValidationError{}
	v.AddError("b", "second")
	v.AddError("a", "first")

	assert.Equal(t, "a: first; b: second", v.Error())
}
