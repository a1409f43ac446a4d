package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "kbquery/pkg/errors"
)

type pageRequest struct {
	First  int    `query:"first" validate:"gte=0,lte=1000"`
	Search string `json:"search" validate:"max=5"`
}

func TestValidateStruct(t *testing.T) {
	require.NoError(t, ValidateStruct(pageRequest{First: 10, Search: "abc"}))

	err := ValidateStruct(pageRequest{First: -1, Search: "too long"})

	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Contains(t, err.Error(), "first must be at least 0")
	assert.Contains(t, err.Error(), "search must be at most 5")
}
