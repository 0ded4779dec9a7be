package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusPresent, StatusAbsent, StatusLate, StatusExcused} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("").Valid())
	assert.False(t, Status("présent").Valid(), "display labels are not internal values")
}

func TestStatusLabelsCoverAllValues(t *testing.T) {
	for _, s := range []Status{StatusPresent, StatusAbsent, StatusLate, StatusExcused} {
		assert.NotEmpty(t, StatusLabels[s])
	}
}
