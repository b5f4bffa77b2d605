package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestULIDIsNonEmptyAndUnique(t *testing.T) {
	first := ULID()
	second := ULID()
	assert.NotEmpty(t, first)
	assert.NotEmpty(t, second)
	assert.Len(t, first, 26)
	assert.NotEqual(t, first, second)
}

func TestShortIsNonEmptyAndUnique(t *testing.T) {
	a := Short()
	b := Short()
	assert.NotEmpty(t, a)
	assert.NotEmpty(t, b)
	assert.NotEqual(t, a, b)
}
