package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLimit(t *testing.T) {
	ptr := func(v int) *int { return &v }

	assert.Equal(t, 1000, GetLimit(nil))
	assert.Equal(t, 1000, GetLimit(ptr(0)))
	assert.Equal(t, 1000, GetLimit(ptr(-5)))
	assert.Equal(t, 25, GetLimit(ptr(25)))
	assert.Equal(t, 10000, GetLimit(ptr(50000)))
}
