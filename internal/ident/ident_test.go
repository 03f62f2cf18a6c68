package ident

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURL(t *testing.T) {
	a := URL("/quotations/001")
	b := URL("/quotations/001")
	c := URL("/quotations/002")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())
}

func TestKey(t *testing.T) {
	a := Key("notifications", "001")
	b := Key("notifications", "001")

	assert.Equal(t, a, b)
	assert.Len(t, a, 32)

	assert.NotEqual(t, a, Key("notifications", "002"))
	assert.NotEqual(t, a, Key("other", "001"))

	// namespace and name must not be confusable
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
}
