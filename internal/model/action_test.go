package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionRoundTrip(t *testing.T) {
	for _, a := range []Action{NoAction, Merge, Pop, Float} {
		parsed, err := ParseAction(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, parsed)
		assert.True(t, a.Valid())
	}
}

func TestParseActionUnknown(t *testing.T) {
	_, err := ParseAction("Explode")
	assert.Error(t, err)
}

func TestActionTextMarshalling(t *testing.T) {
	text, err := Pop.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "Pop", string(text))

	var a Action
	require.NoError(t, a.UnmarshalText([]byte("Float")))
	assert.Equal(t, Float, a)

	assert.Error(t, a.UnmarshalText([]byte("nope")))
}

func TestActionInvalidValue(t *testing.T) {
	assert.False(t, Action(42).Valid())
	assert.Equal(t, "Action(42)", Action(42).String())
}
