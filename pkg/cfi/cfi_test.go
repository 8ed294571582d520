package cfi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEqualAgreesOnMatchingAndMismatchedInputs(t *testing.T) {
	require.True(t, Equal([]byte("digest-a"), []byte("digest-a")).Assert())
	require.False(t, Equal([]byte("digest-a"), []byte("digest-b")).Assert())
}

func TestBoolPassesThroughDirectValue(t *testing.T) {
	require.True(t, Bool(true).Assert())
	require.False(t, Bool(false).Assert())
}

func TestAssertMarksChecked(t *testing.T) {
	a := Equal([]byte{1}, []byte{1})
	require.False(t, a.Checked())
	a.Assert()
	require.True(t, a.Checked())
}

func TestDelayCounterSpinTerminates(t *testing.T) {
	d := NewDelayCounter(1000)
	d.Spin() // must return; a hang here is the failure mode worth catching
}
