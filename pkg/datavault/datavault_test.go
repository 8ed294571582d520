package datavault

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestColdBootOK(t *testing.T) {
	v := New()
	require.False(t, v.ColdBootOK())

	v.ColdBootStatus = BootStatusLDevIDDerivationComplete
	require.False(t, v.ColdBootOK())

	v.ColdBootStatus = BootStatusColdResetComplete
	require.True(t, v.ColdBootOK())
}

func TestUpdateResetOK(t *testing.T) {
	v := New()
	require.True(t, v.UpdateResetOK(), "no update attempted yet is ok")

	v.UpdateResetStatus = BootStatusUpdateResetStarted
	require.False(t, v.UpdateResetOK())

	v.UpdateResetStatus = BootStatusUpdateResetComplete
	require.True(t, v.UpdateResetOK())
}
