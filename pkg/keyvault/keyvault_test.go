package keyvault

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadErase(t *testing.T) {
	v := New()
	require.NoError(t, v.Write(0, []byte("secret"), UsageHmacKey))

	got, err := v.Read(0, UsageHmacKey)
	require.NoError(t, err)
	require.Equal(t, []byte("secret"), got)

	v.Erase(0)
	_, err = v.Read(0, UsageHmacKey)
	require.Error(t, err)
}

func TestWriteRefusesToClobberOccupiedSlot(t *testing.T) {
	v := New()
	require.NoError(t, v.Write(0, []byte("first"), UsageHmacKey))
	require.Error(t, v.Write(0, []byte("second"), UsageHmacKey))

	v.Erase(0)
	require.NoError(t, v.Write(0, []byte("second"), UsageHmacKey))
}

func TestReadEnforcesUsageBits(t *testing.T) {
	v := New()
	require.NoError(t, v.Write(0, []byte("seed"), UsageEccKeygenSeed))
	_, err := v.Read(0, UsageHmacKey)
	require.Error(t, err)

	got, err := v.Read(0, UsageEccKeygenSeed)
	require.NoError(t, err)
	require.Equal(t, []byte("seed"), got)
}

func TestWipeAllClearsEverySlot(t *testing.T) {
	v := New()
	require.NoError(t, v.Write(0, []byte("a"), UsageHmacKey))
	require.NoError(t, v.Write(1, []byte("b"), UsageHmacKey))

	v.WipeAll()

	_, err := v.Read(0, UsageHmacKey)
	require.Error(t, err)
	_, err = v.Read(1, UsageHmacKey)
	require.Error(t, err)
}

func TestOutOfRangeSlotIDs(t *testing.T) {
	v := New()
	require.Error(t, v.Write(-1, []byte("x"), UsageHmacKey))
	require.Error(t, v.Write(SlotCount, []byte("x"), UsageHmacKey))
	_, err := v.Read(SlotCount+5, UsageHmacKey)
	require.Error(t, err)
}
