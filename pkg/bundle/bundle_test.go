package bundle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openroot/romguard/pkg/fuse"
)

func TestTocEntryEnd(t *testing.T) {
	e := TocEntry{Offset: 100, Size: 50}
	require.Equal(t, uint64(150), e.End())
}

func TestTocEntryLoadEnd(t *testing.T) {
	t.Run("zero size is never a valid range", func(t *testing.T) {
		e := TocEntry{LoadAddr: 0x1000, Size: 0}
		_, ok := e.LoadEnd()
		require.False(t, ok)
	})

	t.Run("nonzero size yields inclusive end", func(t *testing.T) {
		e := TocEntry{LoadAddr: 0x1000, Size: 0x100}
		end, ok := e.LoadEnd()
		require.True(t, ok)
		require.Equal(t, uint64(0x10FF), end)
	})
}

func TestKeyDescriptorHashCountMax(t *testing.T) {
	d := &KeyDescriptor{}
	require.Equal(t, uint32(MaxEccKeyCount), d.HashCountMax(false))
	require.Equal(t, uint32(MaxPqcKeyCount), d.HashCountMax(true))
}

func TestBundleRangesAndDeclaredSize(t *testing.T) {
	b := &Bundle{
		Manifest: Manifest{
			PqcKeyType: fuse.PqcKeyTypeMLDSA,
			FmcToc:     TocEntry{Offset: 0, Size: 10},
			RuntimeToc: TocEntry{Offset: 10, Size: 20},
		},
	}

	start, end := b.FmcRange()
	require.Equal(t, uint64(0), start)
	require.Equal(t, uint64(10), end)

	start, end = b.RuntimeRange()
	require.Equal(t, uint64(10), start)
	require.Equal(t, uint64(30), end)

	require.Equal(t, uint64(128), b.TotalDeclaredSize(98))
}

func TestBundleSliceAtBoundsChecked(t *testing.T) {
	b := &Bundle{Bytes: []byte("0123456789")}

	got, err := b.SliceAt(2, 4)
	require.NoError(t, err)
	require.Equal(t, []byte("2345"), got)

	_, err = b.SliceAt(8, 10)
	require.Error(t, err)

	_, err = b.SliceAt(20, 1)
	require.Error(t, err)
}
