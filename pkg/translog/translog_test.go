package translog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPCRExtendAndLock(t *testing.T) {
	var p PCR
	initial := p.Value()

	require.NoError(t, p.Extend([]byte("measurement-1")))
	require.NotEqual(t, initial, p.Value())

	afterFirst := p.Value()
	require.NoError(t, p.Extend([]byte("measurement-2")))
	require.NotEqual(t, afterFirst, p.Value())

	p.Lock()
	require.True(t, p.Locked())
	require.Error(t, p.Extend([]byte("measurement-3")))
	require.Equal(t, afterFirst != p.Value(), true)
}

func TestBankExtendBootMirrorsPCR0AndPCR1(t *testing.T) {
	b := NewBank()
	require.NoError(t, b.ExtendBoot([]byte("a"), []byte("b")))
	require.Equal(t, b.PCR0.Value(), b.PCR1.Value())
	require.NotEqual(t, b.PCR31.Value(), b.PCR0.Value())
}

func TestBankLockAll(t *testing.T) {
	b := NewBank()
	b.LockAll()
	require.True(t, b.PCR0.Locked())
	require.True(t, b.PCR1.Locked())
	require.True(t, b.PCR31.Locked())
	require.Error(t, b.ExtendBoot([]byte("too-late")))
}

func TestChainAppendIsOrderedAndHashChained(t *testing.T) {
	var c Chain
	e0 := c.Append([]byte("first"))
	e1 := c.Append([]byte("second"))

	require.Equal(t, uint32(0), e0.Index)
	require.Equal(t, uint32(1), e1.Index)
	require.Equal(t, e0.Digest, e1.Prev)
	require.NotEqual(t, e0.Digest, e1.Digest)
	require.Equal(t, 2, c.Len())
}
