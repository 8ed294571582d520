package keyladder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openroot/romguard/pkg/bundle"
	"github.com/openroot/romguard/pkg/engine"
	"github.com/openroot/romguard/pkg/keyvault"
)

// newTestLadder writes seed into slot 0 and roots a ladder there, with
// slot 1 as its running value.
func newTestLadder(t *testing.T, seed [48]byte) *Ladder {
	t.Helper()
	vault := keyvault.New()
	require.NoError(t, vault.Write(0, seed[:], keyvault.UsageHmacKey))
	l, err := New(engine.NewHardwareFacade(vault), vault, 0, 1)
	require.NoError(t, err)
	return l
}

func TestInitCold(t *testing.T) {
	tests := []struct {
		name       string
		fwSvn      uint32
		wantLength uint32
		wantErr    bool
	}{
		{name: "svn zero yields max-length chain", fwSvn: 0, wantLength: bundle.MaxFirmwareSvn},
		{name: "svn at max yields zero-length chain", fwSvn: bundle.MaxFirmwareSvn, wantLength: 0},
		{name: "mid-range svn", fwSvn: 100, wantLength: bundle.MaxFirmwareSvn - 100},
		{name: "svn exceeds max is an error", fwSvn: bundle.MaxFirmwareSvn + 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLadder(t, [48]byte{1, 2, 3})
			err := l.InitCold(context.Background(), tt.fwSvn)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantLength, l.Length())
		})
	}
}

func TestExtendOnUpdate(t *testing.T) {
	l := newTestLadder(t, [48]byte{1})
	require.NoError(t, l.InitCold(context.Background(), 10))
	startLen := l.Length()

	require.NoError(t, l.ExtendOnUpdate(context.Background(), 50, 40))
	require.Equal(t, startLen+10, l.Length())

	// Raising min-svn would shorten the chain, which must be rejected.
	err := l.ExtendOnUpdate(context.Background(), 40, 41)
	require.Error(t, err)
	require.Equal(t, startLen+10, l.Length())
}

func TestExtendOnUpdateNoChangeIsNoop(t *testing.T) {
	l := newTestLadder(t, [48]byte{9})
	require.NoError(t, l.InitCold(context.Background(), 5))
	before, err := l.Value()
	require.NoError(t, err)
	require.NoError(t, l.ExtendOnUpdate(context.Background(), 20, 20))
	after, err := l.Value()
	require.NoError(t, err)
	require.Equal(t, before, after)
}
