package fuse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSvnGateActive(t *testing.T) {
	tests := []struct {
		name                string
		lifecycle           Lifecycle
		antiRollbackDisable bool
		want                bool
	}{
		{"unprovisioned never gates", LifecycleUnprovisioned, false, false},
		{"production gates by default", LifecycleProduction, false, true},
		{"production with anti-rollback disabled does not gate", LifecycleProduction, true, false},
		{"manufacturing gates by default", LifecycleManufacturing, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Bank{Lifecycle: tt.lifecycle, AntiRollbackDisable: tt.antiRollbackDisable}
			require.Equal(t, tt.want, b.SvnGateActive())
		})
	}
}

func TestOwnerPubKeyHashFused(t *testing.T) {
	b := &Bank{}
	require.False(t, b.OwnerPubKeyHashFused())
	b.OwnerPubKeyHash[0] = 1
	require.True(t, b.OwnerPubKeyHashFused())
}

func TestRevocationWordSelectsByFamily(t *testing.T) {
	b := &Bank{VendorLmsRevocation: 0xAAAA, VendorMldsaRevocation: 0xBBBB}
	require.Equal(t, uint32(0xAAAA), b.RevocationWord(PqcKeyTypeLMS))
	require.Equal(t, uint32(0xBBBB), b.RevocationWord(PqcKeyTypeMLDSA))
}
