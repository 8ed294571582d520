package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openroot/romguard/pkg/bundle"
	"github.com/openroot/romguard/pkg/datavault"
	"github.com/openroot/romguard/pkg/engine"
	"github.com/openroot/romguard/pkg/fuse"
	"github.com/openroot/romguard/pkg/keyvault"
	"github.com/openroot/romguard/pkg/mailbox"
	"github.com/openroot/romguard/pkg/persist"
	"github.com/openroot/romguard/pkg/romerr"
	"github.com/openroot/romguard/pkg/translog"
)

func newTestCore(t *testing.T) (*Core, *keyvault.Vault) {
	t.Helper()
	vault := keyvault.New()
	eng := engine.NewHardwareFacade(vault)

	cdiUsage := keyvault.UsageHmacKey | keyvault.UsageEccKeygenSeed | keyvault.UsageMldsaKeygenSeed
	uds := make([]byte, 48)
	require.NoError(t, eng.TrngDraw(uds))
	require.NoError(t, vault.Write(slotUDS, uds, cdiUsage))

	c := &Core{
		Engine:  eng,
		Vault:   vault,
		Data:    datavault.New(),
		Persist: persist.New(),
		PCRs:    translog.NewBank(),
		Fuses:   &fuse.Bank{Lifecycle: fuse.LifecycleUnprovisioned, PqcKeyType: fuse.PqcKeyTypeMLDSA},
	}
	return c, vault
}

// badManifestBundle fails phaseA's marker check, the first phase
// Verify runs, so these tests exercise real DICE derivation through
// HardwareFacade without needing a fully cross-signed fixture.
func badManifestBundle() *bundle.Bundle {
	return &bundle.Bundle{
		Manifest: bundle.Manifest{Marker: 0xDEADBEEF},
		Bytes:    []byte{0, 0, 0, 0},
	}
}

func TestColdBootPropagatesVerifyFailureAndWipesVault(t *testing.T) {
	c, vault := newTestCore(t)
	mb := mailbox.NewLoop(c.PCRs, c.Persist, c.Fuses, false)

	loadBundle := func(ctx context.Context) (*bundle.Bundle, error) {
		return badManifestBundle(), nil
	}

	err := ColdBoot(context.Background(), c, mb, loadBundle)
	require.Error(t, err)
	require.ErrorIs(t, err, romerr.New(romerr.KindManifestMarkerMismatch))
	require.Equal(t, datavault.BootStatusLDevIDDerivationComplete, c.Data.ColdBootStatus)

	// DICE derivation got as far as LDevID before Verify failed; the
	// vault must have been wiped rather than left holding key material.
	_, readErr := vault.Read(slotLDevIDCDI, keyvault.UsageHmacKey)
	require.Error(t, readErr)
}

func TestUpdateResetPropagatesVerifyFailure(t *testing.T) {
	c, _ := newTestCore(t)
	c.Data.ColdBootStatus = datavault.BootStatusColdResetComplete
	c.Data.FwMinSvn = 3
	mb := mailbox.NewLoop(c.PCRs, c.Persist, c.Fuses, false)

	loadBundle := func(ctx context.Context) (*bundle.Bundle, error) {
		return badManifestBundle(), nil
	}

	err := UpdateReset(context.Background(), c, mb, loadBundle)
	require.Error(t, err)
	require.ErrorIs(t, err, romerr.New(romerr.KindManifestMarkerMismatch))
	require.Equal(t, datavault.BootStatusUpdateResetStarted, c.Data.UpdateResetStatus)
}

func TestDispatchUnknownReasonIsFatal(t *testing.T) {
	err := Dispatch(context.Background(), &Core{}, Unknown, nil, nil)
	require.True(t, romerr.IsFatal(err))
	require.ErrorIs(t, err, romerr.New(romerr.KindUnknownResetReason))
}

func TestWarmResetRejectsIncompleteColdBoot(t *testing.T) {
	c := &Core{Data: datavault.New()}
	err := WarmReset(context.Background(), c)
	require.True(t, romerr.IsFatal(err))
	require.ErrorIs(t, err, romerr.New(romerr.KindWarmResetAfterIncompleteCold))
}

func TestWarmResetRejectsUpdateResetStartedButNotComplete(t *testing.T) {
	c := &Core{Data: datavault.New()}
	c.Data.ColdBootStatus = datavault.BootStatusColdResetComplete
	c.Data.UpdateResetStatus = datavault.BootStatusUpdateResetStarted

	err := WarmReset(context.Background(), c)
	require.True(t, romerr.IsFatal(err))
	require.ErrorIs(t, err, romerr.New(romerr.KindWarmResetAfterIncompleteUpdate))
}

func TestWarmResetSucceedsAfterCompleteColdAndNoUpdate(t *testing.T) {
	c := &Core{Data: datavault.New()}
	c.Data.ColdBootStatus = datavault.BootStatusColdResetComplete

	require.NoError(t, WarmReset(context.Background(), c))
}

func TestWarmResetSucceedsAfterCompleteColdAndCompleteUpdate(t *testing.T) {
	c := &Core{Data: datavault.New()}
	c.Data.ColdBootStatus = datavault.BootStatusColdResetComplete
	c.Data.UpdateResetStatus = datavault.BootStatusUpdateResetComplete

	require.NoError(t, WarmReset(context.Background(), c))
}

func TestDeviceStatusVectorReflectsBothStatuses(t *testing.T) {
	d := datavault.New()
	d.ColdBootStatus = datavault.BootStatusColdResetComplete
	d.UpdateResetStatus = datavault.BootStatusUpdateResetStarted

	got := deviceStatusVector(d)
	require.Equal(t, []byte{byte(datavault.BootStatusColdResetComplete), byte(datavault.BootStatusUpdateResetStarted)}, got)
}
