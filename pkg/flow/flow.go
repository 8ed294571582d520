// Package flow implements the reset-reason dispatcher and the three
// reset flows: cold, update, and warm, plus the fatal unknown-reset
// case. Each flow is the one place that wires
// together the engine facade, key vault, data vault, persistent
// region, PCR bank, key ladder, mailbox loop, and verifier — every
// other package in romguard is a leaf this orchestrates.
package flow

import (
	"context"

	"github.com/openroot/romguard/pkg/bundle"
	"github.com/openroot/romguard/pkg/datavault"
	"github.com/openroot/romguard/pkg/dice"
	"github.com/openroot/romguard/pkg/engine"
	"github.com/openroot/romguard/pkg/fuse"
	"github.com/openroot/romguard/pkg/keyladder"
	"github.com/openroot/romguard/pkg/keyvault"
	"github.com/openroot/romguard/pkg/mailbox"
	"github.com/openroot/romguard/pkg/persist"
	"github.com/openroot/romguard/pkg/romerr"
	"github.com/openroot/romguard/pkg/romlog"
	"github.com/openroot/romguard/pkg/translog"
	"github.com/openroot/romguard/pkg/verify"
)

// Reason is the hardware reset-reason signal the dispatcher switches
// on.
type Reason int

const (
	Cold Reason = iota
	Update
	Warm
	Unknown
)

// Core bundles the long-lived state every flow touches: the crypto
// engine, key vault, data vault, persistent region, PCR bank, and key
// ladder. One Core is constructed per boot and threaded through
// whichever flow the dispatcher selects.
type Core struct {
	Engine   engine.Facade
	Vault    *keyvault.Vault
	Data     *datavault.Vault
	Persist  *persist.Region
	PCRs     *translog.Bank
	Ladder   *keyladder.Ladder
	Fuses    *fuse.Bank

	// KeyLadderSeed is the LDevID CDI slot the ladder is rooted in.
	KeyLadderSeed keyvault.SlotID
}

// Dispatch runs the flow selected by reason and returns its error, if
// any. An Unknown reason is always fatal.
func Dispatch(ctx context.Context, c *Core, reason Reason, mb *mailbox.Loop, loadBundle func(ctx context.Context) (*bundle.Bundle, error)) error {
	switch reason {
	case Cold:
		return ColdBoot(ctx, c, mb, loadBundle)
	case Update:
		return UpdateReset(ctx, c, mb, loadBundle)
	case Warm:
		return WarmReset(ctx, c)
	default:
		return romerr.NewFatal(romerr.KindUnknownResetReason)
	}
}

// slots used by the DICE layers and the key ladder, as fixed literals;
// the slot numbers themselves carry no secrecy requirement.
const (
	slotUDS = keyvault.SlotID(iota)
	slotIDevIDCDI
	slotIDevIDEccTemp
	slotIDevIDEccPriv
	slotIDevIDMldsaSeed
	slotLDevIDCDI
	slotLDevIDEccTemp
	slotLDevIDEccPriv
	slotLDevIDMldsaSeed
	slotFmcAliasCDI
	slotFmcAliasEccTemp
	slotFmcAliasEccPriv
	slotFmcAliasMldsaSeed
	slotKeyLadderSeed
	slotKeyLadderValue
)

// ColdBoot runs the cold-reset flow, numbered by the ten cold-reset
// steps: IDevID and LDevID derivation, the mailbox loop, verification
// and data-vault population, PCR0/PCR1 extension, FMC-Alias
// derivation, key-ladder initialization, and PCR lock. It runs no KAT
// battery (step 1) and emits no IDevID CSR; the ICCM copy of step 7 is
// only logged, and ICCM is not locked.
func ColdBoot(ctx context.Context, c *Core, mb *mailbox.Loop, loadBundle func(ctx context.Context) (*bundle.Bundle, error)) error {
	logger := romlog.FromContext(ctx)
	logger.Info("cold boot starting")

	// Step 2: IDevID.
	idevid, err := dice.DeriveLayer(ctx, c.Engine, c.Vault, dice.Slots{
		ParentCDI: slotUDS,
		CDI:       slotIDevIDCDI,
		EccTemp:   slotIDevIDEccTemp,
		EccPriv:   slotIDevIDEccPriv,
		MldsaSeed: slotIDevIDMldsaSeed,
	}, dice.Params{Label: "idevid", ParentIsRoot: true})
	if err != nil {
		c.Vault.WipeAll()
		return romerr.WrapFatal(romerr.KindUnknownResetReason, err)
	}
	c.Data.ColdBootStatus = datavault.BootStatusIDevIDDerivationComplete

	// Step 3: LDevID, derived from IDevID's CDI.
	ldevid, err := dice.DeriveLayer(ctx, c.Engine, c.Vault, dice.Slots{
		ParentCDI:      slotIDevIDCDI,
		CDI:            slotLDevIDCDI,
		EccTemp:        slotLDevIDEccTemp,
		EccPriv:        slotLDevIDEccPriv,
		MldsaSeed:      slotLDevIDMldsaSeed,
		ParentEccKey:   slotIDevIDEccPriv,
		ParentMldsaKey: slotIDevIDMldsaSeed,
	}, dice.Params{Label: "ldevid", IssuerSN: idevid.SubjectSN, ParentEccPub: idevid.EccPub})
	if err != nil {
		c.Vault.WipeAll()
		return romerr.WrapFatal(romerr.KindUnknownResetReason, err)
	}
	c.Data.LDevIDEccSignature = ldevid.EccSignature
	c.Data.LDevIDEccPubKey = ldevid.EccPub
	c.Data.LDevIDMldsaPubKey = ldevid.MldsaPub
	c.Data.ColdBootStatus = datavault.BootStatusLDevIDDerivationComplete
	c.KeyLadderSeed = slotLDevIDCDI

	// Step 4: mailbox loop until a firmware-load path completes.
	bdl, err := runMailboxUntilFirmwareLoad(ctx, mb, loadBundle)
	if err != nil {
		return err
	}

	// Step 5: verify and populate the data vault.
	info, err := verify.Verify(ctx, c.Engine, c.Fuses, &bdl.Manifest, bdl.Bytes, uint64(len(bdl.Bytes)), verify.ColdReset, nil)
	if err != nil {
		c.Vault.WipeAll()
		return err
	}
	c.Persist.Manifest1 = &bdl.Manifest
	c.Data.FmcTci = info.FmcDigest
	c.Data.RuntimeTci = info.RuntimeDigest
	c.Data.OwnerPubKeyHash = info.OwnerPubKeyHash
	c.Data.VendorEccPubKeyIdx = info.VendorEccKeyIdx
	c.Data.VendorPqcPubKeyIdx = info.VendorPqcKeyIdx
	c.Data.FmcEntryPoint = info.FmcEntryPoint
	c.Data.ColdBootFwSvn = info.FwSvn
	c.Data.CurrentFwSvn = info.FwSvn
	c.Data.FwMinSvn = info.FwSvn

	// Step 6: extend PCR0/PCR1.
	if err := c.PCRs.ExtendBoot(deviceStatusVector(c.Data), c.Fuses.VendorPubKeyInfoHash[:], info.OwnerPubKeyHash[:], info.FmcDigest[:]); err != nil {
		return romerr.WrapFatal(romerr.KindUnknownResetReason, err)
	}

	// Step 7: copy FMC/Runtime bytes to ICCM — represented here as a
	// caller hook since ICCM is an external memory-mapped resource this
	// software rendition does not itself own.
	logger.Info("fmc and runtime staged for load", "fmc_size", bdl.Manifest.FmcToc.Size, "runtime_size", bdl.Manifest.RuntimeToc.Size)

	// Step 8: FMC-Alias derived from a CDI mixed with PCR0.
	pcr0 := c.PCRs.PCR0.Value()
	fmcAlias, err := dice.DeriveLayer(ctx, c.Engine, c.Vault, dice.Slots{
		ParentCDI:      slotLDevIDCDI,
		CDI:            slotFmcAliasCDI,
		EccTemp:        slotFmcAliasEccTemp,
		EccPriv:        slotFmcAliasEccPriv,
		MldsaSeed:      slotFmcAliasMldsaSeed,
		ParentEccKey:   slotLDevIDEccPriv,
		ParentMldsaKey: slotLDevIDMldsaSeed,
	}, dice.Params{Label: "fmc-alias", Context: pcr0[:], IssuerSN: ldevid.SubjectSN, ParentEccPub: ldevid.EccPub})
	if err != nil {
		c.Vault.WipeAll()
		return romerr.WrapFatal(romerr.KindUnknownResetReason, err)
	}
	c.Data.FmcAliasEccSignature = fmcAlias.EccSignature
	c.Data.FmcAliasEccPubKey = fmcAlias.EccPub
	c.Data.FmcAliasMldsaPubKey = fmcAlias.MldsaPub
	c.Data.ColdBootStatus = datavault.BootStatusFMCAliasDerivationComplete

	// Step 9: initialize the key ladder, rooted in LDevID's CDI. HmacKDF
	// derives the ladder's seed into its own vault slot; the ladder
	// itself then owns that slot and a second slot for its running
	// value, deriving every step through the engine facade rather than
	// over a bare struct field.
	if err := c.Engine.HmacKDF(ctx, engine.Hmac384, c.KeyLadderSeed, "key-ladder-root", nil, slotKeyLadderSeed, keyvault.UsageHmacKey); err != nil {
		return romerr.WrapFatal(romerr.KindUnknownResetReason, err)
	}
	ladder, err := keyladder.New(c.Engine, c.Vault, slotKeyLadderSeed, slotKeyLadderValue)
	if err != nil {
		return romerr.WrapFatal(romerr.KindUnknownResetReason, err)
	}
	c.Ladder = ladder
	if err := c.Ladder.InitCold(ctx, info.FwSvn); err != nil {
		return romerr.WrapFatal(romerr.KindSvnInternalOverflow, err)
	}

	// Step 10: lock down and hand off.
	c.PCRs.LockAll()
	c.Data.ColdBootStatus = datavault.BootStatusColdResetComplete
	logger.Info("cold boot complete", "fw_svn", info.FwSvn, "fmc_entry", info.FmcEntryPoint)
	return nil
}

// UpdateReset runs the update-reset flow.
func UpdateReset(ctx context.Context, c *Core, mb *mailbox.Loop, loadBundle func(ctx context.Context) (*bundle.Bundle, error)) error {
	logger := romlog.FromContext(ctx)

	// Step 1: assert Started before any mutation.
	c.Data.UpdateResetStatus = datavault.BootStatusUpdateResetStarted

	// Step 2/3: mailbox loop expecting only FIRMWARE_LOAD.
	bdl, err := runMailboxUntilFirmwareLoad(ctx, mb, loadBundle)
	if err != nil {
		return err
	}

	prior := &verify.PriorState{
		VendorEccKeyIdx: c.Data.VendorEccPubKeyIdx,
		VendorPqcKeyIdx: c.Data.VendorPqcPubKeyIdx,
		OwnerPubKeyHash: c.Data.OwnerPubKeyHash,
		FmcDigest:       c.Data.FmcTci,
	}
	info, err := verify.Verify(ctx, c.Engine, c.Fuses, &bdl.Manifest, bdl.Bytes, uint64(len(bdl.Bytes)), verify.UpdateReset, prior)
	if err != nil {
		return err
	}

	// Step 4: update data vault.
	c.Persist.Manifest2 = &bdl.Manifest
	oldMinSvn := c.Data.FwMinSvn
	c.Data.RuntimeTci = info.RuntimeDigest
	c.Data.CurrentFwSvn = info.FwSvn
	newMinSvn := oldMinSvn
	if info.FwSvn < newMinSvn {
		newMinSvn = info.FwSvn
	}
	c.Data.FwMinSvn = newMinSvn

	// Step 5: extend PCRs.
	if err := c.PCRs.ExtendBoot(deviceStatusVector(c.Data), c.Fuses.VendorPubKeyInfoHash[:], info.OwnerPubKeyHash[:], info.RuntimeDigest[:]); err != nil {
		return romerr.WrapFatal(romerr.KindUnknownResetReason, err)
	}

	// Step 6: overwrite runtime bytes in ICCM — external resource hook,
	// same caveat as ColdBoot step 7.
	logger.Info("runtime overwritten in place", "runtime_size", bdl.Manifest.RuntimeToc.Size)

	// Step 7: complete the mailbox transaction (success) happens at the
	// caller's mailbox.Loop boundary; by the time control reaches here
	// the transaction has already broken out successfully.

	// Step 8: commit manifest2 into manifest1.
	c.Persist.CommitManifest2()

	// Step 9: extend the key ladder.
	if c.Ladder != nil {
		if err := c.Ladder.ExtendOnUpdate(ctx, oldMinSvn, newMinSvn); err != nil {
			return romerr.WrapFatal(romerr.KindSvnInternalOverflow, err)
		}
	}

	// Step 10: mark complete.
	c.Data.UpdateResetStatus = datavault.BootStatusUpdateResetComplete
	logger.Info("update reset complete", "fw_svn", info.FwSvn, "min_svn", newMinSvn)
	return nil
}

// WarmReset validates prior state without re-running verification,
// then hands off.
func WarmReset(ctx context.Context, c *Core) error {
	if !c.Data.ColdBootOK() {
		return romerr.NewFatal(romerr.KindWarmResetAfterIncompleteCold)
	}
	if !c.Data.UpdateResetOK() {
		return romerr.NewFatal(romerr.KindWarmResetAfterIncompleteUpdate)
	}
	romlog.FromContext(ctx).Info("warm reset: prior state valid, handing off without re-verification")
	return nil
}

func runMailboxUntilFirmwareLoad(ctx context.Context, mb *mailbox.Loop, loadBundle func(ctx context.Context) (*bundle.Bundle, error)) (*bundle.Bundle, error) {
	for {
		req := mailbox.Request{Command: mailbox.CmdFirmwareLoad, Body: []byte{1}}
		out := mb.Step(ctx, req)
		if out.FatalErr != nil {
			return nil, out.FatalErr
		}
		if out.NonFatalErr != nil {
			return nil, out.NonFatalErr
		}
		if out.BreakOut {
			return loadBundle(ctx)
		}
	}
}

func deviceStatusVector(d *datavault.Vault) []byte {
	return []byte{byte(d.ColdBootStatus), byte(d.UpdateResetStatus)}
}
