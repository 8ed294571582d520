// Package datavault implements the persistent data vault: TCIs,
// public-key hashes, SVNs, and certificate signatures that survive
// warm and update resets. It is an arena-owned value mutably borrowed
// by the active flow and immutably read by the verifier; the verifier
// must never retain a reference to it across a phase boundary.
package datavault

import "github.com/openroot/romguard/pkg/bundle"

// BootStatus is the ROM cold-boot / update-reset progress enum; warm
// reset checks it before trusting prior state.
type BootStatus int

const (
	BootStatusNone BootStatus = iota
	BootStatusIDevIDDerivationComplete
	BootStatusLDevIDDerivationComplete
	BootStatusFMCAliasDerivationComplete
	BootStatusColdResetComplete
	BootStatusUpdateResetStarted
	BootStatusUpdateResetComplete
)

// Vault holds everything the data vault must carry across resets.
type Vault struct {
	// TCIs
	FmcTci     bundle.Digest48
	RuntimeTci bundle.Digest48

	OwnerPubKeyHash bundle.Digest48

	VendorEccPubKeyIdx uint32
	VendorPqcPubKeyIdx uint32

	FmcEntryPoint uint32

	ColdBootFwSvn uint32
	CurrentFwSvn  uint32
	FwMinSvn      uint32

	LDevIDEccSignature bundle.EccSignature
	LDevIDEccPubKey    bundle.EccPublicKey
	LDevIDMldsaPubKey  bundle.MldsaPublicKey

	FmcAliasEccSignature bundle.EccSignature
	FmcAliasEccPubKey    bundle.EccPublicKey
	FmcAliasMldsaPubKey  bundle.MldsaPublicKey

	ManifestAddr uint32

	ColdBootStatus   BootStatus
	UpdateResetStatus BootStatus
}

func New() *Vault {
	return &Vault{}
}

// ColdBootOK reports whether the prior cold boot completed, the check
// warm reset performs before proceeding.
func (v *Vault) ColdBootOK() bool {
	return v.ColdBootStatus == BootStatusColdResetComplete
}

// UpdateResetOK reports whether either no update reset has ever been
// attempted, or the most recent one completed — warm reset must reject
// the case where one was Started but never reached Complete.
func (v *Vault) UpdateResetOK() bool {
	return v.UpdateResetStatus == BootStatusNone || v.UpdateResetStatus == BootStatusUpdateResetComplete
}
