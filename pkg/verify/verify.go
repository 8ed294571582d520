// Package verify implements the image verifier: a single entry point
// that takes a manifest, its declared bundle size, and a reset reason
// and runs it through fixed phases A-F, each of whose first error
// terminates the whole operation. Every comparison that gates a
// security decision goes through pkg/cfi so a fault manifests as a
// panic rather than a silent wrong answer.
package verify

import (
	"context"

	"github.com/openroot/romguard/pkg/bundle"
	"github.com/openroot/romguard/pkg/cfi"
	"github.com/openroot/romguard/pkg/engine"
	"github.com/openroot/romguard/pkg/fuse"
	"github.com/openroot/romguard/pkg/romerr"
)

// ResetReason selects which cross-reset invariants Phase B/E enforce.
type ResetReason int

const (
	ColdReset ResetReason = iota
	UpdateReset
	WarmReset
)

// Executor is the capability set Verify drives its phases through: the
// full crypto engine facade, plus a diagnostic hook Verify calls once
// after each phase so a caller can recover the phase-by-phase trail
// without reading Err alone.
type Executor interface {
	engine.Facade
	LogPhase(phase string, err error)
}

// LogEntry is one phase's outcome in Info.Log.
type LogEntry struct {
	Phase string
	Err   string
}

// facadeExecutor is the Executor Verify constructs internally: it wraps
// the caller's engine.Facade and appends to the Info being built.
type facadeExecutor struct {
	engine.Facade
	info *Info
}

func (e *facadeExecutor) LogPhase(phase string, err error) {
	entry := LogEntry{Phase: phase}
	if err != nil {
		entry.Err = err.Error()
	}
	e.info.Log = append(e.info.Log, entry)
}

// PriorState carries the data-vault values an update-reset verification
// must cross-check against.
type PriorState struct {
	VendorEccKeyIdx uint32
	VendorPqcKeyIdx uint32
	OwnerPubKeyHash [48]byte
	FmcDigest       [48]byte
}

// Info is what Verify returns on success: the facts the calling flow
// needs to populate the data vault and PCRs, plus the phase-by-phase
// diagnostic trail Executor.LogPhase accumulated along the way.
type Info struct {
	Log []LogEntry

	FwSvn uint32

	VendorEccKeyIdx uint32
	VendorPqcKeyIdx uint32

	OwnerPubKeyHash    [48]byte
	OwnerPubKeyInFuses bool

	VendorActiveEccPub EccPub
	VendorActivePqcPub bundle.PqcKeyMaterial
	OwnerActiveEccPub  EccPub
	OwnerActivePqcPub  bundle.PqcKeyMaterial

	FmcDigest     [48]byte
	RuntimeDigest [48]byte

	FmcEntryPoint     uint32
	RuntimeEntryPoint uint32
}

// EccPub is a thin alias kept local to verify so Info's field names
// read naturally; it is bundle.EccPublicKey underneath.
type EccPub = bundle.EccPublicKey

// Verify runs the fixed phase sequence over manifest, returning the
// first phase's error or a populated Info. eng need only satisfy
// engine.Facade; Verify wraps it in an Executor internally so Info.Log
// carries the phase trail regardless of what the caller passed in.
func Verify(ctx context.Context, eng engine.Facade, fuses *fuse.Bank, m *bundle.Manifest, bundleBytes []byte, declaredBundleSize uint64, reason ResetReason, prior *PriorState) (*Info, error) {
	info := &Info{}
	ex := &facadeExecutor{Facade: eng, info: info}

	errA := phaseA(m, fuses)
	ex.LogPhase("A", errA)
	if errA != nil {
		return nil, errA
	}

	ownerDigest, ownerInFuses, errB := phaseB(ex, fuses, m, reason, prior, info)
	ex.LogPhase("B", errB)
	if errB != nil {
		return nil, errB
	}

	errC := phaseC(ex, m, info)
	ex.LogPhase("C", errC)
	if errC != nil {
		return nil, errC
	}

	tocRegion, err := serializeToc(m)
	if err != nil {
		ex.LogPhase("D", err)
		return nil, err
	}
	errD := phaseD(ex, m, tocRegion, declaredBundleSize)
	ex.LogPhase("D", errD)
	if errD != nil {
		return nil, errD
	}

	errE := phaseE(ex, m, bundleBytes, reason, prior, info)
	ex.LogPhase("E", errE)
	if errE != nil {
		return nil, errE
	}

	errF := phaseF(fuses, m)
	ex.LogPhase("F", errF)
	if errF != nil {
		return nil, errF
	}

	info.OwnerPubKeyHash = ownerDigest
	info.OwnerPubKeyInFuses = ownerInFuses
	info.FwSvn = m.Header.FwSvn
	info.FmcEntryPoint = m.FmcToc.EntryPoint
	info.RuntimeEntryPoint = m.RuntimeToc.EntryPoint

	return info, nil
}

// phaseA is the Structural phase: marker, wire size, and PQC key type.
func phaseA(m *bundle.Manifest, fuses *fuse.Bank) error {
	if !cfi.Equal(u32bytes(m.Marker), u32bytes(bundle.ManifestMarker)).Assert() {
		return romerr.New(romerr.KindManifestMarkerMismatch)
	}
	wireSize, err := manifestWireSize(m)
	if err != nil {
		return romerr.Wrap(romerr.KindManifestSizeMismatch, err)
	}
	if !cfi.Equal(u32bytes(m.Size), u32bytes(wireSize)).Assert() {
		return romerr.New(romerr.KindManifestSizeMismatch)
	}
	if m.PqcKeyType != fuse.PqcKeyTypeLMS && m.PqcKeyType != fuse.PqcKeyTypeMLDSA {
		return romerr.New(romerr.KindPqcKeyTypeMismatch)
	}
	if !cfi.Bool(m.PqcKeyType == fuses.PqcKeyType).Assert() {
		return romerr.New(romerr.KindPqcKeyTypeMismatch)
	}
	return nil
}

func u32bytes(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

// phaseB is the Preamble phase. The vendor descriptor/digest checks
// are skipped entirely in the unprovisioned lifecycle, but the vendor
// key index gates and the resulting Info population always run: they
// are independent top-level steps, not part of the lifecycle-gated
// descriptor check.
func phaseB(eng engine.Facade, fuses *fuse.Bank, m *bundle.Manifest, reason ResetReason, prior *PriorState, info *Info) (ownerDigest [48]byte, ownerInFuses bool, err error) {
	p := &m.Preamble

	if fuses.Lifecycle != fuse.LifecycleUnprovisioned {
		if fuses.VendorPubKeyInfoHash == ([48]byte{}) {
			return ownerDigest, false, romerr.New(romerr.KindVendorPubKeyDigestFuse)
		}
		if err := checkDescriptor(&p.VendorEccKeyDescriptor, bundle.MaxEccKeyCount); err != nil {
			return ownerDigest, false, err
		}
		if err := checkDescriptor(&p.VendorPqcKeyDescriptor, bundle.MaxPqcKeyCount); err != nil {
			return ownerDigest, false, err
		}
		if p.VendorPqcKeyDescriptor.KeyType != m.PqcKeyType {
			return ownerDigest, false, romerr.New(romerr.KindDescriptorKeyType)
		}

		region, err := serializeVendorDescriptors(p)
		if err != nil {
			return ownerDigest, false, err
		}
		computed, derr := eng.Sha384Digest(region, 0, uint64(len(region)))
		if derr != nil {
			return ownerDigest, false, romerr.Wrap(romerr.KindSha384EngineFailure, derr)
		}
		if !cfi.Equal(computed[:], fuses.VendorPubKeyInfoHash[:]).Assert() {
			return ownerDigest, false, romerr.New(romerr.KindVendorPubKeyDigestFuse)
		}

		eccKeyBytes := append(append([]byte{}, p.VendorEccActivePubKey.X[:]...), p.VendorEccActivePubKey.Y[:]...)
		eccKeyDigest, derr := eng.Sha384Digest(eccKeyBytes, 0, uint64(len(eccKeyBytes)))
		if derr != nil {
			return ownerDigest, false, romerr.Wrap(romerr.KindSha384EngineFailure, derr)
		}
		if p.VendorEccPubKeyIdx >= uint32(len(p.VendorEccKeyDescriptor.Hashes)) {
			return ownerDigest, false, romerr.New(romerr.KindVendorEccKeyIndexOOB)
		}
		if !cfi.Equal(eccKeyDigest[:], p.VendorEccKeyDescriptor.Hashes[p.VendorEccPubKeyIdx][:]).Assert() {
			return ownerDigest, false, romerr.New(romerr.KindVendorEccKeyDigestInDesc)
		}

		pqcKeyBytes := pqcKeyMaterialBytes(p.VendorPqcActivePubKey)
		pqcKeyDigest, derr := eng.Sha384Digest(pqcKeyBytes, 0, uint64(len(pqcKeyBytes)))
		if derr != nil {
			return ownerDigest, false, romerr.Wrap(romerr.KindSha384EngineFailure, derr)
		}
		if p.VendorPqcPubKeyIdx >= uint32(len(p.VendorPqcKeyDescriptor.Hashes)) {
			return ownerDigest, false, romerr.New(romerr.KindVendorPqcKeyIndexOOB)
		}
		if !cfi.Equal(pqcKeyDigest[:], p.VendorPqcKeyDescriptor.Hashes[p.VendorPqcPubKeyIdx][:]).Assert() {
			return ownerDigest, false, romerr.New(romerr.KindVendorPqcKeyDigestInDesc)
		}
	}

	if err := vendorIndexGate(fuses.VendorEccRevocation, p.VendorEccPubKeyIdx, uint32(len(p.VendorEccKeyDescriptor.Hashes)), romerr.KindVendorEccKeyRevoked); err != nil {
		return ownerDigest, false, err
	}
	if err := vendorIndexGate(fuses.RevocationWord(m.PqcKeyType), p.VendorPqcPubKeyIdx, uint32(len(p.VendorPqcKeyDescriptor.Hashes)), romerr.KindVendorPqcKeyRevoked); err != nil {
		return ownerDigest, false, err
	}

	if reason == UpdateReset && prior != nil {
		if p.VendorEccPubKeyIdx != prior.VendorEccKeyIdx || p.VendorPqcPubKeyIdx != prior.VendorPqcKeyIdx {
			return ownerDigest, false, romerr.New(romerr.KindUpdateResetIndexMismatch)
		}
	}

	info.VendorActiveEccPub = p.VendorEccActivePubKey
	info.VendorActivePqcPub = p.VendorPqcActivePubKey
	info.VendorEccKeyIdx = p.VendorEccPubKeyIdx
	info.VendorPqcKeyIdx = p.VendorPqcPubKeyIdx

	ownerRegion := ownerKeyRegionBytes(p)
	computedOwner, derr := eng.Sha384Digest(ownerRegion, 0, uint64(len(ownerRegion)))
	if derr != nil {
		return ownerDigest, false, romerr.Wrap(romerr.KindSha384EngineFailure, derr)
	}
	ownerInFuses = fuses.OwnerPubKeyHashFused()
	if ownerInFuses {
		if !cfi.Equal(computedOwner[:], fuses.OwnerPubKeyHash[:]).Assert() {
			return ownerDigest, false, romerr.New(romerr.KindOwnerPubKeyDigestFuse)
		}
	}
	if reason == UpdateReset && prior != nil {
		if !cfi.Equal(computedOwner[:], prior.OwnerPubKeyHash[:]).Assert() {
			return ownerDigest, false, romerr.New(romerr.KindUpdateResetOwnerDigestFailure)
		}
	}

	info.OwnerActiveEccPub = p.OwnerEccPubKey
	info.OwnerActivePqcPub = p.OwnerPqcPubKey

	return computedOwner, ownerInFuses, nil
}

func checkDescriptor(d *bundle.KeyDescriptor, max uint32) error {
	if d.Version != bundle.KeyDescriptorVersion {
		return romerr.New(romerr.KindDescriptorVersion)
	}
	if d.HashCount == 0 || d.HashCount > max || uint32(len(d.Hashes)) != d.HashCount {
		return romerr.New(romerr.KindDescriptorHashCount)
	}
	return nil
}

func vendorIndexGate(revocation uint32, idx uint32, hashCount uint32, revokedKind romerr.Kind) error {
	if hashCount == 0 {
		return romerr.New(romerr.KindVendorEccKeyIndexOOB)
	}
	lastIdx := hashCount - 1
	if idx > lastIdx {
		return romerr.New(romerr.KindVendorEccKeyIndexOOB)
	}
	if idx == lastIdx {
		return nil
	}
	if !cfi.Bool(revocation&(1<<idx) == 0).Assert() {
		return romerr.New(revokedKind)
	}
	return nil
}

// phaseC is the Header phase: vendor and owner signature verification
// over the manifest header, plus the index cross-check against Phase B.
func phaseC(eng engine.Facade, m *bundle.Manifest, info *Info) error {
	vendorRegion, ownerRegion := headerDigestRegions(&m.Header)

	vendor384, err := eng.Sha384Digest(vendorRegion, 0, uint64(len(vendorRegion)))
	if err != nil {
		return romerr.Wrap(romerr.KindSha384EngineFailure, err)
	}
	owner384, err := eng.Sha384Digest(ownerRegion, 0, uint64(len(ownerRegion)))
	if err != nil {
		return romerr.Wrap(romerr.KindSha384EngineFailure, err)
	}

	ok, err := eng.Ecc384Verify(m.Preamble.VendorEccActivePubKey, vendor384, m.Preamble.VendorEccSignature)
	if err != nil {
		return romerr.Wrap(romerr.KindVendorEccSignatureEngine, err)
	}
	if !cfi.Bool(ok).Assert() {
		return romerr.New(romerr.KindVendorEccSignatureInvalid)
	}

	if m.PqcKeyType == fuse.PqcKeyTypeLMS {
		candidate, err := eng.LmsVerify(vendor384, *m.Preamble.VendorPqcActivePubKey.Lms, m.Preamble.VendorPqcSignature.Lms)
		if err != nil {
			return romerr.Wrap(romerr.KindVendorPqcSignatureEngine, err)
		}
		if !cfi.Equal(candidate[:], m.Preamble.VendorPqcActivePubKey.Lms.Digest[:]).Assert() {
			return romerr.New(romerr.KindVendorPqcSignatureInvalid)
		}
	} else {
		vendor512, err := eng.Sha512Digest(vendorRegion, 0, uint64(len(vendorRegion)))
		if err != nil {
			return romerr.Wrap(romerr.KindSha512EngineFailure, err)
		}
		res, err := eng.Mldsa87Verify(*m.Preamble.VendorPqcActivePubKey.Mldsa, vendor512, *m.Preamble.VendorPqcSignature.Mldsa)
		if err != nil {
			return romerr.Wrap(romerr.KindVendorPqcSignatureEngine, err)
		}
		if !cfi.Bool(res == engine.MldsaSuccess).Assert() {
			return romerr.New(romerr.KindVendorPqcSignatureInvalid)
		}
	}

	if m.Header.VendorEccPubKeyIdx != info.VendorEccKeyIdx || m.Header.VendorPqcPubKeyIdx != info.VendorPqcKeyIdx {
		return romerr.New(romerr.KindHeaderVendorIndexMismatch)
	}

	ok, err = eng.Ecc384Verify(m.Preamble.OwnerEccPubKey, owner384, m.Preamble.OwnerEccSignature)
	if err != nil {
		return romerr.Wrap(romerr.KindOwnerEccSignatureEngine, err)
	}
	if !cfi.Bool(ok).Assert() {
		return romerr.New(romerr.KindOwnerEccSignatureInvalid)
	}

	if m.PqcKeyType == fuse.PqcKeyTypeLMS {
		candidate, err := eng.LmsVerify(owner384, *m.Preamble.OwnerPqcPubKey.Lms, m.Preamble.OwnerPqcSignature.Lms)
		if err != nil {
			return romerr.Wrap(romerr.KindOwnerPqcSignatureEngine, err)
		}
		if !cfi.Equal(candidate[:], m.Preamble.OwnerPqcPubKey.Lms.Digest[:]).Assert() {
			return romerr.New(romerr.KindOwnerPqcSignatureInvalid)
		}
	} else {
		owner512, err := eng.Sha512Digest(ownerRegion, 0, uint64(len(ownerRegion)))
		if err != nil {
			return romerr.Wrap(romerr.KindSha512EngineFailure, err)
		}
		res, err := eng.Mldsa87Verify(*m.Preamble.OwnerPqcPubKey.Mldsa, owner512, *m.Preamble.OwnerPqcSignature.Mldsa)
		if err != nil {
			return romerr.Wrap(romerr.KindOwnerPqcSignatureEngine, err)
		}
		if !cfi.Bool(res == engine.MldsaSuccess).Assert() {
			return romerr.New(romerr.KindOwnerPqcSignatureInvalid)
		}
	}

	return nil
}

// phaseD is the TOC phase: entry count, digest, geometry, and ICCM
// placement of the FMC and Runtime components.
func phaseD(eng engine.Facade, m *bundle.Manifest, tocRegion []byte, declaredBundleSize uint64) error {
	if !cfi.Equal(u32bytes(m.Header.TocLen), u32bytes(uint32(bundle.MaxTocEntryCount))).Assert() {
		return romerr.New(romerr.KindTocEntryCountMismatch)
	}

	computed, err := eng.Sha384Digest(tocRegion, 0, uint64(len(tocRegion)))
	if err != nil {
		return romerr.Wrap(romerr.KindSha384EngineFailure, err)
	}
	if !cfi.Equal(computed[:], m.Header.TocDigest[:]).Assert() {
		return romerr.New(romerr.KindTocDigestMismatch)
	}

	if m.FmcToc.Size == 0 {
		return romerr.New(romerr.KindFmcSizeZero)
	}
	if m.RuntimeToc.Size == 0 {
		return romerr.New(romerr.KindRuntimeSizeZero)
	}

	total := uint64(m.Size) + uint64(m.FmcToc.Size) + uint64(m.RuntimeToc.Size)
	if total > declaredBundleSize {
		return romerr.New(romerr.KindImageExceedsBundle)
	}

	fmcEnd := m.FmcToc.End()
	runtimeStart := uint64(m.RuntimeToc.Offset)
	if fmcEnd > runtimeStart {
		return romerr.New(romerr.KindFmcRuntimeOverlap)
	}
	if m.RuntimeToc.Offset < m.FmcToc.Offset {
		return romerr.New(romerr.KindFmcRuntimeOutOfOrder)
	}

	if err := checkLoadRange(m.FmcToc); err != nil {
		return err
	}
	if err := checkLoadRange(m.RuntimeToc); err != nil {
		return err
	}

	fmcLoadEnd, _ := m.FmcToc.LoadEnd()
	runtimeLoadEnd, _ := m.RuntimeToc.LoadEnd()
	if rangesOverlap(uint64(m.FmcToc.LoadAddr), fmcLoadEnd, uint64(m.RuntimeToc.LoadAddr), runtimeLoadEnd) {
		return romerr.New(romerr.KindIccmRangeOverlap)
	}

	return nil
}

func checkLoadRange(t bundle.TocEntry) error {
	end, ok := t.LoadEnd()
	if !ok {
		return romerr.New(romerr.KindLoadAddressOverflow)
	}
	if !IccmRange.Contains(uint64(t.LoadAddr), end) {
		return romerr.New(romerr.KindLoadAddressNotInIccm)
	}
	if t.LoadAddr%4 != 0 {
		return romerr.New(romerr.KindLoadAddressUnaligned)
	}
	if t.EntryPoint%4 != 0 {
		return romerr.New(romerr.KindEntryPointUnaligned)
	}
	return nil
}

func rangesOverlap(aStart, aEnd, bStart, bEnd uint64) bool {
	return aStart <= bEnd && bStart <= aEnd
}

// Range is an inclusive address range, used here to describe ICCM's
// fixed bounds.
type Range struct {
	Start, End uint64
}

func (r Range) Contains(start, end uint64) bool {
	return start >= r.Start && end <= r.End
}

// IccmRange is the ICCM address window load ranges are checked
// against. It is not read from romconfig's IccmStart/IccmEnd; it is a
// package var spanning the whole 32-bit space so a test fixture can
// narrow it without needing a romconfig dependency in this package.
var IccmRange = Range{Start: 0, End: 0xFFFFFFFF}

// phaseE is the Images phase: FMC and Runtime digests over the bundle
// bytes, with a cross-reset equality check for FMC on update reset.
func phaseE(eng engine.Facade, m *bundle.Manifest, bundleBytes []byte, reason ResetReason, prior *PriorState, info *Info) error {
	fmcStart, fmcEnd := uint64(m.FmcToc.Offset), m.FmcToc.End()
	if fmcEnd > uint64(len(bundleBytes)) {
		return romerr.New(romerr.KindImageExceedsBundle)
	}
	fmcDigest, err := eng.Sha384Digest(bundleBytes[fmcStart:fmcEnd], 0, fmcEnd-fmcStart)
	if err != nil {
		return romerr.Wrap(romerr.KindSha384EngineFailure, err)
	}
	if !cfi.Equal(fmcDigest[:], m.FmcToc.Digest[:]).Assert() {
		return romerr.New(romerr.KindFmcDigestMismatch)
	}
	if reason == UpdateReset && prior != nil {
		if !cfi.Equal(fmcDigest[:], prior.FmcDigest[:]).Assert() {
			return romerr.New(romerr.KindUpdateResetFmcDigestMismatch)
		}
	}

	runtimeStart, runtimeEnd := uint64(m.RuntimeToc.Offset), m.RuntimeToc.End()
	if runtimeEnd > uint64(len(bundleBytes)) {
		return romerr.New(romerr.KindImageExceedsBundle)
	}
	runtimeDigest, err := eng.Sha384Digest(bundleBytes[runtimeStart:runtimeEnd], 0, runtimeEnd-runtimeStart)
	if err != nil {
		return romerr.Wrap(romerr.KindSha384EngineFailure, err)
	}
	if !cfi.Equal(runtimeDigest[:], m.RuntimeToc.Digest[:]).Assert() {
		return romerr.New(romerr.KindRuntimeDigestMismatch)
	}

	info.FmcDigest = fmcDigest
	info.RuntimeDigest = runtimeDigest
	return nil
}

// phaseF is the SVN gate: skipped in unprovisioned lifecycle or when
// anti-rollback is disabled, otherwise fw_svn is bounded above by
// MaxFirmwareSvn and below by the fused floor.
func phaseF(fuses *fuse.Bank, m *bundle.Manifest) error {
	if !fuses.SvnGateActive() {
		return nil
	}
	if m.Header.FwSvn > bundle.MaxFirmwareSvn {
		return romerr.New(romerr.KindSvnExceedsMax)
	}
	if !cfi.Bool(m.Header.FwSvn >= fuses.FwFuseSvn).Assert() {
		return romerr.New(romerr.KindSvnBelowFloor)
	}
	return nil
}
