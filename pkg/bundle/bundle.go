// Package bundle defines the image-bundle data model: the
// byte-contiguous Manifest ‖ FMC-bytes ‖ Runtime-bytes layout, and the
// Preamble/Header/TOC structs nested inside the manifest. Decoding
// here is purely structural; the semantic invariants on a valid bundle
// are enforced by pkg/verify, which is the only consumer allowed to
// reject a bundle.
package bundle

import (
	"fmt"

	"github.com/openroot/romguard/pkg/fuse"
)

// Fixed constants governing manifest shape and bundle limits.
const (
	// ManifestMarker is the magic value every valid manifest starts with.
	ManifestMarker uint32 = 0x4D414E31 // "1NAM" little-endian reading of "MAN1"

	// KeyDescriptorVersion is the only version accepted in a key
	// descriptor.
	KeyDescriptorVersion uint32 = 1

	// MaxEccKeyCount bounds the vendor ECC key descriptor's hash_count.
	MaxEccKeyCount = 4
	// MaxPqcKeyCount bounds the vendor PQC (LMS or MLDSA) descriptor's
	// hash_count.
	MaxPqcKeyCount = 32

	// MaxTocEntryCount is the fixed TOC shape: FMC then Runtime.
	MaxTocEntryCount = 2

	// MaxFirmwareSvn is the ceiling on fw_svn and the key-ladder's
	// maximum chain length.
	MaxFirmwareSvn uint32 = 128

	// EccCoordSize is the byte width of a P-384 field element.
	EccCoordSize = 48
	// MldsaPublicKeySize is the ML-DSA-87 public key size (FIPS 204).
	MldsaPublicKeySize = 2592
	// MldsaSignatureSize is the ML-DSA-87 signature size (FIPS 204).
	MldsaSignatureSize = 4627
	// LmsPublicKeyDigestSize is the width of the LMS candidate public
	// key hash value this verifier compares against.
	LmsPublicKeyDigestSize = 48
)

type Digest48 = [48]byte
type Digest64 = [64]byte
type Digest32 = [32]byte

// EccPublicKey is a raw P-384 public key (affine coordinates).
type EccPublicKey struct {
	X [EccCoordSize]byte
	Y [EccCoordSize]byte
}

// EccSignature is a raw P-384 ECDSA signature.
type EccSignature struct {
	R [EccCoordSize]byte
	S [EccCoordSize]byte
}

// LmsPublicKey is the LMS public key material embedded in a preamble.
// Real LMS public keys are variable-length (parameter-set dependent);
// romguard fixes a single parameter set, so this is the one digest the
// verifier ever needs.
type LmsPublicKey struct {
	Digest [LmsPublicKeyDigestSize]byte
}

// LmsSignature is an opaque LMS signature blob; its internal structure
// is the concern of the LMS engine, which is out-of-scope of this
// package.
type LmsSignature []byte

// MldsaPublicKey is a raw ML-DSA-87 public key.
type MldsaPublicKey struct {
	Bytes [MldsaPublicKeySize]byte
}

// MldsaSignature is a raw ML-DSA-87 signature.
type MldsaSignature struct {
	Bytes [MldsaSignatureSize]byte
}

// PqcKeyMaterial is a tagged union: an active PQC public key is either
// Lms or Mldsa, never both, selected by Type.
type PqcKeyMaterial struct {
	Type  fuse.PqcKeyType
	Lms   *LmsPublicKey
	Mldsa *MldsaPublicKey
}

// PqcSignature mirrors PqcKeyMaterial's tagging for signatures.
type PqcSignature struct {
	Type  fuse.PqcKeyType
	Lms   LmsSignature
	Mldsa *MldsaSignature
}

// KeyDescriptor is a vendor key descriptor (ECC or PQC family): a
// version, the key family, and the SHA-384 hashes of every key in the
// family's active set.
type KeyDescriptor struct {
	Version   uint32
	KeyType   fuse.PqcKeyType // only meaningful for the PQC descriptor
	HashCount uint32
	Hashes    [][48]byte
}

// HashCountMax returns the per-family bound on HashCount.
func (d *KeyDescriptor) HashCountMax(isPqc bool) uint32 {
	if isPqc {
		return MaxPqcKeyCount
	}
	return MaxEccKeyCount
}

// Preamble carries vendor and owner public-key material.
type Preamble struct {
	VendorEccKeyDescriptor KeyDescriptor
	VendorPqcKeyDescriptor KeyDescriptor

	VendorEccActivePubKey EccPublicKey
	VendorEccSignature    EccSignature // over the header's vendor digest

	VendorPqcActivePubKey PqcKeyMaterial
	VendorPqcSignature    PqcSignature // over the header's vendor digest

	OwnerEccPubKey    EccPublicKey
	OwnerEccSignature EccSignature // over the header's owner digest

	OwnerPqcPubKey    PqcKeyMaterial
	OwnerPqcSignature PqcSignature // over the header's owner digest

	VendorEccPubKeyIdx uint32
	VendorPqcPubKeyIdx uint32
}

// Header carries the manifest header fields. The digest domain is
// split: VendorDigestRegion covers the prefix up to OwnerData;
// OwnerDigestRegion covers the whole header.
type Header struct {
	VendorEccPubKeyIdx uint32
	VendorPqcPubKeyIdx uint32

	FwSvn      uint32
	TocLen     uint32
	TocDigest  Digest48

	VendorData Digest32

	// OwnerData and everything after it is covered only by the owner
	// digest, not the vendor digest.
	OwnerData Digest32

	NotBefore [15]byte
	NotAfter  [15]byte

	Reserved []byte
}

// HeaderLayout captures where the vendor/owner digest domains split, so
// the verifier can slice a serialized header without re-deriving
// offsets from field order by hand.
type HeaderLayout struct {
	VendorDigestLen int // bytes from the start of the header up to OwnerData
	TotalLen        int
}

// TocEntry describes one loadable component (FMC or Runtime).
type TocEntry struct {
	Digest     Digest48
	LoadAddr   uint32
	EntryPoint uint32
	Size       uint32
	Offset     uint32
	Version    uint32
	Svn        uint32
}

// End returns Offset+Size, the exclusive upper bound of this entry's
// range within the bundle.
func (t TocEntry) End() uint64 {
	return uint64(t.Offset) + uint64(t.Size)
}

// LoadEnd returns LoadAddr+Size-1, the inclusive upper bound of this
// entry's ICCM load range. Callers must check for overflow before
// trusting this value.
func (t TocEntry) LoadEnd() (uint64, bool) {
	end := uint64(t.LoadAddr) + uint64(t.Size)
	if t.Size == 0 {
		return 0, false
	}
	return end - 1, end-1 >= uint64(t.LoadAddr)
}

// Manifest is the fixed-size structural header of an image bundle.
type Manifest struct {
	Marker     uint32
	Size       uint32
	PqcKeyType fuse.PqcKeyType

	Preamble Preamble
	Header   Header

	FmcToc     TocEntry
	RuntimeToc TocEntry
}

// Bundle is the full byte-contiguous image: Manifest ‖ FMC ‖ Runtime.
// Manifest has already been parsed; Bytes is the entire wire
// transaction as staged in mailbox SRAM, used by the engine facade to
// compute digests directly over byte ranges.
type Bundle struct {
	Manifest Manifest
	Bytes    []byte
}

// FmcRange returns the [offset, offset+size) range of the FMC image
// within Bytes.
func (b *Bundle) FmcRange() (uint64, uint64) {
	return uint64(b.Manifest.FmcToc.Offset), b.Manifest.FmcToc.End()
}

// RuntimeRange returns the [offset, offset+size) range of the Runtime
// image within Bytes.
func (b *Bundle) RuntimeRange() (uint64, uint64) {
	return uint64(b.Manifest.RuntimeToc.Offset), b.Manifest.RuntimeToc.End()
}

// TotalDeclaredSize is manifest.size + fmc.size + runtime.size,
// compared against the bundle size transacted over the mailbox.
func (b *Bundle) TotalDeclaredSize(manifestSize uint32) uint64 {
	return uint64(manifestSize) + uint64(b.Manifest.FmcToc.Size) + uint64(b.Manifest.RuntimeToc.Size)
}

// SliceAt returns b.Bytes[offset:offset+length], bounds-checked.
func (b *Bundle) SliceAt(offset, length uint64) ([]byte, error) {
	if offset > uint64(len(b.Bytes)) || length > uint64(len(b.Bytes))-offset {
		return nil, fmt.Errorf("bundle: slice [%d:%d) out of range (len %d)", offset, offset+length, len(b.Bytes))
	}
	return b.Bytes[offset : offset+length], nil
}
