package verify

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openroot/romguard/pkg/bundle"
	"github.com/openroot/romguard/pkg/engine"
	"github.com/openroot/romguard/pkg/fuse"
	"github.com/openroot/romguard/pkg/keyvault"
	"github.com/openroot/romguard/pkg/romerr"
)

// fakeEngine satisfies engine.Facade with real digests and
// unconditionally-successful signature verification, so an end-to-end
// test can exercise every phase without needing real signing keys.
type fakeEngine struct{}

func (fakeEngine) Sha256Digest(data []byte) ([32]byte, error) {
	return sha256.Sum256(data), nil
}

func (fakeEngine) Sha384Digest(src []byte, offset, length uint64) ([48]byte, error) {
	return sha512.Sum384(src[offset : offset+length]), nil
}

func (fakeEngine) Sha512Digest(src []byte, offset, length uint64) ([64]byte, error) {
	return sha512.Sum512(src[offset : offset+length]), nil
}

func (fakeEngine) Hmac(ctx context.Context, mode engine.HmacMode, key engine.KeyRef, data []byte, dest keyvault.SlotID, usage keyvault.Usage) error {
	return nil
}

func (fakeEngine) HmacKDF(ctx context.Context, mode engine.HmacMode, key keyvault.SlotID, label string, context []byte, dest keyvault.SlotID, usage keyvault.Usage) error {
	return nil
}

func (fakeEngine) Ecc384Keypair(ctx context.Context, seedSlot keyvault.SlotID, privOut keyvault.SlotID) (bundle.EccPublicKey, error) {
	return bundle.EccPublicKey{}, nil
}

func (fakeEngine) Ecc384Sign(ctx context.Context, privSlot keyvault.SlotID, pub bundle.EccPublicKey, digest [48]byte) (bundle.EccSignature, error) {
	return bundle.EccSignature{}, nil
}

func (fakeEngine) Ecc384Verify(pub bundle.EccPublicKey, digest [48]byte, sig bundle.EccSignature) (bool, error) {
	return true, nil
}

func (fakeEngine) LmsVerify(digest [48]byte, pub bundle.LmsPublicKey, sig bundle.LmsSignature) ([48]byte, error) {
	return pub.Digest, nil
}

func (fakeEngine) Mldsa87Keypair(ctx context.Context, seedSlot keyvault.SlotID) (bundle.MldsaPublicKey, error) {
	return bundle.MldsaPublicKey{}, nil
}

func (fakeEngine) Mldsa87Sign(ctx context.Context, seedSlot keyvault.SlotID, pub bundle.MldsaPublicKey, digest [64]byte) (bundle.MldsaSignature, error) {
	return bundle.MldsaSignature{}, nil
}

func (fakeEngine) Mldsa87Verify(pub bundle.MldsaPublicKey, msg [64]byte, sig bundle.MldsaSignature) (engine.MldsaVerifyResult, error) {
	return engine.MldsaSuccess, nil
}

func (fakeEngine) TrngDraw(dst []byte) error {
	for i := range dst {
		dst[i] = 0
	}
	return nil
}

func buildValidManifestAndBundle(t *testing.T) (*bundle.Manifest, []byte) {
	t.Helper()

	fmcBytes := make([]byte, 64)
	runtimeBytes := make([]byte, 64)
	for i := range fmcBytes {
		fmcBytes[i] = 0xAA
	}
	for i := range runtimeBytes {
		runtimeBytes[i] = 0xBB
	}
	bundleBytes := append(append([]byte{}, fmcBytes...), runtimeBytes...)

	fmcDigest := sha512.Sum384(fmcBytes)
	runtimeDigest := sha512.Sum384(runtimeBytes)

	m := &bundle.Manifest{
		Marker:     bundle.ManifestMarker,
		PqcKeyType: fuse.PqcKeyTypeMLDSA,
		Preamble: bundle.Preamble{
			VendorEccKeyDescriptor: bundle.KeyDescriptor{Hashes: make([][48]byte, 1)},
			VendorPqcKeyDescriptor: bundle.KeyDescriptor{Hashes: make([][48]byte, 1)},
			VendorPqcActivePubKey:  bundle.PqcKeyMaterial{Type: fuse.PqcKeyTypeMLDSA, Mldsa: &bundle.MldsaPublicKey{}},
			VendorPqcSignature:     bundle.PqcSignature{Type: fuse.PqcKeyTypeMLDSA, Mldsa: &bundle.MldsaSignature{}},
			OwnerPqcPubKey:         bundle.PqcKeyMaterial{Type: fuse.PqcKeyTypeMLDSA, Mldsa: &bundle.MldsaPublicKey{}},
			OwnerPqcSignature:      bundle.PqcSignature{Type: fuse.PqcKeyTypeMLDSA, Mldsa: &bundle.MldsaSignature{}},
		},
		Header: bundle.Header{
			FwSvn:  5,
			TocLen: bundle.MaxTocEntryCount,
		},
		FmcToc: bundle.TocEntry{
			Digest: fmcDigest, Offset: 0, Size: 64, LoadAddr: 0x1000, EntryPoint: 0x1000, Version: 1, Svn: 1,
		},
		RuntimeToc: bundle.TocEntry{
			Digest: runtimeDigest, Offset: 64, Size: 64, LoadAddr: 0x2000, EntryPoint: 0x2000, Version: 1, Svn: 1,
		},
	}

	tocRegion, err := serializeToc(m)
	require.NoError(t, err)
	m.Header.TocDigest = sha512.Sum384(tocRegion)

	size, err := manifestWireSize(m)
	require.NoError(t, err)
	m.Size = size

	return m, bundleBytes
}

func TestVerifyEndToEndColdBoot(t *testing.T) {
	fuses := &fuse.Bank{Lifecycle: fuse.LifecycleUnprovisioned, PqcKeyType: fuse.PqcKeyTypeMLDSA}
	m, bundleBytes := buildValidManifestAndBundle(t)
	declaredBundleSize := uint64(m.Size) + uint64(m.FmcToc.Size) + uint64(m.RuntimeToc.Size)

	info, err := Verify(context.Background(), fakeEngine{}, fuses, m, bundleBytes, declaredBundleSize, ColdReset, nil)
	require.NoError(t, err)
	require.Equal(t, m.FmcToc.Digest, info.FmcDigest)
	require.Equal(t, m.RuntimeToc.Digest, info.RuntimeDigest)
	require.Equal(t, uint32(5), info.FwSvn)
	require.Len(t, info.Log, 6)
	for _, entry := range info.Log {
		require.Empty(t, entry.Err)
	}
}

func TestVerifyEndToEndRejectsCorruptTocDigest(t *testing.T) {
	fuses := &fuse.Bank{Lifecycle: fuse.LifecycleUnprovisioned, PqcKeyType: fuse.PqcKeyTypeMLDSA}
	m, bundleBytes := buildValidManifestAndBundle(t)
	m.Header.TocDigest[0] ^= 0xFF
	declaredBundleSize := uint64(m.Size) + uint64(m.FmcToc.Size) + uint64(m.RuntimeToc.Size)

	_, err := Verify(context.Background(), fakeEngine{}, fuses, m, bundleBytes, declaredBundleSize, ColdReset, nil)
	require.ErrorIs(t, err, romerr.New(romerr.KindTocDigestMismatch))
}

func TestVerifyEndToEndUpdateResetChecksPriorState(t *testing.T) {
	fuses := &fuse.Bank{Lifecycle: fuse.LifecycleUnprovisioned, PqcKeyType: fuse.PqcKeyTypeMLDSA}
	m, bundleBytes := buildValidManifestAndBundle(t)
	declaredBundleSize := uint64(m.Size) + uint64(m.FmcToc.Size) + uint64(m.RuntimeToc.Size)

	ownerRegion := ownerKeyRegionBytes(&m.Preamble)
	prior := &PriorState{FmcDigest: m.FmcToc.Digest, OwnerPubKeyHash: sha512.Sum384(ownerRegion)}
	info, err := Verify(context.Background(), fakeEngine{}, fuses, m, bundleBytes, declaredBundleSize, UpdateReset, prior)
	require.NoError(t, err)
	require.Equal(t, m.RuntimeToc.Digest, info.RuntimeDigest)

	prior.FmcDigest[0] ^= 0xFF
	_, err = Verify(context.Background(), fakeEngine{}, fuses, m, bundleBytes, declaredBundleSize, UpdateReset, prior)
	require.Error(t, err)
}
