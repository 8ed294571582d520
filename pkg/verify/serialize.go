package verify

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/openroot/romguard/pkg/bundle"
	"github.com/openroot/romguard/pkg/fuse"
)

// These helpers serialize the manifest regions the verifier digests.
// Field order matches pkg/bundle's struct declarations; a real wire
// decoder would derive both from one schema, but romguard's codec is
// the hand-maintained pair this package and pkg/bundle already are.

func pqcKeyMaterialBytes(k bundle.PqcKeyMaterial) []byte {
	if k.Type == 0 && k.Lms != nil {
		return k.Lms.Digest[:]
	}
	if k.Mldsa != nil {
		return k.Mldsa.Bytes[:]
	}
	return nil
}

func serializeVendorDescriptors(p *bundle.Preamble) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeDescriptor(&buf, &p.VendorEccKeyDescriptor); err != nil {
		return nil, err
	}
	if err := writeDescriptor(&buf, &p.VendorPqcKeyDescriptor); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeDescriptor(buf *bytes.Buffer, d *bundle.KeyDescriptor) error {
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], d.Version)
	buf.Write(u32[:])
	binary.LittleEndian.PutUint32(u32[:], uint32(d.KeyType))
	buf.Write(u32[:])
	binary.LittleEndian.PutUint32(u32[:], d.HashCount)
	buf.Write(u32[:])
	if uint32(len(d.Hashes)) != d.HashCount {
		return fmt.Errorf("verify: descriptor hash_count %d does not match %d hashes present", d.HashCount, len(d.Hashes))
	}
	for _, h := range d.Hashes {
		buf.Write(h[:])
	}
	return nil
}

func ownerKeyRegionBytes(p *bundle.Preamble) []byte {
	var buf bytes.Buffer
	buf.Write(p.OwnerEccPubKey.X[:])
	buf.Write(p.OwnerEccPubKey.Y[:])
	buf.Write(pqcKeyMaterialBytes(p.OwnerPqcPubKey))
	return buf.Bytes()
}

// headerDigestRegions returns (vendorRegion, ownerRegion) per the
// header's split digest domain: vendorRegion is the header prefix up
// to OwnerData; ownerRegion is the whole header.
func headerDigestRegions(h *bundle.Header) (vendor, owner []byte) {
	var buf bytes.Buffer
	var u32 [4]byte

	binary.LittleEndian.PutUint32(u32[:], h.VendorEccPubKeyIdx)
	buf.Write(u32[:])
	binary.LittleEndian.PutUint32(u32[:], h.VendorPqcPubKeyIdx)
	buf.Write(u32[:])
	binary.LittleEndian.PutUint32(u32[:], h.FwSvn)
	buf.Write(u32[:])
	binary.LittleEndian.PutUint32(u32[:], h.TocLen)
	buf.Write(u32[:])
	buf.Write(h.TocDigest[:])
	buf.Write(h.VendorData[:])

	vendorLen := buf.Len()

	buf.Write(h.OwnerData[:])
	buf.Write(h.NotBefore[:])
	buf.Write(h.NotAfter[:])
	buf.Write(h.Reserved)

	full := buf.Bytes()
	return append([]byte{}, full[:vendorLen]...), append([]byte{}, full...)
}

func serializeToc(m *bundle.Manifest) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeTocEntry(&buf, m.FmcToc); err != nil {
		return nil, err
	}
	if err := writeTocEntry(&buf, m.RuntimeToc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeTocEntry(buf *bytes.Buffer, t bundle.TocEntry) error {
	buf.Write(t.Digest[:])
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], t.LoadAddr)
	buf.Write(u32[:])
	binary.LittleEndian.PutUint32(u32[:], t.EntryPoint)
	buf.Write(u32[:])
	binary.LittleEndian.PutUint32(u32[:], t.Size)
	buf.Write(u32[:])
	binary.LittleEndian.PutUint32(u32[:], t.Offset)
	buf.Write(u32[:])
	binary.LittleEndian.PutUint32(u32[:], t.Version)
	buf.Write(u32[:])
	binary.LittleEndian.PutUint32(u32[:], t.Svn)
	buf.Write(u32[:])
	return nil
}

// manifestWireSize computes the serialized byte length m.Size must
// equal: marker, size, pqc_key_type, the preamble's fixed and
// PQC-family-dependent regions, the header, and the TOC. The PQC
// fields vary with the key family and each descriptor's hash_count, so
// this is computed per-manifest rather than compared against one fixed
// constant.
func manifestWireSize(m *bundle.Manifest) (uint32, error) {
	vendorDesc, err := serializeVendorDescriptors(&m.Preamble)
	if err != nil {
		return 0, err
	}
	_, headerRegion := headerDigestRegions(&m.Header)
	toc, err := serializeToc(m)
	if err != nil {
		return 0, err
	}

	size := 4 + 4 + 4 // marker, size, pqc_key_type
	size += len(vendorDesc)
	size += bundle.EccCoordSize * 2 // VendorEccActivePubKey
	size += bundle.EccCoordSize * 2 // VendorEccSignature
	size += pqcMaterialLen(m.PqcKeyType, m.Preamble.VendorPqcActivePubKey)
	size += pqcSignatureLen(m.PqcKeyType, m.Preamble.VendorPqcSignature)
	size += bundle.EccCoordSize * 2 // OwnerEccPubKey
	size += bundle.EccCoordSize * 2 // OwnerEccSignature
	size += pqcMaterialLen(m.PqcKeyType, m.Preamble.OwnerPqcPubKey)
	size += pqcSignatureLen(m.PqcKeyType, m.Preamble.OwnerPqcSignature)
	size += 4 + 4 // Preamble.VendorEccPubKeyIdx, VendorPqcPubKeyIdx
	size += len(headerRegion)
	size += len(toc)

	return uint32(size), nil
}

func pqcMaterialLen(t fuse.PqcKeyType, k bundle.PqcKeyMaterial) int {
	if t == fuse.PqcKeyTypeLMS {
		if k.Lms == nil {
			return 0
		}
		return len(k.Lms.Digest)
	}
	if k.Mldsa == nil {
		return 0
	}
	return len(k.Mldsa.Bytes)
}

func pqcSignatureLen(t fuse.PqcKeyType, s bundle.PqcSignature) int {
	if t == fuse.PqcKeyTypeLMS {
		return len(s.Lms)
	}
	if s.Mldsa == nil {
		return 0
	}
	return len(s.Mldsa.Bytes)
}
