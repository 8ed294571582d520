// Package x509tbs is a pure byte-builder for certificate
// to-be-signed bodies, standing in for a full X.509 TBS template
// encoder: callers hand it a Fields value and get back bytes to hash
// and sign, with no ASN.1/DER correctness claimed or required by the
// rest of romguard — only that the same Fields always serialize to
// the same bytes.
package x509tbs

import (
	"bytes"
	"encoding/binary"
)

// Fields is everything a DICE-layer certificate TBS needs.
type Fields struct {
	SubjectSN        [64]byte // printable hex
	IssuerSN         [64]byte
	SubjectKeyID     [20]byte
	AuthorityKeyID   [20]byte
	UEID             [17]byte
	DebugLocked      bool
	Lifecycle        uint8
	Measurements     [][48]byte
	// FwSvn is written into the certificate's SVN field; every layer's
	// certificate records the same overall firmware SVN rather than a
	// distinct per-layer value.
	FwSvn       uint32
	FuseSvn     uint32
	NotBefore   [15]byte
	NotAfter    [15]byte
	SubjectPub  []byte
}

// Build serializes fields into a deterministic TBS byte string. Field
// order is fixed and documented so two builds of identical Fields
// always produce identical bytes (the one property the rest of
// romguard — digesting and signing the TBS — depends on).
func Build(f Fields) []byte {
	var buf bytes.Buffer
	buf.Write(f.SubjectSN[:])
	buf.Write(f.IssuerSN[:])
	buf.Write(f.SubjectKeyID[:])
	buf.Write(f.AuthorityKeyID[:])
	buf.Write(f.UEID[:])
	if f.DebugLocked {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	buf.WriteByte(f.Lifecycle)
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(f.Measurements)))
	buf.Write(countBuf[:])
	for _, m := range f.Measurements {
		buf.Write(m[:])
	}
	var svnBuf [4]byte
	binary.LittleEndian.PutUint32(svnBuf[:], f.FwSvn)
	buf.Write(svnBuf[:])
	binary.LittleEndian.PutUint32(svnBuf[:], f.FuseSvn)
	buf.Write(svnBuf[:])
	buf.Write(f.NotBefore[:])
	buf.Write(f.NotAfter[:])
	buf.Write(f.SubjectPub)
	return buf.Bytes()
}
