package dnssign

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha1" // #nosec G505 -- DS digest type 1 (SHA-1) is still a valid, deployed RFC 4034 option alongside SHA-256
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/lattice-dns/dnscore/internal/wire"
)

// ComputeKeyTag implements the RFC 4034 Appendix B key-tag checksum over a
// DNSKEY record's RDATA (flags, protocol=3, algorithm, public key). Ported
// from the teacher's DNSRecord.ComputeKeyTag, generalized to wire.Record.
func ComputeKeyTag(dnskey wire.Record) uint16 {
	rdata := make([]byte, 0, 4+len(dnskey.PublicKey))
	rdata = append(rdata, byte(dnskey.Flags>>8), byte(dnskey.Flags))
	rdata = append(rdata, 3) // protocol, always 3
	rdata = append(rdata, dnskey.Algorithm)
	rdata = append(rdata, dnskey.PublicKey...)

	var ac uint32
	for i, b := range rdata {
		if i&1 == 0 {
			ac += uint32(b) << 8
		} else {
			ac += uint32(b)
		}
	}
	ac += (ac >> 16) & 0xFFFF
	return uint16(ac & 0xFFFF)
}

// ComputeDS derives the DS record for dnskey owned by owner, per RFC 4034
// §5.1.4: digest over the canonical owner name followed by the DNSKEY
// RDATA. digestType 1 selects SHA-1, 2 selects SHA-256.
func ComputeDS(dnskey wire.Record, owner wire.Name, digestType uint8) (wire.Record, error) {
	e := wire.NewEncoder(wire.Uncompressed)
	defer e.Release()
	if err := e.WriteName(owner); err != nil {
		return wire.Record{}, err
	}
	e.WriteUint16(uint16(dnskey.Flags))
	e.WriteByte(3)
	e.WriteByte(dnskey.Algorithm)
	e.WriteBytes(dnskey.PublicKey)

	var digest []byte
	switch digestType {
	case 1:
		sum := sha1.Sum(e.Bytes()) // #nosec G401
		digest = sum[:]
	case 2:
		sum := sha256.Sum256(e.Bytes())
		digest = sum[:]
	default:
		return wire.Record{}, fmt.Errorf("dnssign: unsupported DS digest type %d", digestType)
	}

	return wire.Record{
		Name:       owner,
		Type:       wire.TypeDS,
		Class:      wire.ClassIN,
		KeyTag:     ComputeKeyTag(dnskey),
		Algorithm:  dnskey.Algorithm,
		DigestType: digestType,
		Digest:     digest,
	}, nil
}

// canonicalRRsetBytes serializes records in RFC 4034 §6.3 canonical form:
// each record as (owner-lowercased, type, class, orig TTL, rdlength, rdata),
// uncompressed, with the set sorted by rdata octets ascending. This is the
// piece the teacher's own SignRRSet left as "Simplified: Real DNSSEC
// requires canonical RDATA serialization here" — this package does the
// full canonicalization using wire.NewEncoder(wire.Signing), which already
// exists for exactly this purpose (no compression, deterministic rdata).
func canonicalRRsetBytes(records []wire.Record, origTTL uint32) ([]byte, error) {
	sorted := make([]wire.Record, len(records))
	copy(sorted, records)

	type canonicalRR struct{ rr, rdata []byte }
	encoded := make([]canonicalRR, len(sorted))
	for i, r := range sorted {
		r.Name = wire.Name(strings.ToLower(string(wire.NewName(string(r.Name)))))
		r.TTL = origTTL
		ne := wire.NewEncoder(wire.Signing)
		if err := ne.WriteName(r.Name); err != nil {
			ne.Release()
			return nil, err
		}
		rdataOffset := ne.Position() + 10 // owner, then type, class, TTL, rdlength
		ne.Release()
		e := wire.NewEncoder(wire.Signing)
		if err := wire.WriteRecord(e, &r); err != nil {
			e.Release()
			return nil, err
		}
		buf := make([]byte, e.Position())
		copy(buf, e.Bytes())
		e.Release()
		encoded[i] = canonicalRR{rr: buf, rdata: buf[rdataOffset:]}
	}

	sort.Slice(encoded, func(i, j int) bool {
		return compareBytes(encoded[i].rdata, encoded[j].rdata) < 0
	})

	var out []byte
	for _, b := range encoded {
		out = append(out, b.rr...)
	}
	return out, nil
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return int(a[i]) - int(b[i])
		}
	}
	return len(a) - len(b)
}

// SignRRset produces the RRSIG wire.Record covering records (all sharing
// one owner/type/class), signed by priv as signerName/keyTag, valid from
// inception to expiration. Algorithm is fixed to ECDSAP256SHA256 (13),
// matching the teacher. Unlike the teacher's packet.SignRRSet, the signed
// hash input is the full RFC 4034 canonical RRset encoding (see
// canonicalRRsetBytes) rather than owner+type+class+ttl alone.
func SignRRset(priv *ecdsa.PrivateKey, signerName wire.Name, keyTag uint16, inception, expiration uint32, records []wire.Record) (wire.Record, error) {
	if len(records) == 0 {
		return wire.Record{}, fmt.Errorf("dnssign: cannot sign empty rrset")
	}
	first := records[0]

	sig := wire.Record{
		Name:        first.Name,
		Type:        wire.TypeRRSIG,
		Class:       first.Class,
		TTL:         first.TTL,
		TypeCovered: uint16(first.Type),
		Algorithm:   AlgorithmECDSAP256SHA256,
		Labels:      uint8(len(first.Name.Labels())),
		OrigTTL:     first.TTL,
		Expiration:  expiration,
		Inception:   inception,
		KeyTag:      keyTag,
		SignerName:  signerName,
	}

	rrsigFields := wire.NewEncoder(wire.Uncompressed)
	defer rrsigFields.Release()
	rrsigFields.WriteUint16(sig.TypeCovered)
	rrsigFields.WriteByte(sig.Algorithm)
	rrsigFields.WriteByte(sig.Labels)
	rrsigFields.WriteUint32(sig.OrigTTL)
	rrsigFields.WriteUint32(sig.Expiration)
	rrsigFields.WriteUint32(sig.Inception)
	rrsigFields.WriteUint16(sig.KeyTag)
	if err := rrsigFields.WriteName(sig.SignerName); err != nil {
		return wire.Record{}, err
	}

	rrsetBytes, err := canonicalRRsetBytes(records, first.TTL)
	if err != nil {
		return wire.Record{}, err
	}

	h := sha256.New()
	h.Write(rrsigFields.Bytes())
	h.Write(rrsetBytes)
	digest := h.Sum(nil)

	r, s, err := ecdsa.Sign(rand.Reader, priv, digest)
	if err != nil {
		return wire.Record{}, fmt.Errorf("dnssign: sign rrset: %w", err)
	}

	const coordLen = 32
	signature := make([]byte, 2*coordLen)
	r.FillBytes(signature[:coordLen])
	s.FillBytes(signature[coordLen:])
	sig.Signature = signature

	return sig, nil
}
