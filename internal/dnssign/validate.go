package dnssign

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"fmt"
	"math/big"
	"time"

	"github.com/lattice-dns/dnscore/internal/wire"
)

// TrustAnchor pins a zone's key by the RFC 4034 DS-style digest of its
// DNSKEY RDATA, configured out of band instead of discovered by walking a
// chain of DS records down from the root.
type TrustAnchor struct {
	Zone       wire.Name
	KeyTag     uint16
	Algorithm  uint8
	DigestType uint8
	Digest     []byte
}

// Validator implements the static-key chain of trust: a zone's DNSKEY
// RRset is trusted once one of its keys matches a configured TrustAnchor's
// digest, and an answer RRset is trusted once a trusted DNSKEY's RRSIG
// verifies over it. Grounded on SignRRset's own canonical signing input
// (rrsigFields || canonicalRRsetBytes); VerifyRRset re-derives that same
// digest and checks it with ecdsa.Verify instead of ecdsa.Sign.
type Validator struct {
	anchors map[string][]TrustAnchor
}

// NewValidator indexes anchors by lowercased zone name.
func NewValidator(anchors []TrustAnchor) *Validator {
	v := &Validator{anchors: make(map[string][]TrustAnchor, len(anchors))}
	for _, a := range anchors {
		key := string(a.Zone.Lower())
		v.anchors[key] = append(v.anchors[key], a)
	}
	return v
}

// TrustedDNSKEY returns the record in dnskeys whose computed DS digest
// matches a configured anchor for owner, or false if none do.
func (v *Validator) TrustedDNSKEY(owner wire.Name, dnskeys []wire.Record) (wire.Record, bool) {
	anchors, ok := v.anchors[string(owner.Lower())]
	if !ok {
		return wire.Record{}, false
	}
	for _, dnskey := range dnskeys {
		if dnskey.Type != wire.TypeDNSKEY {
			continue
		}
		for _, a := range anchors {
			ds, err := ComputeDS(dnskey, owner, a.DigestType)
			if err != nil {
				continue
			}
			if ds.KeyTag == a.KeyTag && ds.Algorithm == a.Algorithm && digestsEqual(ds.Digest, a.Digest) {
				return dnskey, true
			}
		}
	}
	return wire.Record{}, false
}

func digestsEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// VerifyRRset checks that rrsig validly covers records under dnskey,
// reconstructing the same canonical signing input SignRRset produces and
// rejecting signatures outside their Inception/Expiration window.
func (v *Validator) VerifyRRset(records []wire.Record, rrsig wire.Record, dnskey wire.Record, now time.Time) error {
	if dnskey.Algorithm != AlgorithmECDSAP256SHA256 || rrsig.Algorithm != AlgorithmECDSAP256SHA256 {
		return fmt.Errorf("dnssign: unsupported algorithm %d", rrsig.Algorithm)
	}
	const coordLen = 32
	if len(dnskey.PublicKey) != 2*coordLen {
		return fmt.Errorf("dnssign: malformed DNSKEY public key length %d", len(dnskey.PublicKey))
	}
	if len(rrsig.Signature) != 2*coordLen {
		return fmt.Errorf("dnssign: malformed RRSIG signature length %d", len(rrsig.Signature))
	}
	if tag := ComputeKeyTag(dnskey); tag != rrsig.KeyTag {
		return fmt.Errorf("dnssign: RRSIG key tag %d does not match DNSKEY %d", rrsig.KeyTag, tag)
	}

	ts := uint32(now.Unix())
	if ts < rrsig.Inception || ts > rrsig.Expiration {
		return fmt.Errorf("dnssign: RRSIG outside its validity window")
	}

	rrsigFields := wire.NewEncoder(wire.Uncompressed)
	defer rrsigFields.Release()
	rrsigFields.WriteUint16(rrsig.TypeCovered)
	rrsigFields.WriteByte(rrsig.Algorithm)
	rrsigFields.WriteByte(rrsig.Labels)
	rrsigFields.WriteUint32(rrsig.OrigTTL)
	rrsigFields.WriteUint32(rrsig.Expiration)
	rrsigFields.WriteUint32(rrsig.Inception)
	rrsigFields.WriteUint16(rrsig.KeyTag)
	if err := rrsigFields.WriteName(rrsig.SignerName); err != nil {
		return err
	}

	rrsetBytes, err := canonicalRRsetBytes(records, rrsig.OrigTTL)
	if err != nil {
		return err
	}

	h := sha256.New()
	h.Write(rrsigFields.Bytes())
	h.Write(rrsetBytes)
	digest := h.Sum(nil)

	pub := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(dnskey.PublicKey[:coordLen]),
		Y:     new(big.Int).SetBytes(dnskey.PublicKey[coordLen:]),
	}
	r := new(big.Int).SetBytes(rrsig.Signature[:coordLen])
	s := new(big.Int).SetBytes(rrsig.Signature[coordLen:])
	if !ecdsa.Verify(pub, digest, r, s) {
		return fmt.Errorf("dnssign: RRSIG signature does not verify")
	}
	return nil
}

// NSEC3Verdict is the outcome of checking a response's NSEC3 records
// against the configured iteration caps (RFC 5155 §10.3 / RFC 9276).
type NSEC3Verdict int

const (
	// NSEC3OK means no NSEC3 record exceeded the soft cap.
	NSEC3OK NSEC3Verdict = iota
	// NSEC3Insecure means a record exceeded the soft cap but not the hard
	// cap: the denial-of-existence proof is too costly to trust, so the
	// response should be treated as Insecure rather than validated.
	NSEC3Insecure
	// NSEC3TooCostly means a record exceeded the hard cap: the resolver
	// must refuse to process the proof at all.
	NSEC3TooCostly
)

// CheckNSEC3Iterations scans records for NSEC3 RRs and returns the worst
// verdict against softCap/hardCap. A zero cap disables that check.
func CheckNSEC3Iterations(records []wire.Record, softCap, hardCap int) NSEC3Verdict {
	verdict := NSEC3OK
	for _, rec := range records {
		if rec.Type != wire.TypeNSEC3 {
			continue
		}
		iter := int(rec.Iterations)
		if hardCap > 0 && iter > hardCap {
			return NSEC3TooCostly
		}
		if softCap > 0 && iter > softCap {
			verdict = NSEC3Insecure
		}
	}
	return verdict
}
