package recursor

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/lattice-dns/dnscore/internal/dnserr"
	"github.com/lattice-dns/dnscore/internal/dnssign"
	"github.com/lattice-dns/dnscore/internal/lookup"
	"github.com/lattice-dns/dnscore/internal/wire"
)

// buildValidator converts the configured static-key anchors into a
// dnssign.Validator, along with the set of zone names they cover (used for
// the closest-encloser lookup in trustAnchorZone). Anchors with an
// unparsable digest are skipped rather than rejected outright, matching
// the teacher's general tolerance of bad individual config entries over a
// hard startup failure deep in a resolver constructor.
func buildValidator(cfg StaticKeyConfig) (*dnssign.Validator, []wire.LowerName) {
	var anchors []dnssign.TrustAnchor
	seen := make(map[wire.LowerName]bool)
	var zones []wire.LowerName
	for _, a := range cfg.Anchors {
		digest, err := hex.DecodeString(a.DigestHex)
		if err != nil {
			continue
		}
		zone := wire.NewName(a.Zone)
		anchors = append(anchors, dnssign.TrustAnchor{
			Zone:       zone,
			KeyTag:     a.KeyTag,
			Algorithm:  a.Algorithm,
			DigestType: a.DigestType,
			Digest:     digest,
		})
		if lower := zone.Lower(); !seen[lower] {
			seen[lower] = true
			zones = append(zones, lower)
		}
	}
	return dnssign.NewValidator(anchors), zones
}

// trustAnchorZone returns the configured anchor zone that most closely
// encloses name, if any.
func (r *Resolver) trustAnchorZone(name wire.LowerName) (wire.Name, bool) {
	if len(r.anchorZones) == 0 {
		return "", false
	}
	zone, ok := wire.LongestSuffixMatch(name, r.anchorZones)
	if !ok {
		return "", false
	}
	return wire.NewName(string(zone)), true
}

// finalizeDNSSEC applies the configured DNSSECPolicy's AD-bit consequences
// to a final (positive or NXDOMAIN) response, per spec §4.7's three-way
// table. SecurityUnaware and ValidationDisabled only ever clear the bit.
// ValidateWithStaticKey enforces the NSEC3 iteration caps, then — for
// ordinary (non-DNSKEY) positive answers — fetches the nearest configured
// trust-anchor zone's DNSKEY RRset, confirms one of its keys matches a
// configured anchor digest, and verifies the answer's RRSIG against that
// key before setting AD. Any step that can't be completed (no anchor
// covers the name, no RRSIG accompanies the answer, the signature doesn't
// verify) leaves AD cleared; the upstream's own AD bit is never trusted
// directly.
func (r *Resolver) finalizeDNSSEC(ctx context.Context, name wire.LowerName, qtype wire.RRType, resp *wire.Message, opts lookup.Options) (*wire.Message, error) {
	if r.cfg.DNSSECPolicy != ValidateWithStaticKey {
		resp.Header.AuthenticatedData = false
		return resp, nil
	}

	resp.Header.AuthenticatedData = false

	switch dnssign.CheckNSEC3Iterations(append(append([]wire.Record(nil), resp.Answers...), resp.Authorities...), r.cfg.StaticKey.NSEC3SoftIter, r.cfg.StaticKey.NSEC3HardIter) {
	case dnssign.NSEC3TooCostly:
		return nil, dnserr.ServFail
	case dnssign.NSEC3Insecure:
		return resp, nil
	}

	if qtype == wire.TypeDNSKEY || resp.Header.RCode == dnserr.NXDomain || len(resp.Answers) == 0 {
		return resp, nil
	}

	zone, ok := r.trustAnchorZone(name)
	if !ok {
		return resp, nil
	}

	dnskeyResp, err := r.resolve(ctx, zone.Lower(), wire.TypeDNSKEY, opts)
	if err != nil {
		return resp, nil
	}
	dnskey, ok := r.validator.TrustedDNSKEY(zone, dnskeyResp.Answers)
	if !ok {
		return resp, nil
	}

	var covered []wire.Record
	var rrsig *wire.Record
	for i, a := range resp.Answers {
		if a.Type == qtype {
			covered = append(covered, a)
		} else if a.Type == wire.TypeRRSIG && a.TypeCovered == uint16(qtype) {
			rrsig = &resp.Answers[i]
		}
	}
	if rrsig == nil || len(covered) == 0 {
		return resp, nil
	}

	if err := r.validator.VerifyRRset(covered, *rrsig, dnskey, time.Now()); err == nil {
		resp.Header.AuthenticatedData = true
	}
	return resp, nil
}
