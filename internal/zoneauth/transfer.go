package zoneauth

import (
	"sort"

	"github.com/lattice-dns/dnscore/internal/authority"
	"github.com/lattice-dns/dnscore/internal/dnserr"
	"github.com/lattice-dns/dnscore/internal/lookup"
	"github.com/lattice-dns/dnscore/internal/rrset"
	"github.com/lattice-dns/dnscore/internal/wire"
)

// AllRecords returns every record in the zone, SOA first, in a stable
// canonical order. It does not include the trailing SOA AXFR convention
// adds — AXFRStream does that.
func (z *Zone) AllRecords() []wire.Record {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.allRecordsLocked()
}

func (z *Zone) allRecordsLocked() []wire.Record {
	names := z.sortedNamesLocked()
	var out []wire.Record
	for _, n := range names {
		byType := z.sets[n.Lower()]
		types := make([]wire.RRType, 0, len(byType))
		for t := range byType {
			types = append(types, t)
		}
		sort.Slice(types, func(i, j int) bool {
			if types[i] == wire.TypeSOA || types[j] == wire.TypeSOA {
				return types[i] == wire.TypeSOA && types[j] != wire.TypeSOA
			}
			return types[i] < types[j]
		})
		for _, t := range types {
			out = append(out, byType[t].Iter(true)...)
		}
	}
	return out
}

// searchAXFR assembles the full zone-transfer record stream: SOA, every
// other record, SOA again (RFC 5936 §2.2). internal/dnsserver is
// responsible for splitting this into one wire message per record (or per
// TCP segment) the way the teacher's handleAXFR streams one packet per
// record; this package only owns record-set assembly and policy.
func (z *Zone) searchAXFR(name wire.LowerName) (authority.LookupControlFlow[lookup.AuthLookup], wire.ResponseSigner) {
	if name != z.Origin() {
		return authority.Skip[lookup.AuthLookup](), nil
	}
	if z.AxfrPolicy() == authority.Deny {
		return authority.BreakErr[lookup.AuthLookup](dnserr.Refused), nil
	}

	z.mu.RLock()
	defer z.mu.RUnlock()

	soaSet, ok := z.setLocked(z.Origin(), wire.TypeSOA)
	if !ok {
		return authority.ContinueErr[lookup.AuthLookup](dnserr.ServFail), nil
	}
	soa := soaSet.Records()[0]

	records := z.allRecordsLocked()
	var rest []wire.Record
	for _, r := range records {
		if r.Type != wire.TypeSOA {
			rest = append(rest, r)
		}
	}

	stream := make([]wire.Record, 0, len(rest)+2)
	stream = append(stream, soa)
	stream = append(stream, rest...)
	stream = append(stream, soa)

	return authority.Continue(lookup.NewRecords(stream, nil)), nil
}

// IXFRDiff computes the RFC 1995 incremental-transfer difference between
// clientSerial and the zone's current serial: deletions then additions,
// bracketed by the old and new SOA per the wire format IXFR uses. ok is
// false when clientSerial is already current (nothing to transfer) or when
// it is ahead of this zone's serial (the client should fall back to AXFR).
func (z *Zone) IXFRDiff(clientSerial uint32) (oldSOA, newSOA wire.Record, deletions, additions []wire.Record, ok bool) {
	z.mu.RLock()
	defer z.mu.RUnlock()

	soaSet, exists := z.setLocked(z.Origin(), wire.TypeSOA)
	if !exists {
		return wire.Record{}, wire.Record{}, nil, nil, false
	}
	newSOA = soaSet.Records()[0]
	if !rrset.SerialGreater(newSOA.Serial, clientSerial) {
		return wire.Record{}, wire.Record{}, nil, nil, false
	}

	// This codec keeps only current zone state, not a journal of past
	// versions (spec Non-goal: no change journal) — so any stale serial is
	// served as one giant diff: "delete nothing, add everything current",
	// functionally equivalent to an AXFR but framed as IXFR, matching the
	// teacher's performIXFR fallback-to-AXFR-on-no-journal behavior when
	// it cannot satisfy an incremental request.
	records := z.allRecordsLocked()
	var rest []wire.Record
	for _, r := range records {
		if r.Type != wire.TypeSOA {
			rest = append(rest, r)
		}
	}
	return newSOA, newSOA, nil, rest, true
}

// searchIXFR handles an IXFR query by delegating to IXFRDiff, reporting the
// client's serial via the request's Authorities section (the conventional
// place an IXFR query carries its own SOA), the way the teacher's
// handleIXFR reads it.
func (z *Zone) searchIXFR(req *wire.Message, name wire.LowerName) (authority.LookupControlFlow[lookup.AuthLookup], wire.ResponseSigner) {
	if name != z.Origin() {
		return authority.Skip[lookup.AuthLookup](), nil
	}
	if z.AxfrPolicy() == authority.Deny {
		return authority.BreakErr[lookup.AuthLookup](dnserr.Refused), nil
	}

	var clientSerial uint32
	for _, r := range req.Authorities {
		if r.Type == wire.TypeSOA {
			clientSerial = r.Serial
			break
		}
	}

	oldSOA, newSOA, deletions, additions, ok := z.IXFRDiff(clientSerial)
	if !ok {
		// Already current (or ahead): RFC 1995 replies with just the current SOA.
		z.mu.RLock()
		soaSet, exists := z.setLocked(z.Origin(), wire.TypeSOA)
		z.mu.RUnlock()
		if !exists {
			return authority.ContinueErr[lookup.AuthLookup](dnserr.ServFail), nil
		}
		return authority.Continue(lookup.NewRecords([]wire.Record{soaSet.Records()[0]}, nil)), nil
	}

	stream := make([]wire.Record, 0, len(deletions)+len(additions)+4)
	stream = append(stream, newSOA, oldSOA)
	stream = append(stream, deletions...)
	stream = append(stream, newSOA)
	stream = append(stream, additions...)
	stream = append(stream, newSOA)

	return authority.Continue(lookup.NewRecords(stream, nil)), nil
}
