// Package zoneauth implements a concrete authority.Authority for
// Primary/Secondary zones: an in-memory map of rrset.Set keyed by owner
// name and type, RFC 2136 dynamic update (zone.go/update.go), NSEC/NSEC3
// synthesis (nsec.go), and AXFR/IXFR record-stream assembly (transfer.go).
// Adapted from the teacher's internal/dns/server/server.go, which combined
// all of this with transport and Postgres access in one Server type; here
// the zone-data concern is split out so internal/dnsserver can own
// transport and internal/store/postgres can own persistence independently.
package zoneauth

import (
	"context"
	"strings"
	"sync"

	"github.com/lattice-dns/dnscore/internal/authority"
	"github.com/lattice-dns/dnscore/internal/dnserr"
	"github.com/lattice-dns/dnscore/internal/dnssign"
	"github.com/lattice-dns/dnscore/internal/lookup"
	"github.com/lattice-dns/dnscore/internal/rrset"
	"github.com/lattice-dns/dnscore/internal/wire"
)

// Zone is one authoritative zone's record store plus its policy knobs. It
// embeds authority.BaseAuthority for the Consult passthrough and the
// NSEC*/Update default bodies Zone does not override by construction — Zone
// overrides Update and both NSEC* methods, so the embed only supplies
// Consult.
type Zone struct {
	authority.BaseAuthority

	mu       sync.RWMutex
	origin   wire.Name
	zoneID   string
	zoneType authority.ZoneType
	policy   authority.AxfrPolicy

	// sets is keyed by lowercased owner name, then type. A name that never
	// held records has no entry; a name whose records were all removed may
	// keep an entry whose sets are empty, which nxOrEmptyLocked treats the
	// same as no entry.
	sets map[wire.LowerName]map[wire.RRType]*rrset.Set

	signer *dnssign.Manager
}

// New creates an empty Zone. zoneID identifies this zone to the DNSSEC key
// store and the Postgres persistence layer; it may be empty for
// Secondary/Hint zones that never sign.
func New(origin wire.Name, zoneID string, zoneType authority.ZoneType, policy authority.AxfrPolicy) *Zone {
	return &Zone{
		origin:   wire.NewName(string(origin)),
		zoneID:   zoneID,
		zoneType: zoneType,
		policy:   policy,
		sets:     make(map[wire.LowerName]map[wire.RRType]*rrset.Set),
	}
}

// SetSigner attaches a DNSSEC key manager; once set, CanValidateDNSSEC
// reports true. The manager is not used to sign records: Lookup/Search
// return only the RRSIGs already held in each rrset.Set's sidecar, with or
// without a signer attached.
func (z *Zone) SetSigner(mgr *dnssign.Manager) { z.signer = mgr }

func (z *Zone) Origin() wire.LowerName        { return z.origin.Lower() }
func (z *Zone) ZoneType() authority.ZoneType  { return z.zoneType }
func (z *Zone) AxfrPolicy() authority.AxfrPolicy { return z.policy }
func (z *Zone) CanValidateDNSSEC() bool       { return z.signer != nil }

// LoadRecords bulk-inserts records (e.g. freshly parsed by internal/master,
// or pulled by an AXFR/IXFR client) at serial. Records must already share
// this zone's origin; callers are responsible for qualifying relative
// names before calling LoadRecords.
func (z *Zone) LoadRecords(records []wire.Record, serial uint32) {
	z.mu.Lock()
	defer z.mu.Unlock()
	for _, r := range records {
		z.insertLocked(r, serial)
	}
}

// ReplaceAll discards every record currently held and loads records in its
// place, the way a Secondary zone applies a freshly pulled AXFR: the master
// is authoritative for zone membership, so a record this zone has that the
// transfer didn't repeat must be gone.
func (z *Zone) ReplaceAll(records []wire.Record, serial uint32) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.sets = make(map[wire.LowerName]map[wire.RRType]*rrset.Set)
	for _, r := range records {
		z.insertLocked(r, serial)
	}
}

func (z *Zone) insertLocked(r wire.Record, serial uint32) bool {
	lname := r.Name.Lower()
	byType, ok := z.sets[lname]
	if !ok {
		byType = make(map[wire.RRType]*rrset.Set)
		z.sets[lname] = byType
	}
	set, ok := byType[r.Type]
	if !ok {
		set = rrset.New(r.Name, r.Type, r.Class)
		byType[r.Type] = set
	}
	return set.Insert(r, serial)
}

func (z *Zone) removeLocked(r wire.Record, serial uint32) bool {
	byType, ok := z.sets[r.Name.Lower()]
	if !ok {
		return false
	}
	set, ok := byType[r.Type]
	if !ok {
		return false
	}
	return set.Remove(r, serial)
}

// currentSerialLocked returns the zone's current SOA serial, or 0 if the
// zone has not been given one yet.
func (z *Zone) currentSerialLocked() uint32 {
	byType, ok := z.sets[z.origin.Lower()]
	if !ok {
		return 0
	}
	soa, ok := byType[wire.TypeSOA]
	if !ok || soa.Len() == 0 {
		return 0
	}
	return soa.Records()[0].Serial
}

// setLocked returns the set for (name, qtype) if any records exist.
func (z *Zone) setLocked(name wire.LowerName, qtype wire.RRType) (*rrset.Set, bool) {
	byType, ok := z.sets[name]
	if !ok {
		return nil, false
	}
	set, ok := byType[qtype]
	if !ok || set.Len() == 0 {
		return nil, false
	}
	return set, true
}

// Lookup resolves one (name, qtype) pair against the zone's records. A
// query outside the zone's origin is Skip (the zone has nothing to say
// about it, as distinct from an in-zone NXDOMAIN). A direct match returns
// its records (plus the set's RRSIG sidecar if opts.DNSSECOK); a
// miss for a non-CNAME type falls back to a single CNAME hop, matching the
// conventional authoritative behavior of answering with the alias when no
// record of the requested type exists at that exact name. When name has no
// node in the zone at all, a wildcard ancestor (RFC 1034 §4.3.3) is tried
// before the lookup falls through to NXDOMAIN.
func (z *Zone) Lookup(_ context.Context, name wire.LowerName, qtype wire.RRType, _ *authority.RequestInfo, opts lookup.Options) authority.LookupControlFlow[lookup.AuthLookup] {
	if !name.IsSubdomainOf(z.Origin()) {
		return authority.Skip[lookup.AuthLookup]()
	}

	z.mu.RLock()
	defer z.mu.RUnlock()

	if qtype == wire.TypeANY {
		byType, ok := z.sets[name]
		if !ok {
			if result, ok := z.wildcardLocked(name, qtype, opts); ok {
				return result
			}
			return z.nxOrEmptyLocked(name)
		}
		var out []wire.Record
		for _, set := range byType {
			out = append(out, lookup.RRsetWithRRSIGs(set, opts)...)
		}
		return authority.Continue(lookup.NewRecords(out, nil))
	}

	if set, ok := z.setLocked(name, qtype); ok {
		return authority.Continue(lookup.NewRecords(lookup.RRsetWithRRSIGs(set, opts), nil))
	}

	if qtype != wire.TypeCNAME {
		if cname, ok := z.setLocked(name, wire.TypeCNAME); ok {
			answers := lookup.RRsetWithRRSIGs(cname, opts)
			target := cname.Records()[0].Host.Lower()
			if final, ok := z.setLocked(target, qtype); ok {
				answers = append(answers, lookup.RRsetWithRRSIGs(final, opts)...)
			}
			return authority.Continue(lookup.NewRecords(answers, nil))
		}
	}

	if _, ok := z.sets[name]; !ok {
		if result, ok := z.wildcardLocked(name, qtype, opts); ok {
			return result
		}
	}

	return z.nxOrEmptyLocked(name)
}

// wildcardLocked implements RFC 1034 §4.3.3 wildcard synthesis: name has no
// node of its own in the zone, so walk its ancestors from the immediate
// parent up to (but not past) the zone origin, and return the first
// *.<ancestor> RRset found for qtype (falling back to a CNAME at that
// wildcard, same as the exact-match path), relabeled to the queried owner
// name. The search goes from the most specific ancestor outward so the
// closest wildcard wins, per RFC 4592's closest-encloser rule.
func (z *Zone) wildcardLocked(name wire.LowerName, qtype wire.RRType, opts lookup.Options) (authority.LookupControlFlow[lookup.AuthLookup], bool) {
	labels := name.Labels()
	originLen := len(z.Origin().Labels())

	for stripped := 1; len(labels)-stripped >= originLen; stripped++ {
		wildcard := wildcardName(labels[stripped:])

		if set, ok := z.setLocked(wildcard, qtype); ok {
			answers := relabel(lookup.RRsetWithRRSIGs(set, opts), name)
			return authority.Continue(lookup.NewRecords(answers, nil)), true
		}

		if qtype != wire.TypeCNAME {
			if cname, ok := z.setLocked(wildcard, wire.TypeCNAME); ok {
				answers := relabel(lookup.RRsetWithRRSIGs(cname, opts), name)
				return authority.Continue(lookup.NewRecords(answers, nil)), true
			}
		}
	}
	return authority.LookupControlFlow[lookup.AuthLookup]{}, false
}

// wildcardName builds "*.<labels...>" as a LowerName; labels may be empty,
// producing "*." directly under the zone apex.
func wildcardName(labels []string) wire.LowerName {
	if len(labels) == 0 {
		return "*."
	}
	return wire.LowerName("*." + strings.Join(labels, ".") + ".")
}

// relabel rewrites each record's owner to owner, keeping the synthesized
// rdata from the wildcard's RRset, per RFC 1034 §4.3.3.
func relabel(records []wire.Record, owner wire.LowerName) []wire.Record {
	out := make([]wire.Record, len(records))
	name := wire.NewName(string(owner))
	for i, r := range records {
		r.Name = name
		out[i] = r
	}
	return out
}

// nxOrEmptyLocked reports NXDOMAIN when name has no records of any type in
// the zone, NOERROR/NODATA when it has records of some other type.
func (z *Zone) nxOrEmptyLocked(name wire.LowerName) authority.LookupControlFlow[lookup.AuthLookup] {
	for _, set := range z.sets[name] {
		if set.Len() > 0 {
			return authority.Continue(lookup.NewEmpty())
		}
	}
	return authority.ContinueErr[lookup.AuthLookup](dnserr.NXDomain)
}

// Search implements the message-level entry point: ordinary queries
// delegate to Lookup; AXFR/IXFR are handled as a full record-stream
// assembly instead, since they operate over the whole zone rather than one
// name/type pair.
func (z *Zone) Search(ctx context.Context, req *wire.Message, info *authority.RequestInfo, opts lookup.Options) (authority.LookupControlFlow[lookup.AuthLookup], wire.ResponseSigner) {
	if len(req.Queries) == 0 {
		return authority.Skip[lookup.AuthLookup](), nil
	}
	q := req.Queries[0]

	switch q.Type {
	case wire.TypeAXFR:
		return z.searchAXFR(q.Name.Lower())
	case wire.TypeIXFR:
		return z.searchIXFR(req, q.Name.Lower())
	default:
		result := z.Lookup(ctx, q.Name.Lower(), q.Type, info, opts)
		return result, z.responseSigner(opts)
	}
}

// responseSigner always returns nil: the zone adds no message-level
// signature of its own, and the only RRSIGs in its answers are the
// per-RRset sidecars already carried by rrset.Set.
func (z *Zone) responseSigner(lookup.Options) wire.ResponseSigner { return nil }
