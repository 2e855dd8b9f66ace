package zoneauth

import (
	"context"

	"github.com/lattice-dns/dnscore/internal/dnserr"
	"github.com/lattice-dns/dnscore/internal/lookup"
	"github.com/lattice-dns/dnscore/internal/wire"
)

// Update applies an RFC 2136 dynamic update message: the Answers section
// (repurposed as the "Prerequisite" section per RFC 2136 §3.2) must all
// hold before any mutation in the Authorities section ("Update" section
// per RFC 2136 §3.4) is applied. Grounded on the teacher's
// checkPrerequisite/applyUpdate, restructured to operate on wire.Record
// and this zone's rrset.Set map instead of a repository round trip per
// record.
func (z *Zone) Update(_ context.Context, req *wire.Message, _ lookup.Options) (bool, wire.ResponseSigner, error) {
	if len(req.Queries) == 0 {
		return false, nil, dnserr.FormErr
	}
	zoneName := req.Queries[0].Name.Lower()
	if !zoneName.IsSubdomainOf(z.Origin()) {
		return false, nil, dnserr.NotAuth
	}

	z.mu.Lock()
	defer z.mu.Unlock()

	for _, pr := range req.Answers {
		if err := z.checkPrerequisiteLocked(pr); err != nil {
			return false, nil, err
		}
	}

	changed := false
	serial := z.currentSerialLocked() + 1
	for _, up := range req.Authorities {
		if z.applyUpdateLocked(up, serial) {
			changed = true
		}
	}

	return changed, nil, nil
}

// checkPrerequisiteLocked implements RFC 2136 §3.2's four prerequisite
// forms, keyed by the Class/Type encoding the RFC overloads for this
// purpose: ANY/ANY means "name must exist"; ANY/type means "this RRset
// must exist"; NONE/ANY means "name must not exist"; NONE/type means
// "this RRset must not exist"; any other class only checks that a
// non-empty RRset of that type exists at the name — the prerequisite's
// rdata is not compared.
func (z *Zone) checkPrerequisiteLocked(pr wire.Record) error {
	name := pr.Name.Lower()
	byType, nameExists := z.sets[name]

	switch pr.Class {
	case wire.ClassANY:
		if pr.Type == wire.TypeANY {
			if !nameExists {
				return dnserr.NXDomain
			}
			return nil
		}
		if set, ok := byType[pr.Type]; !ok || set.Len() == 0 {
			return dnserr.NXRRSet
		}
		return nil
	case wire.ClassNONE:
		if pr.Type == wire.TypeANY {
			if nameExists {
				return dnserr.YXDomain
			}
			return nil
		}
		if set, ok := byType[pr.Type]; ok && set.Len() > 0 {
			return dnserr.YXRRSet
		}
		return nil
	default:
		if set, ok := byType[pr.Type]; !ok || set.Len() == 0 {
			return dnserr.NXRRSet
		}
		return nil
	}
}

// applyUpdateLocked implements RFC 2136 §3.4's three update forms: class
// ANY deletes an RRset (type ANY deletes every RRset at the name); class
// NONE deletes one matching record; any other class inserts/replaces the
// record under the zone's normal rrset.Set singleton rules.
func (z *Zone) applyUpdateLocked(up wire.Record, serial uint32) bool {
	switch up.Class {
	case wire.ClassANY:
		byType, ok := z.sets[up.Name.Lower()]
		if !ok {
			return false
		}
		if up.Type == wire.TypeANY {
			if len(byType) == 0 {
				return false
			}
			delete(z.sets, up.Name.Lower())
			return true
		}
		set, ok := byType[up.Type]
		if !ok || set.Len() == 0 {
			return false
		}
		delete(byType, up.Type)
		return true
	case wire.ClassNONE:
		up.Class = z.zoneClassLocked(up.Name.Lower())
		return z.removeLocked(up, serial)
	default:
		return z.insertLocked(up, serial)
	}
}

// zoneClassLocked reports the class records at name are stored under, IN
// by convention for every zone this package constructs.
func (z *Zone) zoneClassLocked(wire.LowerName) wire.Class { return wire.ClassIN }
