// Package rrset implements the RRset (C3): a typed set of records sharing
// one owner name and type, with RFC 2136 singleton-replacement semantics
// and serial-tracked RRSIG invalidation.
package rrset

import (
	"reflect"

	"github.com/lattice-dns/dnscore/internal/wire"
)

// SerialGreater implements RFC 1982 serial number arithmetic: reports
// whether s1 is "greater" than s2 under wraparound comparison.
func SerialGreater(s1, s2 uint32) bool {
	if s1 == s2 {
		return false
	}
	return (s1 < s2 && s2-s1 > 0x80000000) || (s1 > s2 && s1-s2 < 0x80000000)
}

// Set is the in-memory model of one Resource Record Set: all records
// sharing (name, type, class). Mutation is serialized per-Set by the
// caller (zone authorities hold one lock per zone); Set itself does no
// locking.
type Set struct {
	Name    wire.Name
	Type    wire.RRType
	Class   wire.Class
	TTL     uint32
	Serial  uint32
	records []wire.Record
	rrsigs  []wire.Record
}

// New creates an empty RRset for the given owner/type/class.
func New(name wire.Name, t wire.RRType, class wire.Class) *Set {
	return &Set{Name: name, Type: t, Class: class}
}

// Len reports the number of data records currently held (excludes RRSIGs).
func (s *Set) Len() int { return len(s.records) }

// Insert adds or replaces record, enforcing the singleton-type rules.
// Returns true if the set's visible state changed.
func (s *Set) Insert(record wire.Record, serial uint32) bool {
	if record.Name != s.Name || record.Type != s.Type {
		panic("rrset: insert name/type mismatch")
	}

	switch {
	case s.Type == wire.TypeSOA:
		if len(s.records) > 0 {
			existing := s.records[0]
			if !SerialGreater(record.Serial, existing.Serial) {
				return false
			}
		}
		s.records = []wire.Record{record}
	case s.Type.IsSingleton(): // CNAME, ANAME
		s.records = []wire.Record{record}
	default:
		for i, existing := range s.records {
			if rdataEqual(existing, record) {
				if existing.TTL == record.TTL {
					return false // fully identical: no-op
				}
				s.records[i] = record // TTL refresh
				s.commit(record.TTL, serial)
				return true
			}
		}
		s.records = append(s.records, record)
	}

	s.commit(record.TTL, serial)
	return true
}

// Remove deletes entries matching record's rdata. It refuses to remove the
// last record of any NS set, whatever its owner (a Set does not know
// whether its owner is a zone apex), and refuses to remove SOA through this
// path; both return false without modifying the set.
func (s *Set) Remove(record wire.Record, serial uint32) bool {
	if s.Type == wire.TypeSOA {
		return false
	}
	if s.Type == wire.TypeNS && len(s.records) <= 1 {
		return false
	}

	changed := false
	out := s.records[:0:0]
	for _, existing := range s.records {
		if rdataEqual(existing, record) {
			changed = true
			continue
		}
		out = append(out, existing)
	}
	if !changed {
		return false
	}
	s.records = out
	s.serial(serial)
	return true
}

func (s *Set) commit(ttl uint32, serial uint32) {
	s.TTL = ttl
	s.serial(serial)
}

func (s *Set) serial(serial uint32) {
	s.Serial = serial
	s.rrsigs = nil
}

// SetRRSIGs replaces the RRSIG sidecar for this set. RRSIGs are not
// first-class records: they never participate in Insert/Remove and are
// presented only via Iter(withRRSIGs=true).
func (s *Set) SetRRSIGs(rrsigs []wire.Record) { s.rrsigs = rrsigs }

// RRSIGs returns the current signature sidecar, unfiltered.
func (s *Set) RRSIGs() []wire.Record { return s.rrsigs }

// Iter returns a finite, non-restartable snapshot: data records first,
// then (if withRRSIGs) the RRSIG sidecar. Call Iter again for a fresh
// traversal; the returned slice must not be mutated by the caller.
func (s *Set) Iter(withRRSIGs bool) []wire.Record {
	out := make([]wire.Record, 0, len(s.records)+len(s.rrsigs))
	out = append(out, s.records...)
	if withRRSIGs {
		out = append(out, s.rrsigs...)
	}
	return out
}

// Records returns the current data records without RRSIGs. The returned
// slice aliases internal storage and must be treated as read-only.
func (s *Set) Records() []wire.Record { return s.records }

func rdataEqual(a, b wire.Record) bool {
	ac, bc := a, b
	ac.TTL, bc.TTL = 0, 0
	return reflect.DeepEqual(rdataOnly(ac), rdataOnly(bc))
}

// rdataOnly zeroes header fields (name/type/class already match by
// construction) so only the type-specific rdata fields participate in
// equality.
func rdataOnly(r wire.Record) wire.Record {
	r.Name = ""
	r.Class = 0
	return r
}
