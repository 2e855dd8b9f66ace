// Package lookup implements LookupOptions and the AuthLookup result (C4):
// the DNSSEC-OK carrier derived from a request's EDNS flags, and the
// common value type threaded through the authority/catalog control flow.
package lookup

import (
	"github.com/lattice-dns/dnscore/internal/rrset"
	"github.com/lattice-dns/dnscore/internal/wire"
)

// Options carries per-request lookup policy. Currently this is just
// DNSSEC-OK, derived from the request's EDNS flags, but it is kept as a
// struct (rather than a bare bool parameter) so the authority/catalog
// contracts can grow additional policy knobs without changing call
// signatures.
type Options struct {
	DNSSECOK bool
}

// FromEDNS derives Options from a request's OPT pseudo-record, which may
// be nil (no EDNS support advertised).
func FromEDNS(edns *wire.Record) Options {
	return Options{DNSSECOK: edns.DNSSECOK()}
}

// RRsetWithRRSIGs returns set's records, including its RRSIG sidecar iff
// opts.DNSSECOK is set.
func RRsetWithRRSIGs(set *rrset.Set, opts Options) []wire.Record {
	return set.Iter(opts.DNSSECOK)
}

// Kind tags the shape of an AuthLookup result.
type Kind int

const (
	// Empty is a successful lookup with no matching data (NOERROR/NODATA).
	Empty Kind = iota
	// Records carries actual answer (and optional additional) records.
	Records
	// Response carries a complete upstream message verbatim, used by the
	// recursive authority which returns whole resolver responses rather
	// than discrete RRsets.
	Response
)

// AuthLookup is the common value type carried by LookupControlFlow: either
// no data, a set of records destined for the answer/additional sections,
// or a full upstream response message to forward as-is.
type AuthLookup struct {
	Kind        Kind
	Answers     []wire.Record
	Additionals []wire.Record
	Upstream    *wire.Message
}

// NewEmpty returns an Empty AuthLookup.
func NewEmpty() AuthLookup { return AuthLookup{Kind: Empty} }

// NewRecords returns a Records AuthLookup carrying answers and optional
// additionals (e.g. glue for NS delegations).
func NewRecords(answers, additionals []wire.Record) AuthLookup {
	return AuthLookup{Kind: Records, Answers: answers, Additionals: additionals}
}

// NewResponse wraps a complete upstream message.
func NewResponse(msg *wire.Message) AuthLookup {
	return AuthLookup{Kind: Response, Upstream: msg}
}
