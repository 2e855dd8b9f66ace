package authority

import (
	"context"
	"net"

	"github.com/lattice-dns/dnscore/internal/dnserr"
	"github.com/lattice-dns/dnscore/internal/lookup"
	"github.com/lattice-dns/dnscore/internal/wire"
)

// ZoneType classifies how an authority obtained and maintains its data.
type ZoneType int

const (
	Primary ZoneType = iota
	Secondary
	External
	Hint
)

func (t ZoneType) String() string {
	switch t {
	case Primary:
		return "Primary"
	case Secondary:
		return "Secondary"
	case External:
		return "External"
	case Hint:
		return "Hint"
	default:
		return "Unknown"
	}
}

// AxfrPolicy governs whether an authority permits zone transfer requests.
type AxfrPolicy int

const (
	Deny AxfrPolicy = iota
	AllowAll
	AllowSigned
)

// RequestInfo carries request-scoped context an authority may use to make
// a policy decision (source address for split-horizon/blocklist checks,
// transport for logging).
type RequestInfo struct {
	Source   net.Addr
	Protocol string
}

// Authority is the abstract zone contract (spec §4.5). All methods must be
// safe for concurrent use by many request tasks at once; zone data is
// immutable after load, with interior synchronization for any mutable
// state (e.g. a Primary authority's RRset store).
type Authority interface {
	Origin() wire.LowerName
	ZoneType() ZoneType
	// AxfrPolicy defaults to Deny.
	AxfrPolicy() AxfrPolicy
	CanValidateDNSSEC() bool

	// Update applies an RFC 2136 dynamic update request. The bool result
	// reports whether the zone changed; non-nil error is a ResponseCode.
	Update(ctx context.Context, req *wire.Message, opts lookup.Options) (bool, wire.ResponseSigner, error)

	Lookup(ctx context.Context, name wire.LowerName, qtype wire.RRType, info *RequestInfo, opts lookup.Options) LookupControlFlow[lookup.AuthLookup]

	Search(ctx context.Context, req *wire.Message, info *RequestInfo, opts lookup.Options) (LookupControlFlow[lookup.AuthLookup], wire.ResponseSigner)

	// Consult lets an authority overlay or rewrite a previous result
	// without owning any records itself. The default (BaseAuthority)
	// implementation returns (previous, nil).
	Consult(ctx context.Context, name wire.LowerName, qtype wire.RRType, info *RequestInfo, opts lookup.Options, previous LookupControlFlow[lookup.AuthLookup]) (LookupControlFlow[lookup.AuthLookup], wire.ResponseSigner)

	NSECRecords(ctx context.Context, name wire.LowerName, opts lookup.Options) LookupControlFlow[[]wire.Record]
	NSEC3Records(ctx context.Context, name wire.LowerName, opts lookup.Options) LookupControlFlow[[]wire.Record]
}

// SOA is the convenience accessor that delegates to Lookup at the
// authority's origin for the SOA type.
func SOA(ctx context.Context, a Authority, opts lookup.Options) LookupControlFlow[lookup.AuthLookup] {
	return a.Lookup(ctx, a.Origin(), wire.TypeSOA, nil, opts)
}

// NS is the convenience accessor that delegates to Lookup at the
// authority's origin for the NS type.
func NS(ctx context.Context, a Authority, opts lookup.Options) LookupControlFlow[lookup.AuthLookup] {
	return a.Lookup(ctx, a.Origin(), wire.TypeNS, nil, opts)
}

// BaseAuthority supplies the contract's default bodies (Consult is a
// pass-through, AxfrPolicy is Deny, NSEC*/CanValidateDNSSEC report no
// support). Concrete authorities embed BaseAuthority and override whatever
// they actually implement, the same way the teacher's ports interfaces are
// implemented by small adapter structs rather than deep inheritance.
type BaseAuthority struct{}

func (BaseAuthority) AxfrPolicy() AxfrPolicy       { return Deny }
func (BaseAuthority) CanValidateDNSSEC() bool       { return false }

func (BaseAuthority) Consult(_ context.Context, _ wire.LowerName, _ wire.RRType, _ *RequestInfo, _ lookup.Options, previous LookupControlFlow[lookup.AuthLookup]) (LookupControlFlow[lookup.AuthLookup], wire.ResponseSigner) {
	return previous, nil
}

func (BaseAuthority) NSECRecords(context.Context, wire.LowerName, lookup.Options) LookupControlFlow[[]wire.Record] {
	return ContinueErr[[]wire.Record](dnserr.ErrUnimplemented)
}

func (BaseAuthority) NSEC3Records(context.Context, wire.LowerName, lookup.Options) LookupControlFlow[[]wire.Record] {
	return ContinueErr[[]wire.Record](dnserr.ErrUnimplemented)
}

func (BaseAuthority) Update(context.Context, *wire.Message, lookup.Options) (bool, wire.ResponseSigner, error) {
	return false, nil, dnserr.NotImp
}
