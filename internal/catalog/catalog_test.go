package catalog

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-dns/dnscore/internal/authority"
	"github.com/lattice-dns/dnscore/internal/dnserr"
	"github.com/lattice-dns/dnscore/internal/lookup"
	"github.com/lattice-dns/dnscore/internal/wire"
)

// scriptedAuthority is a minimal Authority whose Search/Consult behavior is
// supplied by the test, letting each test assert the exact arbitration path
// spec §4.6 describes without standing up a full zone authority.
type scriptedAuthority struct {
	authority.BaseAuthority
	origin       wire.LowerName
	searchFn     func() (authority.LookupControlFlow[lookup.AuthLookup], wire.ResponseSigner)
	consultCalls int
	consultFn    func(prev authority.LookupControlFlow[lookup.AuthLookup]) (authority.LookupControlFlow[lookup.AuthLookup], wire.ResponseSigner)
}

func (a *scriptedAuthority) Origin() wire.LowerName   { return a.origin }
func (a *scriptedAuthority) ZoneType() authority.ZoneType { return authority.Primary }

func (a *scriptedAuthority) Lookup(context.Context, wire.LowerName, wire.RRType, *authority.RequestInfo, lookup.Options) authority.LookupControlFlow[lookup.AuthLookup] {
	return authority.Skip[lookup.AuthLookup]()
}

func (a *scriptedAuthority) Search(context.Context, *wire.Message, *authority.RequestInfo, lookup.Options) (authority.LookupControlFlow[lookup.AuthLookup], wire.ResponseSigner) {
	if a.searchFn == nil {
		return authority.Skip[lookup.AuthLookup](), nil
	}
	return a.searchFn()
}

func (a *scriptedAuthority) Consult(_ context.Context, _ wire.LowerName, _ wire.RRType, _ *authority.RequestInfo, _ lookup.Options, previous authority.LookupControlFlow[lookup.AuthLookup]) (authority.LookupControlFlow[lookup.AuthLookup], wire.ResponseSigner) {
	a.consultCalls++
	if a.consultFn == nil {
		return previous, nil
	}
	return a.consultFn(previous)
}

func aAnswer(ip string) lookup.AuthLookup {
	return lookup.NewRecords([]wire.Record{{Name: wire.NewName("x.example.com"), Type: wire.TypeA, Class: wire.ClassIN, TTL: 60, IP: net.ParseIP(ip).To4()}}, nil)
}

func query(name string) *wire.Message {
	return &wire.Message{
		Header:  wire.Header{ID: 1, RecursionDesired: true},
		Queries: []wire.Query{{Name: wire.NewName(name), Class: wire.ClassIN, Type: wire.TypeA}},
	}
}

// Property 8 / E6: Break is terminal and silences consult on everyone,
// including the producer.
func TestRunChain_BreakSkipsAllConsults(t *testing.T) {
	a := &scriptedAuthority{origin: ".", searchFn: func() (authority.LookupControlFlow[lookup.AuthLookup], wire.ResponseSigner) {
		return authority.Break(aAnswer("192.0.2.1")), nil
	}}
	b := &scriptedAuthority{origin: "."}
	c := &scriptedAuthority{origin: "."}

	result, _ := RunChain(context.Background(), []authority.Authority{a, b, c}, query("breakok.example.com"), nil, lookup.Options{})

	require.True(t, result.IsBreak())
	require.NoError(t, result.Err)
	assert.Equal(t, "192.0.2.1", result.Value.Answers[0].IP.String())
	assert.Equal(t, 0, a.consultCalls)
	assert.Equal(t, 0, b.consultCalls)
	assert.Equal(t, 0, c.consultCalls)
}

// Property 9: Skip is transparent — a later authority's Continue(Ok) wins,
// and the skipping authority is still offered consult.
func TestRunChain_SkipIsTransparent(t *testing.T) {
	a := &scriptedAuthority{origin: "."} // Search returns Skip by default
	b := &scriptedAuthority{origin: ".", searchFn: func() (authority.LookupControlFlow[lookup.AuthLookup], wire.ResponseSigner) {
		return authority.Continue(aAnswer("192.0.2.9")), nil
	}}

	result, _ := RunChain(context.Background(), []authority.Authority{a, b}, query("y.example.com"), nil, lookup.Options{})

	require.False(t, result.IsBreak())
	require.NoError(t, result.Err)
	assert.Equal(t, "192.0.2.9", result.Value.Answers[0].IP.String())
	assert.Equal(t, 1, a.consultCalls, "A did skip search but must still be consulted")
}

// Property 10: if every authority Skips, the chain synthesizes ServFail.
func TestRunChain_AllSkipSynthesizesServFail(t *testing.T) {
	a := &scriptedAuthority{origin: "."}
	b := &scriptedAuthority{origin: "."}

	result, _ := RunChain(context.Background(), []authority.Authority{a, b}, query("z.example.com"), nil, lookup.Options{})

	require.False(t, result.IsBreak())
	require.Error(t, result.Err)
	assert.ErrorIs(t, result.Err, dnserr.ServFail)
}

// E5: a later consult fully overwrites an earlier Continue(Ok), including
// swapping out the answer entirely.
func TestRunChain_ConsultOverlaysPriorContinue(t *testing.T) {
	primary := &scriptedAuthority{origin: ".", searchFn: func() (authority.LookupControlFlow[lookup.AuthLookup], wire.ResponseSigner) {
		return authority.Continue(aAnswer("192.0.2.1")), nil
	}}
	secondary := &scriptedAuthority{origin: ".", consultFn: func(authority.LookupControlFlow[lookup.AuthLookup]) (authority.LookupControlFlow[lookup.AuthLookup], wire.ResponseSigner) {
		return authority.Continue(aAnswer("192.0.2.3")), nil
	}}

	result, _ := RunChain(context.Background(), []authority.Authority{primary, secondary}, query("overwrite.example.com"), nil, lookup.Options{})

	require.NoError(t, result.Err)
	assert.Equal(t, "192.0.2.3", result.Value.Answers[0].IP.String())
	assert.Equal(t, 0, primary.consultCalls, "the producer is not re-consulted")
	assert.Equal(t, 1, secondary.consultCalls)
}

func TestRunChain_ConsultSkipCannotOverwrite(t *testing.T) {
	primary := &scriptedAuthority{origin: ".", searchFn: func() (authority.LookupControlFlow[lookup.AuthLookup], wire.ResponseSigner) {
		return authority.Continue(aAnswer("192.0.2.1")), nil
	}}
	secondary := &scriptedAuthority{origin: ".", consultFn: func(authority.LookupControlFlow[lookup.AuthLookup]) (authority.LookupControlFlow[lookup.AuthLookup], wire.ResponseSigner) {
		return authority.Skip[lookup.AuthLookup](), nil
	}}

	result, _ := RunChain(context.Background(), []authority.Authority{primary, secondary}, query("keep.example.com"), nil, lookup.Options{})
	require.NoError(t, result.Err)
	assert.Equal(t, "192.0.2.1", result.Value.Answers[0].IP.String())
}

func TestRunChain_ConsultCanOverwriteErrWithOk(t *testing.T) {
	primary := &scriptedAuthority{origin: ".", searchFn: func() (authority.LookupControlFlow[lookup.AuthLookup], wire.ResponseSigner) {
		return authority.ContinueErr[lookup.AuthLookup](dnserr.NXDomain), nil
	}}
	secondary := &scriptedAuthority{origin: ".", consultFn: func(authority.LookupControlFlow[lookup.AuthLookup]) (authority.LookupControlFlow[lookup.AuthLookup], wire.ResponseSigner) {
		return authority.Continue(aAnswer("192.0.2.5")), nil
	}}

	result, _ := RunChain(context.Background(), []authority.Authority{primary, secondary}, query("rescue.example.com"), nil, lookup.Options{})
	require.NoError(t, result.Err)
	assert.Equal(t, "192.0.2.5", result.Value.Answers[0].IP.String())
}

// E1-style end-to-end through Catalog.Resolve.
func TestCatalogResolve_SimpleAuthoritativeAnswer(t *testing.T) {
	a := &scriptedAuthority{origin: wire.NewName("example.com").Lower(), searchFn: func() (authority.LookupControlFlow[lookup.AuthLookup], wire.ResponseSigner) {
		rec := wire.Record{Name: wire.NewName("www.example.com"), Type: wire.TypeA, Class: wire.ClassIN, TTL: 86400, IP: net.ParseIP("93.184.215.14").To4()}
		return authority.Continue(lookup.NewRecords([]wire.Record{rec}, nil)), nil
	}}
	cat := New()
	cat.Register(wire.NewName("example.com").Lower(), a)

	resp := cat.Resolve(context.Background(), query("www.example.com"), nil)

	assert.Equal(t, dnserr.NoError, resp.Header.RCode)
	assert.True(t, resp.Header.AuthoritativeAnswer)
	require.Len(t, resp.Answers, 1)
	assert.Equal(t, "93.184.215.14", resp.Answers[0].IP.String())
}

func TestCatalogResolve_NoChainMatchIsServFail(t *testing.T) {
	cat := New()
	resp := cat.Resolve(context.Background(), query("nowhere.example.org"), nil)
	assert.Equal(t, dnserr.ServFail, resp.Header.RCode)
}

func TestCatalogResolve_NXDomainMapsRCode(t *testing.T) {
	a := &scriptedAuthority{origin: ".", searchFn: func() (authority.LookupControlFlow[lookup.AuthLookup], wire.ResponseSigner) {
		return authority.ContinueErr[lookup.AuthLookup](dnserr.NXDomain), nil
	}}
	cat := New()
	cat.Register(".", a)
	resp := cat.Resolve(context.Background(), query("nonexistent.example.com"), nil)
	assert.Equal(t, dnserr.NXDomain, resp.Header.RCode)
}

// spec §4.6 step 7: DNSSEC-OK filtering strips RRSIG/NSEC/NSEC3 when the
// request did not set DO.
func TestCatalogResolve_StripsRRSIGsWithoutDNSSECOK(t *testing.T) {
	a := &scriptedAuthority{origin: ".", searchFn: func() (authority.LookupControlFlow[lookup.AuthLookup], wire.ResponseSigner) {
		answers := []wire.Record{
			{Name: wire.NewName("x.example.com"), Type: wire.TypeA, Class: wire.ClassIN, TTL: 60, IP: net.ParseIP("1.2.3.4").To4()},
			{Name: wire.NewName("x.example.com"), Type: wire.TypeRRSIG, Class: wire.ClassIN, TTL: 60},
		}
		return authority.Continue(lookup.NewRecords(answers, nil)), nil
	}}
	cat := New()
	cat.Register(".", a)
	req := query("x.example.com")
	resp := cat.Resolve(context.Background(), req, nil)
	require.Len(t, resp.Answers, 1)
	assert.Equal(t, wire.TypeA, resp.Answers[0].Type)
}

func TestCatalogResolve_KeepsRRSIGsWithDNSSECOK(t *testing.T) {
	a := &scriptedAuthority{origin: ".", searchFn: func() (authority.LookupControlFlow[lookup.AuthLookup], wire.ResponseSigner) {
		answers := []wire.Record{
			{Name: wire.NewName("x.example.com"), Type: wire.TypeA, Class: wire.ClassIN, TTL: 60, IP: net.ParseIP("1.2.3.4").To4()},
			{Name: wire.NewName("x.example.com"), Type: wire.TypeRRSIG, Class: wire.ClassIN, TTL: 60},
		}
		return authority.Continue(lookup.NewRecords(answers, nil)), nil
	}}
	cat := New()
	cat.Register(".", a)
	req := query("x.example.com")
	req.EDNS = wire.NewOPT(4096, true)
	resp := cat.Resolve(context.Background(), req, nil)
	assert.Len(t, resp.Answers, 2)
}

func TestCatalog_LongestSuffixChainSelection(t *testing.T) {
	parent := &scriptedAuthority{origin: wire.NewName("example.com").Lower()}
	child := &scriptedAuthority{origin: wire.NewName("sub.example.com").Lower(), searchFn: func() (authority.LookupControlFlow[lookup.AuthLookup], wire.ResponseSigner) {
		return authority.Continue(aAnswer("203.0.113.1")), nil
	}}
	cat := New()
	cat.Register(parent.origin, parent)
	cat.Register(child.origin, child)

	chain, ok := cat.Chain(wire.NewName("host.sub.example.com").Lower())
	require.True(t, ok)
	require.Len(t, chain, 1)
	assert.Same(t, child, chain[0])
}
