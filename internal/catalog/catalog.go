// Package catalog implements the Chained Catalog (C6): the ordered,
// longest-suffix-matched authority list per zone, and the three-valued
// control-flow arbitration algorithm described in spec §4.6.
package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lattice-dns/dnscore/internal/authority"
	"github.com/lattice-dns/dnscore/internal/dnserr"
	"github.com/lattice-dns/dnscore/internal/lookup"
	"github.com/lattice-dns/dnscore/internal/wire"
)

// Catalog maps a zone origin (longest-match) to an ordered list of
// authorities. It is one global, process-wide structure: read-mostly
// after startup, exclusively owning the authorities registered with it.
type Catalog struct {
	mu     sync.RWMutex
	chains map[wire.LowerName][]authority.Authority
}

// New returns an empty Catalog.
func New() *Catalog {
	return &Catalog{chains: make(map[wire.LowerName][]authority.Authority)}
}

// Register appends a to the chain for origin, in declaration order. The
// catalog evaluates chains in this order; across concurrent requests there
// is no further ordering guarantee (spec §5).
func (c *Catalog) Register(origin wire.LowerName, a authority.Authority) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chains[origin] = append(c.chains[origin], a)
}

// Chain returns the authorities registered for the longest origin that is
// an ancestor of (or equal to) name.
func (c *Catalog) Chain(name wire.LowerName) ([]authority.Authority, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	origins := make([]wire.LowerName, 0, len(c.chains))
	for o := range c.chains {
		origins = append(origins, o)
	}
	origin, ok := wire.LongestSuffixMatch(name, origins)
	if !ok {
		return nil, false
	}
	chain := c.chains[origin]
	out := make([]authority.Authority, len(chain))
	copy(out, chain)
	return out, true
}

// Resolve runs the full C6 pipeline for req: select the chain by
// longest-suffix match on the first query name, arbitrate it, build the
// response message, sign it if a ResponseSigner was produced, and apply
// DNSSEC-OK filtering.
func (c *Catalog) Resolve(ctx context.Context, req *wire.Message, info *authority.RequestInfo) *wire.Message {
	resp := newResponseSkeleton(req)

	if len(req.Queries) == 0 {
		resp.Header.RCode = dnserr.FormErr
		return resp
	}
	q := req.Queries[0]
	opts := lookup.FromEDNS(req.EDNS)

	chain, ok := c.Chain(q.Name.Lower())
	if !ok {
		resp.Header.RCode = dnserr.ServFail
		return resp
	}

	result, signer := RunChain(ctx, chain, req, info, opts)
	applyResult(resp, result)

	if signer != nil {
		_ = signer(resp, time.Now())
	}
	if !opts.DNSSECOK {
		stripDNSSEC(resp)
	}
	return resp
}

// RunChain implements the algorithm of spec §4.6 over a single chain of N
// authorities.
func RunChain(ctx context.Context, chain []authority.Authority, req *wire.Message, info *authority.RequestInfo, opts lookup.Options) (authority.LookupControlFlow[lookup.AuthLookup], wire.ResponseSigner) {
	result := authority.Skip[lookup.AuthLookup]()
	producerIndex := -1
	var signer wire.ResponseSigner

	for i, a := range chain {
		if !result.IsSkip() {
			break
		}
		res, s := a.Search(ctx, req, info, opts)
		if !res.IsSkip() {
			result = res
			producerIndex = i
			if s != nil {
				signer = s
			}
		}
	}

	if result.IsSkip() {
		// No authority in the chain attempted the query. RFC 1035 would
		// arguably suggest Refused; the observed behavior this spec
		// preserves is ServFail (spec §9, open question).
		return authority.ContinueErr[lookup.AuthLookup](dnserr.ServFail), signer
	}

	if result.IsBreak() {
		// Terminal: no consult is invoked on anyone, including the
		// producer — Break is the blocklist primitive and must silence
		// the consult phase entirely to avoid leaking information.
		return result, signer
	}

	if len(req.Queries) == 0 {
		return result, signer
	}
	name := req.Queries[0].Name.Lower()
	qtype := req.Queries[0].Type

	for j, a := range chain {
		if j == producerIndex {
			continue
		}
		res, s := a.Consult(ctx, name, qtype, info, opts, result)
		if s != nil {
			signer = s
		}
		switch {
		case res.IsBreak():
			result = res
			return result, signer
		case res.IsSkip():
			// Skip cannot overwrite the prior value.
			continue
		default:
			// Continue replaces the prior value outright, including an
			// Err being overlaid by a later Ok.
			result = res
		}
	}

	return result, signer
}

func newResponseSkeleton(req *wire.Message) *wire.Message {
	resp := &wire.Message{
		Header: wire.Header{
			ID:                 req.Header.ID,
			Response:           true,
			Opcode:             req.Header.Opcode,
			RecursionDesired:   req.Header.RecursionDesired,
			RecursionAvailable: true,
		},
		Queries: req.Queries,
	}
	return resp
}

func applyResult(resp *wire.Message, result authority.LookupControlFlow[lookup.AuthLookup]) {
	if result.Err != nil {
		switch {
		case errors.Is(result.Err, dnserr.NXDomain):
			resp.Header.RCode = dnserr.NXDomain
		default:
			resp.Header.RCode = dnserr.ServFail
		}
		return
	}

	resp.Header.AuthoritativeAnswer = true
	switch result.Value.Kind {
	case lookup.Records:
		resp.Header.RCode = dnserr.NoError
		resp.Answers = result.Value.Answers
		resp.Additionals = result.Value.Additionals
	case lookup.Empty:
		resp.Header.RCode = dnserr.NoError
	case lookup.Response:
		if result.Value.Upstream != nil {
			up := result.Value.Upstream
			resp.Header.RCode = up.Header.RCode
			resp.Header.AuthoritativeAnswer = up.Header.AuthoritativeAnswer
			resp.Header.AuthenticatedData = up.Header.AuthenticatedData
			resp.Answers = up.Answers
			resp.Authorities = up.Authorities
			resp.Additionals = up.Additionals
		}
	}
}

// stripDNSSEC removes RRSIG/NSEC/NSEC3 records from the outgoing message
// when the request did not set the DO bit (spec §4.6 step 7).
func stripDNSSEC(m *wire.Message) {
	m.Answers = stripRecords(m.Answers)
	m.Authorities = stripRecords(m.Authorities)
	m.Additionals = stripRecords(m.Additionals)
}

func stripRecords(rs []wire.Record) []wire.Record {
	out := rs[:0:0]
	for _, r := range rs {
		switch r.Type {
		case wire.TypeRRSIG, wire.TypeNSEC, wire.TypeNSEC3:
			continue
		default:
			out = append(out, r)
		}
	}
	return out
}
