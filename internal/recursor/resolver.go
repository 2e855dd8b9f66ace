package recursor

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/lattice-dns/dnscore/internal/authority"
	"github.com/lattice-dns/dnscore/internal/dnserr"
	"github.com/lattice-dns/dnscore/internal/dnssign"
	"github.com/lattice-dns/dnscore/internal/lookup"
	"github.com/lattice-dns/dnscore/internal/wire"
)

// Resolver is the Recursive Authority: an iterative resolver wrapped behind
// authority.Authority. It embeds BaseAuthority for Update/NSEC*/AxfrPolicy,
// which are fixed per spec §4.7 (NotImp, Unimplemented, Deny).
type Resolver struct {
	authority.BaseAuthority

	cfg Config

	mu        sync.RWMutex
	rootHints []net.IP

	nsCache   *boundedCache[[]net.IP]
	respCache *boundedCache[*wire.Message]
	dedup     *inflightGroup[*wire.Message]

	validator   *dnssign.Validator
	anchorZones []wire.LowerName
}

// New constructs a Resolver. Root hints are loaded separately via
// SetRootHints (internal/master parses the roots zone file named by
// cfg.Roots and calls it). The ValidateWithStaticKey trust anchors, if
// any, are compiled into a dnssign.Validator once here rather than
// re-parsed on every query.
func New(cfg Config) *Resolver {
	validator, zones := buildValidator(cfg.StaticKey)
	return &Resolver{
		cfg:         cfg,
		nsCache:     newBoundedCache[[]net.IP](max(cfg.NSCacheSize, 1)),
		respCache:   newBoundedCache[*wire.Message](max(cfg.ResponseCacheSize, 1)),
		dedup:       newInflightGroup[*wire.Message](),
		validator:   validator,
		anchorZones: zones,
	}
}

// SetRootHints replaces the seed set of root server addresses.
func (r *Resolver) SetRootHints(ips []net.IP) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rootHints = append([]net.IP(nil), ips...)
}

func (r *Resolver) roots() []net.IP {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]net.IP(nil), r.rootHints...)
	return out
}

func (r *Resolver) Origin() wire.LowerName       { return "." }
func (r *Resolver) ZoneType() authority.ZoneType { return authority.External }

func (r *Resolver) CanValidateDNSSEC() bool {
	return r.cfg.DNSSECPolicy == ValidateWithStaticKey
}

// Lookup runs the iterative resolution for (name, qtype) and wraps the
// upstream response as a Continue(Ok)/Continue(Err) result, per spec §4.7.
func (r *Resolver) Lookup(ctx context.Context, name wire.LowerName, qtype wire.RRType, _ *authority.RequestInfo, opts lookup.Options) authority.LookupControlFlow[lookup.AuthLookup] {
	msg, err := r.resolve(ctx, name, qtype, opts)
	if err != nil {
		return authority.ContinueErr[lookup.AuthLookup](err)
	}
	return authority.Continue(lookup.NewResponse(msg))
}

// Search adapts the first query in req to Lookup. The recursor never
// produces its own response signer; TSIG for recursive answers (if any) is
// applied by the catalog's Finalize step using the shared MessageSigner.
func (r *Resolver) Search(ctx context.Context, req *wire.Message, info *authority.RequestInfo, opts lookup.Options) (authority.LookupControlFlow[lookup.AuthLookup], wire.ResponseSigner) {
	if len(req.Queries) == 0 {
		return authority.ContinueErr[lookup.AuthLookup](dnserr.FormErr), nil
	}
	q := req.Queries[0]
	return r.Lookup(ctx, q.Name.Lower(), q.Type, info, opts), nil
}

func (r *Resolver) resolve(ctx context.Context, name wire.LowerName, qtype wire.RRType, opts lookup.Options) (*wire.Message, error) {
	key := fmt.Sprintf("%s|%d", name, qtype)
	if msg, ok := r.respCache.Get(key); ok {
		return msg, nil
	}

	msg, err := r.dedup.Do(key, func() (*wire.Message, error) {
		return r.resolveIterative(ctx, name, qtype, opts)
	})
	if err != nil {
		return nil, err
	}

	r.respCache.Set(key, msg, responseTTL(msg, r.cfg.CachePolicy, qtype))
	return msg, nil
}

func responseTTL(msg *wire.Message, policy CachePolicy, qtype wire.RRType) time.Duration {
	ttl := uint32(300)
	if len(msg.Answers) > 0 {
		ttl = msg.Answers[0].TTL
		for _, a := range msg.Answers[1:] {
			if a.TTL < ttl {
				ttl = a.TTL
			}
		}
	}
	if bound, ok := policy[uint16(qtype)]; ok {
		if bound.Min > 0 && ttl < bound.Min {
			ttl = bound.Min
		}
		if bound.Max > 0 && ttl > bound.Max {
			ttl = bound.Max
		}
	}
	if ttl == 0 {
		ttl = 1
	}
	return time.Duration(ttl) * time.Second
}

// resolveIterative walks the delegation chain from cached/root nameservers
// down to an answer or a definitive NXDOMAIN, following referrals the way
// the teacher's resolveRecursive does, generalized with NS-address
// resolution (bounded by ns_recursion_limit) when a referral carries no
// glue.
func (r *Resolver) resolveIterative(ctx context.Context, name wire.LowerName, qtype wire.RRType, opts lookup.Options) (*wire.Message, error) {
	servers := r.serversFor(name)
	if len(servers) == 0 {
		servers = r.roots()
	}
	if len(servers) == 0 {
		return nil, dnserr.ServFail
	}

	wantDO := r.cfg.DNSSECPolicy != SecurityUnaware
	depth := 0
	qname := wire.NewName(string(name))

	for {
		depth++
		if r.cfg.RecursionLimit > 0 && depth > r.cfg.RecursionLimit {
			return nil, dnserr.ServFail
		}

		resp, err := r.queryServers(ctx, servers, qname, qtype, wantDO)
		if err != nil {
			return nil, err
		}

		if len(resp.Answers) > 0 || resp.Header.RCode == dnserr.NXDomain {
			return r.finalizeDNSSEC(ctx, name, qtype, resp, opts)
		}

		next, zone, ok, err := r.referral(ctx, resp, depth)
		if err != nil {
			return nil, err
		}
		if !ok {
			return r.finalizeDNSSEC(ctx, name, qtype, resp, opts)
		}
		r.nsCache.Set(string(zone), next, time.Duration(minAuthorityTTL(resp.Authorities))*time.Second)
		servers = next
	}
}

func minAuthorityTTL(rs []wire.Record) uint32 {
	if len(rs) == 0 {
		return 3600
	}
	min := rs[0].TTL
	for _, r := range rs[1:] {
		if r.TTL < min {
			min = r.TTL
		}
	}
	if min == 0 {
		return 1
	}
	return min
}

// referral extracts the next-hop nameserver addresses from resp's Authority
// (NS) and Additional (glue) sections. When no glue is present it resolves
// one NS hostname's address, bounded by ns_recursion_limit.
func (r *Resolver) referral(ctx context.Context, resp *wire.Message, depth int) ([]net.IP, wire.LowerName, bool, error) {
	var nsNames []wire.Name
	var zone wire.Name
	for _, a := range resp.Authorities {
		if a.Type == wire.TypeNS {
			nsNames = append(nsNames, a.Host)
			zone = a.Name
		}
	}
	if len(nsNames) == 0 {
		return nil, "", false, nil
	}

	var glue []net.IP
	for _, ns := range nsNames {
		for _, add := range resp.Additionals {
			if add.Name.Lower() == ns.Lower() && (add.Type == wire.TypeA || add.Type == wire.TypeAAAA) {
				glue = append(glue, add.IP)
			}
		}
	}
	glue = filterAllowed(r.cfg, glue)
	if len(glue) > 0 {
		return glue, zone.Lower(), true, nil
	}

	if r.cfg.NSRecursionLimit > 0 && depth > r.cfg.NSRecursionLimit {
		return nil, "", false, nil
	}
	addrs, err := r.resolveNSAddr(ctx, nsNames[0])
	if err != nil || len(addrs) == 0 {
		return nil, "", false, nil
	}
	return filterAllowed(r.cfg, addrs), zone.Lower(), true, nil
}

func (r *Resolver) resolveNSAddr(ctx context.Context, host wire.Name) ([]net.IP, error) {
	msg, err := r.resolve(ctx, host.Lower(), wire.TypeA, lookup.Options{})
	if err != nil {
		return nil, err
	}
	var ips []net.IP
	for _, a := range msg.Answers {
		if a.Type == wire.TypeA {
			ips = append(ips, a.IP)
		}
	}
	return ips, nil
}

func filterAllowed(cfg Config, ips []net.IP) []net.IP {
	out := ips[:0:0]
	for _, ip := range ips {
		if cfg.serverAllowed(ip) {
			out = append(out, ip)
		}
	}
	return out
}

func (r *Resolver) serversFor(name wire.LowerName) []net.IP {
	labels := name.Labels()
	for i := 0; i < len(labels); i++ {
		origin := joinLabels(labels[i:])
		if ips, ok := r.nsCache.Get(origin); ok {
			return ips
		}
	}
	if ips, ok := r.nsCache.Get("."); ok {
		return ips
	}
	return nil
}

func joinLabels(labels []string) string {
	s := ""
	for _, l := range labels {
		s += l + "."
	}
	if s == "" {
		return "."
	}
	return s
}

// queryServers tries each candidate server in turn until one answers,
// matching the teacher's failover loop in resolveRecursive.
func (r *Resolver) queryServers(ctx context.Context, servers []net.IP, name wire.Name, qtype wire.RRType, wantDO bool) (*wire.Message, error) {
	var lastErr error
	for _, ip := range servers {
		resp, err := r.queryUpstream(ctx, ip.String(), name, qtype, wantDO)
		if err != nil {
			lastErr = err
			continue
		}
		return resp, nil
	}
	if lastErr == nil {
		lastErr = dnserr.ServFail
	}
	return nil, lastErr
}
