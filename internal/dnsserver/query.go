package dnsserver

import (
	"context"
	"net"
	"time"

	"github.com/lattice-dns/dnscore/internal/authority"
	"github.com/lattice-dns/dnscore/internal/cache"
	"github.com/lattice-dns/dnscore/internal/dnserr"
	"github.com/lattice-dns/dnscore/internal/metrics"
	"github.com/lattice-dns/dnscore/internal/wire"
)

// stringAddr adapts a "host:port" string (as net/http hands back via
// Request.RemoteAddr) to net.Addr, so DoH requests can carry a RequestInfo
// the same way UDP/TCP ones do.
type stringAddr string

func (a stringAddr) Network() string { return "tcp" }
func (a stringAddr) String() string  { return string(a) }

// handlePacket decodes data, runs it through rate limiting, response
// caching, and (for ordinary queries) the Chained Catalog, then encodes
// and hands the reply to sendFn. maxUDPSize of 0 means "no size limit"
// (TCP/DoH); it is overridden by the request's own EDNS UDP payload size
// when present. Adapted from the teacher's handlePacket, restructured
// around wire.Decode/Encode and catalog.Catalog.Resolve instead of direct
// repository lookups.
func (s *Server) handlePacket(ctx context.Context, data []byte, src net.Addr, protocol string, maxUDPSize int, sendFn func([]byte) error) error {
	start := time.Now()

	clientIP := src.String()
	if host, _, err := net.SplitHostPort(clientIP); err == nil {
		clientIP = host
	}
	if !s.limiter.Allow(clientIP) {
		return nil
	}

	req, err := wire.Decode(data)
	if err != nil {
		s.Logger.Error("failed to parse packet", "error", err)
		return err
	}

	if req.Header.Opcode == wire.OpcodeUpdate {
		return s.handleUpdate(ctx, req, clientIP, sendFn)
	}
	if req.Header.Opcode == wire.OpcodeNotify {
		return s.handleNotify(ctx, req, clientIP, sendFn)
	}

	if len(req.Queries) == 0 {
		resp := &wire.Message{Header: wire.Header{ID: req.Header.ID, Response: true, RCode: dnserr.FormErr}}
		return s.encodeAndSend(resp, maxUDPSize, sendFn)
	}

	q := req.Queries[0]
	key := cache.Key(string(q.Name.Lower()), uint16(q.Type))

	if cached, found := s.Cache.Get(key); found {
		metrics.CacheOperations.WithLabelValues("l1", "hit").Inc()
		rewriteID(cached, req.Header.ID)
		return sendFn(cached)
	}
	metrics.CacheOperations.WithLabelValues("l1", "miss").Inc()
	if s.Redis != nil {
		if cached, found := s.Redis.Get(ctx, key); found {
			metrics.CacheOperations.WithLabelValues("l2", "hit").Inc()
			rewriteID(cached, req.Header.ID)
			s.Cache.Set(key, cached, time.Minute)
			return sendFn(cached)
		}
		metrics.CacheOperations.WithLabelValues("l2", "miss").Inc()
	}

	info := &authority.RequestInfo{Source: src, Protocol: protocol}
	resp := s.Catalog.Resolve(ctx, req, info)

	maxSize := effectiveMaxSize(req, maxUDPSize)
	resData, _, err := wire.Encode(resp, wire.Normal, maxSize)
	if err != nil {
		s.Logger.Error("failed to encode response", "error", err)
		return err
	}

	if shouldCache(resp) {
		ttl := cacheTTL(resp)
		cached := append([]byte(nil), resData...)
		s.Cache.Set(key, cached, ttl)
		if s.Redis != nil {
			s.Redis.Set(ctx, key, cached, ttl)
		}
	}

	metrics.QueriesTotal.WithLabelValues(q.Type.String(), resp.Header.RCode.String(), protocol).Inc()
	metrics.QueryDuration.WithLabelValues(protocol).Observe(time.Since(start).Seconds())
	s.Logger.Info("query processed", "name", string(q.Name), "qtype", q.Type, "src", protocol, "lat", time.Since(start))
	return sendFn(resData)
}

func (s *Server) encodeAndSend(resp *wire.Message, maxSize int, sendFn func([]byte) error) error {
	data, _, err := wire.Encode(resp, wire.Normal, maxSize)
	if err != nil {
		return err
	}
	return sendFn(data)
}

// rewriteID patches a cached response's transaction ID in place to match
// the requesting client's, the way the teacher's cache hit path does
// before replaying cached bytes.
func rewriteID(data []byte, id uint16) {
	if len(data) >= 2 {
		data[0] = byte(id >> 8)
		data[1] = byte(id & 0xFF)
	}
}

// effectiveMaxSize honors the request's EDNS UDP payload size (RFC 6891)
// when present, clamped to at least 512; a non-UDP transport or an
// explicit maxUDPSize of 0 disables truncation.
func effectiveMaxSize(req *wire.Message, maxUDPSize int) int {
	if maxUDPSize == 0 {
		return 0
	}
	if req.EDNS != nil {
		size := int(req.EDNS.UDPPayloadSize)
		if size < 512 {
			size = 512
		}
		return size
	}
	return 512
}

func shouldCache(resp *wire.Message) bool {
	return (resp.Header.RCode == dnserr.NoError || resp.Header.RCode == dnserr.NXDomain) && !resp.Header.Truncated
}

func cacheTTL(resp *wire.Message) time.Duration {
	if len(resp.Answers) > 0 {
		return time.Duration(resp.Answers[0].TTL) * time.Second
	}
	if len(resp.Authorities) > 0 {
		return time.Duration(resp.Authorities[0].TTL) * time.Second
	}
	return 300 * time.Second
}
