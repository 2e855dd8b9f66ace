package dnsserver

import (
	"context"

	"github.com/lattice-dns/dnscore/internal/authority"
	"github.com/lattice-dns/dnscore/internal/cache"
	"github.com/lattice-dns/dnscore/internal/dnserr"
	"github.com/lattice-dns/dnscore/internal/dnssign"
	"github.com/lattice-dns/dnscore/internal/lookup"
	"github.com/lattice-dns/dnscore/internal/wire"
)

// handleUpdate applies an RFC 2136 dynamic update. TSIG verification, ZOCOUNT
// validation, and response framing are the transport's job; the
// prerequisite/update semantics themselves live in the matched authority's
// Update method. Adapted from the teacher's handleUpdate, which interleaved
// all of this with direct repository calls.
func (s *Server) handleUpdate(ctx context.Context, req *wire.Message, clientIP string, sendFn func([]byte) error) error {
	s.Logger.Info("handling dynamic update", "id", req.Header.ID, "client", clientIP)

	resp := &wire.Message{Header: wire.Header{ID: req.Header.ID, Response: true, Opcode: wire.OpcodeUpdate}}

	if req.Signature.Kind == wire.Tsig && req.Signature.Record != nil {
		key, ok := s.TSIGKeys[string(req.Signature.Record.Name)]
		if !ok {
			s.Logger.Warn("update failed: unknown TSIG key", "key", req.Signature.Record.Name)
			resp.Header.RCode = dnserr.NotAuth
			return s.encodeAndSend(resp, 0, sendFn)
		}
		signer := dnssign.NewTSIGSigner(key)
		if err := signer.Verify(req); err != nil {
			s.Logger.Warn("update failed: TSIG verification failed", "error", err)
			resp.Header.RCode = dnserr.NotAuth
			return s.encodeAndSend(resp, 0, sendFn)
		}
	}

	if len(req.Queries) != 1 {
		s.Logger.Warn("update failed: ZOCOUNT != 1", "count", len(req.Queries))
		resp.Header.RCode = dnserr.FormErr
		return s.encodeAndSend(resp, 0, sendFn)
	}
	zone := req.Queries[0]
	resp.Queries = []wire.Query{zone}

	chain, ok := s.Catalog.Chain(zone.Name.Lower())
	if !ok {
		s.Logger.Warn("update failed: not authoritative for zone", "zone", zone.Name)
		resp.Header.RCode = dnserr.NotAuth
		return s.encodeAndSend(resp, 0, sendFn)
	}

	var target authority.Authority
	for _, a := range chain {
		if a.ZoneType() == authority.Primary {
			target = a
			break
		}
	}
	if target == nil {
		resp.Header.RCode = dnserr.NotAuth
		return s.encodeAndSend(resp, 0, sendFn)
	}

	changed, _, err := target.Update(ctx, req, lookup.FromEDNS(req.EDNS))
	if err != nil {
		s.Logger.Warn("update failed", "zone", zone.Name, "error", err)
		if rc, ok := err.(dnserr.ResponseCode); ok {
			resp.Header.RCode = rc
		} else {
			resp.Header.RCode = dnserr.ServFail
		}
		return s.encodeAndSend(resp, 0, sendFn)
	}

	resp.Header.RCode = dnserr.NoError
	s.Logger.Info("dynamic update successful", "zone", zone.Name)

	if changed {
		s.Cache.Flush()
		if s.Redis != nil {
			_ = s.Redis.Invalidate(ctx, cache.Key(string(zone.Name.Lower()), uint16(wire.TypeSOA)))
		}
		go s.notifySlaves(context.Background(), target)
	}

	return s.encodeAndSend(resp, 0, sendFn)
}
