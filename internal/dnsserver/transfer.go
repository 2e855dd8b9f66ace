package dnsserver

import (
	"context"
	"net"
	"time"

	"github.com/lattice-dns/dnscore/internal/authority"
	"github.com/lattice-dns/dnscore/internal/catalog"
	"github.com/lattice-dns/dnscore/internal/dnserr"
	"github.com/lattice-dns/dnscore/internal/lookup"
	"github.com/lattice-dns/dnscore/internal/metrics"
	"github.com/lattice-dns/dnscore/internal/wire"
)

func transferKind(qtype wire.RRType) string {
	if qtype == wire.TypeIXFR {
		return "ixfr"
	}
	return "axfr"
}

// handleZoneTransferTCP recognizes an AXFR or IXFR query and, if data is
// one, streams the reply as one TCP-framed message per record — matching
// the teacher's handleAXFR, which never packs more than one RR per
// response to stay clear of any single-message size limit. It reports
// handled=false for any other query so the caller falls through to the
// ordinary handlePacket path.
func (s *Server) handleZoneTransferTCP(conn net.Conn, data []byte) (handled bool, err error) {
	req, derr := wire.Decode(data)
	if derr != nil || len(req.Queries) == 0 {
		return false, nil
	}
	q := req.Queries[0]
	if q.Type != wire.TypeAXFR && q.Type != wire.TypeIXFR {
		return false, nil
	}

	ctx := context.Background()
	info := &authority.RequestInfo{Source: conn.RemoteAddr(), Protocol: "tcp"}

	direction := "outbound"
	kind := transferKind(q.Type)

	chain, ok := s.Catalog.Chain(q.Name.Lower())
	if !ok {
		metrics.ZoneTransfersTotal.WithLabelValues(direction, "refused").Inc()
		return true, s.sendTCPError(conn, req.Header.ID, q, dnserr.ServFail)
	}

	opts := lookup.FromEDNS(req.EDNS)
	result, signer := catalog.RunChain(ctx, chain, req, info, opts)
	if result.Err != nil {
		rcode := dnserr.ServFail
		outcome := "error"
		if result.Err == dnserr.Refused {
			rcode = dnserr.Refused
			outcome = "refused"
		}
		metrics.ZoneTransfersTotal.WithLabelValues(direction, outcome).Inc()
		return true, s.sendTCPError(conn, req.Header.ID, q, rcode)
	}

	stream := result.Value.Answers
	s.Logger.Info("zone transfer starting", "zone", string(q.Name), "qtype", q.Type, "records", len(stream))

	for _, rec := range stream {
		resp := &wire.Message{
			Header: wire.Header{
				ID:                 req.Header.ID,
				Response:           true,
				AuthoritativeAnswer: true,
				RecursionAvailable: true,
			},
			Queries: req.Queries,
			Answers: []wire.Record{rec},
		}
		if signer != nil {
			_ = signer(resp, time.Now())
		}
		resData, _, encErr := wire.Encode(resp, wire.Normal, 0)
		if encErr != nil {
			s.Logger.Error("zone transfer failed to encode record", "error", encErr)
			continue
		}
		resLen := uint16(len(resData))
		framed := append([]byte{byte(resLen >> 8), byte(resLen & 0xFF)}, resData...)
		if _, werr := conn.Write(framed); werr != nil {
			metrics.ZoneTransfersTotal.WithLabelValues(direction, "error").Inc()
			return true, werr
		}
	}
	metrics.ZoneTransfersTotal.WithLabelValues(direction, "ok").Inc()
	s.Logger.Info("zone transfer completed", "zone", string(q.Name), "qtype", q.Type, "kind", kind)
	return true, nil
}

func (s *Server) sendTCPError(conn net.Conn, id uint16, q wire.Query, rcode dnserr.ResponseCode) error {
	resp := &wire.Message{
		Header:  wire.Header{ID: id, Response: true, RCode: rcode},
		Queries: []wire.Query{q},
	}
	resData, _, err := wire.Encode(resp, wire.Normal, 0)
	if err != nil {
		return err
	}
	resLen := uint16(len(resData))
	framed := append([]byte{byte(resLen >> 8), byte(resLen & 0xFF)}, resData...)
	_, err = conn.Write(framed)
	return err
}
