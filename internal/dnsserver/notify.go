package dnsserver

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net"
	"time"

	"github.com/lattice-dns/dnscore/internal/authority"
	"github.com/lattice-dns/dnscore/internal/dnserr"
	"github.com/lattice-dns/dnscore/internal/lookup"
	"github.com/lattice-dns/dnscore/internal/metrics"
	"github.com/lattice-dns/dnscore/internal/wire"
	"github.com/lattice-dns/dnscore/internal/zoneauth"
)

// handleNotify acknowledges a RFC 1996 NOTIFY immediately, then triggers an
// asynchronous refresh against the notifying master. Adapted from the
// teacher's handleNotify/refreshZoneFromMaster, which never persisted the
// result; here a completed transfer is applied via zoneauth.Zone.ReplaceAll.
func (s *Server) handleNotify(ctx context.Context, req *wire.Message, clientIP string, sendFn func([]byte) error) error {
	if len(req.Queries) == 0 {
		return nil
	}
	zoneName := req.Queries[0].Name
	s.Logger.Info("received NOTIFY", "zone", zoneName, "from", clientIP)

	resp := &wire.Message{
		Header: wire.Header{
			ID:                 req.Header.ID,
			Response:           true,
			Opcode:             wire.OpcodeNotify,
			AuthoritativeAnswer: true,
			RCode:              dnserr.NoError,
		},
		Queries: req.Queries,
	}
	if err := s.encodeAndSend(resp, 0, sendFn); err != nil {
		return err
	}

	go s.refreshZoneFromMaster(zoneName, clientIP)
	return nil
}

// refreshZoneFromMaster queries the master's SOA, compares serials with RFC
// 1982 arithmetic, and pulls IXFR (falling back to AXFR) when the master is
// ahead.
func (s *Server) refreshZoneFromMaster(zoneName wire.Name, masterAddr string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	chain, ok := s.Catalog.Chain(zoneName.Lower())
	if !ok {
		return
	}
	var zone *zoneauth.Zone
	for _, a := range chain {
		if z, ok := a.(*zoneauth.Zone); ok && z.ZoneType() == authority.Secondary {
			zone = z
			break
		}
	}
	if zone == nil {
		s.Logger.Warn("NOTIFY received for zone with no local secondary", "zone", zoneName)
		return
	}

	s.Logger.Info("starting zone refresh", "zone", zoneName, "master", masterAddr)

	masterSOA, err := s.querySOA(ctx, masterAddr, zoneName)
	if err != nil {
		s.Logger.Error("failed to query master SOA", "zone", zoneName, "error", err)
		return
	}

	localSerial, err := localSOASerial(ctx, zone, zoneName)
	if err != nil {
		s.Logger.Error("failed to get local SOA", "zone", zoneName, "error", err)
		return
	}

	if !serialGreater(masterSOA.Serial, localSerial) {
		s.Logger.Info("zone is up to date", "zone", zoneName, "local", localSerial, "master", masterSOA.Serial)
		return
	}
	s.Logger.Info("zone needs update", "zone", zoneName, "local", localSerial, "master", masterSOA.Serial)

	kind := "ixfr"
	records, err := s.pullIXFR(ctx, masterAddr, zoneName, localSerial)
	if err != nil {
		s.Logger.Warn("IXFR failed, falling back to AXFR", "zone", zoneName, "error", err)
		kind = "axfr"
		records, err = s.pullAXFR(ctx, masterAddr, zoneName)
		if err != nil {
			s.Logger.Error("AXFR failed", "zone", zoneName, "error", err)
			metrics.ZoneTransfersTotal.WithLabelValues("inbound", "error").Inc()
			return
		}
	}

	zone.ReplaceAll(records, masterSOA.Serial)
	s.Cache.Flush()
	metrics.ZoneTransfersTotal.WithLabelValues("inbound", "ok").Inc()
	s.Logger.Info("zone refresh complete", "zone", zoneName, "kind", kind, "records", len(records))
}

func localSOASerial(ctx context.Context, zone *zoneauth.Zone, zoneName wire.Name) (uint32, error) {
	result := zone.Lookup(ctx, zoneName.Lower(), wire.TypeSOA, nil, lookup.Options{})
	if result.Err != nil || len(result.Value.Answers) == 0 {
		return 0, fmt.Errorf("no local SOA for %s", zoneName)
	}
	return result.Value.Answers[0].Serial, nil
}

// serialGreater implements RFC 1982 serial number arithmetic: true if s1 is
// strictly ahead of s2.
func serialGreater(s1, s2 uint32) bool {
	if s1 == s2 {
		return false
	}
	return (s1 < s2 && s2-s1 > 0x80000000) || (s1 > s2 && s1-s2 < 0x80000000)
}

// querySOA sends a single-question SOA query over UDP and returns the
// answer's SOA record.
func (s *Server) querySOA(ctx context.Context, addr string, zoneName wire.Name) (*wire.Record, error) {
	addr = ensurePort(addr, "53")

	req := &wire.Message{
		Header:  wire.Header{ID: uint16(rand.Intn(65536)), RecursionDesired: false},
		Queries: []wire.Query{{Name: zoneName, Type: wire.TypeSOA, Class: wire.ClassIN}},
	}
	data, _, err := wire.Encode(req, wire.Normal, 512)
	if err != nil {
		return nil, err
	}

	conn, err := net.DialTimeout("udp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write(data); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	resp, err := wire.Decode(buf[:n])
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	for i, a := range resp.Answers {
		if a.Type == wire.TypeSOA {
			return &resp.Answers[i], nil
		}
	}
	return nil, fmt.Errorf("no SOA record in response")
}

func ensurePort(addr, port string) string {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return net.JoinHostPort(addr, port)
	}
	return addr
}

// pullIXFR dials the master over TCP and requests an incremental transfer
// carrying localSerial. It returns an error if the server responds with
// anything other than a full (2+ SOA) diff stream, signaling the caller to
// fall back to pullAXFR.
func (s *Server) pullIXFR(ctx context.Context, masterAddr string, zoneName wire.Name, localSerial uint32) ([]wire.Record, error) {
	req := &wire.Message{
		Header:      wire.Header{ID: uint16(rand.Intn(65536))},
		Queries:     []wire.Query{{Name: zoneName, Type: wire.TypeIXFR, Class: wire.ClassIN}},
		Authorities: []wire.Record{{Name: zoneName, Type: wire.TypeSOA, Class: wire.ClassIN, Serial: localSerial}},
	}
	stream, err := s.streamTransfer(ctx, masterAddr, req)
	if err != nil {
		return nil, err
	}
	soaCount := 0
	for _, r := range stream {
		if r.Type == wire.TypeSOA {
			soaCount++
		}
	}
	if soaCount < 2 {
		return nil, fmt.Errorf("server indicated AXFR required")
	}
	return dropBracketingSOA(stream), nil
}

// pullAXFR dials the master over TCP and reads a full zone transfer.
func (s *Server) pullAXFR(ctx context.Context, masterAddr string, zoneName wire.Name) ([]wire.Record, error) {
	req := &wire.Message{
		Header:  wire.Header{ID: uint16(rand.Intn(65536))},
		Queries: []wire.Query{{Name: zoneName, Type: wire.TypeAXFR, Class: wire.ClassIN}},
	}
	stream, err := s.streamTransfer(ctx, masterAddr, req)
	if err != nil {
		return nil, err
	}
	return dropBracketingSOA(stream), nil
}

// streamTransfer sends a length-prefixed AXFR/IXFR query over TCP and
// collects every record from every framed response up to and including the
// closing SOA.
func (s *Server) streamTransfer(ctx context.Context, masterAddr string, req *wire.Message) ([]wire.Record, error) {
	masterAddr = ensurePort(masterAddr, "53")
	conn, err := net.DialTimeout("tcp", masterAddr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(60 * time.Second))

	data, _, err := wire.Encode(req, wire.Normal, 0)
	if err != nil {
		return nil, err
	}
	length := uint16(len(data))
	if _, err := conn.Write(append([]byte{byte(length >> 8), byte(length & 0xFF)}, data...)); err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}

	var records []wire.Record
	seenFirstSOA := false
	for {
		lenBuf := make([]byte, 2)
		if _, err := io.ReadFull(conn, lenBuf); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to read response length: %w", err)
		}
		respLen := int(lenBuf[0])<<8 | int(lenBuf[1])
		respData := make([]byte, respLen)
		if _, err := io.ReadFull(conn, respData); err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		resp, err := wire.Decode(respData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if resp.Header.RCode != dnserr.NoError {
			return nil, fmt.Errorf("transfer failed with rcode %s", resp.Header.RCode)
		}
		for _, a := range resp.Answers {
			records = append(records, a)
			if a.Type == wire.TypeSOA {
				if seenFirstSOA {
					return records, nil
				}
				seenFirstSOA = true
			}
		}
	}
	return nil, fmt.Errorf("transfer incomplete: did not receive closing SOA")
}

// dropBracketingSOA strips the leading and trailing SOA AXFR/IXFR framing
// adds, leaving the zone's content records (plus any interior SOA an IXFR
// diff legitimately carries).
func dropBracketingSOA(stream []wire.Record) []wire.Record {
	if len(stream) < 2 {
		return stream
	}
	return stream[1 : len(stream)-1]
}

// notifySlaves sends a NOTIFY datagram to every glue IP of every NS record
// at the zone's apex, skipping any target that matches this server's own
// listening address.
func (s *Server) notifySlaves(ctx context.Context, zone authority.Authority) {
	origin := zone.Origin()
	result := zone.Lookup(ctx, origin, wire.TypeNS, nil, lookup.Options{})
	if result.Err != nil {
		return
	}

	for _, ns := range result.Value.Answers {
		if ns.Type != wire.TypeNS {
			continue
		}
		chain, ok := s.Catalog.Chain(ns.Host.Lower())
		if !ok {
			continue
		}
		var glueIPs []string
		for _, a := range chain {
			ares := a.Lookup(ctx, ns.Host.Lower(), wire.TypeA, nil, lookup.Options{})
			if ares.Err != nil {
				continue
			}
			for _, rec := range ares.Value.Answers {
				if rec.IP != nil {
					glueIPs = append(glueIPs, rec.IP.String())
				}
			}
		}

		targetPort := 53
		if s.NotifyPortOverride > 0 {
			targetPort = s.NotifyPortOverride
		}
		for _, ip := range glueIPs {
			targetAddr := net.JoinHostPort(ip, fmt.Sprintf("%d", targetPort))
			if s.Addr == targetAddr {
				continue
			}
			s.Logger.Info("sending NOTIFY", "zone", origin, "slave", targetAddr)
			s.sendNotify(targetAddr, origin)
		}
	}
}

func (s *Server) sendNotify(targetAddr string, origin wire.LowerName) {
	notify := &wire.Message{
		Header:  wire.Header{ID: uint16(rand.Intn(65536)), Opcode: wire.OpcodeNotify, AuthoritativeAnswer: true},
		Queries: []wire.Query{{Name: wire.Name(origin), Type: wire.TypeSOA, Class: wire.ClassIN}},
	}
	data, _, err := wire.Encode(notify, wire.Normal, 512)
	if err != nil {
		return
	}
	conn, err := net.Dial("udp", targetAddr)
	if err != nil {
		return
	}
	defer conn.Close()
	_, _ = conn.Write(data)
}
