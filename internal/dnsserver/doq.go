package dnsserver

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

// DoQ (RFC 9250) and DoH3 listen on their own ports alongside the DoT/DoH
// listeners Run starts: each clones the shared *tls.Config so setting its
// NextProtos leaves the config DoT/DoH use untouched. quic-go is the only
// transport in the pack offering a QUIC stack, so there's no teacher/example
// source to ground the framing on; RFC 9250 section 4.2 specifies the
// 2-byte length prefix reused here, matching handleTCPConnection's framing.
func (s *Server) runDoQ(addr string, tlsConf *tls.Config) {
	conf := tlsConf.Clone()
	conf.NextProtos = []string{"doq"}

	ln, err := quic.ListenAddr(addr, conf, nil)
	if err != nil {
		s.Logger.Error("failed to start DoQ listener", "addr", addr, "error", err)
		return
	}
	s.Logger.Info("DNS over QUIC (DoQ) starting", "addr", addr)
	defer ln.Close()

	for {
		conn, err := ln.Accept(context.Background())
		if err != nil {
			return
		}
		go s.handleDoQConnection(conn)
	}
}

func (s *Server) handleDoQConnection(conn *quic.Conn) {
	for {
		stream, err := conn.AcceptStream(context.Background())
		if err != nil {
			return
		}
		go s.handleDoQStream(stream)
	}
}

func (s *Server) handleDoQStream(stream *quic.Stream) {
	defer stream.Close()

	lenBuf := make([]byte, 2)
	if _, err := io.ReadFull(stream, lenBuf); err != nil {
		return
	}
	packetLen := uint16(lenBuf[0])<<8 | uint16(lenBuf[1])
	data := make([]byte, packetLen)
	if _, err := io.ReadFull(stream, data); err != nil {
		return
	}

	if err := s.handlePacket(context.Background(), data, stringAddr("doq"), "doq", 65535, func(resp []byte) error {
		resLen := uint16(len(resp))
		if _, err := stream.Write([]byte{byte(resLen >> 8), byte(resLen & 0xFF)}); err != nil {
			return err
		}
		_, err := stream.Write(resp)
		return err
	}); err != nil {
		s.Logger.Error("failed to handle DoQ stream", "error", err)
	}
}

// runDoH3 serves the same /dns-query handler as DoH, over HTTP/3.
func (s *Server) runDoH3(addr string, tlsConf *tls.Config) {
	conf := tlsConf.Clone()
	conf.NextProtos = []string{"h3"}

	mux := http.NewServeMux()
	mux.HandleFunc("/dns-query", s.handleDoH)

	srv := &http3.Server{
		Addr:      addr,
		Handler:   mux,
		TLSConfig: conf,
	}
	s.Logger.Info("DNS over HTTP/3 (DoH3) starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil {
		s.Logger.Error("DoH3 server failed", "addr", addr, "error", err)
	}
}
