package dnsserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-dns/dnscore/internal/dnserr"
	"github.com/lattice-dns/dnscore/internal/wire"
)

func updateRequest(zone wire.Name, inserts []wire.Record) *wire.Message {
	return &wire.Message{
		Header:      wire.Header{ID: 9, Opcode: wire.OpcodeUpdate},
		Queries:     []wire.Query{{Name: zone, Class: wire.ClassIN, Type: wire.TypeSOA}},
		Authorities: inserts,
	}
}

func TestHandleUpdate_InsertsRecordAndFlushesCache(t *testing.T) {
	s, _ := newTestServer()
	s.Cache.Set("stale-key", []byte("x"), 0)

	req := updateRequest(wire.NewName("example.com"), []wire.Record{
		aRecord(wire.NewName("new.example.com"), "198.51.100.7"),
	})

	var sent []byte
	err := s.handleUpdate(context.Background(), req, "127.0.0.1", func(resp []byte) error {
		sent = resp
		return nil
	})
	require.NoError(t, err)

	resp, err := wire.Decode(sent)
	require.NoError(t, err)
	assert.Equal(t, dnserr.NoError, resp.Header.RCode)

	_, found := s.Cache.Get("stale-key")
	assert.False(t, found, "cache should be flushed after a successful update")

	res := queryServerZone(t, s, "new.example.com.", wire.TypeA)
	require.Len(t, res.Answers, 1)
}

func TestHandleUpdate_RejectsMultipleZoneSections(t *testing.T) {
	s, _ := newTestServer()
	req := &wire.Message{
		Header:  wire.Header{ID: 9, Opcode: wire.OpcodeUpdate},
		Queries: []wire.Query{{Name: wire.NewName("a.com")}, {Name: wire.NewName("b.com")}},
	}

	var sent []byte
	require.NoError(t, s.handleUpdate(context.Background(), req, "127.0.0.1", func(resp []byte) error {
		sent = resp
		return nil
	}))

	resp, err := wire.Decode(sent)
	require.NoError(t, err)
	assert.Equal(t, dnserr.FormErr, resp.Header.RCode)
}

func TestHandleUpdate_RejectsUnknownZone(t *testing.T) {
	s, _ := newTestServer()
	req := updateRequest(wire.NewName("not-served.test"), nil)

	var sent []byte
	require.NoError(t, s.handleUpdate(context.Background(), req, "127.0.0.1", func(resp []byte) error {
		sent = resp
		return nil
	}))

	resp, err := wire.Decode(sent)
	require.NoError(t, err)
	assert.Equal(t, dnserr.NotAuth, resp.Header.RCode)
}

func TestHandleUpdate_RejectsUnknownTSIGKey(t *testing.T) {
	s, _ := newTestServer()
	req := updateRequest(wire.NewName("example.com"), nil)
	req.Signature = wire.Signature{Kind: wire.Tsig, Record: &wire.Record{Name: wire.NewName("missing-key")}}

	var sent []byte
	require.NoError(t, s.handleUpdate(context.Background(), req, "127.0.0.1", func(resp []byte) error {
		sent = resp
		return nil
	}))

	resp, err := wire.Decode(sent)
	require.NoError(t, err)
	assert.Equal(t, dnserr.NotAuth, resp.Header.RCode)
}

func queryServerZone(t *testing.T, s *Server, name string, qtype wire.RRType) *wire.Message {
	t.Helper()
	data := encodeQuery(wire.Name(name), qtype)
	var sent []byte
	require.NoError(t, s.handlePacket(context.Background(), data, testAddr(), "udp", 512, func(resp []byte) error {
		sent = resp
		return nil
	}))
	resp, err := wire.Decode(sent)
	require.NoError(t, err)
	return resp
}
