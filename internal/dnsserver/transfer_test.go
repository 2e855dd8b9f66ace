package dnsserver

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-dns/dnscore/internal/wire"
)

// pipeConn is a minimal net.Conn over an in-memory buffer, enough for
// handleZoneTransferTCP's read-request/write-frames shape without a real
// socket.
type pipeConn struct {
	net.Conn
	out *bytes.Buffer
}

func (p *pipeConn) Write(b []byte) (int, error)      { return p.out.Write(b) }
func (p *pipeConn) RemoteAddr() net.Addr              { return testAddr() }
func (p *pipeConn) Close() error                      { return nil }

func TestHandleZoneTransferTCP_StreamsRecordsForAXFR(t *testing.T) {
	s, _ := newTestServer()
	req := &wire.Message{
		Header:  wire.Header{ID: 7},
		Queries: []wire.Query{{Name: wire.NewName("example.com"), Class: wire.ClassIN, Type: wire.TypeAXFR}},
	}
	data, _, err := wire.Encode(req, wire.Normal, 0)
	require.NoError(t, err)

	conn := &pipeConn{out: &bytes.Buffer{}}
	handled, err := s.handleZoneTransferTCP(conn, data)
	require.True(t, handled)
	require.NoError(t, err)

	frames := splitFrames(t, conn.out.Bytes())
	require.GreaterOrEqual(t, len(frames), 2)
	first, err := wire.Decode(frames[0])
	require.NoError(t, err)
	require.Len(t, first.Answers, 1)
	assert.Equal(t, wire.TypeSOA, first.Answers[0].Type)

	last, err := wire.Decode(frames[len(frames)-1])
	require.NoError(t, err)
	assert.Equal(t, wire.TypeSOA, last.Answers[0].Type)
}

func TestHandleZoneTransferTCP_IgnoresOrdinaryQuery(t *testing.T) {
	s, _ := newTestServer()
	data := encodeQuery(wire.NewName("www.example.com"), wire.TypeA)
	conn := &pipeConn{out: &bytes.Buffer{}}
	handled, err := s.handleZoneTransferTCP(conn, data)
	assert.False(t, handled)
	assert.NoError(t, err)
	assert.Zero(t, conn.out.Len())
}

func splitFrames(t *testing.T, buf []byte) [][]byte {
	t.Helper()
	var frames [][]byte
	for len(buf) > 0 {
		require.GreaterOrEqual(t, len(buf), 2)
		n := binary.BigEndian.Uint16(buf[:2])
		buf = buf[2:]
		require.GreaterOrEqual(t, len(buf), int(n))
		frames = append(frames, buf[:n])
		buf = buf[n:]
	}
	return frames
}
