package recursor

import (
	"context"
	"crypto/rand"
	"math/big"
	"net"
	"strings"
	"time"

	"github.com/lattice-dns/dnscore/internal/dnserr"
	"github.com/lattice-dns/dnscore/internal/wire"
)

const maxUDPPacket = 4096

// dialUpstream opens a UDP socket bound to a source port not excluded by
// avoid_local_udp_ports, retrying a bounded number of times. Grounded on
// the teacher's net.DialTimeout query path in recursive.go, generalized
// with explicit local-port control since the teacher always lets the OS
// pick an ephemeral port.
func (r *Resolver) dialUpstream(ctx context.Context, network, addr string) (net.Conn, error) {
	if network == "tcp" {
		d := net.Dialer{Timeout: r.queryTimeout()}
		return d.DialContext(ctx, network, addr)
	}

	for attempt := 0; attempt < 10; attempt++ {
		local := &net.UDPAddr{Port: 0}
		conn, err := net.ListenUDP("udp", local)
		if err != nil {
			return nil, err
		}
		if len(r.cfg.AvoidLocalUDPPorts) == 0 {
			return r.connectUDP(conn, addr)
		}
		port := conn.LocalAddr().(*net.UDPAddr).Port
		if !r.cfg.AvoidLocalUDPPorts[port] {
			return r.connectUDP(conn, addr)
		}
		_ = conn.Close()
	}
	// Exhausted retries: fall back to whatever the OS hands out.
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return nil, err
	}
	return r.connectUDP(conn, addr)
}

func (r *Resolver) connectUDP(conn *net.UDPConn, addr string) (net.Conn, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := conn.SetReadBuffer(maxUDPPacket); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &connectedUDP{UDPConn: conn, raddr: raddr}, nil
}

// connectedUDP adapts an unconnected *net.UDPConn (needed so we control the
// local port) to the net.Conn Read/Write pair against one fixed peer.
type connectedUDP struct {
	*net.UDPConn
	raddr *net.UDPAddr
}

func (c *connectedUDP) Write(b []byte) (int, error) { return c.WriteToUDP(b, c.raddr) }
func (c *connectedUDP) Read(b []byte) (int, error) {
	n, from, err := c.ReadFromUDP(b)
	if err != nil {
		return n, err
	}
	if !from.IP.Equal(c.raddr.IP) {
		return 0, dnserr.ErrIO
	}
	return n, nil
}

func (r *Resolver) queryTimeout() time.Duration {
	if r.cfg.QueryTimeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(r.cfg.QueryTimeout) * time.Second
}

// queryUpstream sends one query for (name, qtype) to server:53, following
// the teacher's UDP-first, TCP-on-truncation shape. When case_randomization
// is enabled the query name's letters are randomly upper/lowercased (the
// "0x20 hack") before encoding.
func (r *Resolver) queryUpstream(ctx context.Context, server string, name wire.Name, qtype wire.RRType, wantDO bool) (*wire.Message, error) {
	queryName := name
	if r.cfg.CaseRandomization {
		queryName = randomizeCase(name)
	}

	req := &wire.Message{
		Header: wire.Header{
			ID:               newTransactionID(),
			RecursionDesired: false,
		},
		Queries: []wire.Query{{Name: queryName, Class: wire.ClassIN, Type: qtype}},
		EDNS:    wire.NewOPT(maxUDPPacket, wantDO),
	}

	resp, truncated, err := r.send(ctx, "udp", server, req)
	if err != nil {
		return nil, err
	}
	if truncated || (resp != nil && resp.Header.Truncated) {
		req.Queries[0].Name = name
		resp, _, err = r.send(ctx, "tcp", server, req)
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (r *Resolver) send(ctx context.Context, network, server string, req *wire.Message) (*wire.Message, bool, error) {
	addr := net.JoinHostPort(server, "53")
	conn, err := r.dialUpstream(ctx, network, addr)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(r.queryTimeout())
	_ = conn.SetDeadline(deadline)

	buf, _, err := wire.Encode(req, wire.Normal, 0)
	if err != nil {
		return nil, false, err
	}

	if network == "tcp" {
		lenPrefix := []byte{byte(len(buf) >> 8), byte(len(buf))}
		if _, err := conn.Write(append(lenPrefix, buf...)); err != nil {
			return nil, false, err
		}
		hdr := make([]byte, 2)
		if _, err := readFull(conn, hdr); err != nil {
			return nil, false, err
		}
		n := int(hdr[0])<<8 | int(hdr[1])
		body := make([]byte, n)
		if _, err := readFull(conn, body); err != nil {
			return nil, false, err
		}
		resp, err := wire.Decode(body)
		if err != nil {
			return nil, false, err
		}
		return verifyTransaction(req, resp)
	}

	if _, err := conn.Write(buf); err != nil {
		return nil, false, err
	}
	respBuf := make([]byte, maxUDPPacket)
	n, err := conn.Read(respBuf)
	if err != nil {
		return nil, false, err
	}
	resp, err := wire.Decode(respBuf[:n])
	if err != nil {
		return nil, false, err
	}
	return verifyTransaction(req, resp)
}

func verifyTransaction(req, resp *wire.Message) (*wire.Message, bool, error) {
	if resp.Header.ID != req.Header.ID {
		return nil, false, dnserr.ErrIO
	}
	return resp, resp.Header.Truncated, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func newTransactionID() uint16 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<16))
	if err != nil {
		return 0
	}
	return uint16(n.Int64())
}

// randomizeCase applies the 0x20 hack: each letter of name independently
// gets a random case, used only on UDP queries the recursor issues upstream
// (spec §4.7). The Decoder always lowercases on read (internal/wire), so
// verifying the echoed case on the reply is out of scope here — that check
// would need the raw wire bytes rather than the decoded Message.
func randomizeCase(name wire.Name) wire.Name {
	var b strings.Builder
	for _, c := range string(name) {
		if c >= 'a' && c <= 'z' {
			bit, err := rand.Int(rand.Reader, big.NewInt(2))
			if err == nil && bit.Int64() == 1 {
				c -= 32
			}
		}
		b.WriteRune(c)
	}
	return wire.Name(b.String())
}
