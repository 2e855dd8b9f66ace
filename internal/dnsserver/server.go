// Package dnsserver implements the transport layer: parallel SO_REUSEPORT
// UDP listeners, a TCP listener (plain, and DoT over TLS), and a DoH HTTP
// handler, all funneling into one handlePacket entry point that runs a
// decoded message through the Chained Catalog. Adapted from the teacher's
// internal/dns/server/server.go, which combined transport with zone-data
// and Postgres access in one Server type; here transport is its own
// package, talking to zone data only through internal/catalog and
// internal/authority.
package dnsserver

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"io"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"syscall"
	"time"

	"github.com/lattice-dns/dnscore/internal/cache"
	"github.com/lattice-dns/dnscore/internal/catalog"
	"github.com/lattice-dns/dnscore/internal/dnssign"
	"github.com/lattice-dns/dnscore/internal/metrics"
)

// Server owns every listener and the shared state (catalog, caches, rate
// limiter, TSIG keys) request handling needs.
type Server struct {
	Addr        string
	Catalog     *catalog.Catalog
	Cache       *cache.ResponseCache
	Redis       *cache.RedisCache
	WorkerCount int
	Logger      *slog.Logger
	TSIGKeys    map[string]dnssign.TSIGKey

	// NotifyPortOverride lets tests point NOTIFY traffic at a non-53 port.
	NotifyPortOverride int

	// TLSConfig, if set, turns on the DoT (port 853) and DoH (port 443)
	// listeners in Run.
	TLSConfig *tls.Config

	udpQueue chan udpTask
	limiter  *rateLimiter
}

type udpTask struct {
	addr net.Addr
	data []byte
	conn net.PacketConn
}

// New builds a Server around an already-populated Catalog. Zones must be
// registered with cat before Run is called.
func New(addr string, cat *catalog.Catalog, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Addr:        addr,
		Catalog:     cat,
		Cache:       cache.New(),
		WorkerCount: runtime.NumCPU() * 8,
		Logger:      logger,
		TSIGKeys:    make(map[string]dnssign.TSIGKey),
		udpQueue:    make(chan udpTask, 10000),
		limiter:     newRateLimiter(200000, 100000),
	}

	go func() {
		for {
			time.Sleep(5 * time.Minute)
			s.limiter.Cleanup()
		}
	}()

	return s
}

// Run starts every configured listener. It returns only on a fatal setup
// error; once listening it blocks forever.
func (s *Server) Run() error {
	s.Logger.Info("starting parallel server", "addr", s.Addr, "listeners", runtime.NumCPU())

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				_ = setReusePort(fd)
			})
		},
	}

	for i := 0; i < runtime.NumCPU(); i++ {
		go func(id int) {
			conn, err := lc.ListenPacket(context.Background(), "udp", s.Addr)
			if err != nil {
				s.Logger.Error("failed to start UDP listener", "id", id, "error", err)
				return
			}
			defer conn.Close()
			for {
				buf := make([]byte, 4096)
				n, addr, err := conn.ReadFrom(buf)
				if err != nil {
					continue
				}
				data := make([]byte, n)
				copy(data, buf[:n])
				s.udpQueue <- udpTask{addr: addr, data: data, conn: conn}
			}
		}(i)
	}

	for i := 0; i < s.WorkerCount; i++ {
		go s.udpWorker()
	}

	tcpListener, err := lc.Listen(context.Background(), "tcp", s.Addr)
	if err == nil {
		go func() {
			defer tcpListener.Close()
			for {
				conn, err := tcpListener.Accept()
				if err != nil {
					continue
				}
				go s.handleTCPConnection(conn)
			}
		}()
	}

	if s.TLSConfig != nil {
		host, _, _ := net.SplitHostPort(s.Addr)

		dotAddr := net.JoinHostPort(host, "853")
		if dotListener, err := tls.Listen("tcp", dotAddr, s.TLSConfig); err == nil {
			s.Logger.Info("DNS over TLS (DoT) starting", "addr", dotAddr)
			go func() {
				defer dotListener.Close()
				for {
					conn, err := dotListener.Accept()
					if err != nil {
						continue
					}
					go s.handleTCPConnection(conn)
				}
			}()
		}

		dohAddr := net.JoinHostPort(host, "443")
		mux := http.NewServeMux()
		mux.HandleFunc("/dns-query", s.handleDoH)
		dohServer := &http.Server{Addr: dohAddr, Handler: mux, TLSConfig: s.TLSConfig}
		s.Logger.Info("DNS over HTTPS (DoH) starting", "addr", dohAddr)
		go dohServer.ListenAndServeTLS("", "")

		doqAddr := net.JoinHostPort(host, "8853")
		go s.runDoQ(doqAddr, s.TLSConfig)

		doh3Addr := net.JoinHostPort(host, "8443")
		go s.runDoH3(doh3Addr, s.TLSConfig)
	}

	select {}
}

func (s *Server) udpWorker() {
	for task := range s.udpQueue {
		metrics.ActiveWorkers.Inc()
		s.handleUDPConnection(task.conn, task.addr, task.data)
		metrics.ActiveWorkers.Dec()
	}
}

func (s *Server) handleUDPConnection(pc net.PacketConn, addr net.Addr, data []byte) {
	_ = s.handlePacket(context.Background(), data, addr, "udp", 0, func(resp []byte) error {
		_, err := pc.WriteTo(resp, addr)
		return err
	})
}

func (s *Server) handleTCPConnection(conn net.Conn) {
	defer conn.Close()
	for {
		lenBuf := make([]byte, 2)
		if _, err := io.ReadFull(conn, lenBuf); err != nil {
			return
		}
		packetLen := uint16(lenBuf[0])<<8 | uint16(lenBuf[1])
		data := make([]byte, packetLen)
		if _, err := io.ReadFull(conn, data); err != nil {
			return
		}

		if handled, err := s.handleZoneTransferTCP(conn, data); handled {
			if err != nil {
				s.Logger.Error("zone transfer failed", "error", err)
			}
			continue
		}

		if err := s.handlePacket(context.Background(), data, conn.RemoteAddr(), "tcp", 65535, func(resp []byte) error {
			resLen := uint16(len(resp))
			fullResp := append([]byte{byte(resLen >> 8), byte(resLen & 0xFF)}, resp...)
			_, err := conn.Write(fullResp)
			return err
		}); err != nil {
			s.Logger.Error("failed to handle TCP packet", "error", err)
		}
	}
}

func (s *Server) handleDoH(w http.ResponseWriter, r *http.Request) {
	var dnsMsg []byte
	var err error

	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query().Get("dns")
		if query == "" {
			http.Error(w, "missing dns parameter", http.StatusBadRequest)
			return
		}
		dnsMsg, err = base64.RawURLEncoding.DecodeString(query)
		if err != nil {
			dnsMsg, err = base64.URLEncoding.DecodeString(query)
			if err != nil {
				http.Error(w, "invalid base64", http.StatusBadRequest)
				return
			}
		}
	case http.MethodPost:
		if r.Header.Get("Content-Type") != "application/dns-message" {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		dnsMsg, err = io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_ = s.handlePacket(r.Context(), dnsMsg, stringAddr(r.RemoteAddr), "doh", 65535, func(resp []byte) error {
		w.Header().Set("Content-Type", "application/dns-message")
		w.WriteHeader(http.StatusOK)
		_, err := w.Write(resp)
		return err
	})
}
