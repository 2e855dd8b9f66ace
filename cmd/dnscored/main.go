// Command dnscored runs the full recursive/authoritative DNS stack: a
// Chained Catalog fed by Postgres-backed primary/secondary zones and a
// recursive resolver at the root, DNSSEC signing, Redis-backed L2 response
// caching, optional BGP-announced anycast, and a Prometheus metrics
// endpoint. Adapted from the teacher's cmd/clouddns/main.go: same
// environment-variable configuration style, DB pool tuning, anycast
// grace-period startup check, and graceful shutdown sequence, generalized
// from the teacher's single-tenant repository to a catalog of zones.
package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lattice-dns/dnscore/internal/anycast"
	"github.com/lattice-dns/dnscore/internal/authority"
	"github.com/lattice-dns/dnscore/internal/cache"
	"github.com/lattice-dns/dnscore/internal/catalog"
	"github.com/lattice-dns/dnscore/internal/dnsserver"
	"github.com/lattice-dns/dnscore/internal/dnssign"
	"github.com/lattice-dns/dnscore/internal/master"
	"github.com/lattice-dns/dnscore/internal/metrics"
	"github.com/lattice-dns/dnscore/internal/recursor"
	"github.com/lattice-dns/dnscore/internal/store/postgres"
	"github.com/lattice-dns/dnscore/internal/wire"
	"github.com/lattice-dns/dnscore/internal/zoneauth"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cat := catalog.New()

	var store *postgres.Store
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL != "" && dbURL != "none" {
		db, err := sql.Open("pgx", dbURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(2000)
		db.SetMaxIdleConns(1000)
		db.SetConnMaxLifetime(10 * time.Minute)
		defer db.Close()

		store = postgres.New(db)
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}

		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					stats := db.Stats()
					metrics.DBConnectionsActive.Set(float64(stats.InUse))
				}
			}
		}()

	}

	var keyStore dnssign.KeyStore = dnssign.NewMemStore()
	if store != nil {
		keyStore = postgres.NewKeyStore(store)
	}
	signer := dnssign.NewManager(keyStore)

	if store != nil {
		if err := loadZonesFromStore(ctx, store, cat, signer); err != nil {
			return fmt.Errorf("failed to load zones: %w", err)
		}
	}

	if err := loadStaticZone(os.Getenv("ZONE_FILE"), os.Getenv("ZONE_ORIGIN"), cat, signer); err != nil {
		return fmt.Errorf("failed to load static zone file: %w", err)
	}

	recCfg := recursorConfigFromEnv()
	resolver := recursor.New(recCfg)
	if recCfg.Roots != "" {
		hints, err := loadRootHints(recCfg.Roots)
		if err != nil {
			return fmt.Errorf("failed to load root hints: %w", err)
		}
		resolver.SetRootHints(hints)
	}
	cat.Register(wire.LowerName("."), resolver)

	var redisCache *cache.RedisCache
	redisURL := os.Getenv("REDIS_URL")
	if redisURL != "" {
		redisCache = cache.NewRedisCache(redisURL, "", 0)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := redisCache.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", redisURL, err)
		}
		logger.Info("connected to redis cache", "url", redisURL)
	}

	dnsAddr := os.Getenv("DNS_ADDR")
	if dnsAddr == "" {
		dnsAddr = "127.0.0.1:10053"
	}
	dnsServer := dnsserver.New(dnsAddr, cat, logger)
	dnsServer.Redis = redisCache

	if certFile, keyFile := os.Getenv("DNS_TLS_CERT"), os.Getenv("DNS_TLS_KEY"); certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return fmt.Errorf("failed to load DNS TLS keypair: %w", err)
		}
		dnsServer.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	go func() {
		if err := dnsServer.Run(); err != nil {
			logger.Error("DNS server failed", "error", err)
		}
	}()

	var routingAdapter *anycast.GoBGP
	if os.Getenv("ANYCAST_ENABLED") == "true" {
		var err error
		routingAdapter, _, err = startAnycast(ctx, logger, cat, resolver)
		if err != nil {
			return err
		}
	}

	apiAddr := os.Getenv("API_ADDR")
	if apiAddr == "" {
		apiAddr = ":8080"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	logger.Info("dnscored starting", "dns_addr", dnsAddr, "api_addr", apiAddr)

	if apiAddr == "test-exit" || (dbURL == "none" && os.Getenv("ZONE_FILE") == "") {
		return nil
	}

	s := &http.Server{
		Addr:              apiAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down services...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", "error", err)
	}

	if routingAdapter != nil {
		if err := routingAdapter.Stop(); err != nil {
			logger.Error("BGP speaker stop failed", "error", err)
		}
	}

	return nil
}

// loadZonesFromStore registers every Primary/Secondary zone persisted in
// store as a zoneauth.Zone in cat, seeded with its current RRset. Primary
// zones get signer attached so they can answer DNSSEC-OK queries.
func loadZonesFromStore(ctx context.Context, store *postgres.Store, cat *catalog.Catalog, signer *dnssign.Manager) error {
	zones, err := store.ListZones(ctx, "")
	if err != nil {
		return err
	}
	for _, zm := range zones {
		_, records, err := store.LoadZone(ctx, zm.Name)
		if err != nil {
			return fmt.Errorf("zone %s: %w", zm.Name, err)
		}
		z := zoneauth.New(wire.NewName(zm.Name), zm.ID, zm.ZoneType, zm.AxfrPolicy)
		if zm.ZoneType == authority.Primary {
			z.SetSigner(signer)
		}
		z.LoadRecords(records, zm.Serial)
		cat.Register(wire.NewName(zm.Name).Lower(), z)
	}
	return nil
}

// loadStaticZone bootstraps one Primary zone from an RFC 1035 zone file,
// the way a standalone deployment with no Postgres store still wants an
// authoritative zone to serve. Optional: both env vars must be set.
func loadStaticZone(path, origin string, cat *catalog.Catalog, signer *dnssign.Manager) error {
	if path == "" {
		return nil
	}
	if origin == "" {
		return fmt.Errorf("ZONE_ORIGIN must be set when ZONE_FILE is set")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	parsed, err := master.NewParser().Parse(f)
	if err != nil {
		return err
	}

	z := zoneauth.New(wire.NewName(origin), origin, authority.Primary, authority.AllowAll)
	z.SetSigner(signer)
	z.LoadRecords(parsed.Records, 1)
	cat.Register(wire.NewName(origin).Lower(), z)
	return nil
}

func loadRootHints(path string) ([]net.IP, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return master.ParseRootHints(f)
}

func recursorConfigFromEnv() recursor.Config {
	cfg := recursor.Config{
		Roots:             os.Getenv("ROOT_HINTS"),
		NSCacheSize:       envInt("NS_CACHE_SIZE", 10000),
		ResponseCacheSize: envInt("RESPONSE_CACHE_SIZE", 50000),
		RecursionLimit:    envInt("RECURSION_LIMIT", 30),
		NSRecursionLimit:  envInt("NS_RECURSION_LIMIT", 10),
		CaseRandomization: os.Getenv("CASE_RANDOMIZATION") != "false",
		QueryTimeout:      envInt("QUERY_TIMEOUT_SECONDS", 5),
	}
	switch strings.ToLower(os.Getenv("DNSSEC_POLICY")) {
	case "validate":
		cfg.DNSSECPolicy = recursor.ValidateWithStaticKey
		cfg.StaticKey = recursor.StaticKeyConfig{
			Anchors:       trustAnchorsFromEnv("DNSSEC_TRUST_ANCHORS"),
			NSEC3SoftIter: envInt("NSEC3_SOFT_ITERATIONS", 150),
			NSEC3HardIter: envInt("NSEC3_HARD_ITERATIONS", 500),
		}
	case "validation_disabled":
		cfg.DNSSECPolicy = recursor.ValidationDisabled
	default:
		cfg.DNSSECPolicy = recursor.SecurityUnaware
	}
	return cfg
}

// trustAnchorsFromEnv parses the DNSSEC_TRUST_ANCHORS env var into static
// key anchors. Each anchor is "zone/keytag/algorithm/digesttype/digesthex",
// multiple anchors separated by ";" — a flat delimited format rather than
// JSON, matching the rest of this file's env-var-only configuration.
func trustAnchorsFromEnv(key string) []recursor.TrustAnchor {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var anchors []recursor.TrustAnchor
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		fields := strings.Split(entry, "/")
		if len(fields) != 5 {
			continue
		}
		keyTag, err1 := strconv.ParseUint(fields[1], 10, 16)
		algorithm, err2 := strconv.ParseUint(fields[2], 10, 8)
		digestType, err3 := strconv.ParseUint(fields[3], 10, 8)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		anchors = append(anchors, recursor.TrustAnchor{
			Zone:       fields[0],
			KeyTag:     uint16(keyTag),
			Algorithm:  uint8(algorithm),
			DigestType: uint8(digestType),
			DigestHex:  fields[4],
		})
	}
	return anchors
}

func envInt(key string, def int) int {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

func getEnvUint32(key string, def uint32) uint32 {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	u, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return def
	}
	return uint32(u)
}

// startAnycast wires GoBGP + SystemVIP behind an anycast.Manager gated on
// catalog/recursor health, mirroring the teacher's ANYCAST_ENABLED startup
// block in cmd/clouddns/main.go, including its short grace period to
// surface immediate BGP-bind failures before the caller proceeds.
func startAnycast(ctx context.Context, logger *slog.Logger, cat *catalog.Catalog, resolver *recursor.Resolver) (*anycast.GoBGP, *anycast.Manager, error) {
	vip := os.Getenv("ANYCAST_VIP")
	peerIP := os.Getenv("BGP_PEER_IP")
	if vip == "" || peerIP == "" {
		return nil, nil, fmt.Errorf("ANYCAST_VIP and BGP_PEER_IP must be set when ANYCAST_ENABLED=true")
	}

	iface := os.Getenv("ANYCAST_INTERFACE")
	if iface == "" {
		iface = "lo"
	}
	localASN := getEnvUint32("ANYCAST_LOCAL_ASN", 65001)
	peerASN := getEnvUint32("BGP_PEER_ASN", 65000)

	routingAdapter := anycast.NewGoBGP(logger)
	vipAdapter := anycast.NewSystemVIP(logger)
	health := catalogHealthChecker{cat: cat, resolver: resolver}

	interval := time.Duration(envInt("ANYCAST_CHECK_INTERVAL_SECONDS", 10)) * time.Second
	mgr := anycast.NewManager(health, routingAdapter, vipAdapter, vip, iface, interval, logger)

	errChan := make(chan error, 1)
	go func() {
		if err := routingAdapter.Start(ctx, localASN, peerASN, peerIP); err != nil {
			errChan <- fmt.Errorf("failed to start BGP speaker: %w", err)
			return
		}
		mgr.Start(ctx)
	}()

	select {
	case err := <-errChan:
		return nil, nil, err
	case <-time.After(500 * time.Millisecond):
	}

	return routingAdapter, mgr, nil
}

// catalogHealthChecker reports the catalog healthy as long as the root
// resolver is still the one registered at ".", mirroring the teacher's
// DNSService.HealthCheck gate on AnycastManager.
type catalogHealthChecker struct {
	cat      *catalog.Catalog
	resolver *recursor.Resolver
}

func (h catalogHealthChecker) HealthCheck(ctx context.Context) map[string]error {
	chain, ok := h.cat.Chain(wire.LowerName("."))
	if !ok || len(chain) == 0 || chain[0] != h.resolver {
		return map[string]error{"catalog": fmt.Errorf("root resolver not registered")}
	}
	return map[string]error{"catalog": nil}
}
