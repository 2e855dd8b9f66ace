package postgres

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lattice-dns/dnscore/internal/authority"
	"github.com/lattice-dns/dnscore/internal/wire"
)

// setupTestStore starts a disposable postgres container and applies the
// schema, the same approach as the teacher's setupTestDB in
// postgres_test.go.
func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("dnscore_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("5432").WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := Open(connStr)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))

	return store, func() {
		store.Close()
		_ = container.Terminate(ctx)
	}
}

func TestStore_Integration_ZoneAndRecordLifecycle(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))

	now := time.Now()
	zone := &ZoneMeta{ID: "z1", TenantID: "t1", Name: "example.com.", ZoneType: authority.Primary, AxfrPolicy: authority.AllowAll, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.CreateZone(ctx, zone))

	got, err := store.GetZoneByName(ctx, "EXAMPLE.COM.")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, authority.AllowAll, got.AxfrPolicy)

	rec := wire.Record{Name: wire.NewName("www.example.com"), Type: wire.TypeA, TTL: 300, IP: net.ParseIP("198.51.100.10")}
	require.NoError(t, store.CreateRecord(ctx, "r1", zone.ID, rec))

	soa := wire.Record{
		Name: wire.NewName("example.com"), Type: wire.TypeSOA, TTL: 3600,
		MName: wire.NewName("ns1.example.com."), RName: wire.NewName("admin.example.com."),
		Serial: 1, Refresh: 3600, Retry: 600, Expire: 86400, Minimum: 300,
	}
	require.NoError(t, store.CreateRecord(ctx, "r2", zone.ID, soa))

	records, err := store.ListRecordsForZone(ctx, zone.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.NoError(t, store.UpdateZoneSerial(ctx, zone.ID, 2, time.Now()))
	got, err = store.GetZoneByName(ctx, "example.com.")
	require.NoError(t, err)
	require.Equal(t, uint32(2), got.Serial)

	require.NoError(t, store.DeleteRecordsByNameAndType(ctx, zone.ID, "www.example.com.", wire.TypeA))
	records, err = store.ListRecordsForZone(ctx, zone.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)

	require.NoError(t, store.DeleteZone(ctx, zone.ID))
}
