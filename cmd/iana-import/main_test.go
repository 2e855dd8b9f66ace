package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/lattice-dns/dnscore/internal/store/postgres"
)

func TestRun_BadURL(t *testing.T) {
	err := run(context.Background(), nil, "http://invalid.url.test", 100)
	if err == nil {
		t.Error("expected error for invalid URL")
	}
}

func TestRun_BadStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	err := run(context.Background(), nil, ts.URL, 100)
	if err == nil {
		t.Error("expected error for 404 status")
	}
}

func TestRun_CreatesRootZoneAndImports(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(". 3600 IN A 198.41.0.4\n. 3600 IN A 199.9.14.201\n"))
	}))
	defer ts.Close()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := postgres.New(db)

	mock.ExpectQuery(`SELECT id, tenant_id, name, zone_type, axfr_policy, serial, created_at, updated_at\s+FROM dns_zones WHERE LOWER\(name\) = LOWER\(\$1\)`).
		WithArgs(".").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "name", "zone_type", "axfr_policy", "serial", "created_at", "updated_at"}))

	mock.ExpectExec(`INSERT INTO dns_zones`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectExec(`INSERT INTO dns_records`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO dns_records`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, run(context.Background(), store, ts.URL, 1))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_ReusesExistingRootZone(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(". 3600 IN A 198.41.0.4\n"))
	}))
	defer ts.Close()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := postgres.New(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "tenant_id", "name", "zone_type", "axfr_policy", "serial", "created_at", "updated_at"}).
		AddRow("root-1", "iana", ".", "primary", "allow_all", 1, now, now)
	mock.ExpectQuery(`SELECT id, tenant_id, name, zone_type, axfr_policy, serial, created_at, updated_at\s+FROM dns_zones WHERE LOWER\(name\) = LOWER\(\$1\)`).
		WithArgs(".").
		WillReturnRows(rows)

	mock.ExpectExec(`INSERT INTO dns_records`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, run(context.Background(), store, ts.URL, 10))
	require.NoError(t, mock.ExpectationsWereMet())
}
