package postgres

import (
	"context"
	"crypto/x509"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-dns/dnscore/internal/dnssign"
)

func TestKeyStore_CreateAndListKeys(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db)
	ks := NewKeyStore(store)
	ctx := context.Background()

	key, err := dnssign.GenerateKey("z1", dnssign.ZSK)
	require.NoError(t, err)
	now := time.Now()
	key.CreatedAt, key.UpdatedAt = now, now
	der, err := x509.MarshalECPrivateKey(key.Private)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO dnssec_keys`).
		WithArgs(key.ID, key.ZoneID, string(key.Type), key.Algorithm, der, key.Active, now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, ks.CreateKey(ctx, key))

	rows := sqlmock.NewRows([]string{"id", "zone_id", "key_type", "algorithm", "private_key", "active", "created_at", "updated_at"}).
		AddRow(key.ID, key.ZoneID, string(key.Type), key.Algorithm, der, true, now, now)
	mock.ExpectQuery(`SELECT id, zone_id, key_type, algorithm, private_key, active, created_at, updated_at\s+FROM dnssec_keys WHERE zone_id = \$1`).
		WithArgs("z1").
		WillReturnRows(rows)

	keys, err := ks.ListKeysForZone(ctx, "z1")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)
	assert.True(t, keys[0].Private.Equal(key.Private))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestKeyStore_UpdateKey_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ks := NewKeyStore(New(db))
	mock.ExpectExec(`UPDATE dnssec_keys SET active = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs(false, sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ks.UpdateKey(context.Background(), &dnssign.Key{ID: "missing", ZoneID: "z1", Active: false, UpdatedAt: time.Now()})
	assert.Error(t, err)
}
