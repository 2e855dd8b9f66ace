package postgres

import (
	"context"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/lattice-dns/dnscore/internal/dnssign"
)

// KeyStore persists dnssign.Key material, implementing dnssign.KeyStore so
// internal/dnssign.Manager can be built with durable storage in place of
// dnssign.MemStore. Grounded on the teacher's PostgresRepository
// CreateKey/ListKeysForZone/UpdateKey trio, targeting dnssign.Key instead
// of the teacher's domain.DNSSECKey.
type KeyStore struct {
	store *Store
}

// NewKeyStore adapts store to dnssign.KeyStore.
func NewKeyStore(store *Store) *KeyStore {
	return &KeyStore{store: store}
}

var _ dnssign.KeyStore = (*KeyStore)(nil)

func (k *KeyStore) CreateKey(ctx context.Context, key *dnssign.Key) error {
	der, err := x509.MarshalECPrivateKey(key.Private)
	if err != nil {
		return fmt.Errorf("postgres: marshal private key: %w", err)
	}
	query := `INSERT INTO dnssec_keys (id, zone_id, key_type, algorithm, private_key, active, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = k.store.db.ExecContext(ctx, query, key.ID, key.ZoneID, string(key.Type), key.Algorithm, der, key.Active, key.CreatedAt, key.UpdatedAt)
	return err
}

func (k *KeyStore) ListKeysForZone(ctx context.Context, zoneID string) ([]*dnssign.Key, error) {
	query := `SELECT id, zone_id, key_type, algorithm, private_key, active, created_at, updated_at
	          FROM dnssec_keys WHERE zone_id = $1`
	rows, err := k.store.db.QueryContext(ctx, query, zoneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*dnssign.Key
	for rows.Next() {
		var id, zid, ktype string
		var algorithm uint8
		var der []byte
		var active bool
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&id, &zid, &ktype, &algorithm, &der, &active, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		parsed, err := dnssign.ParsePrivateKey(der)
		if err != nil {
			return nil, fmt.Errorf("postgres: decode key %s: %w", id, err)
		}
		parsed.ID = id
		parsed.ZoneID = zid
		parsed.Type = dnssign.KeyType(ktype)
		parsed.Active = active
		parsed.CreatedAt = createdAt
		parsed.UpdatedAt = updatedAt
		keys = append(keys, parsed)
	}
	return keys, rows.Err()
}

func (k *KeyStore) UpdateKey(ctx context.Context, key *dnssign.Key) error {
	query := `UPDATE dnssec_keys SET active = $1, updated_at = $2 WHERE id = $3`
	res, err := k.store.db.ExecContext(ctx, query, key.Active, key.UpdatedAt, key.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("postgres: key %s not found for zone %s", key.ID, key.ZoneID)
	}
	return nil
}
