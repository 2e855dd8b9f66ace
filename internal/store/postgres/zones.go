package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lattice-dns/dnscore/internal/authority"
)

// ZoneMeta is the persisted record of a zone's identity and catalog
// placement, independent of the RRs it holds. Grounded on the teacher's
// domain.Zone, trimmed to the fields this module's catalog needs
// (TenantID/VPCID/Description drive the teacher's split-horizon/tenant
// story, which this module's catalog does not implement — see DESIGN.md).
type ZoneMeta struct {
	ID         string
	TenantID   string
	Name       string
	ZoneType   authority.ZoneType
	AxfrPolicy authority.AxfrPolicy
	Serial     uint32
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func zoneTypeToColumn(t authority.ZoneType) string {
	switch t {
	case authority.Secondary:
		return "secondary"
	case authority.External:
		return "external"
	case authority.Hint:
		return "hint"
	default:
		return "primary"
	}
}

func zoneTypeFromColumn(s string) authority.ZoneType {
	switch s {
	case "secondary":
		return authority.Secondary
	case "external":
		return authority.External
	case "hint":
		return authority.Hint
	default:
		return authority.Primary
	}
}

func axfrPolicyToColumn(p authority.AxfrPolicy) string {
	switch p {
	case authority.AllowAll:
		return "allow_all"
	case authority.AllowSigned:
		return "allow_signed"
	default:
		return "deny"
	}
}

func axfrPolicyFromColumn(s string) authority.AxfrPolicy {
	switch s {
	case "allow_all":
		return authority.AllowAll
	case "allow_signed":
		return authority.AllowSigned
	default:
		return authority.Deny
	}
}

// CreateZone inserts zone's metadata row.
func (s *Store) CreateZone(ctx context.Context, zone *ZoneMeta) error {
	query := `INSERT INTO dns_zones (id, tenant_id, name, zone_type, axfr_policy, serial, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.ExecContext(ctx, query, zone.ID, zone.TenantID, zone.Name,
		zoneTypeToColumn(zone.ZoneType), axfrPolicyToColumn(zone.AxfrPolicy), zone.Serial, zone.CreatedAt, zone.UpdatedAt)
	return err
}

// GetZoneByName looks up a zone by its fully-qualified name, case-insensitively.
// Returns nil, nil if no such zone is persisted.
func (s *Store) GetZoneByName(ctx context.Context, name string) (*ZoneMeta, error) {
	query := `SELECT id, tenant_id, name, zone_type, axfr_policy, serial, created_at, updated_at
	          FROM dns_zones WHERE LOWER(name) = LOWER($1)`
	var z ZoneMeta
	var zt, policy string
	err := s.db.QueryRowContext(ctx, query, name).Scan(&z.ID, &z.TenantID, &z.Name, &zt, &policy, &z.Serial, &z.CreatedAt, &z.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	z.ZoneType = zoneTypeFromColumn(zt)
	z.AxfrPolicy = axfrPolicyFromColumn(policy)
	return &z, nil
}

// ListZones returns every zone, optionally narrowed to tenantID.
func (s *Store) ListZones(ctx context.Context, tenantID string) ([]ZoneMeta, error) {
	query := `SELECT id, tenant_id, name, zone_type, axfr_policy, serial, created_at, updated_at FROM dns_zones`
	var rows *sql.Rows
	var err error
	if tenantID != "" {
		query += " WHERE tenant_id = $1"
		rows, err = s.db.QueryContext(ctx, query, tenantID)
	} else {
		rows, err = s.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var zones []ZoneMeta
	for rows.Next() {
		var z ZoneMeta
		var zt, policy string
		if err := rows.Scan(&z.ID, &z.TenantID, &z.Name, &zt, &policy, &z.Serial, &z.CreatedAt, &z.UpdatedAt); err != nil {
			return nil, err
		}
		z.ZoneType = zoneTypeFromColumn(zt)
		z.AxfrPolicy = axfrPolicyFromColumn(policy)
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

// UpdateZoneSerial persists the zone's current SOA serial, called after a
// successful dynamic update or inbound zone transfer so a restart resumes
// from the right serial instead of re-announcing stale data via NOTIFY.
func (s *Store) UpdateZoneSerial(ctx context.Context, zoneID string, serial uint32, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE dns_zones SET serial = $1, updated_at = $2 WHERE id = $3`, serial, updatedAt, zoneID)
	return err
}

func (s *Store) DeleteZone(ctx context.Context, zoneID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dns_zones WHERE id = $1`, zoneID)
	return err
}
