package postgres

import (
	"context"
	"time"
)

// AuditLog is one recorded management-API action, grounded on the
// teacher's domain.AuditLog / SaveAuditLog / GetAuditLogs trio.
type AuditLog struct {
	ID           string
	TenantID     string
	Action       string
	ResourceType string
	ResourceID   string
	Details      string
	CreatedAt    time.Time
}

func (s *Store) SaveAuditLog(ctx context.Context, log *AuditLog) error {
	query := `INSERT INTO audit_logs (id, tenant_id, action, resource_type, resource_id, details, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.db.ExecContext(ctx, query, log.ID, log.TenantID, log.Action, log.ResourceType, log.ResourceID, log.Details, log.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, tenantID string) ([]AuditLog, error) {
	query := `SELECT id, tenant_id, action, resource_type, resource_id, details, created_at
	          FROM audit_logs WHERE tenant_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		var l AuditLog
		if err := rows.Scan(&l.ID, &l.TenantID, &l.Action, &l.ResourceType, &l.ResourceID, &l.Details, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
