package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool used by PGStore.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PGStore stores audit entries in the audit_logs table.
type PGStore struct {
	DB DB
}

// InsertAuditLog implements Store.
func (s PGStore) InsertAuditLog(ctx context.Context, e Entry) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO audit_logs (branch_id, actor_kind, actor_id, action, resource_type, resource_id, request_id, ip, metadata, created_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9, $10)`,
		e.BranchID, string(e.ActorKind), e.ActorID, e.Action, e.ResourceType, e.ResourceID, e.RequestID, e.IP, []byte(e.Metadata), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// ListAuditLogs implements Store, newest first.
func (s PGStore) ListAuditLogs(ctx context.Context, branchID string, limit, offset int) ([]Entry, error) {
	rows, err := s.DB.Query(ctx, `
SELECT id, branch_id, actor_kind, COALESCE(actor_id, ''), action, resource_type, COALESCE(resource_id, ''),
       COALESCE(request_id, ''), COALESCE(ip, ''), metadata, created_at
FROM audit_logs
WHERE branch_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`, branchID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			kind string
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.BranchID, &kind, &e.ActorID, &e.Action, &e.ResourceType, &e.ResourceID, &e.RequestID, &e.IP, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.ActorKind = ActorKind(kind)
		if len(meta) > 0 {
			e.Metadata = meta
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
