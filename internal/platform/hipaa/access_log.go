// Package hipaa persists the document access trail required for PHI.
package hipaa

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medrec/medrec/internal/platform/middleware"
)

const writeTimeout = 2 * time.Second

type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// AccessLog writes audit entries to the document_access_log table. It
// implements middleware.AuditRecorder.
type AccessLog struct {
	db execer
}

func NewAccessLog(pool *pgxpool.Pool) *AccessLog {
	return &AccessLog{db: pool}
}

const insertAccess = `
	INSERT INTO document_access_log (
		user_id, user_roles, resource, document_id, action,
		ip_address, user_agent, method, path, status_code, request_id, accessed_at
	) VALUES ($1,$2,$3,$4,$5,$6::inet,$7,$8,$9,$10,$11,$12)`

// RecordAccess runs on the request path, so the insert is bounded by a
// short timeout of its own.
func (l *AccessLog) RecordAccess(e middleware.AuditEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	roles := e.UserRoles
	if roles == nil {
		roles = []string{}
	}
	_, err := l.db.Exec(ctx, insertAccess,
		e.UserID, roles, e.Resource, nullIfEmpty(e.DocumentID), e.Action,
		ipOrNil(e.IPAddress), e.UserAgent, e.Method, e.Path, e.StatusCode, e.RequestID, e.Timestamp)
	if err != nil {
		return fmt.Errorf("hipaa access log: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// ipOrNil keeps unparsable addresses out of the inet column.
func ipOrNil(s string) interface{} {
	if net.ParseIP(s) == nil {
		return nil
	}
	return s
}
