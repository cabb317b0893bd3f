package hipaa

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/medrec/medrec/internal/platform/middleware"
)

type fakeExecer struct {
	sql  string
	args []interface{}
	err  error
	ctx  context.Context
}

func (f *fakeExecer) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.ctx, f.sql, f.args = ctx, sql, args
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func TestAccessLog_RecordAccess(t *testing.T) {
	fx := &fakeExecer{}
	l := &AccessLog{db: fx}

	err := l.RecordAccess(middleware.AuditEntry{
		UserID:     "dr-1",
		Resource:   "documents",
		DocumentID: "6f1c2b7e-3d4a-4b5c-9e8f-0a1b2c3d4e5f",
		Action:     "read",
		IPAddress:  "10.0.0.7",
		Method:     "GET",
		Path:       "/api/v1/documents/6f1c2b7e-3d4a-4b5c-9e8f-0a1b2c3d4e5f",
		StatusCode: 200,
	})
	if err != nil {
		t.Fatalf("RecordAccess: %v", err)
	}
	if len(fx.args) != 12 {
		t.Fatalf("expected 12 args, got %d", len(fx.args))
	}
	if roles, ok := fx.args[1].([]string); !ok || roles == nil {
		t.Errorf("nil roles should be sent as an empty array, got %#v", fx.args[1])
	}
	if ts, ok := fx.args[11].(time.Time); !ok || ts.IsZero() {
		t.Errorf("expected a timestamp to be filled in, got %#v", fx.args[11])
	}
	if _, ok := fx.ctx.Deadline(); !ok {
		t.Error("expected the insert to carry a deadline")
	}
}

func TestAccessLog_NullableColumns(t *testing.T) {
	fx := &fakeExecer{}
	l := &AccessLog{db: fx}
	if err := l.RecordAccess(middleware.AuditEntry{Resource: "documents", Action: "search", IPAddress: "not-an-ip"}); err != nil {
		t.Fatalf("RecordAccess: %v", err)
	}
	if fx.args[3] != nil {
		t.Errorf("expected NULL document id, got %#v", fx.args[3])
	}
	if fx.args[5] != nil {
		t.Errorf("expected NULL ip for unparsable address, got %#v", fx.args[5])
	}
}

func TestAccessLog_WrapsError(t *testing.T) {
	boom := errors.New("relation does not exist")
	l := &AccessLog{db: &fakeExecer{err: boom}}
	if err := l.RecordAccess(middleware.AuditEntry{}); !errors.Is(err, boom) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}
