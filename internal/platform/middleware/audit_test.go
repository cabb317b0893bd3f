package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medrec/medrec/internal/platform/auth"
)

type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (m *mockRecorder) RecordAccess(entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func runAudit(t *testing.T, logger zerolog.Logger, rec AuditRecorder, method, path string, status int) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "clinician-7", []string{"clinician"}, nil))
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set("request_id", "req-123")

	Audit(logger, rec)(func(c echo.Context) error {
		return c.NoContent(status)
	})(c)
}

func TestAudit_RecordsDocumentRead(t *testing.T) {
	rec := &mockRecorder{}
	runAudit(t, zerolog.Nop(), rec, http.MethodGet, "/api/v1/documents/doc-42/source", http.StatusOK)

	if len(rec.entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(rec.entries))
	}
	got := rec.entries[0]
	if got.UserID != "clinician-7" || got.Resource != "documents" || got.DocumentID != "doc-42" {
		t.Errorf("unexpected entry %+v", got)
	}
	if got.Action != "read" || got.RequestID != "req-123" || got.StatusCode != http.StatusOK {
		t.Errorf("unexpected entry %+v", got)
	}
}

func TestAudit_Actions(t *testing.T) {
	tests := []struct {
		method, path, want string
	}{
		{http.MethodGet, "/api/v1/documents", "search"},
		{http.MethodPost, "/api/v1/documents", "create"},
		{http.MethodDelete, "/api/v1/documents/doc-1", "delete"},
		{http.MethodPost, "/api/v1/extract", "extract"},
	}
	for _, tt := range tests {
		rec := &mockRecorder{}
		runAudit(t, zerolog.Nop(), rec, tt.method, tt.path, http.StatusOK)
		if len(rec.entries) != 1 || rec.entries[0].Action != tt.want {
			t.Errorf("%s %s: expected %s, got %+v", tt.method, tt.path, tt.want, rec.entries)
		}
	}
}

func TestAudit_IgnoresNonAPIPaths(t *testing.T) {
	rec := &mockRecorder{}
	runAudit(t, zerolog.Nop(), rec, http.MethodGet, "/health", http.StatusOK)
	if len(rec.entries) != 0 {
		t.Errorf("health checks should not be audited, got %+v", rec.entries)
	}
}

func TestAudit_RecorderFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	rec := &mockRecorder{err: errors.New("disk full")}
	runAudit(t, zerolog.New(&buf), rec, http.MethodGet, "/api/v1/documents/doc-1", http.StatusOK)

	out := buf.String()
	if !strings.Contains(out, "failed to record audit entry") || !strings.Contains(out, "document_access") {
		t.Errorf("expected failure and access lines, got %s", out)
	}
}
