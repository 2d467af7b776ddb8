package audithandler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"hrpay/internal/domain/audit"
	"hrpay/internal/domain/auth"
	"hrpay/internal/transport/http/middleware"
)

type stubLister struct {
	filter audit.Filter
	limit  int
}

func (s *stubLister) Count(context.Context, string, audit.Filter) (int, error) {
	return 1, nil
}

func (s *stubLister) List(_ context.Context, _ string, filter audit.Filter, _ bool, limit, _ int) ([]audit.Event, error) {
	s.filter = filter
	s.limit = limit
	return []audit.Event{{
		ID:         "evt-1",
		ActorID:    "mgr-1",
		Action:     "payroll.deduction.approved",
		EntityType: "payroll_deduction",
		EntityID:   "ded-1",
		CreatedAt:  time.Date(2024, 2, 3, 10, 0, 0, 0, time.UTC),
	}}, nil
}

func serve(t *testing.T, lister *stubLister, role, target string) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	NewHandler(lister, auth.StaticPermissions{}).RegisterRoutes(router)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = req.WithContext(middleware.WithUser(req.Context(), auth.UserContext{UserID: "u1", TenantID: "t1", RoleName: role}))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListEventsFiltersByEntity(t *testing.T) {
	lister := &stubLister{}
	rec := serve(t, lister, auth.RoleHR, "/audit/events?entityType=payroll_deduction&entityId=ded-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if lister.filter.EntityID != "ded-1" || lister.filter.EntityType != "payroll_deduction" {
		t.Fatalf("unexpected filter %+v", lister.filter)
	}
	if rec.Header().Get("X-Total-Count") != "1" {
		t.Fatalf("expected total header")
	}
}

func TestExportEventsWritesCSV(t *testing.T) {
	lister := &stubLister{}
	rec := serve(t, lister, auth.RoleHR, "/audit/events/export")
	if rec.Code != http.StatusOK || lister.limit != exportLimit {
		t.Fatalf("unexpected export status %d limit %d", rec.Code, lister.limit)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 || !strings.HasSuffix(lines[1], "2024-02-03T10:00:00Z") {
		t.Fatalf("unexpected csv %q", rec.Body.String())
	}
}

func TestAuditRequiresPermission(t *testing.T) {
	rec := serve(t, &stubLister{}, auth.RoleManager, "/audit/events")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}
