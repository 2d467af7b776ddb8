package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"hrpay/internal/domain/auth"
)

func TestRequirePermission(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	guarded := RequirePermission(auth.PermPayrollApprove, auth.StaticPermissions{})(ok)

	cases := []struct {
		name   string
		user   *auth.UserContext
		status int
	}{
		{name: "anonymous", status: http.StatusUnauthorized},
		{name: "employee", user: &auth.UserContext{UserID: "u1", TenantID: "t1", RoleName: auth.RoleEmployee}, status: http.StatusForbidden},
		{name: "manager", user: &auth.UserContext{UserID: "u2", TenantID: "t1", RoleName: auth.RoleManager}, status: http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if tc.user != nil {
			req = req.WithContext(WithUser(req.Context(), *tc.user))
		}
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, rec.Code)
		}
	}
}
