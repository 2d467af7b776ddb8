package auth

import (
	"context"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("secret", Claims{UserID: "u1", TenantID: "t1", RoleName: RoleHR}, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ParseToken("secret", token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "u1" || claims.TenantID != "t1" || claims.RoleName != RoleHR {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, err := ParseToken("other-secret", token); err == nil {
		t.Fatalf("expected signature mismatch to fail")
	}
}

func TestParseTokenRejectsExpiredAndAnonymous(t *testing.T) {
	expired, err := GenerateToken("secret", Claims{UserID: "u1", TenantID: "t1"}, -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ParseToken("secret", expired); err == nil {
		t.Fatalf("expected expired token to fail")
	}
	anonymous, err := GenerateToken("secret", Claims{TenantID: "t1"}, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ParseToken("secret", anonymous); err == nil {
		t.Fatalf("expected token without user to fail")
	}
}

func TestStaticPermissions(t *testing.T) {
	perms := StaticPermissions{}
	cases := []struct {
		role, perm string
		want       bool
	}{
		{RoleManager, PermPayrollApprove, true},
		{RoleManager, PermPayrollWrite, false},
		{RoleEmployee, PermPayrollRun, false},
		{RoleHR, PermAuditRead, true},
		{"Unknown", PermPayrollRead, false},
	}
	for _, tc := range cases {
		got, err := perms.HasPermission(context.Background(), tc.role, tc.perm)
		if err != nil || got != tc.want {
			t.Fatalf("%s/%s: expected %v, got %v (%v)", tc.role, tc.perm, tc.want, got, err)
		}
	}
}
