package shared

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:41234"
	if got := ClientIP(req); got != "10.0.0.5" {
		t.Fatalf("expected socket address, got %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected forwarded address, got %q", got)
	}
}

func TestDecodeJSON(t *testing.T) {
	var payload struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"pension"}`))
	if err := DecodeJSON(req, &payload); err != nil || payload.Name != "pension" {
		t.Fatalf("unexpected decode result %q %v", payload.Name, err)
	}

	for _, body := range []string{`{"nope":1}`, `{"name":"a"}{"name":"b"}`, `[`} {
		req := httptest.NewRequest("POST", "/", strings.NewReader(body))
		if err := DecodeJSON(req, &payload); err == nil {
			t.Fatalf("expected %s to be rejected", body)
		}
	}
}
