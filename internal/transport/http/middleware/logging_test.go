package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type statusCounter struct {
	statuses []int
}

func (c *statusCounter) Record(status int, _ time.Duration) {
	c.statuses = append(c.statuses, status)
}

func TestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	counter := &statusCounter{}

	handler := RequestID(Logger(logger, counter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if len(counter.statuses) != 1 || counter.statuses[0] != http.StatusTeapot {
		t.Fatalf("unexpected statuses %v", counter.statuses)
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if entry["path"] != "/healthz" || entry["requestId"] != "req-1" || entry["status"] != float64(http.StatusTeapot) {
		t.Fatalf("unexpected log entry %v", entry)
	}
}
