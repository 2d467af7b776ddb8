package shared

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidatorRejectSortsIssues(t *testing.T) {
	v := NewValidator()
	v.Required("name", " ", "is required")
	v.Enum("status", "archived", []string{"draft", "active"}, "is not supported")
	start, _ := v.Date("effectiveFrom", "2024-03-01")
	end, _ := v.Date("effectiveUntil", "2024-02-01")
	v.DateOrder("effectiveFrom", start, "effectiveUntil", end)

	rec := httptest.NewRecorder()
	if !v.Reject(rec, "req-1") {
		t.Fatal("expected validation to reject")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Details struct {
				Fields []ValidationIssue `json:"fields"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	fields := body.Error.Details.Fields
	if body.Error.Code != "validation_error" || len(fields) != 4 || fields[0].Field != "effectiveFrom" || fields[3].Field != "status" {
		t.Fatalf("unexpected body %+v", body)
	}
}
