package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"unicode/utf8"

	"github.com/starrysand/api/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "abc123"})
	rec := httptest.NewRecorder()

	WriteError(ctx, rec, NewError("rush_unavailable", "工坊爆肝中\n暂停加急", http.StatusConflict).
		WithDetails(map[string]any{"rush_id": "rush-speed", "status": 999}))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "rush_unavailable" {
		t.Fatalf("unexpected code %v", body["error"])
	}
	if body["message"] != "工坊爆肝中 暂停加急" {
		t.Fatalf("expected flattened message, got %v", body["message"])
	}
	if body["trace_id"] != "abc123" {
		t.Fatalf("expected trace id, got %v", body["trace_id"])
	}
	if body["rush_id"] != "rush-speed" {
		t.Fatalf("expected details merged, got %v", body)
	}
	if body["status"] != float64(http.StatusConflict) {
		t.Fatalf("details must not override status, got %v", body["status"])
	}
}

func TestSanitizeTruncatesOnRuneBoundary(t *testing.T) {
	got := sanitize("满200减50", 5)
	if !utf8.ValidString(got) {
		t.Fatalf("expected valid utf8, got %q", got)
	}
	if got != "满20" {
		t.Fatalf("unexpected truncation %q", got)
	}
}
