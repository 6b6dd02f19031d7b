package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/api/tickets", "GET", 200, 10*time.Millisecond)
	m.RecordRequest("/api/tickets", "GET", 200, 30*time.Millisecond)
	m.RecordRequest("/api/tickets/:id", "GET", 404, 0)
	m.RecordError("/api/tickets/:id", "GET", "NOT_FOUND")

	snap := m.Snapshot()
	if snap.TotalRequests != 3 {
		t.Fatalf("total = %d", snap.TotalRequests)
	}
	if len(snap.Requests) != 2 || snap.Requests[0].Key != "GET /api/tickets 200" || snap.Requests[0].Count != 2 {
		t.Fatalf("requests %+v", snap.Requests)
	}
	if len(snap.Errors) != 1 || snap.Errors[0].Count != 1 {
		t.Fatalf("errors %+v", snap.Errors)
	}
	if snap.AverageDurationMS < 13 || snap.AverageDurationMS > 14 {
		t.Fatalf("average = %v", snap.AverageDurationMS)
	}

	var nilMetrics *Metrics
	nilMetrics.RecordRequest("/", "GET", 200, 0)
	if got := nilMetrics.Snapshot(); got.TotalRequests != 0 {
		t.Fatal("nil metrics should be inert")
	}
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	metrics := NewMetrics()
	app := fiber.New()
	app.Use(RequestLogger(zap.New(core), metrics))
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })
	app.Get("/missing", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNotFound) })

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Header.Get(RequestIDHeader) != "req-1" {
		t.Fatalf("request id not echoed: %q", resp.Header.Get(RequestIDHeader))
	}
	if _, err := app.Test(httptest.NewRequest("GET", "/missing", nil)); err != nil {
		t.Fatal(err)
	}

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("logged %d entries", len(entries))
	}
	if entries[0].ContextMap()["request_id"] != "req-1" || entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if snap := metrics.Snapshot(); snap.TotalRequests != 2 {
		t.Fatalf("metrics total = %d", snap.TotalRequests)
	}
}
