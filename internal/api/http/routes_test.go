package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/cache"
	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/registry"
	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/store"
	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/telemetry"
)

func newTestApp(t *testing.T) (*fiber.App, *registry.Registry, *store.MemoryStore, telemetry.Location) {
	t.Helper()

	app := fiber.New()
	reg := registry.New(nil)
	loc, err := reg.Add(telemetry.Location{Name: "Lisbon", Lat: 38.72, Lon: -9.14, Active: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	memStore := store.NewMemoryStore(store.DefaultRetention())
	svc := telemetry.NewService(reg, memStore, nil, cache.New(cache.NewMemoryBackend()), telemetry.ServiceConfig{})
	RegisterRoutes(app, svc, reg)
	return app, reg, memStore, loc
}

// TestForecastDaysValidation verifies that the forecast endpoint enforces the
// expected 1-5 range for the `days` query parameter.
func TestForecastDaysValidation(t *testing.T) {
	app, _, _, loc := newTestApp(t)

	// Missing days parameter should return 400.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/telemetry/forecast/"+loc.ID, nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}

	// Out-of-range days value should also return 400.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/telemetry/forecast/"+loc.ID+"?days=6", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestRealtimeUnknownLocation(t *testing.T) {
	app, _, _, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/telemetry/realtime/nope", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestRealtimeServesLatestReading(t *testing.T) {
	app, _, memStore, loc := newTestApp(t)

	now := time.Now().UTC()
	err := memStore.AppendRaw(context.Background(), telemetry.Reading{
		LocationID: loc.ID,
		Timestamp:  now,
		Metrics:    map[string]float64{"temperature_c": 19.5},
		Source:     "openmeteo",
		ReceivedAt: now,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/telemetry/realtime/"+loc.ID, nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var view telemetry.RealtimeView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Metrics["temperature_c"] != 19.5 {
		t.Fatalf("expected temperature 19.5, got %v", view.Metrics["temperature_c"])
	}
	if !view.IsFresh {
		t.Fatal("expected a just-written reading to be fresh")
	}
}

func TestSummaryEndpoint(t *testing.T) {
	app, _, _, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/telemetry/summary", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var summary telemetry.Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if summary.TotalLocations != 1 {
		t.Fatalf("expected 1 location, got %d", summary.TotalLocations)
	}
}

func TestLocationActiveToggle(t *testing.T) {
	app, reg, _, loc := newTestApp(t)

	body, _ := json.Marshal(map[string]bool{"active": false})
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/locations/"+loc.ID+"/active", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	got, err := reg.Get(loc.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Active {
		t.Fatal("expected location to be deactivated")
	}

	// Missing body should return 400.
	req = httptest.NewRequest(http.MethodPatch, "/api/v1/locations/"+loc.ID+"/active", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}
