package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/stemdeck/api/internal/client"
)

type countingSelector struct {
	calls int
}

func (s *countingSelector) Select(context.Context) (*client.Engine, error) {
	s.calls++
	return &client.Engine{Name: "demucs"}, nil
}

func TestHealthCachesSeparationProbe(t *testing.T) {
	selector := &countingSelector{}
	h := NewHealthHandler(nil, selector, "goroutine", false, true)
	app := fiber.New()
	app.Get("/health", h.Health)

	for range 3 {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		var body HealthResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		resp.Body.Close()
		if body.Services.Separation != "demucs" {
			t.Errorf("separation = %q, want demucs", body.Services.Separation)
		}
	}

	if selector.calls != 1 {
		t.Errorf("Select called %d times, want 1", selector.calls)
	}
}

func TestHealthWithoutSeparator(t *testing.T) {
	h := NewHealthHandler(nil, nil, "goroutine", false, false)
	if got := h.separationEngine(context.Background()); got != "none" {
		t.Errorf("separation = %q, want none", got)
	}
}
