package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/config"
	"github.com/cavelog/cavelog/internal/models"
)

func TestParseLatLng(t *testing.T) {
	valid := map[string]Point{
		"51.5, -0.12":      {Lat: 51.5, Lng: -0.12},
		"-90.0,180":        {Lat: -90, Lng: 180},
		"+12.345, 170.999": {Lat: 12.345, Lng: 170.999},
	}
	for text, want := range valid {
		got, ok := ParseLatLng(text)
		if !ok || got != want {
			t.Fatalf("%q: expected %+v, got %+v %v", text, want, got, ok)
		}
	}
	for _, text := range []string{"91, 0", "0, 181", "Mendip Hills", "51.5 -0.12"} {
		if _, ok := ParseLatLng(text); ok {
			t.Fatalf("expected %q rejected", text)
		}
	}
}

func TestGeocode_LooksUpAndCaches(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Query().Get("key") != "api-key" {
			t.Errorf("expected api key, got %q", r.URL.Query().Get("key"))
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("address") == "Nowhere" {
			_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"OK","results":[{"geometry":{"location":{"lat":51.28,"lng":-2.66}}}]}`))
	}))
	defer server.Close()

	c := NewClient(config.GeocodeConfig{APIKey: "api-key", URL: server.URL}, nil)
	c.client = server.Client()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		p, err := c.Geocode(ctx, "Priddy")
		if err != nil || p.Lat != 51.28 || p.Lng != -2.66 {
			t.Fatalf("expected Priddy coordinates, got %+v %v", p, err)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected one upstream call, got %d", got)
	}
	if _, err := c.Geocode(ctx, "Nowhere"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if p, err := c.Geocode(ctx, "10, 20"); err != nil || p.Lat != 10 {
		t.Fatalf("expected literal coordinates, got %+v %v", p, err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected literal coordinates to skip the lookup, got %d calls", got)
	}
}

func TestGeocode_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()
	c := NewClient(config.GeocodeConfig{APIKey: "k", URL: server.URL}, nil)
	c.client = server.Client()
	if _, err := c.Geocode(context.Background(), "Priddy"); !apperr.Is(err, apperr.KindExternal) {
		t.Fatalf("expected external error, got %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }
	ctx := context.Background()
	c.Set(ctx, "k", Point{Lat: 1}, time.Hour)
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Fatalf("expected cached value")
	}
	now = now.Add(time.Hour)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("expected value expired")
	}

	rc := NewRedisCache(nil, "")
	rc.Set(ctx, "k", Point{Lng: 2}, time.Hour)
	if p, ok := rc.Get(ctx, "k"); !ok || p.Lng != 2 {
		t.Fatalf("expected memory fallback, got %+v %v", p, ok)
	}
}

func TestMarkers(t *testing.T) {
	lat, lng := 51.0, -2.0
	other := 52.0
	day := func(d int) time.Time { return time.Date(2024, 1, d, 10, 0, 0, 0, time.UTC) }
	trips := []models.Trip{
		{UUID: "a", CaveName: "Swildon's Hole", Latitude: &other, Longitude: &lng, Start: day(1)},
		{UUID: "b", CaveName: "GB Cave", CaveEntrance: "GB", Latitude: &lat, Longitude: &lng, Start: day(2)},
		{UUID: "c", CaveName: "GB Cave", Latitude: &lat, Longitude: &lng, Start: day(5)},
		{UUID: "d", CaveName: "No coords", Start: day(3)},
	}
	markers := Markers(trips)
	if len(markers) != 2 {
		t.Fatalf("expected two markers, got %d", len(markers))
	}
	if markers[0].Title != "GB" || markers[0].Visits != 2 || markers[0].LastTripURL != "/trips/c/" {
		t.Fatalf("unexpected marker %+v", markers[0])
	}
	if markers[1].Title != "Swildon's Hole" {
		t.Fatalf("unexpected marker %+v", markers[1])
	}
}
