package services

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"flight-radar/internal/database"
	"flight-radar/internal/models"
	"flight-radar/internal/store"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.FlightCacheStore {
	t.Helper()
	dbm, err := database.Open(database.Options{
		Driver:   "sqlite",
		WriteDSN: filepath.Join(t.TempDir(), "flights.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbm.Close() })
	return store.NewFlightCacheStore(dbm.WriteDB, dbm.GetReadDB)
}

func f64(v float64) *float64 { return &v }

type fakeRoutes struct {
	mu      sync.Mutex
	calls   map[string]int
	answers map[string]models.RouteInfo
	delay   time.Duration
}

func newFakeRoutes() *fakeRoutes {
	return &fakeRoutes{calls: map[string]int{}, answers: map[string]models.RouteInfo{}}
}

func (f *fakeRoutes) Lookup(ctx context.Context, callsign string) (models.RouteInfo, bool) {
	f.mu.Lock()
	f.calls[callsign]++
	info, ok := f.answers[callsign]
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return models.RouteInfo{}, false
		}
	}
	return info, ok
}

func (f *fakeRoutes) count(callsign string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[callsign]
}

func (f *fakeRoutes) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type fakeLabels struct {
	calls atomic.Int32
	names map[string]models.Label
}

func (f *fakeLabels) LookupName(ctx context.Context, code string, kind models.LabelKind) (models.Label, bool) {
	f.calls.Add(1)
	l, ok := f.names[string(kind)+":"+code]
	return l, ok
}

type fakeImages struct {
	calls atomic.Int32
	urls  map[string]string
}

func (f *fakeImages) LookupImage(ctx context.Context, icao24 string) (string, bool) {
	f.calls.Add(1)
	u, ok := f.urls[icao24]
	return u, ok
}

type fixture struct {
	store  *store.FlightCacheStore
	routes *fakeRoutes
	labels *fakeLabels
	images *fakeImages
	svc    *EnrichmentService
}

func testEnrichmentConfig() EnrichmentConfig {
	return EnrichmentConfig{
		MaxAttemptsPerCallsign: 2,
		NegativeCacheTTL:       6 * time.Hour,
		LabelTimeout:           250 * time.Millisecond,
		PaidTimeout:            900 * time.Millisecond,
		ImageTimeout:           300 * time.Millisecond,
		PlaceholderImageURL:    "/static/aircraft/plane.svg",
	}
}

func newFixture(t *testing.T, maxPerDay int) *fixture {
	t.Helper()
	st := newTestStore(t)
	f := &fixture{
		store:  st,
		routes: newFakeRoutes(),
		labels: &fakeLabels{names: map[string]models.Label{
			"airline:DLH":   {Full: "Lufthansa"},
			"aircraft:A320": {Short: "A320", Full: "Airbus A320"},
		}},
		images: &fakeImages{urls: map[string]string{"3c6444": "https://img.example/3c6444.jpg"}},
	}
	f.svc = NewEnrichmentService(st, NewBudgetGate(st, maxPerDay), f.labels, f.routes, f.images, testEnrichmentConfig())
	return f
}
