package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"flight-radar/internal/models"
	"flight-radar/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func TestEnrich_ResolvesEverythingThenServesFromCache(t *testing.T) {
	f := newFixture(t, 100)
	f.routes.answers["DLH45X"] = models.RouteInfo{
		OperatorICAO: "DLH", AircraftTypeICAO: "A320", OriginICAO: "EDDF", DestinationICAO: "EDDL",
	}
	ctx := context.Background()
	obs := models.Observation{Callsign: "DLH45X", ICAO24: "3c6444", Lat: f64(51.3), Lon: f64(7.2), Altitude: f64(3000)}

	out := f.svc.Enrich(ctx, obs, t0)
	assert.Equal(t, "DLH45X", out.Callsign)
	assert.Equal(t, "EDDF", out.Departure)
	assert.Equal(t, "EDDL", out.Arrival)
	assert.Equal(t, "DLH", out.OperatorICAO)
	assert.Equal(t, "Lufthansa", out.OperatorName)
	assert.Equal(t, "A320", out.AircraftTypeICAO)
	assert.Equal(t, "A320", out.AircraftNameShort)
	assert.Equal(t, "Airbus A320", out.AircraftNameFull)
	assert.Equal(t, "https://img.example/3c6444.jpg", out.AircraftImageURL)
	assert.Equal(t, models.ImageExact, out.AircraftImageKind)
	assert.Equal(t, 1, f.routes.count("DLH45X"))

	labelCalls := f.labels.calls.Load()
	second := f.svc.Enrich(ctx, obs, t0.Add(time.Minute))
	assert.Equal(t, 1, f.routes.count("DLH45X"), "no paid call for an already resolved flight")
	assert.Equal(t, labelCalls, f.labels.calls.Load())
	assert.Equal(t, int32(1), f.images.calls.Load())

	assert.Equal(t, out, second)

	rec, err := f.store.GetRecord(ctx, "DLH45X")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.LookupAttempts)
	assert.Nil(t, rec.NotRetryBeforeEpoch)
	require.NotNil(t, rec.LookupCheckedAtEpoch)
	assert.Equal(t, t0.Unix(), *rec.LookupCheckedAtEpoch)
}

func TestEnrich_NegativeCacheAndAttemptCeiling(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	obs := models.Observation{Callsign: "EWG7AB", ICAO24: "abc123"}

	f.svc.Enrich(ctx, obs, t0)
	assert.Equal(t, 1, f.routes.count("EWG7AB"))

	rec, err := f.store.GetRecord(ctx, "EWG7AB")
	require.NoError(t, err)
	require.NotNil(t, rec.NotRetryBeforeEpoch)
	assert.Equal(t, t0.Add(6*time.Hour).Unix(), *rec.NotRetryBeforeEpoch)
	assert.Equal(t, 1, rec.LookupAttempts)

	f.svc.Enrich(ctx, obs, t0.Add(time.Hour))
	f.svc.Enrich(ctx, obs, t0.Add(6*time.Hour-time.Second))
	assert.Equal(t, 1, f.routes.count("EWG7AB"), "cooldown blocks retries")

	f.svc.Enrich(ctx, obs, t0.Add(6*time.Hour))
	assert.Equal(t, 2, f.routes.count("EWG7AB"), "exactly one retry after cooldown")

	for _, later := range []time.Duration{13 * time.Hour, 48 * time.Hour, 30 * 24 * time.Hour} {
		f.svc.Enrich(ctx, obs, t0.Add(later))
	}
	assert.Equal(t, 2, f.routes.count("EWG7AB"), "ceiling reached, no further paid calls")

	rec, err = f.store.GetRecord(ctx, "EWG7AB")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.LookupAttempts)
}

func TestEnrich_ImageDecidedOnce(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	generic := models.Observation{Callsign: "RYR1", ICAO24: "ffffff"}
	out := f.svc.Enrich(ctx, generic, t0)
	assert.Equal(t, "/static/aircraft/plane.svg", out.AircraftImageURL)
	assert.Equal(t, models.ImageGeneric, out.AircraftImageKind)

	exact := models.Observation{Callsign: "DLH1", ICAO24: "3c6444"}
	out = f.svc.Enrich(ctx, exact, t0)
	assert.Equal(t, models.ImageExact, out.AircraftImageKind)
	assert.Equal(t, int32(2), f.images.calls.Load())

	for i := 1; i <= 3; i++ {
		f.svc.Enrich(ctx, generic, t0.Add(time.Duration(i)*24*time.Hour))
		f.svc.Enrich(ctx, exact, t0.Add(time.Duration(i)*24*time.Hour))
	}
	assert.Equal(t, int32(2), f.images.calls.Load(), "image resolution is never repeated")

	rec, err := f.store.GetRecord(ctx, "RYR1")
	require.NoError(t, err)
	assert.Equal(t, "GENERIC", models.Deref(rec.AircraftImageKind))
}

func TestEnrich_NormalizedKeySharesRecord(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	a := f.svc.Enrich(ctx, models.Observation{Callsign: "dlh45x ", ICAO24: "3c6444"}, t0)
	b := f.svc.Enrich(ctx, models.Observation{Callsign: "DLH45X", ICAO24: "3c6444"}, t0.Add(time.Minute))
	assert.Equal(t, "DLH45X", a.Callsign)
	assert.Equal(t, "DLH45X", b.Callsign)
	assert.Equal(t, 1, f.routes.count("DLH45X"), "second observation hits the negative cache of the first")

	rec, err := f.store.GetRecord(ctx, "DLH45X")
	require.NoError(t, err)
	assert.Equal(t, t0.Unix(), rec.FirstSeenEpoch)
	assert.Equal(t, t0.Add(time.Minute).Unix(), rec.LastSeenEpoch)
}

func TestEnrich_DailyCapAcrossConcurrentFlights(t *testing.T) {
	f := newFixture(t, 2)
	callsigns := []string{"AAL100", "BAW200", "CFG300"}
	for _, cs := range callsigns {
		f.routes.answers[cs] = models.RouteInfo{OriginICAO: "EDDF", DestinationICAO: "KJFK"}
	}
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, cs := range callsigns {
		wg.Add(1)
		go func(cs string) {
			defer wg.Done()
			f.svc.Enrich(ctx, models.Observation{Callsign: cs, ICAO24: "000001"}, t0)
		}(cs)
	}
	wg.Wait()

	assert.Equal(t, 2, f.routes.total())

	unresolved := 0
	for _, cs := range callsigns {
		rec, err := f.store.GetRecord(ctx, cs)
		require.NoError(t, err)
		if rec.HasRoute() {
			assert.Nil(t, rec.NotRetryBeforeEpoch)
			continue
		}
		unresolved++
		require.NotNil(t, rec.NotRetryBeforeEpoch, "denied flight backs off")
		assert.Equal(t, t0.Add(6*time.Hour).Unix(), *rec.NotRetryBeforeEpoch)
		assert.Equal(t, 0, rec.LookupAttempts, "a denial does not spend an attempt")
	}
	assert.Equal(t, 1, unresolved)
}

func TestEnrich_SlowPaidProviderIsTimeBoxed(t *testing.T) {
	f := newFixture(t, 100)
	cfg := testEnrichmentConfig()
	cfg.PaidTimeout = 50 * time.Millisecond
	f.svc = NewEnrichmentService(f.store, NewBudgetGate(f.store, 100), f.labels, f.routes, f.images, cfg)
	f.routes.answers["SLOW1"] = models.RouteInfo{OriginICAO: "EDDF", DestinationICAO: "EDDL"}
	f.routes.delay = 5 * time.Second

	start := time.Now()
	out := f.svc.Enrich(context.Background(), models.Observation{Callsign: "SLOW1"}, t0)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, out.HasRoute())

	rec, err := f.store.GetRecord(context.Background(), "SLOW1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.LookupAttempts)
	require.NotNil(t, rec.NotRetryBeforeEpoch)
	require.NotNil(t, rec.LookupCheckedAtEpoch)
	assert.Nil(t, rec.DepartureICAO)
}

func TestEnrich_OperatorCodeFromPrefix(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	out := f.svc.Enrich(ctx, models.Observation{Callsign: "XYZ123"}, t0)
	assert.Equal(t, "XYZ", out.OperatorICAO)
	assert.Empty(t, out.OperatorName)

	rec, err := f.store.GetRecord(ctx, "XYZ123")
	require.NoError(t, err)
	assert.Equal(t, "XYZ", models.Deref(rec.OperatorICAO), "code is kept even without a name")
	assert.Nil(t, rec.OperatorName)

	out = f.svc.Enrich(ctx, models.Observation{Callsign: "N123AB"}, t0)
	assert.Empty(t, out.OperatorICAO)
	assert.Equal(t, 0, f.routes.total(), "zero cap never pays")
}

func TestEnrich_EmptyCallsign(t *testing.T) {
	f := newFixture(t, 100)
	out := f.svc.Enrich(context.Background(), models.Observation{Callsign: "   ", ICAO24: "3c6444"}, t0)
	assert.Empty(t, out.Callsign)
	assert.Equal(t, 0, f.routes.total())
	assert.Equal(t, int32(0), f.images.calls.Load())
}

type failingBudget struct{}

func (failingBudget) TryGrantDailyBudget(ctx context.Context, dateKey string, maxPerDay int) (bool, error) {
	return true, errors.New("db down")
}

type recordingBudget struct{ keys []string }

func (r *recordingBudget) TryGrantDailyBudget(ctx context.Context, dateKey string, maxPerDay int) (bool, error) {
	r.keys = append(r.keys, dateKey)
	return true, nil
}

func TestBudgetGate_FailsClosed(t *testing.T) {
	g := NewBudgetGate(failingBudget{}, 100)
	assert.False(t, g.Allow(context.Background(), t0))
}

func TestBudgetGate_UsesUTCDay(t *testing.T) {
	rb := &recordingBudget{}
	g := NewBudgetGate(rb, 100)
	local := time.Date(2026, 5, 1, 23, 30, 0, 0, time.FixedZone("BRT", -3*3600))

	assert.True(t, g.Allow(context.Background(), local))
	assert.Equal(t, []string{"2026-05-02"}, rb.keys)
	assert.Equal(t, 100, g.MaxPerDay())
}

type failingReads struct {
	*store.FlightCacheStore
	fail atomic.Bool
}

func (s *failingReads) GetRecord(ctx context.Context, key string) (*models.FlightCache, error) {
	if s.fail.Load() {
		return nil, errors.New("read replica gone")
	}
	return s.FlightCacheStore.GetRecord(ctx, key)
}

func TestEnrich_NoPaidLookupWhenRecordUnreadable(t *testing.T) {
	f := newFixture(t, 100)
	reads := &failingReads{FlightCacheStore: f.store}
	svc := NewEnrichmentService(reads, NewBudgetGate(f.store, 100), f.labels, f.routes, f.images, testEnrichmentConfig())
	ctx := context.Background()
	obs := models.Observation{Callsign: "EWG7AB", ICAO24: "abc123"}

	svc.Enrich(ctx, obs, t0)
	svc.Enrich(ctx, obs, t0.Add(7*time.Hour))
	require.Equal(t, 2, f.routes.count("EWG7AB"))

	reads.fail.Store(true)
	svc.Enrich(ctx, obs, t0.Add(14*time.Hour))
	svc.Enrich(ctx, obs, t0.Add(21*time.Hour))
	assert.Equal(t, 2, f.routes.count("EWG7AB"), "ceiling holds when the record cannot be read")

	out := svc.Enrich(ctx, models.Observation{Callsign: "DLH9", ICAO24: "3c6444"}, t0)
	assert.Equal(t, 0, f.routes.count("DLH9"))
	assert.Equal(t, "Lufthansa", out.OperatorName, "free lookups still run")

	reads.fail.Store(false)
	rec, err := f.store.GetRecord(ctx, "EWG7AB")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.LookupAttempts)
}

func TestEnrich_OperatorChangeClearsStaleName(t *testing.T) {
	f := newFixture(t, 100)
	f.routes.answers["DLH45X"] = models.RouteInfo{OperatorICAO: "EWG", OriginICAO: "EDDF", DestinationICAO: "EDDL"}
	ctx := context.Background()
	obs := models.Observation{Callsign: "DLH45X", ICAO24: "3c6444"}

	out := f.svc.Enrich(ctx, obs, t0)
	assert.Equal(t, "EWG", out.OperatorICAO)
	assert.Empty(t, out.OperatorName)

	rec, err := f.store.GetRecord(ctx, "DLH45X")
	require.NoError(t, err)
	assert.Equal(t, "EWG", models.Deref(rec.OperatorICAO))
	assert.Nil(t, rec.OperatorName, "name of the previous operator must not survive")

	again := f.svc.Enrich(ctx, obs, t0.Add(time.Minute))
	assert.Equal(t, "EWG", again.OperatorICAO)
	assert.Empty(t, again.OperatorName)
}
