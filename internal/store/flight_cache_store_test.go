package store

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"flight-radar/internal/database"
	"flight-radar/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FlightCacheStore {
	t.Helper()
	dbm, err := database.Open(database.Options{
		Driver:   "sqlite",
		WriteDSN: filepath.Join(t.TempDir(), "flights.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbm.Close() })
	return NewFlightCacheStore(dbm.WriteDB, dbm.GetReadDB)
}

func f64(v float64) *float64 { return &v }

func TestUpsertObservation_PreservesFirstSeen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		obs := models.Observation{Callsign: "DLH45X", ICAO24: "3c6444", Altitude: f64(float64(1000 * i))}
		require.NoError(t, s.UpsertObservation(ctx, obs, t0.Add(time.Duration(i)*time.Minute)))
	}

	rec, err := s.GetRecord(ctx, "DLH45X")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, t0.Unix(), rec.FirstSeenEpoch)
	assert.Equal(t, t0.Add(4*time.Minute).Unix(), rec.LastSeenEpoch)
	require.NotNil(t, rec.Altitude)
	assert.Equal(t, 4000.0, *rec.Altitude)
}

func TestUpsertObservation_NormalizesKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.UpsertObservation(ctx, models.Observation{Callsign: "dlh45x ", ICAO24: "3c6444"}, now))
	require.NoError(t, s.UpsertObservation(ctx, models.Observation{Callsign: "DLH45X", ICAO24: "ffffff"}, now))

	var count int64
	require.NoError(t, s.db.Model(&models.FlightCache{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	rec, err := s.GetRecord(ctx, " Dlh45x")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "DLH45X", rec.Callsign)
	assert.Equal(t, "3c6444", rec.ICAO24, "icao24 is written on insert only")
}

func TestUpsertObservation_ConcurrentSingleRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.UpsertObservation(ctx, models.Observation{Callsign: "EWG7AB", ICAO24: "abc123"}, now))
		}()
	}
	wg.Wait()

	var count int64
	require.NoError(t, s.db.Model(&models.FlightCache{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEmptyKeyRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.UpsertObservation(ctx, models.Observation{Callsign: "   "}, time.Now()), ErrInvalidKey)
	_, err := s.GetRecord(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestGetRecord_Missing(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.GetRecord(context.Background(), "NOPE1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestApplyFieldUpdates_SparseMerge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.UpsertObservation(ctx, models.Observation{Callsign: "BAW12", ICAO24: "400abc"}, now))

	require.NoError(t, s.ApplyFieldUpdates(ctx, "BAW12", models.RecordPatch{
		OperatorICAO: "BAW",
		OperatorName: "British Airways",
	}, 0))
	// Empty strings must not clobber what is stored.
	checked := now.Unix()
	retry := now.Add(time.Hour).Unix()
	require.NoError(t, s.ApplyFieldUpdates(ctx, "BAW12", models.RecordPatch{
		DepartureICAO:       "EGLL",
		CheckedAtEpoch:      &checked,
		NotRetryBeforeEpoch: &retry,
	}, 1))

	rec, err := s.GetRecord(ctx, "BAW12")
	require.NoError(t, err)
	assert.Equal(t, "BAW", models.Deref(rec.OperatorICAO))
	assert.Equal(t, "British Airways", models.Deref(rec.OperatorName))
	assert.Equal(t, "EGLL", models.Deref(rec.DepartureICAO))
	assert.Nil(t, rec.ArrivalICAO)
	assert.Equal(t, 1, rec.LookupAttempts)
	require.NotNil(t, rec.NotRetryBeforeEpoch)
	assert.Equal(t, retry, *rec.NotRetryBeforeEpoch)

	require.NoError(t, s.ApplyFieldUpdates(ctx, "BAW12", models.RecordPatch{
		ArrivalICAO:         "EDDL",
		ClearNotRetryBefore: true,
	}, 1))
	rec, err = s.GetRecord(ctx, "BAW12")
	require.NoError(t, err)
	assert.Nil(t, rec.NotRetryBeforeEpoch)
	assert.Equal(t, 2, rec.LookupAttempts)
	assert.True(t, rec.HasRoute())
}

func TestApplyFieldUpdates_NoopOnEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertObservation(ctx, models.Observation{Callsign: "KLM1"}, time.Now()))

	require.NoError(t, s.ApplyFieldUpdates(ctx, "KLM1", models.RecordPatch{OperatorName: "  "}, 0))
	rec, err := s.GetRecord(ctx, "KLM1")
	require.NoError(t, err)
	assert.Nil(t, rec.OperatorName)
	assert.Equal(t, 0, rec.LookupAttempts)
}

func TestSetImage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertObservation(ctx, models.Observation{Callsign: "RYR1"}, time.Now()))

	require.NoError(t, s.SetImage(ctx, "ryr1", "/static/aircraft/plane.svg", models.ImageGeneric))
	rec, err := s.GetRecord(ctx, "RYR1")
	require.NoError(t, err)
	assert.Equal(t, "/static/aircraft/plane.svg", models.Deref(rec.AircraftImageURL))
	assert.Equal(t, "GENERIC", models.Deref(rec.AircraftImageKind))
}

func TestTryGrantDailyBudget_ExactlyMaxOfConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	const maxPerDay = 5
	const callers = 20

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.TryGrantDailyBudget(ctx, "2026-05-01", maxPerDay)
			assert.NoError(t, err)
			if ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(maxPerDay), granted.Load())
	counter, err := s.GetDailyBudget(ctx, "2026-05-01")
	require.NoError(t, err)
	require.NotNil(t, counter)
	assert.Equal(t, maxPerDay, counter.Granted)
}

func TestTryGrantDailyBudget_PerDayAndZeroCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.TryGrantDailyBudget(ctx, "2026-05-01", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.TryGrantDailyBudget(ctx, "2026-05-01", 1)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.TryGrantDailyBudget(ctx, "2026-05-01", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.TryGrantDailyBudget(ctx, "2026-05-02", 1)
	require.NoError(t, err)
	assert.True(t, ok, "a new day starts a new counter")

	counter, err := s.GetDailyBudget(ctx, "2026-05-03")
	require.NoError(t, err)
	assert.Nil(t, counter)
}

func TestArrivalCandidates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	today := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	yesterday := today.Add(-12 * time.Hour)

	for _, cs := range []string{"OLD1", "OLD2", "DONE1", "TIRED1"} {
		require.NoError(t, s.UpsertObservation(ctx, models.Observation{Callsign: cs}, yesterday))
	}
	require.NoError(t, s.UpsertObservation(ctx, models.Observation{Callsign: "NEW1"}, today.Add(time.Hour)))
	require.NoError(t, s.ResolveArrival(ctx, "DONE1", "EDDF"))
	for i := 0; i < 3; i++ {
		require.NoError(t, s.IncrementArrivalRetry(ctx, "TIRED1"))
	}
	require.NoError(t, s.IncrementArrivalRetry(ctx, "OLD2"))

	got, err := s.FindArrivalCandidates(ctx, today.Unix(), 3, 100)
	require.NoError(t, err)
	var keys []string
	for _, rec := range got {
		keys = append(keys, rec.Callsign)
	}
	assert.ElementsMatch(t, []string{"OLD1", "OLD2"}, keys)

	limited, err := s.FindArrivalCandidates(ctx, today.Unix(), 3, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	rec, err := s.GetRecord(ctx, "OLD2")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.ArrivalRetryCount)
}
