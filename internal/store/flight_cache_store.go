package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flight-radar/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInvalidKey = errors.New("store: empty callsign")

// FlightCacheStore persists flight records and the daily paid-call counter.
type FlightCacheStore struct {
	db   *gorm.DB
	read func() *gorm.DB
}

// NewFlightCacheStore uses write for mutations and for lookups that feed a
// later write. read serves the candidate scan and the budget view. A nil read
// falls back to write.
func NewFlightCacheStore(write *gorm.DB, read func() *gorm.DB) *FlightCacheStore {
	if read == nil {
		read = func() *gorm.DB { return write }
	}
	return &FlightCacheStore{db: write, read: read}
}

// GetRecord returns the record for key, or nil if none exists.
func (s *FlightCacheStore) GetRecord(ctx context.Context, key string) (*models.FlightCache, error) {
	key = models.NormalizeCallsign(key)
	if key == "" {
		return nil, ErrInvalidKey
	}

	var rec models.FlightCache
	err := s.db.WithContext(ctx).Where("callsign = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get flight %s: %w", key, err)
	}
	return &rec, nil
}

// UpsertObservation creates the record on first sight and otherwise refreshes
// only the freshness and position columns. First-seen and icao24 are insert-only.
func (s *FlightCacheStore) UpsertObservation(ctx context.Context, obs models.Observation, now time.Time) error {
	key := models.NormalizeCallsign(obs.Callsign)
	if key == "" {
		return ErrInvalidKey
	}

	ts := now.Unix()
	rec := models.FlightCache{
		Callsign:       key,
		ICAO24:         obs.ICAO24,
		Altitude:       obs.Altitude,
		Lat:            obs.Lat,
		Lon:            obs.Lon,
		Velocity:       obs.Velocity,
		FirstSeenEpoch: ts,
		LastSeenEpoch:  ts,
		CachedAtEpoch:  ts,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "callsign"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_seen_epoch", "cached_at_epoch", "altitude", "lat", "lon", "velocity",
		}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("upsert flight %s: %w", key, err)
	}
	return nil
}

// ApplyFieldUpdates merges the non-empty patch fields into the record and adds
// attemptDelta to lookup_attempts. Negative deltas are ignored.
func (s *FlightCacheStore) ApplyFieldUpdates(ctx context.Context, key string, patch models.RecordPatch, attemptDelta int) error {
	key = models.NormalizeCallsign(key)
	if key == "" {
		return ErrInvalidKey
	}

	cols := patch.Columns()
	if attemptDelta > 0 {
		cols["lookup_attempts"] = gorm.Expr("lookup_attempts + ?", attemptDelta)
	}
	if len(cols) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).
		Model(&models.FlightCache{}).
		Where("callsign = ?", key).
		Updates(cols).Error
	if err != nil {
		return fmt.Errorf("patch flight %s: %w", key, err)
	}
	return nil
}

// SetImage records the image decision for key.
func (s *FlightCacheStore) SetImage(ctx context.Context, key, url string, kind models.ImageKind) error {
	key = models.NormalizeCallsign(key)
	if key == "" {
		return ErrInvalidKey
	}

	err := s.db.WithContext(ctx).
		Model(&models.FlightCache{}).
		Where("callsign = ?", key).
		Updates(map[string]interface{}{
			"aircraft_image_url":  url,
			"aircraft_image_kind": string(kind),
		}).Error
	if err != nil {
		return fmt.Errorf("set image %s: %w", key, err)
	}
	return nil
}

// TryGrantDailyBudget takes one unit of the day's paid-call budget. The row is
// seeded idempotently, then incremented with a single conditional UPDATE, so the
// granted count can never pass maxPerDay however many callers race.
func (s *FlightCacheStore) TryGrantDailyBudget(ctx context.Context, dateKey string, maxPerDay int) (bool, error) {
	if maxPerDay <= 0 {
		return false, nil
	}

	db := s.db.WithContext(ctx)
	seed := models.DailyBudgetCounter{DateKey: dateKey}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return false, fmt.Errorf("seed budget %s: %w", dateKey, err)
	}

	res := db.Model(&models.DailyBudgetCounter{}).
		Where("date_key = ? AND granted < ?", dateKey, maxPerDay).
		Updates(map[string]interface{}{
			"granted":    gorm.Expr("granted + ?", 1),
			"updated_at": time.Now().Unix(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("grant budget %s: %w", dateKey, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// GetDailyBudget returns the counter for dateKey, or nil if nothing was granted yet.
func (s *FlightCacheStore) GetDailyBudget(ctx context.Context, dateKey string) (*models.DailyBudgetCounter, error) {
	var counter models.DailyBudgetCounter
	err := s.read().WithContext(ctx).Where("date_key = ?", dateKey).First(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get budget %s: %w", dateKey, err)
	}
	return &counter, nil
}

// FindArrivalCandidates lists records still missing an arrival airport, first
// seen before seenBeforeEpoch and retried fewer than maxRetries times.
func (s *FlightCacheStore) FindArrivalCandidates(ctx context.Context, seenBeforeEpoch int64, maxRetries, limit int) ([]models.FlightCache, error) {
	var out []models.FlightCache
	err := s.read().WithContext(ctx).
		Where("(arrival_icao IS NULL OR arrival_icao = ?)", "").
		Where("arrival_retry_count < ?", maxRetries).
		Where("first_seen_epoch < ?", seenBeforeEpoch).
		Order("first_seen_epoch ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("find arrival candidates: %w", err)
	}
	return out, nil
}

// ResolveArrival stores the arrival airport learned from flight history.
func (s *FlightCacheStore) ResolveArrival(ctx context.Context, key, arrivalICAO string) error {
	key = models.NormalizeCallsign(key)
	if key == "" {
		return ErrInvalidKey
	}
	err := s.db.WithContext(ctx).
		Model(&models.FlightCache{}).
		Where("callsign = ?", key).
		Update("arrival_icao", arrivalICAO).Error
	if err != nil {
		return fmt.Errorf("resolve arrival %s: %w", key, err)
	}
	return nil
}

// IncrementArrivalRetry bumps the reconciliation retry counter by one.
func (s *FlightCacheStore) IncrementArrivalRetry(ctx context.Context, key string) error {
	key = models.NormalizeCallsign(key)
	if key == "" {
		return ErrInvalidKey
	}
	err := s.db.WithContext(ctx).
		Model(&models.FlightCache{}).
		Where("callsign = ?", key).
		UpdateColumn("arrival_retry_count", gorm.Expr("arrival_retry_count + ?", 1)).Error
	if err != nil {
		return fmt.Errorf("increment arrival retry %s: %w", key, err)
	}
	return nil
}
