package services

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"flight-radar/internal/logger"
	"flight-radar/internal/metrics"
	"flight-radar/internal/models"
	"flight-radar/internal/providers"

	"github.com/rs/zerolog"
)

var ErrReconcileRunning = errors.New("reconciliation already running")

// ArrivalStore is the part of the flight cache reconciliation works on.
type ArrivalStore interface {
	FindArrivalCandidates(ctx context.Context, seenBeforeEpoch int64, maxRetries, limit int) ([]models.FlightCache, error)
	ResolveArrival(ctx context.Context, key, arrivalICAO string) error
	IncrementArrivalRetry(ctx context.Context, key string) error
}

type ReconcileConfig struct {
	MaxRetries               int
	BatchLimit               int
	Pacing                   time.Duration
	LandingAltitudeThreshold float64
}

type ReconcileReport struct {
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Candidates  int       `json:"candidates"`
	Resolved    int       `json:"resolved"`
	Retried     int       `json:"retried"`
	Errors      int       `json:"errors"`
	Interrupted bool      `json:"interrupted"`
}

// ReconciliationService backfills arrival airports from yesterday's completed
// flights. Entities are processed one at a time with a pause between them.
type ReconciliationService struct {
	store   ArrivalStore
	history providers.HistorySource
	cfg     ReconcileConfig
	running atomic.Bool
	log     zerolog.Logger
}

func NewReconciliationService(store ArrivalStore, history providers.HistorySource, cfg ReconcileConfig) *ReconciliationService {
	return &ReconciliationService{
		store:   store,
		history: history,
		cfg:     cfg,
		log:     logger.Component("reconciliation"),
	}
}

// RunOnce reconciles synchronously. Only a failed candidate query is returned
// as an error; per-flight failures are counted and the batch continues.
func (s *ReconciliationService) RunOnce(ctx context.Context, now time.Time) (ReconcileReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return ReconcileReport{}, ErrReconcileRunning
	}
	defer s.running.Store(false)
	return s.run(ctx, now)
}

// Start reconciles in the background, giving up after timeout.
func (s *ReconciliationService) Start(ctx context.Context, now time.Time, timeout time.Duration) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrReconcileRunning
	}
	go func() {
		defer s.running.Store(false)
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if _, err := s.run(runCtx, now); err != nil {
			s.log.Error().Err(err).Msg("Background reconciliation failed")
		}
	}()
	return nil
}

// Running reports whether a run is in progress.
func (s *ReconciliationService) Running() bool {
	return s.running.Load()
}

// Window returns yesterday in UTC as [00:00:00, 23:59:59].
func Window(now time.Time) (time.Time, time.Time) {
	n := now.UTC()
	today := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, -1), today.Add(-time.Second)
}

func (s *ReconciliationService) run(ctx context.Context, now time.Time) (ReconcileReport, error) {
	begin, end := Window(now)
	report := ReconcileReport{WindowStart: begin, WindowEnd: end}

	startOfToday := end.Add(time.Second)
	candidates, err := s.store.FindArrivalCandidates(ctx, startOfToday.Unix(), s.cfg.MaxRetries, s.cfg.BatchLimit)
	if err != nil {
		return report, err
	}
	report.Candidates = len(candidates)
	s.log.Info().Int("candidates", len(candidates)).Time("window_start", begin).Msg("Arrival reconciliation started")

	for i, rec := range candidates {
		if i > 0 && !s.pause(ctx) {
			report.Interrupted = true
			break
		}

		switch s.reconcileOne(ctx, rec.Callsign, begin, end) {
		case "interrupted":
			report.Interrupted = true
		case "resolved":
			report.Resolved++
		case "retried":
			report.Retried++
		default:
			report.Errors++
		}
		if report.Interrupted {
			break
		}
	}

	s.log.Info().
		Int("candidates", report.Candidates).
		Int("resolved", report.Resolved).
		Int("retried", report.Retried).
		Int("errors", report.Errors).
		Bool("interrupted", report.Interrupted).
		Msg("Arrival reconciliation finished")
	return report, nil
}

func (s *ReconciliationService) pause(ctx context.Context) bool {
	if s.cfg.Pacing <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(s.cfg.Pacing)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// reconcileOne returns "resolved", "retried", "error" or "interrupted". An
// interrupted check does not count against the flight's retries.
func (s *ReconciliationService) reconcileOne(ctx context.Context, callsign string, begin, end time.Time) (outcome string) {
	log := s.log.With().Str("callsign", callsign).Logger()
	defer func() {
		metrics.ReconcileEntitiesTotal.WithLabelValues(outcome).Inc()
	}()

	history, err := s.history.GetHistory(ctx, callsign, begin, end)
	if err != nil && ctx.Err() != nil {
		log.Warn().Err(err).Msg("Reconciliation cancelled during history lookup")
		return "interrupted"
	}
	if err != nil {
		log.Warn().Err(err).Msg("History lookup failed, incrementing retry")
		s.retry(ctx, callsign)
		return "error"
	}

	if arrival, ok := s.landedAt(history); ok {
		if err := s.store.ResolveArrival(context.WithoutCancel(ctx), callsign, arrival); err != nil {
			log.Error().Err(err).Msg("Failed to store arrival, incrementing retry")
			s.retry(ctx, callsign)
			return "error"
		}
		log.Info().Str("arrival", arrival).Msg("Arrival resolved")
		return "resolved"
	}

	if !s.retry(ctx, callsign) {
		return "error"
	}
	log.Debug().Int("history", len(history)).Msg("Arrival not resolved, retrying later")
	return "retried"
}

// landedAt inspects the latest record: below the landing threshold with a
// destination means the flight is done.
func (s *ReconciliationService) landedAt(history []models.HistoricalRecord) (string, bool) {
	if len(history) == 0 {
		return "", false
	}
	last := history[0]
	for _, h := range history[1:] {
		if h.LastSeen >= last.LastSeen {
			last = h
		}
	}
	if last.Altitude == nil || *last.Altitude >= s.cfg.LandingAltitudeThreshold {
		return "", false
	}
	dest := strings.TrimSpace(last.DestinationICAO)
	if dest == "" {
		return "", false
	}
	return dest, true
}

func (s *ReconciliationService) retry(ctx context.Context, callsign string) bool {
	if err := s.store.IncrementArrivalRetry(context.WithoutCancel(ctx), callsign); err != nil {
		s.log.Error().Err(err).Str("callsign", callsign).Msg("Failed to increment arrival retry")
		return false
	}
	return true
}
