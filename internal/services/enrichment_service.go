package services

import (
	"context"
	"time"

	"flight-radar/internal/logger"
	"flight-radar/internal/metrics"
	"flight-radar/internal/models"
	"flight-radar/internal/providers"
	"flight-radar/internal/timebox"

	"github.com/rs/zerolog"
)

// FlightStore is the part of the flight cache the enrichment pipeline needs.
type FlightStore interface {
	GetRecord(ctx context.Context, key string) (*models.FlightCache, error)
	UpsertObservation(ctx context.Context, obs models.Observation, now time.Time) error
	ApplyFieldUpdates(ctx context.Context, key string, patch models.RecordPatch, attemptDelta int) error
	SetImage(ctx context.Context, key, url string, kind models.ImageKind) error
}

type EnrichmentConfig struct {
	MaxAttemptsPerCallsign int
	NegativeCacheTTL       time.Duration
	LabelTimeout           time.Duration
	PaidTimeout            time.Duration
	ImageTimeout           time.Duration
	PlaceholderImageURL    string
}

// EnrichmentService fills in route, operator, aircraft and image data for a
// live observation, persisting everything it learns.
type EnrichmentService struct {
	store  FlightStore
	budget *BudgetGate
	labels providers.LabelProvider
	routes providers.RouteProvider
	images providers.ImageProvider
	cfg    EnrichmentConfig
	log    zerolog.Logger
}

func NewEnrichmentService(
	store FlightStore,
	budget *BudgetGate,
	labels providers.LabelProvider,
	routes providers.RouteProvider,
	images providers.ImageProvider,
	cfg EnrichmentConfig,
) *EnrichmentService {
	return &EnrichmentService{
		store:  store,
		budget: budget,
		labels: labels,
		routes: routes,
		images: images,
		cfg:    cfg,
		log:    logger.Component("enrichment"),
	}
}

// Enrich never fails: anything that cannot be resolved in time is left empty.
// Cache writes use a context detached from ctx so a disconnecting client
// cannot lose the accounting of a paid call already made.
func (s *EnrichmentService) Enrich(ctx context.Context, obs models.Observation, now time.Time) models.EnrichedFlight {
	metrics.EnrichmentsTotal.Inc()

	key := models.NormalizeCallsign(obs.Callsign)
	out := models.EnrichedFlight{
		ICAO24:   obs.ICAO24,
		Callsign: key,
		Altitude: obs.Altitude,
		Lat:      obs.Lat,
		Lon:      obs.Lon,
		Velocity: obs.Velocity,
	}
	if key == "" {
		return out
	}

	writeCtx := context.WithoutCancel(ctx)
	obs.Callsign = key
	if err := s.store.UpsertObservation(writeCtx, obs, now); err != nil {
		s.writeFailed("upsert", key, err)
	}

	rec, recErr := s.store.GetRecord(writeCtx, key)
	if recErr != nil {
		s.log.Warn().Err(recErr).Str("callsign", key).Msg("Failed to read flight cache")
	}
	copyRecord(&out, rec)

	// Operator name from the free CDN, keyed by the cached code or the
	// callsign's airline prefix.
	triedOperator := ""
	if out.OperatorName == "" {
		code := out.OperatorICAO
		if code == "" {
			code, _ = models.OperatorPrefix(key)
		}
		if code != "" {
			triedOperator = code
			patch := models.RecordPatch{}
			if out.OperatorICAO == "" {
				out.OperatorICAO = code
				patch.OperatorICAO = code
			}
			if label, ok := s.lookupLabel(ctx, code, models.LabelOperator); ok && label.Full != "" {
				out.OperatorName = label.Full
				patch.OperatorName = label.Full
			}
			s.applyPatch(writeCtx, key, patch, 0)
		}
	}

	if ctx.Err() != nil {
		return out
	}

	// Without the record the attempt ceiling and cooldown are unknown; never pay blind.
	if recErr == nil && s.paidLookupAllowed(&out, rec, now) {
		s.paidLookup(ctx, writeCtx, key, &out, now)
	}

	s.resolveNames(ctx, writeCtx, key, &out, triedOperator)

	if out.AircraftImageURL == "" && ctx.Err() == nil {
		s.resolveImage(ctx, writeCtx, key, &out)
	}

	return out
}

// paidLookupAllowed applies the per-flight gates: route incomplete, attempts
// below the ceiling and no active negative cache.
func (s *EnrichmentService) paidLookupAllowed(out *models.EnrichedFlight, rec *models.FlightCache, now time.Time) bool {
	if out.HasRoute() {
		return false
	}
	attempts := 0
	if rec != nil {
		attempts = rec.LookupAttempts
		if rec.NotRetryBeforeEpoch != nil && now.Unix() < *rec.NotRetryBeforeEpoch {
			return false
		}
	}
	return attempts < s.cfg.MaxAttemptsPerCallsign
}

func (s *EnrichmentService) paidLookup(ctx, writeCtx context.Context, key string, out *models.EnrichedFlight, now time.Time) {
	retryAt := now.Add(s.cfg.NegativeCacheTTL).Unix()

	if !s.budget.Allow(ctx, now) {
		// No budget left today: back off without spending an attempt.
		s.applyPatch(writeCtx, key, models.RecordPatch{NotRetryBeforeEpoch: &retryAt}, 0)
		return
	}

	checked := now.Unix()
	info, ok := call(ctx, "aeroapi", s.cfg.PaidTimeout, func(ctx context.Context) (models.RouteInfo, bool) {
		return s.routes.Lookup(ctx, key)
	})
	if !ok {
		s.log.Debug().Str("callsign", key).Msg("Paid lookup failed, negative-caching")
		s.applyPatch(writeCtx, key, models.RecordPatch{
			CheckedAtEpoch:      &checked,
			NotRetryBeforeEpoch: &retryAt,
		}, 1)
		return
	}

	operatorChanged := info.OperatorICAO != "" && info.OperatorICAO != out.OperatorICAO
	typeChanged := info.AircraftTypeICAO != "" && info.AircraftTypeICAO != out.AircraftTypeICAO

	// A new code invalidates the name stored for the old one.
	s.applyPatch(writeCtx, key, models.RecordPatch{
		DepartureICAO:       info.OriginICAO,
		ArrivalICAO:         info.DestinationICAO,
		OperatorICAO:        info.OperatorICAO,
		AircraftTypeICAO:    info.AircraftTypeICAO,
		CheckedAtEpoch:      &checked,
		ClearNotRetryBefore: true,
		ClearOperatorName:   operatorChanged,
		ClearAircraftNames:  typeChanged,
	}, 1)

	setIfPresent(&out.Departure, info.OriginICAO)
	setIfPresent(&out.Arrival, info.DestinationICAO)
	if operatorChanged {
		out.OperatorICAO = info.OperatorICAO
		out.OperatorName = ""
	}
	if typeChanged {
		out.AircraftTypeICAO = info.AircraftTypeICAO
		out.AircraftNameShort = ""
		out.AircraftNameFull = ""
	}
}

// resolveNames looks up names for codes that have none yet. The operator is
// skipped when it is the code already tried this run.
func (s *EnrichmentService) resolveNames(ctx, writeCtx context.Context, key string, out *models.EnrichedFlight, triedOperator string) {
	patch := models.RecordPatch{}

	if out.OperatorName == "" && out.OperatorICAO != "" && out.OperatorICAO != triedOperator {
		if label, ok := s.lookupLabel(ctx, out.OperatorICAO, models.LabelOperator); ok && label.Full != "" {
			out.OperatorName = label.Full
			patch.OperatorName = label.Full
		}
	}

	if out.AircraftTypeICAO != "" && out.AircraftNameShort == "" && out.AircraftNameFull == "" {
		if label, ok := s.lookupLabel(ctx, out.AircraftTypeICAO, models.LabelAircraftType); ok {
			out.AircraftNameShort = label.Short
			out.AircraftNameFull = label.Full
			patch.AircraftNameShort = label.Short
			patch.AircraftNameFull = label.Full
		}
	}

	s.applyPatch(writeCtx, key, patch, 0)
}

// resolveImage decides the image once; a miss pins the generic placeholder.
func (s *EnrichmentService) resolveImage(ctx, writeCtx context.Context, key string, out *models.EnrichedFlight) {
	url, kind := s.cfg.PlaceholderImageURL, models.ImageGeneric
	if out.ICAO24 != "" {
		if found, ok := call(ctx, "wikimedia", s.cfg.ImageTimeout, func(ctx context.Context) (string, bool) {
			return s.images.LookupImage(ctx, out.ICAO24)
		}); ok {
			url, kind = found, models.ImageExact
		}
	}

	out.AircraftImageURL = url
	out.AircraftImageKind = kind
	if err := s.store.SetImage(writeCtx, key, url, kind); err != nil {
		s.writeFailed("set_image", key, err)
	}
}

func (s *EnrichmentService) lookupLabel(ctx context.Context, code string, kind models.LabelKind) (models.Label, bool) {
	return call(ctx, "flightwall", s.cfg.LabelTimeout, func(ctx context.Context) (models.Label, bool) {
		return s.labels.LookupName(ctx, code, kind)
	})
}

func (s *EnrichmentService) applyPatch(ctx context.Context, key string, patch models.RecordPatch, attemptDelta int) {
	if patch.IsEmpty() && attemptDelta == 0 {
		return
	}
	if err := s.store.ApplyFieldUpdates(ctx, key, patch, attemptDelta); err != nil {
		s.writeFailed("patch", key, err)
	}
}

func (s *EnrichmentService) writeFailed(op, key string, err error) {
	metrics.CacheWriteErrorsTotal.WithLabelValues(op).Inc()
	s.log.Warn().Err(err).Str("operation", op).Str("callsign", key).Msg("Flight cache write failed")
}

// call time-boxes one provider call and records its outcome.
func call[T any](ctx context.Context, provider string, d time.Duration, fn func(ctx context.Context) (T, bool)) (T, bool) {
	start := time.Now()
	v, ok := timebox.Do(ctx, d, fn)

	outcome := metrics.OutcomeOK
	if !ok {
		outcome = metrics.OutcomeMiss
		if time.Since(start) >= d {
			outcome = metrics.OutcomeTimeout
		}
	}
	metrics.ProviderCallsTotal.WithLabelValues(provider, outcome).Inc()
	return v, ok
}

func copyRecord(out *models.EnrichedFlight, rec *models.FlightCache) {
	if rec == nil {
		return
	}
	if out.ICAO24 == "" {
		out.ICAO24 = rec.ICAO24
	}
	out.Departure = models.Deref(rec.DepartureICAO)
	out.Arrival = models.Deref(rec.ArrivalICAO)
	out.OperatorICAO = models.Deref(rec.OperatorICAO)
	out.OperatorName = models.Deref(rec.OperatorName)
	out.AircraftTypeICAO = models.Deref(rec.AircraftTypeICAO)
	out.AircraftNameShort = models.Deref(rec.AircraftNameShort)
	out.AircraftNameFull = models.Deref(rec.AircraftNameFull)

	if url := models.Deref(rec.AircraftImageURL); url != "" {
		if kind, ok := models.ParseImageKind(models.Deref(rec.AircraftImageKind)); ok {
			out.AircraftImageURL = url
			out.AircraftImageKind = kind
		}
	}
}

func setIfPresent(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
