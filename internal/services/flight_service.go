package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"flight-radar/internal/geo"
	"flight-radar/internal/models"
	"flight-radar/internal/providers"
)

type Enricher interface {
	Enrich(ctx context.Context, obs models.Observation, now time.Time) models.EnrichedFlight
}

// FlightService answers "what is flying near the configured centre".
type FlightService struct {
	positions   providers.PositionSource
	enricher    Enricher
	centerLat   float64
	centerLon   float64
	bboxDegrees float64
}

func NewFlightService(positions providers.PositionSource, enricher Enricher, centerLat, centerLon, bboxDegrees float64) *FlightService {
	return &FlightService{
		positions:   positions,
		enricher:    enricher,
		centerLat:   centerLat,
		centerLon:   centerLon,
		bboxDegrees: bboxDegrees,
	}
}

type candidate struct {
	obs      models.Observation
	distance float64
}

// Nearby returns up to limit flights within maxDistanceKm of the centre,
// closest first, each enriched in turn.
func (s *FlightService) Nearby(ctx context.Context, limit int, maxDistanceKm float64, now time.Time) ([]models.EnrichedFlight, error) {
	box := models.BoundingBox{
		LatMin: s.centerLat - s.bboxDegrees,
		LonMin: s.centerLon - s.bboxDegrees,
		LatMax: s.centerLat + s.bboxDegrees,
		LonMax: s.centerLon + s.bboxDegrees,
	}
	states, err := s.positions.GetCurrentStates(ctx, box)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}

	var nearby []candidate
	for _, obs := range states {
		if obs.Lat == nil || obs.Lon == nil {
			continue
		}
		d := geo.HaversineKm(s.centerLat, s.centerLon, *obs.Lat, *obs.Lon)
		if d > maxDistanceKm {
			continue
		}
		nearby = append(nearby, candidate{obs: obs, distance: d})
	}

	sort.SliceStable(nearby, func(i, j int) bool {
		return nearby[i].distance < nearby[j].distance
	})
	if limit >= 0 && len(nearby) > limit {
		nearby = nearby[:limit]
	}

	out := make([]models.EnrichedFlight, 0, len(nearby))
	for _, c := range nearby {
		flight := s.enricher.Enrich(ctx, c.obs, now)
		flight.DistanceKm = c.distance
		out = append(out, flight)
	}
	return out, nil
}
