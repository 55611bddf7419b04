package providers

import (
	"context"
	"time"

	"flight-radar/internal/models"
)

// Lookup providers report absence with false instead of an error. Transport,
// status and decode failures all collapse to false.

type PositionSource interface {
	GetCurrentStates(ctx context.Context, box models.BoundingBox) ([]models.Observation, error)
}

type HistorySource interface {
	GetHistory(ctx context.Context, callsign string, begin, end time.Time) ([]models.HistoricalRecord, error)
}

type LabelProvider interface {
	LookupName(ctx context.Context, code string, kind models.LabelKind) (models.Label, bool)
}

type RouteProvider interface {
	Lookup(ctx context.Context, callsign string) (models.RouteInfo, bool)
}

type ImageProvider interface {
	LookupImage(ctx context.Context, icao24 string) (string, bool)
}
