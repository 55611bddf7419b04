package models

import "strings"

// ImageKind tags how an aircraft image was resolved.
type ImageKind string

const (
	ImageExact   ImageKind = "EXACT"
	ImageGeneric ImageKind = "GENERIC"
)

// ParseImageKind returns the kind for a persisted tag, or false for anything unknown.
func ParseImageKind(s string) (ImageKind, bool) {
	switch ImageKind(s) {
	case ImageExact, ImageGeneric:
		return ImageKind(s), true
	}
	return "", false
}

// Flight cache, one row per normalized callsign.
// This is a cache, not a source of truth: both hits and misses are recorded.
type FlightCache struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	Callsign string `gorm:"type:varchar(16);uniqueIndex;not null"`
	ICAO24   string `gorm:"column:icao24;type:varchar(16);not null"`

	Altitude *float64
	Lat      *float64
	Lon      *float64
	Velocity *float64

	DepartureICAO *string `gorm:"column:departure_icao;type:varchar(8)"`
	ArrivalICAO   *string `gorm:"column:arrival_icao;type:varchar(8);index"`

	OperatorICAO      *string `gorm:"column:operator_icao;type:varchar(8)"`
	AircraftTypeICAO  *string `gorm:"column:aircraft_type_icao;type:varchar(8)"`
	OperatorName      *string `gorm:"type:varchar(255)"`
	AircraftNameShort *string `gorm:"type:varchar(255)"`
	AircraftNameFull  *string `gorm:"type:varchar(255)"`

	AircraftImageURL  *string `gorm:"column:aircraft_image_url;type:varchar(500)"`
	AircraftImageKind *string `gorm:"type:varchar(16)"`

	FirstSeenEpoch       int64 `gorm:"not null;index"`
	LastSeenEpoch        int64 `gorm:"not null"`
	CachedAtEpoch        int64 `gorm:"not null"`
	LookupAttempts       int   `gorm:"not null;default:0"`
	NotRetryBeforeEpoch  *int64
	LookupCheckedAtEpoch *int64
	ArrivalRetryCount    int `gorm:"not null;default:0"`
}

func (FlightCache) TableName() string {
	return "flight_cache"
}

// HasRoute reports whether both airports are known.
func (f *FlightCache) HasRoute() bool {
	return f != nil && nonBlank(f.DepartureICAO) && nonBlank(f.ArrivalICAO)
}

// Daily paid-call budget, one row per UTC day.
type DailyBudgetCounter struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	DateKey   string `gorm:"type:char(10);uniqueIndex;not null"`
	Granted   int    `gorm:"not null;default:0"`
	UpdatedAt int64  `gorm:"autoUpdateTime"`
}

func (DailyBudgetCounter) TableName() string {
	return "daily_budget_counters"
}

// RecordPatch is a sparse update of a FlightCache row. Empty strings and nil
// pointers mean "leave the column alone".
type RecordPatch struct {
	DepartureICAO     string
	ArrivalICAO       string
	OperatorICAO      string
	AircraftTypeICAO  string
	OperatorName      string
	AircraftNameShort string
	AircraftNameFull  string

	CheckedAtEpoch      *int64
	NotRetryBeforeEpoch *int64
	// ClearNotRetryBefore nulls the negative-cache expiry. Only a successful
	// resolution sets it.
	ClearNotRetryBefore bool
	// ClearOperatorName and ClearAircraftNames null the name columns unless
	// the patch carries a replacement.
	ClearOperatorName  bool
	ClearAircraftNames bool
}

// Columns returns the non-empty fields keyed by column name.
func (p RecordPatch) Columns() map[string]interface{} {
	cols := make(map[string]interface{})
	put := func(col, v string) {
		if v = strings.TrimSpace(v); v != "" {
			cols[col] = v
		}
	}
	put("departure_icao", p.DepartureICAO)
	put("arrival_icao", p.ArrivalICAO)
	put("operator_icao", p.OperatorICAO)
	put("aircraft_type_icao", p.AircraftTypeICAO)
	if p.ClearOperatorName {
		cols["operator_name"] = nil
	}
	if p.ClearAircraftNames {
		cols["aircraft_name_short"] = nil
		cols["aircraft_name_full"] = nil
	}
	put("operator_name", p.OperatorName)
	put("aircraft_name_short", p.AircraftNameShort)
	put("aircraft_name_full", p.AircraftNameFull)

	if p.CheckedAtEpoch != nil {
		cols["lookup_checked_at_epoch"] = *p.CheckedAtEpoch
	}
	if p.ClearNotRetryBefore {
		cols["not_retry_before_epoch"] = nil
	} else if p.NotRetryBeforeEpoch != nil {
		cols["not_retry_before_epoch"] = *p.NotRetryBeforeEpoch
	}
	return cols
}

// IsEmpty reports whether the patch carries nothing to write.
func (p RecordPatch) IsEmpty() bool {
	return len(p.Columns()) == 0
}

// Observation is one live state from the position source.
type Observation struct {
	Callsign string
	ICAO24   string
	Lat      *float64
	Lon      *float64
	Altitude *float64
	Velocity *float64
}

// BoundingBox is an inclusive lat/lon window.
type BoundingBox struct {
	LatMin float64
	LonMin float64
	LatMax float64
	LonMax float64
}

// HistoricalRecord is one completed flight from the history source.
type HistoricalRecord struct {
	Callsign        string
	DepartureICAO   string
	DestinationICAO string
	Altitude        *float64
	FirstSeen       int64
	LastSeen        int64
}

// RouteInfo is the paid provider's answer; any field may be empty.
type RouteInfo struct {
	OperatorICAO     string
	AircraftTypeICAO string
	OriginICAO       string
	DestinationICAO  string
}

// LabelKind selects which label table a code is looked up in.
type LabelKind string

const (
	LabelOperator     LabelKind = "airline"
	LabelAircraftType LabelKind = "aircraft"
)

// Label holds human-readable names. Operators only carry Full.
type Label struct {
	Short string `json:"short,omitempty"`
	Full  string `json:"full,omitempty"`
}

// IsEmpty reports whether no name was resolved.
func (l Label) IsEmpty() bool {
	return l.Short == "" && l.Full == ""
}

// EnrichedFlight is what callers of the enrichment pipeline receive.
type EnrichedFlight struct {
	ICAO24   string   `json:"icao24"`
	Callsign string   `json:"callsign"`
	Altitude *float64 `json:"altitude,omitempty"`
	Lat      *float64 `json:"lat,omitempty"`
	Lon      *float64 `json:"lon,omitempty"`
	Velocity *float64 `json:"velocity,omitempty"`

	DistanceKm float64 `json:"distance_km"`

	Departure         string    `json:"departure,omitempty"`
	Arrival           string    `json:"arrival,omitempty"`
	OperatorICAO      string    `json:"operator_icao,omitempty"`
	OperatorName      string    `json:"operator_name,omitempty"`
	AircraftTypeICAO  string    `json:"aircraft_type_icao,omitempty"`
	AircraftNameShort string    `json:"aircraft_name_short,omitempty"`
	AircraftNameFull  string    `json:"aircraft_name_full,omitempty"`
	AircraftImageURL  string    `json:"aircraft_image_url,omitempty"`
	AircraftImageKind ImageKind `json:"aircraft_image_type,omitempty"`
}

// HasRoute reports whether both airports are known.
func (f *EnrichedFlight) HasRoute() bool {
	return f.Departure != "" && f.Arrival != ""
}

// NormalizeCallsign returns the canonical entity key: trimmed and upper-cased.
// Position providers pad callsigns, so every cache operation must go through this.
func NormalizeCallsign(callsign string) string {
	return strings.ToUpper(strings.TrimSpace(callsign))
}

// OperatorPrefix derives an ICAO airline designator from a callsign, e.g. "DLH45X" -> "DLH".
func OperatorPrefix(callsign string) (string, bool) {
	cs := NormalizeCallsign(callsign)
	if len(cs) < 3 {
		return "", false
	}
	prefix := cs[:3]
	for i := 0; i < len(prefix); i++ {
		if prefix[i] < 'A' || prefix[i] > 'Z' {
			return "", false
		}
	}
	return prefix, true
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonBlank(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}
