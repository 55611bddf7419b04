package providers

import (
	"context"
	"net/url"
	"strings"
	"time"

	"flight-radar/internal/logger"
	"flight-radar/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

type aeroAirport struct {
	CodeICAO string `json:"code_icao"`
}

type aeroFlight struct {
	Ident        string       `json:"ident"`
	OperatorICAO string       `json:"operator_icao"`
	AircraftType string       `json:"aircraft_type"`
	Origin       *aeroAirport `json:"origin"`
	Destination  *aeroAirport `json:"destination"`
}

type aeroFlightsResponse struct {
	Flights []aeroFlight `json:"flights"`
}

// AeroAPIClient is the paid route provider (FlightAware AeroAPI /flights/{ident}).
type AeroAPIClient struct {
	http   *resty.Client
	apiKey string
	log    zerolog.Logger
}

func NewAeroAPIClient(baseURL, apiKey string, timeout time.Duration) *AeroAPIClient {
	return &AeroAPIClient{
		http:   newClient("aeroapi", strings.TrimSuffix(baseURL, "/"), timeout),
		apiKey: apiKey,
		log:    logger.Component("aeroapi"),
	}
}

// Lookup returns the first flight AeroAPI knows for callsign.
func (c *AeroAPIClient) Lookup(ctx context.Context, callsign string) (models.RouteInfo, bool) {
	if c.apiKey == "" {
		c.log.Warn().Msg("AeroAPI key not configured")
		return models.RouteInfo{}, false
	}
	ident := strings.TrimSpace(callsign)
	if ident == "" {
		return models.RouteInfo{}, false
	}

	var body aeroFlightsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("x-apikey", c.apiKey).
		SetHeader("Accept", "application/json").
		SetResult(&body).
		Get("/flights/" + url.PathEscape(ident))
	if err != nil {
		c.log.Debug().Err(err).Str("ident", ident).Msg("AeroAPI fetch failed")
		return models.RouteInfo{}, false
	}
	if resp.IsError() {
		c.log.Debug().Int("status", resp.StatusCode()).Str("ident", ident).Msg("AeroAPI /flights failed")
		return models.RouteInfo{}, false
	}
	if len(body.Flights) == 0 {
		return models.RouteInfo{}, false
	}

	first := body.Flights[0]
	info := models.RouteInfo{
		OperatorICAO:     strings.TrimSpace(first.OperatorICAO),
		AircraftTypeICAO: strings.TrimSpace(first.AircraftType),
	}
	if first.Origin != nil {
		info.OriginICAO = strings.TrimSpace(first.Origin.CodeICAO)
	}
	if first.Destination != nil {
		info.DestinationICAO = strings.TrimSpace(first.Destination.CodeICAO)
	}
	return info, true
}

var _ RouteProvider = (*AeroAPIClient)(nil)
