package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"flight-radar/internal/logger"
	"flight-radar/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	defaultNearbyLimit   = 3
	maxNearbyLimit       = 20
	defaultMaxDistanceKm = 80.0
	minMaxDistanceKm     = 1.0
	maxMaxDistanceKm     = 500.0
)

type NearbyFinder interface {
	Nearby(ctx context.Context, limit int, maxDistanceKm float64, now time.Time) ([]models.EnrichedFlight, error)
}

type FlightHandler struct {
	flights NearbyFinder
	now     func() time.Time
	log     zerolog.Logger
}

func NewFlightHandler(flights NearbyFinder) *FlightHandler {
	return &FlightHandler{
		flights: flights,
		now:     time.Now,
		log:     logger.Component("flight_handler"),
	}
}

// NearbyFlights lists enriched flights closest to the configured center
// @Summary List nearby flights
// @Description Current flights around the center point, nearest first, with route, names and image
// @Tags flights
// @Produce json
// @Param limit query int false "Number of flights (1-20)" default(3)
// @Param max_distance_km query number false "Search radius in km (1-500)" default(80)
// @Success 200 {object} NearbyFlightsResponse
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/flights/nearby [get]
func (h *FlightHandler) NearbyFlights(c *gin.Context) {
	limit := defaultNearbyLimit
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxNearbyLimit {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be an integer between 1 and 20"})
			return
		}
		limit = v
	}

	maxDistance := defaultMaxDistanceKm
	if raw := c.Query("max_distance_km"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < minMaxDistanceKm || v > maxMaxDistanceKm {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "max_distance_km must be a number between 1 and 500"})
			return
		}
		maxDistance = v
	}

	flights, err := h.flights.Nearby(c.Request.Context(), limit, maxDistance, h.now())
	if err != nil {
		h.log.Error().Err(err).Int("limit", limit).Float64("max_distance_km", maxDistance).Msg("Nearby lookup failed")
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "Position source unavailable"})
		return
	}
	if flights == nil {
		flights = []models.EnrichedFlight{}
	}

	c.JSON(http.StatusOK, NearbyFlightsResponse{Flights: flights})
}
