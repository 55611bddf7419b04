package handlers

import (
	"flight-radar/internal/models"
)

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type NearbyFlightsResponse struct {
	Flights []models.EnrichedFlight `json:"flights"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

type BudgetResponse struct {
	Date      string `json:"date"`
	Granted   int    `json:"granted"`
	Max       int    `json:"max"`
	Remaining int    `json:"remaining"`
}
