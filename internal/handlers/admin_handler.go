package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"flight-radar/internal/logger"
	"flight-radar/internal/models"
	"flight-radar/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type RecordReader interface {
	GetRecord(ctx context.Context, key string) (*models.FlightCache, error)
	GetDailyBudget(ctx context.Context, dateKey string) (*models.DailyBudgetCounter, error)
}

type BackgroundReconciler interface {
	Start(ctx context.Context, now time.Time, timeout time.Duration) error
}

type LabelInvalidator interface {
	Invalidate(kind models.LabelKind, code string) error
}

type AdminConfig struct {
	MaxPaidCallsPerDay int
	ReconcileTimeout   time.Duration
}

type AdminHandler struct {
	auth       *services.AuthService
	records    RecordReader
	reconciler BackgroundReconciler
	labels     LabelInvalidator
	cfg        AdminConfig
	// baseCtx outlives a single request; background runs hang off it.
	baseCtx context.Context
	now     func() time.Time
	log     zerolog.Logger
}

func NewAdminHandler(baseCtx context.Context, auth *services.AuthService, records RecordReader, reconciler BackgroundReconciler, labels LabelInvalidator, cfg AdminConfig) *AdminHandler {
	return &AdminHandler{
		auth:       auth,
		records:    records,
		reconciler: reconciler,
		labels:     labels,
		cfg:        cfg,
		baseCtx:    baseCtx,
		now:        time.Now,
		log:        logger.Component("admin_handler"),
	}
}

// IssueToken exchanges the admin API key for a short-lived JWT
// @Summary Issue admin token
// @Tags admin
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} TokenResponse
// @Failure 401 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/admin/token [post]
func (h *AdminHandler) IssueToken(c *gin.Context) {
	err := h.auth.ValidateAPIKey(c.GetHeader("X-API-Key"))
	switch {
	case errors.Is(err, services.ErrAdminDisabled):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Admin API is disabled"})
		return
	case err != nil:
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid API key"})
		return
	}

	token, expiresAt, err := h.auth.GenerateToken()
	if errors.Is(err, services.ErrAdminDisabled) {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Token signing is disabled"})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to sign admin token")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{Token: token, ExpiresAt: expiresAt.Unix()})
}

// GetFlight returns the cached record for a callsign
// @Summary Get cached flight record
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param callsign path string true "Callsign"
// @Success 200 {object} models.FlightCache
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/admin/flights/{callsign} [get]
func (h *AdminHandler) GetFlight(c *gin.Context) {
	key := models.NormalizeCallsign(c.Param("callsign"))
	if key == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Callsign is required"})
		return
	}

	rec, err := h.records.GetRecord(c.Request.Context(), key)
	if err != nil {
		h.log.Error().Err(err).Str("callsign", key).Msg("Failed to read flight record")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to read flight record"})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Flight not found"})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// GetBudget reports today's paid lookup usage
// @Summary Get today's paid lookup budget
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} BudgetResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/admin/budget [get]
func (h *AdminHandler) GetBudget(c *gin.Context) {
	dateKey := services.DateKey(h.now())

	counter, err := h.records.GetDailyBudget(c.Request.Context(), dateKey)
	if err != nil {
		h.log.Error().Err(err).Str("date", dateKey).Msg("Failed to read budget counter")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to read budget"})
		return
	}

	granted := 0
	if counter != nil {
		granted = counter.Granted
	}
	remaining := h.cfg.MaxPaidCallsPerDay - granted
	if remaining < 0 {
		remaining = 0
	}

	c.JSON(http.StatusOK, BudgetResponse{
		Date:      dateKey,
		Granted:   granted,
		Max:       h.cfg.MaxPaidCallsPerDay,
		Remaining: remaining,
	})
}

// TriggerReconcile starts an arrival reconciliation run in the background
// @Summary Run arrival reconciliation now
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 202 {object} SuccessResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/admin/reconcile [post]
func (h *AdminHandler) TriggerReconcile(c *gin.Context) {
	err := h.reconciler.Start(h.baseCtx, h.now(), h.cfg.ReconcileTimeout)
	if errors.Is(err, services.ErrReconcileRunning) {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "Reconciliation already running"})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to start reconciliation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to start reconciliation"})
		return
	}

	h.log.Info().Str("by", c.GetString("admin_auth")).Msg("Manual reconciliation started")
	c.JSON(http.StatusAccepted, SuccessResponse{Message: "Reconciliation started"})
}

// InvalidateLabel drops a memoized airline or aircraft name on every replica
// @Summary Invalidate a cached label
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param kind path string true "airline or aircraft"
// @Param code path string true "ICAO code"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/admin/labels/{kind}/{code} [delete]
func (h *AdminHandler) InvalidateLabel(c *gin.Context) {
	kind := models.LabelKind(c.Param("kind"))
	if kind != models.LabelOperator && kind != models.LabelAircraftType {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "kind must be airline or aircraft"})
		return
	}
	code := strings.ToUpper(strings.TrimSpace(c.Param("code")))
	if code == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Code is required"})
		return
	}

	if err := h.labels.Invalidate(kind, code); err != nil {
		h.log.Error().Err(err).Str("kind", string(kind)).Str("code", code).Msg("Failed to invalidate label")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to invalidate label"})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Label invalidated",
		Data:    gin.H{"kind": kind, "code": code},
	})
}
