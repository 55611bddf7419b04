package services

import (
	"context"
	"time"

	"flight-radar/internal/logger"
	"flight-radar/internal/metrics"

	"github.com/rs/zerolog"
)

// BudgetStore is the counter BudgetGate draws from.
type BudgetStore interface {
	TryGrantDailyBudget(ctx context.Context, dateKey string, maxPerDay int) (bool, error)
}

// BudgetGate enforces the daily cap on paid lookups.
type BudgetGate struct {
	store     BudgetStore
	maxPerDay int
	log       zerolog.Logger
}

func NewBudgetGate(store BudgetStore, maxPerDay int) *BudgetGate {
	return &BudgetGate{
		store:     store,
		maxPerDay: maxPerDay,
		log:       logger.Component("budget_gate"),
	}
}

// DateKey is the UTC calendar day of t, the unit the cap resets on.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Allow takes one paid call from today's budget. Storage errors deny.
func (g *BudgetGate) Allow(ctx context.Context, now time.Time) bool {
	key := DateKey(now)
	granted, err := g.store.TryGrantDailyBudget(ctx, key, g.maxPerDay)
	if err != nil {
		g.log.Error().Err(err).Str("date", key).Msg("Budget check failed, denying paid lookup")
		metrics.BudgetDecisionsTotal.WithLabelValues("error").Inc()
		return false
	}
	if !granted {
		metrics.BudgetDecisionsTotal.WithLabelValues("denied").Inc()
		return false
	}
	metrics.BudgetDecisionsTotal.WithLabelValues("granted").Inc()
	return true
}

// MaxPerDay returns the configured cap.
func (g *BudgetGate) MaxPerDay() int {
	return g.maxPerDay
}
