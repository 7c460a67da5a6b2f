package admin

import (
	"context"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/tuathcoir/storefront/internal/store"
)

// StatsStore is the slice of the order store the dashboard reads.
type StatsStore interface {
	SalesStats(ctx context.Context) (*store.SalesStats, error)
	RecentActivity(ctx context.Context, limit int) ([]store.ActivityEntry, error)
}

// MetricsSource exposes runtime counters, keyed by component name.
type MetricsSource interface {
	AllMetrics() map[string]interface{}
}

type Handler struct {
	stats   StatsStore
	metrics MetricsSource
	logger  *logrus.Logger
}

func NewHandler(stats StatsStore, metrics MetricsSource, logger *logrus.Logger) *Handler {
	return &Handler{
		stats:   stats,
		metrics: metrics,
		logger:  logger,
	}
}

// Stats serves the dashboard rollup: revenue, profit, pending orders and
// dispatches that need operator attention.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.SalesStats(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to load sales stats")
		respondWithError(w, http.StatusInternalServerError, "Failed to load stats")
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// Activity serves the newest audit log records.
func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	entries, err := h.stats.RecentActivity(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load activity log")
		respondWithError(w, http.StatusInternalServerError, "Failed to load activity")
		return
	}
	if entries == nil {
		entries = []store.ActivityEntry{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"activity": entries,
		"count":    len(entries),
	})
}

// Metrics exposes circuit breaker state per supplier so an operator can see
// which partner APIs are being shed.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{}
	if h.metrics != nil {
		payload["circuit_breakers"] = h.metrics.AllMetrics()
	}
	respondWithJSON(w, http.StatusOK, payload)
}
