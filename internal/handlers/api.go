package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"superstore-dashboard/internal/errors"
	"superstore-dashboard/internal/observability"
	"superstore-dashboard/internal/services"
)

const version = "1.0.0"

type APIHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
}

func NewAPIHandlers(analytics *services.Analytics, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		analytics: analytics,
		logger:    logger,
	}
}

// HandleView returns the computed view for the query's widget values.
func (h *APIHandlers) HandleView(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())
	sig := signalsFromQuery(r.URL.Query())

	req, err := sig.request()
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}
	view, _, err := h.analytics.View(sig.datasetID(), req)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}

	headers := map[string]string{
		"Cache-Control": "private, max-age=60",
	}

	errors.WriteSuccessWithHeaders(w, view, headers)
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {

	healthData := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   version,
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {

	stats := h.analytics.Stats()

	errors.WriteSuccess(w, stats)
}
