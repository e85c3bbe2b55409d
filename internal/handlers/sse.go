package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/starfederation/datastar-go/datastar"

	"superstore-dashboard/internal/errors"
	"superstore-dashboard/internal/observability"
	"superstore-dashboard/internal/ui/templates"
)

type SSEHandlers struct {
	pages  *pageBuilder
	logger *slog.Logger
}

func NewSSEHandlers(deps Deps) *SSEHandlers {
	deps = deps.withDefaults()
	return &SSEHandlers{
		pages:  &pageBuilder{Deps: deps},
		logger: deps.Logger,
	}
}

func renderComponent(ctx context.Context, c templ.Component) (string, error) {
	var buf strings.Builder
	err := c.Render(ctx, &buf)
	return buf.String(), err
}

// HandleView recomputes the dashboard for the signals of a widget change.
// It patches the filter form and the view, writes the pruned selection back
// into the signals and reruns the chart scripts.
func (h *SSEHandlers) HandleView(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerFrom(r.Context(), h.logger)

	var sig viewSignals
	if err := datastar.ReadSignals(r, &sig); err != nil {
		errors.WriteError(w, h.logger, errors.BadRequestWrap(err, "invalid signals"), observability.GetRequestID(r.Context()))
		return
	}

	sse := datastar.NewSSE(w, r)

	page, err := h.pages.build(r.Context(), sig, true)
	if err != nil {
		logger.Warn("view unavailable", "error", err)
	}

	for _, c := range []templ.Component{templates.Filters(page), templates.View(page)} {
		html, err := renderComponent(r.Context(), c)
		if err != nil {
			logger.Error("render view", "error", err)
			return
		}
		if err := sse.PatchElements(html); err != nil {
			logger.Debug("client went away", "error", err)
			return
		}
	}

	if page.View == nil {
		return
	}

	signals, err := json.Marshal(page.Signals())
	if err != nil {
		logger.Error("marshal signals", "error", err)
		return
	}
	if err := sse.PatchSignals(signals); err != nil {
		logger.Debug("client went away", "error", err)
		return
	}

	for _, script := range page.Charts.Scripts() {
		if script == "" {
			continue
		}
		if err := sse.ExecuteScript(script); err != nil {
			logger.Debug("client went away", "error", err)
			return
		}
	}
}
