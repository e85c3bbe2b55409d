package handlers

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"superstore-dashboard/internal/charts"
	"superstore-dashboard/internal/dataset"
	"superstore-dashboard/internal/errors"
	"superstore-dashboard/internal/observability"
	"superstore-dashboard/internal/services"
	"superstore-dashboard/internal/ui/templates"
)

const (
	renderTimeout          = 10 * time.Second
	defaultMaxUploadBytes  = 50 << 20
	maxBackgroundBytes     = 5 << 20
	multipartMemory        = 8 << 20
	// Room for multipart boundaries, part headers and form fields.
	multipartOverhead      = 1 << 20
	defaultTableRowLimit   = 1000
	pageCacheControl       = "no-store"
	downloadContentDispFmt = `attachment; filename="%s"`
)

// Deps are the collaborators shared by the page and SSE handlers.
type Deps struct {
	Analytics      *services.Analytics
	Renderer       *charts.Renderer
	Background     *Background
	Logger         *slog.Logger
	TableRowLimit  int
	MaxUploadBytes int64
}

func (d Deps) withDefaults() Deps {
	if d.Renderer == nil {
		d.Renderer = charts.NewRenderer()
	}
	if d.Background == nil {
		d.Background = NewBackground()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.TableRowLimit == 0 {
		d.TableRowLimit = defaultTableRowLimit
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = defaultMaxUploadBytes
	}
	return d
}

// pageBuilder turns widget values into a renderable page.
type pageBuilder struct {
	Deps
}

// build always returns a page. On failure the page carries the user facing
// message and no view.
func (b *pageBuilder) build(ctx context.Context, sig viewSignals, partial bool) (*templates.Page, error) {
	ctx, span := observability.StartSpan(ctx, "dashboard.view")
	defer span.End(ctx, b.Logger)

	id := sig.datasetID()
	span.SetTag("dataset", id)

	page := &templates.Page{
		DatasetID:     id,
		AssetsHost:    b.Renderer.AssetsHost(),
		Theme:         b.Renderer.Theme(),
		BackgroundCSS: b.Background.CSS(),
		Partial:       partial,
	}

	fail := func(err error) (*templates.Page, error) {
		span.SetError(err)
		page.View = nil
		page.Error = errors.UserMessage(err)
		return page, err
	}

	req, err := sig.request()
	if err != nil {
		return fail(err)
	}
	view, ds, err := b.Analytics.View(id, req)
	if err != nil {
		return fail(err)
	}
	page.Source = &ds.Source
	page.View = view

	set, err := b.Renderer.Render(view)
	if err != nil {
		return fail(errors.InternalWrap(err, "failed to render charts"))
	}
	page.Charts = set
	page.Table = templates.NewTable(view.Filtered, b.TableRowLimit)
	return page, nil
}

func statusOf(err error) int {
	if appErr, ok := errors.As(err); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// PageHandlers serve the HTML dashboard and its form posts.
type PageHandlers struct {
	pages  *pageBuilder
	logger *slog.Logger
}

func NewPageHandlers(deps Deps) *PageHandlers {
	deps = deps.withDefaults()
	return &PageHandlers{
		pages:  &pageBuilder{Deps: deps},
		logger: deps.Logger,
	}
}

func (h *PageHandlers) render(w http.ResponseWriter, r *http.Request, page *templates.Page, status int) {
	ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", pageCacheControl)
	w.WriteHeader(status)
	if err := templates.Dashboard(page).Render(ctx, w); err != nil {
		observability.LoggerFrom(r.Context(), h.logger).Error("render dashboard", "error", err)
	}
}

// HandleDashboard renders the full page for the widget values in the query.
func (h *PageHandlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	page, err := h.pages.build(r.Context(), signalsFromQuery(r.URL.Query()), false)
	status := http.StatusOK
	if err != nil {
		status = statusOf(err)
		observability.LoggerFrom(r.Context(), h.logger).Warn("dashboard unavailable", "error", err)
	}
	h.render(w, r, page, status)
}

// HandleUpload stores an uploaded file and redirects to its dashboard.
func (h *PageHandlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerFrom(r.Context(), h.logger)

	file, name, err := formFile(w, r, "file", h.pages.MaxUploadBytes)
	if err != nil {
		h.uploadFailed(w, r, err)
		return
	}
	defer file.Close()

	ds, err := h.pages.Analytics.Upload(r.Context(), name, file)
	if err != nil {
		h.uploadFailed(w, r, err)
		return
	}

	logger.Info("upload accepted", "dataset_id", ds.ID, "rows", ds.Source.Rows)
	http.Redirect(w, r, "/?"+url.Values{"dataset": {ds.ID}}.Encode(), http.StatusSeeOther)
}

func (h *PageHandlers) uploadFailed(w http.ResponseWriter, r *http.Request, err error) {
	observability.LoggerFrom(r.Context(), h.logger).Warn("upload rejected", "error", err)
	page := &templates.Page{
		DatasetID:     services.DefaultDatasetID,
		Error:         errors.UserMessage(err),
		AssetsHost:    h.pages.Renderer.AssetsHost(),
		Theme:         h.pages.Renderer.Theme(),
		BackgroundCSS: h.pages.Background.CSS(),
	}
	h.render(w, r, page, statusOf(err))
}

// HandleDownload streams the filtered rows as Processed_Data.csv.
func (h *PageHandlers) HandleDownload(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())
	sig := signalsFromQuery(r.URL.Query())

	req, err := sig.request()
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}
	view, _, err := h.pages.Analytics.View(sig.datasetID(), req)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}

	w.Header().Set("Content-Type", dataset.ExportContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(downloadContentDispFmt, dataset.ExportFilename))
	w.Header().Set("Cache-Control", pageCacheControl)
	if err := dataset.WriteCSV(w, view.Filtered); err != nil {
		observability.LoggerFrom(r.Context(), h.logger).Error("write csv", "error", err)
	}
}

// HandleBackground replaces the page background with an uploaded PNG.
func (h *PageHandlers) HandleBackground(w http.ResponseWriter, r *http.Request) {
	file, _, err := formFile(w, r, "image", maxBackgroundBytes)
	if err != nil {
		h.uploadFailed(w, r, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.uploadFailed(w, r, errors.BadRequestWrap(err, "failed to read background image"))
		return
	}
	if err := h.pages.Background.Set(data); err != nil {
		h.uploadFailed(w, r, err)
		return
	}
	h.redirectToDashboard(w, r)
}

// HandleClearBackground removes the page background.
func (h *PageHandlers) HandleClearBackground(w http.ResponseWriter, r *http.Request) {
	h.pages.Background.Clear()
	h.redirectToDashboard(w, r)
}

func (h *PageHandlers) redirectToDashboard(w http.ResponseWriter, r *http.Request) {
	target := "/"
	if id := r.FormValue("dataset"); id != "" && id != services.DefaultDatasetID {
		target += "?" + url.Values{"dataset": {id}}.Encode()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// formFile opens a multipart file field of at most limit bytes, mapping an
// oversized file to PAYLOAD_TOO_LARGE. The body may exceed limit by the
// multipart framing.
func formFile(w http.ResponseWriter, r *http.Request, field string, limit int64) (io.ReadCloser, string, error) {
	tooLarge := errors.PayloadTooLarge(fmt.Sprintf("file exceeds the %d MB limit", (limit+1<<20-1)>>20))
	bodyLimit := limit + multipartOverhead
	if r.ContentLength > bodyLimit {
		return nil, "", tooLarge
	}
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			return nil, "", tooLarge
		}
		return nil, "", errors.BadRequestWrap(err, "invalid multipart form")
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", errors.BadRequestWrap(err, fmt.Sprintf("missing %s field", field))
	}
	if header.Size > limit {
		file.Close()
		return nil, "", tooLarge
	}
	return file, header.Filename, nil
}
