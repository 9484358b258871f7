package reports

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/paintdesk/paintdesk/internal/platform/httpx"
)

// Handler exposes read-only report endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// MountRoutes attaches report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/dashboard", h.dashboard)
	r.Get("/aging", h.aging)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	asOf, ok := asOfParam(w, r)
	if !ok {
		return
	}
	dash, err := h.service.Dashboard(r.Context(), asOf)
	if err != nil {
		h.logger.Error("build dashboard", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, dash)
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	asOf, ok := asOfParam(w, r)
	if !ok {
		return
	}
	bucket, err := h.service.Aging(r.Context(), asOf)
	if err != nil {
		h.logger.Error("build aging report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bucket)
}

func asOfParam(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	v := r.URL.Query().Get("as_of")
	if v == "" {
		return time.Now(), true
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "as_of must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}
