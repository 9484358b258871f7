package invoices

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/paintdesk/paintdesk/internal/platform/httpx"
)

// TransitionObserver counts document status changes. Satisfied by the
// observability metrics registry.
type TransitionObserver interface {
	ObserveTransition(entity, status string)
}

// Handler exposes invoice endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
	logger   *slog.Logger
	observer TransitionObserver
}

// NewHandler constructs a Handler instance. observer may be nil.
func NewHandler(service *Service, logger *slog.Logger, observer TransitionObserver) *Handler {
	return &Handler{service: service, validate: validator.New(), logger: logger, observer: observer}
}

// MountRoutes attaches invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/convert", h.convert)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
	r.Post("/{id}/transition", h.transition)
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	var req ConvertEstimateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	invoice, err := h.service.ConvertEstimate(r.Context(), req)
	if err != nil {
		h.logger.Error("convert estimate", slog.Int64("estimate_id", req.EstimateID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	invoice, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, presentInvoice(invoice))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var req ListInvoicesRequest
	q := r.URL.Query()
	if v := q.Get("client_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "client_id must be an integer")
			return
		}
		req.ClientID = &id
	}
	if v := q.Get("status"); v != "" {
		status := Status(v)
		req.Status = &status
	}
	if v := q.Get("due_from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "due_from must be YYYY-MM-DD")
			return
		}
		req.DueFrom = &t
	}
	if v := q.Get("due_to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "due_to must be YYYY-MM-DD")
			return
		}
		req.DueTo = &t
	}
	req.Limit, _ = strconv.Atoi(q.Get("limit"))
	req.Offset, _ = strconv.Atoi(q.Get("offset"))

	items, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list invoices", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	now := time.Now()
	out := make([]map[string]interface{}, 0, len(items))
	for i := range items {
		out = append(out, presentAt(&items[i], now))
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{"items": out, "total": total})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateDraftRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	invoice, err := h.service.UpdateDraft(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, presentInvoice(invoice))
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req TransitionInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	invoice, err := h.service.Transition(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if h.observer != nil {
		h.observer.ObserveTransition("invoice", string(invoice.Status))
	}
	httpx.JSON(w, http.StatusOK, presentInvoice(invoice))
}

// presentInvoice augments the stored row with the read-time derived status.
func presentInvoice(inv *Invoice) map[string]interface{} {
	return presentAt(inv, time.Now())
}

func presentAt(inv *Invoice, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"invoice":          inv,
		"effective_status": inv.EffectiveStatus(now),
		"outstanding":      inv.Outstanding(),
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Path", "id must be a positive integer")
		return 0, false
	}
	return id, true
}
