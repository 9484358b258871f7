package payments

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/paintdesk/paintdesk/internal/platform/httpx"
)

// PaymentObserver counts recorded payments. Satisfied by the observability
// metrics registry.
type PaymentObserver interface {
	ObservePayment()
}

// Handler exposes payment ledger endpoints. Every mutating call returns
// the refreshed parent invoice.
type Handler struct {
	service  *Service
	validate *validator.Validate
	logger   *slog.Logger
	observer PaymentObserver
}

// NewHandler constructs a Handler instance. observer may be nil.
func NewHandler(service *Service, logger *slog.Logger, observer PaymentObserver) *Handler {
	return &Handler{service: service, validate: validator.New(), logger: logger, observer: observer}
}

// MountRoutes attaches payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.record)
	r.Patch("/{id}", h.update)
	r.Delete("/{id}", h.remove)
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" && req.IdempotencyKey == nil {
		req.IdempotencyKey = &key
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	invoice, err := h.service.Record(r.Context(), req)
	if err != nil {
		h.logger.Error("record payment", slog.Int64("invoice_id", req.InvoiceID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if h.observer != nil {
		h.observer.ObservePayment()
	}
	httpx.JSON(w, http.StatusCreated, invoice)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := strconv.ParseInt(r.URL.Query().Get("invoice_id"), 10, 64)
	if err != nil || invoiceID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "invoice_id must be a positive integer")
		return
	}
	items, err := h.service.ListByInvoice(r.Context(), invoiceID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdatePaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	invoice, err := h.service.UpdatePayment(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	invoice, err := h.service.DeletePayment(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Path", "id must be a positive integer")
		return 0, false
	}
	return id, true
}
