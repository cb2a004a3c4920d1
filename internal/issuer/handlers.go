package issuer

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rakhadjo/payverify/internal/common"
	"github.com/rakhadjo/payverify/internal/events"
	"github.com/rakhadjo/payverify/internal/intent"
)

var validate = validator.New()

// Handler exposes HTTP endpoints for order issuance and lookup.
type Handler struct {
	Svc    *Service
	Events *events.Bus
}

type createOrderReq struct {
	AmountMinorUnits int64  `json:"amountMinorUnits" validate:"required,gt=0"`
	Currency         string `json:"currency" validate:"required,iso4217"`
}

// Create handles POST /v1/orders.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "ISSUER_NOT_CONFIGURED", "order issuance unavailable", nil)
		return
	}
	var req createOrderReq
	if err := common.DecodeStrict(r.Body, &req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid create order request", common.ValidationDetails(err))
		return
	}
	view, err := h.Svc.CreateOrder(r.Context(), req.AmountMinorUnits, strings.TrimSpace(req.Currency))
	if err != nil {
		switch {
		case errors.Is(err, intent.ErrInvalidAmount):
			common.JSONError(w, http.StatusBadRequest, "INVALID_AMOUNT", err.Error(), nil)
		case errors.Is(err, intent.ErrInvalidCurrency):
			common.JSONError(w, http.StatusBadRequest, "INVALID_CURRENCY", err.Error(), nil)
		default:
			common.JSONError(w, http.StatusInternalServerError, "ORDER_CREATE_FAILED", err.Error(), nil)
		}
		return
	}
	if h.Events != nil {
		_, _ = h.Events.Emit(r.Context(), events.TopicOrderCreated, view.OrderID, view)
	}
	common.JSON(w, http.StatusCreated, view)
}

// Get handles GET /v1/orders/{orderId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "ISSUER_NOT_CONFIGURED", "order issuance unavailable", nil)
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "orderId is required", nil)
		return
	}
	view, err := h.Svc.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, intent.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "ORDER_FETCH_ERROR", err.Error(), nil)
		return
	}
	common.JSON(w, http.StatusOK, view)
}
