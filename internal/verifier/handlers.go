package verifier

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rakhadjo/payverify/internal/common"
	"github.com/rakhadjo/payverify/internal/events"
	"github.com/rakhadjo/payverify/internal/intent"
)

var validate = validator.New()

// Handler exposes the HTTP endpoint settling claimed payment completions.
type Handler struct {
	Svc    *Service
	Guard  *ReplayGuard
	Events *events.Bus
}

type verifyReq struct {
	OrderID   string `json:"orderId" validate:"required"`
	PaymentID string `json:"paymentId" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

type verifyResp struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
}

// Verify handles POST /v1/orders/{orderId}/verify style completion claims.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "VERIFIER_NOT_CONFIGURED", "verification unavailable", nil)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}

	var req verifyReq
	if err := common.DecodeStrict(bytes.NewReader(body), &req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid verify request", common.ValidationDetails(err))
		return
	}
	// The path names the order being verified; a body claiming a different
	// order must not be able to settle it.
	if pathID := chi.URLParam(r, "orderId"); pathID != "" && pathID != req.OrderID {
		common.JSONError(w, http.StatusBadRequest, "ORDER_ID_MISMATCH", "body orderId does not match path", nil)
		return
	}

	seen, err := h.Guard.Seen(r.Context(), body)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", err.Error(), nil)
		return
	}
	if seen {
		common.JSONError(w, http.StatusConflict, "REPLAY", "duplicate verification payload", nil)
		return
	}

	res, err := h.Svc.Verify(r.Context(), req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, intent.ErrNotFound):
			common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
		case errors.Is(err, intent.ErrInvalidState):
			if h.Events != nil {
				_, _ = h.Events.Emit(r.Context(), events.TopicReplayRejected, req.OrderID, map[string]string{
					"paymentId": req.PaymentID,
				})
			}
			common.JSONError(w, http.StatusConflict, "INVALID_STATE", "order is not awaiting verification", nil)
		default:
			common.JSONError(w, http.StatusInternalServerError, "VERIFY_FAILED", err.Error(), nil)
		}
		return
	}

	resp := verifyResp{OrderID: res.OrderID, PaymentID: res.PaymentID}
	if res.Verified {
		resp.Status = string(intent.StatusVerified)
		if h.Events != nil {
			_, _ = h.Events.Emit(r.Context(), events.TopicOrderVerified, res.OrderID, resp)
		}
	} else {
		resp.Status = string(intent.StatusFailed)
		if h.Events != nil {
			_, _ = h.Events.Emit(r.Context(), events.TopicPaymentFailed, res.OrderID, resp)
		}
	}
	common.JSON(w, http.StatusOK, resp)
}
