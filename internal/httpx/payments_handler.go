package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nolet7/ecom-micro/internal/payments"
)

// ChargeProcessor is implemented by payments.Processor.
type ChargeProcessor interface {
	Charge(ctx context.Context, orderID string, amountCents int, token string) (*payments.Payment, error)
	Refund(ctx context.Context, token string) (*payments.Payment, error)
}

type PaymentsHandler struct {
	Processor ChargeProcessor
	Log       *zap.Logger
}

func (h *PaymentsHandler) Register(r *chi.Mux) {
	r.Post("/payments", h.charge)
	r.Post("/refunds", h.refund)
}

func (h *PaymentsHandler) charge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID     string `json:"order_id"`
		AmountCents *int   `json:"amount_cents"`
		Token       string `json:"idempotency_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.OrderID == "" || req.AmountCents == nil || *req.AmountCents < 0 || req.Token == "" {
		writeError(w, http.StatusBadRequest, "missing order_id, amount_cents or idempotency_token")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Processor.Charge(ctx, req.OrderID, *req.AmountCents, req.Token)
	if err != nil {
		h.Log.Error("charge failed", zap.String("order_id", req.OrderID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PaymentsHandler) refund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"idempotency_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "missing idempotency_token")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Processor.Refund(ctx, req.Token)
	switch {
	case errors.Is(err, payments.ErrNotFound):
		writeError(w, http.StatusNotFound, "payment not found")
	case errors.Is(err, payments.ErrNotRefundable):
		writeError(w, http.StatusConflict, "payment not refundable")
	case err != nil:
		h.Log.Error("refund failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal")
	default:
		writeJSON(w, http.StatusOK, p)
	}
}
