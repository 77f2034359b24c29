package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nolet7/ecom-micro/internal/orders"
	"github.com/nolet7/ecom-micro/internal/redisx"
)

// OrderPlacer is implemented by orders.Saga.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, userID string, items []orders.ItemQty, token string) (*orders.Order, error)
}

// OrderGetter is implemented by orders.Repo.
type OrderGetter interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
}

type OrdersHandler struct {
	Saga  OrderPlacer
	Repo  OrderGetter
	Redis *redis.Client
	Log   *zap.Logger
}

type createOrderReq struct {
	UserID string           `json:"user_id"`
	Items  []orders.ItemQty `json:"items"`
	Token  string           `json:"idempotency_token"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 12*time.Second)
	defer cancel()

	// Fast-path replay via Redis. The orders table stays authoritative:
	// a hit only tells us which order to read back.
	if req.Token != "" {
		idemKey := fmt.Sprintf(redisx.KeyIdemOrderCreate, req.Token)
		if orderID, err := h.Redis.Get(ctx, idemKey).Result(); err == nil && orderID != "" {
			if o, err := h.Repo.Get(ctx, orderID); err == nil {
				writeJSON(w, http.StatusOK, o)
				return
			}
		}
	}

	o, err := h.Saga.PlaceOrder(ctx, req.UserID, req.Items, req.Token)
	if err != nil {
		h.respondSagaError(w, err)
		return
	}

	idemKey := fmt.Sprintf(redisx.KeyIdemOrderCreate, o.Token)
	_ = h.Redis.Set(ctx, idemKey, o.ID, redisx.TTLIdempotency).Err()
	h.cacheOrder(ctx, o)

	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) respondSagaError(w http.ResponseWriter, err error) {
	var unknown *orders.ErrProductUnknown
	var declined *orders.ErrPaymentDeclined
	var oos *orders.ErrOutOfStock

	switch {
	case errors.Is(err, orders.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &unknown):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "product_not_found", "product_id": unknown.ProductID,
		})
	case errors.Is(err, orders.ErrPricingUnavailable):
		writeError(w, http.StatusBadGateway, "pricing_unavailable")
	case errors.As(err, &declined):
		writeJSON(w, http.StatusPaymentRequired, map[string]string{
			"error": "payment_failed", "order_id": declined.OrderID,
		})
	case errors.As(err, &oos):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "out_of_stock", "order_id": oos.OrderID,
		})
	default:
		h.Log.Error("place order failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal")
	}
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(s))
		return
	}

	o, err := h.Repo.Get(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		h.Log.Error("get order failed", zap.String("order_id", orderID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	h.cacheOrder(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

// cacheOrder caches terminal orders only. A PENDING order mid-saga must
// never be served stale after it resolves.
func (h *OrdersHandler) cacheOrder(ctx context.Context, o *orders.Order) {
	if !o.Status.Terminal() {
		return
	}
	b, err := json.Marshal(o)
	if err != nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}
