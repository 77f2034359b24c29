package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nolet7/ecom-micro/internal/inventory"
)

// StockEngine is implemented by inventory.Engine.
type StockEngine interface {
	Reserve(ctx context.Context, items []inventory.Item) error
	CheckAvailability(ctx context.Context, items []inventory.Item) ([]inventory.Shortage, error)
	SetStock(ctx context.Context, productID string, stock int) error
	Stock(ctx context.Context, productID string) (int, error)
	All(ctx context.Context) ([]inventory.ProductStock, error)
}

type InventoryHandler struct {
	Engine StockEngine
	Log    *zap.Logger
}

type itemsReq struct {
	Items []inventory.Item `json:"items"`
}

func (h *InventoryHandler) Register(r *chi.Mux) {
	r.Post("/inventory/reserve", h.reserve)
	r.Post("/inventory/check", h.check)
	r.Post("/inventory/seed", h.seed)
	r.Get("/inventory", h.listStock)
	r.Get("/inventory/{id}", h.getStock)
}

func (h *InventoryHandler) listStock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	all, err := h.Engine.All(ctx)
	if err != nil {
		h.Log.Error("list stock failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (h *InventoryHandler) reserve(w http.ResponseWriter, r *http.Request) {
	var req itemsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	err := h.Engine.Reserve(ctx, req.Items)
	var shortage *inventory.ShortageError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	case errors.Is(err, inventory.ErrBadItem):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &shortage):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "out_of_stock",
			"product_id": shortage.ProductID,
			"available":  shortage.Available,
			"required":   shortage.Required,
		})
	default:
		h.Log.Error("reserve failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal")
	}
}

func (h *InventoryHandler) check(w http.ResponseWriter, r *http.Request) {
	var req itemsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	missing, err := h.Engine.CheckAvailability(ctx, req.Items)
	if errors.Is(err, inventory.ErrBadItem) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.Log.Error("availability check failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	if len(missing) > 0 {
		writeJSON(w, http.StatusConflict, map[string]any{"ok": false, "missing": missing})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *InventoryHandler) seed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"product_id"`
		Stock     *int   `json:"stock"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ProductID == "" || req.Stock == nil || *req.Stock < 0 {
		writeError(w, http.StatusBadRequest, "missing product_id or stock")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Engine.SetStock(ctx, req.ProductID, *req.Stock); err != nil {
		h.Log.Error("seed failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *InventoryHandler) getStock(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	stock, err := h.Engine.Stock(ctx, productID)
	if errors.Is(err, inventory.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "not_found", "product_id": productID,
		})
		return
	}
	if err != nil {
		h.Log.Error("get stock failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product_id": productID, "stock": stock})
}
