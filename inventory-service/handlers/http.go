package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/neocommercepay/commerce-system/inventory-service/application"
	"github.com/neocommercepay/commerce-system/shared/httpx"
)

// InventoryHandlers contains inventory HTTP handlers
type InventoryHandlers struct {
	createInventory *application.CreateInventory
	getInventory    *application.GetInventory
	decrementStock  *application.DecrementStock
	incrementStock  *application.IncrementStock
}

func NewInventoryHandlers(
	createInventory *application.CreateInventory,
	getInventory *application.GetInventory,
	decrementStock *application.DecrementStock,
	incrementStock *application.IncrementStock,
) *InventoryHandlers {
	return &InventoryHandlers{
		createInventory: createInventory,
		getInventory:    getInventory,
		decrementStock:  decrementStock,
		incrementStock:  incrementStock,
	}
}

// CreateInventory handles inventory creation requests
func (h *InventoryHandlers) CreateInventory(w http.ResponseWriter, r *http.Request) {
	var cmd application.CreateInventoryCommand
	if err := httpx.DecodeJSON(r, &cmd); err != nil {
		httpx.WriteError(w, err)
		return
	}

	response, err := h.createInventory.Execute(r.Context(), &cmd)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, response)
}

// GetInventory handles stock lookups by product
func (h *InventoryHandlers) GetInventory(w http.ResponseWriter, r *http.Request) {
	response, err := h.getInventory.Execute(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, response)
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *InventoryHandlers) DecrementStock(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}

	response, err := h.decrementStock.Execute(r.Context(), &application.AdjustStockCommand{
		ProductID: chi.URLParam(r, "productId"),
		Quantity:  req.Quantity,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, response)
}

func (h *InventoryHandlers) IncrementStock(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}

	response, err := h.incrementStock.Execute(r.Context(), &application.AdjustStockCommand{
		ProductID: chi.URLParam(r, "productId"),
		Quantity:  req.Quantity,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, response)
}

// RegisterRoutes registers inventory routes
func (h *InventoryHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/api/inventory", func(r chi.Router) {
		r.Post("/", h.CreateInventory)
		r.Get("/{productId}", h.GetInventory)
		r.Post("/{productId}/decrement", h.DecrementStock)
		r.Post("/{productId}/increment", h.IncrementStock)
	})
}
