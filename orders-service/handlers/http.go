package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/neocommercepay/commerce-system/orders-service/application"
	"github.com/neocommercepay/commerce-system/shared/httpx"
	"github.com/neocommercepay/commerce-system/shared/models"
)

// OrderHandlers contains order HTTP handlers
type OrderHandlers struct {
	createOrder       *application.CreateOrder
	updateOrderStatus *application.UpdateOrderStatus
	cancelOrder       *application.CancelOrder
	getOrder          *application.GetOrder
	listOrders        *application.ListOrders
	getOrderHistory   *application.GetOrderHistory
}

func NewOrderHandlers(
	createOrder *application.CreateOrder,
	updateOrderStatus *application.UpdateOrderStatus,
	cancelOrder *application.CancelOrder,
	getOrder *application.GetOrder,
	listOrders *application.ListOrders,
	getOrderHistory *application.GetOrderHistory,
) *OrderHandlers {
	return &OrderHandlers{
		createOrder:       createOrder,
		updateOrderStatus: updateOrderStatus,
		cancelOrder:       cancelOrder,
		getOrder:          getOrder,
		listOrders:        listOrders,
		getOrderHistory:   getOrderHistory,
	}
}

// CreateOrder handles order placement requests
func (h *OrderHandlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var cmd application.CreateOrderCommand
	if err := httpx.DecodeJSON(r, &cmd); err != nil {
		httpx.WriteError(w, err)
		return
	}

	response, err := h.createOrder.Execute(r.Context(), &cmd)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, response)
}

// GetOrder handles order retrieval requests
func (h *OrderHandlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	response, err := h.getOrder.Execute(r.Context(), models.ID(chi.URLParam(r, "id")))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, response)
}

func (h *OrderHandlers) ListOrdersByUser(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, application.ListOrdersQuery{UserID: chi.URLParam(r, "userId")})
}

func (h *OrderHandlers) ListOrdersByStatus(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, application.ListOrdersQuery{Status: r.URL.Query().Get("status")})
}

func (h *OrderHandlers) list(w http.ResponseWriter, r *http.Request, query application.ListOrdersQuery) {
	response, err := h.listOrders.Execute(r.Context(), query)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, response)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus handles status change requests
func (h *OrderHandlers) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}

	response, err := h.updateOrderStatus.Execute(r.Context(), &application.UpdateOrderStatusCommand{
		OrderID: models.ID(chi.URLParam(r, "id")),
		Status:  req.Status,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, response)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// CancelOrder handles cancellation requests. The body is optional.
func (h *OrderHandlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, err)
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "cancelled by user"
	}

	response, err := h.cancelOrder.Execute(r.Context(), &application.CancelOrderCommand{
		OrderID: models.ID(chi.URLParam(r, "id")),
		Reason:  req.Reason,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, response)
}

func (h *OrderHandlers) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	response, err := h.getOrderHistory.Execute(r.Context(), models.ID(chi.URLParam(r, "id")))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, response)
}

// RegisterRoutes registers order routes
func (h *OrderHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrder)
		r.Get("/", h.ListOrdersByStatus)
		r.Get("/user/{userId}", h.ListOrdersByUser)
		r.Get("/{id}", h.GetOrder)
		r.Put("/{id}/status", h.UpdateOrderStatus)
		r.Post("/{id}/cancel", h.CancelOrder)
		r.Get("/{id}/history", h.GetOrderHistory)
	})
}
