package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/neocommercepay/commerce-system/payments-service/application"
	"github.com/neocommercepay/commerce-system/shared/httpx"
	"github.com/neocommercepay/commerce-system/shared/models"
)

// IdempotencyKeyHeader takes precedence over the idempotencyKey body field.
const IdempotencyKeyHeader = "Idempotency-Key"

// PaymentHandlers contains payment HTTP handlers
type PaymentHandlers struct {
	initiatePayment *application.InitiatePayment
	processPayment  *application.ProcessPayment
	refundPayment   *application.RefundPayment
	getPayment      *application.GetPayment
}

// NewPaymentHandlers creates new payment handlers
func NewPaymentHandlers(
	initiatePayment *application.InitiatePayment,
	processPayment *application.ProcessPayment,
	refundPayment *application.RefundPayment,
	getPayment *application.GetPayment,
) *PaymentHandlers {
	return &PaymentHandlers{
		initiatePayment: initiatePayment,
		processPayment:  processPayment,
		refundPayment:   refundPayment,
		getPayment:      getPayment,
	}
}

// InitiatePayment handles payment initiation requests
func (h *PaymentHandlers) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var cmd application.InitiatePaymentCommand
	if err := httpx.DecodeJSON(r, &cmd); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if key := r.Header.Get(IdempotencyKeyHeader); key != "" {
		cmd.IdempotencyKey = key
	}

	response, err := h.initiatePayment.Execute(r.Context(), &cmd)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, response)
}

// ProcessPayment handles charge requests for initiated payments
func (h *PaymentHandlers) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	response, err := h.processPayment.Execute(r.Context(), &application.ProcessPaymentCommand{
		PaymentID: models.ID(chi.URLParam(r, "id")),
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, response)
}

type refundRequest struct {
	Reason string `json:"reason"`
}

// RefundPayment handles refund requests
func (h *PaymentHandlers) RefundPayment(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}

	response, err := h.refundPayment.Execute(r.Context(), &application.RefundPaymentCommand{
		PaymentID: models.ID(chi.URLParam(r, "id")),
		Reason:    req.Reason,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, response)
}

// GetPayment handles payment retrieval requests
func (h *PaymentHandlers) GetPayment(w http.ResponseWriter, r *http.Request) {
	response, err := h.getPayment.Execute(r.Context(), models.ID(chi.URLParam(r, "id")))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, response)
}

func (h *PaymentHandlers) GetPaymentByOrder(w http.ResponseWriter, r *http.Request) {
	response, err := h.getPayment.ByOrder(r.Context(), models.ID(chi.URLParam(r, "orderId")))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, response)
}

func (h *PaymentHandlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	response, err := h.getPayment.Transactions(r.Context(), models.ID(chi.URLParam(r, "id")))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, response)
}

func (h *PaymentHandlers) ListAuditLog(w http.ResponseWriter, r *http.Request) {
	response, err := h.getPayment.AuditLog(r.Context(), models.ID(chi.URLParam(r, "id")))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, response)
}

// RegisterRoutes registers payment routes
func (h *PaymentHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/api/payments", func(r chi.Router) {
		r.Post("/initiate", h.InitiatePayment)
		r.Get("/order/{orderId}", h.GetPaymentByOrder)
		r.Post("/{id}/process", h.ProcessPayment)
		r.Post("/{id}/refund", h.RefundPayment)
		r.Get("/{id}/status", h.GetPayment)
		r.Get("/{id}/transactions", h.ListTransactions)
		r.Get("/{id}/audit", h.ListAuditLog)
	})
}
