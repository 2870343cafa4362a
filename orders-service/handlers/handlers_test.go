package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neocommercepay/commerce-system/orders-service/application"
	"github.com/neocommercepay/commerce-system/orders-service/infrastructure"
	"github.com/neocommercepay/commerce-system/shared/apperrors"
	"github.com/neocommercepay/commerce-system/shared/clock"
	"github.com/neocommercepay/commerce-system/shared/events"
	"github.com/neocommercepay/commerce-system/shared/httpx"
	sharedinfra "github.com/neocommercepay/commerce-system/shared/infrastructure"
	"github.com/neocommercepay/commerce-system/shared/models"
	"github.com/neocommercepay/commerce-system/shared/saga"
)

type testService struct {
	bus    *sharedinfra.InMemoryBus
	router http.Handler
	events *saga.EventRouter
}

func newTestService(t *testing.T) *testService {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := infrastructure.NewMemoryOrderRepository()
	uow := sharedinfra.NewMemoryUnitOfWork()
	bus := sharedinfra.NewInMemoryBus(3, logger)
	clk := clock.NewStepping(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), time.Second)

	update := application.NewUpdateOrderStatus(repo, uow, bus, clk, logger)
	cancel := application.NewCancelOrder(repo, uow, bus, clk, logger)
	orderHandlers := NewOrderHandlers(
		application.NewCreateOrder(repo, uow, bus, clk, logger),
		update,
		cancel,
		application.NewGetOrder(repo),
		application.NewListOrders(repo),
		application.NewGetOrderHistory(repo),
	)

	router := httpx.NewRouter(nil, logger)
	orderHandlers.RegisterRoutes(router)

	return &testService{
		bus:    bus,
		router: router,
		events: NewOrderEventHandlers(update, cancel).Register(saga.NewEventRouter(saga.OrderService, logger)),
	}
}

func (s *testService) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Correlation-ID", "corr-http")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	return rec, decoded
}

const createBody = `{"userId":"user-1","items":[{"productId":"sku-1","quantity":2,"price":"12.50"}]}`

func TestOrderHandlers_CreateAndGet(t *testing.T) {
	s := newTestService(t)

	rec, body := s.do(t, http.MethodPost, "/api/orders", createBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "corr-http", rec.Header().Get("X-Correlation-ID"))
	assert.Equal(t, "PENDING", body["status"])
	assert.True(t, models.MustAmount(body["totalAmount"].(string)).Equal(models.MustAmount("25.00")))

	created := s.bus.PublishedOn(events.TopicOrderCreated)
	require.Len(t, created, 1)
	assert.Equal(t, "corr-http", created[0].CorrelationID)

	id := body["id"].(string)
	rec, body = s.do(t, http.MethodGet, "/api/orders/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, body["id"])
}

func TestOrderHandlers_ErrorMapping(t *testing.T) {
	s := newTestService(t)
	_, created := s.do(t, http.MethodPost, "/api/orders", createBody)
	id := created["id"].(string)

	rec, _ := s.do(t, http.MethodPut, "/api/orders/"+id+"/status", `{"status":"DELIVERED"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"malformed body", http.MethodPost, "/api/orders", `{`, http.StatusBadRequest, "invalid"},
		{"empty items", http.MethodPost, "/api/orders", `{"userId":"u","items":[]}`, http.StatusBadRequest, "invalid_order"},
		{"unknown order", http.MethodGet, "/api/orders/" + models.GenerateUUID().String(), "", http.StatusNotFound, "order_not_found"},
		{"cancel delivered", http.MethodPost, "/api/orders/" + id + "/cancel", "", http.StatusConflict, "cannot_cancel_fulfilled"},
		{"bad status", http.MethodPut, "/api/orders/" + id + "/status", `{"status":"LOST"}`, http.StatusBadRequest, "invalid_status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestOrderHandlers_ListAndHistory(t *testing.T) {
	s := newTestService(t)
	_, created := s.do(t, http.MethodPost, "/api/orders", createBody)
	id := created["id"].(string)
	s.do(t, http.MethodPost, "/api/orders/"+id+"/cancel", `{"reason":"changed my mind"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/orders?status=CANCELLED", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "changed my mind", list[0]["cancelReason"])

	req = httptest.NewRequest(http.MethodGet, "/api/orders/"+id+"/history", nil)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 2)
	assert.Nil(t, history[0]["oldStatus"])
	assert.Equal(t, "CANCELLED", history[1]["newStatus"])
}

func TestOrderEventHandlers(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, created := s.do(t, http.MethodPost, "/api/orders", createBody)
	paidID := models.ID(created["id"].(string))
	_, created = s.do(t, http.MethodPost, "/api/orders", createBody)
	failedID := models.ID(created["id"].(string))

	now := time.Now()
	completed := events.NewEvent(paidID, events.TopicPaymentCompleted, events.PaymentCompleted{OrderID: paidID, TransactionID: "tx-1"}, now)
	require.NoError(t, s.events.Handle(ctx, completed))
	require.NoError(t, s.events.Handle(ctx, completed), "redelivery is a no-op")

	failed := events.NewEvent(failedID, events.TopicPaymentFailed, events.PaymentFailed{OrderID: failedID, Reason: "Payment processor declined"}, now)
	require.NoError(t, s.events.Handle(ctx, failed))

	_, body := s.do(t, http.MethodGet, "/api/orders/"+paidID.String(), "")
	assert.Equal(t, "PAID", body["status"])
	_, body = s.do(t, http.MethodGet, "/api/orders/"+failedID.String(), "")
	assert.Equal(t, "CANCELLED", body["status"])
	assert.Equal(t, "payment failed: Payment processor declined", body["cancelReason"])

	assert.Len(t, s.bus.PublishedOn(events.TopicOrderUpdated), 1)
	cancelled := s.bus.PublishedOn(events.TopicOrderCancelled)
	require.Len(t, cancelled, 1)

	unknown := models.GenerateUUID()
	err := s.events.Handle(ctx, events.NewEvent(unknown, events.TopicPaymentCompleted, events.PaymentCompleted{OrderID: unknown}, now))
	assert.Equal(t, events.OutcomeDeadLetter, events.OutcomeOf(err))
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}
