package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neocommercepay/commerce-system/shared/apperrors"
	"github.com/neocommercepay/commerce-system/shared/correlation"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", apperrors.NotFound("order_not_found", "order 1 not found"), http.StatusNotFound, "order_not_found"},
		{"state conflict", apperrors.BusinessRule("cannot_cancel_fulfilled", "cannot cancel a fulfilled order"), http.StatusConflict, "cannot_cancel_fulfilled"},
		{"insufficient stock", errors.Wrap(apperrors.BusinessRule(CodeInsufficientStock, "insufficient stock"), "decrement"), http.StatusUnprocessableEntity, CodeInsufficientStock},
		{"invalid", apperrors.Invalid(errors.New("eof"), "invalid request body"), http.StatusBadRequest, "invalid"},
		{"unclassified", errors.New("pq: connection refused"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()

			WriteError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Code)
			assert.NotContains(t, body.Error, "pq:")
		})
	}
}

func TestNewRouter_HealthAndCorrelation(t *testing.T) {
	r := NewRouter(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(correlation.Header, "corr-9")
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "corr-9", rec.Header().Get(correlation.Header))
	assert.JSONEq(t, `{"status":"UP"}`, rec.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	var v struct{ Name string }
	err := DecodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{")), &v)
	assert.Equal(t, apperrors.KindInvalid, apperrors.KindOf(err))
}
