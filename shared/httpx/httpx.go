// Package httpx is the thin HTTP layer shared by the services: router
// skeleton, JSON bodies and the error-to-status mapping.
package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/neocommercepay/commerce-system/shared/apperrors"
	"github.com/neocommercepay/commerce-system/shared/correlation"
	"github.com/neocommercepay/commerce-system/shared/telemetry"
)

// CodeInsufficientStock is answered with 422 instead of 409.
const CodeInsufficientStock = "insufficient_stock"

// NewRouter returns a chi router with the common middleware stack plus
// /health and /metrics. tel may be nil.
func NewRouter(tel *telemetry.Telemetry, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(correlation.Middleware)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if tel != nil {
		r.Use(telemetry.Middleware(tel))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "UP"})
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to a status code and a JSON body {error, code}.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	msg := err.Error()
	code := apperrors.CodeOf(err)
	if status == http.StatusInternalServerError {
		msg = "internal error"
		code = "internal_error"
	}
	WriteJSON(w, status, errorResponse{Error: msg, Code: code})
}

// StatusOf returns the HTTP status for err.
func StatusOf(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindBusinessRule:
		if apperrors.CodeOf(err) == CodeInsufficientStock {
			return http.StatusUnprocessableEntity
		}
		return http.StatusConflict
	case apperrors.KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSON reads the request body into v.
func DecodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.Invalid(err, "invalid request body")
	}
	return nil
}
