package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// ShutdownTimeout bounds how long in-flight requests may take once Serve's
// context is cancelled.
const ShutdownTimeout = 30 * time.Second

// Serve listens on addr until ctx is cancelled, then shuts the server down
// gracefully. It returns nil after a clean shutdown.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "http server listening", slog.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http server forced to shutdown")
	}
	logger.InfoContext(ctx, "http server stopped")
	return nil
}
