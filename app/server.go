package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crm-clients/handlers"
	"crm-clients/logger"
	"crm-clients/middleware"
	"crm-clients/monitoring"
	"crm-clients/notify"
)

// NewRouter builds the gin engine serving the form UI, the JSON API and /metrics.
func NewRouter(a *App, feed notify.Feed, log *zap.Logger) (*gin.Engine, error) {
	if a.Config.App.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := handlers.RegisterValidators(); err != nil {
		return nil, err
	}
	monitoring.Init()

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestLogger(log),
		middleware.SentryMiddleware(),
		middleware.ErrorHandler(),
		middleware.PrometheusMetrics(),
	)

	handlers.NewClientHandler(a.Form, feed, a.Store).RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(monitoring.Handler()))
	return router, nil
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.From(ctx).Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.From(ctx).Info("shutting down http server")
	return srv.Shutdown(shutdownCtx)
}
