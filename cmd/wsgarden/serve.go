package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"github.com/lk2023060901/wsgarden/application"
	"github.com/lk2023060901/wsgarden/internal/container"
	"github.com/lk2023060901/wsgarden/pkg/log"
	"github.com/lk2023060901/wsgarden/pkg/metrics"
	"github.com/lk2023060901/wsgarden/pkg/util/conc"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath, addr)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (default ./config.yaml)")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address")

	return cmd
}

func serve(ctx context.Context, configPath, addr string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := application.New(application.WithConfigPath(configPath))
	if err := app.Run(); err != nil {
		return err
	}
	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		log.Info(fmt.Sprintf(format, args...))
	}))
	if err != nil {
		log.Warn("set GOMAXPROCS failed", zap.Error(err))
	}
	defer undo()

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	c := app.Container()
	if err := c.AddEndpoint(echoEndpoint{}); err != nil {
		return err
	}
	if err := c.DeploymentComplete(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(c, registry),
		ReadHeaderTimeout: 10 * time.Second,
	}
	listening := conc.Go(func() (struct{}, error) {
		log.Info("wsgarden listening", zap.String("addr", addr))
		return struct{}{}, srv.ListenAndServe()
	})

	select {
	case <-listening.Inner():
		if err := listening.Err(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.Shutdown()
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown failed", zap.Error(err))
	}
	return app.Shutdown()
}

func newRouter(c *container.Container, gatherer prometheus.Gatherer) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if c.IsClosed() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/sessions", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "%d\n", len(c.OpenSessions()))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	// GET 查询、PUT {"level":"debug"} 调整全局日志级别
	r.Handle("/loglevel", log.Level())
	r.Handle("/ws/*", c)
	return r
}
