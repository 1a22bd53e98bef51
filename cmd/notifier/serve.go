package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sapliy/subscription-notifier/pkg/observability"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API: on-demand triggers, audit queries and gateway webhooks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		shutdown, err := observability.InitTracer(ctx, observability.TracerConfig{
			ServiceName:    "subscription-notifier",
			ServiceVersion: "0.1.0",
			Endpoint:       a.cfg.TracingEndpoint,
			Environment:    a.cfg.Environment,
		})
		if err != nil {
			a.log.Warn("tracer initialization failed, continuing without tracing", "error", err)
		} else {
			defer shutdown(context.Background())
		}

		h := &NotifierHandler{app: a}

		r := mux.NewRouter()
		r.HandleFunc("/api/runs", h.TriggerRun).Methods(http.MethodPost)
		r.HandleFunc("/api/notifications", h.ListNotifications).Methods(http.MethodGet)
		r.HandleFunc("/api/notifications/{id}", h.GetNotification).Methods(http.MethodGet)
		r.HandleFunc("/api/notifications/{id}/resend", h.ResendNotification).Methods(http.MethodPost)
		r.HandleFunc("/api/notifications/renewal", h.SendRenewal).Methods(http.MethodPost)
		r.HandleFunc("/api/webhooks/gateway", h.GatewayWebhook).Methods(http.MethodPost)
		r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
		r.Handle("/metrics", promhttp.Handler())

		addr := serveAddr
		if addr == "" {
			addr = a.cfg.HTTPAddr
		}

		server := &http.Server{
			Addr:              addr,
			Handler:           otelhttp.NewHandler(r, "notifier-http"),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			a.log.Info("HTTP server starting", "addr", addr)
			errCh <- server.ListenAndServe()
		}()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case sig := <-stop:
			a.log.Info("shutting down", "signal", sig.String())
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides http_addr config)")
}
