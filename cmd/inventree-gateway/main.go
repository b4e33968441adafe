// Package main boots the InvenTree stock gateway HTTP server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/makerhaus/inventree-gateway/internal/config"
	httpapi "github.com/makerhaus/inventree-gateway/internal/http"
	"github.com/makerhaus/inventree-gateway/internal/inventree"
	"github.com/makerhaus/inventree-gateway/internal/obs"
	"github.com/makerhaus/inventree-gateway/internal/stock"
)

func main() {
	obs.InitLogger()

	cfg, err := config.Load()
	if err != nil {
		obs.Logger.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		obs.Logger.Error("config_invalid", "error", err)
		os.Exit(1)
	}
	obs.Logger.Info("gateway_starting",
		"upstream_url", cfg.UpstreamURL,
		"site_domain", cfg.SiteDomain,
		"http_addr", cfg.HTTPAddr,
	)

	client, err := inventree.New(cfg.UpstreamURL, cfg.Token, cfg.SiteDomain, cfg.UpstreamTimeout)
	if err != nil {
		obs.Logger.Error("client_init_failed", "error", err)
		os.Exit(1)
	}
	svc := stock.NewService(obs.Logger, client)
	app := httpapi.NewApp(cfg, obs.Logger, svc, client)
	mux := httpapi.NewRouter(app)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		obs.Logger.Info("http_listen", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obs.Logger.Error("http_server_error", "error", err)
			os.Exit(1)
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigc
	obs.Logger.Info("shutdown_signal", "signal", s.String())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		obs.Logger.Error("http_shutdown_error", "error", err)
	}
	obs.Logger.Info("gateway_stopped")
}
