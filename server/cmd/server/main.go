package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/poolchem/poolchem/pkg/strip"
	"github.com/poolchem/poolchem/server/internal/api"
	"github.com/poolchem/poolchem/server/internal/bot"
	"github.com/poolchem/poolchem/server/internal/config"
	"github.com/poolchem/poolchem/server/internal/metrics"
	"github.com/poolchem/poolchem/server/internal/service"
	"github.com/poolchem/poolchem/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to config file; built-in defaults are used when empty")
	uiDir := flag.String("ui-dir", "", "serve static UI files from this directory; leave empty to disable")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("poolchem-server starting", "config", *configPath)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			slog.Error("failed to load config", "err", err)
			os.Exit(1)
		}
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"products", len(cfg.Dosing.Products),
		"default_product", cfg.Dosing.Defaults.Product,
		"rules", len(cfg.Advisory.Rules),
		"bot", cfg.Bot.Enabled(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	reader := strip.NewRandomReader(cfg.Strip.Seed, cfg.Strip.MaxUploadBytes)

	svc, err := service.New(cfg, reader, m)
	if err != nil {
		slog.Error("failed to build calculator", "err", err)
		os.Exit(1)
	}

	// Hot-reload swaps the catalog, defaults and advisory rules. Listener
	// settings and the bot token take effect on restart only.
	if *configPath != "" {
		go func() {
			if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
				if err := svc.Apply(updated); err != nil {
					slog.Error("config reload rejected", "err", err)
				}
			}); err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	// WebSocket hub: calculator sessions, catalog pushed on reload.
	hub := ws.New(svc, m, cfg.Server.PingInterval)
	go hub.Run(ctx)

	if cfg.Bot.Enabled() {
		b, err := bot.New(cfg.Bot.Token(), svc, cfg.Bot.Debug)
		if err != nil {
			slog.Error("telegram bot disabled", "err", err)
		} else {
			go b.Run(ctx)
		}
	}

	// Combined HTTP server: REST API, WebSocket hub and metrics on HTTPPort.
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.New(svc, m, cfg.Strip.MaxUploadBytes))
	httpMux.Handle("/ws/calc", hub)
	httpMux.Handle("/metrics", m.Handler())

	// The "/" catch-all serves index.html for any unknown path (SPA routing).
	if *uiDir != "" {
		fs := http.FileServer(http.Dir(*uiDir))
		httpMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			path := *uiDir + r.URL.Path
			if _, err := os.Stat(path); os.IsNotExist(err) {
				http.ServeFile(w, r, *uiDir+"/index.html")
				return
			}
			fs.ServeHTTP(w, r)
		})
		slog.Info("serving UI static files", "dir", *uiDir)
	}

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: httpMux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("poolchem-server shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer done()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "err", err)
	}
}
