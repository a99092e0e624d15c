// main.go is the entry point for the pocketredis server. It layers
// configuration from flags, environment, and an optional YAML file, wires
// up the shared database and Prometheus registry, and runs the accept
// loop until a signal starts a graceful shutdown. A fatal accept failure
// exits with status 1 without draining.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pocketredis.dev/pocketredis/internal/database"
	"pocketredis.dev/pocketredis/internal/metrics"
	"pocketredis.dev/pocketredis/internal/server"
	"pocketredis.dev/pocketredis/internal/shutdown"
	"pocketredis.dev/pocketredis/pkg/config"
)

const metricsShutdownTimeout = 2 * time.Second

func main() {
	cfg := config.DefaultServerConfig()

	var configFile string
	port := flag.Int("port", cfg.Server.Port, "TCP server port")
	maxConn := flag.Int("max-conn", cfg.Server.MaxConnections, "Maximum concurrent connections")
	idleTimeout := flag.Duration("idle-timeout", cfg.Server.IdleTimeout, "Idle client connection timeout (0 for no timeout)")
	shutdownTimeout := flag.Duration("shutdown-timeout", cfg.Server.ShutdownTimeout, "Graceful shutdown timeout")
	logLevel := flag.String("log-level", cfg.Log.Level, "Log level: debug, info, warn, error")
	metricsAddr := flag.String("metrics-addr", cfg.Metrics.Address, "Address to serve Prometheus metrics on (empty disables)")
	flag.StringVar(&configFile, "config", "", "Path to a YAML config file")
	flag.Parse()

	loader := config.NewLoader(configFile)
	if err := loader.Load(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	flagOverrides := map[string]any{}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			flagOverrides["server.port"] = *port
		case "max-conn":
			flagOverrides["server.max_connections"] = *maxConn
		case "idle-timeout":
			flagOverrides["server.idle_timeout"] = idleTimeout.String()
		case "shutdown-timeout":
			flagOverrides["server.shutdown_timeout"] = shutdownTimeout.String()
		case "log-level":
			flagOverrides["log.level"] = *logLevel
		case "metrics-addr":
			flagOverrides["metrics.address"] = *metricsAddr
		}
	})
	if err := loader.LoadFlags(flagOverrides, &cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	levelVar := new(slog.LevelVar)
	levelVar.Set(config.ParseLevel(cfg.Log.Level))
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	if configFile != "" {
		watcher, err := config.NewLevelWatcher(configFile, logger)
		if err != nil {
			logger.Warn("failed to start config watcher", "error", err)
		} else {
			watcher.StartAsync(func(path string) {
				var reloaded config.ServerConfig
				if err := config.NewLoader(path).Load(&reloaded); err != nil {
					logger.Warn("failed to reload config", "error", err)
					return
				}
				levelVar.Set(config.ParseLevel(reloaded.Log.Level))
				logger.Info("log level reloaded", "level", reloaded.Log.Level)
			})
			defer func() { _ = watcher.Stop() }()
		}
	}

	db := database.New(logger)
	sig := shutdown.New()

	registry := prometheus.NewRegistry()
	m := metrics.New().RegisterMetrics(registry)

	var metricsSrv *http.Server
	if cfg.Metrics.Address != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.Metrics.Address, Handler: mux}
		go func() {
			logger.Info("serving metrics", "address", cfg.Metrics.Address)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	srv := server.New(db, sig, server.Config{
		MaxConnections:  cfg.Server.MaxConnections,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Logger:          logger,
		Metrics:         m,
	})

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
	if err != nil {
		logger.Error("failed to listen", "error", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-quit
		logger.Info("caught signal", "signal", s.String())
		sig.Trigger()
		_ = ln.Close()
	}()

	if err := srv.Serve(ln); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}

	srv.Drain(cfg.Server.ShutdownTimeout)
	db.Close()

	if metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		_ = metricsSrv.Shutdown(ctx)
		cancel()
	}

	logger.Info("server stopped gracefully")
}
