// Command dev-backend is a minimal backend for development mode and manual
// testing. It listens on 127.0.0.1:--port and answers /health.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jrepp/prism-sidecar/internal/config"
)

var (
	port       = flag.Int("port", 8765, "port to listen on")
	readyAfter = flag.Duration("ready-after", 0, "answer /health with 503 until this much time has passed")
	logLevel   = flag.String("log-level", "info", "log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	// Setup logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: config.ParseLevel(*logLevel)}))
	slog.SetDefault(logger)

	if *port <= 0 || *port > 65535 {
		fmt.Fprintf(os.Stderr, "invalid --port %d\n", *port)
		os.Exit(2)
	}

	started := time.Now()
	var requests atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if time.Since(started) < *readyAfter {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, "warming up")
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"service":  "dev-backend",
			"pid":      os.Getpid(),
			"uptime":   time.Since(started).Round(time.Second).String(),
			"requests": requests.Load(),
		})
	})

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(*port))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dev backend listening", "addr", addr, "ready_after", readyAfter.String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("shutdown signal received", "signal", sig.String())

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("server shutdown error", "error", err)
	}

	logger.Info("dev backend stopped", "requests", requests.Load())
}
