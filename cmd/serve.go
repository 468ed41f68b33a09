// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Thermoquad/fringe/pkg/fps"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const cborContentType = "application/cbor"

var (
	serveListen   string
	serveInterval time.Duration
	serveCapacity int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll positions and serve them over HTTP",
	Long: `Request synchronized positions continuously and serve the stream state.

Endpoints:
  /metrics     Prometheus metrics (telegram counters, axis positions)
  /positions   CBOR capture of the buffered samples (?limit=N for the newest N)
  /values      CBOR list of the register value table
  /healthz     200 while the connection is up`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", ":9310", "HTTP listen address")
	serveCmd.Flags().DurationVar(&serveInterval, "interval", 5*time.Millisecond, "Time between position requests")
	serveCmd.Flags().IntVar(&serveCapacity, "capacity", fps.DefaultBufferCapacity, "Number of samples kept")
}

func runServe(cmd *cobra.Command, args []string) error {
	state := fps.NewState(serveCapacity)
	stats := fps.NewStatistics()
	s, err := openSession(nil,
		fps.WithState(state),
		fps.WithStatistics(stats),
		fps.WithDispatchOptions(fps.WithPollOnReceipt(false)),
	)
	if err != nil {
		return err
	}
	defer s.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		fps.NewCollector("fps", stats, state),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := &http.Server{
		Addr:              serveListen,
		Handler:           newServeRouter(s.client, reg, s.log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	fmt.Printf("Fringe - Position Server\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Listening on %s\n", serveListen)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s.client.Start()
	go pollPositions(ctx, s.client, serveInterval, s.log)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
	case <-s.client.Done():
		s.log.Warn("connection closed", zap.Error(s.client.Err()))
	case err := <-errChan:
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newServeRouter builds the HTTP routes over the client's stream state
func newServeRouter(c *fps.Client, reg *prometheus.Registry, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-c.Done():
			http.Error(w, "connection closed", http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		}
	})

	r.Get("/positions", func(w http.ResponseWriter, r *http.Request) {
		capture := fps.NewCapture(c.State())
		if v := r.URL.Query().Get("limit"); v != "" {
			limit, err := strconv.Atoi(v)
			if err != nil || limit < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			if limit < len(capture.Samples) {
				capture.Samples = capture.Samples[len(capture.Samples)-limit:]
			}
		}
		writeCBOR(w, capture, log)
	})

	r.Get("/values", func(w http.ResponseWriter, r *http.Request) {
		writeCBOR(w, fps.CaptureValues(c.State().Values), log)
	})

	return r
}

func writeCBOR(w http.ResponseWriter, v any, log *zap.Logger) {
	data, err := fps.MarshalCBOR(v)
	if err != nil {
		log.Error("failed to encode response", zap.Error(err))
		http.Error(w, "encoding failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", cborContentType)
	w.Write(data)
}

// requestLogger logs each request at debug level
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}
