// Command wrldpayd runs the WRLD payment reconciler as a standalone daemon with
// an HTTP API for requesting payments and a Prometheus endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitwit/wrldpay"
	"github.com/vitwit/wrldpay/api"
	"github.com/vitwit/wrldpay/config"
	"github.com/vitwit/wrldpay/logger"
	"github.com/vitwit/wrldpay/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "wrldpayd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "wrldpay.yaml", "path to wrldpayd configuration (empty: environment only)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLogger(cfg)
	if z, ok := log.(*logger.ZapLogger); ok {
		defer func() { _ = z.Sync() }()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewPrometheusRecorder(reg)

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := wrldpay.New(stopCtx, cfg,
		wrldpay.WithLogger(log),
		wrldpay.WithMetrics(recorder),
	)
	if err != nil {
		return fmt.Errorf("init service: %w", err)
	}
	defer svc.Close()

	// payments confirmed without an embedding host are only logged
	svc.OnPayment(func(tx wrldpay.PlayerTransaction) {
		log.Info("payment confirmed", map[string]any{
			"identity":  tx.Identity.String(),
			"amount":    tx.Amount.String(),
			"reason":    tx.Reason,
			"reference": tx.Reference.Dec(),
			"network":   tx.Network.String(),
			"tx":        tx.TxHash.Hex(),
		})
	})
	svc.OnPeerPayment(func(tx wrldpay.PeerTransaction) {
		log.Info("peer payment confirmed", map[string]any{
			"from":      tx.From.String(),
			"to":        tx.To.String(),
			"amount":    tx.Amount.String(),
			"requested": tx.Requested.String(),
			"reference": tx.Reference.Dec(),
			"network":   tx.Network.String(),
		})
	})

	if err := svc.Start(stopCtx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	apiServer := api.New(svc, log)
	apiServer.Mount("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Info("wrldpayd listening", map[string]any{"addr": cfg.Listen})
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func newLogger(cfg config.Config) logger.Logger {
	if cfg.LogFile == "" {
		return logger.NewZapLogger(cfg.LogLevel)
	}
	return logger.NewZapLoggerWithFile(cfg.LogLevel, logger.FileOptions{Path: cfg.LogFile})
}
