package main

import (
	"context"
	"crypto/ed25519"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/signer"
	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/pkg/config"
	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/pkg/server"
	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/pkg/store"
)

func main() {
	logger := log.New(os.Stdout, "[oracle-verifier] ", log.LstdFlags)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}

	var privKey ed25519.PrivateKey
	var pubKey ed25519.PublicKey
	if cfg.LedgerPrivKeyPath != "" {
		raw, err := os.ReadFile(cfg.LedgerPrivKeyPath)
		if err != nil {
			logger.Fatalf("read private key: %v", err)
		}
		privKey, err = signer.ParsePrivateKeyHex(strings.TrimSpace(string(raw)))
		if err != nil {
			logger.Fatalf("parse private key: %v", err)
		}
	}
	if cfg.LedgerPubKeyPath != "" {
		raw, err := os.ReadFile(cfg.LedgerPubKeyPath)
		if err != nil {
			logger.Fatalf("read public key: %v", err)
		}
		var err2 error
		pubKey, err2 = signer.ParsePublicKeyHex(strings.TrimSpace(string(raw)))
		if err2 != nil {
			logger.Fatalf("parse public key: %v", err2)
		}
	}

	storeOpts := []store.Option{store.WithLogger(logger)}
	if cfg.DatabaseURL != "" {
		idx, err := store.NewIndex(store.IndexConfig{
			DatabaseURL: cfg.DatabaseURL,
			MaxConns:    cfg.DatabaseMaxConns,
			MinConns:    cfg.DatabaseMinConns,
			MaxIdleTime: time.Duration(cfg.DatabaseMaxIdleTime) * time.Second,
			MaxLifetime: time.Duration(cfg.DatabaseMaxLifetime) * time.Second,
		}, logger)
		if err != nil {
			logger.Fatalf("audit index: %v", err)
		}
		defer idx.Close()
		storeOpts = append(storeOpts, store.WithIndex(idx))
	}
	st := store.New(cfg.HistoricalRoot, cfg.TmpRoot, storeOpts...)

	srv := server.New(cfg, st, privKey, pubKey, logger)
	mux := http.NewServeMux()
	srv.Routes(mux)

	api := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metrics := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	go func() {
		logger.Printf("metrics listening on %s", cfg.MetricsAddr)
		if err := metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server: %v", err)
		}
	}()
	go func() {
		logger.Printf("API listening on %s", cfg.ListenAddr)
		if err := api.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("API server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Println("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	api.Shutdown(ctx)
	metrics.Shutdown(ctx)
}
