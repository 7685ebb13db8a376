// Command callback-server runs the auction settlement service.
//
// It accepts signed settlement callbacks from the MPC cluster over HTTP,
// verifies and decodes them, and applies each outcome exactly once
// against the auction store. It also exposes read endpoints for auctions
// and settlement records.
//
// # Usage
//
//	go run ./cmd/callback-server --engine-key=<hex x25519 pubkey> \
//	    --gateway=http://localhost:9090 \
//	    --trusted-signer=<hex ed25519 pubkey>
//
// Without --postgres-host the service keeps all records in memory.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shadowlabs-sol/shadow-protocol-sub000/api/httpserver"
	"github.com/shadowlabs-sol/shadow-protocol-sub000/cmd/common"
	"github.com/shadowlabs-sol/shadow-protocol-sub000/services"
	"github.com/shadowlabs-sol/shadow-protocol-sub000/settlement"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "HTTP listen address")
		metricsAddr = flag.String("metrics-addr", "", "Metrics listen address (empty disables)")
		enablePprof = flag.Bool("pprof", false, "Enable pprof debug endpoints")
		logJSON     = flag.Bool("log-json", false, "Log in JSON format")
		logDebug    = flag.Bool("log-debug", false, "Log at debug level")

		gatewayURL    = flag.String("gateway", "", "Chain gateway base URL")
		engineKeyHex  = flag.String("engine-key", "", "MPC engine X25519 public key (hex, required)")
		trustedSigner = flag.String("trusted-signer", "", "Pinned callback signer Ed25519 public key (hex, optional)")

		pgHost     = flag.String("postgres-host", "", "Postgres host (empty uses in-memory store)")
		pgPort     = flag.Int("postgres-port", 5432, "Postgres port")
		pgUser     = flag.String("postgres-user", "settlement", "Postgres user")
		pgPassword = flag.String("postgres-password", "", "Postgres password")
		pgDatabase = flag.String("postgres-db", "settlement", "Postgres database")

		drainSeconds = flag.Int("drain-seconds", 15, "Seconds to wait before shutdown after drain")
	)
	flag.Parse()

	log := common.NewLogger(*logJSON, *logDebug)

	if *gatewayURL == "" {
		fmt.Println("Error: --gateway is required")
		os.Exit(1)
	}

	engineKey, err := common.ParseEngineKey(*engineKeyHex)
	if err != nil {
		log.Error("Engine key error", "err", err)
		os.Exit(1)
	}

	signer, err := common.ParseTrustedSigner(*trustedSigner)
	if err != nil {
		log.Error("Trusted signer error", "err", err)
		os.Exit(1)
	}
	if signer == nil {
		log.Warn("No trusted signer pinned, any embedded callback key is accepted")
	}

	store, err := common.NewStore(&settlement.PostgresConfig{
		Host:     *pgHost,
		Port:     *pgPort,
		User:     *pgUser,
		Password: *pgPassword,
		Database: *pgDatabase,
	}, log)
	if err != nil {
		log.Error("Store error", "err", err)
		os.Exit(1)
	}

	orchestrator, err := services.NewOrchestrator(&services.OrchestratorConfig{
		EnginePublicKey: engineKey,
		TrustedSigner:   signer,
		Log:             log,
	}, store, services.NewHTTPChainClient(*gatewayURL))
	if err != nil {
		log.Error("Orchestrator error", "err", err)
		os.Exit(1)
	}

	handler := services.NewCallbackHandler(orchestrator, log)
	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               *addr,
		MetricsAddr:              *metricsAddr,
		EnablePprof:              *enablePprof,
		Log:                      log,
		DrainDuration:            time.Duration(*drainSeconds) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, handler)
	if err != nil {
		log.Error("Server error", "err", err)
		os.Exit(1)
	}

	srv.RunInBackground()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down")
	srv.Shutdown()
}
