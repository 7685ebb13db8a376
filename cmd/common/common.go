// Package common provides shared helpers for the service binaries: key
// parsing, logger construction, and store selection.
package common

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"

	"github.com/shadowlabs-sol/shadow-protocol-sub000/crypto"
	"github.com/shadowlabs-sol/shadow-protocol-sub000/settlement"
)

// NewLogger builds the process logger. JSON output is for deployments
// behind a log collector; text output is for local runs.
func NewLogger(jsonOutput, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if jsonOutput {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// ParseEngineKey decodes the MPC engine's hex-encoded X25519 public key.
func ParseEngineKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid engine key hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("engine key is %d bytes, want 32", len(key))
	}
	return key, nil
}

// ParseTrustedSigner decodes an optional hex-encoded Ed25519 public key.
// An empty string means no signer pinning.
func ParseTrustedSigner(hexKey string) (crypto.PublicKey, error) {
	if hexKey == "" {
		return nil, nil
	}
	key, err := crypto.NewPublicKeyFromString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid trusted signer hex: %w", err)
	}
	return key, nil
}

// NewStore connects to Postgres when a host is configured, otherwise
// returns the in-memory store for single-process runs.
func NewStore(cfg *settlement.PostgresConfig, log *slog.Logger) (settlement.Store, error) {
	if cfg == nil || cfg.Host == "" {
		log.Info("No Postgres configured, using in-memory store")
		return settlement.NewInMemoryStore(), nil
	}
	return settlement.NewPostgresStore(cfg)
}
