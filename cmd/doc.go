// Package cmd holds the service binaries.
//
// callback-server: the auction settlement service. Ingests signed MPC
// settlement callbacks over HTTP, applies outcomes exactly once, and
// serves auction and settlement reads.
//
//	go run ./cmd/callback-server --engine-key=<hex> --gateway=http://localhost:9090
package cmd
