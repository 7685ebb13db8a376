// Package crypto provides the cryptographic primitives for confidential
// auction settlement.
//
// This package implements the two leaf concerns of the settlement pipeline:
//
//   - The encryption envelope (X25519 key agreement + HKDF-SHA256 +
//     AES-256-CTR) used to submit bid amounts and reserve prices to the
//     MPC engine without revealing them on-chain
//   - Detached Ed25519 signature verification used to authenticate
//     settlement callback payloads from the MPC cluster
//
// The envelope generates a fresh ephemeral key pair per encryption; the
// private scalar never leaves the Seal call. Decryption of settlement
// outputs is the MPC engine's job — Open exists for tests and local
// verification only.
//
// # Key Management
//
// Ed25519 keys identify callback signers and on-chain accounts. X25519
// keys are used exclusively for envelope key agreement. All key types
// include helper methods for serialization and comparison.
package crypto
