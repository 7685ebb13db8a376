// Package protocol implements the settlement callback wire protocol.
//
// The MPC cluster delivers computation results that are too large for
// on-chain callbacks as binary HTTP messages. Every message carries a
// fixed-width header followed by a computation-kind-specific payload:
//
//	offset  length  field
//	0       2       mempool id (u16, little-endian)
//	2       4       computation kind (u32, little-endian)
//	6       64      transaction signature (informational)
//	70      64      data signature (Ed25519, over the payload)
//	134     32      signer public key (Ed25519)
//	166     -       payload
//
// ParseCallbackFrame splits a raw buffer into this header and an opaque
// payload. The payload's internal layout is owned by the result decoders:
// one decoder per computation kind, each producing structured auction
// outcomes. Unknown kinds are an explicit error, never a silent no-op —
// an unrecognized kind means either a protocol version mismatch or a
// forged message, and both must surface.
//
// All integers on the wire are unsigned, little-endian, fixed width.
// Parsing and decoding are pure functions over bytes; authentication of
// the payload is the caller's responsibility (crypto.VerifyDetached) and
// happens between parsing and decoding.
package protocol
