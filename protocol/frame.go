package protocol

import (
	"encoding/binary"
	"errors"

	"github.com/shadowlabs-sol/shadow-protocol-sub000/crypto"
)

// ErrMalformedFrame indicates a callback buffer shorter than the fixed
// header.
var ErrMalformedFrame = errors.New("malformed callback frame")

// Header layout. Every offset is a contract: the MPC cluster writes these
// exact positions and widths.
const (
	mempoolIDOffset       = 0
	computationKindOffset = 2
	txSignatureOffset     = 6
	dataSignatureOffset   = 70
	signerKeyOffset       = 134

	// HeaderSize is the fixed callback header length in bytes.
	HeaderSize = 166
)

// TransactionSignatureSize is the width of the informational transaction
// signature field.
const TransactionSignatureSize = 64

// SettlementCallback is one parsed inbound callback message. It exists
// only for the duration of processing; nothing in it is persisted except
// the payload, which the settlement engine stores for audit.
type SettlementCallback struct {
	// MempoolID identifies the MPC mempool that produced the result.
	MempoolID uint16

	// Kind selects the payload layout and the result decoder.
	Kind ComputationKind

	// TransactionSignature references the on-chain computation
	// transaction. It is audit metadata and is not cryptographically
	// checked here.
	TransactionSignature [TransactionSignatureSize]byte

	// DataSignature is the detached Ed25519 signature over Payload.
	DataSignature crypto.Signature

	// SignerPublicKey is the MPC cluster key that produced DataSignature.
	SignerPublicKey crypto.PublicKey

	// Payload is the uninterpreted remainder of the buffer. It aliases
	// the input; callers that retain it past the request must copy.
	Payload []byte
}

// ParseCallbackFrame decodes a raw callback buffer into its header fields
// and opaque payload.
//
// Buffers shorter than the 166-byte header fail with ErrMalformedFrame.
// The payload is exactly buf[166:], byte for byte.
func ParseCallbackFrame(buf []byte) (*SettlementCallback, error) {
	if len(buf) < HeaderSize {
		return nil, ErrMalformedFrame
	}

	cb := &SettlementCallback{
		MempoolID:       binary.LittleEndian.Uint16(buf[mempoolIDOffset:]),
		Kind:            ComputationKind(binary.LittleEndian.Uint32(buf[computationKindOffset:])),
		DataSignature:   crypto.NewSignature(buf[dataSignatureOffset : dataSignatureOffset+64]),
		SignerPublicKey: crypto.NewPublicKeyFromBytes(buf[signerKeyOffset : signerKeyOffset+32]),
		Payload:         buf[HeaderSize:],
	}
	copy(cb.TransactionSignature[:], buf[txSignatureOffset:txSignatureOffset+TransactionSignatureSize])

	return cb, nil
}

// EncodeCallbackFrame assembles a callback buffer from header fields and a
// payload. The production cluster writes these frames; this encoder exists
// for tests and local tooling and is the byte-exact inverse of
// ParseCallbackFrame.
func EncodeCallbackFrame(cb *SettlementCallback) []byte {
	buf := make([]byte, HeaderSize+len(cb.Payload))
	binary.LittleEndian.PutUint16(buf[mempoolIDOffset:], cb.MempoolID)
	binary.LittleEndian.PutUint32(buf[computationKindOffset:], uint32(cb.Kind))
	copy(buf[txSignatureOffset:], cb.TransactionSignature[:])
	copy(buf[dataSignatureOffset:], cb.DataSignature.Bytes())
	copy(buf[signerKeyOffset:], cb.SignerPublicKey.Bytes())
	copy(buf[HeaderSize:], cb.Payload)
	return buf
}
