package testutil

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shadowlabs-sol/shadow-protocol-sub000/crypto"
	"github.com/shadowlabs-sol/shadow-protocol-sub000/protocol"
)

// Signer is an Ed25519 key pair used to produce signed callback frames.
type Signer struct {
	PublicKey  crypto.PublicKey
	PrivateKey crypto.PrivateKey
}

// NewSigner generates a fresh signing key pair.
func NewSigner(t *testing.T) *Signer {
	t.Helper()
	pub, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return &Signer{PublicKey: pub, PrivateKey: priv}
}

// SignedFrame builds a complete callback frame: header, detached payload
// signature from the signer, and the given payload.
func SignedFrame(t *testing.T, signer *Signer, mempoolID uint16, kind protocol.ComputationKind, payload []byte) []byte {
	t.Helper()

	sig, err := crypto.Sign(signer.PrivateKey, payload)
	require.NoError(t, err)

	cb := &protocol.SettlementCallback{
		MempoolID:       mempoolID,
		Kind:            kind,
		DataSignature:   sig,
		SignerPublicKey: signer.PublicKey,
		Payload:         payload,
	}
	copy(cb.TransactionSignature[:], payload)

	return protocol.EncodeCallbackFrame(cb)
}

// SealedBidPayload encodes a sealed-bid result payload. Only the first
// 16 bytes of winner appear on the wire.
func SealedBidPayload(auctionID uint64, winner [32]byte, amount uint64, metReserve bool) []byte {
	payload := make([]byte, 16+8+1+8)
	copy(payload[:16], winner[:16])
	binary.LittleEndian.PutUint64(payload[16:], amount)
	if metReserve {
		payload[24] = 1
	}
	binary.LittleEndian.PutUint64(payload[25:], auctionID)
	return payload
}

// DutchPayload encodes a Dutch auction result payload.
func DutchPayload(auctionID uint64, winner [32]byte, finalPrice uint64) []byte {
	payload := make([]byte, 8+32+8)
	binary.LittleEndian.PutUint64(payload, auctionID)
	copy(payload[8:], winner[:])
	binary.LittleEndian.PutUint64(payload[40:], finalPrice)
	return payload
}

// BatchRecord is one auction's entry in a batch settlement payload.
type BatchRecord struct {
	AuctionID uint64
	HasWinner bool
	Winner    [32]byte
	Amount    uint64
}

// BatchPayload encodes a batch settlement result payload.
func BatchPayload(records ...BatchRecord) []byte {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, uint32(len(records)))

	for _, rec := range records {
		entry := make([]byte, 9)
		binary.LittleEndian.PutUint64(entry, rec.AuctionID)
		if rec.HasWinner {
			entry[8] = 1
			entry = append(entry, rec.Winner[:]...)
			entry = binary.LittleEndian.AppendUint64(entry, rec.Amount)
		}
		payload = append(payload, entry...)
	}

	return payload
}

// AccountID builds a deterministic 32-byte account identity from a seed.
func AccountID(seed byte) [32]byte {
	var id [32]byte
	for i := range id {
		id[i] = seed
	}
	return id
}
