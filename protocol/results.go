package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ComputationKind is the 32-bit tag identifying which settlement payload
// layout follows the callback header.
type ComputationKind uint32

// Computation-kind tags reserved by the auction program's computation
// definitions.
const (
	KindSealedBid       ComputationKind = 0x12345678
	KindDutchAuction    ComputationKind = 0x87654321
	KindBatchSettlement ComputationKind = 0xABCDEF01
)

// String returns a human-readable name for logging.
func (k ComputationKind) String() string {
	switch k {
	case KindSealedBid:
		return "sealed_bid"
	case KindDutchAuction:
		return "dutch_auction"
	case KindBatchSettlement:
		return "batch_settlement"
	}
	return fmt.Sprintf("unknown(0x%08x)", uint32(k))
}

// ErrUnknownComputationKind indicates a callback with an unrecognized
// computation-kind tag. This must surface to the caller: silently ignoring
// it would mask a protocol version mismatch or a forged message.
var ErrUnknownComputationKind = errors.New("unknown computation kind")

// ErrTruncatedPayload indicates a result payload with fewer bytes than its
// layout (or, for batches, its declared record count) requires.
var ErrTruncatedPayload = errors.New("truncated result payload")

// WinnerIDSize is the account identity width used on the wire.
const WinnerIDSize = 32

// sealedWinnerIDSize is the truncated identity width the sealed-bid
// computation emits. See AuctionOutcome.WinnerTruncated.
const sealedWinnerIDSize = 16

// AuctionOutcome is one auction's decoded settlement result.
type AuctionOutcome struct {
	AuctionID uint64

	// HasWinner is false for auctions that settle without a sale, e.g.
	// when the reserve price was not met.
	HasWinner bool

	// Winner is the winning account identity. For sealed-bid results the
	// wire carries only 16 bytes; the value is left-aligned here with
	// zero fill and WinnerTruncated is set, so consumers must match
	// bidders by 16-byte prefix instead of full equality.
	Winner          [WinnerIDSize]byte
	WinnerTruncated bool

	WinningAmount uint64

	// MetReserve reports whether the winning amount cleared the encrypted
	// reserve price. Only sealed-bid results carry it; other kinds imply
	// it by having a winner at all.
	MetReserve bool
}

// DecodeResult dispatches an authenticated payload to the decoder for its
// computation kind. Batch results may contain several outcomes; the other
// kinds produce exactly one.
func DecodeResult(kind ComputationKind, payload []byte) ([]AuctionOutcome, error) {
	switch kind {
	case KindSealedBid:
		out, err := DecodeSealedBidResult(payload)
		if err != nil {
			return nil, err
		}
		return []AuctionOutcome{*out}, nil
	case KindDutchAuction:
		out, err := DecodeDutchResult(payload)
		if err != nil {
			return nil, err
		}
		return []AuctionOutcome{*out}, nil
	case KindBatchSettlement:
		return DecodeBatchResult(payload)
	}
	return nil, fmt.Errorf("%w: 0x%08x", ErrUnknownComputationKind, uint32(kind))
}

// DecodeSealedBidResult decodes a sealed-bid auction result:
//
//	winnerId[16] | winningAmount u64le | metReserve u8 | auctionId u64le
//
// A result whose reserve was not met settles the auction with no winner.
func DecodeSealedBidResult(payload []byte) (*AuctionOutcome, error) {
	const minLen = sealedWinnerIDSize + 8 + 1 + 8
	if len(payload) < minLen {
		return nil, fmt.Errorf("%w: sealed-bid payload is %d bytes, want at least %d", ErrTruncatedPayload, len(payload), minLen)
	}

	out := &AuctionOutcome{
		WinnerTruncated: true,
		WinningAmount:   binary.LittleEndian.Uint64(payload[sealedWinnerIDSize:]),
		MetReserve:      payload[sealedWinnerIDSize+8] == 1,
		AuctionID:       binary.LittleEndian.Uint64(payload[sealedWinnerIDSize+9:]),
	}
	copy(out.Winner[:sealedWinnerIDSize], payload[:sealedWinnerIDSize])
	out.HasWinner = out.MetReserve

	return out, nil
}

// DecodeDutchResult decodes a Dutch auction result:
//
//	auctionId u64le | winnerId[32] | finalPrice u64le
func DecodeDutchResult(payload []byte) (*AuctionOutcome, error) {
	const wantLen = 8 + WinnerIDSize + 8
	if len(payload) < wantLen {
		return nil, fmt.Errorf("%w: dutch payload is %d bytes, want %d", ErrTruncatedPayload, len(payload), wantLen)
	}

	out := &AuctionOutcome{
		AuctionID:     binary.LittleEndian.Uint64(payload),
		HasWinner:     true,
		WinningAmount: binary.LittleEndian.Uint64(payload[8+WinnerIDSize:]),
	}
	copy(out.Winner[:], payload[8:8+WinnerIDSize])

	return out, nil
}

// DecodeBatchResult decodes a batch settlement result:
//
//	count u32le, then count records of
//	auctionId u64le | hasWinner u8 | (winnerId[32] | winningAmount u64le)?
//
// Truncation anywhere is fatal for the whole batch: a partially decoded
// batch is never returned, so no partial application can occur downstream.
func DecodeBatchResult(payload []byte) ([]AuctionOutcome, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("%w: batch payload is %d bytes, want at least 4", ErrTruncatedPayload, len(payload))
	}

	count := binary.LittleEndian.Uint32(payload)
	offset := 4

	// Each record is at least 9 bytes. Checking the declared count against
	// the actual payload length up front keeps a hostile count from sizing
	// the allocation below.
	if uint64(count)*9 > uint64(len(payload)-offset) {
		return nil, fmt.Errorf("%w: batch declares %d records, payload has %d bytes", ErrTruncatedPayload, count, len(payload)-offset)
	}

	outcomes := make([]AuctionOutcome, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(payload) < offset+9 {
			return nil, fmt.Errorf("%w: batch record %d exceeds payload", ErrTruncatedPayload, i)
		}

		out := AuctionOutcome{
			AuctionID: binary.LittleEndian.Uint64(payload[offset:]),
		}
		offset += 8

		hasWinner := payload[offset]
		offset++

		if hasWinner == 1 {
			if len(payload) < offset+WinnerIDSize+8 {
				return nil, fmt.Errorf("%w: batch record %d winner exceeds payload", ErrTruncatedPayload, i)
			}
			out.HasWinner = true
			out.MetReserve = true
			copy(out.Winner[:], payload[offset:offset+WinnerIDSize])
			offset += WinnerIDSize
			out.WinningAmount = binary.LittleEndian.Uint64(payload[offset:])
			offset += 8
		}

		outcomes = append(outcomes, out)
	}

	return outcomes, nil
}
