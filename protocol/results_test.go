package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sealedBidPayload(winner16 []byte, amount uint64, metReserve byte, auctionID uint64) []byte {
	buf := make([]byte, 33)
	copy(buf[:16], winner16)
	binary.LittleEndian.PutUint64(buf[16:], amount)
	buf[24] = metReserve
	binary.LittleEndian.PutUint64(buf[25:], auctionID)
	return buf
}

func TestDecodeSealedBidResult(t *testing.T) {
	winner := bytes.Repeat([]byte{0xAB}, 16)
	payload := sealedBidPayload(winner, 123456789, 1, 9001)

	out, err := DecodeSealedBidResult(payload)
	require.NoError(t, err)

	assert.Equal(t, uint64(9001), out.AuctionID)
	assert.Equal(t, uint64(123456789), out.WinningAmount)
	assert.True(t, out.MetReserve)
	assert.True(t, out.HasWinner)

	// The 16-byte wire identity is left-aligned with zero fill, and the
	// truncation is reported so consumers match by prefix.
	assert.True(t, out.WinnerTruncated)
	assert.Equal(t, winner, out.Winner[:16])
	assert.Equal(t, make([]byte, 16), out.Winner[16:])
}

func TestDecodeSealedBidResult_ReserveNotMet(t *testing.T) {
	payload := sealedBidPayload(bytes.Repeat([]byte{0x01}, 16), 400, 0, 77)

	out, err := DecodeSealedBidResult(payload)
	require.NoError(t, err)

	// Reserve not met settles the auction without a winner.
	assert.False(t, out.MetReserve)
	assert.False(t, out.HasWinner)
	assert.Equal(t, uint64(77), out.AuctionID)
}

func TestDecodeSealedBidResult_Truncated(t *testing.T) {
	for _, n := range []int{0, 16, 24, 32} {
		_, err := DecodeSealedBidResult(make([]byte, n))
		assert.ErrorIs(t, err, ErrTruncatedPayload, "length %d", n)
	}
}

func TestDecodeDutchResult(t *testing.T) {
	winner := bytes.Repeat([]byte{0xCD}, 32)
	payload := make([]byte, 48)
	binary.LittleEndian.PutUint64(payload, 555)
	copy(payload[8:40], winner)
	binary.LittleEndian.PutUint64(payload[40:], 2_500_000)

	out, err := DecodeDutchResult(payload)
	require.NoError(t, err)

	assert.Equal(t, uint64(555), out.AuctionID)
	assert.True(t, out.HasWinner)
	assert.False(t, out.WinnerTruncated)
	assert.Equal(t, winner, out.Winner[:])
	assert.Equal(t, uint64(2_500_000), out.WinningAmount)

	_, err = DecodeDutchResult(payload[:47])
	assert.ErrorIs(t, err, ErrTruncatedPayload)
}

func batchPayload(records ...[]byte) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(len(records)))
	for _, r := range records {
		buf = append(buf, r...)
	}
	return buf
}

func batchRecordNoWinner(auctionID uint64) []byte {
	r := make([]byte, 9)
	binary.LittleEndian.PutUint64(r, auctionID)
	return r
}

func batchRecordWinner(auctionID uint64, winner []byte, amount uint64) []byte {
	r := make([]byte, 9+32+8)
	binary.LittleEndian.PutUint64(r, auctionID)
	r[8] = 1
	copy(r[9:41], winner)
	binary.LittleEndian.PutUint64(r[41:], amount)
	return r
}

func TestDecodeBatchResult_MixedOutcomes(t *testing.T) {
	winner := bytes.Repeat([]byte{0x42}, 32)
	payload := batchPayload(
		batchRecordNoWinner(100),
		batchRecordWinner(101, winner, 5_000_000),
	)

	outcomes, err := DecodeBatchResult(payload)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, uint64(100), outcomes[0].AuctionID)
	assert.False(t, outcomes[0].HasWinner)
	assert.Zero(t, outcomes[0].WinningAmount)

	assert.Equal(t, uint64(101), outcomes[1].AuctionID)
	assert.True(t, outcomes[1].HasWinner)
	assert.Equal(t, winner, outcomes[1].Winner[:])
	assert.Equal(t, uint64(5_000_000), outcomes[1].WinningAmount)
}

func TestDecodeBatchResult_Truncated(t *testing.T) {
	// Declared count exceeds available records: fatal for the whole batch.
	winner := bytes.Repeat([]byte{0x42}, 32)
	payload := batchPayload(batchRecordWinner(1, winner, 10))
	binary.LittleEndian.PutUint32(payload, 3)

	_, err := DecodeBatchResult(payload)
	assert.ErrorIs(t, err, ErrTruncatedPayload)

	// Record cut off mid-winner.
	payload = batchPayload(batchRecordWinner(1, winner, 10))
	_, err = DecodeBatchResult(payload[:len(payload)-1])
	assert.ErrorIs(t, err, ErrTruncatedPayload)

	// Empty buffer.
	_, err = DecodeBatchResult(nil)
	assert.ErrorIs(t, err, ErrTruncatedPayload)
}

func TestDecodeBatchResult_HugeDeclaredCount(t *testing.T) {
	// The declared count must be rejected against the payload length before
	// it sizes any allocation, or a 4-byte payload could demand gigabytes.
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, 0xFFFFFFFF)

	_, err := DecodeBatchResult(payload)
	assert.ErrorIs(t, err, ErrTruncatedPayload)
}

func TestDecodeBatchResult_Empty(t *testing.T) {
	outcomes, err := DecodeBatchResult(batchPayload())
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestDecodeResult_Dispatch(t *testing.T) {
	sealed := sealedBidPayload(bytes.Repeat([]byte{1}, 16), 10, 1, 1)
	outcomes, err := DecodeResult(KindSealedBid, sealed)
	require.NoError(t, err)
	assert.Len(t, outcomes, 1)

	_, err = DecodeResult(ComputationKind(0xDEADBEEF), sealed)
	assert.ErrorIs(t, err, ErrUnknownComputationKind)
}

func TestComputationKindString(t *testing.T) {
	assert.Equal(t, "sealed_bid", KindSealedBid.String())
	assert.Equal(t, "dutch_auction", KindDutchAuction.String())
	assert.Equal(t, "batch_settlement", KindBatchSettlement.String())
	assert.Equal(t, "unknown(0x00000001)", ComputationKind(1).String())
}
