package settlement

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowlabs-sol/shadow-protocol-sub000/crypto"
)

func TestInMemoryStore_CreateSettlementConflict(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	record := &SettlementRecord{ID: "a", AuctionID: 1, WinningAmount: 10, SettledAt: time.Now()}
	require.NoError(t, store.CreateSettlement(ctx, record))

	err := store.CreateSettlement(ctx, &SettlementRecord{ID: "b", AuctionID: 1})
	assert.ErrorIs(t, err, ErrSettlementExists)

	// The first record survives the losing insert.
	got, err := store.FindSettlement(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
}

func TestInMemoryStore_CreateSettlementRace(t *testing.T) {
	// Exactly one concurrent writer per auction ID may succeed.
	ctx := context.Background()
	store := NewInMemoryStore()

	const writers = 32
	var wg sync.WaitGroup
	results := make([]error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = store.CreateSettlement(ctx, &SettlementRecord{ID: "r", AuctionID: 77})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrSettlementExists)
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestInMemoryStore_BidUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	newTestAuction(t, store, 1, StatusActive)

	bidder, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	enginePub, _, err := crypto.GenerateEngineKeyPair()
	require.NoError(t, err)
	env, err := crypto.Seal(100, enginePub[:])
	require.NoError(t, err)

	bid := &Bid{AuctionID: 1, Bidder: bidder, Envelope: env, SubmittedAt: time.Now()}
	require.NoError(t, store.CreateBid(ctx, bid))
	assert.ErrorIs(t, store.CreateBid(ctx, bid), ErrBidExists)

	// A bid against a missing auction is rejected.
	orphan := &Bid{AuctionID: 99, Bidder: bidder, Envelope: env}
	assert.ErrorIs(t, store.CreateBid(ctx, orphan), ErrAuctionNotFound)
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	newTestAuction(t, store, 1, StatusActive)

	a, err := store.FindAuction(ctx, 1)
	require.NoError(t, err)
	a.Status = StatusCancelled

	fresh, err := store.FindAuction(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, fresh.Status)
}

func TestAuctionCurrentPrice(t *testing.T) {
	start := time.Now()
	auction := &Auction{
		Kind:              DutchAuction,
		StartTime:         start,
		EndTime:           start.Add(time.Hour),
		MinimumBid:        1000,
		StartingPrice:     10_000,
		PriceDecreaseRate: 10,
	}

	assert.Equal(t, uint64(10_000), auction.CurrentPrice(start))
	assert.Equal(t, uint64(9_900), auction.CurrentPrice(start.Add(10*time.Second)))
	// Price floors at the minimum bid, never below.
	assert.Equal(t, uint64(1000), auction.CurrentPrice(start.Add(time.Hour)))
	// Before the start the asking price is the starting price.
	assert.Equal(t, uint64(10_000), auction.CurrentPrice(start.Add(-time.Minute)))

	sealed := &Auction{Kind: SealedBidAuction, MinimumBid: 500}
	assert.Equal(t, uint64(500), sealed.CurrentPrice(start))
}

func TestAuctionCurrentPriceDecreaseOverflow(t *testing.T) {
	// elapsed * rate wraps uint64; the price must floor at the minimum bid
	// instead of snapping back toward the starting price.
	start := time.Now()
	auction := &Auction{
		Kind:              DutchAuction,
		StartTime:         start,
		EndTime:           start.Add(time.Hour),
		MinimumBid:        1000,
		StartingPrice:     10_000,
		PriceDecreaseRate: math.MaxUint64,
	}

	assert.Equal(t, uint64(1000), auction.CurrentPrice(start.Add(3*time.Second)))
}

func TestAuctionStatusTerminal(t *testing.T) {
	assert.True(t, StatusSettled.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusActive.Terminal())
	assert.False(t, StatusEnded.Terminal())
	assert.False(t, StatusCreated.Terminal())
}
