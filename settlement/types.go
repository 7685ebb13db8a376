package settlement

import (
	"time"

	"github.com/shadowlabs-sol/shadow-protocol-sub000/crypto"
)

// AuctionKind identifies how an auction determines its winner.
type AuctionKind string

const (
	SealedBidAuction AuctionKind = "sealed"
	DutchAuction     AuctionKind = "dutch"
	BatchAuction     AuctionKind = "batch"
)

// Valid returns true if the auction kind is recognized.
func (k AuctionKind) Valid() bool {
	switch k {
	case SealedBidAuction, DutchAuction, BatchAuction:
		return true
	}
	return false
}

// AuctionStatus is the lifecycle state of an auction.
//
// Transitions: Created → Active → Ended → Settled or Cancelled, with
// Cancelled reachable only from Active. Settled and Cancelled are terminal.
type AuctionStatus string

const (
	StatusCreated   AuctionStatus = "created"
	StatusActive    AuctionStatus = "active"
	StatusEnded     AuctionStatus = "ended"
	StatusSettled   AuctionStatus = "settled"
	StatusCancelled AuctionStatus = "cancelled"
)

// Terminal returns true for states that permit no further transitions.
func (s AuctionStatus) Terminal() bool {
	return s == StatusSettled || s == StatusCancelled
}

// Auction is the durable record of one auction.
//
// Winner and WinningAmount are populated if and only if Status is
// StatusSettled; the settlement engine is the only writer of that
// transition.
type Auction struct {
	AuctionID uint64
	Creator   crypto.PublicKey
	AssetMint crypto.PublicKey
	Kind      AuctionKind
	Status    AuctionStatus

	StartTime time.Time
	EndTime   time.Time

	MinimumBid uint64

	// ReserveEnvelope holds the encrypted reserve price. Only the MPC
	// engine can open it.
	ReserveEnvelope *crypto.Envelope

	// Dutch auction pricing. StartingPrice decreases by PriceDecreaseRate
	// per second until the auction ends or a bid accepts.
	StartingPrice     uint64
	PriceDecreaseRate uint64

	BidCount uint32

	// Settlement results. Zero values until the auction settles; Winner
	// stays nil for no-sale settlements (reserve not met).
	Winner        crypto.PublicKey
	WinningAmount uint64
	SettledAt     *time.Time
}

// CurrentPrice returns the Dutch auction asking price at the given time.
// The price decreases linearly from StartingPrice and never drops below
// MinimumBid. Non-Dutch auctions return MinimumBid.
func (a *Auction) CurrentPrice(now time.Time) uint64 {
	if a.Kind != DutchAuction || now.Before(a.StartTime) {
		if a.Kind == DutchAuction {
			return a.StartingPrice
		}
		return a.MinimumBid
	}

	elapsed := uint64(now.Sub(a.StartTime) / time.Second)
	decrease := elapsed * a.PriceDecreaseRate
	// Overflow in the multiplication means the true decrease exceeds any
	// uint64 price, so the floor applies.
	overflowed := elapsed != 0 && decrease/elapsed != a.PriceDecreaseRate
	if overflowed || decrease >= a.StartingPrice || a.StartingPrice-decrease < a.MinimumBid {
		return a.MinimumBid
	}
	return a.StartingPrice - decrease
}

// EndedBy reports whether the auction's end time has passed.
func (a *Auction) EndedBy(now time.Time) bool {
	return !now.Before(a.EndTime)
}

// Bid is one bidder's confidential bid in an auction. The (AuctionID,
// Bidder) pair is unique; at most one bid per auction carries IsWinner,
// and only once the auction is settled.
type Bid struct {
	AuctionID uint64
	Bidder    crypto.PublicKey

	// Envelope holds the encrypted bid amount together with the bidder's
	// ephemeral public key and nonce.
	Envelope *crypto.Envelope

	SubmittedAt time.Time
	IsWinner    bool
}

// SettlementRecord is the immutable audit record of one settlement.
// Its existence for an auction ID is the idempotency guard that makes
// duplicate callback delivery safe.
type SettlementRecord struct {
	// ID is a locally generated identifier for the record.
	ID string

	AuctionID uint64

	// Winner is nil for no-sale settlements.
	Winner        crypto.PublicKey
	WinningAmount uint64

	SettledAt time.Time

	// Payload is the raw authenticated callback payload, kept for audit.
	Payload []byte

	// ComputationID is the externally supplied computation identifier,
	// when the transport provided one.
	ComputationID string
}
