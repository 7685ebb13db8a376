package settlement

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shadowlabs-sol/shadow-protocol-sub000/crypto"
)

var (
	// ErrAuctionNotFound indicates no auction exists for the given ID.
	ErrAuctionNotFound = errors.New("auction not found")

	// ErrAuctionExists indicates an auction ID collision on create.
	ErrAuctionExists = errors.New("auction already exists")

	// ErrBidNotFound indicates no bid exists for the (auction, bidder) pair.
	ErrBidNotFound = errors.New("bid not found")

	// ErrBidExists indicates the bidder already bid in this auction.
	ErrBidExists = errors.New("bid already exists")

	// ErrSettlementExists is the conflict result of the atomic settlement
	// insert. It is the store-level idempotency guard: whichever caller
	// sees it lost the race and must not mutate further.
	ErrSettlementExists = errors.New("settlement record already exists")
)

// AuctionUpdate carries the mutable auction fields for a conditional
// status update. Nil pointer fields are left unchanged.
type AuctionUpdate struct {
	Status        AuctionStatus
	Winner        crypto.PublicKey
	WinningAmount *uint64
	SettledAt     *time.Time
	BidCount      *uint32
}

// Store is the record store consumed by the settlement engine and the
// lifecycle orchestrator.
//
// CreateSettlement must be atomic: exactly one caller per auction ID ever
// sees success, all others get ErrSettlementExists. The engine performs no
// read-then-write around settlement creation; that single primitive
// serializes concurrent settlement attempts for the same auction.
type Store interface {
	CreateAuction(ctx context.Context, auction *Auction) error
	FindAuction(ctx context.Context, auctionID uint64) (*Auction, error)
	UpdateAuctionStatus(ctx context.Context, auctionID uint64, update AuctionUpdate) error

	CreateBid(ctx context.Context, bid *Bid) error
	ListBids(ctx context.Context, auctionID uint64) ([]*Bid, error)
	MarkBidWinner(ctx context.Context, auctionID uint64, bidder crypto.PublicKey) error

	CreateSettlement(ctx context.Context, record *SettlementRecord) error
	FindSettlement(ctx context.Context, auctionID uint64) (*SettlementRecord, error)
}

// InMemoryStore implements Store without a database. Used by tests and
// single-process deployments; the mutex provides the same serialization
// the Postgres unique constraint does.
type InMemoryStore struct {
	mu          sync.Mutex
	auctions    map[uint64]*Auction
	bids        map[uint64][]*Bid
	settlements map[uint64]*SettlementRecord
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		auctions:    make(map[uint64]*Auction),
		bids:        make(map[uint64][]*Bid),
		settlements: make(map[uint64]*SettlementRecord),
	}
}

// CreateAuction stores a new auction record.
func (s *InMemoryStore) CreateAuction(ctx context.Context, auction *Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.auctions[auction.AuctionID]; ok {
		return ErrAuctionExists
	}
	cp := *auction
	s.auctions[auction.AuctionID] = &cp
	return nil
}

// FindAuction returns a copy of the auction record.
func (s *InMemoryStore) FindAuction(ctx context.Context, auctionID uint64) (*Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	auction, ok := s.auctions[auctionID]
	if !ok {
		return nil, ErrAuctionNotFound
	}
	cp := *auction
	return &cp, nil
}

// UpdateAuctionStatus applies the update to the stored auction.
func (s *InMemoryStore) UpdateAuctionStatus(ctx context.Context, auctionID uint64, update AuctionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	auction, ok := s.auctions[auctionID]
	if !ok {
		return ErrAuctionNotFound
	}

	if update.Status != "" {
		auction.Status = update.Status
	}
	if update.Winner != nil {
		auction.Winner = crypto.NewPublicKeyFromBytes(update.Winner)
	}
	if update.WinningAmount != nil {
		auction.WinningAmount = *update.WinningAmount
	}
	if update.SettledAt != nil {
		t := *update.SettledAt
		auction.SettledAt = &t
	}
	if update.BidCount != nil {
		auction.BidCount = *update.BidCount
	}
	return nil
}

// CreateBid stores a new bid; one bid per (auction, bidder) pair.
func (s *InMemoryStore) CreateBid(ctx context.Context, bid *Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.auctions[bid.AuctionID]; !ok {
		return ErrAuctionNotFound
	}
	for _, existing := range s.bids[bid.AuctionID] {
		if existing.Bidder.Equal(bid.Bidder) {
			return ErrBidExists
		}
	}
	cp := *bid
	s.bids[bid.AuctionID] = append(s.bids[bid.AuctionID], &cp)
	return nil
}

// ListBids returns copies of all bids for an auction.
func (s *InMemoryStore) ListBids(ctx context.Context, auctionID uint64) ([]*Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bids := make([]*Bid, 0, len(s.bids[auctionID]))
	for _, bid := range s.bids[auctionID] {
		cp := *bid
		bids = append(bids, &cp)
	}
	return bids, nil
}

// MarkBidWinner flips IsWinner on the matching bid.
func (s *InMemoryStore) MarkBidWinner(ctx context.Context, auctionID uint64, bidder crypto.PublicKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, bid := range s.bids[auctionID] {
		if bid.Bidder.Equal(bidder) {
			bid.IsWinner = true
			return nil
		}
	}
	return ErrBidNotFound
}

// CreateSettlement stores the settlement record, or returns
// ErrSettlementExists if one already exists for the auction ID.
func (s *InMemoryStore) CreateSettlement(ctx context.Context, record *SettlementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.settlements[record.AuctionID]; ok {
		return ErrSettlementExists
	}
	cp := *record
	cp.Payload = append([]byte(nil), record.Payload...)
	s.settlements[record.AuctionID] = &cp
	return nil
}

// FindSettlement returns a copy of the settlement record for an auction.
func (s *InMemoryStore) FindSettlement(ctx context.Context, auctionID uint64) (*SettlementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.settlements[auctionID]
	if !ok {
		return nil, ErrAuctionNotFound
	}
	cp := *record
	return &cp, nil
}
