package settlement

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shadowlabs-sol/shadow-protocol-sub000/crypto"
	"github.com/shadowlabs-sol/shadow-protocol-sub000/protocol"
)

// ApplyResult classifies the outcome of one settlement application.
type ApplyResult string

const (
	// ResultApplied: the settlement was recorded and the auction settled.
	ResultApplied ApplyResult = "applied"

	// ResultAlreadySettled: a settlement record already existed. Not an
	// error — duplicate delivery on an at-least-once transport.
	ResultAlreadySettled ApplyResult = "already_settled"

	// ResultAuctionNotFound: no auction exists for the outcome's ID.
	ResultAuctionNotFound ApplyResult = "auction_not_found"

	// ResultInvalidTransition: the auction is Created or Cancelled and
	// cannot settle. Nothing was mutated.
	ResultInvalidTransition ApplyResult = "invalid_transition"
)

// ApplyOutcome reports what one settlement application did.
type ApplyOutcome struct {
	AuctionID     uint64
	Result        ApplyResult
	Winner        crypto.PublicKey
	WinningAmount uint64

	// Fault notes a data-integrity problem that did not prevent the
	// settlement itself, e.g. no stored bid matching the winner.
	Fault string

	// Err is set when the store failed mid-application; the settlement
	// for this auction is then in the state the guard left it in.
	Err error
}

// Audit carries the provenance attached to settlement records.
type Audit struct {
	// Payload is the raw authenticated callback payload.
	Payload []byte

	// ComputationID is the externally supplied computation identifier,
	// empty when the transport had none.
	ComputationID string
}

// Engine applies decoded settlement outcomes to auction state.
//
// The engine owns the Created → Active → Ended → Settled/Cancelled state
// machine from the settlement side: it only ever writes the transition to
// Settled, and it relies on the store's atomic settlement insert to make
// that transition exactly-once under concurrent and duplicate delivery.
// It does not own the clock; Active auctions whose end time has passed
// externally are tolerated as late-arriving results.
type Engine struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

// NewEngine creates a settlement engine over the given store.
func NewEngine(store Store, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// ApplySettlement applies one decoded outcome to its auction.
//
// The sequence is: load auction, check the status precondition, resolve
// the winner identity, then CreateSettlement — the atomic guard — and only
// after winning that race mutate the auction and the winning bid. A
// duplicate delivery loses the guard and returns ResultAlreadySettled with
// no further mutation.
func (e *Engine) ApplySettlement(ctx context.Context, outcome protocol.AuctionOutcome, audit Audit) (*ApplyOutcome, error) {
	applied := &ApplyOutcome{AuctionID: outcome.AuctionID}

	auction, err := e.store.FindAuction(ctx, outcome.AuctionID)
	if errors.Is(err, ErrAuctionNotFound) {
		applied.Result = ResultAuctionNotFound
		return applied, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading auction %d: %w", outcome.AuctionID, err)
	}

	// Created auctions have nothing to settle and Cancelled is terminal.
	// Settled falls through: the settlement insert below is the
	// authoritative duplicate check, not this status read.
	if auction.Status == StatusCreated || auction.Status == StatusCancelled {
		applied.Result = ResultInvalidTransition
		return applied, nil
	}

	winner, fault, err := e.resolveWinner(ctx, outcome)
	if err != nil {
		return nil, fmt.Errorf("resolving winner for auction %d: %w", outcome.AuctionID, err)
	}
	applied.Fault = fault

	settledAt := e.now().UTC()
	record := &SettlementRecord{
		ID:            uuid.NewString(),
		AuctionID:     outcome.AuctionID,
		Winner:        winner,
		WinningAmount: outcome.WinningAmount,
		SettledAt:     settledAt,
		Payload:       audit.Payload,
		ComputationID: audit.ComputationID,
	}

	err = e.store.CreateSettlement(ctx, record)
	if errors.Is(err, ErrSettlementExists) {
		applied.Result = ResultAlreadySettled
		applied.Fault = ""
		return applied, nil
	}
	if err != nil {
		return nil, fmt.Errorf("creating settlement for auction %d: %w", outcome.AuctionID, err)
	}

	amount := outcome.WinningAmount
	update := AuctionUpdate{
		Status:        StatusSettled,
		Winner:        winner,
		WinningAmount: &amount,
		SettledAt:     &settledAt,
	}
	if err := e.store.UpdateAuctionStatus(ctx, outcome.AuctionID, update); err != nil {
		// The record exists, so the settlement is durable; report the
		// partial apply rather than pretending it did not happen.
		applied.Result = ResultApplied
		applied.Err = fmt.Errorf("updating auction %d after settlement: %w", outcome.AuctionID, err)
		return applied, nil
	}

	applied.Result = ResultApplied
	applied.Winner = winner
	applied.WinningAmount = amount

	if winner != nil && fault == "" {
		if err := e.store.MarkBidWinner(ctx, outcome.AuctionID, winner); err != nil {
			// The authoritative settlement already succeeded; a missing
			// bid row is a data-integrity fault, not a failed apply.
			applied.Fault = fmt.Sprintf("marking winning bid: %v", err)
			e.log.Warn("winning bid not found for settled auction",
				"auctionId", outcome.AuctionID, "winner", winner.String(), "err", err)
		}
	}

	return applied, nil
}

// ApplyBatch applies each outcome independently. One auction's failure
// does not roll back or stop the others; per-auction results are returned
// in input order.
func (e *Engine) ApplyBatch(ctx context.Context, outcomes []protocol.AuctionOutcome, audit Audit) []*ApplyOutcome {
	applied := make([]*ApplyOutcome, 0, len(outcomes))
	for _, outcome := range outcomes {
		res, err := e.ApplySettlement(ctx, outcome, audit)
		if err != nil {
			res = &ApplyOutcome{AuctionID: outcome.AuctionID, Err: err}
			e.log.Error("batch settlement item failed",
				"auctionId", outcome.AuctionID, "err", err)
		}
		applied = append(applied, res)
	}
	return applied
}

// resolveWinner maps a decoded outcome's winner field to a full account
// identity.
//
// Sealed-bid results carry a 16-byte truncated identity; the full identity
// is recovered by matching stored bidders on that prefix. Zero or multiple
// prefix matches are reported as a fault and the zero-filled expansion is
// recorded instead — the settlement itself still proceeds, since the
// authenticated result is authoritative.
func (e *Engine) resolveWinner(ctx context.Context, outcome protocol.AuctionOutcome) (crypto.PublicKey, string, error) {
	if !outcome.HasWinner {
		return nil, "", nil
	}

	if !outcome.WinnerTruncated {
		return crypto.NewPublicKeyFromBytes(outcome.Winner[:]), "", nil
	}

	bids, err := e.store.ListBids(ctx, outcome.AuctionID)
	if err != nil {
		return nil, "", err
	}

	prefix := outcome.Winner[:16]
	var match crypto.PublicKey
	matches := 0
	for _, bid := range bids {
		if len(bid.Bidder) >= 16 && bytes.Equal(bid.Bidder[:16], prefix) {
			match = bid.Bidder
			matches++
		}
	}

	switch matches {
	case 1:
		return match, "", nil
	case 0:
		return crypto.NewPublicKeyFromBytes(outcome.Winner[:]),
			"no bid matches truncated winner identity", nil
	default:
		return crypto.NewPublicKeyFromBytes(outcome.Winner[:]),
			fmt.Sprintf("truncated winner identity matches %d bids", matches), nil
	}
}
