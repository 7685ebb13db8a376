package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shadowlabs-sol/shadow-protocol-sub000/crypto"
	"github.com/shadowlabs-sol/shadow-protocol-sub000/protocol"
	"github.com/shadowlabs-sol/shadow-protocol-sub000/settlement"
)

var (
	// ErrSignatureInvalid indicates a callback payload whose detached
	// signature did not verify against the embedded signer key, or whose
	// signer is not the trusted MPC cluster key.
	ErrSignatureInvalid = errors.New("callback signature invalid")

	// ErrComputationTimeout indicates a bounded finalization wait that
	// expired. Recoverable: the auction stays in its prior state and the
	// caller may retry or fall back to the callback channel.
	ErrComputationTimeout = errors.New("computation finalization timed out")

	// ErrAuctionNotSettleable indicates a settlement request for an
	// auction that has not ended yet.
	ErrAuctionNotSettleable = errors.New("auction has not ended")

	// ErrAuctionClosed indicates a bid against an auction that is not
	// accepting bids.
	ErrAuctionClosed = errors.New("auction is not accepting bids")

	// ErrBidTooLow indicates a bid below the auction's minimum or, for
	// Dutch auctions, below the current asking price.
	ErrBidTooLow = errors.New("bid below required price")

	// ErrNotCreator indicates a cancel request from someone other than
	// the auction's creator.
	ErrNotCreator = errors.New("only the auction creator may cancel")

	// ErrCancelNotAllowed indicates a cancel request for an auction that
	// is not Active or already has bids.
	ErrCancelNotAllowed = errors.New("auction cannot be cancelled")

	// ErrInvalidParams indicates auction creation parameters that fail
	// validation.
	ErrInvalidParams = errors.New("invalid auction parameters")
)

// MaxAuctionDuration bounds auction lifetimes at creation.
const MaxAuctionDuration = 30 * 24 * time.Hour

// Instruction is an opaque on-chain program instruction. Its encoding is
// the chain client's concern; the orchestrator only names the method and
// attaches the relevant bytes.
type Instruction struct {
	Method    string
	AuctionID uint64
	Data      []byte
}

// Instruction method names submitted by the orchestrator.
const (
	MethodCreateAuction   = "create_auction"
	MethodSubmitBid       = "submit_bid"
	MethodCancelAuction   = "cancel_auction"
	MethodSettleAuction   = "settle_auction"
	MethodBatchSettlement = "batch_settle"
)

// ChainClient is the on-chain program interface the orchestrator consumes.
//
// AwaitFinalization blocks until the computation identified by handle
// finalizes, the timeout passes, or ctx is cancelled. On success it
// returns the raw settlement callback frame; on timeout it returns
// ErrComputationTimeout. Implementations must not produce side effects
// before the wait completes, so cancellation is always safe.
type ChainClient interface {
	SubmitTransaction(ctx context.Context, instruction Instruction) (signature string, err error)
	ReadAccount(ctx context.Context, address crypto.PublicKey) ([]byte, error)
	AwaitFinalization(ctx context.Context, handle string, timeout time.Duration) ([]byte, error)
}

// OrchestratorConfig configures the auction lifecycle orchestrator.
type OrchestratorConfig struct {
	// EnginePublicKey is the MPC engine's published X25519 exchange key;
	// every reserve price and bid amount is sealed to it.
	EnginePublicKey []byte

	// TrustedSigner, when set, pins the Ed25519 key callbacks must be
	// signed with. When nil, any key embedded in the frame is accepted
	// once its signature over the payload verifies.
	TrustedSigner crypto.PublicKey

	// Log is the structured logger for orchestrator operations.
	Log *slog.Logger
}

// CreateAuctionParams are the inputs for auction creation. ReservePrice
// is sealed before anything leaves the process; it is never persisted or
// transmitted in the clear.
type CreateAuctionParams struct {
	AuctionID    uint64
	Creator      crypto.PublicKey
	AssetMint    crypto.PublicKey
	Kind         settlement.AuctionKind
	Duration     time.Duration
	MinimumBid   uint64
	ReservePrice uint64

	// Dutch auction pricing; ignored for other kinds.
	StartingPrice     uint64
	PriceDecreaseRate uint64
}

// CreatedAuction reports a successful auction creation.
type CreatedAuction struct {
	Auction     *settlement.Auction
	TxSignature string
}

// SubmittedBid reports a successful bid submission.
type SubmittedBid struct {
	Bid         *settlement.Bid
	TxSignature string
}

// SettlementRequest reports a settlement trigger and, when the bounded
// wait succeeded, the applied results.
type SettlementRequest struct {
	TxSignature string
	Summary     *IngestSummary
}

// IngestSummary is the structured result of one callback ingestion.
type IngestSummary struct {
	MempoolID uint16                     `json:"mempoolId"`
	Kind      protocol.ComputationKind   `json:"-"`
	KindName  string                     `json:"kind"`
	Outcomes  []*settlement.ApplyOutcome `json:"outcomes"`
}

// AllAlreadySettled reports whether every outcome in the summary was a
// duplicate. Used by the HTTP layer to flag idempotent redeliveries.
func (s *IngestSummary) AllAlreadySettled() bool {
	if len(s.Outcomes) == 0 {
		return false
	}
	for _, o := range s.Outcomes {
		if o.Result != settlement.ResultAlreadySettled {
			return false
		}
	}
	return true
}
