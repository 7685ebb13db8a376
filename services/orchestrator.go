package services

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shadowlabs-sol/shadow-protocol-sub000/crypto"
	"github.com/shadowlabs-sol/shadow-protocol-sub000/protocol"
	"github.com/shadowlabs-sol/shadow-protocol-sub000/settlement"
)

// Orchestrator coordinates auction creation, bidding, settlement requests,
// and callback ingestion against the external store and chain program.
type Orchestrator struct {
	cfg    *OrchestratorConfig
	store  settlement.Store
	engine *settlement.Engine
	chain  ChainClient
	log    *slog.Logger
	now    func() time.Time
}

// NewOrchestrator creates the lifecycle orchestrator.
func NewOrchestrator(cfg *OrchestratorConfig, store settlement.Store, chain ChainClient) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if len(cfg.EnginePublicKey) != 32 {
		return nil, crypto.ErrInvalidKeyMaterial
	}
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if chain == nil {
		return nil, errors.New("chain client cannot be nil")
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &Orchestrator{
		cfg:    cfg,
		store:  store,
		engine: settlement.NewEngine(store, log),
		chain:  chain,
		log:    log,
		now:    time.Now,
	}, nil
}

// CreateAuction seals the reserve price, submits the on-chain create
// instruction, and persists the auction record.
func (o *Orchestrator) CreateAuction(ctx context.Context, params CreateAuctionParams) (*CreatedAuction, error) {
	if err := validateCreateParams(params); err != nil {
		return nil, err
	}

	reserveEnv, err := crypto.Seal(params.ReservePrice, o.cfg.EnginePublicKey)
	if err != nil {
		return nil, fmt.Errorf("sealing reserve price: %w", err)
	}

	now := o.now().UTC()
	auction := &settlement.Auction{
		AuctionID:         params.AuctionID,
		Creator:           params.Creator,
		AssetMint:         params.AssetMint,
		Kind:              params.Kind,
		Status:            settlement.StatusActive,
		StartTime:         now,
		EndTime:           now.Add(params.Duration),
		MinimumBid:        params.MinimumBid,
		ReserveEnvelope:   reserveEnv,
		StartingPrice:     params.StartingPrice,
		PriceDecreaseRate: params.PriceDecreaseRate,
	}

	sig, err := o.chain.SubmitTransaction(ctx, Instruction{
		Method:    MethodCreateAuction,
		AuctionID: params.AuctionID,
		Data:      envelopeBytes(reserveEnv),
	})
	if err != nil {
		return nil, fmt.Errorf("submitting create instruction: %w", err)
	}

	if err := o.store.CreateAuction(ctx, auction); err != nil {
		return nil, fmt.Errorf("persisting auction %d: %w", params.AuctionID, err)
	}

	o.log.Info("auction created",
		"auctionId", params.AuctionID, "kind", string(params.Kind), "tx", sig)

	return &CreatedAuction{Auction: auction, TxSignature: sig}, nil
}

// SubmitBid seals the bid amount, submits it on-chain, and persists the
// bid record. The cleartext amount never leaves this call.
func (o *Orchestrator) SubmitBid(ctx context.Context, auctionID uint64, bidder crypto.PublicKey, amount uint64) (*SubmittedBid, error) {
	auction, err := o.store.FindAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	now := o.now().UTC()
	if auction.Status != settlement.StatusActive || auction.EndedBy(now) {
		return nil, ErrAuctionClosed
	}
	if amount < auction.MinimumBid {
		return nil, ErrBidTooLow
	}
	if auction.Kind == settlement.DutchAuction && amount < auction.CurrentPrice(now) {
		return nil, ErrBidTooLow
	}

	env, err := crypto.Seal(amount, o.cfg.EnginePublicKey)
	if err != nil {
		return nil, fmt.Errorf("sealing bid amount: %w", err)
	}

	sig, err := o.chain.SubmitTransaction(ctx, Instruction{
		Method:    MethodSubmitBid,
		AuctionID: auctionID,
		Data:      envelopeBytes(env),
	})
	if err != nil {
		return nil, fmt.Errorf("submitting bid instruction: %w", err)
	}

	bid := &settlement.Bid{
		AuctionID:   auctionID,
		Bidder:      bidder,
		Envelope:    env,
		SubmittedAt: now,
	}
	if err := o.store.CreateBid(ctx, bid); err != nil {
		return nil, fmt.Errorf("persisting bid: %w", err)
	}

	count := auction.BidCount + 1
	if err := o.store.UpdateAuctionStatus(ctx, auctionID, settlement.AuctionUpdate{BidCount: &count}); err != nil {
		o.log.Warn("failed to bump bid count", "auctionId", auctionID, "err", err)
	}

	o.log.Info("bid submitted", "auctionId", auctionID, "bidder", bidder.String(), "tx", sig)

	return &SubmittedBid{Bid: bid, TxSignature: sig}, nil
}

// CancelAuction cancels an Active auction with no bids. Only the creator
// may cancel; Cancelled is terminal.
func (o *Orchestrator) CancelAuction(ctx context.Context, auctionID uint64, requester crypto.PublicKey) error {
	auction, err := o.store.FindAuction(ctx, auctionID)
	if err != nil {
		return err
	}
	if !auction.Creator.Equal(requester) {
		return ErrNotCreator
	}
	if auction.Status != settlement.StatusActive || auction.BidCount > 0 {
		return ErrCancelNotAllowed
	}

	if _, err := o.chain.SubmitTransaction(ctx, Instruction{
		Method:    MethodCancelAuction,
		AuctionID: auctionID,
	}); err != nil {
		return fmt.Errorf("submitting cancel instruction: %w", err)
	}

	return o.store.UpdateAuctionStatus(ctx, auctionID, settlement.AuctionUpdate{
		Status: settlement.StatusCancelled,
	})
}

// RequestSettlement submits the on-chain settlement trigger for an ended
// auction, then waits (bounded by timeout) for the computation to
// finalize. On timeout the auction keeps its prior state and the caller
// may retry or rely on the HTTP callback channel instead; the returned
// error wraps ErrComputationTimeout.
func (o *Orchestrator) RequestSettlement(ctx context.Context, auctionID uint64, timeout time.Duration) (*SettlementRequest, error) {
	auction, err := o.store.FindAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	if auction.Status == settlement.StatusSettled {
		// Nothing to trigger; report the existing settlement.
		return o.settledSummary(ctx, auction)
	}
	if err := o.ensureEnded(ctx, auction); err != nil {
		return nil, err
	}

	method := MethodSettleAuction
	if auction.Kind == settlement.BatchAuction {
		method = MethodBatchSettlement
	}

	sig, err := o.chain.SubmitTransaction(ctx, Instruction{Method: method, AuctionID: auctionID})
	if err != nil {
		return nil, fmt.Errorf("submitting settlement trigger: %w", err)
	}

	return o.awaitAndIngest(ctx, sig, timeout)
}

// RequestBatchSettlement triggers settlement of several ended auctions in
// one computation. Already-settled auctions pass through; the engine
// reports them as duplicates when the result arrives.
func (o *Orchestrator) RequestBatchSettlement(ctx context.Context, auctionIDs []uint64, timeout time.Duration) (*SettlementRequest, error) {
	if len(auctionIDs) == 0 {
		return nil, fmt.Errorf("%w: no auctions given", ErrInvalidParams)
	}

	for _, id := range auctionIDs {
		auction, err := o.store.FindAuction(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("auction %d: %w", id, err)
		}
		if auction.Status == settlement.StatusSettled {
			continue
		}
		if err := o.ensureEnded(ctx, auction); err != nil {
			return nil, fmt.Errorf("auction %d: %w", id, err)
		}
	}

	data := make([]byte, 0, 8*len(auctionIDs))
	for _, id := range auctionIDs {
		data = binary.LittleEndian.AppendUint64(data, id)
	}

	sig, err := o.chain.SubmitTransaction(ctx, Instruction{Method: MethodBatchSettlement, Data: data})
	if err != nil {
		return nil, fmt.Errorf("submitting batch settlement trigger: %w", err)
	}

	return o.awaitAndIngest(ctx, sig, timeout)
}

// ensureEnded verifies an auction is settleable, recording the
// Active→Ended transition when the end time passed without one.
func (o *Orchestrator) ensureEnded(ctx context.Context, auction *settlement.Auction) error {
	switch auction.Status {
	case settlement.StatusEnded:
		return nil
	case settlement.StatusActive:
		if !auction.EndedBy(o.now().UTC()) {
			return ErrAuctionNotSettleable
		}
		if err := o.store.UpdateAuctionStatus(ctx, auction.AuctionID, settlement.AuctionUpdate{
			Status: settlement.StatusEnded,
		}); err != nil {
			return fmt.Errorf("marking auction %d ended: %w", auction.AuctionID, err)
		}
		return nil
	default:
		return ErrAuctionNotSettleable
	}
}

func (o *Orchestrator) awaitAndIngest(ctx context.Context, sig string, timeout time.Duration) (*SettlementRequest, error) {
	frame, err := o.chain.AwaitFinalization(ctx, sig, timeout)
	if err != nil {
		if errors.Is(err, ErrComputationTimeout) {
			return nil, fmt.Errorf("settlement trigger %s: %w", sig, err)
		}
		return nil, fmt.Errorf("awaiting finalization: %w", err)
	}

	summary, err := o.IngestCallback(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("ingesting finalization result: %w", err)
	}

	return &SettlementRequest{TxSignature: sig, Summary: summary}, nil
}

// IngestCallback runs the settlement ingestion pipeline over one raw
// callback message: parse the frame, verify the payload signature, decode
// by computation kind, and apply the outcomes. Any failure before the
// apply step leaves no partial effects, so the transport may redeliver
// the identical bytes; duplicates resolve to AlreadySettled outcomes.
func (o *Orchestrator) IngestCallback(ctx context.Context, raw []byte) (*IngestSummary, error) {
	cb, err := protocol.ParseCallbackFrame(raw)
	if err != nil {
		return nil, err
	}

	if o.cfg.TrustedSigner != nil && !cb.SignerPublicKey.Equal(o.cfg.TrustedSigner) {
		return nil, fmt.Errorf("%w: signer %s is not the trusted cluster key",
			ErrSignatureInvalid, cb.SignerPublicKey.String())
	}

	ok, err := crypto.VerifyDetached(cb.Payload, cb.DataSignature, cb.SignerPublicKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSignatureInvalid
	}

	outcomes, err := protocol.DecodeResult(cb.Kind, cb.Payload)
	if err != nil {
		return nil, err
	}

	audit := settlement.Audit{
		Payload:       append([]byte(nil), cb.Payload...),
		ComputationID: hex.EncodeToString(cb.TransactionSignature[:]),
	}
	applied := o.engine.ApplyBatch(ctx, outcomes, audit)

	for _, res := range applied {
		o.log.Info("settlement outcome applied",
			"auctionId", res.AuctionID, "result", string(res.Result),
			"kind", cb.Kind.String(), "fault", res.Fault)
	}

	return &IngestSummary{
		MempoolID: cb.MempoolID,
		Kind:      cb.Kind,
		KindName:  cb.Kind.String(),
		Outcomes:  applied,
	}, nil
}

// GetAuction loads one auction for read surfaces.
func (o *Orchestrator) GetAuction(ctx context.Context, auctionID uint64) (*settlement.Auction, error) {
	return o.store.FindAuction(ctx, auctionID)
}

// GetSettlement loads one settlement record for read surfaces.
func (o *Orchestrator) GetSettlement(ctx context.Context, auctionID uint64) (*settlement.SettlementRecord, error) {
	return o.store.FindSettlement(ctx, auctionID)
}

func (o *Orchestrator) settledSummary(ctx context.Context, auction *settlement.Auction) (*SettlementRequest, error) {
	record, err := o.store.FindSettlement(ctx, auction.AuctionID)
	if err != nil {
		return nil, fmt.Errorf("loading settlement for settled auction %d: %w", auction.AuctionID, err)
	}
	return &SettlementRequest{
		Summary: &IngestSummary{
			Outcomes: []*settlement.ApplyOutcome{{
				AuctionID:     auction.AuctionID,
				Result:        settlement.ResultAlreadySettled,
				Winner:        record.Winner,
				WinningAmount: record.WinningAmount,
			}},
		},
	}, nil
}

func validateCreateParams(params CreateAuctionParams) error {
	if params.AuctionID == 0 {
		return fmt.Errorf("%w: auction id must be nonzero", ErrInvalidParams)
	}
	if !params.Kind.Valid() {
		return fmt.Errorf("%w: unknown auction kind %q", ErrInvalidParams, params.Kind)
	}
	if params.Duration <= 0 || params.Duration > MaxAuctionDuration {
		return fmt.Errorf("%w: duration must be in (0, %s]", ErrInvalidParams, MaxAuctionDuration)
	}
	if params.MinimumBid == 0 {
		return fmt.Errorf("%w: minimum bid must be nonzero", ErrInvalidParams)
	}
	if params.Kind == settlement.DutchAuction {
		if params.StartingPrice < params.MinimumBid {
			return fmt.Errorf("%w: starting price below minimum bid", ErrInvalidParams)
		}
		if params.PriceDecreaseRate == 0 {
			return fmt.Errorf("%w: price decrease rate must be nonzero", ErrInvalidParams)
		}
	}
	return nil
}

// envelopeBytes flattens an envelope for the opaque instruction data:
// ciphertext, then nonce, then ephemeral public key.
func envelopeBytes(env *crypto.Envelope) []byte {
	data := make([]byte, 0, len(env.Ciphertext)+len(env.Nonce)+len(env.EphemeralPublicKey))
	data = append(data, env.Ciphertext...)
	data = append(data, env.Nonce[:]...)
	data = append(data, env.EphemeralPublicKey[:]...)
	return data
}
