package services

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shadowlabs-sol/shadow-protocol-sub000/crypto"
	"github.com/shadowlabs-sol/shadow-protocol-sub000/metrics"
	"github.com/shadowlabs-sol/shadow-protocol-sub000/protocol"
	"github.com/shadowlabs-sol/shadow-protocol-sub000/settlement"
)

// maxCallbackBody bounds callback request bodies. The largest legitimate
// frame is a batch result; 1 MiB leaves room for tens of thousands of
// batch records.
const maxCallbackBody = 1 << 20

// CallbackHandler exposes the settlement callback endpoint and read-only
// auction surfaces over HTTP. It implements httpserver.RouteRegistrar.
type CallbackHandler struct {
	orchestrator *Orchestrator
	log          *slog.Logger
}

// NewCallbackHandler creates the HTTP handler around an orchestrator.
func NewCallbackHandler(orchestrator *Orchestrator, log *slog.Logger) *CallbackHandler {
	if log == nil {
		log = slog.Default()
	}
	return &CallbackHandler{orchestrator: orchestrator, log: log}
}

// RegisterRoutes registers the callback and read endpoints.
func (h *CallbackHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/v1/callback", h.handleCallback)
	r.Get("/api/v1/auctions/{auctionID}", h.handleGetAuction)
	r.Get("/api/v1/settlements/{auctionID}", h.handleGetSettlement)
}

type callbackResponse struct {
	MempoolID      uint16            `json:"mempoolId"`
	Kind           string            `json:"kind"`
	AlreadySettled bool              `json:"alreadySettled"`
	Outcomes       []outcomeResponse `json:"outcomes"`
}

type outcomeResponse struct {
	AuctionID     uint64 `json:"auctionId"`
	Result        string `json:"result"`
	Winner        string `json:"winner,omitempty"`
	WinningAmount uint64 `json:"winningAmount,omitempty"`
	Fault         string `json:"fault,omitempty"`
}

// handleCallback ingests one raw settlement callback frame. The body is
// the binary frame, not JSON. Redelivered frames respond 200 with
// alreadySettled set, so at-least-once transports converge cleanly.
func (h *CallbackHandler) handleCallback(w http.ResponseWriter, r *http.Request) {
	metrics.IncCallbacksReceived()

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody+1))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(raw) > maxCallbackBody {
		metrics.IncCallbacksRejected("oversized")
		h.writeError(w, http.StatusRequestEntityTooLarge, "callback body too large")
		return
	}

	summary, err := h.orchestrator.IngestCallback(r.Context(), raw)
	if err != nil {
		status, reason := callbackErrorStatus(err)
		metrics.IncCallbacksRejected(reason)
		h.log.Warn("callback rejected", "reason", reason, "err", err)
		h.writeError(w, status, err.Error())
		return
	}

	resp := callbackResponse{
		MempoolID:      summary.MempoolID,
		Kind:           summary.KindName,
		AlreadySettled: summary.AllAlreadySettled(),
		Outcomes:       make([]outcomeResponse, 0, len(summary.Outcomes)),
	}

	// Single-outcome callbacks surface their apply result in the status
	// code. Batches stay 200 with per-auction results, since one bad
	// record must not look like a failed delivery of the others.
	status := http.StatusOK
	if len(summary.Outcomes) == 1 {
		switch summary.Outcomes[0].Result {
		case settlement.ResultAuctionNotFound:
			status = http.StatusNotFound
		case settlement.ResultInvalidTransition:
			status = http.StatusConflict
		}
	}

	for _, o := range summary.Outcomes {
		out := outcomeResponse{
			AuctionID:     o.AuctionID,
			Result:        string(o.Result),
			WinningAmount: o.WinningAmount,
			Fault:         o.Fault,
		}
		if o.Winner != nil {
			out.Winner = o.Winner.String()
		}
		if o.Result == settlement.ResultApplied {
			metrics.IncSettlementsApplied()
		}
		resp.Outcomes = append(resp.Outcomes, out)
	}

	h.writeJSON(w, status, resp)
}

type auctionResponse struct {
	AuctionID     uint64     `json:"auctionId"`
	Creator       string     `json:"creator"`
	AssetMint     string     `json:"assetMint,omitempty"`
	Kind          string     `json:"kind"`
	Status        string     `json:"status"`
	StartTime     time.Time  `json:"startTime"`
	EndTime       time.Time  `json:"endTime"`
	MinimumBid    uint64     `json:"minimumBid"`
	CurrentPrice  uint64     `json:"currentPrice"`
	BidCount      uint32     `json:"bidCount"`
	Winner        string     `json:"winner,omitempty"`
	WinningAmount uint64     `json:"winningAmount,omitempty"`
	SettledAt     *time.Time `json:"settledAt,omitempty"`
}

func (h *CallbackHandler) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	auctionID, err := strconv.ParseUint(chi.URLParam(r, "auctionID"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	auction, err := h.orchestrator.GetAuction(r.Context(), auctionID)
	if err != nil {
		if errors.Is(err, settlement.ErrAuctionNotFound) {
			h.writeError(w, http.StatusNotFound, "auction not found")
			return
		}
		h.log.Error("auction lookup failed", "auctionId", auctionID, "err", err)
		h.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	resp := auctionResponse{
		AuctionID:     auction.AuctionID,
		Creator:       auction.Creator.String(),
		Kind:          string(auction.Kind),
		Status:        string(auction.Status),
		StartTime:     auction.StartTime,
		EndTime:       auction.EndTime,
		MinimumBid:    auction.MinimumBid,
		CurrentPrice:  auction.CurrentPrice(time.Now().UTC()),
		BidCount:      auction.BidCount,
		WinningAmount: auction.WinningAmount,
		SettledAt:     auction.SettledAt,
	}
	if auction.AssetMint != nil {
		resp.AssetMint = auction.AssetMint.String()
	}
	if auction.Winner != nil {
		resp.Winner = auction.Winner.String()
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type settlementResponse struct {
	ID            string    `json:"id"`
	AuctionID     uint64    `json:"auctionId"`
	Winner        string    `json:"winner,omitempty"`
	WinningAmount uint64    `json:"winningAmount"`
	SettledAt     time.Time `json:"settledAt"`
	ComputationID string    `json:"computationId,omitempty"`
}

func (h *CallbackHandler) handleGetSettlement(w http.ResponseWriter, r *http.Request) {
	auctionID, err := strconv.ParseUint(chi.URLParam(r, "auctionID"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	record, err := h.orchestrator.GetSettlement(r.Context(), auctionID)
	if err != nil {
		if errors.Is(err, settlement.ErrAuctionNotFound) {
			h.writeError(w, http.StatusNotFound, "settlement not found")
			return
		}
		h.log.Error("settlement lookup failed", "auctionId", auctionID, "err", err)
		h.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	resp := settlementResponse{
		ID:            record.ID,
		AuctionID:     record.AuctionID,
		WinningAmount: record.WinningAmount,
		SettledAt:     record.SettledAt,
		ComputationID: record.ComputationID,
	}
	if record.Winner != nil {
		resp.Winner = record.Winner.String()
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// callbackErrorStatus maps ingestion pipeline errors to HTTP statuses and
// short rejection reasons for metrics labels.
func callbackErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, protocol.ErrMalformedFrame):
		return http.StatusBadRequest, "malformed_frame"
	case errors.Is(err, protocol.ErrUnknownComputationKind):
		return http.StatusBadRequest, "unknown_kind"
	case errors.Is(err, protocol.ErrTruncatedPayload):
		return http.StatusBadRequest, "truncated_payload"
	case errors.Is(err, crypto.ErrInvalidKeyMaterial):
		return http.StatusBadRequest, "bad_key_material"
	case errors.Is(err, ErrSignatureInvalid):
		return http.StatusUnauthorized, "signature_invalid"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (h *CallbackHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("failed to write response", "err", err)
	}
}

func (h *CallbackHandler) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg}) //nolint:errcheck
}
