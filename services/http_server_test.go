package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowlabs-sol/shadow-protocol-sub000/protocol"
	"github.com/shadowlabs-sol/shadow-protocol-sub000/settlement"
	"github.com/shadowlabs-sol/shadow-protocol-sub000/testutil"
)

func newTestRouter(t *testing.T) (*testHarness, chi.Router) {
	t.Helper()

	h := newTestHarness(t)
	router := chi.NewRouter()
	NewCallbackHandler(h.orch, nil).RegisterRoutes(router)
	return h, router
}

func postCallback(router chi.Router, frame []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/callback", bytes.NewReader(frame))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func endedAuction(t *testing.T, h *testHarness, auctionID uint64) {
	t.Helper()
	ctx := context.Background()

	_, err := h.orch.CreateAuction(ctx, sealedParams(t, auctionID))
	require.NoError(t, err)
	h.advance(2 * time.Hour)
	require.NoError(t, h.store.UpdateAuctionStatus(ctx, auctionID, settlement.AuctionUpdate{
		Status: settlement.StatusEnded,
	}))
}

func TestCallbackEndpoint(t *testing.T) {
	h, router := newTestRouter(t)
	endedAuction(t, h, 1)

	signer := testutil.NewSigner(t)
	payload := testutil.SealedBidPayload(1, testutil.AccountID(0xAA), 600, true)
	frame := testutil.SignedFrame(t, signer, 3, protocol.KindSealedBid, payload)

	rec := postCallback(router, frame)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp callbackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint16(3), resp.MempoolID)
	assert.Equal(t, "sealed_bid", resp.Kind)
	assert.False(t, resp.AlreadySettled)
	require.Len(t, resp.Outcomes, 1)
	assert.Equal(t, "applied", resp.Outcomes[0].Result)
	assert.Equal(t, uint64(600), resp.Outcomes[0].WinningAmount)
}

func TestCallbackEndpointRedelivery(t *testing.T) {
	h, router := newTestRouter(t)
	endedAuction(t, h, 1)

	signer := testutil.NewSigner(t)
	payload := testutil.SealedBidPayload(1, testutil.AccountID(0xAA), 600, true)
	frame := testutil.SignedFrame(t, signer, 3, protocol.KindSealedBid, payload)

	require.Equal(t, http.StatusOK, postCallback(router, frame).Code)

	// The retried delivery converges with 200, flagged as a duplicate.
	rec := postCallback(router, frame)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp callbackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.AlreadySettled)
}

func TestCallbackEndpointRejections(t *testing.T) {
	_, router := newTestRouter(t)
	signer := testutil.NewSigner(t)
	payload := testutil.SealedBidPayload(1, testutil.AccountID(0xAA), 600, true)

	t.Run("malformed frame", func(t *testing.T) {
		rec := postCallback(router, make([]byte, 12))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad signature", func(t *testing.T) {
		frame := testutil.SignedFrame(t, signer, 3, protocol.KindSealedBid, payload)
		frame[len(frame)-1] ^= 0xFF
		rec := postCallback(router, frame)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown kind", func(t *testing.T) {
		frame := testutil.SignedFrame(t, signer, 3, protocol.ComputationKind(0x01010101), payload)
		rec := postCallback(router, frame)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("truncated payload", func(t *testing.T) {
		frame := testutil.SignedFrame(t, signer, 3, protocol.KindSealedBid, payload[:10])
		rec := postCallback(router, frame)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown auction", func(t *testing.T) {
		frame := testutil.SignedFrame(t, signer, 3, protocol.KindSealedBid,
			testutil.SealedBidPayload(404, testutil.AccountID(0xAA), 600, true))
		rec := postCallback(router, frame)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCallbackEndpointInvalidTransition(t *testing.T) {
	h, router := newTestRouter(t)

	params := sealedParams(t, 1)
	_, err := h.orch.CreateAuction(context.Background(), params)
	require.NoError(t, err)
	require.NoError(t, h.orch.CancelAuction(context.Background(), 1, params.Creator))

	signer := testutil.NewSigner(t)
	frame := testutil.SignedFrame(t, signer, 3, protocol.KindSealedBid,
		testutil.SealedBidPayload(1, testutil.AccountID(0xAA), 600, true))

	rec := postCallback(router, frame)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetAuctionEndpoint(t *testing.T) {
	h, router := newTestRouter(t)

	_, err := h.orch.CreateAuction(context.Background(), sealedParams(t, 1))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auctions/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp auctionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(1), resp.AuctionID)
	assert.Equal(t, "active", resp.Status)
	assert.Equal(t, uint64(100), resp.MinimumBid)
	assert.Empty(t, resp.Winner)

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auctions/99", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auctions/banana", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetSettlementEndpoint(t *testing.T) {
	h, router := newTestRouter(t)
	endedAuction(t, h, 1)

	t.Run("before settlement", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/settlements/1", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	signer := testutil.NewSigner(t)
	payload := testutil.SealedBidPayload(1, testutil.AccountID(0xAA), 600, true)
	require.Equal(t, http.StatusOK, postCallback(router, testutil.SignedFrame(t, signer, 3, protocol.KindSealedBid, payload)).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/settlements/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp settlementResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(1), resp.AuctionID)
	assert.Equal(t, uint64(600), resp.WinningAmount)
	assert.NotEmpty(t, resp.ID)
	assert.NotEmpty(t, resp.ComputationID)
}
