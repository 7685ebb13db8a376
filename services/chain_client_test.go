package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingGateway(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAwaitFinalizationTimeout(t *testing.T) {
	srv := newPendingGateway(t)
	client := NewHTTPChainClient(srv.URL)

	_, err := client.AwaitFinalization(context.Background(), "comp-1", 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrComputationTimeout)
}

func TestAwaitFinalizationCallerCancel(t *testing.T) {
	srv := newPendingGateway(t)
	client := NewHTTPChainClient(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.AwaitFinalization(ctx, "comp-1", time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrComputationTimeout)
}
