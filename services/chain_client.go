package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shadowlabs-sol/shadow-protocol-sub000/crypto"
)

// finalizationPollInterval is how often HTTPChainClient polls the gateway
// while waiting for a computation to finalize.
const finalizationPollInterval = 2 * time.Second

// HTTPChainClient talks to a chain gateway over HTTP. The gateway owns
// transaction encoding and submission; this client exchanges JSON with it
// and polls for computation finalization.
type HTTPChainClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPChainClient creates a gateway-backed chain client.
func NewHTTPChainClient(baseURL string) *HTTPChainClient {
	return &HTTPChainClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type submitRequest struct {
	Method    string `json:"method"`
	AuctionID uint64 `json:"auctionId"`
	Data      string `json:"data,omitempty"`
}

type submitResponse struct {
	Signature string `json:"signature"`
}

// SubmitTransaction posts one instruction to the gateway and returns the
// transaction signature it assigned.
func (c *HTTPChainClient) SubmitTransaction(ctx context.Context, instruction Instruction) (string, error) {
	body, err := json.Marshal(submitRequest{
		Method:    instruction.Method,
		AuctionID: instruction.AuctionID,
		Data:      base64.StdEncoding.EncodeToString(instruction.Data),
	})
	if err != nil {
		return "", fmt.Errorf("encoding instruction: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transactions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("submitting transaction: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding submit response: %w", err)
	}
	return out.Signature, nil
}

// ReadAccount fetches one account's raw data from the gateway.
func (c *HTTPChainClient) ReadAccount(ctx context.Context, address crypto.PublicKey) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/accounts/"+address.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reading account: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// AwaitFinalization polls the gateway until the computation behind handle
// finalizes, then returns the raw callback frame it produced. The wait is
// bounded by timeout; expiry fails with ErrComputationTimeout and leaves
// no side effects, so the caller may retry or rely on the push callback
// channel instead.
func (c *HTTPChainClient) AwaitFinalization(ctx context.Context, handle string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(finalizationPollInterval)
	defer ticker.Stop()

	for {
		frame, done, err := c.pollComputation(ctx, handle)
		if err != nil {
			if ctx.Err() != nil {
				return nil, c.waitError(ctx, handle)
			}
			return nil, err
		}
		if done {
			return frame, nil
		}

		select {
		case <-ctx.Done():
			return nil, c.waitError(ctx, handle)
		case <-ticker.C:
		}
	}
}

// waitError distinguishes the wait deadline expiring from the caller
// cancelling the parent context; only the former is a timeout.
func (c *HTTPChainClient) waitError(ctx context.Context, handle string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("computation %s: %w", handle, ErrComputationTimeout)
	}
	return fmt.Errorf("computation %s: %w", handle, ctx.Err())
}

func (c *HTTPChainClient) pollComputation(ctx context.Context, handle string) (frame []byte, done bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/computations/"+handle, nil)
	if err != nil {
		return nil, false, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		frame, err = io.ReadAll(resp.Body)
		return frame, true, err
	case http.StatusAccepted, http.StatusNotFound:
		// Still pending.
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
}
