// Package rpc implements chain.Gateway over a JSON-RPC relay endpoint.
package rpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/frahmantamala/recurpay/internal/chain"
	"github.com/frahmantamala/recurpay/pkg/delay"
)

type Config struct {
	URL          string
	Timeout      time.Duration
	PollInterval time.Duration
}

type Client struct {
	url          string
	httpClient   *http.Client
	pollInterval time.Duration
	logger       *slog.Logger
	nextID       atomic.Int64
}

var _ chain.Gateway = (*Client)(nil)

func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &Client{
		url:          cfg.URL,
		httpClient:   &http.Client{Timeout: timeout},
		pollInterval: poll,
		logger:       logger,
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", method, resp.StatusCode)
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if decoded.Error != nil {
		return fmt.Errorf("%s: %w", method, decoded.Error)
	}
	if out == nil {
		return nil
	}
	if len(decoded.Result) == 0 || string(decoded.Result) == "null" {
		return errNullResult
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

var errNullResult = errors.New("null result")

func (c *Client) LatestBlockReference(ctx context.Context) (chain.BlockReference, error) {
	var result struct {
		Value chain.BlockReference `json:"value"`
	}
	if err := c.call(ctx, "getLatestBlockhash", []interface{}{map[string]string{"commitment": "confirmed"}}, &result); err != nil {
		return chain.BlockReference{}, err
	}
	return result.Value, nil
}

func (c *Client) PriorityFeeEstimate(ctx context.Context, accounts []string) (uint64, error) {
	var result struct {
		PriorityFeeEstimate float64 `json:"priorityFeeEstimate"`
	}
	params := []interface{}{map[string]interface{}{
		"accountKeys": accounts,
		"options":     map[string]string{"priorityLevel": "Medium"},
	}}
	if err := c.call(ctx, "getPriorityFeeEstimate", params, &result); err != nil {
		return 0, err
	}
	if result.PriorityFeeEstimate < 0 {
		return 0, nil
	}
	return uint64(result.PriorityFeeEstimate), nil
}

func (c *Client) SponsorshipInstructions(ctx context.Context, feePayer string) ([]chain.Instruction, error) {
	var result struct {
		Instructions []chain.Instruction `json:"instructions"`
	}
	if err := c.call(ctx, "getSponsorshipInstructions", []interface{}{feePayer}, &result); err != nil {
		if errors.Is(err, errNullResult) {
			return nil, nil
		}
		return nil, err
	}
	return result.Instructions, nil
}

func (c *Client) Submit(ctx context.Context, signedTx []byte) (chain.SubmitResult, error) {
	params := []interface{}{
		base64.StdEncoding.EncodeToString(signedTx),
		map[string]interface{}{"encoding": "base64", "skipPreflight": true, "maxRetries": 0},
	}
	var result chain.SubmitResult
	if err := c.call(ctx, "sendTransaction", params, &result); err != nil {
		return chain.SubmitResult{}, err
	}
	if result.Signature == "" {
		return chain.SubmitResult{}, errors.New("sendTransaction returned no signature")
	}
	if result.DeliveryMethod == "" {
		result.DeliveryMethod = "rpc"
	}
	c.logger.Info("transaction submitted",
		"signature", result.Signature,
		"delivery_method", result.DeliveryMethod)
	return result, nil
}

type signatureStatus struct {
	ConfirmationStatus string          `json:"confirmationStatus"`
	Err                json.RawMessage `json:"err"`
}

func (c *Client) Confirm(ctx context.Context, signature string, maxAttempts int) (bool, error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var result struct {
			Value []*signatureStatus `json:"value"`
		}
		params := []interface{}{[]string{signature}, map[string]bool{"searchTransactionHistory": true}}
		err := c.call(ctx, "getSignatureStatuses", params, &result)
		switch {
		case err != nil:
			c.logger.Warn("signature status lookup failed",
				"signature", signature,
				"attempt", attempt,
				"error", err)
		case len(result.Value) > 0 && result.Value[0] != nil:
			status := result.Value[0]
			if len(status.Err) > 0 && string(status.Err) != "null" {
				return false, fmt.Errorf("%w: %s", chain.ErrTransactionError, string(status.Err))
			}
			if status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized" {
				return true, nil
			}
		}

		if attempt < maxAttempts {
			if err := delay.For(ctx, c.pollInterval); err != nil {
				return false, err
			}
		}
	}

	c.logger.Warn("signature not confirmed in time",
		"signature", signature,
		"attempts", maxAttempts)
	return false, nil
}

func (c *Client) TokenAccount(ctx context.Context, address string) (*chain.TokenAccount, error) {
	var account chain.TokenAccount
	if err := c.call(ctx, "getTokenAccount", []interface{}{address}, &account); err != nil {
		if errors.Is(err, errNullResult) {
			return nil, chain.ErrAccountNotFound
		}
		return nil, err
	}
	if account.Address == "" {
		account.Address = address
	}
	return &account, nil
}
