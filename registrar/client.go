// Package registrar calls the external chain middleware that provisions a
// wallet for a new account. The call is slow (seconds); callers are expected
// to invoke it from a background worker, never while holding a database
// connection.
package registrar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	maxAttempts    = 3
	initialBackoff = 200 * time.Millisecond

	// roleMember is the only role this service provisions.
	roleMember = 0
)

// Result is a successful registration: the provisioned wallet address and,
// when the middleware funded the wallet, the funding transaction reference.
type Result struct {
	WalletAddress string
	TxRef         string
}

// CallError is the only error type Register returns. Transient reports
// whether the failure was worth retrying; once Register returns, its own
// retry budget is already spent, so Transient tells the reconciler whether
// the record should stay pending (operator may retry) or be marked failed.
type CallError struct {
	Reason    string
	Transient bool
}

func (e *CallError) Error() string {
	return fmt.Sprintf("registrar: %s", e.Reason)
}

// IsTransient reports whether err is a CallError marked transient.
func IsTransient(err error) bool {
	var ce *CallError
	return errors.As(err, &ce) && ce.Transient
}

// Client issues registration calls with bounded retries and exponential
// backoff. Construct with NewClient.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	backoff    Backoff

	// Injectable for tests.
	sleep        func(ctx context.Context, d time.Duration)
	newRequestID func() string
}

// NewClient creates a registrar client for the middleware at baseURL. The
// apiKey may be empty when the middleware is unauthenticated.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		backoff:      Backoff{Initial: initialBackoff},
		sleep:        sleepCtx,
		newRequestID: uuid.NewString,
	}
}

type registerRequest struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Role     int    `json:"role"`
}

type registerResponse struct {
	Success bool `json:"success"`
	Data    *struct {
		WalletAddress  string `json:"walletAddress"`
		InitialFunding *struct {
			TxHash string `json:"txHash"`
		} `json:"initialFunding"`
	} `json:"data"`
}

// Register provisions a wallet for userID. It attempts the call up to three
// times, backing off 200ms then 400ms between attempts. Server-side failures
// (5xx), rate limiting (429), transport faults, and success responses missing
// a wallet address are retried; anything else fails immediately. The request
// correlation ID is generated once and reused on every attempt so the
// middleware can detect duplicates.
func (c *Client) Register(ctx context.Context, userID string, displayName *string) (Result, error) {
	reqID := c.newRequestID()

	name := ""
	if displayName != nil {
		name = *displayName
	}
	body := registerRequest{UserID: userID, UserName: name, Role: roleMember}

	var lastReason string
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := c.attempt(ctx, reqID, body)
		if err == nil {
			log.Printf("[registrar] reqId=%s userId=%s registered: wallet=%s", reqID, userID, result.WalletAddress)
			return result, nil
		}

		var ce *CallError
		if !errors.As(err, &ce) {
			// attempt only produces CallError; keep the invariant anyway.
			ce = &CallError{Reason: err.Error(), Transient: true}
		}
		log.Printf("[registrar] reqId=%s userId=%s attempt=%d failed: %s", reqID, userID, attempt, ce.Reason)

		if !ce.Transient {
			return Result{}, ce
		}
		lastReason = ce.Reason

		if attempt < maxAttempts {
			c.sleep(ctx, c.backoff.Delay(attempt))
		}
	}

	return Result{}, &CallError{
		Reason:    fmt.Sprintf("attempts exhausted: %s", lastReason),
		Transient: true,
	}
}

func (c *Client) attempt(ctx context.Context, reqID string, body registerRequest) (Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Result{}, &CallError{Reason: fmt.Sprintf("marshal request: %v", err), Transient: false}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/accounts/register", bytes.NewReader(payload))
	if err != nil {
		return Result{}, &CallError{Reason: fmt.Sprintf("build request: %v", err), Transient: false}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", reqID)
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and connection faults are worth retrying.
		return Result{}, &CallError{Reason: fmt.Sprintf("transport: %v", err), Transient: true}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &CallError{Reason: fmt.Sprintf("read response: %v", err), Transient: true}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return parseSuccess(raw)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return Result{}, &CallError{Reason: fmt.Sprintf("status %d", resp.StatusCode), Transient: true}
	default:
		return Result{}, &CallError{Reason: fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(raw)), Transient: false}
	}
}

// parseSuccess extracts the wallet address from a 2xx response. An unparseable
// body fails immediately: the middleware is speaking a different protocol and
// retrying will not change that. A well-formed envelope missing the wallet
// address is transient, since a retry may land on a healthy instance.
func parseSuccess(raw []byte) (Result, error) {
	var envelope registerResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Result{}, &CallError{Reason: fmt.Sprintf("parse response: %v", err), Transient: false}
	}
	if !envelope.Success || envelope.Data == nil || envelope.Data.WalletAddress == "" {
		return Result{}, &CallError{Reason: "response missing wallet address", Transient: true}
	}

	result := Result{WalletAddress: envelope.Data.WalletAddress}
	if envelope.Data.InitialFunding != nil {
		result.TxRef = envelope.Data.InitialFunding.TxHash
	}
	return result, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func truncate(raw []byte) string {
	const max = 200
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}
