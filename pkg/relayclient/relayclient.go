// Package relayclient is a typed client for the relay's HTTP API. It is
// what the mobile app (or any other frontend) talks to; the relay in turn
// drives the Open Payments flow against the wallets.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/ocelon/openpay"
)

const (
	// DefaultRelayURL is where the relay listens in local development
	DefaultRelayURL = "http://127.0.0.1:3001"

	headerContentType    = "Content-Type"
	headerIdempotencyKey = "Idempotency-Key"
	mimeApplicationJSON  = "application/json"
)

// Client talks to a relay instance
type Client struct {
	URL        string
	HTTPClient *http.Client
}

// NewClient creates a relay client. An empty relayURL falls back to
// DefaultRelayURL.
func NewClient(relayURL string) *Client {
	if relayURL == "" {
		relayURL = DefaultRelayURL
	}
	return &Client{
		URL: relayURL,
		HTTPClient: &http.Client{
			Timeout: openpay.DefaultRequestTimeout,
		},
	}
}

// WalletsResponse is the payload of GET /op/wallets
type WalletsResponse struct {
	OK             bool                   `json:"ok"`
	Error          string                 `json:"error,omitempty"`
	SenderWallet   *openpay.WalletAddress `json:"senderWallet"`
	ReceiverWallet *openpay.WalletAddress `json:"receiverWallet"`
}

// IncomingResponse is the payload of POST /op/incoming
type IncomingResponse struct {
	OK              bool                     `json:"ok"`
	Error           string                   `json:"error,omitempty"`
	IncomingPayment *openpay.IncomingPayment `json:"incomingPayment"`
}

// OutgoingStartResponse is the payload of POST /op/outgoing/start
type OutgoingStartResponse struct {
	OK                  bool   `json:"ok"`
	Error               string `json:"error,omitempty"`
	Interactive         *bool  `json:"interactive,omitempty"`
	RedirectURL         string `json:"redirectUrl"`
	ContinueURI         string `json:"continueUri"`
	ContinueAccessToken string `json:"continueAccessToken"`
	AccessToken         string `json:"accessToken,omitempty"`
}

// OutgoingFinishRequest is the body of POST /op/outgoing/finish
type OutgoingFinishRequest struct {
	IncomingPaymentID   string `json:"incomingPaymentId"`
	ContinueURI         string `json:"continueUri"`
	ContinueAccessToken string `json:"continueAccessToken"`
	InteractRef         string `json:"interact_ref"`
}

// OutgoingFinishResponse is the payload of POST /op/outgoing/finish
type OutgoingFinishResponse struct {
	OK              bool                     `json:"ok"`
	Error           string                   `json:"error,omitempty"`
	OutgoingPayment *openpay.OutgoingPayment `json:"outgoingPayment"`
}

// Health checks GET /health
func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		OK bool `json:"ok"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", "", nil, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("relay reported not ok")
	}
	return nil
}

// Wallets fetches both configured wallet documents
func (c *Client) Wallets(ctx context.Context) (*WalletsResponse, error) {
	var resp WalletsResponse
	if err := c.do(ctx, http.MethodGet, "/op/wallets", "", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("wallets failed: %s", resp.Error)
	}
	return &resp, nil
}

// CreateIncoming starts a charge for receiveValueMinor (minor units of the
// receiver's asset). Every call sends a fresh idempotency key, so a
// transport-level retry of the same call object cannot double-charge, while
// two separate calls remain two separate charges.
func (c *Client) CreateIncoming(ctx context.Context, receiveValueMinor string) (*IncomingResponse, error) {
	body := map[string]string{"receiveValueMinor": receiveValueMinor}
	var resp IncomingResponse
	if err := c.do(ctx, http.MethodPost, "/op/incoming", uuid.NewString(), body, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("incoming failed: %s", resp.Error)
	}
	return &resp, nil
}

// StartOutgoing begins the interactive authorization for an incoming payment
func (c *Client) StartOutgoing(ctx context.Context, incomingPaymentID string) (*OutgoingStartResponse, error) {
	body := map[string]string{"incomingPaymentId": incomingPaymentID}
	var resp OutgoingStartResponse
	if err := c.do(ctx, http.MethodPost, "/op/outgoing/start", "", body, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("outgoing start failed: %s", resp.Error)
	}
	return &resp, nil
}

// FinishOutgoing completes the authorization and creates the outgoing payment
func (c *Client) FinishOutgoing(ctx context.Context, req OutgoingFinishRequest) (*OutgoingFinishResponse, error) {
	var resp OutgoingFinishResponse
	if err := c.do(ctx, http.MethodPost, "/op/outgoing/finish", "", req, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("outgoing finish failed: %s", resp.Error)
	}
	return &resp, nil
}

// do performs one JSON exchange with the relay. Error payloads (4xx/5xx
// with an ok:false body) decode into out so callers can surface the
// server's message.
func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, in, out interface{}) error {
	var body *bytes.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set(headerContentType, mimeApplicationJSON)
	}
	if idempotencyKey != "" {
		req.Header.Set(headerIdempotencyKey, idempotencyKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach relay: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode relay response (%s): %w", resp.Status, err)
	}
	return nil
}
