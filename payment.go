package openpay

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// minorUnitPattern matches a non-negative integer string in minor units
var minorUnitPattern = regexp.MustCompile(`^\d+$`)

// ResourceClient creates payment resources against a resource server.
//
// Neither operation sends a deduplication key: the resource server is not
// guaranteed to deduplicate identical requests, so a blind retry creates a
// second payment. Callers that retry must deduplicate with their own key
// first (the relay's idempotency store does this for incoming payments).
type ResourceClient struct {
	httpClient *http.Client
	signer     RequestSigner
}

// ResourceClientOption configures a ResourceClient
type ResourceClientOption func(*ResourceClient)

// WithResourceHTTPClient overrides the HTTP client used for resource requests
func WithResourceHTTPClient(hc *http.Client) ResourceClientOption {
	return func(c *ResourceClient) {
		c.httpClient = hc
	}
}

// WithResourceSigner sets the request signer used for resource requests
func WithResourceSigner(signer RequestSigner) ResourceClientOption {
	return func(c *ResourceClient) {
		c.signer = signer
	}
}

// NewResourceClient creates a payment resource client
func NewResourceClient(opts ...ResourceClientOption) *ResourceClient {
	c := &ResourceClient{
		httpClient: defaultHTTPClient(),
		signer:     NoopSigner{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type incomingPaymentRequest struct {
	WalletAddress  string `json:"walletAddress"`
	IncomingAmount Amount `json:"incomingAmount"`
}

type outgoingPaymentRequest struct {
	WalletAddress   string `json:"walletAddress"`
	IncomingPayment string `json:"incomingPayment"`
}

// CreateIncomingPayment creates a receivable on the wallet's resource
// server. amount.Value must already be scaled to the wallet's minor unit;
// no conversion is performed here.
func (c *ResourceClient) CreateIncomingPayment(ctx context.Context, resourceServer, accessToken string, wallet *WalletAddress, amount Amount) (*IncomingPayment, error) {
	if !minorUnitPattern.MatchString(amount.Value) {
		return nil, NewFlowError(ErrCodeInvalidPayload,
			fmt.Sprintf("amount value %q is not a non-negative minor-unit integer", amount.Value), nil)
	}

	var payment IncomingPayment
	err := doJSON(ctx, c.httpClient, c.signer, http.MethodPost, joinURL(resourceServer, "incoming-payments"), accessToken,
		incomingPaymentRequest{WalletAddress: wallet.ID, IncomingAmount: amount}, &payment)
	if err != nil {
		return nil, classifyResourceError(err, "incoming payment")
	}
	if payment.ID == "" {
		return nil, NewFlowError(ErrCodeProtocolError, "incoming payment response carries no id", nil)
	}
	return &payment, nil
}

// CreateOutgoingPayment instructs the payer's resource server to pay the
// referenced incoming payment. The access token must come from a
// FinalizedGrant scoped to walletID; a scope mismatch fails with
// ErrCodeForbidden and needs a fresh grant, not a retry.
func (c *ResourceClient) CreateOutgoingPayment(ctx context.Context, resourceServer, accessToken, walletID, incomingPaymentID string) (*OutgoingPayment, error) {
	if accessToken == "" {
		return nil, NewFlowError(ErrCodeGrantNotFinalized, "outgoing payment requires a finalized grant access token", nil)
	}

	var payment OutgoingPayment
	err := doJSON(ctx, c.httpClient, c.signer, http.MethodPost, joinURL(resourceServer, "outgoing-payments"), accessToken,
		outgoingPaymentRequest{WalletAddress: walletID, IncomingPayment: incomingPaymentID}, &payment)
	if err != nil {
		return nil, classifyResourceError(err, "outgoing payment")
	}
	if payment.ID == "" {
		return nil, NewFlowError(ErrCodeProtocolError, "outgoing payment response carries no id", nil)
	}
	return &payment, nil
}

func classifyResourceError(err error, operation string) error {
	if statusErr, ok := err.(*statusError); ok {
		switch statusErr.Status {
		case http.StatusForbidden, http.StatusUnauthorized:
			return NewFlowError(ErrCodeForbidden,
				fmt.Sprintf("%s rejected: access token scope does not cover this wallet", operation),
				map[string]interface{}{"status": statusErr.Status})
		default:
			return NewFlowError(ErrCodeProtocolError, fmt.Sprintf("%s failed: %s", operation, statusErr.Error()), nil)
		}
	}
	return err
}

func joinURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + "/" + path
}
