package openpay

import (
	"context"
	"fmt"
	"net/http"
)

// GrantClient issues and continues GNAP-style access grants against an
// authorization server
type GrantClient struct {
	httpClient *http.Client
	signer     RequestSigner
	clientID   string
}

// GrantClientOption configures a GrantClient
type GrantClientOption func(*GrantClient)

// WithGrantHTTPClient overrides the HTTP client used for grant requests
func WithGrantHTTPClient(hc *http.Client) GrantClientOption {
	return func(c *GrantClient) {
		c.httpClient = hc
	}
}

// WithGrantSigner sets the request signer used for grant requests
func WithGrantSigner(signer RequestSigner) GrantClientOption {
	return func(c *GrantClient) {
		c.signer = signer
	}
}

// NewGrantClient creates a grant client acting as clientWalletAddress,
// the wallet address URL identifying this client to the authorization
// server.
func NewGrantClient(clientWalletAddress string, opts ...GrantClientOption) *GrantClient {
	c := &GrantClient{
		httpClient: defaultHTTPClient(),
		signer:     NoopSigner{},
		clientID:   clientWalletAddress,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ============================================================================
// GNAP wire shapes
// ============================================================================

type grantRequest struct {
	AccessToken grantAccessTokenRequest `json:"access_token"`
	Client      string                  `json:"client,omitempty"`
	Interact    *grantInteractRequest   `json:"interact,omitempty"`
}

type grantAccessTokenRequest struct {
	Access []grantAccess `json:"access"`
}

type grantAccess struct {
	Type       string   `json:"type"`
	Actions    []string `json:"actions"`
	Identifier string   `json:"identifier,omitempty"`
}

type grantInteractRequest struct {
	Start  []string             `json:"start"`
	Finish *grantInteractFinish `json:"finish,omitempty"`
}

type grantInteractFinish struct {
	Method string `json:"method"`
	URI    string `json:"uri"`
	Nonce  string `json:"nonce"`
}

type grantResponse struct {
	AccessToken *struct {
		Value  string `json:"value"`
		Manage string `json:"manage,omitempty"`
	} `json:"access_token,omitempty"`
	Continue *struct {
		AccessToken struct {
			Value string `json:"value"`
		} `json:"access_token"`
		URI  string `json:"uri"`
		Wait int    `json:"wait,omitempty"`
	} `json:"continue,omitempty"`
	Interact *struct {
		Redirect string `json:"redirect"`
		Finish   string `json:"finish,omitempty"`
	} `json:"interact,omitempty"`
}

type grantContinueRequest struct {
	InteractRef string `json:"interact_ref"`
}

// ============================================================================
// Operations
// ============================================================================

// RequestGrant asks authServer for a grant covering access. With a nil
// interact the server must return a finalized grant; a pending response is
// treated as a protocol violation. With an interact the usual outcome is a
// *PendingGrant, but some servers skip interaction and finalize directly —
// callers must branch on the returned variant.
func (c *GrantClient) RequestGrant(ctx context.Context, authServer string, access AccessSpec, interact *InteractSpec) (Grant, error) {
	body := grantRequest{
		AccessToken: grantAccessTokenRequest{
			Access: []grantAccess{{
				Type:       string(access.Type),
				Actions:    accessActions(access.Actions),
				Identifier: access.Identifier,
			}},
		},
		Client: c.clientID,
	}
	if interact != nil {
		nonce := interact.Nonce
		if nonce == "" {
			nonce = NewNonce(24)
		}
		if len(nonce) < MinNonceLength {
			return nil, NewFlowError(ErrCodeProtocolError, fmt.Sprintf("interaction nonce shorter than %d characters", MinNonceLength), nil)
		}
		body.Interact = &grantInteractRequest{
			Start: []string{"redirect"},
			Finish: &grantInteractFinish{
				Method: "redirect",
				URI:    interact.FinishURI,
				Nonce:  nonce,
			},
		}
	}

	var resp grantResponse
	if err := doJSON(ctx, c.httpClient, c.signer, http.MethodPost, authServer, "", body, &resp); err != nil {
		return nil, classifyGrantError(err)
	}

	grant, err := classifyGrantResponse(&resp)
	if err != nil {
		return nil, err
	}

	if _, pending := grant.(*PendingGrant); pending && interact == nil {
		return nil, NewFlowError(ErrCodeUnexpectedInteraction,
			fmt.Sprintf("grant for %s requires interaction but none was offered", access.Type), nil)
	}
	return grant, nil
}

// ContinueGrant finishes a pending grant after the user completed the
// redirect interaction. interactRef binds to a single interaction and must
// never be replayed; a non-finalized response aborts the transaction.
func (c *GrantClient) ContinueGrant(ctx context.Context, continueURI, continueAccessToken, interactRef string) (*FinalizedGrant, error) {
	if continueURI == "" || continueAccessToken == "" || interactRef == "" {
		return nil, NewFlowError(ErrCodeGrantNotFinalized, "continue requires continueUri, continueAccessToken and interact_ref", nil)
	}

	var resp grantResponse
	err := doJSON(ctx, c.httpClient, c.signer, http.MethodPost, continueURI, continueAccessToken,
		grantContinueRequest{InteractRef: interactRef}, &resp)
	if err != nil {
		return nil, classifyGrantError(err)
	}

	if resp.AccessToken == nil || resp.AccessToken.Value == "" {
		return nil, NewFlowError(ErrCodeGrantNotFinalized, "continue response carries no usable access token", nil)
	}
	return &FinalizedGrant{AccessToken: resp.AccessToken.Value, ManageURL: resp.AccessToken.Manage}, nil
}

// classifyGrantResponse maps a raw grant response onto the Grant union
func classifyGrantResponse(resp *grantResponse) (Grant, error) {
	if resp.AccessToken != nil && resp.AccessToken.Value != "" {
		return &FinalizedGrant{AccessToken: resp.AccessToken.Value, ManageURL: resp.AccessToken.Manage}, nil
	}
	if resp.Interact != nil && resp.Interact.Redirect != "" && resp.Continue != nil &&
		resp.Continue.URI != "" && resp.Continue.AccessToken.Value != "" {
		return &PendingGrant{
			ContinueURI:         resp.Continue.URI,
			ContinueAccessToken: resp.Continue.AccessToken.Value,
			InteractRedirectURL: resp.Interact.Redirect,
			WaitSeconds:         resp.Continue.Wait,
		}, nil
	}
	return nil, NewFlowError(ErrCodeProtocolError, "grant response is neither finalized nor pending", nil)
}

// classifyGrantError maps transport-level failures onto the flow taxonomy
func classifyGrantError(err error) error {
	if statusErr, ok := err.(*statusError); ok {
		switch statusErr.Status {
		case http.StatusForbidden, http.StatusUnauthorized:
			return NewFlowError(ErrCodeForbidden, "authorization server denied the grant request", map[string]interface{}{
				"status": statusErr.Status,
			})
		default:
			return NewFlowError(ErrCodeProtocolError, statusErr.Error(), nil)
		}
	}
	return err
}

func accessActions(actions []AccessAction) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = string(a)
	}
	return out
}
