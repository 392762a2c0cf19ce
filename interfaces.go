package openpay

import (
	"context"
	"net/http"
)

// WalletResolver fetches the public metadata document of a wallet address
type WalletResolver interface {
	Resolve(ctx context.Context, walletAddressURL string) (*WalletAddress, error)
}

// GrantRequester issues and continues GNAP-style access grants against an
// authorization server
type GrantRequester interface {
	// RequestGrant asks authServer for a grant covering access. When
	// interact is nil the server must finalize directly; a pending
	// response is a protocol violation (ErrCodeUnexpectedInteraction).
	RequestGrant(ctx context.Context, authServer string, access AccessSpec, interact *InteractSpec) (Grant, error)

	// ContinueGrant finishes a pending grant with the interact_ref handed
	// back by the redirect callback. The interact_ref is single-use; a
	// failed continue must not be retried with the same tokens.
	ContinueGrant(ctx context.Context, continueURI, continueAccessToken, interactRef string) (*FinalizedGrant, error)
}

// PaymentCreator creates payment resources on a resource server using a
// granted access token
type PaymentCreator interface {
	CreateIncomingPayment(ctx context.Context, resourceServer, accessToken string, wallet *WalletAddress, amount Amount) (*IncomingPayment, error)
	CreateOutgoingPayment(ctx context.Context, resourceServer, accessToken, walletID, incomingPaymentID string) (*OutgoingPayment, error)
}

// RequestSigner attaches HTTP message signatures to outgoing protocol
// requests. Signing is supplied by the host application together with the
// wallet's key material; the flow clients only invoke it.
type RequestSigner interface {
	Sign(req *http.Request) error
}

// NoopSigner is a RequestSigner that leaves requests unsigned. Useful
// against test servers and local development wallets.
type NoopSigner struct{}

// Sign implements RequestSigner
func (NoopSigner) Sign(*http.Request) error { return nil }
