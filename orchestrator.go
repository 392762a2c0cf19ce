package openpay

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Orchestrator drives the end-to-end payment flow as three externally
// triggerable phases. The split exists because the outgoing-payment grant
// is interactive: between StartAuthorization and
// CompleteAuthorizationAndPay the user leaves for the authorization
// server's consent page and re-enters via deep link, possibly in a new
// process. Nothing here survives in memory across that gap — the
// AuthorizationState token carries everything Phase C needs.
//
// Each phase is a plain sequence of request/response calls with no shared
// mutable state, so distinct transactions may run concurrently.
type Orchestrator struct {
	resolver WalletResolver
	receiver Party
	sender   Party

	beforeHooks  []BeforePhaseHook
	afterHooks   []AfterPhaseHook
	failureHooks []PhaseFailureHook
}

// Party bundles the clients acting as one wallet identity. The two sides of
// a payment authenticate as different wallets with different keys, so the
// receiver's grant requests must not go out under the sender's identity or
// vice versa.
type Party struct {
	Grants   GrantRequester
	Payments PaymentCreator
}

// NewOrchestrator creates a payment orchestrator. The receiver party drives
// Phase A (the charge); the sender party drives Phases B and C (the
// authorization and the outgoing payment).
func NewOrchestrator(resolver WalletResolver, receiver, sender Party) *Orchestrator {
	return &Orchestrator{
		resolver: resolver,
		receiver: receiver,
		sender:   sender,
	}
}

// StartCharge is Phase A: it resolves the receiver wallet, obtains a
// non-interactive incoming-payment grant and creates the incoming payment
// for amountMinor (already scaled to the receiver's minor unit).
// Any step failing aborts immediately and surfaces the first error; no
// partial retry happens here.
func (o *Orchestrator) StartCharge(ctx context.Context, receiverWallet, amountMinor string) (*IncomingPayment, error) {
	phaseCtx := &PhaseContext{Ctx: ctx, Phase: PhaseStartCharge, WalletAddress: receiverWallet, Timestamp: time.Now()}
	if err := o.runBeforeHooks(phaseCtx); err != nil {
		return nil, err
	}
	started := time.Now()

	wallet, err := o.resolver.Resolve(ctx, receiverWallet)
	if err != nil {
		o.runFailureHooks(phaseCtx, started, err)
		return nil, err
	}

	grant, err := o.receiver.Grants.RequestGrant(ctx, wallet.AuthServer, AccessSpec{
		Type:    AccessTypeIncomingPayment,
		Actions: []AccessAction{ActionCreate, ActionRead, ActionList},
	}, nil)
	if err != nil {
		o.runFailureHooks(phaseCtx, started, err)
		return nil, err
	}

	finalized, ok := grant.(*FinalizedGrant)
	if !ok {
		err := NewFlowError(ErrCodeUnexpectedInteraction, "incoming-payment grant must not be interactive", nil)
		o.runFailureHooks(phaseCtx, started, err)
		return nil, err
	}

	payment, err := o.receiver.Payments.CreateIncomingPayment(ctx, wallet.ResourceServer, finalized.AccessToken, wallet, Amount{
		AssetCode:  wallet.AssetCode,
		AssetScale: wallet.AssetScale,
		Value:      amountMinor,
	})
	if err != nil {
		o.runFailureHooks(phaseCtx, started, err)
		return nil, err
	}

	phaseCtx.IncomingPaymentID = payment.ID
	o.runAfterHooks(phaseCtx, started)
	return payment, nil
}

// StartAuthorization is Phase B: it resolves the sender wallet and requests
// an interactive outgoing-payment grant bound to that wallet, with a fresh
// random nonce and the supplied finish-redirect URI.
//
// The usual outcome is Interactive: true with the redirect URL plus the
// continue pair the caller must keep durable until the user returns. Some
// authorization servers skip interaction and finalize directly; that comes
// back as Interactive: false with the access token, and the caller may
// proceed straight to the outgoing payment.
func (o *Orchestrator) StartAuthorization(ctx context.Context, senderWallet, incomingPaymentID, finishRedirectURI string) (*AuthorizationStart, error) {
	phaseCtx := &PhaseContext{Ctx: ctx, Phase: PhaseStartAuthorization, WalletAddress: senderWallet, IncomingPaymentID: incomingPaymentID, Timestamp: time.Now()}
	if err := o.runBeforeHooks(phaseCtx); err != nil {
		return nil, err
	}
	started := time.Now()

	wallet, err := o.resolver.Resolve(ctx, senderWallet)
	if err != nil {
		o.runFailureHooks(phaseCtx, started, err)
		return nil, err
	}

	grant, err := o.sender.Grants.RequestGrant(ctx, wallet.AuthServer, AccessSpec{
		Type:       AccessTypeOutgoingPayment,
		Actions:    []AccessAction{ActionRead, ActionCreate},
		Identifier: wallet.ID,
	}, &InteractSpec{
		FinishURI: finishRedirectURI,
		Nonce:     NewNonce(24),
	})
	if err != nil {
		o.runFailureHooks(phaseCtx, started, err)
		return nil, err
	}

	var start *AuthorizationStart
	switch g := grant.(type) {
	case *PendingGrant:
		start = &AuthorizationStart{
			Interactive:         true,
			IncomingPaymentID:   incomingPaymentID,
			RedirectURL:         g.InteractRedirectURL,
			ContinueURI:         g.ContinueURI,
			ContinueAccessToken: g.ContinueAccessToken,
		}
	case *FinalizedGrant:
		// Server skipped interaction; hand the token straight back.
		start = &AuthorizationStart{
			Interactive:       false,
			IncomingPaymentID: incomingPaymentID,
			AccessToken:       g.AccessToken,
		}
	default:
		err := NewFlowError(ErrCodeProtocolError, fmt.Sprintf("unknown grant variant %T", grant), nil)
		o.runFailureHooks(phaseCtx, started, err)
		return nil, err
	}

	o.runAfterHooks(phaseCtx, started)
	return start, nil
}

// CompleteAuthorizationAndPay is Phase C: it continues the pending grant
// with the interact_ref delivered by the redirect callback, requires a
// finalized grant and creates the outgoing payment on the sender's
// resource server. A non-finalized continue aborts the transaction; the
// interact_ref is single-use and must not be replayed.
func (o *Orchestrator) CompleteAuthorizationAndPay(ctx context.Context, senderWallet, incomingPaymentID, continueURI, continueAccessToken, interactRef string) (*OutgoingPayment, error) {
	phaseCtx := &PhaseContext{Ctx: ctx, Phase: PhaseCompleteAuthorization, WalletAddress: senderWallet, IncomingPaymentID: incomingPaymentID, Timestamp: time.Now()}
	if err := o.runBeforeHooks(phaseCtx); err != nil {
		return nil, err
	}
	started := time.Now()

	wallet, err := o.resolver.Resolve(ctx, senderWallet)
	if err != nil {
		o.runFailureHooks(phaseCtx, started, err)
		return nil, err
	}

	finalized, err := o.sender.Grants.ContinueGrant(ctx, continueURI, continueAccessToken, interactRef)
	if err != nil {
		o.runFailureHooks(phaseCtx, started, err)
		return nil, err
	}

	payment, err := o.sender.Payments.CreateOutgoingPayment(ctx, wallet.ResourceServer, finalized.AccessToken, wallet.ID, incomingPaymentID)
	if err != nil {
		o.runFailureHooks(phaseCtx, started, err)
		return nil, err
	}

	o.runAfterHooks(phaseCtx, started)
	return payment, nil
}

// PayWithFinalizedGrant covers the non-interactive Phase B outcome: the
// grant is already finalized, so the outgoing payment is created directly
// without continuing anything.
func (o *Orchestrator) PayWithFinalizedGrant(ctx context.Context, senderWallet, incomingPaymentID, accessToken string) (*OutgoingPayment, error) {
	wallet, err := o.resolver.Resolve(ctx, senderWallet)
	if err != nil {
		return nil, err
	}
	return o.sender.Payments.CreateOutgoingPayment(ctx, wallet.ResourceServer, accessToken, wallet.ID, incomingPaymentID)
}

// ParseFinishRedirect extracts the interact_ref from the finish-redirect
// callback URL the deep link re-enters with.
func ParseFinishRedirect(rawURL string) (interactRef string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", NewFlowError(ErrCodeInvalidPayload, fmt.Sprintf("invalid finish redirect url: %v", err), nil)
	}
	ref := u.Query().Get("interact_ref")
	if ref == "" {
		return "", NewFlowError(ErrCodeInvalidPayload, "finish redirect url carries no interact_ref", nil)
	}
	return ref, nil
}
