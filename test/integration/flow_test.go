// Package integration exercises the full orchestration flow against a fake
// Open Payments provider, end to end over real HTTP.
package integration

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ocelon/openpay"
	"github.com/ocelon/openpay/pkg/relayclient"
	"github.com/ocelon/openpay/relay"
	"github.com/ocelon/openpay/test/mocks/opserver"
)

const finishRedirect = "ocelon://pay/finish"

func newOrchestrator(provider *opserver.Server) *openpay.Orchestrator {
	// Mirrors the relay wiring: the merchant identity charges, the payer
	// identity authorizes and pays.
	return openpay.NewOrchestrator(
		openpay.NewResolver(),
		openpay.Party{
			Grants:   openpay.NewGrantClient(provider.WalletURL("merchant")),
			Payments: openpay.NewResourceClient(),
		},
		openpay.Party{
			Grants:   openpay.NewGrantClient(provider.WalletURL("payer")),
			Payments: openpay.NewResourceClient(),
		},
	)
}

func TestFullPaymentFlow(t *testing.T) {
	provider := opserver.New(opserver.Options{AssetCode: "USD", AssetScale: 2})
	defer provider.Close()

	flow := newOrchestrator(provider)
	ctx := context.Background()

	// Phase A: the merchant's charge.
	incoming, err := flow.StartCharge(ctx, provider.WalletURL("merchant"), "1000")
	require.NoError(t, err)
	require.NotEmpty(t, incoming.ID)
	require.Equal(t, "1000", incoming.IncomingAmount.Value)
	require.Equal(t, provider.WalletURL("merchant"), incoming.WalletAddress)
	// The charge grant was requested under the merchant's identity.
	require.Equal(t, provider.WalletURL("merchant"), provider.GrantClientFor("incoming-payment"))

	// Phase B: the payer's interactive authorization.
	start, err := flow.StartAuthorization(ctx, provider.WalletURL("payer"), incoming.ID, finishRedirect)
	require.NoError(t, err)
	require.True(t, start.Interactive)
	require.NotEmpty(t, start.RedirectURL)
	require.NotEmpty(t, start.ContinueURI)
	require.NotEmpty(t, start.ContinueAccessToken)
	require.Equal(t, 1, provider.PendingGrantCount())
	// The authorization grant was requested under the payer's identity.
	require.Equal(t, provider.WalletURL("payer"), provider.GrantClientFor("outgoing-payment"))

	// Durable state survives the app leaving for the consent page.
	state := openpay.AuthorizationState{
		IncomingPaymentID:   start.IncomingPaymentID,
		ContinueURI:         start.ContinueURI,
		ContinueAccessToken: start.ContinueAccessToken,
	}
	restored, err := openpay.DecodeAuthorizationState(state.Encode())
	require.NoError(t, err)

	// The user consents; the deep link re-enters with the interact_ref.
	interactRef := provider.CompleteInteraction(restored.ContinueURI)
	require.NotEmpty(t, interactRef)

	// Phase C: continue the grant and pay.
	outgoing, err := flow.CompleteAuthorizationAndPay(ctx,
		provider.WalletURL("payer"), restored.IncomingPaymentID,
		restored.ContinueURI, restored.ContinueAccessToken, interactRef)
	require.NoError(t, err)
	require.NotEmpty(t, outgoing.ID)
	require.Equal(t, incoming.ID, outgoing.IncomingPaymentID)
	require.Equal(t, 1, provider.OutgoingPaymentCount())
	require.Equal(t, 0, provider.PendingGrantCount())
}

func TestConcurrentAuthorizationsStayIndependent(t *testing.T) {
	provider := opserver.New(opserver.Options{})
	defer provider.Close()

	flow := newOrchestrator(provider)
	ctx := context.Background()

	first, err := flow.StartCharge(ctx, provider.WalletURL("merchant"), "500")
	require.NoError(t, err)
	second, err := flow.StartCharge(ctx, provider.WalletURL("merchant"), "700")
	require.NoError(t, err)

	authFirst, err := flow.StartAuthorization(ctx, provider.WalletURL("payer"), first.ID, finishRedirect)
	require.NoError(t, err)
	authSecond, err := flow.StartAuthorization(ctx, provider.WalletURL("payer"), second.ID, finishRedirect)
	require.NoError(t, err)

	require.NotEqual(t, authFirst.ContinueURI, authSecond.ContinueURI)
	require.Equal(t, 2, provider.PendingGrantCount())

	// Completing the first transaction leaves the second still pending.
	ref := provider.CompleteInteraction(authFirst.ContinueURI)
	_, err = flow.CompleteAuthorizationAndPay(ctx,
		provider.WalletURL("payer"), first.ID,
		authFirst.ContinueURI, authFirst.ContinueAccessToken, ref)
	require.NoError(t, err)
	require.Equal(t, 1, provider.PendingGrantCount())
}

func TestInteractRefIsSingleUse(t *testing.T) {
	provider := opserver.New(opserver.Options{})
	defer provider.Close()

	flow := newOrchestrator(provider)
	ctx := context.Background()

	incoming, err := flow.StartCharge(ctx, provider.WalletURL("merchant"), "1000")
	require.NoError(t, err)
	start, err := flow.StartAuthorization(ctx, provider.WalletURL("payer"), incoming.ID, finishRedirect)
	require.NoError(t, err)

	ref := provider.CompleteInteraction(start.ContinueURI)
	_, err = flow.CompleteAuthorizationAndPay(ctx,
		provider.WalletURL("payer"), incoming.ID,
		start.ContinueURI, start.ContinueAccessToken, ref)
	require.NoError(t, err)

	// Replaying the same interact_ref must not create a second payment.
	_, err = flow.CompleteAuthorizationAndPay(ctx,
		provider.WalletURL("payer"), incoming.ID,
		start.ContinueURI, start.ContinueAccessToken, ref)
	require.Error(t, err)
	require.Equal(t, 1, provider.OutgoingPaymentCount())
}

func TestWrongInteractRefIsRejected(t *testing.T) {
	provider := opserver.New(opserver.Options{})
	defer provider.Close()

	flow := newOrchestrator(provider)
	ctx := context.Background()

	incoming, err := flow.StartCharge(ctx, provider.WalletURL("merchant"), "1000")
	require.NoError(t, err)
	start, err := flow.StartAuthorization(ctx, provider.WalletURL("payer"), incoming.ID, finishRedirect)
	require.NoError(t, err)

	_, err = flow.CompleteAuthorizationAndPay(ctx,
		provider.WalletURL("payer"), incoming.ID,
		start.ContinueURI, start.ContinueAccessToken, "not-the-ref")
	require.Error(t, err)
	require.Equal(t, openpay.ErrCodeForbidden, openpay.ErrorCode(err))
	require.Equal(t, 0, provider.OutgoingPaymentCount())
}

func TestForcedPendingChargeGrantFails(t *testing.T) {
	provider := opserver.New(opserver.Options{ForcePendingGrants: true})
	defer provider.Close()

	flow := newOrchestrator(provider)

	_, err := flow.StartCharge(context.Background(), provider.WalletURL("merchant"), "1000")
	require.Error(t, err)
	require.Equal(t, openpay.ErrCodeUnexpectedInteraction, openpay.ErrorCode(err))
}

func TestSkippedInteractionPaysDirectly(t *testing.T) {
	provider := opserver.New(opserver.Options{SkipInteraction: true})
	defer provider.Close()

	flow := newOrchestrator(provider)
	ctx := context.Background()

	incoming, err := flow.StartCharge(ctx, provider.WalletURL("merchant"), "1000")
	require.NoError(t, err)

	start, err := flow.StartAuthorization(ctx, provider.WalletURL("payer"), incoming.ID, finishRedirect)
	require.NoError(t, err)
	require.False(t, start.Interactive)
	require.NotEmpty(t, start.AccessToken)

	outgoing, err := flow.PayWithFinalizedGrant(ctx, provider.WalletURL("payer"), incoming.ID, start.AccessToken)
	require.NoError(t, err)
	require.Equal(t, incoming.ID, outgoing.IncomingPaymentID)
}

func TestBrokenContinueSurfacesGrantNotFinalized(t *testing.T) {
	provider := opserver.New(opserver.Options{BrokenContinue: true})
	defer provider.Close()

	flow := newOrchestrator(provider)
	ctx := context.Background()

	incoming, err := flow.StartCharge(ctx, provider.WalletURL("merchant"), "1000")
	require.NoError(t, err)
	start, err := flow.StartAuthorization(ctx, provider.WalletURL("payer"), incoming.ID, finishRedirect)
	require.NoError(t, err)

	ref := provider.CompleteInteraction(start.ContinueURI)
	_, err = flow.CompleteAuthorizationAndPay(ctx,
		provider.WalletURL("payer"), incoming.ID,
		start.ContinueURI, start.ContinueAccessToken, ref)
	require.Error(t, err)
	require.Equal(t, openpay.ErrCodeGrantNotFinalized, openpay.ErrorCode(err))
	require.Equal(t, 0, provider.OutgoingPaymentCount())
}

func TestTokenScopedToOtherWalletIsForbidden(t *testing.T) {
	provider := opserver.New(opserver.Options{})
	defer provider.Close()

	flow := newOrchestrator(provider)
	ctx := context.Background()

	incoming, err := flow.StartCharge(ctx, provider.WalletURL("merchant"), "1000")
	require.NoError(t, err)

	// A finalized token bound to a different wallet must not pay from ours.
	stolen := provider.IssueToken("outgoing-payment", provider.WalletURL("someone-else"))
	_, err = flow.PayWithFinalizedGrant(ctx, provider.WalletURL("payer"), incoming.ID, stolen)
	require.Error(t, err)
	require.Equal(t, openpay.ErrCodeForbidden, openpay.ErrorCode(err))
}

func TestRelayOverProvider(t *testing.T) {
	provider := opserver.New(opserver.Options{AssetCode: "USD", AssetScale: 2})
	defer provider.Close()

	cfg := &relay.Config{
		Port:              relay.DefaultPort,
		Receiver:          relay.WalletCredentials{WalletAddressURL: provider.WalletURL("merchant")},
		Sender:            relay.WalletCredentials{WalletAddressURL: provider.WalletURL("payer")},
		FinishRedirectURL: finishRedirect,
	}
	server := relay.NewServer(cfg, newOrchestrator(provider), openpay.NewResolver())
	relayHTTP := httptest.NewServer(server.Routes())
	defer relayHTTP.Close()

	client := relayclient.NewClient(relayHTTP.URL)
	ctx := context.Background()

	require.NoError(t, client.Health(ctx))

	wallets, err := client.Wallets(ctx)
	require.NoError(t, err)
	require.Equal(t, provider.WalletURL("payer"), wallets.SenderWallet.ID)
	require.Equal(t, provider.WalletURL("merchant"), wallets.ReceiverWallet.ID)

	incoming, err := client.CreateIncoming(ctx, "1000")
	require.NoError(t, err)
	require.Equal(t, "1000", incoming.IncomingPayment.IncomingAmount.Value)

	start, err := client.StartOutgoing(ctx, incoming.IncomingPayment.ID)
	require.NoError(t, err)
	require.NotNil(t, start.Interactive)
	require.True(t, *start.Interactive)

	ref := provider.CompleteInteraction(start.ContinueURI)
	require.NotEmpty(t, ref)

	finish, err := client.FinishOutgoing(ctx, relayclient.OutgoingFinishRequest{
		IncomingPaymentID:   incoming.IncomingPayment.ID,
		ContinueURI:         start.ContinueURI,
		ContinueAccessToken: start.ContinueAccessToken,
		InteractRef:         ref,
	})
	require.NoError(t, err)
	require.Equal(t, incoming.IncomingPayment.ID, finish.OutgoingPayment.IncomingPaymentID)
	require.Equal(t, 1, provider.OutgoingPaymentCount())
}
