package main

import (
	"fmt"
	"log/slog"
	"os"

	slogenv "github.com/cbrewster/slog-env"
	"github.com/joho/godotenv"

	"github.com/ocelon/openpay"
	"github.com/ocelon/openpay/relay"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	slog.SetDefault(slog.New(slogenv.NewHandler(slog.NewTextHandler(os.Stderr, nil))))

	cfg, err := relay.ConfigFromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Key material is loaded up front so a bad path fails at startup, then
	// handed to the request signer collaborator. Until a signer is wired
	// in, requests go out unsigned (fine against local test wallets).
	if _, err := cfg.Receiver.LoadPrivateKey(); err != nil {
		slog.Error("receiver key unavailable", "error", err)
		os.Exit(1)
	}
	if _, err := cfg.Sender.LoadPrivateKey(); err != nil {
		slog.Error("sender key unavailable", "error", err)
		os.Exit(1)
	}

	// Two client identities, as the two sides of the payment: the receiver
	// requests the incoming-payment grant and creates the charge, the sender
	// authorizes and pays.
	resolver := openpay.NewResolver()
	receiver := openpay.Party{
		Grants:   openpay.NewGrantClient(cfg.Receiver.WalletAddressURL),
		Payments: openpay.NewResourceClient(),
	}
	sender := openpay.Party{
		Grants:   openpay.NewGrantClient(cfg.Sender.WalletAddressURL),
		Payments: openpay.NewResourceClient(),
	}
	orchestrator := openpay.NewOrchestrator(resolver, receiver, sender)

	orchestrator.OnPhaseFailure(func(ctx *openpay.PhaseFailureContext) {
		slog.Error("phase failed",
			"phase", ctx.Phase,
			"wallet", ctx.WalletAddress,
			"incomingPaymentId", ctx.IncomingPaymentID,
			"duration", ctx.Duration,
			"error", ctx.Error,
		)
	})

	server := relay.NewServer(cfg, orchestrator, resolver)

	slog.Info("relay listening",
		"addr", "http://localhost:"+cfg.Port,
		"health", "/health",
		"wallets", "/op/wallets",
	)
	if err := server.Routes().Run(":" + cfg.Port); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
