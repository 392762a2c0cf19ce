// Package relay exposes the payment orchestration flow over HTTP for the
// mobile app. The endpoints mirror the three orchestration phases plus two
// inspection routes; all responses carry an ok flag, errors ride on 500
// except request validation which is 400.
package relay

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ocelon/openpay"
	"github.com/ocelon/openpay/extensions/idempotency"
)

// HeaderIdempotencyKey carries the client-chosen deduplication key for
// charge creation. Absent header means no deduplication.
const HeaderIdempotencyKey = "Idempotency-Key"

// PaymentFlow is the slice of the orchestrator the relay drives
type PaymentFlow interface {
	StartCharge(ctx context.Context, receiverWallet, amountMinor string) (*openpay.IncomingPayment, error)
	StartAuthorization(ctx context.Context, senderWallet, incomingPaymentID, finishRedirectURI string) (*openpay.AuthorizationStart, error)
	CompleteAuthorizationAndPay(ctx context.Context, senderWallet, incomingPaymentID, continueURI, continueAccessToken, interactRef string) (*openpay.OutgoingPayment, error)
}

// Server wires the orchestrator, wallet resolver and idempotent charge
// store behind the relay's HTTP contract.
type Server struct {
	cfg      *Config
	flow     PaymentFlow
	resolver openpay.WalletResolver
	charger  *idempotency.IdempotentCharger
	log      *slog.Logger
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithLogger overrides the server's logger
func WithLogger(log *slog.Logger) ServerOption {
	return func(s *Server) {
		s.log = log
	}
}

// WithChargeStore sets a custom idempotency store for charge creation
func WithChargeStore(store idempotency.ChargeStore) ServerOption {
	return func(s *Server) {
		s.charger = idempotency.Wrap(s.flow, idempotency.WithStore(store))
	}
}

// NewServer creates a relay server
func NewServer(cfg *Config, flow PaymentFlow, resolver openpay.WalletResolver, opts ...ServerOption) *Server {
	s := &Server{
		cfg:      cfg,
		flow:     flow,
		resolver: resolver,
		charger:  idempotency.Wrap(flow),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the gin engine with all relay endpoints mounted
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.handleHealth)
	r.GET("/op/wallets", s.handleWallets)
	r.POST("/op/incoming", s.handleIncoming)
	r.POST("/op/outgoing/start", s.handleOutgoingStart)
	r.POST("/op/outgoing/finish", s.handleOutgoingFinish)

	return r
}

// requestLogger tags every request with an id and logs its outcome
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		c.Set("request_id", requestID)
		started := time.Now()

		c.Next()

		s.log.Info("request",
			"id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(started),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleWallets(c *gin.Context) {
	senderWallet, err := s.resolver.Resolve(c.Request.Context(), s.cfg.Sender.WalletAddressURL)
	if err != nil {
		s.fail(c, err)
		return
	}
	receiverWallet, err := s.resolver.Resolve(c.Request.Context(), s.cfg.Receiver.WalletAddressURL)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":             true,
		"senderWallet":   senderWallet,
		"receiverWallet": receiverWallet,
	})
}

type incomingRequest struct {
	ReceiveValueMinor string `json:"receiveValueMinor"`
}

func (s *Server) handleIncoming(c *gin.Context) {
	var req incomingRequest
	// body is optional; an empty body means the default amount
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid JSON body"})
		return
	}
	value := req.ReceiveValueMinor
	if value == "" {
		value = DefaultReceiveValueMinor
	}

	key := c.GetHeader(HeaderIdempotencyKey)
	payment, err := s.charger.StartCharge(c.Request.Context(), key, s.cfg.Receiver.WalletAddressURL, value)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "incomingPayment": payment})
}

type outgoingStartRequest struct {
	IncomingPaymentID string `json:"incomingPaymentId"`
}

func (s *Server) handleOutgoingStart(c *gin.Context) {
	var req outgoingStartRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IncomingPaymentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "incomingPaymentId required"})
		return
	}

	start, err := s.flow.StartAuthorization(c.Request.Context(), s.cfg.Sender.WalletAddressURL, req.IncomingPaymentID, s.cfg.FinishRedirectURL)
	if err != nil {
		s.fail(c, err)
		return
	}

	if !start.Interactive {
		// Server skipped interaction; the caller can finish immediately
		// with the already-finalized token.
		c.JSON(http.StatusOK, gin.H{
			"ok":          true,
			"interactive": false,
			"accessToken": start.AccessToken,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":                  true,
		"interactive":         true,
		"redirectUrl":         start.RedirectURL,
		"continueUri":         start.ContinueURI,
		"continueAccessToken": start.ContinueAccessToken,
	})
}

type outgoingFinishRequest struct {
	IncomingPaymentID   string `json:"incomingPaymentId"`
	ContinueURI         string `json:"continueUri"`
	ContinueAccessToken string `json:"continueAccessToken"`
	InteractRef         string `json:"interact_ref"`
}

func (s *Server) handleOutgoingFinish(c *gin.Context) {
	var req outgoingFinishRequest
	if err := c.ShouldBindJSON(&req); err != nil ||
		req.IncomingPaymentID == "" || req.ContinueURI == "" || req.ContinueAccessToken == "" || req.InteractRef == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "incomingPaymentId, continueUri, continueAccessToken, interact_ref required"})
		return
	}

	payment, err := s.flow.CompleteAuthorizationAndPay(c.Request.Context(),
		s.cfg.Sender.WalletAddressURL, req.IncomingPaymentID, req.ContinueURI, req.ContinueAccessToken, req.InteractRef)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "outgoingPayment": payment})
}

// fail renders a flow failure as the wire-level error shape
func (s *Server) fail(c *gin.Context, err error) {
	requestID, _ := c.Get("request_id")
	s.log.Error("flow error", "id", requestID, "path", c.Request.URL.Path, "code", openpay.ErrorCode(err), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
}
