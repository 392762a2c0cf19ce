// Package opserver is a fake Open Payments provider for tests: one
// listener plays the wallet host, the authorization server and the
// resource server. It implements just enough of the grant and payment
// endpoints to exercise the full orchestration flow, plus switches to
// force the protocol violations the flow must reject.
package opserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Options toggles misbehavior modes
type Options struct {
	AssetCode  string
	AssetScale int

	// ForcePendingGrants makes even non-interactive grant requests come
	// back pending (a protocol violation clients must reject).
	ForcePendingGrants bool

	// SkipInteraction finalizes interactive grant requests directly, the
	// way some authorization servers legitimately do.
	SkipInteraction bool

	// BrokenContinue makes grant continuation respond without an access
	// token.
	BrokenContinue bool
}

type pendingGrant struct {
	continueToken string
	interactRef   string
	walletID      string
	nonce         string
	consumed      bool
}

type issuedToken struct {
	accessType string
	walletID   string
}

// Server is the running fake provider
type Server struct {
	httpSrv *httptest.Server
	opts    Options

	mu           sync.Mutex
	pending      map[string]*pendingGrant // keyed by grant id
	tokens       map[string]issuedToken   // access token -> scope
	incoming     map[string]bool          // created incoming payment ids
	outgoing     map[string]string        // outgoing payment id -> incoming payment id
	grantClients map[string]string        // access type -> last GNAP client presented
}

// New starts a fake provider
func New(opts Options) *Server {
	if opts.AssetCode == "" {
		opts.AssetCode = "USD"
	}
	s := &Server{
		opts:         opts,
		pending:      make(map[string]*pendingGrant),
		tokens:       make(map[string]issuedToken),
		incoming:     make(map[string]bool),
		outgoing:     make(map[string]string),
		grantClients: make(map[string]string),
	}

	e := echo.New()
	e.HideBanner = true
	e.GET("/wallet/:name", s.handleWalletDocument)
	e.POST("/auth", s.handleGrantRequest)
	e.POST("/auth/continue/:id", s.handleGrantContinue)
	e.POST("/op/incoming-payments", s.handleCreateIncoming)
	e.POST("/op/outgoing-payments", s.handleCreateOutgoing)

	s.httpSrv = httptest.NewServer(e)
	return s
}

// Close shuts the provider down
func (s *Server) Close() {
	s.httpSrv.Close()
}

// URL is the provider's base URL
func (s *Server) URL() string {
	return s.httpSrv.URL
}

// WalletURL returns the wallet address URL for a named wallet
func (s *Server) WalletURL(name string) string {
	return s.httpSrv.URL + "/wallet/" + name
}

// CompleteInteraction simulates the user consenting on the redirect page.
// It returns the interact_ref the finish redirect would deliver, or an
// empty string if the continue URI belongs to no pending grant.
func (s *Server) CompleteInteraction(continueURI string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := strings.TrimPrefix(continueURI, s.httpSrv.URL+"/auth/continue/")
	grant, ok := s.pending[id]
	if !ok {
		return ""
	}
	return grant.interactRef
}

// PendingGrantCount reports how many grants still await continuation
func (s *Server) PendingGrantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, g := range s.pending {
		if !g.consumed {
			n++
		}
	}
	return n
}

// GrantClientFor reports which GNAP client last requested a grant of the
// given access type, or an empty string if none did.
func (s *Server) GrantClientFor(accessType string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grantClients[accessType]
}

// OutgoingPaymentCount reports how many outgoing payments were created
func (s *Server) OutgoingPaymentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outgoing)
}

func (s *Server) handleWalletDocument(c echo.Context) error {
	name := c.Param("name")
	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":             s.WalletURL(name),
		"authServer":     s.httpSrv.URL + "/auth",
		"resourceServer": s.httpSrv.URL + "/op",
		"assetCode":      s.opts.AssetCode,
		"assetScale":     s.opts.AssetScale,
		"publicName":     name,
	})
}

type grantRequestBody struct {
	AccessToken struct {
		Access []struct {
			Type       string   `json:"type"`
			Actions    []string `json:"actions"`
			Identifier string   `json:"identifier"`
		} `json:"access"`
	} `json:"access_token"`
	Client   string `json:"client"`
	Interact *struct {
		Start  []string `json:"start"`
		Finish *struct {
			Method string `json:"method"`
			URI    string `json:"uri"`
			Nonce  string `json:"nonce"`
		} `json:"finish"`
	} `json:"interact"`
}

func (s *Server) handleGrantRequest(c echo.Context) error {
	var body grantRequestBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid grant request"})
	}
	if len(body.AccessToken.Access) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "no access requested"})
	}
	access := body.AccessToken.Access[0]

	s.mu.Lock()
	s.grantClients[access.Type] = body.Client
	s.mu.Unlock()

	wantsInteraction := body.Interact != nil
	pending := wantsInteraction && !s.opts.SkipInteraction
	if s.opts.ForcePendingGrants {
		pending = true
	}

	if !pending {
		token := s.issueToken(access.Type, access.Identifier)
		return c.JSON(http.StatusOK, map[string]interface{}{
			"access_token": map[string]string{"value": token},
		})
	}

	s.mu.Lock()
	id := uuid.NewString()
	grant := &pendingGrant{
		continueToken: uuid.NewString(),
		interactRef:   uuid.NewString(),
		walletID:      access.Identifier,
	}
	if body.Interact != nil && body.Interact.Finish != nil {
		grant.nonce = body.Interact.Finish.Nonce
	}
	s.pending[id] = grant
	s.mu.Unlock()

	return c.JSON(http.StatusOK, map[string]interface{}{
		"interact": map[string]string{
			"redirect": s.httpSrv.URL + "/interact/" + id,
		},
		"continue": map[string]interface{}{
			"access_token": map[string]string{"value": grant.continueToken},
			"uri":          s.httpSrv.URL + "/auth/continue/" + id,
			"wait":         5,
		},
	})
}

func (s *Server) handleGrantContinue(c echo.Context) error {
	id := c.Param("id")

	var body struct {
		InteractRef string `json:"interact_ref"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid continue request"})
	}

	s.mu.Lock()
	grant, ok := s.pending[id]
	if !ok || grant.consumed {
		s.mu.Unlock()
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown or superseded continuation"})
	}
	if bearerToken(c.Request()) != grant.continueToken {
		s.mu.Unlock()
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "bad continue token"})
	}
	if body.InteractRef != grant.interactRef {
		s.mu.Unlock()
		return c.JSON(http.StatusForbidden, map[string]string{"error": "interact_ref mismatch"})
	}
	grant.consumed = true
	walletID := grant.walletID
	s.mu.Unlock()

	if s.opts.BrokenContinue {
		return c.JSON(http.StatusOK, map[string]interface{}{})
	}

	token := s.issueToken("outgoing-payment", walletID)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"access_token": map[string]string{"value": token},
	})
}

type incomingPaymentBody struct {
	WalletAddress  string `json:"walletAddress"`
	IncomingAmount struct {
		AssetCode  string `json:"assetCode"`
		AssetScale int    `json:"assetScale"`
		Value      string `json:"value"`
	} `json:"incomingAmount"`
}

func (s *Server) handleCreateIncoming(c echo.Context) error {
	scope, ok := s.lookupToken(bearerToken(c.Request()))
	if !ok || scope.accessType != "incoming-payment" {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "token not scoped for incoming payments"})
	}

	var body incomingPaymentBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid incoming payment request"})
	}

	id := s.httpSrv.URL + "/op/incoming-payments/" + uuid.NewString()
	s.mu.Lock()
	s.incoming[id] = true
	s.mu.Unlock()

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"id":             id,
		"walletAddress":  body.WalletAddress,
		"incomingAmount": body.IncomingAmount,
	})
}

type outgoingPaymentBody struct {
	WalletAddress   string `json:"walletAddress"`
	IncomingPayment string `json:"incomingPayment"`
}

func (s *Server) handleCreateOutgoing(c echo.Context) error {
	scope, ok := s.lookupToken(bearerToken(c.Request()))
	if !ok || scope.accessType != "outgoing-payment" {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "token not scoped for outgoing payments"})
	}

	var body outgoingPaymentBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid outgoing payment request"})
	}
	if scope.walletID != "" && scope.walletID != body.WalletAddress {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "token scoped to a different wallet"})
	}

	id := s.httpSrv.URL + "/op/outgoing-payments/" + uuid.NewString()
	s.mu.Lock()
	s.outgoing[id] = body.IncomingPayment
	s.mu.Unlock()

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"id":            id,
		"walletAddress": body.WalletAddress,
		"receiver":      body.IncomingPayment,
	})
}

func (s *Server) issueToken(accessType, walletID string) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = issuedToken{accessType: accessType, walletID: walletID}
	s.mu.Unlock()
	return token
}

// IssueToken mints an access token out of band, for tests that need a
// token scoped to an arbitrary wallet.
func (s *Server) IssueToken(accessType, walletID string) string {
	return s.issueToken(accessType, walletID)
}

func (s *Server) lookupToken(token string) (issuedToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scope, ok := s.tokens[token]
	return scope, ok
}

func bearerToken(req *http.Request) string {
	auth := req.Header.Get("Authorization")
	return strings.TrimPrefix(auth, "GNAP ")
}
