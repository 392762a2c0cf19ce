package openpay

// AccessType identifies the Open Payments resource type a grant covers
type AccessType string

const (
	AccessTypeIncomingPayment AccessType = "incoming-payment"
	AccessTypeOutgoingPayment AccessType = "outgoing-payment"
	AccessTypeQuote           AccessType = "quote"
)

// AccessAction is a single permitted action on a granted resource type
type AccessAction string

const (
	ActionCreate AccessAction = "create"
	ActionRead   AccessAction = "read"
	ActionList   AccessAction = "list"
)

// AccessSpec declares what a grant request is asking for.
// Identifier, when set, binds the grant to one specific wallet address.
type AccessSpec struct {
	Type       AccessType     `json:"type"`
	Actions    []AccessAction `json:"actions"`
	Identifier string         `json:"identifier,omitempty"`
}

// InteractSpec configures the redirect-based interaction of a grant request.
// The nonce must come from a cryptographically secure source; use NewNonce.
type InteractSpec struct {
	FinishURI string `json:"finishUri"`
	Nonce     string `json:"nonce"`
}

// WalletAddress is the public metadata document of a wallet.
// Immutable once fetched; re-fetch before each grant request because the
// auth/resource server URLs can change between runs.
type WalletAddress struct {
	ID             string `json:"id"`
	AuthServer     string `json:"authServer"`
	ResourceServer string `json:"resourceServer"`
	AssetCode      string `json:"assetCode"`
	AssetScale     int    `json:"assetScale"`
	PublicName     string `json:"publicName,omitempty"`
}

// Amount is a minor-unit asset amount. Value is an integer string already
// scaled by AssetScale; no conversion happens anywhere in this package.
type Amount struct {
	AssetCode  string `json:"assetCode"`
	AssetScale int    `json:"assetScale"`
	Value      string `json:"value"`
}

// Grant is the tagged union over the two grant shapes an authorization
// server can return. Callers must branch on the concrete type before
// proceeding; a grant is in exactly one of the two variants.
type Grant interface {
	isGrant()
}

// FinalizedGrant carries an access token that is usable immediately
type FinalizedGrant struct {
	AccessToken string `json:"accessToken"`
	ManageURL   string `json:"manageUrl,omitempty"`
}

func (*FinalizedGrant) isGrant() {}

// PendingGrant requires out-of-band user interaction before it can be
// finalized. ContinueURI and ContinueAccessToken must survive until the
// user returns; they are single-use together with the interact_ref.
type PendingGrant struct {
	ContinueURI         string `json:"continueUri"`
	ContinueAccessToken string `json:"continueAccessToken"`
	InteractRedirectURL string `json:"interactRedirectUrl"`
	WaitSeconds         int    `json:"waitSeconds,omitempty"`
}

func (*PendingGrant) isGrant() {}

// IncomingPayment is a receivable created on the payee's resource server
type IncomingPayment struct {
	ID             string `json:"id"`
	WalletAddress  string `json:"walletAddress"`
	IncomingAmount Amount `json:"incomingAmount"`
	Completed      bool   `json:"completed,omitempty"`
	CreatedAt      string `json:"createdAt,omitempty"`
}

// OutgoingPayment is the instruction on the payer's resource server that
// moves funds toward a referenced incoming payment
type OutgoingPayment struct {
	ID                string `json:"id"`
	WalletAddress     string `json:"walletAddress"`
	IncomingPaymentID string `json:"receiver"`
	CreatedAt         string `json:"createdAt,omitempty"`
}

// AuthorizationStart is the outcome of starting an interactive
// outgoing-payment grant. Interactive is false when the authorization
// server skipped interaction and finalized the grant directly; the caller
// then holds AccessToken and can create the outgoing payment immediately.
type AuthorizationStart struct {
	Interactive         bool   `json:"interactive"`
	IncomingPaymentID   string `json:"incomingPaymentId"`
	RedirectURL         string `json:"redirectUrl,omitempty"`
	ContinueURI         string `json:"continueUri,omitempty"`
	ContinueAccessToken string `json:"continueAccessToken,omitempty"`
	AccessToken         string `json:"accessToken,omitempty"`
}
