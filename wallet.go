package openpay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// walletDocumentSchema validates the wallet-address document before it is
// decoded. A document missing any of the endpoint or asset fields cannot
// drive a grant request and is rejected as a resolution failure.
const walletDocumentSchema = `{
	"type": "object",
	"required": ["authServer", "resourceServer", "assetCode", "assetScale"],
	"properties": {
		"id": { "type": "string" },
		"authServer": { "type": "string", "minLength": 1 },
		"resourceServer": { "type": "string", "minLength": 1 },
		"assetCode": { "type": "string", "minLength": 1 },
		"assetScale": { "type": "integer", "minimum": 0 },
		"publicName": { "type": "string" }
	}
}`

// Resolver fetches wallet metadata documents. It performs no caching: the
// auth/resource server URLs may change, so each orchestration step resolves
// fresh.
type Resolver struct {
	httpClient *http.Client
	schema     *gojsonschema.Schema
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithResolverHTTPClient overrides the HTTP client used for wallet lookups
func WithResolverHTTPClient(hc *http.Client) ResolverOption {
	return func(r *Resolver) {
		r.httpClient = hc
	}
}

// NewResolver creates a wallet resolver
func NewResolver(opts ...ResolverOption) *Resolver {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(walletDocumentSchema))
	if err != nil {
		panic(fmt.Sprintf("invalid wallet document schema: %v", err))
	}

	r := &Resolver{
		httpClient: defaultHTTPClient(),
		schema:     schema,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve fetches and validates the wallet-address document at
// walletAddressURL. Unreachable endpoints and malformed documents both
// surface as ErrCodeResolutionFailed; timeouts keep their own code so the
// caller can distinguish a retryable read.
func (r *Resolver) Resolve(ctx context.Context, walletAddressURL string) (*WalletAddress, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, walletAddressURL, nil)
	if err != nil {
		return nil, NewFlowError(ErrCodeResolutionFailed, fmt.Sprintf("invalid wallet address url %q: %v", walletAddressURL, err), nil)
	}
	req.Header.Set(headerAccept, mimeApplicationJSON)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, NewFlowError(ErrCodeTimeout, fmt.Sprintf("wallet lookup for %s exceeded its deadline", walletAddressURL), nil)
		}
		return nil, NewFlowError(ErrCodeResolutionFailed, fmt.Sprintf("wallet address %s unreachable: %v", walletAddressURL, err), nil)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, NewFlowError(ErrCodeResolutionFailed, fmt.Sprintf("wallet address %s returned status %d", walletAddressURL, resp.StatusCode), nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewFlowError(ErrCodeResolutionFailed, fmt.Sprintf("failed to read wallet document from %s: %v", walletAddressURL, err), nil)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, NewFlowError(ErrCodeResolutionFailed, fmt.Sprintf("wallet address %s returned an unparsable document", walletAddressURL), nil)
	}

	result, err := r.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, NewFlowError(ErrCodeResolutionFailed, fmt.Sprintf("wallet document validation failed: %v", err), nil)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, NewFlowError(ErrCodeResolutionFailed, "wallet document is missing required fields", map[string]interface{}{
			"walletAddress": walletAddressURL,
			"problems":      strings.Join(problems, "; "),
		})
	}

	wallet := decodeWalletDocument(doc)
	if wallet.ID == "" {
		wallet.ID = walletAddressURL
	}
	return wallet, nil
}

func decodeWalletDocument(doc map[string]interface{}) *WalletAddress {
	str := func(key string) string {
		v, _ := doc[key].(string)
		return v
	}
	scale := 0
	if v, ok := doc["assetScale"].(float64); ok {
		scale = int(v)
	}
	return &WalletAddress{
		ID:             str("id"),
		AuthServer:     str("authServer"),
		ResourceServer: str("resourceServer"),
		AssetCode:      str("assetCode"),
		AssetScale:     scale,
		PublicName:     str("publicName"),
	}
}
