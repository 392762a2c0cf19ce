package openpay

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// AuthorizationState is the durable token bridging Phase B and Phase C.
// The process may die while the user is on the consent page, so this state
// travels through the deep-link URL or local storage rather than memory.
type AuthorizationState struct {
	IncomingPaymentID   string `json:"incomingPaymentId"`
	ContinueURI         string `json:"continueUri"`
	ContinueAccessToken string `json:"continueAccessToken"`
}

// Encode serializes the state as a URL-safe base64 token
func (s AuthorizationState) Encode() string {
	data, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal authorization state: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeAuthorizationState parses a token produced by Encode
func DecodeAuthorizationState(token string) (AuthorizationState, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return AuthorizationState{}, NewFlowError(ErrCodeInvalidPayload, "authorization state is not valid base64", nil)
	}
	var state AuthorizationState
	if err := json.Unmarshal(data, &state); err != nil {
		return AuthorizationState{}, NewFlowError(ErrCodeInvalidPayload, "authorization state is not valid JSON", nil)
	}
	if state.IncomingPaymentID == "" || state.ContinueURI == "" || state.ContinueAccessToken == "" {
		return AuthorizationState{}, NewFlowError(ErrCodeInvalidPayload, "authorization state is missing required fields", nil)
	}
	return state, nil
}
