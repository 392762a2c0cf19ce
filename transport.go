package openpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultConnectTimeout bounds TCP connection establishment
	DefaultConnectTimeout = 5 * time.Second
	// DefaultRequestTimeout bounds a whole request/response exchange
	DefaultRequestTimeout = 30 * time.Second

	headerContentType   = "Content-Type"
	headerAccept        = "Accept"
	headerAuthorization = "Authorization"
	mimeApplicationJSON = "application/json"
)

// defaultHTTPClient builds the shared client used by the flow clients.
// Connect and overall timeouts follow the recommended 5s/30s bounds.
func defaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout: DefaultRequestTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: DefaultConnectTimeout,
			}).DialContext,
		},
	}
}

// statusError carries a non-2xx protocol response for the caller to classify
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

// doJSON performs one signed JSON round trip. A non-empty authToken is sent
// as a GNAP authorization header. Timeouts surface as ErrCodeTimeout; the
// call is never retried here — retry policy belongs to the caller.
func doJSON(ctx context.Context, hc *http.Client, signer RequestSigner, method, url, authToken string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set(headerContentType, mimeApplicationJSON)
	}
	req.Header.Set(headerAccept, mimeApplicationJSON)
	if authToken != "" {
		req.Header.Set(headerAuthorization, "GNAP "+authToken)
	}
	if signer != nil {
		if err := signer.Sign(req); err != nil {
			return fmt.Errorf("failed to sign request: %w", err)
		}
	}

	resp, err := hc.Do(req)
	if err != nil {
		if isTimeout(err) {
			return NewFlowError(ErrCodeTimeout, fmt.Sprintf("request to %s exceeded its deadline", url), nil)
		}
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &statusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
