// Package qr encodes and decodes the payment-intent payload carried inside
// the scanned QR code. Decoding is deliberately forgiving towards callers:
// a malformed or expired code returns nil rather than an error, since a bad
// scan is a user-facing "rescan" case, not a system fault.
package qr

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ocelon/openpay"
)

const (
	// Scheme is the deep-link scheme of a payment code
	Scheme = "openpayment"
	// Path is the only recognized path under the scheme
	Path = "/pay"

	// MaxClockSkew bounds |now - ts| at scan time. The window is symmetric:
	// a timestamp from the future is as invalid as a stale one. This is the
	// anti-replay policy, so it is re-checked when scanning, never only at
	// generation time.
	MaxClockSkew = 5 * time.Minute

	// tsFormat renders timestamps with millisecond precision, matching the
	// generator side of the deep-link format.
	tsFormat = "2006-01-02T15:04:05.000Z07:00"
)

// amountPattern: non-negative decimal with at most 2 fractional digits
var amountPattern = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)

// PaymentIntent is the payload embedded in a payment QR code. Timestamp
// stays in its ISO-8601 string form so that a decode of an encode
// reproduces every field exactly.
type PaymentIntent struct {
	To        string
	Amount    string
	Nonce     string
	Timestamp string
	From      string
	Raw       string
}

// NewPaymentIntent builds an intent for the given receiver and decimal
// amount, stamped with the current time and a fresh random nonce.
func NewPaymentIntent(to, amount, from string) PaymentIntent {
	return PaymentIntent{
		To:        to,
		Amount:    amount,
		Nonce:     openpay.NewNonce(16),
		Timestamp: time.Now().UTC().Format(tsFormat),
		From:      from,
	}
}

// Encode serializes the intent as a deep-link string:
//
//	openpayment://pay?to=..&amount=..&nonce=..&ts=..&from=..
//
// Query parameters keep that exact order; from is omitted when empty.
func Encode(intent PaymentIntent) string {
	var b strings.Builder
	b.WriteString(Scheme)
	b.WriteString("://pay?to=")
	b.WriteString(url.QueryEscape(intent.To))
	b.WriteString("&amount=")
	b.WriteString(url.QueryEscape(intent.Amount))
	b.WriteString("&nonce=")
	b.WriteString(url.QueryEscape(intent.Nonce))
	b.WriteString("&ts=")
	b.WriteString(url.QueryEscape(intent.Timestamp))
	if intent.From != "" {
		b.WriteString("&from=")
		b.WriteString(url.QueryEscape(intent.From))
	}
	return b.String()
}

// Decode parses and validates raw against the current clock. It returns
// nil when the code is malformed or outside the validity window.
func Decode(raw string) *PaymentIntent {
	return DecodeAt(raw, time.Now())
}

// DecodeAt is Decode evaluated at an explicit scan instant
func DecodeAt(raw string, now time.Time) *PaymentIntent {
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	if u.Scheme != Scheme {
		return nil
	}
	// openpayment://pay parses with "pay" as the host; openpayment:///pay
	// parses with an empty host and /pay as the path. Only those two forms
	// are the documented shape; any other host is a different link.
	hostForm := u.Host == "pay" && (u.Path == "" || u.Path == "/")
	pathForm := u.Host == "" && u.Path == Path
	if !hostForm && !pathForm {
		return nil
	}

	q := u.Query()
	to := strings.TrimSpace(q.Get("to"))
	amount := strings.TrimSpace(q.Get("amount"))
	nonce := strings.TrimSpace(q.Get("nonce"))
	ts := strings.TrimSpace(q.Get("ts"))

	if to == "" || amount == "" || nonce == "" || ts == "" {
		return nil
	}
	if !amountPattern.MatchString(amount) {
		return nil
	}

	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return nil
	}

	skew := now.Sub(t)
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxClockSkew {
		return nil
	}

	return &PaymentIntent{
		To:        to,
		Amount:    amount,
		Nonce:     nonce,
		Timestamp: ts,
		From:      q.Get("from"),
		Raw:       raw,
	}
}
