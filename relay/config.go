package relay

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Defaults mirroring the mobile app's expectations
const (
	DefaultPort              = "3001"
	DefaultFinishRedirectURL = "ocelon://pay/finish"
	DefaultReceiveValueMinor = "1000"
)

// WalletCredentials identifies one side of the flow: the wallet address
// plus the signing credential the host hands to the request signer. The
// private key is treated as opaque material; nothing here parses it.
type WalletCredentials struct {
	WalletAddressURL string
	KeyID            string
	PrivateKeyPath   string
}

// LoadPrivateKey reads the credential file for hand-off to a RequestSigner
func (w WalletCredentials) LoadPrivateKey() ([]byte, error) {
	data, err := os.ReadFile(w.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key %s: %w", w.PrivateKeyPath, err)
	}
	return data, nil
}

// Config is the relay's environment-resolved configuration. Credentials are
// injected at process start and never embedded in source.
type Config struct {
	Port              string
	Receiver          WalletCredentials
	Sender            WalletCredentials
	FinishRedirectURL string
}

// ConfigFromEnv resolves the relay configuration from the environment.
// Every wallet variable is required; missing ones are reported together so
// a broken .env surfaces as one actionable error.
func ConfigFromEnv() (*Config, error) {
	cfg := &Config{
		Port:              envOr("PORT", DefaultPort),
		FinishRedirectURL: envOr("FINISH_REDIRECT_URL", DefaultFinishRedirectURL),
		Receiver: WalletCredentials{
			WalletAddressURL: os.Getenv("RECEIVER_WALLET_ADDRESS_URL"),
			KeyID:            os.Getenv("RECEIVER_KEY_ID"),
			PrivateKeyPath:   os.Getenv("RECEIVER_PRIVATE_KEY_PATH"),
		},
		Sender: WalletCredentials{
			WalletAddressURL: os.Getenv("SENDER_WALLET_ADDRESS_URL"),
			KeyID:            os.Getenv("SENDER_KEY_ID"),
			PrivateKeyPath:   os.Getenv("SENDER_PRIVATE_KEY_PATH"),
		},
	}

	var missing []string
	for name, value := range map[string]string{
		"RECEIVER_WALLET_ADDRESS_URL": cfg.Receiver.WalletAddressURL,
		"RECEIVER_KEY_ID":             cfg.Receiver.KeyID,
		"RECEIVER_PRIVATE_KEY_PATH":   cfg.Receiver.PrivateKeyPath,
		"SENDER_WALLET_ADDRESS_URL":   cfg.Sender.WalletAddressURL,
		"SENDER_KEY_ID":               cfg.Sender.KeyID,
		"SENDER_PRIVATE_KEY_PATH":     cfg.Sender.PrivateKeyPath,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing environment variables: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
