package signer

import "fmt"

// Credentials are the API key, secret and optional passphrase of one account.
// String and GoString redact the secret material so %v and %#v are safe to log.
type Credentials struct {
	Key        string
	Secret     string
	Passphrase string
}

func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Key: %s, Secret: %s, Passphrase: %s}", mask(c.Key), redact(c.Secret), redact(c.Passphrase))
}

func (c Credentials) GoString() string {
	return c.String()
}

func mask(s string) string {
	if len(s) <= 4 {
		return redact(s)
	}
	return s[:4] + "..."
}

func redact(s string) string {
	if s == "" {
		return "<empty>"
	}
	return "<redacted>"
}
