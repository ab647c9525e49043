package models

import "log/slog"

// Credential is the bearer token authorizing provider calls for one request.
// It is never persisted or cached by the service.
type Credential struct {
	AccessToken string
}

// String redacts the token so a Credential can be printed safely.
func (c Credential) String() string {
	if c.AccessToken == "" {
		return "Credential(none)"
	}
	return "Credential(redacted)"
}

// LogValue implements slog.LogValuer.
func (c Credential) LogValue() slog.Value {
	return slog.StringValue(c.String())
}
