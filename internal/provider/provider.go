package provider

import "context"

// EmailTransport delivers a rendered email to a recipient address.
type EmailTransport interface {
	Send(ctx context.Context, to, subject, body string) (*ProviderResponse, error)
}

// PushTransport delivers a push message to a single device token. Callers
// fan out over a user's tokens; a failed token does not abort the rest.
type PushTransport interface {
	SendToDevice(ctx context.Context, token, title, message string, payload map[string]any) (*ProviderResponse, error)
}

// ProviderResponse stores provider call metadata for audit and persistence.
type ProviderResponse struct {
	StatusCode int
	Body       string
	MessageID  string
}
