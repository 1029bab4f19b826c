package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"gopkg.in/mail.v2"
)

// SMTPEmailTransport sends email through an SMTP relay.
type SMTPEmailTransport struct {
	host     string
	port     int
	username string
	password string
	from     string

	// send is swappable for tests.
	send func(m *mail.Message) error
}

func NewSMTPEmailTransport(host string, port int, username, password, from string) (*SMTPEmailTransport, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if port <= 0 {
		return nil, fmt.Errorf("smtp port must be positive")
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}

	t := &SMTPEmailTransport{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
	t.send = t.dialAndSend

	return t, nil
}

func (t *SMTPEmailTransport) Send(ctx context.Context, to, subject, body string) (*ProviderResponse, error) {
	if t == nil || t.send == nil {
		return nil, fmt.Errorf("email transport is not initialized")
	}
	if strings.TrimSpace(to) == "" {
		return nil, &ProviderError{Message: "recipient address is empty", Transient: false}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := mail.NewMessage()
	m.SetHeader("From", t.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := t.send(m); err != nil {
		// SMTP relay failures are overwhelmingly connectivity or
		// throttling; classify them retryable.
		return nil, &ProviderError{
			Message:   "smtp send failed",
			Transient: true,
			Cause:     err,
		}
	}

	return &ProviderResponse{StatusCode: http.StatusOK}, nil
}

func (t *SMTPEmailTransport) dialAndSend(m *mail.Message) error {
	dialer := mail.NewDialer(t.host, t.port, t.username, t.password)
	return dialer.DialAndSend(m)
}
