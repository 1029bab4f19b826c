package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/coursehub/notification-engine/internal/domain"
	"github.com/coursehub/notification-engine/internal/provider"
	"github.com/coursehub/notification-engine/internal/repository"
)

// LivePusher mirrors notification events to connected websocket sessions.
// Every call is best-effort; an absent recipient is a no-op.
type LivePusher interface {
	PushNotification(n *domain.Notification)
	PushUnreadCount(recipientID string, count int64)
}

// Dispatcher routes a notification to its channel transport. IN_APP has
// no transport (persistence is the delivery) and SMS has no provider
// integration, so only EMAIL and PUSH reach the wire.
type Dispatcher struct {
	email    provider.EmailTransport
	push     provider.PushTransport
	platform repository.PlatformRepository
	logger   *zap.Logger
}

func NewDispatcher(
	email provider.EmailTransport,
	push provider.PushTransport,
	platform repository.PlatformRepository,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if platform == nil {
		return nil, fmt.Errorf("platform repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		email:    email,
		push:     push,
		platform: platform,
		logger:   logger,
	}, nil
}

// Dispatch performs one delivery attempt and returns the provider
// response for audit. Classification of the returned error (transient or
// permanent) drives the caller's retry decision.
func (d *Dispatcher) Dispatch(ctx context.Context, n *domain.Notification) (*provider.ProviderResponse, error) {
	if n == nil {
		return nil, fmt.Errorf("notification is required")
	}

	switch n.Channel {
	case domain.ChannelInApp:
		return nil, nil
	case domain.ChannelEmail:
		return d.dispatchEmail(ctx, n)
	case domain.ChannelPush:
		return d.dispatchPush(ctx, n)
	case domain.ChannelSMS:
		return nil, domain.ErrUnsupportedChannel
	default:
		return nil, fmt.Errorf("%w: unknown channel %q", domain.ErrUnsupportedChannel, n.Channel)
	}
}

func (d *Dispatcher) dispatchEmail(ctx context.Context, n *domain.Notification) (*provider.ProviderResponse, error) {
	if d.email == nil {
		return nil, &provider.ProviderError{Message: "email transport is not configured", Transient: false}
	}

	user, err := d.platform.UserByID(ctx, n.RecipientID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &provider.ProviderError{Message: "recipient account not found", Transient: false}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve recipient: %w", err)
	}
	if strings.TrimSpace(user.Email) == "" {
		return nil, &provider.ProviderError{Message: "recipient has no email address", Transient: false}
	}

	return d.email.Send(ctx, user.Email, n.Title, n.Message)
}

// dispatchPush fans out over every device token the recipient holds.
// One reachable device counts as success; the attempt fails only when
// all devices fail or none are registered.
func (d *Dispatcher) dispatchPush(ctx context.Context, n *domain.Notification) (*provider.ProviderResponse, error) {
	if d.push == nil {
		return nil, &provider.ProviderError{Message: "push transport is not configured", Transient: false}
	}

	tokens, err := d.platform.DeviceTokens(ctx, n.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load device tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil, &provider.ProviderError{Message: "recipient has no registered devices", Transient: false}
	}

	var lastResp *provider.ProviderResponse
	var lastErr error
	delivered := 0

	for _, token := range tokens {
		resp, sendErr := d.push.SendToDevice(ctx, token, n.Title, n.Message, n.Payload)
		if sendErr != nil {
			lastErr = sendErr
			d.logger.Warn("push delivery to device failed",
				zap.String("notificationId", n.ID),
				zap.Error(sendErr),
			)
			continue
		}
		delivered++
		lastResp = resp
	}

	if delivered == 0 {
		return nil, lastErr
	}

	return lastResp, nil
}
