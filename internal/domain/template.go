package domain

import (
	"fmt"
	"strings"
	"time"
)

// NotificationTemplate is a named, reusable message shape. Title and
// message may contain {{variable}} placeholders. Templates are read-only
// at dispatch time; rendering produces an ephemeral notification and
// leaves the template unchanged.
type NotificationTemplate struct {
	ID        string
	Name      string
	Channel   Channel
	Title     string
	Message   string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t *NotificationTemplate) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: template name is required", ErrValidation)
	}
	if !t.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, t.Channel)
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: template title is required", ErrValidation)
	}
	if strings.TrimSpace(t.Message) == "" {
		return fmt.Errorf("%w: template message is required", ErrValidation)
	}
	return nil
}

// Render substitutes {{variable}} placeholders in title and message from
// the given variable map. Placeholders without a matching variable pass
// through literally; this leniency is intentional.
func (t *NotificationTemplate) Render(variables map[string]string) (title, message string) {
	title = renderPlaceholders(t.Title, variables)
	message = renderPlaceholders(t.Message, variables)
	return title, message
}

func renderPlaceholders(s string, variables map[string]string) string {
	for name, value := range variables {
		s = strings.ReplaceAll(s, "{{"+name+"}}", value)
	}
	return s
}
