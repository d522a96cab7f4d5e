package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// InviteMessage is the transactional email sent on invite creation.
type InviteMessage struct {
	To            string
	WorkspaceName string
	InviterName   string
	Role          string
	ActionLink    string
}

// Mailer delivers transactional email. Delivery failure is always treated
// as a non-fatal warning by callers.
type Mailer interface {
	SendInvite(ctx context.Context, msg InviteMessage) error
}

// HTTPMailer posts to a transactional-email provider's JSON API.
type HTTPMailer struct {
	apiURL string
	apiKey string
	from   string
	http   *resty.Client
}

func NewHTTPMailer(apiURL, apiKey, from string, timeout time.Duration) *HTTPMailer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPMailer{
		apiURL: apiURL,
		apiKey: apiKey,
		from:   from,
		http:   resty.New().SetTimeout(timeout),
	}
}

func (m *HTTPMailer) SendInvite(ctx context.Context, msg InviteMessage) error {
	payload := map[string]any{
		"from":    m.from,
		"to":      msg.To,
		"subject": fmt.Sprintf("You've been invited to %s", msg.WorkspaceName),
		"body": fmt.Sprintf(
			"%s invited you to join the workspace %q as %s.\n\nAccept the invitation: %s\n",
			msg.InviterName, msg.WorkspaceName, msg.Role, msg.ActionLink,
		),
	}
	resp, err := m.http.R().
		SetContext(ctx).
		SetAuthToken(m.apiKey).
		SetBody(payload).
		Post(m.apiURL)
	if err != nil {
		return fmt.Errorf("mail provider unreachable: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("mail provider rejected message: %s", resp.Status())
	}
	return nil
}
