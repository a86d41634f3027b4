// Package mailer queues transactional email and delivers it from a single
// background consumer.
package mailer

import (
	"fmt"
	"sort"
	"strings"
)

// Template names a transactional email.
type Template string

const (
	VerifyNewAccount      Template = "verify_new_account"
	VerifyEmailChange     Template = "verify_email_change"
	NotifyEmailChange     Template = "notify_of_email_change"
	FriendRequestReceived Template = "friend_request_received"
	FriendRequestAccepted Template = "friend_request_accepted"
	NewComment            Template = "new_comment"
)

var requiredContext = map[Template][]string{
	VerifyNewAccount:      {"name", "verify_url", "verify_code"},
	VerifyEmailChange:     {"name", "verify_url", "verify_code"},
	NotifyEmailChange:     {"name", "old_email", "new_email"},
	FriendRequestReceived: {"name", "requester_name", "url"},
	FriendRequestAccepted: {"name", "accepter_name", "url"},
	NewComment:            {"name", "commenter_name", "trip", "comment_content"},
}

// Templates lists every known template in a stable order.
func Templates() []Template {
	out := make([]Template, 0, len(requiredContext))
	for name := range requiredContext {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Required returns the context keys a template needs.
func (t Template) Required() []string {
	return append([]string(nil), requiredContext[t]...)
}

// Event is a queued email: the template, its recipient and render context.
type Event struct {
	Template  Template       `json:"template"`
	Recipient string         `json:"recipient"`
	Context   map[string]any `json:"context"`
}

// NewEvent validates the template, recipient and required context keys.
func NewEvent(template Template, recipient string, ctx map[string]any) (Event, error) {
	required, ok := requiredContext[template]
	if !ok {
		return Event{}, fmt.Errorf("mailer: unknown template %q", template)
	}
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return Event{}, fmt.Errorf("mailer: %s: recipient is required", template)
	}
	var missing []string
	for _, key := range required {
		if _, ok := ctx[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Event{}, fmt.Errorf("mailer: %s: missing context: %s", template, strings.Join(missing, ", "))
	}
	copied := make(map[string]any, len(ctx))
	for k, v := range ctx {
		copied[k] = v
	}
	return Event{Template: template, Recipient: recipient, Context: copied}, nil
}
