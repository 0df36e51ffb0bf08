package model

import "time"

// WebhookEventType represents the type of webhook event received
type WebhookEventType string

const (
	EventTypeIssues      WebhookEventType = "issues"
	EventTypePullRequest WebhookEventType = "pull_request"
	EventTypeRelease     WebhookEventType = "release"
	EventTypePing        WebhookEventType = "ping"
	EventTypeUnknown     WebhookEventType = "unknown"
)

// WebhookEvent represents a webhook event received from the source repository
type WebhookEvent struct {
	ID         string           // Retrieved from X-GitHub-Delivery header
	Type       WebhookEventType // Retrieved from X-GitHub-Event header
	Action     string           // Event action (e.g., opened, published)
	Repository string           // Repository full name
	Sender     string           // Sender username
	Number     int              // Issue or pull request number, 0 for releases
	ReceivedAt time.Time        // Time when the event was received
}

// TriggersSync reports whether the event creates something that has to be
// replicated. Edits are not propagated: replicated objects are snapshots.
func (e *WebhookEvent) TriggersSync() bool {
	switch e.Type {
	case EventTypeIssues, EventTypePullRequest:
		return e.Action == "opened"
	case EventTypeRelease:
		return e.Action == "published" || e.Action == "released"
	default:
		return false
	}
}
