// Package github converts GitHub webhook payloads into domain events.
package github

import (
	"time"

	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reposync/pkg/domain/model"
)

// ParseEvent decodes a webhook payload. Event types that do not concern
// replication are returned with type EventTypeUnknown.
func ParseEvent(eventType, deliveryID string, body []byte) (*model.WebhookEvent, error) {
	event := &model.WebhookEvent{
		ID:         deliveryID,
		Type:       model.WebhookEventType(eventType),
		ReceivedAt: time.Now(),
	}

	payload, err := github.ParseWebHook(eventType, body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse webhook payload",
			goerr.V("event_type", eventType),
			goerr.V("delivery_id", deliveryID))
	}

	switch e := payload.(type) {
	case *github.IssuesEvent:
		event.Action = e.GetAction()
		event.Repository = e.GetRepo().GetFullName()
		event.Sender = e.GetSender().GetLogin()
		event.Number = e.GetIssue().GetNumber()

	case *github.PullRequestEvent:
		event.Action = e.GetAction()
		event.Repository = e.GetRepo().GetFullName()
		event.Sender = e.GetSender().GetLogin()
		event.Number = e.GetNumber()

	case *github.ReleaseEvent:
		event.Action = e.GetAction()
		event.Repository = e.GetRepo().GetFullName()
		event.Sender = e.GetSender().GetLogin()

	case *github.PingEvent:
		event.Type = model.EventTypePing

	default:
		event.Type = model.EventTypeUnknown
	}

	return event, nil
}
