package usecase

import (
	"context"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/reposync/pkg/domain/model"
)

// Trigger starts a sync pass in the background
type Trigger interface {
	Trigger(ctx context.Context)
}

type webhookUseCase struct {
	source  string
	trigger Trigger
}

// NewWebhook creates a new instance of WebhookUseCase. Events from
// repositories other than source are ignored.
func NewWebhook(source string, trigger Trigger) *webhookUseCase {
	return &webhookUseCase{
		source:  source,
		trigger: trigger,
	}
}

// ProcessEvent starts an incremental sync when the source repository got
// a new issue, pull request or release
func (uc *webhookUseCase) ProcessEvent(ctx context.Context, event *model.WebhookEvent) error {
	logger := ctxlog.From(ctx)

	logger.Info("Processing webhook event",
		"id", event.ID,
		"type", event.Type,
		"action", event.Action,
		"repository", event.Repository,
		"sender", event.Sender,
		"number", event.Number,
	)

	if !strings.EqualFold(event.Repository, uc.source) {
		logger.Warn("Ignoring event from an unexpected repository",
			"repository", event.Repository,
			"expected", uc.source,
		)
		return nil
	}

	if !event.TriggersSync() {
		logger.Debug("Event does not require synchronization",
			"type", event.Type,
			"action", event.Action,
		)
		return nil
	}

	if uc.trigger != nil {
		uc.trigger.Trigger(ctx)
	}
	return nil
}
