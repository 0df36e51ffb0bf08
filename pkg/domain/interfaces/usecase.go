package interfaces

//go:generate moq -out mocks/usecase_mock.go -pkg mocks . WebhookUseCase SyncUseCase

import (
	"context"

	"github.com/m-mizutani/reposync/pkg/domain/model"
)

// WebhookUseCase defines the interface for webhook event processing
type WebhookUseCase interface {
	// ProcessEvent processes a webhook event
	ProcessEvent(ctx context.Context, event *model.WebhookEvent) error
}

// SyncUseCase replicates the source repository into the destination
type SyncUseCase interface {
	// SyncLabels creates source labels missing in the destination
	SyncLabels(ctx context.Context) error

	// SyncNumbered replicates issues and pull requests keeping their numbers
	SyncNumbered(ctx context.Context) (*model.Report, error)

	// SyncReleases replicates releases and their assets
	SyncReleases(ctx context.Context) (*model.Report, error)
}
