package port

import (
	"context"

	"github.com/DrorGr/amesaBE-sub006/internal/core/domain"
)

// EventPublisher pushes state-change notifications to the UI/notification
// collaborator. Best effort: a publish error is logged by the caller and never
// rolls back the state change it describes.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}
