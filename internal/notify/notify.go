package notify

import (
	"context"

	"mobile_auth/internal/models"
)

// Publisher enqueues a decoupled outbound notification. Delivery (email,
// push, analytics) lives entirely outside this service; the only contract
// here is whether the enqueue succeeded.
type Publisher interface {
	Publish(ctx context.Context, n models.Notification) error
	Close()
}

// Noop is selected at startup when no broker is configured.
type Noop struct{}

func (Noop) Publish(_ context.Context, _ models.Notification) error { return nil }

func (Noop) Close() {}
