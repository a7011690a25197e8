package notify

import (
	"context"
)

// Notifier delivers operator notifications about task transitions.
type Notifier interface {
	Send(ctx context.Context, title, body string) error
}

// NoOpNotifier does nothing. Used when no notification channel is
// configured.
type NoOpNotifier struct{}

func (NoOpNotifier) Send(ctx context.Context, title, body string) error {
	return nil
}
