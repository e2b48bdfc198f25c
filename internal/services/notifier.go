package services

import (
	"fmt"

	"github.com/containrrr/shoutrrr"

	"github.com/0xabdo/the-market/internal/logger"
	"github.com/0xabdo/the-market/internal/models"
)

// Notifier pushes block alerts to the configured shoutrrr URLs so
// operators hear about auto-blocked addresses without watching logs.
type Notifier struct {
	urls []string
}

// NewNotifier returns nil when no URLs are configured; a nil Notifier is
// a valid no-op BlockNotifier slot.
func NewNotifier(urls []string) *Notifier {
	if len(urls) == 0 {
		return nil
	}
	return &Notifier{urls: urls}
}

// NotifyBlocked sends a best-effort alert for an auto-blocked address.
func (n *Notifier) NotifyBlocked(address string, level models.RiskLevel) {
	if n == nil {
		return
	}
	msg := fmt.Sprintf("Address %s auto-blocked (risk level: %s)", address, level)
	for _, url := range n.urls {
		if err := shoutrrr.Send(url, msg); err != nil {
			logger.WithError(err).Warn("failed to send block notification")
		}
	}
}
