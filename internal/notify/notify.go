// Package notify sends operator-facing alerts to Slack: a thin wrapper that
// no-ops when no bot token is configured.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// Notifier posts operational alerts to a single Slack channel.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// New creates a Notifier. If botToken is empty, the notifier is a no-op —
// callers don't need to branch on whether Slack is configured.
func New(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether this Notifier has a usable Slack client.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

func (n *Notifier) post(ctx context.Context, text string) {
	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, skipping alert", "text", text)
		return
	}
	if _, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false)); err != nil {
		n.logger.Error("posting slack alert", "error", err)
	}
}

// NotifyResourcesReaped alerts that audit_terminated reaped one or more
// Resources — a device stopped being reported by OpenNaaS.
func (n *Notifier) NotifyResourcesReaped(ctx context.Context, names []string) {
	n.post(ctx, fmt.Sprintf(":warning: ROADM AM: %d resource(s) reaped by audit_terminated (no longer reported by OpenNaaS): %v", len(names), names))
}

// NotifyQueueExecuteError alerts that a queue/execute call against a device
// reported a persistent ERROR status.
func (n *Notifier) NotifyQueueExecuteError(ctx context.Context, resourceType, resourceName, actionID string, err error) {
	n.post(ctx, fmt.Sprintf(":rotating_light: ROADM AM: queue/execute failed for %s/%s (action %s): %v", resourceType, resourceName, actionID, err))
}
