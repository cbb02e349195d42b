// Package quotanotify posts Telemetry quota alerts to a Slack channel.
package quotanotify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"

	"github.com/verseforge/verseforge/internal/telemetry"
)

// Notifier sends quota alert messages to Slack. It implements
// telemetry.AlertSink.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// New creates a Notifier. If botToken is empty, the notifier is a noop that
// only logs, so quota alerting degrades gracefully when Slack isn't configured.
func New(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether the notifier can actually reach Slack.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// NotifyQuotaAlert posts a quota alert message, satisfying telemetry.AlertSink.
func (n *Notifier) NotifyQuotaAlert(ctx context.Context, alert telemetry.QuotaAlert) {
	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, skipping quota alert",
			"resource", alert.Resource, "ratio", alert.Ratio)
		return
	}

	text := fmt.Sprintf(":rotating_light: quota alert: *%s* at %.0f%% of configured threshold",
		alert.Resource, alert.Ratio*100)

	_, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		n.logger.Error("posting quota alert to slack", "error", err, "resource", alert.Resource)
		return
	}

	n.logger.Info("posted quota alert to slack", "resource", alert.Resource, "ratio", alert.Ratio)
}
