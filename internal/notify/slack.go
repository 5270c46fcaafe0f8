// Package notify posts operational events to a Slack channel. It is
// best-effort by construction: a missing token disables it and send failures
// only log.
package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/slack-go/slack"
)

// slackAPI is the subset of the Slack client the notifier uses; tests
// substitute a recorder.
type slackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// OpsNotifier announces admin-plane events to an ops channel.
type OpsNotifier struct {
	client  slackAPI
	channel string
}

// NewOpsNotifier creates a notifier for the given channel. It returns nil
// when no bot token is configured; a nil *OpsNotifier is safe to call.
func NewOpsNotifier(botToken, channel string) *OpsNotifier {
	if botToken == "" || channel == "" {
		return nil
	}
	return &OpsNotifier{
		client:  slack.New(botToken),
		channel: channel,
	}
}

// FlagChanged announces a feature-flag toggle.
func (n *OpsNotifier) FlagChanged(ctx context.Context, name string, enabled bool) {
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	n.post(ctx, fmt.Sprintf(":flags: Feature flag `%s` %s", name, state))
}

func (n *OpsNotifier) post(ctx context.Context, text string) {
	if n == nil {
		return
	}
	_, _, err := n.client.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false))
	if err != nil {
		log.Printf("WARN [Notify] failed to post to Slack channel %s: %v", n.channel, err)
	}
}
