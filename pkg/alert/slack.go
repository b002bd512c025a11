package alert

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackChannel posts alerts to a Slack channel via the Web API.
// Nil-safe: Send on a nil receiver is a no-op.
type SlackChannel struct {
	client  *slack.Client
	channel string
}

// NewSlack builds a Slack channel. Returns nil when token or channel is
// empty so callers can wire it unconditionally.
func NewSlack(token, channel string) *SlackChannel {
	if token == "" || channel == "" {
		return nil
	}
	return &SlackChannel{client: slack.New(token), channel: channel}
}

func (s *SlackChannel) Name() string { return "slack" }

// Send posts the rendered message as a header block plus body text. A
// per-monitor channel override in the message summary takes precedence
// over the globally configured channel.
func (s *SlackChannel) Send(ctx context.Context, msg Message) error {
	if s == nil {
		return nil
	}
	target := s.channel
	if msg.Summary != nil && msg.Summary.Channels.Slack != "" {
		// MonitorConfig may route this monitor to its own channel.
		target = msg.Summary.Channels.Slack
	}

	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, msg.Subject, false, false)),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, msg.Body, false, false), nil, nil),
	}
	_, _, err := s.client.PostMessageContext(ctx, target,
		slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionText(msg.Subject, false))
	if err != nil {
		return fmt.Errorf("posting to %s: %w", target, err)
	}
	return nil
}
