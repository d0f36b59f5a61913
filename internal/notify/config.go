package notify

import (
	"fmt"

	"github.com/zulandar/stenograph/internal/config"
)

// FromConfig builds the composite notifier for the configured targets.
// An empty config yields a notifier that delivers nowhere.
func FromConfig(cfg config.NotifyConfig) (*Multi, error) {
	var notifiers []Notifier

	if cfg.SlackToken != "" {
		s, err := NewSlack(SlackOpts{Token: cfg.SlackToken, ChannelID: cfg.SlackChannel})
		if err != nil {
			return nil, fmt.Errorf("notify: %w", err)
		}
		notifiers = append(notifiers, s)
	}

	if cfg.DiscordToken != "" {
		d, err := NewDiscord(DiscordOpts{Token: cfg.DiscordToken, ChannelID: cfg.DiscordChannel})
		if err != nil {
			return nil, fmt.Errorf("notify: %w", err)
		}
		notifiers = append(notifiers, d)
	}

	return NewMulti(notifiers...), nil
}
