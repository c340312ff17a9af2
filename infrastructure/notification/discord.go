// Package notification delivers run outcomes to operators over chat webhooks.
package notification

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/felixgeelhaar/robotflow/domain/ledger"
	"github.com/felixgeelhaar/robotflow/infrastructure/logging"
	"github.com/felixgeelhaar/robotflow/infrastructure/resilience"
)

// Embed colours.
const (
	colorSuccess = 0x2ecc71
	colorFailure = 0xe74c3c
)

// maxFieldLength is Discord's embed field value limit.
const maxFieldLength = 1024

// DefaultPublishTimeout bounds one webhook delivery.
const DefaultPublishTimeout = 10 * time.Second

// ErrInvalidWebhook indicates a webhook URL without an id and token.
var ErrInvalidWebhook = errors.New("invalid discord webhook url")

// WebhookExecutor is the part of *discordgo.Session the notifier uses.
type WebhookExecutor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts a summary of every finished run to a Discord webhook.
// It implements ledger.EventPublisher.
type Discord struct {
	session  WebhookExecutor
	id       string
	token    string
	username string
	timeout  time.Duration
	executor *resilience.Executor[*discordgo.Message]
}

// Option configures the Discord notifier.
type Option func(*Discord)

// WithUsername overrides the webhook's display name.
func WithUsername(name string) Option {
	return func(d *Discord) {
		d.username = name
	}
}

// WithTimeout bounds each delivery.
func WithTimeout(t time.Duration) Option {
	return func(d *Discord) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// WithExecutor protects deliveries with a resilience executor.
func WithExecutor(e *resilience.Executor[*discordgo.Message]) Option {
	return func(d *Discord) {
		d.executor = e
	}
}

// NewDiscord creates a notifier for the given webhook URL.
func NewDiscord(session WebhookExecutor, webhookURL string, opts ...Option) (*Discord, error) {
	id, token, err := ParseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}
	d := &Discord{
		session:  session,
		id:       id,
		token:    token,
		username: "robotflow",
		timeout:  DefaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// NewDiscordFromURL creates a notifier with its own session. Webhook
// execution needs no bot token.
func NewDiscordFromURL(webhookURL string, opts ...Option) (*Discord, error) {
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return NewDiscord(session, webhookURL, opts...)
}

// ParseWebhookURL extracts the id and token from
// https://discord.com/api/webhooks/{id}/{token}.
func ParseWebhookURL(raw string) (id, token string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("%w: %q", ErrInvalidWebhook, raw)
}

// Publish implements ledger.EventPublisher. Only run finished events are
// delivered; everything else is ignored.
func (d *Discord) Publish(event ledger.Event) error {
	finished, ok := event.(ledger.RunFinishedEvent)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	params := &discordgo.WebhookParams{
		Username: d.username,
		Embeds:   []*discordgo.MessageEmbed{Embed(finished)},
	}
	send := func(ctx context.Context) (*discordgo.Message, error) {
		return d.session.WebhookExecute(d.id, d.token, false, params, discordgo.WithContext(ctx))
	}

	var err error
	if d.executor != nil {
		_, err = d.executor.Execute(ctx, send)
	} else {
		_, err = send(ctx)
	}
	if err != nil {
		logging.Error().
			Add(logging.Component("discord")).
			Add(logging.CorrelationID(finished.RunID())).
			Add(logging.ErrorField(err)).
			Msg("run notification failed")
		return fmt.Errorf("discord webhook: %w", err)
	}

	logging.Debug().
		Add(logging.Component("discord")).
		Add(logging.CorrelationID(finished.RunID())).
		Msg("run notification delivered")
	return nil
}

// Embed renders a finished run as a Discord embed.
func Embed(e ledger.RunFinishedEvent) *discordgo.MessageEmbed {
	title := "Run completed"
	color := colorSuccess
	if !e.Succeeded() {
		title = "Run fell back: " + string(e.Fallback)
		color = colorFailure
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Run", Value: shortID(e.RunID()), Inline: true},
		{Name: "Intent", Value: string(e.Intent), Inline: true},
		{Name: "Duration", Value: e.Duration.Round(time.Millisecond).String(), Inline: true},
	}
	if e.Steps > 0 {
		fields = append(fields,
			&discordgo.MessageEmbedField{Name: "Steps", Value: fmt.Sprint(e.Steps), Inline: true},
			&discordgo.MessageEmbedField{Name: "Plan attempts", Value: fmt.Sprint(e.Attempts), Inline: true},
		)
	}
	if e.Response != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Response", Value: clip(e.Response)})
	}

	return &discordgo.MessageEmbed{
		Title:       title,
		Description: clip(e.Command),
		Color:       color,
		Fields:      fields,
		Timestamp:   e.Timestamp().UTC().Format(time.RFC3339),
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func clip(s string) string {
	if len(s) <= maxFieldLength {
		return s
	}
	return s[:maxFieldLength-3] + "..."
}
