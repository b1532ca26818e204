// Package slack announces contact submissions through a Slack incoming webhook.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ex-augmenter/pkg/augmenter"

	slackapi "github.com/slack-go/slack"
)

const defaultRequestTimeout = 10 * time.Second

var budgetWordReplacer = strings.NewReplacer("from", "from ", "to", "to ", "above", "above ")

// Notifier posts contact notifications to one incoming webhook.
//
// A Notifier without a webhook URL logs a warning and skips every notification.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures New.
type Option func(*Notifier)

// WithHTTPClient replaces the HTTP client used to post webhooks.
func WithHTTPClient(client *http.Client) Option {
	return func(n *Notifier) {
		if client != nil {
			n.httpClient = client
		}
	}
}

// WithLogger configures the notifier logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// New creates a notifier for webhookURL.
func New(webhookURL string, opts ...Option) *Notifier {
	notifier := &Notifier{
		webhookURL: strings.TrimSpace(webhookURL),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(notifier)
	}

	return notifier
}

// WithWebhookURL returns a copy of the notifier that posts to webhookURL.
func (n *Notifier) WithWebhookURL(webhookURL string) *Notifier {
	cloned := *n
	cloned.webhookURL = strings.TrimSpace(webhookURL)

	return &cloned
}

// NotifyContact posts one contact notification.
//
// Missing configuration and nil contacts are logged and skipped. Transport
// failures and non-2xx responses are returned.
func (n *Notifier) NotifyContact(ctx context.Context, contact *augmenter.Contact) error {
	if n.webhookURL == "" {
		n.logger.WarnContext(ctx, "slack webhook url not configured, skipping notification")
		return nil
	}
	if contact == nil {
		n.logger.WarnContext(ctx, "slack notification skipped: no contact data provided")
		return nil
	}

	message := BuildMessage(*contact)
	if err := slackapi.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.httpClient, &message); err != nil {
		return fmt.Errorf("notify contact %s: %w", contact.Email, err)
	}

	n.logger.InfoContext(ctx, "slack contact notification sent", "email", contact.Email)

	return nil
}

// BuildMessage renders the Block Kit payload for one contact.
func BuildMessage(contact augmenter.Contact) slackapi.WebhookMessage {
	title := "📬 New Contact Submission"
	if contact.SponsorshipInquiry {
		title = "🤝 Sponsorship Inquiry"
	}

	blocks := []slackapi.Block{
		slackapi.NewHeaderBlock(slackapi.NewTextBlockObject(slackapi.PlainTextType, title, true, false)),
		slackapi.NewSectionBlock(nil, []*slackapi.TextBlockObject{
			markdown(strings.TrimSpace("*Name:*\n" + contact.Firstname + " " + contact.Lastname)),
			markdown("*Email:*\n" + contact.Email),
		}, nil),
	}

	if contact.CompanyName != "" || contact.CompanyWebsite != "" {
		blocks = append(blocks, slackapi.NewSectionBlock(nil, []*slackapi.TextBlockObject{
			markdown("*Company:*\n" + orNA(contact.CompanyName)),
			markdown("*Website:*\n" + orNA(contact.CompanyWebsite)),
		}, nil))
	}
	if contact.Source != "" {
		blocks = append(blocks, slackapi.NewSectionBlock(markdown("*Source:* "+contact.Source), nil, nil))
	}

	inquiry := "No"
	if contact.SponsorshipInquiry {
		inquiry = "Yes"
	}
	blocks = append(blocks,
		slackapi.NewDividerBlock(),
		slackapi.NewContextBlock("", markdown("*Sponsorship Inquiry:* "+inquiry)),
	)

	if contact.SponsorshipInquiry && contact.BudgetRange != "" {
		blocks = append(blocks, slackapi.NewContextBlock("", markdown("*Budget Range:* "+FormatBudgetRange(contact.BudgetRange))))
	}
	if contact.AdditionalInfo != "" {
		blocks = append(blocks, slackapi.NewSectionBlock(markdown("*Additional Info:*\n"+contact.AdditionalInfo), nil, nil))
	}

	return slackapi.WebhookMessage{Blocks: &slackapi.Blocks{BlockSet: blocks}}
}

// FormatBudgetRange turns a form token such as "from-5000-to-10000" into display text.
//
// Dashes become spaces and every "from", "to" and "above" gains a trailing space.
func FormatBudgetRange(raw string) string {
	return budgetWordReplacer.Replace(strings.ReplaceAll(raw, "-", " "))
}

func markdown(text string) *slackapi.TextBlockObject {
	return slackapi.NewTextBlockObject(slackapi.MarkdownType, text, false, false)
}

func orNA(value string) string {
	if value == "" {
		return "N/A"
	}

	return value
}

var _ augmenter.ContactNotifier = (*Notifier)(nil)
