package monitoralert

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"pulsewatch/pkg/monitor"
)

// SlackPort is a concrete Port backend delivering alerts as Slack
// incoming-webhook messages. Email/SMS backends are out of scope (spec.md
// §1: "alert delivery ... backends" are an external collaborator); this
// is the one backend wired end to end so the alert port has a real
// implementation to exercise rather than only a test fake.
type SlackPort struct {
	log *zap.Logger
	// post is the seam tests substitute; defaults to slack.PostWebhookContext.
	post func(ctx context.Context, url string, msg *slack.WebhookMessage) error
}

func NewSlackPort(log *zap.Logger) *SlackPort {
	return &SlackPort{
		log:  log,
		post: slack.PostWebhookContext,
	}
}

func (p *SlackPort) TriggerAlert(ctx context.Context, target monitor.Target, prev, next monitor.Status, counters Counters, recipients []Recipient) error {
	webhook := firstWebhook(recipients)
	if webhook == "" {
		return fmt.Errorf("slack alert target=%s: no webhook recipient configured", target.ID)
	}

	color := "danger"
	verb := "went DOWN"
	if next == monitor.StatusOnline {
		color = "good"
		verb = "recovered"
	}

	msg := &slack.WebhookMessage{
		Text: fmt.Sprintf("pulsewatch: %s %s", target.DisplayName, verb),
		Attachments: []slack.Attachment{
			{
				Color: color,
				Fields: []slack.AttachmentField{
					{Title: "Target", Value: target.URL, Short: false},
					{Title: "Previous status", Value: string(prev), Short: true},
					{Title: "New status", Value: string(next), Short: true},
					{Title: "Consecutive failures", Value: fmt.Sprintf("%d", counters.ConsecutiveFailures), Short: true},
				},
			},
		},
	}

	if err := p.post(ctx, webhook, msg); err != nil {
		p.log.Warn("slack alert delivery failed", zap.String("target_id", target.ID), zap.Error(err))
		return err
	}
	return nil
}

func (p *SlackPort) TriggerSslAlert(ctx context.Context, target monitor.Target, cert *monitor.SSLCertSnapshot, recipients []Recipient) error {
	webhook := firstWebhook(recipients)
	if webhook == "" {
		return fmt.Errorf("slack ssl alert target=%s: no webhook recipient configured", target.ID)
	}

	fingerprint := ""
	notAfter := ""
	if cert != nil {
		fingerprint = cert.FingerprintSHA256
		notAfter = cert.NotAfter.Format("2006-01-02")
	}

	msg := &slack.WebhookMessage{
		Text: fmt.Sprintf("pulsewatch: %s TLS certificate changed", target.DisplayName),
		Attachments: []slack.Attachment{
			{
				Color: "warning",
				Fields: []slack.AttachmentField{
					{Title: "Target", Value: target.URL, Short: false},
					{Title: "Fingerprint", Value: fingerprint, Short: true},
					{Title: "Not after", Value: notAfter, Short: true},
				},
			},
		},
	}

	if err := p.post(ctx, webhook, msg); err != nil {
		p.log.Warn("slack ssl alert delivery failed", zap.String("target_id", target.ID), zap.Error(err))
		return err
	}
	return nil
}

// firstWebhook returns the first Slack-capable recipient's webhook URL.
// Settings.Recipients may also carry Email/SMS entries destined for
// backends this repo does not implement (spec.md §1); SlackPort simply
// ignores those.
func firstWebhook(recipients []Recipient) string {
	for _, r := range recipients {
		if r.SlackWebhookURL != "" {
			return r.SlackWebhookURL
		}
	}
	return ""
}
