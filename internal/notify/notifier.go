// internal/notify/notifier.go
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"jobmatch-service/internal/common/config"
	"jobmatch-service/internal/common/logger"
	"jobmatch-service/internal/common/metrics"
	"jobmatch-service/internal/models"
)

// MatchProvider produces the ranked jobs a digest is built from.
type MatchProvider interface {
	MatchByText(ctx context.Context, text string, filters models.SearchFilters, maxResults int) (*models.MatchResult, error)
}

// EmailSender delivers one rendered digest. Satisfied by the SES client.
type EmailSender interface {
	SendHTML(ctx context.Context, from, to, subject, bodyHTML string) (string, error)
}

// SubscriptionReader is the subscription store surface the sweep needs.
type SubscriptionReader interface {
	ListActiveByFrequency(ctx context.Context, frequency models.DigestFrequency) ([]*models.Subscription, error)
	GetByEmail(ctx context.Context, email string) (*models.Subscription, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
}

// Notifier runs the digest email sweeps. One subscriber failing never
// stops the sweep; failures are logged and counted.
type Notifier struct {
	matcher   MatchProvider
	sender    EmailSender
	subs      SubscriptionReader
	fromEmail string
	topJobs   int
	enabled   bool
	log       logger.Logger
}

func NewNotifier(matcher MatchProvider, sender EmailSender, subs SubscriptionReader, cfg *config.NotificationConfig, log logger.Logger) *Notifier {
	return &Notifier{
		matcher:   matcher,
		sender:    sender,
		subs:      subs,
		fromEmail: cfg.Email.FromEmail,
		topJobs:   cfg.Email.TopJobs,
		enabled:   cfg.Email.Enabled,
		log:       log,
	}
}

// RunDigest sends a digest to every active subscriber of one cadence.
func (n *Notifier) RunDigest(ctx context.Context, frequency models.DigestFrequency) error {
	if !n.enabled {
		n.log.Info("Email digests disabled, skipping sweep", map[string]interface{}{
			"frequency": string(frequency),
		})
		return nil
	}

	subs, err := n.subs.ListActiveByFrequency(ctx, frequency)
	if err != nil {
		return err
	}

	var sent, skipped, failed int
	for _, sub := range subs {
		switch err := n.deliver(ctx, sub); {
		case err == nil:
			sent++
		case err == errNothingToSend:
			skipped++
		default:
			failed++
			metrics.DigestEmailsTotal.WithLabelValues("failed").Inc()
			n.log.WithError(err).Error("Digest delivery failed", map[string]interface{}{
				"email":     sub.Email,
				"frequency": string(frequency),
			})
		}
	}

	n.log.Info("Digest sweep completed", map[string]interface{}{
		"frequency":   string(frequency),
		"subscribers": len(subs),
		"sent":        sent,
		"skipped":     skipped,
		"failed":      failed,
	})
	return nil
}

// SendTo delivers a one-off digest to a single subscriber, regardless of
// cadence. Used by the manual trigger.
func (n *Notifier) SendTo(ctx context.Context, email string) error {
	sub, err := n.subs.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if sub == nil {
		return fmt.Errorf("no subscription for %s", email)
	}
	if err := n.deliver(ctx, sub); err != nil && err != errNothingToSend {
		return err
	}
	return nil
}

var errNothingToSend = fmt.Errorf("nothing to send")

func (n *Notifier) deliver(ctx context.Context, sub *models.Subscription) error {
	if sub.QueryText == "" {
		n.log.Warn("Subscription has no query text, skipping", map[string]interface{}{
			"email": sub.Email,
		})
		return errNothingToSend
	}

	result, err := n.matcher.MatchByText(ctx, sub.QueryText, sub.Filters, n.topJobs)
	if err != nil {
		return err
	}
	if len(result.Jobs) == 0 {
		n.log.Info("No matches for subscriber, skipping digest", map[string]interface{}{
			"email": sub.Email,
		})
		return errNothingToSend
	}

	jobs := result.Jobs
	if len(jobs) > n.topJobs {
		jobs = jobs[:n.topJobs]
	}

	body, err := renderDigest(jobs)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("%d Personalized Job Matches for You", len(jobs))
	if _, err := n.sender.SendHTML(ctx, n.fromEmail, sub.Email, subject, body); err != nil {
		return err
	}
	metrics.DigestEmailsTotal.WithLabelValues("sent").Inc()

	if err := n.subs.MarkSent(ctx, sub.ID, time.Now().UTC()); err != nil {
		n.log.WithError(err).Warn("Failed to record digest delivery", map[string]interface{}{
			"email": sub.Email,
		})
	}
	return nil
}

var digestTemplate = template.Must(template.New("digest").Funcs(template.FuncMap{
	"scorePercent": func(score float64) float64 { return score * 100 },
}).Parse(`<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <h2 style="color: #2c3e50;">Your Personalized Job Matches</h2>
  <p>Based on your profile and preferences, here are the top {{len .Jobs}} opportunities for you:</p>
  <ul style="list-style-type: none; padding: 0;">
  {{range .Jobs}}
    <li style="margin-bottom: 20px; padding: 15px; border: 1px solid #e2e8f0; border-radius: 12px;">
      <h3 style="margin: 0 0 10px 0; color: #1a202c;">{{.Job.Title}}</h3>
      <p style="margin: 5px 0; color: #4a5568;"><strong>Company:</strong> {{if .Job.CompanyDisplayName}}{{.Job.CompanyDisplayName}}{{else}}Unknown{{end}}</p>
      <p style="margin: 5px 0; color: #4a5568;"><strong>Location:</strong> {{if .Job.Location}}{{.Job.Location}}{{else}}Not specified{{end}}</p>
      <p style="margin: 5px 0; color: #4a5568;"><strong>Match score:</strong> {{printf "%.0f%%" (scorePercent .Score)}}</p>
      {{if .Job.RedirectURL}}<a href="{{.Job.RedirectURL}}" style="display: inline-block; margin-top: 10px; padding: 10px 20px; background-color: #667eea; color: white; text-decoration: none; border-radius: 8px;">View Job Details</a>{{end}}
    </li>
  {{end}}
  </ul>
  <hr style="margin: 30px 0; border: none; border-top: 1px solid #e0e0e0;">
  <p style="font-size: 12px; color: #95a5a6;">You're receiving this because you subscribed to job alerts.</p>
</body>
</html>`))

func renderDigest(jobs []models.ScoredJob) (string, error) {
	var buf bytes.Buffer
	err := digestTemplate.Execute(&buf, struct {
		Jobs []models.ScoredJob
	}{Jobs: jobs})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
