package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/resend"
)

// digestWindow is how far back the digest counts activity.
const digestWindow = 24 * time.Hour

var digestTemplate = template.Must(template.New("digest").Parse(`<h2>{{.CompanyName}} outreach digest for {{.Date}}</h2>
<table cellpadding="6" style="border-collapse:collapse">
  <tr><td>New leads found</td><td><b>{{.LeadsFound}}</b></td></tr>
  <tr><td>Leads enriched</td><td><b>{{.LeadsEnriched}}</b></td></tr>
  <tr><td>Leads added to campaigns</td><td><b>{{.LeadsRouted}}</b></td></tr>
  <tr><td>Leads skipped</td><td><b>{{.LeadsSkipped}}</b></td></tr>
  <tr><td>Awaiting your review</td><td><b>{{.PendingReview}}</b></td></tr>
  <tr><td>Emails sent (all time)</td><td><b>{{.EmailsSent}}</b></td></tr>
  <tr><td>Replies (all time)</td><td><b>{{.Replies}}</b></td></tr>
</table>
{{if gt .PendingReview 0}}<p>{{.PendingReview}} lead(s) have a campaign suggestion waiting for confirmation.</p>{{end}}`))

type digestView struct {
	CompanyName   string
	Date          string
	LeadsFound    int
	LeadsEnriched int
	LeadsRouted   int
	LeadsSkipped  int
	PendingReview int
	EmailsSent    int
	Replies       int
}

// SendDigests emails each company's daily activity summary to its
// digest recipients and records the digest. Companies without
// recipients are skipped.
func (p *Pipeline) SendDigests(ctx context.Context) error {
	// Refresh campaign stats first so the all-time totals are current.
	// Stale counters are acceptable if the analytics endpoint is down.
	if err := p.SyncAnalytics(ctx); err != nil {
		zap.L().Warn("analytics refresh before digest failed", zap.Error(err))
	}

	companies, err := p.store.ListCompanies(ctx)
	if err != nil {
		return eris.Wrap(err, "pipeline: list companies")
	}

	for _, company := range companies {
		if len(company.DigestRecipients) == 0 {
			continue
		}
		if err := p.sendDigest(ctx, company); err != nil {
			zap.L().Error("digest failed",
				zap.String("company", company.Name), zap.Error(err))
		}
	}
	return nil
}

func (p *Pipeline) sendDigest(ctx context.Context, company model.Company) error {
	now := time.Now().UTC()
	counts, err := p.store.DigestCounts(ctx, company.ID, now.Add(-digestWindow))
	if err != nil {
		return eris.Wrap(err, "pipeline: digest counts")
	}

	// All-time send and reply totals come from the synced campaign
	// stats rather than the digest window.
	campaigns, err := p.store.ListLinkedCampaigns(ctx)
	if err != nil {
		return eris.Wrap(err, "pipeline: list linked campaigns")
	}
	var emailsSent, replies int
	for _, c := range campaigns {
		if c.CompanyID != company.ID {
			continue
		}
		emailsSent += c.SentCount
		replies += c.ReplyCount
	}

	date := now.Format("2006-01-02")
	view := digestView{
		CompanyName:   company.Name,
		Date:          date,
		LeadsFound:    counts.LeadsFound,
		LeadsEnriched: counts.LeadsEnriched,
		LeadsRouted:   counts.LeadsRouted,
		LeadsSkipped:  counts.LeadsSkipped,
		PendingReview: counts.PendingReview,
		EmailsSent:    emailsSent,
		Replies:       replies,
	}
	var body bytes.Buffer
	if err := digestTemplate.Execute(&body, view); err != nil {
		return eris.Wrap(err, "pipeline: render digest")
	}

	_, err = p.resend.Send(ctx, resend.SendRequest{
		From:    p.cfg.Resend.FromEmail,
		To:      company.DigestRecipients,
		Subject: fmt.Sprintf("%s outreach digest - %s", company.Name, date),
		HTML:    body.String(),
	})
	if err != nil {
		return eris.Wrap(err, "pipeline: send digest")
	}

	_, err = p.store.SaveDigest(ctx, model.DailyDigest{
		CompanyID:     company.ID,
		DigestDate:    date,
		LeadsFound:    counts.LeadsFound,
		LeadsEnriched: counts.LeadsEnriched,
		LeadsRouted:   counts.LeadsRouted,
		LeadsSkipped:  counts.LeadsSkipped,
		PendingReview: counts.PendingReview,
		EmailsSent:    emailsSent,
		Replies:       replies,
		HTML:          body.String(),
		SentTo:        company.DigestRecipients,
	})
	if err != nil {
		return eris.Wrap(err, "pipeline: save digest")
	}

	zap.L().Info("digest sent",
		zap.String("company", company.Name),
		zap.Strings("recipients", company.DigestRecipients),
		zap.Int("pending_review", counts.PendingReview))
	return nil
}
