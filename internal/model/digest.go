package model

import "time"

// DailyDigest is the end-of-day summary sent to a company's digest
// recipients and retained for audit.
type DailyDigest struct {
	ID            string    `json:"id"`
	CompanyID     string    `json:"company_id"`
	DigestDate    string    `json:"digest_date"`
	LeadsFound    int       `json:"leads_found"`
	LeadsEnriched int       `json:"leads_enriched"`
	LeadsRouted   int       `json:"leads_routed"`
	LeadsSkipped  int       `json:"leads_skipped"`
	PendingReview int       `json:"pending_review"`
	EmailsSent    int       `json:"emails_sent"`
	Replies       int       `json:"replies"`
	HTML          string    `json:"html,omitempty"`
	SentTo        []string  `json:"sent_to,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
