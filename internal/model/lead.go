package model

import "time"

// EnrichmentStatus tracks a lead through the enrichment state machine.
type EnrichmentStatus string

const (
	EnrichmentStatusPending   EnrichmentStatus = "pending"
	EnrichmentStatusEnriching EnrichmentStatus = "enriching"
	EnrichmentStatusEnriched  EnrichmentStatus = "enriched"
	EnrichmentStatusFailed    EnrichmentStatus = "failed"
)

// CampaignStatus tracks a lead through the routing state machine.
// Routed and skipped are terminal; pending covers both "not yet
// suggested" and "suggested, awaiting confirmation".
type CampaignStatus string

const (
	CampaignStatusPending CampaignStatus = "pending"
	CampaignStatusRouted  CampaignStatus = "routed"
	CampaignStatusSkipped CampaignStatus = "skipped"
)

// Platform names recognized from lead source URLs.
const (
	PlatformTikTok    = "tiktok"
	PlatformInstagram = "instagram"
	PlatformYouTube   = "youtube"
	PlatformTwitter   = "twitter"
	PlatformLinkedIn  = "linkedin"
)

// Lead is a discovered candidate contact. URL is the natural dedup key;
// a second discovery of the same URL or email is suppressed.
type Lead struct {
	ID             string         `json:"id"`
	QueryID        string         `json:"query_id"`
	DiscoveryRunID *string        `json:"discovery_run_id,omitempty"`
	Name           *string        `json:"name,omitempty"`
	Email          *string        `json:"email,omitempty"`
	URL            string         `json:"url"`
	Platform       *string        `json:"platform,omitempty"`
	FollowerCount  *int           `json:"follower_count,omitempty"`
	DiscoveryData  map[string]any `json:"discovery_data,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`

	// Enrichment fields, nil until the enrichment worker runs.
	Category         *string           `json:"category,omitempty"`
	FullName         *string           `json:"full_name,omitempty"`
	Title            *string           `json:"title,omitempty"`
	Bio              *string           `json:"bio,omitempty"`
	Expertise        []string          `json:"expertise,omitempty"`
	SocialLinks      map[string]string `json:"social_links,omitempty"`
	TotalAudience    *int              `json:"total_audience,omitempty"`
	ContentTypes     []string          `json:"content_types,omitempty"`
	FitScore         *int              `json:"fit_score,omitempty"`
	FitReason        *string           `json:"fit_reason,omitempty"`
	EnrichmentStatus EnrichmentStatus  `json:"enrichment_status"`
	EnrichingAt      *time.Time        `json:"enriching_at,omitempty"`
	EnrichedAt       *time.Time        `json:"enriched_at,omitempty"`

	// Routing fields.
	SuggestedCampaignID     *string        `json:"suggested_campaign_id,omitempty"`
	SuggestedCampaignReason *string        `json:"suggested_campaign_reason,omitempty"`
	CampaignID              *string        `json:"campaign_id,omitempty"`
	CampaignStatus          CampaignStatus `json:"campaign_status"`
	CampaignRoutedAt        *time.Time     `json:"campaign_routed_at,omitempty"`
	SkipReason              *string        `json:"skip_reason,omitempty"`
}

// HasEmail reports whether the lead has a usable, non-empty email.
func (l Lead) HasEmail() bool {
	return l.Email != nil && *l.Email != ""
}

// FirstName returns the first token of the enriched full name, or the
// discovery-time name, for outbound personalization.
func (l Lead) FirstName() string {
	name := ""
	if l.FullName != nil {
		name = *l.FullName
	} else if l.Name != nil {
		name = *l.Name
	}
	for i, r := range name {
		if r == ' ' {
			return name[:i]
		}
	}
	return name
}

// Persona holds the structured output of the persona-derivation AI
// call. Every field has a safe zero default so a partially malformed
// response degrades instead of aborting the enrichment.
type Persona struct {
	Category      string            `json:"category"`
	FullName      string            `json:"full_name"`
	Title         string            `json:"title"`
	Bio           string            `json:"bio"`
	Expertise     []string          `json:"expertise"`
	SocialLinks   map[string]string `json:"social_links"`
	TotalAudience int               `json:"total_audience"`
	ContentTypes  []string          `json:"content_types"`
	FitScore      int               `json:"fit_score"`
	FitReason     string            `json:"fit_reason"`
	Email         *string           `json:"email,omitempty"`
}
