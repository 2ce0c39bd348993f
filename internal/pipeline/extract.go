package pipeline

import (
	"strconv"
	"strings"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/exa"
)

// detectPlatform maps a lead URL to a known platform name.
func detectPlatform(rawURL string) *string {
	u := strings.ToLower(rawURL)
	var platform string
	switch {
	case strings.Contains(u, "tiktok.com"):
		platform = model.PlatformTikTok
	case strings.Contains(u, "instagram.com"):
		platform = model.PlatformInstagram
	case strings.Contains(u, "youtube.com"), strings.Contains(u, "youtu.be"):
		platform = model.PlatformYouTube
	case strings.Contains(u, "twitter.com"), strings.Contains(u, "x.com"):
		platform = model.PlatformTwitter
	case strings.Contains(u, "linkedin.com"):
		platform = model.PlatformLinkedIn
	default:
		return nil
	}
	return &platform
}

// leadsFromItems converts webset items into lead rows. Email and
// follower count come from the webset enrichments when present; the
// raw item is retained as discovery data for the enrichment stage.
func leadsFromItems(items []exa.WebsetItem, queryID, runID string) []model.Lead {
	leads := make([]model.Lead, 0, len(items))
	for _, item := range items {
		if item.Properties.URL == "" {
			continue
		}

		lead := model.Lead{
			QueryID:        queryID,
			DiscoveryRunID: &runID,
			URL:            item.Properties.URL,
			Platform:       detectPlatform(item.Properties.URL),
			Email:          enrichmentEmail(item.Enrichments),
			FollowerCount:  enrichmentNumber(item.Enrichments),
		}
		if item.Properties.Person != nil && item.Properties.Person.Name != "" {
			name := item.Properties.Person.Name
			lead.Name = &name
		}

		data := map[string]any{
			"url": item.Properties.URL,
		}
		if item.Properties.Description != "" {
			data["description"] = item.Properties.Description
		}
		if item.Properties.Person != nil {
			data["person"] = map[string]any{
				"name":     item.Properties.Person.Name,
				"location": item.Properties.Person.Location,
				"position": item.Properties.Person.Position,
			}
		}
		if item.Enrichments != nil {
			data["enrichments"] = item.Enrichments
		}
		lead.DiscoveryData = data

		leads = append(leads, lead)
	}
	return leads
}

// enrichmentEmail finds an email-format enrichment result. The API has
// shipped enrichments as an array of objects, a single object, and a
// bare string, so all three are handled.
func enrichmentEmail(enrichments any) *string {
	for _, v := range enrichmentValues(enrichments, "email") {
		if strings.Contains(v, "@") {
			email := strings.TrimSpace(v)
			return &email
		}
	}
	return nil
}

// enrichmentNumber finds a number-format enrichment result, used for
// follower counts.
func enrichmentNumber(enrichments any) *int {
	for _, v := range enrichmentValues(enrichments, "number") {
		cleaned := strings.ReplaceAll(strings.TrimSpace(v), ",", "")
		if n, err := strconv.Atoi(cleaned); err == nil && n >= 0 {
			return &n
		}
		if f, err := strconv.ParseFloat(cleaned, 64); err == nil && f >= 0 {
			n := int(f)
			return &n
		}
	}
	return nil
}

// enrichmentValues collects the string results of enrichments matching
// the given format.
func enrichmentValues(enrichments any, format string) []string {
	var out []string
	switch e := enrichments.(type) {
	case nil:
		return nil
	case string:
		return []string{e}
	case []any:
		for _, entry := range e {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, objectValues(m, format)...)
		}
	case map[string]any:
		out = append(out, objectValues(e, format)...)
	}
	return out
}

func objectValues(m map[string]any, format string) []string {
	if f, ok := m["format"].(string); ok && f != format {
		return nil
	}
	switch result := m["result"].(type) {
	case string:
		return []string{result}
	case []any:
		var out []string
		for _, r := range result {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
