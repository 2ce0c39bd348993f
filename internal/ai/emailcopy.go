package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
)

// EmailStep is one generated email in a sequence.
type EmailStep struct {
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	DelayDays int    `json:"delayDays"`
}

// EmailSequence is the full generated outreach sequence.
type EmailSequence struct {
	Initial   EmailStep  `json:"initial"`
	FollowUp1 *EmailStep `json:"followUp1,omitempty"`
	FollowUp2 *EmailStep `json:"followUp2,omitempty"`
}

// Steps flattens the sequence in send order.
func (s EmailSequence) Steps() []EmailStep {
	steps := []EmailStep{s.Initial}
	if s.FollowUp1 != nil {
		steps = append(steps, *s.FollowUp1)
	}
	if s.FollowUp2 != nil {
		steps = append(steps, *s.FollowUp2)
	}
	return steps
}

// DefaultEmailPrompt is the founder-voice copywriting prompt used when a
// company has not configured its own.
const DefaultEmailPrompt = `You write outbound email sequences on behalf of a company founder. You sound like a confident, grounded, product-first founder.

Your communication style is direct, concise, data-backed, and highly personalized. You write like a real founder who has done the work, not like a marketer. Short paragraphs. Clean structure. No fluff.

Focus on real customer impact. Use specific proof points provided in the company context: user counts, time saved, measurable outcomes, social proof links. Do not mention revenue, ARR, fundraising, valuation, or corporate background.

Tone guidelines:
- Confident but calm
- Conversational but professional
- No hype
- No corporate jargon
- No exclamation marks
- No em dashes (use commas or periods)
- No buzzwords like exciting, thrilled, empower, streamline, leverage
- No generic flattery

Formatting rules:
- {{first_name}} is the ONLY personalization variable
- Plain text only
- No HTML
- No bullet points
- Paragraphs must be 1 to 3 sentences max
- Sign off with the sender's first name. Never "[Your Name]".
- Follow-up subject lines must be "" so they thread.

STRUCTURE FOR THE SEQUENCE:

INITIAL EMAIL:
- Start with: Hey {{first_name}},
- First sentence must reference something specific about the persona. It must feel researched and relevant.
- Introduce yourself and the product in 1 to 2 tight sentences.
- Include high-level proof points if available (user counts, time saved, measurable outcomes).
- Link to social proof page if provided.
- End with a soft CTA like "Mind if I send over more details?" or "Open to exploring this?" or "Would love to offer access and chat about it."
- Do NOT include the calendar link in the initial email.
- Length: 120 to 150 words.

FOLLOW-UP 1 (+3 days):
- Different angle or tighter framing of value
- Keep it short, 50 to 80 words
- Reinforce one key outcome
- End with "Open to a quick chat?" or similar
- No calendar link yet.

FOLLOW-UP 2 (+4 days):
- Brief and final, 50 to 80 words
- Respectful tone
- Include the calendar link if provided.

NEVER DO THESE:
- "I hope this finds you well", "I'm reaching out from", "I represent"
- Em dashes, exclamation marks
- "exciting", "thrilled", "empower", "streamline", "leverage"
- "{{company_name}}" variable (doesn't exist)
- Generic flattery that doesn't match the persona
- Generic praise that does not match their role
- Long run-on paragraphs
- Over-sharing internal metrics
- Using more than one personalization variable

Your job is to write founder-led outbound that feels researched, credible, grounded, and aligned with real customer outcomes.`

// EmailCopyParams holds the inputs for sequence generation.
type EmailCopyParams struct {
	CompanyName        string
	CompanyDescription string
	ValueProposition   string
	TargetPersona      string
	CallToAction       string
	SequenceLength     int     // 1-3 emails, default 2
	CustomPrompt       *string // overrides DefaultEmailPrompt when set
}

// GenerateEmailSequence writes a full cold-email sequence for a persona.
func GenerateEmailSequence(ctx context.Context, client anthropic.Client, cfg config.AnthropicConfig, params EmailCopyParams) (*EmailSequence, error) {
	cta := params.CallToAction
	if cta == "" {
		cta = "a quick chat"
	}

	length := params.SequenceLength
	if length < 1 {
		length = 2
	}
	if length > 3 {
		length = 3
	}
	numFollowUps := length - 1

	basePrompt := DefaultEmailPrompt
	if params.CustomPrompt != nil && *params.CustomPrompt != "" {
		basePrompt = *params.CustomPrompt
	}

	calendarNote := "\nIMPORTANT: The LAST follow-up email in the sequence MUST include the calendar link. If there's only 1 follow-up, that follow-up must have the calendar link."

	var jsonInstruction string
	switch numFollowUps {
	case 0:
		jsonInstruction = "\n\nReturn ONLY the initial email as JSON:\n" +
			`{ "initial": { "subject": "...", "body": "..." } }`
	case 1:
		jsonInstruction = calendarNote + "\n\nReturn JSON with initial + 1 follow-up (include calendar link in followUp1):\n" +
			`{ "initial": { "subject": "...", "body": "..." }, "followUp1": { "subject": "", "body": "...", "delayDays": 3 } }`
	default:
		jsonInstruction = calendarNote + "\n\nReturn JSON with initial + 2 follow-ups (include calendar link in followUp2):\n" +
			`{ "initial": { "subject": "...", "body": "..." }, "followUp1": { "subject": "", "body": "...", "delayDays": 3 }, "followUp2": { "subject": "", "body": "...", "delayDays": 4 } }`
	}

	userPrompt := fmt.Sprintf(`Write a %d-email outreach sequence.

Sender: %s
Product: %s
Value: %s
Persona: %s
CTA: %s

Remember: the opener must be specifically relevant to this persona type. Not generic.`,
		numFollowUps+1,
		params.CompanyName, params.CompanyDescription, params.ValueProposition,
		params.TargetPersona, cta)

	temp := 0.7
	resp, err := client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       cfg.SonnetModel,
		MaxTokens:   2048,
		System:      []anthropic.SystemBlock{{Text: basePrompt + jsonInstruction}},
		Messages:    []anthropic.Message{{Role: "user", Content: userPrompt}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "ai: generate email sequence")
	}
	resp.Usage.LogCost(cfg.SonnetModel, "email copy")

	var seq EmailSequence
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &seq); err != nil {
		return nil, eris.Wrap(err, "ai: parse email sequence")
	}
	if seq.Initial.Subject == "" || seq.Initial.Body == "" {
		return nil, eris.New("ai: email sequence missing initial email")
	}

	// Follow-up subjects stay empty so the provider threads them under
	// the opener.
	if seq.FollowUp1 != nil {
		seq.FollowUp1.Subject = ""
		if seq.FollowUp1.DelayDays <= 0 {
			seq.FollowUp1.DelayDays = 3
		}
	}
	if seq.FollowUp2 != nil {
		seq.FollowUp2.Subject = ""
		if seq.FollowUp2.DelayDays <= 0 {
			seq.FollowUp2.DelayDays = 4
		}
	}

	return &seq, nil
}
