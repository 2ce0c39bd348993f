package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/outreach-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sqlDB}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id                      TEXT PRIMARY KEY,
	name                    TEXT NOT NULL,
	website                 TEXT NOT NULL DEFAULT '',
	description             TEXT NOT NULL DEFAULT '',
	target_audience         TEXT NOT NULL DEFAULT '',
	agent_notes             TEXT NOT NULL DEFAULT '',
	sending_emails          TEXT,
	default_sequence_length INTEGER NOT NULL DEFAULT 2,
	email_prompt            TEXT,
	autopilot_enabled       INTEGER NOT NULL DEFAULT 0,
	autopilot_min_fit_score INTEGER NOT NULL DEFAULT 0,
	digest_recipients       TEXT,
	created_at              DATETIME NOT NULL,
	updated_at              DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS instructions (
	id              TEXT PRIMARY KEY,
	company_id      TEXT NOT NULL REFERENCES companies(id),
	content         TEXT NOT NULL,
	query_generated INTEGER NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_instructions_company ON instructions(company_id);

CREATE TABLE IF NOT EXISTS queries (
	id                    TEXT PRIMARY KEY,
	company_id            TEXT NOT NULL REFERENCES companies(id),
	query                 TEXT NOT NULL,
	criteria              TEXT,
	rationale             TEXT NOT NULL DEFAULT '',
	source_instruction_id TEXT,
	is_active             INTEGER NOT NULL DEFAULT 1,
	status                TEXT NOT NULL DEFAULT 'pending',
	last_run_at           DATETIME,
	created_at            DATETIME NOT NULL,
	updated_at            DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_queries_company ON queries(company_id);

CREATE TABLE IF NOT EXISTS discovery_runs (
	id           TEXT PRIMARY KEY,
	query_id     TEXT NOT NULL REFERENCES queries(id),
	webset_id    TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	items_found  INTEGER NOT NULL DEFAULT 0,
	started_at   DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_discovery_runs_query ON discovery_runs(query_id);

CREATE TABLE IF NOT EXISTS leads (
	id                        TEXT PRIMARY KEY,
	query_id                  TEXT NOT NULL REFERENCES queries(id),
	discovery_run_id          TEXT,
	name                      TEXT,
	email                     TEXT,
	url                       TEXT NOT NULL,
	platform                  TEXT,
	follower_count            INTEGER,
	discovery_data            TEXT,
	created_at                DATETIME NOT NULL,
	category                  TEXT,
	full_name                 TEXT,
	title                     TEXT,
	bio                       TEXT,
	expertise                 TEXT,
	social_links              TEXT,
	total_audience            INTEGER,
	content_types             TEXT,
	fit_score                 INTEGER,
	fit_reason                TEXT,
	enrichment_status         TEXT NOT NULL DEFAULT 'pending',
	enriching_at              DATETIME,
	enriched_at               DATETIME,
	suggested_campaign_id     TEXT,
	suggested_campaign_reason TEXT,
	campaign_id               TEXT,
	campaign_status           TEXT NOT NULL DEFAULT 'pending',
	campaign_routed_at        DATETIME,
	skip_reason               TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_url ON leads(url);
CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_email ON leads(email) WHERE email IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_leads_enrichment_status ON leads(enrichment_status);
CREATE INDEX IF NOT EXISTS idx_leads_campaign_status ON leads(campaign_status);
CREATE INDEX IF NOT EXISTS idx_leads_query ON leads(query_id);

CREATE TABLE IF NOT EXISTS campaigns (
	id                    TEXT PRIMARY KEY,
	company_id            TEXT NOT NULL REFERENCES companies(id),
	name                  TEXT NOT NULL,
	description           TEXT NOT NULL DEFAULT '',
	instantly_campaign_id TEXT,
	target_persona        TEXT NOT NULL DEFAULT '',
	status                TEXT NOT NULL DEFAULT 'draft',
	is_accepting_leads    INTEGER NOT NULL DEFAULT 1,
	max_leads             INTEGER NOT NULL DEFAULT 500,
	lead_count            INTEGER NOT NULL DEFAULT 0,
	sent_count            INTEGER NOT NULL DEFAULT 0,
	open_count            INTEGER NOT NULL DEFAULT 0,
	reply_count           INTEGER NOT NULL DEFAULT 0,
	last_synced_at        DATETIME,
	created_at            DATETIME NOT NULL,
	updated_at            DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_campaigns_company ON campaigns(company_id);

CREATE TABLE IF NOT EXISTS campaign_emails (
	id          TEXT PRIMARY KEY,
	campaign_id TEXT NOT NULL REFERENCES campaigns(id),
	step        INTEGER NOT NULL,
	subject     TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL,
	delay_days  INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL,
	UNIQUE (campaign_id, step)
);

CREATE TABLE IF NOT EXISTS daily_digests (
	id             TEXT PRIMARY KEY,
	company_id     TEXT NOT NULL REFERENCES companies(id),
	digest_date    TEXT NOT NULL,
	leads_found    INTEGER NOT NULL DEFAULT 0,
	leads_enriched INTEGER NOT NULL DEFAULT 0,
	leads_routed   INTEGER NOT NULL DEFAULT 0,
	leads_skipped  INTEGER NOT NULL DEFAULT 0,
	pending_review INTEGER NOT NULL DEFAULT 0,
	emails_sent    INTEGER NOT NULL DEFAULT 0,
	replies        INTEGER NOT NULL DEFAULT 0,
	html           TEXT NOT NULL DEFAULT '',
	sent_to        TEXT,
	created_at     DATETIME NOT NULL,
	UNIQUE (company_id, digest_date)
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Companies

func (s *SQLiteStore) CreateCompany(ctx context.Context, company model.Company) (*model.Company, error) {
	if company.ID == "" {
		company.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	company.CreatedAt = now
	company.UpdatedAt = now

	sendingJSON, err := json.Marshal(company.SendingEmails)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal sending emails")
	}
	digestJSON, err := json.Marshal(company.DigestRecipients)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal digest recipients")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO companies (id, name, website, description, target_audience, agent_notes, sending_emails,
		 default_sequence_length, email_prompt, autopilot_enabled, autopilot_min_fit_score, digest_recipients, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		company.ID, company.Name, company.Website, company.Description, company.TargetAudience,
		company.AgentNotes, string(sendingJSON), company.DefaultSequenceLength, company.EmailPrompt,
		company.AutopilotEnabled, company.AutopilotMinFitScore, string(digestJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert company")
	}
	return &company, nil
}

func (s *SQLiteStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, website, description, target_audience, agent_notes, sending_emails,
		 default_sequence_length, email_prompt, autopilot_enabled, autopilot_min_fit_score, digest_recipients, created_at, updated_at
		 FROM companies WHERE id = ?`,
		id,
	)
	c, err := scanLiteCompany(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get company %s", id)
	}
	return c, nil
}

func (s *SQLiteStore) ListCompanies(ctx context.Context) ([]model.Company, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, website, description, target_audience, agent_notes, sending_emails,
		 default_sequence_length, email_prompt, autopilot_enabled, autopilot_min_fit_score, digest_recipients, created_at, updated_at
		 FROM companies ORDER BY created_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list companies")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		c, err := scanLiteCompany(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		companies = append(companies, *c)
	}
	return companies, eris.Wrap(rows.Err(), "sqlite: list companies iterate")
}

func (s *SQLiteStore) UpdateCompany(ctx context.Context, company model.Company) error {
	sendingJSON, err := json.Marshal(company.SendingEmails)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal sending emails")
	}
	digestJSON, err := json.Marshal(company.DigestRecipients)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal digest recipients")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE companies SET name = ?, website = ?, description = ?, target_audience = ?, agent_notes = ?,
		 sending_emails = ?, default_sequence_length = ?, email_prompt = ?, autopilot_enabled = ?,
		 autopilot_min_fit_score = ?, digest_recipients = ?, updated_at = ?
		 WHERE id = ?`,
		company.Name, company.Website, company.Description, company.TargetAudience, company.AgentNotes,
		string(sendingJSON), company.DefaultSequenceLength, company.EmailPrompt, company.AutopilotEnabled,
		company.AutopilotMinFitScore, string(digestJSON), time.Now().UTC(), company.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update company %s", company.ID)
	}
	return checkRowsAffected(res, "company", company.ID)
}

// Instructions

func (s *SQLiteStore) CreateInstruction(ctx context.Context, companyID, content string) (*model.Instruction, error) {
	inst := model.Instruction{
		ID:        uuid.New().String(),
		CompanyID: companyID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO instructions (id, company_id, content, query_generated, created_at) VALUES (?, ?, ?, 0, ?)`,
		inst.ID, inst.CompanyID, inst.Content, inst.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert instruction")
	}
	return &inst, nil
}

func (s *SQLiteStore) ListPendingInstructions(ctx context.Context, companyID string) ([]model.Instruction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_id, content, query_generated, created_at FROM instructions
		 WHERE company_id = ? AND query_generated = 0 ORDER BY created_at`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending instructions")
	}
	defer rows.Close()

	var insts []model.Instruction
	for rows.Next() {
		var i model.Instruction
		if err := rows.Scan(&i.ID, &i.CompanyID, &i.Content, &i.QueryGenerated, &i.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan instruction")
		}
		insts = append(insts, i)
	}
	return insts, eris.Wrap(rows.Err(), "sqlite: list instructions iterate")
}

func (s *SQLiteStore) MarkInstructionConsumed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE instructions SET query_generated = 1 WHERE id = ?`, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark instruction consumed %s", id)
	}
	return checkRowsAffected(res, "instruction", id)
}

// Queries

func (s *SQLiteStore) CreateQuery(ctx context.Context, query model.Query) (*model.Query, error) {
	if query.ID == "" {
		query.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	query.CreatedAt = now
	query.UpdatedAt = now
	query.IsActive = true
	if query.Status == "" {
		query.Status = model.QueryStatusPending
	}

	criteriaJSON, err := json.Marshal(query.Criteria)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal criteria")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO queries (id, company_id, query, criteria, rationale, source_instruction_id, is_active, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		query.ID, query.CompanyID, query.Query, string(criteriaJSON), query.Rationale,
		query.SourceInstructionID, query.IsActive, string(query.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert query")
	}
	return &query, nil
}

func (s *SQLiteStore) GetQuery(ctx context.Context, id string) (*model.Query, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, company_id, query, criteria, rationale, source_instruction_id, is_active, status, last_run_at, created_at, updated_at
		 FROM queries WHERE id = ?`,
		id,
	)
	q, err := scanLiteQuery(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get query %s", id)
	}
	return q, nil
}

func (s *SQLiteStore) ListActiveQueries(ctx context.Context, companyID string) ([]model.Query, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_id, query, criteria, rationale, source_instruction_id, is_active, status, last_run_at, created_at, updated_at
		 FROM queries WHERE company_id = ? AND is_active = 1 ORDER BY created_at`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list active queries")
	}
	defer rows.Close()

	var queries []model.Query
	for rows.Next() {
		q, err := scanLiteQuery(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan query")
		}
		queries = append(queries, *q)
	}
	return queries, eris.Wrap(rows.Err(), "sqlite: list queries iterate")
}

func (s *SQLiteStore) UpdateQueryStatus(ctx context.Context, id string, status model.QueryStatus) error {
	now := time.Now().UTC()
	var res sql.Result
	var err error
	if status == model.QueryStatusRunning {
		res, err = s.db.ExecContext(ctx,
			`UPDATE queries SET status = ?, last_run_at = ?, updated_at = ? WHERE id = ?`,
			string(status), now, now, id,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE queries SET status = ?, updated_at = ? WHERE id = ?`,
			string(status), now, id,
		)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: update query status %s", id)
	}
	return checkRowsAffected(res, "query", id)
}

func (s *SQLiteStore) DeactivateQuery(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE queries SET is_active = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: deactivate query %s", id)
	}
	return checkRowsAffected(res, "query", id)
}

func (s *SQLiteStore) QueryYields(ctx context.Context, companyID string, limit int) ([]model.QueryYield, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT q.query, q.criteria, COUNT(l.id)
		 FROM queries q LEFT JOIN leads l ON l.query_id = q.id
		 WHERE q.company_id = ?
		 GROUP BY q.id, q.query, q.criteria
		 ORDER BY MAX(q.created_at) DESC
		 LIMIT ?`,
		companyID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query yields")
	}
	defer rows.Close()

	var yields []model.QueryYield
	for rows.Next() {
		var y model.QueryYield
		var criteriaJSON sql.NullString
		if err := rows.Scan(&y.Query, &criteriaJSON, &y.LeadsFound); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan query yield")
		}
		if criteriaJSON.Valid && criteriaJSON.String != "" {
			if err := json.Unmarshal([]byte(criteriaJSON.String), &y.Criteria); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal criteria")
			}
		}
		yields = append(yields, y)
	}
	return yields, eris.Wrap(rows.Err(), "sqlite: query yields iterate")
}

// Discovery runs

func (s *SQLiteStore) CreateDiscoveryRun(ctx context.Context, queryID, websetID string) (*model.DiscoveryRun, error) {
	run := model.DiscoveryRun{
		ID:        uuid.New().String(),
		QueryID:   queryID,
		WebsetID:  websetID,
		Status:    model.DiscoveryRunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO discovery_runs (id, query_id, webset_id, status, items_found, started_at) VALUES (?, ?, ?, ?, 0, ?)`,
		run.ID, run.QueryID, run.WebsetID, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert discovery run")
	}
	return &run, nil
}

func (s *SQLiteStore) UpdateDiscoveryRunItems(ctx context.Context, id string, itemsFound int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE discovery_runs SET items_found = ? WHERE id = ?`,
		itemsFound, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update discovery run items %s", id)
	}
	return checkRowsAffected(res, "discovery_run", id)
}

func (s *SQLiteStore) CompleteDiscoveryRun(ctx context.Context, id string, status model.DiscoveryRunStatus, itemsFound int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE discovery_runs SET status = ?, items_found = ?, completed_at = ? WHERE id = ?`,
		string(status), itemsFound, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete discovery run %s", id)
	}
	return checkRowsAffected(res, "discovery_run", id)
}

// Leads

func (s *SQLiteStore) InsertLeads(ctx context.Context, leads []model.Lead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert leads begin")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	inserted := 0
	for _, l := range leads {
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		if l.CreatedAt.IsZero() {
			l.CreatedAt = now
		}
		dataJSON, err := json.Marshal(l.DiscoveryData)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal discovery data")
		}

		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO leads (id, query_id, discovery_run_id, name, email, url, platform,
			 follower_count, discovery_data, enrichment_status, campaign_status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, l.QueryID, l.DiscoveryRunID, l.Name, l.Email, l.URL, l.Platform,
			l.FollowerCount, string(dataJSON), string(model.EnrichmentStatusPending),
			string(model.CampaignStatusPending), l.CreatedAt,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert lead %s", l.URL)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: insert leads commit")
	}
	return inserted, nil
}

func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+liteLeadColumns+` FROM leads WHERE id = ?`, id,
	)
	l, err := scanLiteLead(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead %s", id)
	}
	return l, nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + liteLeadColumnsQualified + ` FROM leads l`
	var args []any

	if filter.CompanyID != "" {
		query += ` JOIN queries q ON q.id = l.query_id`
	}
	query += ` WHERE 1=1`

	if filter.CompanyID != "" {
		query += ` AND q.company_id = ?`
		args = append(args, filter.CompanyID)
	}
	if filter.QueryID != "" {
		query += ` AND l.query_id = ?`
		args = append(args, filter.QueryID)
	}
	if filter.EnrichmentStatus != "" {
		query += ` AND l.enrichment_status = ?`
		args = append(args, string(filter.EnrichmentStatus))
	}
	if filter.CampaignStatus != "" {
		query += ` AND l.campaign_status = ?`
		args = append(args, string(filter.CampaignStatus))
	}
	if filter.HasSuggestion != nil {
		if *filter.HasSuggestion {
			query += ` AND (l.suggested_campaign_id IS NOT NULL OR l.suggested_campaign_reason IS NOT NULL)`
		} else {
			query += ` AND l.suggested_campaign_id IS NULL AND l.suggested_campaign_reason IS NULL`
		}
	}
	query += ` ORDER BY l.created_at`

	if filter.Limit != NoLimit {
		limit := filter.Limit
		if limit <= 0 {
			limit = 100
		}
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLiteLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) MarkLeadEnriching(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET enrichment_status = 'enriching', enriching_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark lead enriching %s", id)
	}
	return checkRowsAffected(res, "lead", id)
}

func (s *SQLiteStore) SaveLeadEnrichment(ctx context.Context, id string, persona model.Persona, email *string) error {
	expertiseJSON, err := json.Marshal(persona.Expertise)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal expertise")
	}
	linksJSON, err := json.Marshal(persona.SocialLinks)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal social links")
	}
	typesJSON, err := json.Marshal(persona.ContentTypes)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal content types")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET category = ?, full_name = ?, title = ?, bio = ?, expertise = ?, social_links = ?,
		 total_audience = ?, content_types = ?, fit_score = ?, fit_reason = ?,
		 email = COALESCE(email, ?), enrichment_status = 'enriched', enriched_at = ?
		 WHERE id = ?`,
		persona.Category, persona.FullName, persona.Title, persona.Bio, string(expertiseJSON), string(linksJSON),
		persona.TotalAudience, string(typesJSON), persona.FitScore, persona.FitReason,
		email, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save enrichment %s", id)
	}
	return checkRowsAffected(res, "lead", id)
}

func (s *SQLiteStore) MarkLeadEnrichmentFailed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET enrichment_status = 'failed' WHERE id = ?`, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark lead failed %s", id)
	}
	return checkRowsAffected(res, "lead", id)
}

func (s *SQLiteStore) SaveRoutingSuggestion(ctx context.Context, id string, campaignID *string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET suggested_campaign_id = ?, suggested_campaign_reason = ? WHERE id = ?`,
		campaignID, reason, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save routing suggestion %s", id)
	}
	return checkRowsAffected(res, "lead", id)
}

func (s *SQLiteStore) MarkLeadRouted(ctx context.Context, id, campaignID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: mark routed begin")
	}
	defer tx.Rollback()

	// Guarded by campaign_status so a second confirmation is a no-op.
	res, err := tx.ExecContext(ctx,
		`UPDATE leads SET campaign_id = ?, campaign_status = 'routed', campaign_routed_at = ?
		 WHERE id = ? AND campaign_status = 'pending'`,
		campaignID, time.Now().UTC(), id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: mark lead routed %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE campaigns SET lead_count = lead_count + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), campaignID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: bump campaign lead count %s", campaignID)
	}

	if err := tx.Commit(); err != nil {
		return false, eris.Wrap(err, "sqlite: mark routed commit")
	}
	return true, nil
}

func (s *SQLiteStore) MarkLeadSkipped(ctx context.Context, id, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET campaign_status = 'skipped', skip_reason = ?, campaign_routed_at = ?
		 WHERE id = ? AND campaign_status = 'pending'`,
		reason, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark lead skipped %s", id)
	}
	return checkRowsAffected(res, "lead", id)
}

// Campaigns

func (s *SQLiteStore) CreateCampaign(ctx context.Context, campaign model.Campaign) (*model.Campaign, error) {
	if campaign.ID == "" {
		campaign.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	campaign.CreatedAt = now
	campaign.UpdatedAt = now
	if campaign.MaxLeads <= 0 {
		campaign.MaxLeads = model.DefaultMaxLeads
	}
	if campaign.Status == "" {
		campaign.Status = model.CampaignStateDraft
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO campaigns (id, company_id, name, description, instantly_campaign_id, target_persona,
		 status, is_accepting_leads, max_leads, lead_count, sent_count, open_count, reply_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0, 0, ?, ?)`,
		campaign.ID, campaign.CompanyID, campaign.Name, campaign.Description, campaign.InstantlyCampaignID,
		campaign.TargetPersona, string(campaign.Status), campaign.IsAcceptingLeads, campaign.MaxLeads, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert campaign")
	}
	return &campaign, nil
}

func (s *SQLiteStore) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+liteCampaignColumns+` FROM campaigns WHERE id = ?`, id,
	)
	c, err := scanLiteCampaign(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get campaign %s", id)
	}
	return c, nil
}

func (s *SQLiteStore) ListActiveCampaigns(ctx context.Context, companyID string) ([]model.Campaign, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+liteCampaignColumns+` FROM campaigns
		 WHERE company_id = ? AND status = 'active' AND is_accepting_leads = 1 ORDER BY created_at`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list active campaigns")
	}
	defer rows.Close()
	return collectLiteCampaigns(rows)
}

func (s *SQLiteStore) ListLinkedCampaigns(ctx context.Context) ([]model.Campaign, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+liteCampaignColumns+` FROM campaigns
		 WHERE instantly_campaign_id IS NOT NULL ORDER BY created_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list linked campaigns")
	}
	defer rows.Close()
	return collectLiteCampaigns(rows)
}

func (s *SQLiteStore) UpdateCampaignStats(ctx context.Context, id string, stats model.CampaignStats) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET lead_count = ?, sent_count = ?, open_count = ?, reply_count = ?,
		 is_accepting_leads = CASE WHEN ? >= max_leads THEN 0 ELSE is_accepting_leads END,
		 last_synced_at = ?, updated_at = ?
		 WHERE id = ?`,
		stats.LeadCount, stats.SentCount, stats.OpenCount, stats.ReplyCount,
		stats.LeadCount, now, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update campaign stats %s", id)
	}
	return checkRowsAffected(res, "campaign", id)
}

func (s *SQLiteStore) SetCampaignAccepting(ctx context.Context, id string, accepting bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET is_accepting_leads = ?, updated_at = ? WHERE id = ?`,
		accepting, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set campaign accepting %s", id)
	}
	return checkRowsAffected(res, "campaign", id)
}

// Campaign emails

func (s *SQLiteStore) SaveCampaignEmails(ctx context.Context, campaignID string, emails []model.CampaignEmail) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: save emails begin")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM campaign_emails WHERE campaign_id = ?`, campaignID); err != nil {
		return eris.Wrapf(err, "sqlite: clear campaign emails %s", campaignID)
	}

	now := time.Now().UTC()
	for _, e := range emails {
		id := e.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO campaign_emails (id, campaign_id, step, subject, body, delay_days, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, campaignID, e.Step, e.Subject, e.Body, e.DelayDays, now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert campaign email step %d", e.Step)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: save emails commit")
}

func (s *SQLiteStore) ListCampaignEmails(ctx context.Context, campaignID string) ([]model.CampaignEmail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, campaign_id, step, subject, body, delay_days, created_at
		 FROM campaign_emails WHERE campaign_id = ? ORDER BY step`,
		campaignID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list campaign emails")
	}
	defer rows.Close()

	var emails []model.CampaignEmail
	for rows.Next() {
		var e model.CampaignEmail
		if err := rows.Scan(&e.ID, &e.CampaignID, &e.Step, &e.Subject, &e.Body, &e.DelayDays, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan campaign email")
		}
		emails = append(emails, e)
	}
	return emails, eris.Wrap(rows.Err(), "sqlite: list emails iterate")
}

// Digests

func (s *SQLiteStore) DigestCounts(ctx context.Context, companyID string, since time.Time) (*DigestCounts, error) {
	var dc DigestCounts
	err := s.db.QueryRowContext(ctx,
		`SELECT
		   COALESCE(SUM(CASE WHEN l.created_at >= ? THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN l.enriched_at >= ? THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN l.campaign_status = 'routed' AND l.campaign_routed_at >= ? THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN l.campaign_status = 'skipped' AND l.campaign_routed_at >= ? THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN l.enrichment_status = 'enriched' AND l.campaign_status = 'pending' THEN 1 ELSE 0 END), 0)
		 FROM leads l JOIN queries q ON q.id = l.query_id
		 WHERE q.company_id = ?`,
		since, since, since, since, companyID,
	).Scan(&dc.LeadsFound, &dc.LeadsEnriched, &dc.LeadsRouted, &dc.LeadsSkipped, &dc.PendingReview)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: digest counts")
	}
	return &dc, nil
}

func (s *SQLiteStore) SaveDigest(ctx context.Context, digest model.DailyDigest) (*model.DailyDigest, error) {
	if digest.ID == "" {
		digest.ID = uuid.New().String()
	}
	digest.CreatedAt = time.Now().UTC()

	sentToJSON, err := json.Marshal(digest.SentTo)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal sent_to")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO daily_digests (id, company_id, digest_date, leads_found, leads_enriched, leads_routed,
		 leads_skipped, pending_review, emails_sent, replies, html, sent_to, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (company_id, digest_date) DO UPDATE SET
		   leads_found = excluded.leads_found, leads_enriched = excluded.leads_enriched,
		   leads_routed = excluded.leads_routed, leads_skipped = excluded.leads_skipped,
		   pending_review = excluded.pending_review, emails_sent = excluded.emails_sent,
		   replies = excluded.replies, html = excluded.html, sent_to = excluded.sent_to`,
		digest.ID, digest.CompanyID, digest.DigestDate, digest.LeadsFound, digest.LeadsEnriched,
		digest.LeadsRouted, digest.LeadsSkipped, digest.PendingReview, digest.EmailsSent,
		digest.Replies, digest.HTML, string(sentToJSON), digest.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: save digest")
	}
	return &digest, nil
}

// scan helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func nullStr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func nullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}

func scanLiteCompany(row scannable) (*model.Company, error) {
	var c model.Company
	var sendingJSON, digestJSON, emailPrompt sql.NullString

	err := row.Scan(&c.ID, &c.Name, &c.Website, &c.Description, &c.TargetAudience, &c.AgentNotes,
		&sendingJSON, &c.DefaultSequenceLength, &emailPrompt, &c.AutopilotEnabled,
		&c.AutopilotMinFitScore, &digestJSON, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("company not found")
	}
	if err != nil {
		return nil, err
	}
	c.EmailPrompt = nullStr(emailPrompt)
	if sendingJSON.Valid && sendingJSON.String != "" {
		if err := json.Unmarshal([]byte(sendingJSON.String), &c.SendingEmails); err != nil {
			return nil, eris.Wrap(err, "unmarshal sending emails")
		}
	}
	if digestJSON.Valid && digestJSON.String != "" {
		if err := json.Unmarshal([]byte(digestJSON.String), &c.DigestRecipients); err != nil {
			return nil, eris.Wrap(err, "unmarshal digest recipients")
		}
	}
	return &c, nil
}

func scanLiteQuery(row scannable) (*model.Query, error) {
	var q model.Query
	var criteriaJSON, sourceID sql.NullString
	var lastRun sql.NullTime

	err := row.Scan(&q.ID, &q.CompanyID, &q.Query, &criteriaJSON, &q.Rationale,
		&sourceID, &q.IsActive, &q.Status, &lastRun, &q.CreatedAt, &q.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("query not found")
	}
	if err != nil {
		return nil, err
	}
	q.SourceInstructionID = nullStr(sourceID)
	q.LastRunAt = nullTime(lastRun)
	if criteriaJSON.Valid && criteriaJSON.String != "" {
		if err := json.Unmarshal([]byte(criteriaJSON.String), &q.Criteria); err != nil {
			return nil, eris.Wrap(err, "unmarshal criteria")
		}
	}
	return &q, nil
}

const liteLeadColumns = `id, query_id, discovery_run_id, name, email, url, platform, follower_count, discovery_data, created_at,
	category, full_name, title, bio, expertise, social_links, total_audience, content_types, fit_score, fit_reason, enrichment_status, enriching_at, enriched_at,
	suggested_campaign_id, suggested_campaign_reason, campaign_id, campaign_status, campaign_routed_at, skip_reason`

const liteLeadColumnsQualified = `l.id, l.query_id, l.discovery_run_id, l.name, l.email, l.url, l.platform, l.follower_count, l.discovery_data, l.created_at,
	l.category, l.full_name, l.title, l.bio, l.expertise, l.social_links, l.total_audience, l.content_types, l.fit_score, l.fit_reason, l.enrichment_status, l.enriching_at, l.enriched_at,
	l.suggested_campaign_id, l.suggested_campaign_reason, l.campaign_id, l.campaign_status, l.campaign_routed_at, l.skip_reason`

const liteCampaignColumns = `id, company_id, name, description, instantly_campaign_id, target_persona, status, is_accepting_leads,
	max_leads, lead_count, sent_count, open_count, reply_count, last_synced_at, created_at, updated_at`

func scanLiteLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var runID, name, email, platform, category, fullName, title, bio sql.NullString
	var fitReason, suggestedID, suggestedReason, campaignID, skipReason sql.NullString
	var dataJSON, expertiseJSON, linksJSON, typesJSON sql.NullString
	var followers, audience, fitScore sql.NullInt64
	var enrichingAt, enrichedAt, routedAt sql.NullTime

	err := row.Scan(
		&l.ID, &l.QueryID, &runID, &name, &email, &l.URL, &platform,
		&followers, &dataJSON, &l.CreatedAt,
		&category, &fullName, &title, &bio, &expertiseJSON, &linksJSON,
		&audience, &typesJSON, &fitScore, &fitReason, &l.EnrichmentStatus, &enrichingAt, &enrichedAt,
		&suggestedID, &suggestedReason, &campaignID, &l.CampaignStatus, &routedAt, &skipReason,
	)
	if err == sql.ErrNoRows {
		return nil, eris.New("lead not found")
	}
	if err != nil {
		return nil, err
	}

	l.DiscoveryRunID = nullStr(runID)
	l.Name = nullStr(name)
	l.Email = nullStr(email)
	l.Platform = nullStr(platform)
	l.FollowerCount = nullInt(followers)
	l.Category = nullStr(category)
	l.FullName = nullStr(fullName)
	l.Title = nullStr(title)
	l.Bio = nullStr(bio)
	l.TotalAudience = nullInt(audience)
	l.FitScore = nullInt(fitScore)
	l.FitReason = nullStr(fitReason)
	l.EnrichingAt = nullTime(enrichingAt)
	l.EnrichedAt = nullTime(enrichedAt)
	l.SuggestedCampaignID = nullStr(suggestedID)
	l.SuggestedCampaignReason = nullStr(suggestedReason)
	l.CampaignID = nullStr(campaignID)
	l.CampaignRoutedAt = nullTime(routedAt)
	l.SkipReason = nullStr(skipReason)

	for _, f := range []struct {
		raw sql.NullString
		dst any
	}{
		{dataJSON, &l.DiscoveryData},
		{expertiseJSON, &l.Expertise},
		{linksJSON, &l.SocialLinks},
		{typesJSON, &l.ContentTypes},
	} {
		if !f.raw.Valid || f.raw.String == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.raw.String), f.dst); err != nil {
			return nil, eris.Wrap(err, "unmarshal lead field")
		}
	}
	return &l, nil
}

func scanLiteCampaign(row scannable) (*model.Campaign, error) {
	var c model.Campaign
	var instantlyID sql.NullString
	var syncedAt sql.NullTime

	err := row.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Description, &instantlyID,
		&c.TargetPersona, &c.Status, &c.IsAcceptingLeads, &c.MaxLeads, &c.LeadCount, &c.SentCount,
		&c.OpenCount, &c.ReplyCount, &syncedAt, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("campaign not found")
	}
	if err != nil {
		return nil, err
	}
	c.InstantlyCampaignID = nullStr(instantlyID)
	c.LastSyncedAt = nullTime(syncedAt)
	return &c, nil
}

func collectLiteCampaigns(rows *sql.Rows) ([]model.Campaign, error) {
	var campaigns []model.Campaign
	for rows.Next() {
		c, err := scanLiteCampaign(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan campaign")
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, eris.Wrap(rows.Err(), "sqlite: campaigns iterate")
}
