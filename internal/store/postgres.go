package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/db"
	"github.com/sells-group/outreach-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"get_lead":              `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`,
	"mark_lead_enriching":   `UPDATE leads SET enrichment_status = 'enriching', enriching_at = now() WHERE id = $1`,
	"mark_lead_failed":      `UPDATE leads SET enrichment_status = 'failed' WHERE id = $1`,
	"update_run_items":      `UPDATE discovery_runs SET items_found = $1 WHERE id = $2`,
	"mark_instruction_done": `UPDATE instructions SET query_generated = TRUE WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id                      TEXT PRIMARY KEY,
	name                    TEXT NOT NULL,
	website                 TEXT NOT NULL DEFAULT '',
	description             TEXT NOT NULL DEFAULT '',
	target_audience         TEXT NOT NULL DEFAULT '',
	agent_notes             TEXT NOT NULL DEFAULT '',
	sending_emails          JSONB,
	default_sequence_length INTEGER NOT NULL DEFAULT 2,
	email_prompt            TEXT,
	autopilot_enabled       BOOLEAN NOT NULL DEFAULT FALSE,
	autopilot_min_fit_score INTEGER NOT NULL DEFAULT 0,
	digest_recipients       JSONB,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS instructions (
	id              TEXT PRIMARY KEY,
	company_id      TEXT NOT NULL REFERENCES companies(id),
	content         TEXT NOT NULL,
	query_generated BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_instructions_pending ON instructions(company_id) WHERE NOT query_generated;

CREATE TABLE IF NOT EXISTS queries (
	id                    TEXT PRIMARY KEY,
	company_id            TEXT NOT NULL REFERENCES companies(id),
	query                 TEXT NOT NULL,
	criteria              JSONB,
	rationale             TEXT NOT NULL DEFAULT '',
	source_instruction_id TEXT,
	is_active             BOOLEAN NOT NULL DEFAULT TRUE,
	status                TEXT NOT NULL DEFAULT 'pending',
	last_run_at           TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_queries_company ON queries(company_id);
CREATE INDEX IF NOT EXISTS idx_queries_active ON queries(company_id) WHERE is_active;

CREATE TABLE IF NOT EXISTS discovery_runs (
	id           TEXT PRIMARY KEY,
	query_id     TEXT NOT NULL REFERENCES queries(id),
	webset_id    TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	items_found  INTEGER NOT NULL DEFAULT 0,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
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
	discovery_data            JSONB,
	created_at                TIMESTAMPTZ NOT NULL DEFAULT now(),
	category                  TEXT,
	full_name                 TEXT,
	title                     TEXT,
	bio                       TEXT,
	expertise                 JSONB,
	social_links              JSONB,
	total_audience            INTEGER,
	content_types             JSONB,
	fit_score                 INTEGER,
	fit_reason                TEXT,
	enrichment_status         TEXT NOT NULL DEFAULT 'pending',
	enriching_at              TIMESTAMPTZ,
	enriched_at               TIMESTAMPTZ,
	suggested_campaign_id     TEXT,
	suggested_campaign_reason TEXT,
	campaign_id               TEXT,
	campaign_status           TEXT NOT NULL DEFAULT 'pending',
	campaign_routed_at        TIMESTAMPTZ,
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
	is_accepting_leads    BOOLEAN NOT NULL DEFAULT TRUE,
	max_leads             INTEGER NOT NULL DEFAULT 500,
	lead_count            INTEGER NOT NULL DEFAULT 0,
	sent_count            INTEGER NOT NULL DEFAULT 0,
	open_count            INTEGER NOT NULL DEFAULT 0,
	reply_count           INTEGER NOT NULL DEFAULT 0,
	last_synced_at        TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_campaigns_company ON campaigns(company_id);
CREATE INDEX IF NOT EXISTS idx_campaigns_linked ON campaigns(instantly_campaign_id) WHERE instantly_campaign_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS campaign_emails (
	id          TEXT PRIMARY KEY,
	campaign_id TEXT NOT NULL REFERENCES campaigns(id),
	step        INTEGER NOT NULL,
	subject     TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL,
	delay_days  INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
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
	sent_to        JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (company_id, digest_date)
);
`

const leadColumns = `id, query_id, discovery_run_id, name, email, url, platform, follower_count, discovery_data, created_at,
	category, full_name, title, bio, expertise, social_links, total_audience, content_types, fit_score, fit_reason, enrichment_status, enriching_at, enriched_at,
	suggested_campaign_id, suggested_campaign_reason, campaign_id, campaign_status, campaign_routed_at, skip_reason`

const campaignColumns = `id, company_id, name, description, instantly_campaign_id, target_persona, status, is_accepting_leads,
	max_leads, lead_count, sent_count, open_count, reply_count, last_synced_at, created_at, updated_at`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Companies

func (s *PostgresStore) CreateCompany(ctx context.Context, company model.Company) (*model.Company, error) {
	if company.ID == "" {
		company.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	company.CreatedAt = now
	company.UpdatedAt = now

	sendingJSON, err := json.Marshal(company.SendingEmails)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal sending emails")
	}
	digestJSON, err := json.Marshal(company.DigestRecipients)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal digest recipients")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO companies (id, name, website, description, target_audience, agent_notes, sending_emails,
		 default_sequence_length, email_prompt, autopilot_enabled, autopilot_min_fit_score, digest_recipients, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		company.ID, company.Name, company.Website, company.Description, company.TargetAudience,
		company.AgentNotes, sendingJSON, company.DefaultSequenceLength, company.EmailPrompt,
		company.AutopilotEnabled, company.AutopilotMinFitScore, digestJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert company")
	}
	return &company, nil
}

func (s *PostgresStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, website, description, target_audience, agent_notes, sending_emails,
		 default_sequence_length, email_prompt, autopilot_enabled, autopilot_min_fit_score, digest_recipients, created_at, updated_at
		 FROM companies WHERE id = $1`,
		id,
	)
	c, err := scanPGCompany(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get company %s", id)
	}
	return c, nil
}

func (s *PostgresStore) ListCompanies(ctx context.Context) ([]model.Company, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, website, description, target_audience, agent_notes, sending_emails,
		 default_sequence_length, email_prompt, autopilot_enabled, autopilot_min_fit_score, digest_recipients, created_at, updated_at
		 FROM companies ORDER BY created_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		c, err := scanPGCompany(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		companies = append(companies, *c)
	}
	return companies, eris.Wrap(rows.Err(), "postgres: list companies iterate")
}

func (s *PostgresStore) UpdateCompany(ctx context.Context, company model.Company) error {
	sendingJSON, err := json.Marshal(company.SendingEmails)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal sending emails")
	}
	digestJSON, err := json.Marshal(company.DigestRecipients)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal digest recipients")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET name = $1, website = $2, description = $3, target_audience = $4, agent_notes = $5,
		 sending_emails = $6, default_sequence_length = $7, email_prompt = $8, autopilot_enabled = $9,
		 autopilot_min_fit_score = $10, digest_recipients = $11, updated_at = $12
		 WHERE id = $13`,
		company.Name, company.Website, company.Description, company.TargetAudience, company.AgentNotes,
		sendingJSON, company.DefaultSequenceLength, company.EmailPrompt, company.AutopilotEnabled,
		company.AutopilotMinFitScore, digestJSON, time.Now().UTC(), company.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update company %s", company.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("company not found: %s", company.ID)
	}
	return nil
}

// Instructions

func (s *PostgresStore) CreateInstruction(ctx context.Context, companyID, content string) (*model.Instruction, error) {
	inst := model.Instruction{
		ID:        uuid.New().String(),
		CompanyID: companyID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO instructions (id, company_id, content, query_generated, created_at) VALUES ($1, $2, $3, FALSE, $4)`,
		inst.ID, inst.CompanyID, inst.Content, inst.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert instruction")
	}
	return &inst, nil
}

func (s *PostgresStore) ListPendingInstructions(ctx context.Context, companyID string) ([]model.Instruction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company_id, content, query_generated, created_at FROM instructions
		 WHERE company_id = $1 AND NOT query_generated ORDER BY created_at`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending instructions")
	}
	defer rows.Close()

	var insts []model.Instruction
	for rows.Next() {
		var i model.Instruction
		if err := rows.Scan(&i.ID, &i.CompanyID, &i.Content, &i.QueryGenerated, &i.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan instruction")
		}
		insts = append(insts, i)
	}
	return insts, eris.Wrap(rows.Err(), "postgres: list instructions iterate")
}

func (s *PostgresStore) MarkInstructionConsumed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE instructions SET query_generated = TRUE WHERE id = $1`, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark instruction consumed %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("instruction not found: %s", id)
	}
	return nil
}

// Queries

func (s *PostgresStore) CreateQuery(ctx context.Context, query model.Query) (*model.Query, error) {
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
		return nil, eris.Wrap(err, "postgres: marshal criteria")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO queries (id, company_id, query, criteria, rationale, source_instruction_id, is_active, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		query.ID, query.CompanyID, query.Query, criteriaJSON, query.Rationale,
		query.SourceInstructionID, query.IsActive, string(query.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert query")
	}
	return &query, nil
}

func (s *PostgresStore) GetQuery(ctx context.Context, id string) (*model.Query, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, company_id, query, criteria, rationale, source_instruction_id, is_active, status, last_run_at, created_at, updated_at
		 FROM queries WHERE id = $1`,
		id,
	)
	q, err := scanPGQuery(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get query %s", id)
	}
	return q, nil
}

func (s *PostgresStore) ListActiveQueries(ctx context.Context, companyID string) ([]model.Query, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company_id, query, criteria, rationale, source_instruction_id, is_active, status, last_run_at, created_at, updated_at
		 FROM queries WHERE company_id = $1 AND is_active ORDER BY created_at`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list active queries")
	}
	defer rows.Close()

	var queries []model.Query
	for rows.Next() {
		q, err := scanPGQuery(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan query")
		}
		queries = append(queries, *q)
	}
	return queries, eris.Wrap(rows.Err(), "postgres: list queries iterate")
}

func (s *PostgresStore) UpdateQueryStatus(ctx context.Context, id string, status model.QueryStatus) error {
	now := time.Now().UTC()
	var tag commandTag
	var err error
	if status == model.QueryStatusRunning {
		tag, err = s.pool.Exec(ctx,
			`UPDATE queries SET status = $1, last_run_at = $2, updated_at = $2 WHERE id = $3`,
			string(status), now, id,
		)
	} else {
		tag, err = s.pool.Exec(ctx,
			`UPDATE queries SET status = $1, updated_at = $2 WHERE id = $3`,
			string(status), now, id,
		)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: update query status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("query not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) DeactivateQuery(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE queries SET is_active = FALSE, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: deactivate query %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("query not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) QueryYields(ctx context.Context, companyID string, limit int) ([]model.QueryYield, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT q.query, q.criteria, COUNT(l.id)
		 FROM queries q LEFT JOIN leads l ON l.query_id = q.id
		 WHERE q.company_id = $1
		 GROUP BY q.id, q.query, q.criteria
		 ORDER BY MAX(q.created_at) DESC
		 LIMIT $2`,
		companyID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query yields")
	}
	defer rows.Close()

	var yields []model.QueryYield
	for rows.Next() {
		var y model.QueryYield
		var criteriaJSON []byte
		if err := rows.Scan(&y.Query, &criteriaJSON, &y.LeadsFound); err != nil {
			return nil, eris.Wrap(err, "postgres: scan query yield")
		}
		if len(criteriaJSON) > 0 {
			if err := json.Unmarshal(criteriaJSON, &y.Criteria); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal criteria")
			}
		}
		yields = append(yields, y)
	}
	return yields, eris.Wrap(rows.Err(), "postgres: query yields iterate")
}

// Discovery runs

func (s *PostgresStore) CreateDiscoveryRun(ctx context.Context, queryID, websetID string) (*model.DiscoveryRun, error) {
	run := model.DiscoveryRun{
		ID:        uuid.New().String(),
		QueryID:   queryID,
		WebsetID:  websetID,
		Status:    model.DiscoveryRunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO discovery_runs (id, query_id, webset_id, status, items_found, started_at) VALUES ($1, $2, $3, $4, 0, $5)`,
		run.ID, run.QueryID, run.WebsetID, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert discovery run")
	}
	return &run, nil
}

func (s *PostgresStore) UpdateDiscoveryRunItems(ctx context.Context, id string, itemsFound int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE discovery_runs SET items_found = $1 WHERE id = $2`,
		itemsFound, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update discovery run items %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("discovery_run not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) CompleteDiscoveryRun(ctx context.Context, id string, status model.DiscoveryRunStatus, itemsFound int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE discovery_runs SET status = $1, items_found = $2, completed_at = $3 WHERE id = $4`,
		string(status), itemsFound, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete discovery run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("discovery_run not found: %s", id)
	}
	return nil
}

// Leads

var leadInsertColumns = []string{
	"id", "query_id", "discovery_run_id", "name", "email", "url", "platform",
	"follower_count", "discovery_data", "enrichment_status", "campaign_status", "created_at",
}

func (s *PostgresStore) InsertLeads(ctx context.Context, leads []model.Lead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(leads))
	now := time.Now().UTC()
	for _, l := range leads {
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		if l.CreatedAt.IsZero() {
			l.CreatedAt = now
		}
		dataJSON, err := json.Marshal(l.DiscoveryData)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal discovery data")
		}
		rows = append(rows, []any{
			l.ID, l.QueryID, l.DiscoveryRunID, l.Name, l.Email, l.URL, l.Platform,
			l.FollowerCount, dataJSON, string(model.EnrichmentStatusPending),
			string(model.CampaignStatusPending), l.CreatedAt,
		})
	}

	n, err := db.BulkInsertIgnore(ctx, s.pool, db.InsertConfig{
		Table:   "leads",
		Columns: leadInsertColumns,
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert leads")
	}
	return int(n), nil
}

func (s *PostgresStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = $1`, id,
	)
	l, err := scanPGLead(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead %s", id)
	}
	return l, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + pgLeadColumnsQualified + ` FROM leads l`
	args := []any{}
	argIdx := 1

	if filter.CompanyID != "" {
		query += ` JOIN queries q ON q.id = l.query_id`
	}
	query += ` WHERE true`

	if filter.CompanyID != "" {
		query += fmt.Sprintf(` AND q.company_id = $%d`, argIdx)
		args = append(args, filter.CompanyID)
		argIdx++
	}
	if filter.QueryID != "" {
		query += fmt.Sprintf(` AND l.query_id = $%d`, argIdx)
		args = append(args, filter.QueryID)
		argIdx++
	}
	if filter.EnrichmentStatus != "" {
		query += fmt.Sprintf(` AND l.enrichment_status = $%d`, argIdx)
		args = append(args, string(filter.EnrichmentStatus))
		argIdx++
	}
	if filter.CampaignStatus != "" {
		query += fmt.Sprintf(` AND l.campaign_status = $%d`, argIdx)
		args = append(args, string(filter.CampaignStatus))
		argIdx++
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
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanPGLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) MarkLeadEnriching(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET enrichment_status = 'enriching', enriching_at = now() WHERE id = $1`, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark lead enriching %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) SaveLeadEnrichment(ctx context.Context, id string, persona model.Persona, email *string) error {
	expertiseJSON, err := json.Marshal(persona.Expertise)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal expertise")
	}
	linksJSON, err := json.Marshal(persona.SocialLinks)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal social links")
	}
	typesJSON, err := json.Marshal(persona.ContentTypes)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal content types")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET category = $1, full_name = $2, title = $3, bio = $4, expertise = $5, social_links = $6,
		 total_audience = $7, content_types = $8, fit_score = $9, fit_reason = $10,
		 email = COALESCE(email, $11), enrichment_status = 'enriched', enriched_at = $12
		 WHERE id = $13`,
		persona.Category, persona.FullName, persona.Title, persona.Bio, expertiseJSON, linksJSON,
		persona.TotalAudience, typesJSON, persona.FitScore, persona.FitReason,
		email, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save enrichment %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) MarkLeadEnrichmentFailed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET enrichment_status = 'failed' WHERE id = $1`, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark lead failed %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) SaveRoutingSuggestion(ctx context.Context, id string, campaignID *string, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET suggested_campaign_id = $1, suggested_campaign_reason = $2 WHERE id = $3`,
		campaignID, reason, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save routing suggestion %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) MarkLeadRouted(ctx context.Context, id, campaignID string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, eris.Wrap(err, "postgres: mark routed begin")
	}
	defer tx.Rollback(ctx)

	// Guarded by campaign_status so a second confirmation is a no-op.
	tag, err := tx.Exec(ctx,
		`UPDATE leads SET campaign_id = $1, campaign_status = 'routed', campaign_routed_at = $2
		 WHERE id = $3 AND campaign_status = 'pending'`,
		campaignID, time.Now().UTC(), id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: mark lead routed %s", id)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	_, err = tx.Exec(ctx,
		`UPDATE campaigns SET lead_count = lead_count + 1, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), campaignID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: bump campaign lead count %s", campaignID)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, eris.Wrap(err, "postgres: mark routed commit")
	}
	return true, nil
}

func (s *PostgresStore) MarkLeadSkipped(ctx context.Context, id, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET campaign_status = 'skipped', skip_reason = $1, campaign_routed_at = $2
		 WHERE id = $3 AND campaign_status = 'pending'`,
		reason, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark lead skipped %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not pending: %s", id)
	}
	return nil
}

// Campaigns

func (s *PostgresStore) CreateCampaign(ctx context.Context, campaign model.Campaign) (*model.Campaign, error) {
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

	_, err := s.pool.Exec(ctx,
		`INSERT INTO campaigns (id, company_id, name, description, instantly_campaign_id, target_persona,
		 status, is_accepting_leads, max_leads, lead_count, sent_count, open_count, reply_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, 0, 0, 0, $10, $11)`,
		campaign.ID, campaign.CompanyID, campaign.Name, campaign.Description, campaign.InstantlyCampaignID,
		campaign.TargetPersona, string(campaign.Status), campaign.IsAcceptingLeads, campaign.MaxLeads, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert campaign")
	}
	return &campaign, nil
}

func (s *PostgresStore) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id,
	)
	c, err := scanPGCampaign(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get campaign %s", id)
	}
	return c, nil
}

func (s *PostgresStore) ListActiveCampaigns(ctx context.Context, companyID string) ([]model.Campaign, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+campaignColumns+` FROM campaigns
		 WHERE company_id = $1 AND status = 'active' AND is_accepting_leads ORDER BY created_at`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list active campaigns")
	}
	defer rows.Close()
	return collectPGCampaigns(rows)
}

func (s *PostgresStore) ListLinkedCampaigns(ctx context.Context) ([]model.Campaign, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+campaignColumns+` FROM campaigns
		 WHERE instantly_campaign_id IS NOT NULL ORDER BY created_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list linked campaigns")
	}
	defer rows.Close()
	return collectPGCampaigns(rows)
}

func (s *PostgresStore) UpdateCampaignStats(ctx context.Context, id string, stats model.CampaignStats) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaigns SET lead_count = $1, sent_count = $2, open_count = $3, reply_count = $4,
		 is_accepting_leads = is_accepting_leads AND $1 < max_leads,
		 last_synced_at = $5, updated_at = $5
		 WHERE id = $6`,
		stats.LeadCount, stats.SentCount, stats.OpenCount, stats.ReplyCount, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update campaign stats %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("campaign not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) SetCampaignAccepting(ctx context.Context, id string, accepting bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaigns SET is_accepting_leads = $1, updated_at = $2 WHERE id = $3`,
		accepting, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set campaign accepting %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("campaign not found: %s", id)
	}
	return nil
}

// Campaign emails

func (s *PostgresStore) SaveCampaignEmails(ctx context.Context, campaignID string, emails []model.CampaignEmail) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: save emails begin")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM campaign_emails WHERE campaign_id = $1`, campaignID); err != nil {
		return eris.Wrapf(err, "postgres: clear campaign emails %s", campaignID)
	}

	now := time.Now().UTC()
	for _, e := range emails {
		id := e.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO campaign_emails (id, campaign_id, step, subject, body, delay_days, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, campaignID, e.Step, e.Subject, e.Body, e.DelayDays, now,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert campaign email step %d", e.Step)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: save emails commit")
}

func (s *PostgresStore) ListCampaignEmails(ctx context.Context, campaignID string) ([]model.CampaignEmail, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, campaign_id, step, subject, body, delay_days, created_at
		 FROM campaign_emails WHERE campaign_id = $1 ORDER BY step`,
		campaignID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list campaign emails")
	}
	defer rows.Close()

	var emails []model.CampaignEmail
	for rows.Next() {
		var e model.CampaignEmail
		if err := rows.Scan(&e.ID, &e.CampaignID, &e.Step, &e.Subject, &e.Body, &e.DelayDays, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan campaign email")
		}
		emails = append(emails, e)
	}
	return emails, eris.Wrap(rows.Err(), "postgres: list emails iterate")
}

// Digests

func (s *PostgresStore) DigestCounts(ctx context.Context, companyID string, since time.Time) (*DigestCounts, error) {
	var dc DigestCounts
	err := s.pool.QueryRow(ctx,
		`SELECT
		   COUNT(*) FILTER (WHERE l.created_at >= $2),
		   COUNT(*) FILTER (WHERE l.enriched_at >= $2),
		   COUNT(*) FILTER (WHERE l.campaign_status = 'routed' AND l.campaign_routed_at >= $2),
		   COUNT(*) FILTER (WHERE l.campaign_status = 'skipped' AND l.campaign_routed_at >= $2),
		   COUNT(*) FILTER (WHERE l.enrichment_status = 'enriched' AND l.campaign_status = 'pending')
		 FROM leads l JOIN queries q ON q.id = l.query_id
		 WHERE q.company_id = $1`,
		companyID, since,
	).Scan(&dc.LeadsFound, &dc.LeadsEnriched, &dc.LeadsRouted, &dc.LeadsSkipped, &dc.PendingReview)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: digest counts")
	}
	return &dc, nil
}

func (s *PostgresStore) SaveDigest(ctx context.Context, digest model.DailyDigest) (*model.DailyDigest, error) {
	if digest.ID == "" {
		digest.ID = uuid.New().String()
	}
	digest.CreatedAt = time.Now().UTC()

	sentToJSON, err := json.Marshal(digest.SentTo)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal sent_to")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO daily_digests (id, company_id, digest_date, leads_found, leads_enriched, leads_routed,
		 leads_skipped, pending_review, emails_sent, replies, html, sent_to, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (company_id, digest_date) DO UPDATE SET
		   leads_found = $4, leads_enriched = $5, leads_routed = $6, leads_skipped = $7,
		   pending_review = $8, emails_sent = $9, replies = $10, html = $11, sent_to = $12`,
		digest.ID, digest.CompanyID, digest.DigestDate, digest.LeadsFound, digest.LeadsEnriched,
		digest.LeadsRouted, digest.LeadsSkipped, digest.PendingReview, digest.EmailsSent,
		digest.Replies, digest.HTML, sentToJSON, digest.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: save digest")
	}
	return &digest, nil
}

// scan helpers

// commandTag is the subset of pgconn.CommandTag the store needs; it
// keeps UpdateQueryStatus's two-branch exec assignable.
type commandTag interface {
	RowsAffected() int64
}

type pgScannable interface {
	Scan(dest ...any) error
}

func scanPGCompany(row pgScannable) (*model.Company, error) {
	var c model.Company
	var sendingJSON, digestJSON []byte

	err := row.Scan(&c.ID, &c.Name, &c.Website, &c.Description, &c.TargetAudience, &c.AgentNotes,
		&sendingJSON, &c.DefaultSequenceLength, &c.EmailPrompt, &c.AutopilotEnabled,
		&c.AutopilotMinFitScore, &digestJSON, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.New("company not found")
	}
	if err != nil {
		return nil, err
	}
	if len(sendingJSON) > 0 {
		if err := json.Unmarshal(sendingJSON, &c.SendingEmails); err != nil {
			return nil, eris.Wrap(err, "unmarshal sending emails")
		}
	}
	if len(digestJSON) > 0 {
		if err := json.Unmarshal(digestJSON, &c.DigestRecipients); err != nil {
			return nil, eris.Wrap(err, "unmarshal digest recipients")
		}
	}
	return &c, nil
}

func scanPGQuery(row pgScannable) (*model.Query, error) {
	var q model.Query
	var criteriaJSON []byte

	err := row.Scan(&q.ID, &q.CompanyID, &q.Query, &criteriaJSON, &q.Rationale,
		&q.SourceInstructionID, &q.IsActive, &q.Status, &q.LastRunAt, &q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.New("query not found")
	}
	if err != nil {
		return nil, err
	}
	if len(criteriaJSON) > 0 {
		if err := json.Unmarshal(criteriaJSON, &q.Criteria); err != nil {
			return nil, eris.Wrap(err, "unmarshal criteria")
		}
	}
	return &q, nil
}

const pgLeadColumnsQualified = `l.id, l.query_id, l.discovery_run_id, l.name, l.email, l.url, l.platform, l.follower_count, l.discovery_data, l.created_at,
	l.category, l.full_name, l.title, l.bio, l.expertise, l.social_links, l.total_audience, l.content_types, l.fit_score, l.fit_reason, l.enrichment_status, l.enriching_at, l.enriched_at,
	l.suggested_campaign_id, l.suggested_campaign_reason, l.campaign_id, l.campaign_status, l.campaign_routed_at, l.skip_reason`

func scanPGLead(row pgScannable) (*model.Lead, error) {
	var l model.Lead
	var dataJSON, expertiseJSON, linksJSON, typesJSON []byte

	err := row.Scan(
		&l.ID, &l.QueryID, &l.DiscoveryRunID, &l.Name, &l.Email, &l.URL, &l.Platform,
		&l.FollowerCount, &dataJSON, &l.CreatedAt,
		&l.Category, &l.FullName, &l.Title, &l.Bio, &expertiseJSON, &linksJSON,
		&l.TotalAudience, &typesJSON, &l.FitScore, &l.FitReason, &l.EnrichmentStatus, &l.EnrichingAt, &l.EnrichedAt,
		&l.SuggestedCampaignID, &l.SuggestedCampaignReason, &l.CampaignID, &l.CampaignStatus,
		&l.CampaignRoutedAt, &l.SkipReason,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.New("lead not found")
	}
	if err != nil {
		return nil, err
	}

	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{dataJSON, &l.DiscoveryData},
		{expertiseJSON, &l.Expertise},
		{linksJSON, &l.SocialLinks},
		{typesJSON, &l.ContentTypes},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, eris.Wrap(err, "unmarshal lead field")
		}
	}
	return &l, nil
}

func scanPGCampaign(row pgScannable) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Description, &c.InstantlyCampaignID,
		&c.TargetPersona, &c.Status, &c.IsAcceptingLeads, &c.MaxLeads, &c.LeadCount, &c.SentCount,
		&c.OpenCount, &c.ReplyCount, &c.LastSyncedAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.New("campaign not found")
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func collectPGCampaigns(rows pgx.Rows) ([]model.Campaign, error) {
	var campaigns []model.Campaign
	for rows.Next() {
		c, err := scanPGCampaign(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan campaign")
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, eris.Wrap(rows.Err(), "postgres: campaigns iterate")
}
