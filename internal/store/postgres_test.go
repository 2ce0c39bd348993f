package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresWithPool(mock), mock
}

func TestPostgresMigrate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS companies`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkLeadEnriching(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE leads SET enrichment_status = 'enriching'`).
		WithArgs("lead_1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.MarkLeadEnriching(context.Background(), "lead_1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkLeadEnriching_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE leads SET enrichment_status = 'enriching'`).
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.MarkLeadEnriching(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lead not found")
}

func TestPostgresMarkLeadRouted(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE leads SET campaign_id`).
		WithArgs("camp_1", pgxmock.AnyArg(), "lead_1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE campaigns SET lead_count = lead_count \+ 1`).
		WithArgs(pgxmock.AnyArg(), "camp_1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	routed, err := s.MarkLeadRouted(context.Background(), "lead_1", "camp_1")
	require.NoError(t, err)
	assert.True(t, routed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkLeadRouted_AlreadyTerminal(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE leads SET campaign_id`).
		WithArgs("camp_1", pgxmock.AnyArg(), "lead_1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	routed, err := s.MarkLeadRouted(context.Background(), "lead_1", "camp_1")
	require.NoError(t, err)
	assert.False(t, routed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateCampaignStats(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE campaigns SET lead_count`).
		WithArgs(10, 40, 12, 2, pgxmock.AnyArg(), "camp_1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.UpdateCampaignStats(context.Background(), "camp_1", model.CampaignStats{
		LeadCount: 10, SentCount: 40, OpenCount: 12, ReplyCount: 2,
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDigestCounts(t *testing.T) {
	s, mock := newMockStore(t)
	since := time.Now().UTC().Add(-24 * time.Hour)

	mock.ExpectQuery(`SELECT`).
		WithArgs("comp_1", since).
		WillReturnRows(pgxmock.NewRows([]string{"found", "enriched", "routed", "skipped", "pending"}).
			AddRow(12, 9, 6, 2, 1))

	counts, err := s.DigestCounts(context.Background(), "comp_1", since)
	require.NoError(t, err)
	assert.Equal(t, 12, counts.LeadsFound)
	assert.Equal(t, 9, counts.LeadsEnriched)
	assert.Equal(t, 1, counts.PendingReview)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateInstruction(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO instructions`)).
		WithArgs(pgxmock.AnyArg(), "comp_1", "find acting coaches", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	inst, err := s.CreateInstruction(context.Background(), "comp_1", "find acting coaches")
	require.NoError(t, err)
	assert.NotEmpty(t, inst.ID)
	assert.False(t, inst.QueryGenerated)
	assert.NoError(t, mock.ExpectationsWereMet())
}
