package relstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"daovoter/internal/domain"
)

// newMockStore wires a gorm Postgres dialector on top of a sqlmock
// connection, so repository methods run against asserted SQL expectations
// instead of a live database.
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	dialector := postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	return New(db), mock
}

func TestFindProposalByKeyNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .* FROM "proposals"`).
		WillReturnRows(sqlmock.NewRows(nil))

	_, err := store.FindProposalByKey(context.Background(), domain.ProposalKey{
		OnchainProposalID: "1",
		DAOGovernor:       "0xgov",
		ChainID:           1,
	})
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindProposalByKeyFound(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "onchain_proposal_id", "dao_governor", "chain_id",
		"title", "description", "proposer",
		"voting_start_block", "voting_end_block",
		"targets", "values", "calldatas",
		"detected_at_block", "creation_tx_hash", "status",
		"created_at", "updated_at",
	}).AddRow(
		id, "1", "0xgov", 1,
		"Safe Grant", "# Safe Grant\n0.1 ETH", "0xproposer",
		100, 200,
		"0xa,0xb", "0,1", "0xc,0xd",
		99, "0xtx", "NEEDS_REVIEW",
		now, now,
	)
	mock.ExpectQuery(`SELECT .* FROM "proposals"`).WillReturnRows(rows)

	got, err := store.FindProposalByKey(context.Background(), domain.ProposalKey{
		OnchainProposalID: "1",
		DAOGovernor:       "0xgov",
		ChainID:           1,
	})
	require.NoError(t, err)
	require.Equal(t, "Safe Grant", got.Title)
	require.Equal(t, domain.ProposalStatusNeedsReview, got.Status)
	require.Equal(t, []string{"0xa", "0xb"}, got.Targets)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionProposalStatusRejectsIllegalTarget(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "status"}).AddRow(id, "AUTO_APPROVED")
	mock.ExpectQuery(`SELECT .* FROM "proposals"`).WillReturnRows(rows)
	mock.ExpectRollback()

	err := store.TransitionProposalStatus(
		context.Background(), id.String(),
		[]domain.ProposalStatus{domain.ProposalStatusNeedsReview},
		domain.ProposalStatusAutoApproved,
	)
	require.ErrorIs(t, err, ErrIllegalTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

// The executor never observes a proposal in ANALYZING: the scanner creates
// every row at PENDING_ANALYSIS and nothing else ever writes ANALYZING, so
// the executor's fromSet must accept a direct PENDING_ANALYSIS -> terminal
// skip, not just PENDING_ANALYSIS -> ANALYZING.
func TestUpsertAnalysisWithTransitionFromPendingAnalysis(t *testing.T) {
	store, mock := newMockStore(t)
	proposalID := uuid.New()

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "status"}).AddRow(proposalID, "PENDING_ANALYSIS")
	mock.ExpectQuery(`SELECT .* FROM "proposals"`).WillReturnRows(rows)
	mock.ExpectQuery(`INSERT INTO "analyses"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(`UPDATE "proposals"`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	_, err := store.UpsertAnalysisWithTransition(
		context.Background(),
		domain.Analysis{ProposalID: proposalID.String(), CompositeRiskScore: 90, Recommendation: domain.RecommendationApprove},
		[]domain.ProposalStatus{domain.ProposalStatusPendingAnalysis, domain.ProposalStatusAnalyzing},
		domain.ProposalStatusAutoApproved,
	)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
