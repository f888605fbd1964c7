package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meditrace/meditrace-api/internal/models"
	appErrors "github.com/meditrace/meditrace-api/pkg/errors"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck
	return sqlx.NewDb(db, "sqlmock"), mock
}

func lockRows(owner string, status models.CodeStatus, ids ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "current_owner_id", "current_status"})
	for _, id := range ids {
		rows.AddRow(id, owner, status)
	}
	return rows
}

func shipmentPlan() *models.TransferPlan {
	from := "org-m"
	to := "org-d"
	return &models.TransferPlan{
		Batch: models.TransferBatch{
			BatchType:     models.BatchTypeShipment,
			FromOrgID:     &from,
			ToOrgID:       &to,
			TotalQuantity: 2,
			EventTime:     time.Now().UTC(),
		},
		Events: []models.EventSpec{
			{Action: models.ActionShipped, VirtualCodeID: "c1", FromOwnerID: &from, ToOwnerID: &to},
			{Action: models.ActionReceived, VirtualCodeID: "c1", FromOwnerID: &from, ToOwnerID: &to},
			{Action: models.ActionShipped, VirtualCodeID: "c2", FromOwnerID: &from, ToOwnerID: &to},
			{Action: models.ActionReceived, VirtualCodeID: "c2", FromOwnerID: &from, ToOwnerID: &to},
		},
		CodeIDs:         []string{"c1", "c2"},
		ExpectedOwnerID: from,
		ExpectedStatus:  models.CodeStatusInStock,
		NewOwnerID:      to,
		NewStatus:       models.CodeStatusInStock,
	}
}

func TestCommitTransferAppendsAndProjects(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepository(db)
	plan := shipmentPlan()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, current_owner_id, current_status FROM virtual_codes WHERE id IN .+ FOR UPDATE`).
		WithArgs("c1", "c2").
		WillReturnRows(lockRows("org-m", models.CodeStatusInStock, "c1", "c2"))
	mock.ExpectExec(`INSERT INTO transfer_batches`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	for range plan.Events {
		mock.ExpectExec(`INSERT INTO transfer_events`).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec(`UPDATE virtual_codes SET current_owner_id`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	receipt, err := repo.CommitTransfer(context.Background(), plan)
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.BatchID)
	assert.Len(t, receipt.EventIDs, 4)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitTransferConflictRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepository(db)
	plan := shipmentPlan()

	mock.ExpectBegin()
	// c2 already moved to another owner between selection and commit.
	rows := sqlmock.NewRows([]string{"id", "current_owner_id", "current_status"}).
		AddRow("c1", "org-m", models.CodeStatusInStock).
		AddRow("c2", "org-x", models.CodeStatusInStock)
	mock.ExpectQuery(`SELECT id, current_owner_id, current_status FROM virtual_codes WHERE id IN .+ FOR UPDATE`).
		WithArgs("c1", "c2").
		WillReturnRows(rows)
	mock.ExpectRollback()

	_, err := repo.CommitTransfer(context.Background(), plan)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrAllocationConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitTransferMissingLockedRowConflicts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepository(db)
	plan := shipmentPlan()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, current_owner_id, current_status FROM virtual_codes WHERE id IN .+ FOR UPDATE`).
		WithArgs("c1", "c2").
		WillReturnRows(lockRows("org-m", models.CodeStatusInStock, "c1"))
	mock.ExpectRollback()

	_, err := repo.CommitTransfer(context.Background(), plan)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrAllocationConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func batchRow(batchType models.BatchType, from, to string, eventTime time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "batch_type", "from_org_id", "to_org_id", "patient_contact",
		"total_quantity", "reason", "is_reversed", "reversal_reason", "reversed_at", "event_time", "created_at",
	}).AddRow("b1", batchType, from, to, nil, 1, nil, false, nil, nil, eventTime, eventTime)
}

func returnPlan() *models.ReversalPlan {
	receiver := "org-d"
	sender := "org-m"
	reason := "damaged packaging"
	return &models.ReversalPlan{
		BatchID:        "b1",
		ReversalReason: reason,
		GuardActions:   []models.ActionType{models.ActionReturnSent, models.ActionReturnReceived},
		Events: []models.EventSpec{
			{Action: models.ActionReturnSent, VirtualCodeID: "c1", FromOwnerID: &receiver, ToOwnerID: &sender, Reason: &reason},
			{Action: models.ActionReturnReceived, VirtualCodeID: "c1", FromOwnerID: &receiver, ToOwnerID: &sender, Reason: &reason},
		},
		CodeIDs:         []string{"c1"},
		ExpectedOwnerID: receiver,
		ExpectedStatus:  models.CodeStatusInStock,
		NewOwnerID:      sender,
		NewStatus:       models.CodeStatusInStock,
	}
}

func TestCommitReversalWritesCompensatingEvents(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepository(db)
	plan := returnPlan()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM transfer_batches WHERE id = .+ FOR UPDATE`).
		WithArgs("b1").
		WillReturnRows(batchRow(models.BatchTypeShipment, "org-m", "org-d", now.Add(-time.Hour)))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM transfer_events WHERE batch_id = .+ AND action IN`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT id, current_owner_id, current_status FROM virtual_codes WHERE id IN .+ FOR UPDATE`).
		WithArgs("c1").
		WillReturnRows(lockRows("org-d", models.CodeStatusInStock, "c1"))
	for range plan.Events {
		mock.ExpectExec(`INSERT INTO transfer_events`).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec(`UPDATE virtual_codes SET current_owner_id`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE transfer_batches SET is_reversed = TRUE`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	receipt, err := repo.CommitReversal(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, "b1", receipt.BatchID)
	assert.Len(t, receipt.EventIDs, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitReversalGuardRejectsSecondAttempt(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM transfer_batches WHERE id = .+ FOR UPDATE`).
		WithArgs("b1").
		WillReturnRows(batchRow(models.BatchTypeShipment, "org-m", "org-d", time.Now().UTC()))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM transfer_events WHERE batch_id = .+ AND action IN`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	_, err := repo.CommitReversal(context.Background(), returnPlan())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrAlreadyReversed))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitReversalCustodyCheckFails(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM transfer_batches WHERE id = .+ FOR UPDATE`).
		WithArgs("b1").
		WillReturnRows(batchRow(models.BatchTypeShipment, "org-m", "org-d", time.Now().UTC()))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM transfer_events WHERE batch_id = .+ AND action IN`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT id, current_owner_id, current_status FROM virtual_codes WHERE id IN .+ FOR UPDATE`).
		WithArgs("c1").
		WillReturnRows(lockRows("org-h", models.CodeStatusInStock, "c1"))
	mock.ExpectRollback()

	_, err := repo.CommitReversal(context.Background(), returnPlan())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrCodesNotOwned))
	require.NoError(t, mock.ExpectationsWereMet())
}
