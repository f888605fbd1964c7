package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/meditrace/meditrace-api/internal/models"
	appErrors "github.com/meditrace/meditrace-api/pkg/errors"
)

// LedgerRepository is the sole write path into the append-only event log.
// Every commit locks the affected code rows, re-verifies ownership under
// the lock, appends events, and updates the code projection in the same
// transaction, so concurrent transfers can never claim the same unit.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository constructs the repository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

type lockedCode struct {
	ID             string            `db:"id"`
	CurrentOwnerID string            `db:"current_owner_id"`
	CurrentStatus  models.CodeStatus `db:"current_status"`
}

// CommitTransfer atomically applies a transfer plan. Returns
// ALLOCATION_CONFLICT when any selected code changed owner or status
// between selection and commit; the caller re-runs allocation and retries.
func (r *LedgerRepository) CommitTransfer(ctx context.Context, plan *models.TransferPlan) (receipt *models.TransferReceipt, err error) {
	if len(plan.CodeIDs) == 0 {
		return nil, fmt.Errorf("transfer plan has no codes")
	}
	now := time.Now().UTC()
	if plan.Batch.ID == "" {
		plan.Batch.ID = uuid.NewString()
	}
	if plan.Batch.CreatedAt.IsZero() {
		plan.Batch.CreatedAt = now
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transfer tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = r.lockAndVerify(ctx, tx, plan.CodeIDs, plan.ExpectedOwnerID, plan.ExpectedStatus, appErrors.ErrAllocationConflict); err != nil {
		return nil, err
	}

	const batchQuery = `INSERT INTO transfer_batches (id, batch_type, from_org_id, to_org_id, patient_contact, total_quantity, reason, is_reversed, event_time, created_at)
        VALUES (:id, :batch_type, :from_org_id, :to_org_id, :patient_contact, :total_quantity, :reason, FALSE, :event_time, :created_at)`
	if _, err = tx.NamedExecContext(ctx, batchQuery, plan.Batch); err != nil {
		return nil, fmt.Errorf("create transfer batch: %w", err)
	}

	eventIDs, err := r.appendEvents(ctx, tx, plan.Batch.ID, plan.Batch.EventTime, plan.Events, now)
	if err != nil {
		return nil, err
	}

	if err = r.updateCodes(ctx, tx, plan.CodeIDs, plan.NewOwnerID, plan.NewStatus, now); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transfer tx: %w", err)
	}
	return &models.TransferReceipt{BatchID: plan.Batch.ID, EventIDs: eventIDs}, nil
}

// CommitReversal atomically applies a reversal plan against an existing
// batch. The reversing events reference the original batch ID; their
// presence is the authoritative "already reversed" check, the batch flag
// is updated for reporting only.
func (r *LedgerRepository) CommitReversal(ctx context.Context, plan *models.ReversalPlan) (receipt *models.TransferReceipt, err error) {
	if len(plan.CodeIDs) == 0 {
		return nil, fmt.Errorf("reversal plan has no codes")
	}
	now := time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reversal tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var batch models.TransferBatch
	const batchQuery = `SELECT id, batch_type, from_org_id, to_org_id, patient_contact, total_quantity, reason, is_reversed, reversal_reason, reversed_at, event_time, created_at
        FROM transfer_batches WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &batch, batchQuery, plan.BatchID); err != nil {
		return nil, fmt.Errorf("lock batch: %w", err)
	}

	guardQuery, guardArgs, err := sqlx.In(`SELECT COUNT(*) FROM transfer_events WHERE batch_id = ? AND action IN (?)`, plan.BatchID, plan.GuardActions)
	if err != nil {
		return nil, fmt.Errorf("build reversal guard query: %w", err)
	}
	guardQuery = tx.Rebind(guardQuery)
	var reversingEvents int
	if err = tx.GetContext(ctx, &reversingEvents, guardQuery, guardArgs...); err != nil {
		return nil, fmt.Errorf("check reversal guard: %w", err)
	}
	if reversingEvents > 0 {
		err = appErrors.ErrAlreadyReversed
		return nil, err
	}

	if err = r.lockAndVerify(ctx, tx, plan.CodeIDs, plan.ExpectedOwnerID, plan.ExpectedStatus, appErrors.ErrCodesNotOwned); err != nil {
		return nil, err
	}

	eventIDs, err := r.appendEvents(ctx, tx, plan.BatchID, now, plan.Events, now)
	if err != nil {
		return nil, err
	}

	if err = r.updateCodes(ctx, tx, plan.CodeIDs, plan.NewOwnerID, plan.NewStatus, now); err != nil {
		return nil, err
	}

	const markQuery = `UPDATE transfer_batches SET is_reversed = TRUE, reversal_reason = $2, reversed_at = $3 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, markQuery, plan.BatchID, plan.ReversalReason, now); err != nil {
		return nil, fmt.Errorf("mark batch reversed: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reversal tx: %w", err)
	}
	return &models.TransferReceipt{BatchID: plan.BatchID, EventIDs: eventIDs}, nil
}

// lockAndVerify takes row locks on the code rows in deterministic order and
// confirms each still has the expected owner and status. mismatchErr is
// surfaced when the verification fails.
func (r *LedgerRepository) lockAndVerify(ctx context.Context, tx *sqlx.Tx, codeIDs []string, expectedOwner string, expectedStatus models.CodeStatus, mismatchErr *appErrors.Error) error {
	query, args, err := sqlx.In(`SELECT id, current_owner_id, current_status FROM virtual_codes WHERE id IN (?) ORDER BY id FOR UPDATE`, codeIDs)
	if err != nil {
		return fmt.Errorf("build lock query: %w", err)
	}
	query = tx.Rebind(query)

	var locked []lockedCode
	if err := tx.SelectContext(ctx, &locked, query, args...); err != nil {
		return fmt.Errorf("lock codes: %w", err)
	}
	if len(locked) != len(codeIDs) {
		return mismatchErr
	}
	for _, lc := range locked {
		if lc.CurrentOwnerID != expectedOwner || lc.CurrentStatus != expectedStatus {
			return mismatchErr
		}
	}
	return nil
}

func (r *LedgerRepository) appendEvents(ctx context.Context, tx *sqlx.Tx, batchID string, eventTime time.Time, events []models.EventSpec, now time.Time) ([]string, error) {
	const query = `INSERT INTO transfer_events (id, batch_id, action, virtual_code_id, from_owner_id, to_owner_id, event_time, reason, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	eventIDs := make([]string, 0, len(events))
	for _, spec := range events {
		id := uuid.NewString()
		if _, err := tx.ExecContext(ctx, query, id, batchID, spec.Action, spec.VirtualCodeID, spec.FromOwnerID, spec.ToOwnerID, eventTime, spec.Reason, now); err != nil {
			return nil, fmt.Errorf("append %s event: %w", spec.Action, err)
		}
		eventIDs = append(eventIDs, id)
	}
	return eventIDs, nil
}

func (r *LedgerRepository) updateCodes(ctx context.Context, tx *sqlx.Tx, codeIDs []string, owner string, status models.CodeStatus, now time.Time) error {
	query, args, err := sqlx.In(`UPDATE virtual_codes SET current_owner_id = ?, current_status = ?, updated_at = ? WHERE id IN (?)`, owner, status, now, codeIDs)
	if err != nil {
		return fmt.Errorf("build update query: %w", err)
	}
	query = tx.Rebind(query)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update code projection: %w", err)
	}
	return nil
}

// FindBatch returns a batch by its ID.
func (r *LedgerRepository) FindBatch(ctx context.Context, id string) (*models.TransferBatch, error) {
	const query = `SELECT id, batch_type, from_org_id, to_org_id, patient_contact, total_quantity, reason, is_reversed, reversal_reason, reversed_at, event_time, created_at
        FROM transfer_batches WHERE id = $1`
	var batch models.TransferBatch
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		return nil, err
	}
	return &batch, nil
}

// ListEventsByBatch returns a batch's events in ledger order.
func (r *LedgerRepository) ListEventsByBatch(ctx context.Context, batchID string) ([]models.TransferEvent, error) {
	const query = `SELECT id, seq, batch_id, action, virtual_code_id, from_owner_id, to_owner_id, event_time, reason, created_at
        FROM transfer_events WHERE batch_id = $1 ORDER BY seq ASC`
	var events []models.TransferEvent
	if err := r.db.SelectContext(ctx, &events, query, batchID); err != nil {
		return nil, fmt.Errorf("list batch events: %w", err)
	}
	return events, nil
}

// ListEventsByCodeID returns the full chain for one unit in ledger order.
func (r *LedgerRepository) ListEventsByCodeID(ctx context.Context, codeID string) ([]models.TransferEvent, error) {
	const query = `SELECT id, seq, batch_id, action, virtual_code_id, from_owner_id, to_owner_id, event_time, reason, created_at
        FROM transfer_events WHERE virtual_code_id = $1 ORDER BY seq ASC`
	var events []models.TransferEvent
	if err := r.db.SelectContext(ctx, &events, query, codeID); err != nil {
		return nil, fmt.Errorf("list code events: %w", err)
	}
	return events, nil
}

// ListEvents returns ledger entries matching the filter with registry
// context joined in, newest first.
func (r *LedgerRepository) ListEvents(ctx context.Context, filter models.EventFilter) ([]models.EventDetail, int, error) {
	base := `FROM transfer_events te
JOIN virtual_codes vc ON vc.id = te.virtual_code_id
JOIN lots l ON l.id = vc.lot_id
JOIN products p ON p.id = l.product_id`
	var conditions []string
	var args []interface{}

	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("te.event_time >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("te.event_time <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}
	if filter.Action != "" {
		conditions = append(conditions, fmt.Sprintf("te.action = $%d", len(args)+1))
		args = append(args, filter.Action)
	}
	if filter.LotNumber != "" {
		conditions = append(conditions, fmt.Sprintf("l.lot_number = $%d", len(args)+1))
		args = append(args, filter.LotNumber)
	}
	if filter.ProductID != "" {
		conditions = append(conditions, fmt.Sprintf("l.product_id = $%d", len(args)+1))
		args = append(args, filter.ProductID)
	}
	if filter.OrgID != "" {
		conditions = append(conditions, fmt.Sprintf("(te.from_owner_id = $%d OR te.to_owner_id = $%d)", len(args)+1, len(args)+1))
		args = append(args, filter.OrgID)
	}
	if filter.BatchID != "" {
		conditions = append(conditions, fmt.Sprintf("te.batch_id = $%d", len(args)+1))
		args = append(args, filter.BatchID)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT te.id, te.seq, te.batch_id, te.action, te.virtual_code_id, te.from_owner_id, te.to_owner_id, te.event_time, te.reason, te.created_at,
        vc.code, l.lot_number, p.model_name AS product_model_name
        %s ORDER BY te.seq DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var events []models.EventDetail
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}
	return events, total, nil
}
