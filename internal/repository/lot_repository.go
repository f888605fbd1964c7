package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/meditrace/meditrace-api/internal/models"
)

// LotRepository handles persistence of manufacturing lots and the bulk
// minting that accompanies production registration.
type LotRepository struct {
	db *sqlx.DB
}

// NewLotRepository constructs the repository.
func NewLotRepository(db *sqlx.DB) *LotRepository {
	return &LotRepository{db: db}
}

// FindByID returns a lot by its ID.
func (r *LotRepository) FindByID(ctx context.Context, id string) (*models.Lot, error) {
	const query = `SELECT id, product_id, lot_number, manufacture_date, expiry_date, quantity, created_at FROM lots WHERE id = $1`
	var lot models.Lot
	if err := r.db.GetContext(ctx, &lot, query, id); err != nil {
		return nil, err
	}
	return &lot, nil
}

// List returns lots filtered by the provided criteria.
func (r *LotRepository) List(ctx context.Context, filter models.LotFilter) ([]models.LotDetail, int, error) {
	base := `FROM lots l
LEFT JOIN products p ON p.id = l.product_id`
	var conditions []string
	var args []interface{}

	if filter.ProductID != "" {
		conditions = append(conditions, fmt.Sprintf("l.product_id = $%d", len(args)+1))
		args = append(args, filter.ProductID)
	}
	if filter.LotNumber != "" {
		conditions = append(conditions, fmt.Sprintf("l.lot_number = $%d", len(args)+1))
		args = append(args, filter.LotNumber)
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
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT l.id, l.product_id, l.lot_number, l.manufacture_date, l.expiry_date, l.quantity, l.created_at,
        p.model_name AS product_model_name, p.udi_di AS product_udi_di
        %s ORDER BY l.manufacture_date DESC, l.lot_number ASC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var lots []models.LotDetail
	if err := r.db.SelectContext(ctx, &lots, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list lots: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count lots: %w", err)
	}
	return lots, total, nil
}

// CreateWithCodes registers a lot, mints its virtual codes, and appends the
// PRODUCED events, all in one transaction. The lot number and the code
// tokens are derived from numberPrefix inside the transaction, under a
// per-prefix advisory lock, so concurrent registrations for the same
// manufacturer and date can never mint the same sequence.
func (r *LotRepository) CreateWithCodes(ctx context.Context, numberPrefix string, lot *models.Lot, codes []models.VirtualCode, batch *models.TransferBatch) (err error) {
	if lot.ID == "" {
		lot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lot.CreatedAt.IsZero() {
		lot.CreatedAt = now
	}
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = now
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin production tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// The lock is held until commit, so the count below is stable.
	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, numberPrefix); err != nil {
		return fmt.Errorf("lock lot number prefix: %w", err)
	}
	var existing int
	if err = tx.GetContext(ctx, &existing, `SELECT COUNT(*) FROM lots WHERE lot_number LIKE $1`, numberPrefix+"%"); err != nil {
		return fmt.Errorf("count lots by prefix: %w", err)
	}
	lot.LotNumber = fmt.Sprintf("%s%03d", numberPrefix, existing+1)

	const lotQuery = `INSERT INTO lots (id, product_id, lot_number, manufacture_date, expiry_date, quantity, created_at)
        VALUES (:id, :product_id, :lot_number, :manufacture_date, :expiry_date, :quantity, :created_at)`
	if _, err = tx.NamedExecContext(ctx, lotQuery, lot); err != nil {
		return fmt.Errorf("create lot: %w", err)
	}

	const batchQuery = `INSERT INTO transfer_batches (id, batch_type, from_org_id, to_org_id, patient_contact, total_quantity, reason, is_reversed, event_time, created_at)
        VALUES (:id, :batch_type, :from_org_id, :to_org_id, :patient_contact, :total_quantity, :reason, FALSE, :event_time, :created_at)`
	if _, err = tx.NamedExecContext(ctx, batchQuery, batch); err != nil {
		return fmt.Errorf("create production batch: %w", err)
	}

	const codeQuery = `INSERT INTO virtual_codes (id, code, lot_id, current_owner_id, current_status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $6)`
	const eventQuery = `INSERT INTO transfer_events (id, batch_id, action, virtual_code_id, from_owner_id, to_owner_id, event_time, reason, created_at)
        VALUES ($1, $2, $3, $4, NULL, $5, $6, NULL, $7)`
	for i := range codes {
		if codes[i].ID == "" {
			codes[i].ID = uuid.NewString()
		}
		codes[i].Code = fmt.Sprintf("%s-%05d", lot.LotNumber, i+1)
		codes[i].LotID = lot.ID
		codes[i].CreatedAt = now
		codes[i].UpdatedAt = now
		if _, err = tx.ExecContext(ctx, codeQuery, codes[i].ID, codes[i].Code, codes[i].LotID, codes[i].CurrentOwnerID, codes[i].CurrentStatus, now); err != nil {
			return fmt.Errorf("mint virtual code: %w", err)
		}
		if _, err = tx.ExecContext(ctx, eventQuery, uuid.NewString(), batch.ID, models.ActionProduced, codes[i].ID, codes[i].CurrentOwnerID, batch.EventTime, now); err != nil {
			return fmt.Errorf("append produced event: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit production tx: %w", err)
	}
	return nil
}
