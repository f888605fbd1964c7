package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/meditrace/meditrace-api/internal/models"
)

// CodeRepository exposes read access to the virtual code registry. All
// writes to code state go through the ledger repository so the projection
// never drifts from the event log.
type CodeRepository struct {
	db *sqlx.DB
}

// NewCodeRepository constructs the repository.
func NewCodeRepository(db *sqlx.DB) *CodeRepository {
	return &CodeRepository{db: db}
}

// FindByCode resolves a public-facing token to its unit.
func (r *CodeRepository) FindByCode(ctx context.Context, code string) (*models.VirtualCode, error) {
	const query = `SELECT id, code, lot_id, current_owner_id, current_status, created_at, updated_at FROM virtual_codes WHERE code = $1`
	var vc models.VirtualCode
	if err := r.db.GetContext(ctx, &vc, query, code); err != nil {
		return nil, err
	}
	return &vc, nil
}

// FindByIDs returns the units for the given IDs.
func (r *CodeRepository) FindByIDs(ctx context.Context, ids []string) ([]models.VirtualCode, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id, code, lot_id, current_owner_id, current_status, created_at, updated_at FROM virtual_codes WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build codes query: %w", err)
	}
	query = r.db.Rebind(query)
	var codes []models.VirtualCode
	if err := r.db.SelectContext(ctx, &codes, query, args...); err != nil {
		return nil, fmt.Errorf("find codes by ids: %w", err)
	}
	return codes, nil
}

// SelectAvailable picks up to limit IN_STOCK units of one lot held by the
// organization, ordered by code ascending for determinism.
func (r *CodeRepository) SelectAvailable(ctx context.Context, lotID, orgID string, limit int) ([]models.CodeSelection, error) {
	const query = `SELECT id, code, lot_id FROM virtual_codes
        WHERE lot_id = $1 AND current_owner_id = $2 AND current_status = $3
        ORDER BY code ASC LIMIT $4`
	var selections []models.CodeSelection
	if err := r.db.SelectContext(ctx, &selections, query, lotID, orgID, models.CodeStatusInStock, limit); err != nil {
		return nil, fmt.Errorf("select available codes: %w", err)
	}
	return selections, nil
}

// ListByBatch returns the units touched by a batch, via its ledger events.
func (r *CodeRepository) ListByBatch(ctx context.Context, batchID string) ([]models.VirtualCode, error) {
	const query = `SELECT DISTINCT vc.id, vc.code, vc.lot_id, vc.current_owner_id, vc.current_status, vc.created_at, vc.updated_at
        FROM virtual_codes vc
        JOIN transfer_events te ON te.virtual_code_id = vc.id
        WHERE te.batch_id = $1
        ORDER BY vc.code ASC`
	var codes []models.VirtualCode
	if err := r.db.SelectContext(ctx, &codes, query, batchID); err != nil {
		return nil, fmt.Errorf("list codes by batch: %w", err)
	}
	return codes, nil
}
