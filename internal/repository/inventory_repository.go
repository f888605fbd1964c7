package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/meditrace/meditrace-api/internal/models"
)

// InventoryRepository derives availability from the code projection.
// Selection and commit share one transaction in the ledger repository, so
// a plain count over code rows is exact; there is no uncommitted deficit
// to subtract.
type InventoryRepository struct {
	db *sqlx.DB
}

// NewInventoryRepository constructs the repository.
func NewInventoryRepository(db *sqlx.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// Available counts IN_STOCK units of a product held by an organization,
// optionally narrowed to one lot.
func (r *InventoryRepository) Available(ctx context.Context, productID, orgID, lotID string) (int, error) {
	query := `SELECT COUNT(*) FROM virtual_codes vc
        JOIN lots l ON l.id = vc.lot_id
        WHERE l.product_id = $1 AND vc.current_owner_id = $2 AND vc.current_status = $3`
	args := []interface{}{productID, orgID, models.CodeStatusInStock}
	if lotID != "" {
		query += fmt.Sprintf(" AND vc.lot_id = $%d", len(args)+1)
		args = append(args, lotID)
	}
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count available: %w", err)
	}
	return count, nil
}

// AvailableByLot returns the candidate lots for FIFO allocation: every lot
// of the product with at least one available unit held by the organization,
// oldest manufacture date first, ties broken by lot ID.
func (r *InventoryRepository) AvailableByLot(ctx context.Context, productID, orgID string) ([]models.LotAvailability, error) {
	const query = `SELECT l.id AS lot_id, l.lot_number, to_char(l.manufacture_date, 'YYYY-MM-DD') AS manufacture_date, COUNT(vc.id) AS available
        FROM lots l
        JOIN virtual_codes vc ON vc.lot_id = l.id
        WHERE l.product_id = $1 AND vc.current_owner_id = $2 AND vc.current_status = $3
        GROUP BY l.id, l.lot_number, l.manufacture_date
        ORDER BY l.manufacture_date ASC, l.id ASC`
	var lots []models.LotAvailability
	if err := r.db.SelectContext(ctx, &lots, query, productID, orgID, models.CodeStatusInStock); err != nil {
		return nil, fmt.Errorf("list lot availability: %w", err)
	}
	return lots, nil
}
