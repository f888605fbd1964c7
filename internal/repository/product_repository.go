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

// ProductRepository handles persistence of catalog products.
type ProductRepository struct {
	db *sqlx.DB
}

// NewProductRepository constructs the repository.
func NewProductRepository(db *sqlx.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// FindByID returns a product by its ID.
func (r *ProductRepository) FindByID(ctx context.Context, id string) (*models.Product, error) {
	const query = `SELECT id, manufacturer_org_id, udi_di, model_name, is_active, deactivation_reason, deactivation_note, created_at, updated_at
        FROM products WHERE id = $1`
	var product models.Product
	if err := r.db.GetContext(ctx, &product, query, id); err != nil {
		return nil, err
	}
	return &product, nil
}

// List returns products filtered by the provided criteria.
func (r *ProductRepository) List(ctx context.Context, filter models.ProductFilter) ([]models.Product, int, error) {
	base := `FROM products`
	var conditions []string
	var args []interface{}

	if filter.ManufacturerOrgID != "" {
		conditions = append(conditions, fmt.Sprintf("manufacturer_org_id = $%d", len(args)+1))
		args = append(args, filter.ManufacturerOrgID)
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "is_active = TRUE")
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

	query := fmt.Sprintf(`SELECT id, manufacturer_org_id, udi_di, model_name, is_active, deactivation_reason, deactivation_note, created_at, updated_at
        %s ORDER BY model_name ASC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var products []models.Product
	if err := r.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}
	return products, total, nil
}

// Create persists a new product.
func (r *ProductRepository) Create(ctx context.Context, product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	const query = `INSERT INTO products (id, manufacturer_org_id, udi_di, model_name, is_active, deactivation_reason, deactivation_note, created_at, updated_at)
        VALUES (:id, :manufacturer_org_id, :udi_di, :model_name, :is_active, :deactivation_reason, :deactivation_note, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, product); err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

// Deactivate marks a product inactive with the given reason. Already-issued
// codes stay valid and traceable.
func (r *ProductRepository) Deactivate(ctx context.Context, id string, reason models.DeactivationReason, note *string) error {
	const query = `UPDATE products SET is_active = FALSE, deactivation_reason = $2, deactivation_note = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, reason, note, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate product: %w", err)
	}
	return nil
}
