package models

import "time"

// DeactivationReason explains why a product was pulled from the catalog.
type DeactivationReason string

// Possible deactivation reasons.
const (
	DeactivationDiscontinued DeactivationReason = "DISCONTINUED"
	DeactivationSafetyIssue  DeactivationReason = "SAFETY_ISSUE"
	DeactivationQualityIssue DeactivationReason = "QUALITY_ISSUE"
	DeactivationOther        DeactivationReason = "OTHER"
)

// Product is a catalog entry owned by one manufacturer. Identity is
// immutable; deactivation never invalidates already-issued codes.
type Product struct {
	ID                 string              `db:"id" json:"id"`
	ManufacturerOrgID  string              `db:"manufacturer_org_id" json:"manufacturer_org_id"`
	UdiDi              string              `db:"udi_di" json:"udi_di"`
	ModelName          string              `db:"model_name" json:"model_name"`
	IsActive           bool                `db:"is_active" json:"is_active"`
	DeactivationReason *DeactivationReason `db:"deactivation_reason" json:"deactivation_reason,omitempty"`
	DeactivationNote   *string             `db:"deactivation_note" json:"deactivation_note,omitempty"`
	CreatedAt          time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time           `db:"updated_at" json:"updated_at"`
}

// ProductFilter provides filters for listing products.
type ProductFilter struct {
	ManufacturerOrgID string
	ActiveOnly        bool
	Page              int
	PageSize          int
}
