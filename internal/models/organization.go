package models

import "time"

// OrgType identifies a party's position in the supply chain.
type OrgType string

// Supported organization types.
const (
	OrgTypeManufacturer OrgType = "MANUFACTURER"
	OrgTypeDistributor  OrgType = "DISTRIBUTOR"
	OrgTypeHospital     OrgType = "HOSPITAL"
	OrgTypeAdmin        OrgType = "ADMIN"
)

// OrgStatus represents the approval lifecycle of an organization.
type OrgStatus string

// Possible organization statuses.
const (
	OrgStatusPendingApproval OrgStatus = "PENDING_APPROVAL"
	OrgStatusActive          OrgStatus = "ACTIVE"
	OrgStatusInactive        OrgStatus = "INACTIVE"
	OrgStatusDeleted         OrgStatus = "DELETED"
)

// Organization is a party that can hold virtual codes: manufacturer,
// distributor, or hospital. Status is flipped by the admin approval
// workflow; the traceability core only reads it.
type Organization struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	OrgType    OrgType   `db:"org_type" json:"org_type"`
	Status     OrgStatus `db:"status" json:"status"`
	CodePrefix string    `db:"code_prefix" json:"code_prefix"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// OrganizationFilter provides filters for listing organizations.
type OrganizationFilter struct {
	OrgType  OrgType
	Status   OrgStatus
	Page     int
	PageSize int
}
