package models

import "time"

// CodeStatus is the materialized state of a virtual code, always derived
// from its latest non-reversed ledger event.
type CodeStatus string

// Possible code statuses.
const (
	CodeStatusInStock  CodeStatus = "IN_STOCK"
	CodeStatusUsed     CodeStatus = "USED"
	CodeStatusDisposed CodeStatus = "DISPOSED"
)

// VirtualCode is one serialized, individually trackable unit. Exactly one
// row per physical unit, minted in bulk when its lot is registered.
// CurrentOwnerID and CurrentStatus are a projection of the ledger and are
// only mutated inside the same transaction that appends the event.
type VirtualCode struct {
	ID             string     `db:"id" json:"id"`
	Code           string     `db:"code" json:"code"`
	LotID          string     `db:"lot_id" json:"lot_id"`
	CurrentOwnerID string     `db:"current_owner_id" json:"current_owner_id"`
	CurrentStatus  CodeStatus `db:"current_status" json:"current_status"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// CodeSelection identifies one unit chosen by the allocation engine.
type CodeSelection struct {
	VirtualCodeID string `db:"id" json:"virtual_code_id"`
	Code          string `db:"code" json:"code"`
	LotID         string `db:"lot_id" json:"lot_id"`
}

// AllocationResult is the outcome of an allocation request. Shortfall is
// non-zero when the requested quantity exceeds available stock; callers
// must then reject the whole operation.
type AllocationResult struct {
	Selections []CodeSelection `json:"selections"`
	Shortfall  int             `json:"shortfall"`
}
