package models

import "time"

// ActionType tags a ledger entry. The set is closed; the transfer and
// reversal services switch exhaustively over it.
type ActionType string

// Ledger action types.
const (
	ActionProduced       ActionType = "PRODUCED"
	ActionShipped        ActionType = "SHIPPED"
	ActionReceived       ActionType = "RECEIVED"
	ActionTreated        ActionType = "TREATED"
	ActionRecalled       ActionType = "RECALLED"
	ActionReturnSent     ActionType = "RETURN_SENT"
	ActionReturnReceived ActionType = "RETURN_RECEIVED"
	ActionDisposed       ActionType = "DISPOSED"
)

// DisposalReason categorizes a disposal.
type DisposalReason string

// Possible disposal reasons.
const (
	DisposalLoss      DisposalReason = "LOSS"
	DisposalExpired   DisposalReason = "EXPIRED"
	DisposalDefective DisposalReason = "DEFECTIVE"
	DisposalOther     DisposalReason = "OTHER"
)

// TransferEvent is one immutable ledger entry. Events are never updated or
// deleted; a reversal appends new events referencing the same batch. Seq is
// assigned by the database and is the authoritative per-code ordering;
// wall-clock event times alone are not reliable under concurrent writes.
type TransferEvent struct {
	ID            string     `db:"id" json:"id"`
	Seq           int64      `db:"seq" json:"seq"`
	BatchID       string     `db:"batch_id" json:"batch_id"`
	Action        ActionType `db:"action" json:"action"`
	VirtualCodeID string     `db:"virtual_code_id" json:"virtual_code_id"`
	FromOwnerID   *string    `db:"from_owner_id" json:"from_owner_id,omitempty"`
	ToOwnerID     *string    `db:"to_owner_id" json:"to_owner_id,omitempty"`
	EventTime     time.Time  `db:"event_time" json:"event_time"`
	Reason        *string    `db:"reason" json:"reason,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// EventDetail enriches TransferEvent with registry context for history views.
type EventDetail struct {
	TransferEvent
	Code             string `db:"code" json:"code"`
	LotNumber        string `db:"lot_number" json:"lot_number"`
	ProductModelName string `db:"product_model_name" json:"product_model_name"`
}

// BatchType classifies what one transfer invocation did.
type BatchType string

// Possible batch types.
const (
	BatchTypeProduction BatchType = "PRODUCTION"
	BatchTypeShipment   BatchType = "SHIPMENT"
	BatchTypeTreatment  BatchType = "TREATMENT"
	BatchTypeDisposal   BatchType = "DISPOSAL"
)

// TransferBatch groups the events created by one logical operation. It is a
// convenience aggregate: IsReversed mirrors the presence of reversing events
// for reporting, but the reversal services treat the ledger as authoritative.
type TransferBatch struct {
	ID             string     `db:"id" json:"id"`
	BatchType      BatchType  `db:"batch_type" json:"batch_type"`
	FromOrgID      *string    `db:"from_org_id" json:"from_org_id,omitempty"`
	ToOrgID        *string    `db:"to_org_id" json:"to_org_id,omitempty"`
	PatientContact *string    `db:"patient_contact" json:"patient_contact,omitempty"`
	TotalQuantity  int        `db:"total_quantity" json:"total_quantity"`
	Reason         *string    `db:"reason" json:"reason,omitempty"`
	IsReversed     bool       `db:"is_reversed" json:"is_reversed"`
	ReversalReason *string    `db:"reversal_reason" json:"reversal_reason,omitempty"`
	ReversedAt     *time.Time `db:"reversed_at" json:"reversed_at,omitempty"`
	EventTime      time.Time  `db:"event_time" json:"event_time"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// EventFilter provides filters for ledger history queries.
type EventFilter struct {
	From      *time.Time
	To        *time.Time
	Action    ActionType
	LotNumber string
	ProductID string
	OrgID     string
	BatchID   string
	Page      int
	PageSize  int
}
