package models

// EventSpec describes one ledger entry to append within a commit. The
// database assigns id and seq at insert time.
type EventSpec struct {
	Action        ActionType
	VirtualCodeID string
	FromOwnerID   *string
	ToOwnerID     *string
	Reason        *string
}

// TransferPlan is the unit of work handed to the ledger store for atomic
// commit: the batch row, the events to append, and the projection update
// to apply to the affected codes. The store locks the code rows and
// re-verifies expected owner and status before writing; a mismatch means
// the plan lost a concurrent commit race and must be rebuilt.
type TransferPlan struct {
	Batch           TransferBatch
	Events          []EventSpec
	CodeIDs         []string
	ExpectedOwnerID string
	ExpectedStatus  CodeStatus
	NewOwnerID      string
	NewStatus       CodeStatus
}

// ReversalPlan compensates a previously committed batch. GuardActions
// lists the reversing action types whose presence on the batch makes a
// second reversal invalid.
type ReversalPlan struct {
	BatchID         string
	ReversalReason  string
	GuardActions    []ActionType
	Events          []EventSpec
	CodeIDs         []string
	ExpectedOwnerID string
	ExpectedStatus  CodeStatus
	NewOwnerID      string
	NewStatus       CodeStatus
}

// TransferReceipt reports a committed plan.
type TransferReceipt struct {
	BatchID  string   `json:"batch_id"`
	EventIDs []string `json:"event_ids"`
}
