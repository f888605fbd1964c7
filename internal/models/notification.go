package models

import "time"

// NotificationType identifies the outbound message kind.
type NotificationType string

// Possible notification types.
const (
	NotificationTreatment NotificationType = "TREATMENT"
	NotificationRecall    NotificationType = "RECALL"
)

// Notification is handed to the external dispatch collaborator after a
// successful commit. Delivery failure never rolls back the ledger.
type Notification struct {
	Type             NotificationType       `json:"type"`
	RecipientContact string                 `json:"recipient_contact"`
	BatchID          string                 `json:"batch_id"`
	Payload          map[string]interface{} `json:"payload,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
}
