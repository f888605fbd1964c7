package models

// LotAvailability is the available count of one lot for one organization,
// used by the FIFO walk and the per-lot inventory summary.
type LotAvailability struct {
	LotID           string `db:"lot_id" json:"lot_id"`
	LotNumber       string `db:"lot_number" json:"lot_number"`
	ManufactureDate string `db:"manufacture_date" json:"manufacture_date"`
	Available       int    `db:"available" json:"available"`
}

// InventorySummary is the per-lot availability breakdown for one product
// held by one organization.
type InventorySummary struct {
	ProductID      string            `json:"product_id"`
	OrganizationID string            `json:"organization_id"`
	Total          int               `json:"total"`
	Lots           []LotAvailability `json:"lots"`
}
