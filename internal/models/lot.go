package models

import "time"

// Lot is one manufacturing batch of a product. Created exactly once at
// production registration together with its virtual codes, immutable
// thereafter. ManufactureDate is the FIFO sort key across lots of the
// same product.
type Lot struct {
	ID              string    `db:"id" json:"id"`
	ProductID       string    `db:"product_id" json:"product_id"`
	LotNumber       string    `db:"lot_number" json:"lot_number"`
	ManufactureDate time.Time `db:"manufacture_date" json:"manufacture_date"`
	ExpiryDate      time.Time `db:"expiry_date" json:"expiry_date"`
	Quantity        int       `db:"quantity" json:"quantity"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// LotDetail enriches Lot with product info for listings.
type LotDetail struct {
	Lot
	ProductModelName string `db:"product_model_name" json:"product_model_name"`
	ProductUdiDi     string `db:"product_udi_di" json:"product_udi_di"`
}

// LotFilter provides filters for listing lots.
type LotFilter struct {
	ProductID string
	LotNumber string
	Page      int
	PageSize  int
}
