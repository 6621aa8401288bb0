package domain

import "github.com/shopspring/decimal"

type Product struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Code       string          `json:"code,omitempty"` // barcode or SKU, optional
	UnitPrice  decimal.Decimal `json:"unit_price"`
	ImageRef   string          `json:"image_ref,omitempty"`
	CategoryID int64           `json:"category_id"`
	Active     bool            `json:"active"`
}

type Category struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Listing is what the catalog collaborator returns for one tenant.
type Listing struct {
	Products   []Product  `json:"products"`
	Categories []Category `json:"categories"`
}
