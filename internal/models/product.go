package models

import "time"

// Product is a user-owned item monitored for recalls. At least one of UPC,
// VIN, or Brand+Category is set. The core only reads products; CRUD is
// owned by the API layer.
type Product struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	UPC       string    `json:"upc,omitempty" db:"upc"`
	VIN       string    `json:"vin,omitempty" db:"vin"`
	Brand     string    `json:"brand,omitempty" db:"brand"`
	Category  string    `json:"category,omitempty" db:"category"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
