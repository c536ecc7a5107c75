package models

import "time"

type Product struct {
	Code         string    `gorm:"primaryKey;size:36" json:"code"`
	Name         string    `gorm:"size:100;not null;index" json:"name"`
	Brand        string    `gorm:"size:100;not null;index" json:"brand"`
	Price        float64   `gorm:"not null;default:0" json:"price"`
	URL          string    `gorm:"size:500" json:"url"`
	PhotoKey     string    `gorm:"size:255" json:"-"`
	SupplierCode *string   `gorm:"size:36;index" json:"supplier_code"`
	Deleted      bool      `gorm:"not null;default:false;index" json:"deleted"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	History []HistoryEntry `gorm:"-" json:"history,omitempty"`
}

type Supplier struct {
	Code        string    `gorm:"primaryKey;size:36" json:"code"`
	Name        string    `gorm:"size:200;not null;index" json:"name"`
	Email       string    `gorm:"size:100" json:"email"`
	Phone       string    `gorm:"size:30" json:"phone"`
	Observation string    `gorm:"size:500" json:"observation"`
	Deleted     bool      `gorm:"not null;default:false;index" json:"deleted"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	History []HistoryEntry `gorm:"-" json:"history,omitempty"`
}

// SupplierSelect is the short form used by product forms to pick a supplier.
type SupplierSelect struct {
	Code string `json:"code"`
	Name string `json:"name"`
}
