package models

import "time"

type HistoryAction string

const (
	HistoryCreated      HistoryAction = "created"
	HistoryUpdated      HistoryAction = "updated"
	HistoryTrashed      HistoryAction = "trashed"
	HistoryRestored     HistoryAction = "restored"
	HistoryPhotoChanged HistoryAction = "photo_changed"
	HistoryPhotoRemoved HistoryAction = "photo_removed"
)

const (
	EntityProduct  = "product"
	EntitySupplier = "supplier"
)

type HistoryEntry struct {
	ID uint `gorm:"primaryKey" json:"-"`

	// "product" or "supplier"
	EntityType string `gorm:"size:20;index:idx_history_entity" json:"-"`
	EntityCode string `gorm:"size:36;index:idx_history_entity" json:"-"`

	Action   HistoryAction `gorm:"size:20" json:"action"`
	Date     time.Time     `json:"date"`
	Message  string        `gorm:"size:255" json:"message"`
	UserCode string        `gorm:"size:36" json:"user_code"`
}
