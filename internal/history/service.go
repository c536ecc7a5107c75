package history

import (
	"fmt"
	"strings"
	"time"

	"catalog-backend/internal/models"

	"gorm.io/gorm"
)

const userPlaceholder = "@USER"

var messages = map[models.HistoryAction]string{
	models.HistoryCreated:      "Created by @USER",
	models.HistoryUpdated:      "Updated by @USER",
	models.HistoryTrashed:      "Moved to trash by @USER",
	models.HistoryRestored:     "Restored by @USER",
	models.HistoryPhotoChanged: "Photo changed by @USER",
	models.HistoryPhotoRemoved: "Photo removed by @USER",
}

// now is swapped in tests.
var now = time.Now

// Message renders the history line for action performed by userCode.
func Message(action models.HistoryAction, userCode string) string {
	tmpl, ok := messages[action]
	if !ok {
		tmpl = string(action) + " by " + userPlaceholder
	}
	return strings.ReplaceAll(tmpl, userPlaceholder, userCode)
}

// Append records one history line. Pass the mutation's transaction so that the
// entry is committed or rolled back together with the change it describes.
func Append(tx *gorm.DB, entityType, entityCode string, action models.HistoryAction, userCode string) error {
	entry := models.HistoryEntry{
		EntityType: entityType,
		EntityCode: entityCode,
		Action:     action,
		Date:       now(),
		Message:    Message(action, userCode),
		UserCode:   userCode,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("history entry could not be saved: %w", err)
	}
	return nil
}

// ForEntity lists the history of one record, oldest first.
func ForEntity(db *gorm.DB, entityType, entityCode string) ([]models.HistoryEntry, error) {
	var entries []models.HistoryEntry
	err := db.Where("entity_type = ? AND entity_code = ?", entityType, entityCode).
		Order("date asc, id asc").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("history could not be listed: %w", err)
	}
	return entries, nil
}

// Purge drops the history of records that were removed for good.
func Purge(tx *gorm.DB, entityType string, entityCodes []string) error {
	if len(entityCodes) == 0 {
		return nil
	}
	err := tx.Where("entity_type = ? AND entity_code IN ?", entityType, entityCodes).
		Delete(&models.HistoryEntry{}).Error
	if err != nil {
		return fmt.Errorf("history could not be purged: %w", err)
	}
	return nil
}
