package history

import (
	"catalog-backend/internal/database"
	"catalog-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// GET /api/products/:code/history
// GET /api/suppliers/:code/history
func ListHistoryHandler(entityType string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		code := c.Params("code")

		var count int64
		var q = database.DB
		switch entityType {
		case models.EntityProduct:
			q = q.Model(&models.Product{})
		case models.EntitySupplier:
			q = q.Model(&models.Supplier{})
		default:
			return fiber.NewError(fiber.StatusBadRequest, "unknown record type")
		}
		if err := q.Where("code = ?", code).Count(&count).Error; err != nil {
			zap.L().Error("history lookup failed", zap.String("code", code), zap.Error(err))
			return fiber.NewError(fiber.StatusInternalServerError, "history could not be listed")
		}
		if count == 0 {
			return fiber.NewError(fiber.StatusNotFound, "record not found")
		}

		entries, err := ForEntity(database.DB, entityType, code)
		if err != nil {
			zap.L().Error("history list failed", zap.String("code", code), zap.Error(err))
			return fiber.NewError(fiber.StatusInternalServerError, "history could not be listed")
		}
		return c.JSON(entries)
	}
}
