// Package server assembles the HTTP API.
package server

import (
	"errors"
	"strings"

	"catalog-backend/internal/auth"
	"catalog-backend/internal/cache"
	"catalog-backend/internal/catalog"
	"catalog-backend/internal/config"
	"catalog-backend/internal/history"
	"catalog-backend/internal/logging"
	"catalog-backend/internal/mailer"
	"catalog-backend/internal/models"
	"catalog-backend/internal/photo"
	"catalog-backend/internal/supplier"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

const minBodyLimit = 4 << 20

type Deps struct {
	Config *config.Config
	Cache  *cache.Cache
	Mailer mailer.Sender
	Photos photo.Store
}

func errorHandler(c *fiber.Ctx, err error) error {
	var e *fiber.Error
	if errors.As(err, &e) {
		return c.Status(e.Code).JSON(fiber.Map{
			"error": e.Message,
		})
	}
	zap.L().Error("unexpected error",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "unexpected server error",
	})
}

func New(d Deps) *fiber.App {
	cfg := d.Config

	app := fiber.New(fiber.Config{
		AppName:      "catalog-backend",
		ErrorHandler: errorHandler,
		// Multipart uploads carry a photo or a spreadsheet.
		BodyLimit: max(minBodyLimit, int(cfg.PhotoMaxBytes)+1<<20),
	})

	app.Use(recover.New())
	app.Use(logging.RequestLogger())

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	products := catalog.NewService(d.Cache, d.Photos, cfg.PhotoBaseURL)
	suppliers := supplier.NewService(d.Cache)
	adminOnly := auth.RequireRole(models.RoleAdmin)

	// Public photos, so <img src> works without a token. PHOTO_BASE_URL may
	// point at a CDN in front of this route.
	app.Get("/photos/*", photo.ServeHandler(d.Photos))

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register", auth.RegisterHandler())
	api.Post("/auth/login", auth.LoginHandler(cfg))
	api.Post("/auth/recovery", auth.RecoveryHandler(cfg, d.Mailer))
	api.Post("/auth/recovery/confirm", auth.RecoveryConfirmHandler())

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Get("/auth/me", auth.MeHandler())

	// Products. Fixed paths go before /:code.
	protected.Get("/products/export", catalog.ExportProductsHandler(products))
	protected.Post("/products/import", adminOnly, catalog.ImportProductsHandler(products))
	protected.Delete("/products/trash", adminOnly, catalog.CleanTrashHandler(products))
	protected.Post("/products", catalog.CreateProductHandler(products))
	protected.Get("/products", catalog.ListProductsHandler(products))
	protected.Get("/products/:code", catalog.GetProductHandler(products))
	protected.Put("/products/:code", catalog.UpdateProductHandler(products))
	protected.Delete("/products/:code", catalog.TrashProductHandler(products))
	protected.Post("/products/:code/restore", catalog.RestoreProductHandler(products))
	protected.Get("/products/:code/history", history.ListHistoryHandler(models.EntityProduct))
	protected.Post("/products/:code/photo", catalog.UploadPhotoHandler(products, cfg.PhotoMaxBytes))
	protected.Delete("/products/:code/photo", catalog.DeletePhotoHandler(products))

	// Suppliers
	protected.Get("/suppliers/select", supplier.SelectSuppliersHandler(suppliers))
	protected.Delete("/suppliers/trash", adminOnly, supplier.CleanTrashHandler(suppliers))
	protected.Post("/suppliers", supplier.CreateSupplierHandler(suppliers))
	protected.Get("/suppliers", supplier.ListSuppliersHandler(suppliers))
	protected.Get("/suppliers/:code", supplier.GetSupplierHandler(suppliers))
	protected.Put("/suppliers/:code", supplier.UpdateSupplierHandler(suppliers))
	protected.Delete("/suppliers/:code", supplier.ToggleSupplierHandler(suppliers))
	protected.Post("/suppliers/:code/restore", supplier.RestoreSupplierHandler(suppliers))
	protected.Get("/suppliers/:code/history", history.ListHistoryHandler(models.EntitySupplier))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	return app
}
