package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"catalog-backend/internal/auth"
	"catalog-backend/internal/listing"
	"catalog-backend/internal/photo"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type ProductRequest struct {
	Name         string   `json:"name"`
	Brand        string   `json:"brand"`
	Price        *float64 `json:"price"`
	URL          *string  `json:"url"`
	SupplierCode *string  `json:"supplier_code"`
}

func (r ProductRequest) input() (Input, error) {
	if r.Price == nil {
		return Input{}, fiber.NewError(fiber.StatusBadRequest, "price is required")
	}
	return Input{
		Name:         r.Name,
		Brand:        r.Brand,
		Price:        *r.Price,
		URL:          r.URL,
		SupplierCode: r.SupplierCode,
	}, nil
}

type BinChange struct {
	Code     string `json:"code"`
	Modified int64  `json:"modified"`
}

// httpError maps service errors to responses. Unknown errors are logged and
// hidden behind a generic message.
func httpError(err error, what string) error {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoPhoto):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalid), errors.Is(err, ErrUnknownSupplier):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	zap.L().Error(what+" failed", zap.Error(err))
	return fiber.NewError(fiber.StatusInternalServerError, what+" failed")
}

// activeCount is the quantity mutation responses report.
func activeCount(svc *Service) (int64, error) {
	n, err := svc.Count(false)
	if err != nil {
		return 0, httpError(err, "product count")
	}
	return n, nil
}

func parseBody(c *fiber.Ctx) (Input, error) {
	var body ProductRequest
	if err := c.BodyParser(&body); err != nil {
		return Input{}, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return body.input()
}

// POST /api/products
func CreateProductHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userCode, err := auth.UserCode(c)
		if err != nil {
			return err
		}
		in, err := parseBody(c)
		if err != nil {
			return err
		}

		p, err := svc.Create(c.UserContext(), in, userCode)
		if err != nil {
			return httpError(err, "product create")
		}
		total, err := activeCount(svc)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(listing.OK(total, p))
	}
}

// GET /api/products?skip=&limit=&deleted=&filter=&search=&order=
func ListProductsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		params, err := listing.Parse(c, Filters)
		if err != nil {
			return err
		}

		items, total, err := svc.List(c.UserContext(), params)
		if err != nil {
			return httpError(err, "product list")
		}
		return c.JSON(listing.OK(total, items))
	}
}

// GET /api/products/:code
func GetProductHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := svc.Get(c.Params("code"))
		if err != nil {
			return httpError(err, "product read")
		}
		return c.JSON(p)
	}
}

// PUT /api/products/:code
func UpdateProductHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userCode, err := auth.UserCode(c)
		if err != nil {
			return err
		}
		in, err := parseBody(c)
		if err != nil {
			return err
		}

		p, modified, err := svc.Update(c.UserContext(), c.Params("code"), in, userCode)
		if err != nil {
			return httpError(err, "product update")
		}
		total, err := activeCount(svc)
		if err != nil {
			return err
		}
		resp := listing.OK(total, p)
		resp.Message = fmt.Sprintf("OK: MODIFICATIONS - %d", modified)
		return c.JSON(resp)
	}
}

// DELETE /api/products/:code
func TrashProductHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userCode, err := auth.UserCode(c)
		if err != nil {
			return err
		}
		code := c.Params("code")

		n, err := svc.MoveToTrash(c.UserContext(), code, userCode)
		if err != nil {
			return httpError(err, "product trash")
		}
		total, err := activeCount(svc)
		if err != nil {
			return err
		}
		return c.JSON(listing.OK(total, BinChange{Code: code, Modified: n}))
	}
}

// POST /api/products/:code/restore
func RestoreProductHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userCode, err := auth.UserCode(c)
		if err != nil {
			return err
		}
		code := c.Params("code")

		n, err := svc.Restore(c.UserContext(), code, userCode)
		if err != nil {
			return httpError(err, "product restore")
		}
		total, err := activeCount(svc)
		if err != nil {
			return err
		}
		return c.JSON(listing.OK(total, BinChange{Code: code, Modified: n}))
	}
}

// DELETE /api/products/trash?code= (admin)
func CleanTrashHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		deleted, remaining, err := svc.CleanTrash(c.UserContext(), strings.TrimSpace(c.Query("code")))
		if err != nil {
			return httpError(err, "product trash cleaning")
		}
		return c.JSON(listing.OK(remaining, fiber.Map{"deleted": deleted}))
	}
}

// GET /api/products/export?format=csv|xlsx
func ExportProductsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		format := strings.ToLower(c.Query("format", "csv"))
		if format != "csv" && format != "xlsx" {
			return fiber.NewError(fiber.StatusBadRequest, "format must be csv or xlsx")
		}

		products, err := svc.Active()
		if err != nil {
			return httpError(err, "product export")
		}

		var buf bytes.Buffer
		if format == "csv" {
			err = WriteCSV(&buf, products)
			c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
		} else {
			err = WriteXLSX(&buf, products)
			c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		}
		if err != nil {
			return httpError(err, "product export")
		}

		c.Set(fiber.HeaderContentDisposition, `attachment; filename="products.`+format+`"`)
		return c.Send(buf.Bytes())
	}
}

// POST /api/products/import (admin, multipart "file")
func ImportProductsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userCode, err := auth.UserCode(c)
		if err != nil {
			return err
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "file is required")
		}
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
			return fiber.NewError(fiber.StatusBadRequest, "only .xlsx files can be imported")
		}

		file, err := fileHeader.Open()
		if err != nil {
			return httpError(err, "product import")
		}
		defer file.Close()

		rows, rejected, err := ParseSheet(file)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "spreadsheet could not be read: "+err.Error())
		}

		imported, err := svc.Import(c.UserContext(), rows, userCode)
		if err != nil {
			return httpError(err, "product import")
		}
		if rejected == nil {
			rejected = []RowError{}
		}
		return c.JSON(ImportReport{Imported: imported, Rejected: rejected})
	}
}

// POST /api/products/:code/photo (multipart "photo")
func UploadPhotoHandler(svc *Service, maxBytes int64) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userCode, err := auth.UserCode(c)
		if err != nil {
			return err
		}

		fileHeader, err := c.FormFile("photo")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "photo is required")
		}
		up, err := photo.ReadUpload(fileHeader, maxBytes)
		if err != nil {
			if fe := photo.StatusFor(err); fe != nil {
				return fe
			}
			return httpError(err, "photo upload")
		}

		p, err := svc.SetPhoto(c.UserContext(), c.Params("code"), up, userCode)
		if err != nil {
			return httpError(err, "photo upload")
		}
		total, err := activeCount(svc)
		if err != nil {
			return err
		}
		return c.JSON(listing.OK(total, p))
	}
}

// DELETE /api/products/:code/photo
func DeletePhotoHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userCode, err := auth.UserCode(c)
		if err != nil {
			return err
		}

		p, err := svc.RemovePhoto(c.UserContext(), c.Params("code"), userCode)
		if err != nil {
			return httpError(err, "photo removal")
		}
		total, err := activeCount(svc)
		if err != nil {
			return err
		}
		return c.JSON(listing.OK(total, p))
	}
}
