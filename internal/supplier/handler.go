package supplier

import (
	"errors"
	"fmt"
	"strings"

	"catalog-backend/internal/auth"
	"catalog-backend/internal/listing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type SupplierRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Observation string `json:"observation"`
}

type ToggleResponse struct {
	Code     string `json:"code"`
	Deleted  bool   `json:"deleted"`
	Modified int64  `json:"modified"`
}

func httpError(err error, what string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalid):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	zap.L().Error(what+" failed", zap.Error(err))
	return fiber.NewError(fiber.StatusInternalServerError, what+" failed")
}

// activeCount is the quantity mutation responses report.
func activeCount(svc *Service) (int64, error) {
	n, err := svc.Count(false)
	if err != nil {
		return 0, httpError(err, "supplier count")
	}
	return n, nil
}

func parseBody(c *fiber.Ctx) (Input, error) {
	var body SupplierRequest
	if err := c.BodyParser(&body); err != nil {
		return Input{}, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return Input(body), nil
}

// POST /api/suppliers
func CreateSupplierHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userCode, err := auth.UserCode(c)
		if err != nil {
			return err
		}
		in, err := parseBody(c)
		if err != nil {
			return err
		}

		sup, err := svc.Create(c.UserContext(), in, userCode)
		if err != nil {
			return httpError(err, "supplier create")
		}
		total, err := activeCount(svc)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(listing.OK(total, sup))
	}
}

// GET /api/suppliers?skip=&limit=&deleted=&filter=&search=&order=
func ListSuppliersHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		params, err := listing.Parse(c, Filters)
		if err != nil {
			return err
		}

		items, total, err := svc.List(c.UserContext(), params)
		if err != nil {
			return httpError(err, "supplier list")
		}
		return c.JSON(listing.OK(total, items))
	}
}

// GET /api/suppliers/select
func SelectSuppliersHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		items, err := svc.Select()
		if err != nil {
			return httpError(err, "supplier select")
		}
		return c.JSON(listing.OK(int64(len(items)), items))
	}
}

// GET /api/suppliers/:code
func GetSupplierHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sup, err := svc.Get(c.Params("code"))
		if err != nil {
			return httpError(err, "supplier read")
		}
		return c.JSON(sup)
	}
}

// PUT /api/suppliers/:code
func UpdateSupplierHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userCode, err := auth.UserCode(c)
		if err != nil {
			return err
		}
		in, err := parseBody(c)
		if err != nil {
			return err
		}

		sup, modified, err := svc.Update(c.UserContext(), c.Params("code"), in, userCode)
		if err != nil {
			return httpError(err, "supplier update")
		}
		total, err := activeCount(svc)
		if err != nil {
			return err
		}
		resp := listing.OK(total, sup)
		resp.Message = fmt.Sprintf("OK: MODIFICATIONS - %d", modified)
		return c.JSON(resp)
	}
}

// DELETE /api/suppliers/:code
func ToggleSupplierHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userCode, err := auth.UserCode(c)
		if err != nil {
			return err
		}
		code := c.Params("code")

		deleted, err := svc.Toggle(c.UserContext(), code, userCode)
		if err != nil {
			return httpError(err, "supplier delete")
		}
		total, err := activeCount(svc)
		if err != nil {
			return err
		}
		return c.JSON(listing.OK(total, ToggleResponse{Code: code, Deleted: deleted, Modified: 1}))
	}
}

// POST /api/suppliers/:code/restore
func RestoreSupplierHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userCode, err := auth.UserCode(c)
		if err != nil {
			return err
		}
		code := c.Params("code")

		n, err := svc.Restore(c.UserContext(), code, userCode)
		if err != nil {
			return httpError(err, "supplier restore")
		}
		total, err := activeCount(svc)
		if err != nil {
			return err
		}
		return c.JSON(listing.OK(total, ToggleResponse{Code: code, Deleted: false, Modified: n}))
	}
}

// DELETE /api/suppliers/trash?code= (admin)
func CleanTrashHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		deleted, remaining, err := svc.CleanTrash(c.UserContext(), strings.TrimSpace(c.Query("code")))
		if err != nil {
			return httpError(err, "supplier trash cleaning")
		}
		return c.JSON(listing.OK(remaining, fiber.Map{"deleted": deleted}))
	}
}
