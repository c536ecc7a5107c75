// Package supplier manages the suppliers products can be linked to.
package supplier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"catalog-backend/internal/cache"
	"catalog-backend/internal/database"
	"catalog-backend/internal/history"
	"catalog-backend/internal/listing"
	"catalog-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	maxNameLength        = 200
	maxObservationLength = 500
)

var (
	ErrNotFound = errors.New("supplier not found")
	ErrInvalid  = errors.New("invalid supplier")
)

var Filters = map[string]string{
	"name":  "name",
	"email": "email",
	"phone": "phone",
}

type Input struct {
	Name        string
	Email       string
	Phone       string
	Observation string
}

func (in *Input) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.Observation = strings.TrimSpace(in.Observation)

	switch {
	case in.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalid)
	case utf8.RuneCountInString(in.Name) > maxNameLength:
		return fmt.Errorf("%w: name must be at most %d characters", ErrInvalid, maxNameLength)
	case in.Email != "" && !strings.Contains(in.Email, "@"):
		return fmt.Errorf("%w: email is not valid", ErrInvalid)
	case utf8.RuneCountInString(in.Observation) > maxObservationLength:
		return fmt.Errorf("%w: observation must be at most %d characters", ErrInvalid, maxObservationLength)
	}
	return nil
}

// changes lists the columns in that differ from sup.
func (in Input) changes(sup *models.Supplier) map[string]any {
	out := map[string]any{}
	if in.Name != sup.Name {
		out["name"] = in.Name
	}
	if in.Email != sup.Email {
		out["email"] = in.Email
	}
	if in.Phone != sup.Phone {
		out["phone"] = in.Phone
	}
	if in.Observation != sup.Observation {
		out["observation"] = in.Observation
	}
	return out
}

type Service struct {
	Cache *cache.Cache
}

func NewService(c *cache.Cache) *Service {
	return &Service{Cache: c}
}

func (s *Service) invalidate(ctx context.Context) {
	s.Cache.InvalidateEntity(ctx, models.EntitySupplier)
}

func findSupplier(tx *gorm.DB, code string) (*models.Supplier, error) {
	var sup models.Supplier
	if err := tx.First(&sup, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sup, nil
}

func (s *Service) Create(ctx context.Context, in Input, userCode string) (*models.Supplier, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	sup := models.Supplier{
		Code:        uuid.NewString(),
		Name:        in.Name,
		Email:       in.Email,
		Phone:       in.Phone,
		Observation: in.Observation,
	}
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&sup).Error; err != nil {
			return err
		}
		return history.Append(tx, models.EntitySupplier, sup.Code, models.HistoryCreated, userCode)
	})
	if err != nil {
		return nil, fmt.Errorf("create supplier: %w", err)
	}

	s.invalidate(ctx)
	return &sup, nil
}

func (s *Service) Get(code string) (*models.Supplier, error) {
	sup, err := findSupplier(database.DB, code)
	if err != nil {
		return nil, err
	}
	sup.History, err = history.ForEntity(database.DB, models.EntitySupplier, code)
	if err != nil {
		return nil, err
	}
	return sup, nil
}

type listResult struct {
	Items []models.Supplier `json:"items"`
	Total int64             `json:"total"`
}

func (s *Service) List(ctx context.Context, p listing.Params) ([]models.Supplier, int64, error) {
	key, err := cache.ListKey(models.EntitySupplier, p)
	if err != nil {
		return nil, 0, fmt.Errorf("list suppliers: %w", err)
	}

	res, err := cache.Fetch(ctx, s.Cache, key, func() (listResult, error) {
		var out listResult
		if err := database.DB.Model(&models.Supplier{}).Scopes(p.Match()).Count(&out.Total).Error; err != nil {
			return out, fmt.Errorf("count suppliers: %w", err)
		}
		out.Items = make([]models.Supplier, 0, p.Limit)
		if err := database.DB.Scopes(p.Match(), p.Page()).Find(&out.Items).Error; err != nil {
			return out, fmt.Errorf("list suppliers: %w", err)
		}
		return out, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return res.Items, res.Total, nil
}

// Select returns code and name of every active supplier, for pickers.
func (s *Service) Select() ([]models.SupplierSelect, error) {
	out := []models.SupplierSelect{}
	err := database.DB.Model(&models.Supplier{}).
		Select("code", "name").
		Where("deleted = ?", false).
		Order("name asc").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("select suppliers: %w", err)
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, code string, in Input, userCode string) (*models.Supplier, int64, error) {
	if err := in.normalize(); err != nil {
		return nil, 0, err
	}

	var modified int64
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		sup, err := findSupplier(tx, code)
		if err != nil {
			return err
		}
		changes := in.changes(sup)
		if len(changes) == 0 {
			return nil
		}
		res := tx.Model(sup).Updates(changes)
		if res.Error != nil {
			return res.Error
		}
		modified = res.RowsAffected
		return history.Append(tx, models.EntitySupplier, code, models.HistoryUpdated, userCode)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("update supplier: %w", err)
	}

	if modified > 0 {
		s.invalidate(ctx)
	}
	sup, err := s.Get(code)
	if err != nil {
		return nil, 0, err
	}
	return sup, modified, nil
}

// Toggle flips the trash flag: an active supplier goes to the trash and a
// trashed one comes back. It returns the new state.
func (s *Service) Toggle(ctx context.Context, code, userCode string) (bool, error) {
	var deleted bool
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		sup, err := findSupplier(tx, code)
		if err != nil {
			return err
		}
		deleted = !sup.Deleted
		if err := tx.Model(sup).Update("deleted", deleted).Error; err != nil {
			return err
		}
		action := models.HistoryTrashed
		if !deleted {
			action = models.HistoryRestored
		}
		return history.Append(tx, models.EntitySupplier, code, action, userCode)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, err
		}
		return false, fmt.Errorf("toggle supplier: %w", err)
	}

	s.invalidate(ctx)
	return deleted, nil
}

// Restore brings a trashed supplier back. It reports 0 for an active one.
func (s *Service) Restore(ctx context.Context, code, userCode string) (int64, error) {
	var modified int64
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Supplier{}).
			Where("code = ? AND deleted = ?", code, true).
			Update("deleted", false)
		if res.Error != nil {
			return res.Error
		}
		modified = res.RowsAffected
		if modified == 0 {
			_, err := findSupplier(tx, code)
			return err
		}
		return history.Append(tx, models.EntitySupplier, code, models.HistoryRestored, userCode)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("restore supplier: %w", err)
	}

	if modified > 0 {
		s.invalidate(ctx)
	}
	return modified, nil
}

// CleanTrash removes trashed suppliers for good (or just code) and unlinks
// the products that pointed at them.
func (s *Service) CleanTrash(ctx context.Context, code string) (int64, int64, error) {
	var codes []string
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.Supplier{}).Where("deleted = ?", true)
		if code != "" {
			q = q.Where("code = ?", code)
		}
		if err := q.Pluck("code", &codes).Error; err != nil {
			return err
		}
		if len(codes) == 0 {
			if code != "" {
				return ErrNotFound
			}
			return nil
		}

		err := tx.Model(&models.Product{}).
			Where("supplier_code IN ?", codes).
			Update("supplier_code", nil).Error
		if err != nil {
			return err
		}
		if err := tx.Where("code IN ?", codes).Delete(&models.Supplier{}).Error; err != nil {
			return err
		}
		return history.Purge(tx, models.EntitySupplier, codes)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, 0, err
		}
		return 0, 0, fmt.Errorf("clean supplier trash: %w", err)
	}

	if len(codes) > 0 {
		s.invalidate(ctx)
		s.Cache.InvalidateEntity(ctx, models.EntityProduct)
	}

	var remaining int64
	if err := database.DB.Model(&models.Supplier{}).Where("deleted = ?", true).Count(&remaining).Error; err != nil {
		return 0, 0, fmt.Errorf("count supplier trash: %w", err)
	}
	return int64(len(codes)), remaining, nil
}

// Count returns the size of the trash bin or of the active bin.
func (s *Service) Count(deleted bool) (int64, error) {
	var n int64
	if err := database.DB.Model(&models.Supplier{}).Where("deleted = ?", deleted).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count suppliers: %w", err)
	}
	return n, nil
}
