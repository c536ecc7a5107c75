// Package catalog manages products: create, edit, the trash bin, photos and
// spreadsheet import/export.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"catalog-backend/internal/cache"
	"catalog-backend/internal/database"
	"catalog-backend/internal/history"
	"catalog-backend/internal/listing"
	"catalog-backend/internal/models"
	"catalog-backend/internal/photo"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxFieldLength = 100

var (
	ErrNotFound        = errors.New("product not found")
	ErrInvalid         = errors.New("invalid product")
	ErrUnknownSupplier = errors.New("supplier not found or in trash")
	ErrNoPhoto         = errors.New("product has no photo")
)

// Filters are the columns a product list may be searched by.
var Filters = map[string]string{
	"name":  "name",
	"brand": "brand",
	"code":  "code",
}

type Input struct {
	Name  string
	Brand string
	Price float64
	// URL is only written when set.
	URL *string
	// SupplierCode: nil leaves it unchanged, "" clears it.
	SupplierCode *string
}

func (in *Input) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Brand = strings.TrimSpace(in.Brand)

	switch {
	case in.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalid)
	case in.Brand == "":
		return fmt.Errorf("%w: brand is required", ErrInvalid)
	case utf8.RuneCountInString(in.Name) > maxFieldLength:
		return fmt.Errorf("%w: name must be at most %d characters", ErrInvalid, maxFieldLength)
	case utf8.RuneCountInString(in.Brand) > maxFieldLength:
		return fmt.Errorf("%w: brand must be at most %d characters", ErrInvalid, maxFieldLength)
	case math.IsNaN(in.Price) || math.IsInf(in.Price, 0):
		return fmt.Errorf("%w: price must be a finite number", ErrInvalid)
	case in.Price < 0:
		return fmt.Errorf("%w: price must not be negative", ErrInvalid)
	}

	if in.URL != nil {
		url := strings.TrimSpace(*in.URL)
		in.URL = &url
	}
	if in.SupplierCode != nil {
		code := strings.TrimSpace(*in.SupplierCode)
		in.SupplierCode = &code
	}
	return nil
}

type Service struct {
	Cache        *cache.Cache
	Photos       photo.Store
	PhotoBaseURL string
}

func NewService(c *cache.Cache, photos photo.Store, photoBaseURL string) *Service {
	return &Service{Cache: c, Photos: photos, PhotoBaseURL: photoBaseURL}
}

func (s *Service) invalidate(ctx context.Context) {
	s.Cache.InvalidateEntity(ctx, models.EntityProduct)
}

// checkSupplier fails unless code names an active supplier.
func checkSupplier(tx *gorm.DB, code string) error {
	var n int64
	err := tx.Model(&models.Supplier{}).
		Where("code = ? AND deleted = ?", code, false).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUnknownSupplier
	}
	return nil
}

func findProduct(tx *gorm.DB, code string) (*models.Product, error) {
	var p models.Product
	if err := tx.First(&p, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Service) Create(ctx context.Context, in Input, userCode string) (*models.Product, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	p := models.Product{
		Code:  uuid.NewString(),
		Name:  in.Name,
		Brand: in.Brand,
		Price: in.Price,
	}
	if in.URL != nil {
		p.URL = *in.URL
	}
	if in.SupplierCode != nil && *in.SupplierCode != "" {
		p.SupplierCode = in.SupplierCode
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if p.SupplierCode != nil {
			if err := checkSupplier(tx, *p.SupplierCode); err != nil {
				return err
			}
		}
		if err := tx.Create(&p).Error; err != nil {
			return err
		}
		return history.Append(tx, models.EntityProduct, p.Code, models.HistoryCreated, userCode)
	})
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	s.invalidate(ctx)
	return &p, nil
}

// Get returns one product with its history.
func (s *Service) Get(code string) (*models.Product, error) {
	p, err := findProduct(database.DB, code)
	if err != nil {
		return nil, err
	}
	p.History, err = history.ForEntity(database.DB, models.EntityProduct, code)
	if err != nil {
		return nil, err
	}
	return p, nil
}

type listResult struct {
	Items []models.Product `json:"items"`
	Total int64            `json:"total"`
}

// List returns one page of the addressed bin and the number of matching rows.
func (s *Service) List(ctx context.Context, p listing.Params) ([]models.Product, int64, error) {
	key, err := cache.ListKey(models.EntityProduct, p)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}

	res, err := cache.Fetch(ctx, s.Cache, key, func() (listResult, error) {
		var out listResult
		if err := database.DB.Model(&models.Product{}).Scopes(p.Match()).Count(&out.Total).Error; err != nil {
			return out, fmt.Errorf("count products: %w", err)
		}
		out.Items = make([]models.Product, 0, p.Limit)
		if err := database.DB.Scopes(p.Match(), p.Page()).Find(&out.Items).Error; err != nil {
			return out, fmt.Errorf("list products: %w", err)
		}
		return out, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return res.Items, res.Total, nil
}

// changes lists the columns in that differ from p.
func (in Input) changes(p *models.Product) map[string]any {
	out := map[string]any{}
	if in.Name != p.Name {
		out["name"] = in.Name
	}
	if in.Brand != p.Brand {
		out["brand"] = in.Brand
	}
	if in.Price != p.Price {
		out["price"] = in.Price
	}
	if in.URL != nil && *in.URL != p.URL {
		out["url"] = *in.URL
	}
	if in.SupplierCode != nil {
		switch {
		case *in.SupplierCode == "" && p.SupplierCode != nil:
			out["supplier_code"] = nil
		case *in.SupplierCode != "" && (p.SupplierCode == nil || *p.SupplierCode != *in.SupplierCode):
			out["supplier_code"] = *in.SupplierCode
		}
	}
	return out
}

// Update rewrites the editable fields and returns the stored product together
// with the number of modified records: 0 when nothing differed.
func (s *Service) Update(ctx context.Context, code string, in Input, userCode string) (*models.Product, int64, error) {
	if err := in.normalize(); err != nil {
		return nil, 0, err
	}

	var modified int64
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		p, err := findProduct(tx, code)
		if err != nil {
			return err
		}

		changes := in.changes(p)
		if sc, ok := changes["supplier_code"].(string); ok {
			if err := checkSupplier(tx, sc); err != nil {
				return err
			}
		}
		if len(changes) == 0 {
			return nil
		}

		res := tx.Model(p).Updates(changes)
		if res.Error != nil {
			return res.Error
		}
		modified = res.RowsAffected
		return history.Append(tx, models.EntityProduct, code, models.HistoryUpdated, userCode)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("update product: %w", err)
	}

	if modified > 0 {
		s.invalidate(ctx)
	}
	p, err := s.Get(code)
	if err != nil {
		return nil, 0, err
	}
	return p, modified, nil
}

// setDeleted moves a product between bins. It reports 0 when the product was
// already in the target bin.
func (s *Service) setDeleted(ctx context.Context, code string, deleted bool, action models.HistoryAction, userCode string) (int64, error) {
	var modified int64
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Product{}).
			Where("code = ? AND deleted = ?", code, !deleted).
			Update("deleted", deleted)
		if res.Error != nil {
			return res.Error
		}
		modified = res.RowsAffected
		if modified == 0 {
			_, err := findProduct(tx, code)
			return err
		}
		return history.Append(tx, models.EntityProduct, code, action, userCode)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("%s product: %w", action, err)
	}

	if modified > 0 {
		s.invalidate(ctx)
	}
	return modified, nil
}

// MoveToTrash soft-deletes a product. Its photo is kept so it can be restored.
func (s *Service) MoveToTrash(ctx context.Context, code, userCode string) (int64, error) {
	return s.setDeleted(ctx, code, true, models.HistoryTrashed, userCode)
}

func (s *Service) Restore(ctx context.Context, code, userCode string) (int64, error) {
	return s.setDeleted(ctx, code, false, models.HistoryRestored, userCode)
}

// CleanTrash removes trashed products for good, or only the one named by code
// when it is not empty. It returns the number removed and the number still in
// the trash.
func (s *Service) CleanTrash(ctx context.Context, code string) (int64, int64, error) {
	var doomed []models.Product
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		q := tx.Select("code", "photo_key").Where("deleted = ?", true)
		if code != "" {
			q = q.Where("code = ?", code)
		}
		if err := q.Find(&doomed).Error; err != nil {
			return err
		}
		if len(doomed) == 0 {
			if code != "" {
				return ErrNotFound
			}
			return nil
		}

		codes := make([]string, 0, len(doomed))
		for _, p := range doomed {
			codes = append(codes, p.Code)
		}
		if err := tx.Where("code IN ?", codes).Delete(&models.Product{}).Error; err != nil {
			return err
		}
		return history.Purge(tx, models.EntityProduct, codes)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, 0, err
		}
		return 0, 0, fmt.Errorf("clean product trash: %w", err)
	}

	for _, p := range doomed {
		if p.PhotoKey == "" {
			continue
		}
		if err := s.Photos.Delete(ctx, p.PhotoKey); err != nil {
			zap.L().Warn("photo of removed product left behind",
				zap.String("code", p.Code), zap.String("key", p.PhotoKey), zap.Error(err))
		}
	}
	if len(doomed) > 0 {
		s.invalidate(ctx)
	}

	var remaining int64
	if err := database.DB.Model(&models.Product{}).Where("deleted = ?", true).Count(&remaining).Error; err != nil {
		return 0, 0, fmt.Errorf("count product trash: %w", err)
	}
	return int64(len(doomed)), remaining, nil
}

// SetPhoto stores up as the product photo, replacing the previous one.
func (s *Service) SetPhoto(ctx context.Context, code string, up photo.Upload, userCode string) (*models.Product, error) {
	p, err := findProduct(database.DB, code)
	if err != nil {
		return nil, err
	}

	key := photo.NewKey(p.Code, up.Ext)
	if _, err := s.Photos.Put(ctx, key, up.ContentType, up.Reader()); err != nil {
		return nil, fmt.Errorf("store photo: %w", err)
	}

	oldKey := p.PhotoKey
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(p).Updates(map[string]any{
			"photo_key": key,
			"url":       photo.URL(s.PhotoBaseURL, key),
		}).Error
		if err != nil {
			return err
		}
		return history.Append(tx, models.EntityProduct, code, models.HistoryPhotoChanged, userCode)
	})
	if err != nil {
		if derr := s.Photos.Delete(ctx, key); derr != nil {
			zap.L().Warn("orphan photo left behind", zap.String("key", key), zap.Error(derr))
		}
		return nil, fmt.Errorf("set product photo: %w", err)
	}

	if oldKey != "" && oldKey != key {
		if err := s.Photos.Delete(ctx, oldKey); err != nil {
			zap.L().Warn("replaced photo left behind", zap.String("key", oldKey), zap.Error(err))
		}
	}
	s.invalidate(ctx)
	return s.Get(code)
}

// RemovePhoto deletes the product photo and clears its URL.
func (s *Service) RemovePhoto(ctx context.Context, code, userCode string) (*models.Product, error) {
	p, err := findProduct(database.DB, code)
	if err != nil {
		return nil, err
	}
	if p.PhotoKey == "" && p.URL == "" {
		return nil, ErrNoPhoto
	}

	oldKey := p.PhotoKey
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(p).Updates(map[string]any{"photo_key": "", "url": ""}).Error
		if err != nil {
			return err
		}
		return history.Append(tx, models.EntityProduct, code, models.HistoryPhotoRemoved, userCode)
	})
	if err != nil {
		return nil, fmt.Errorf("remove product photo: %w", err)
	}

	if oldKey != "" {
		if err := s.Photos.Delete(ctx, oldKey); err != nil {
			zap.L().Warn("removed photo left behind", zap.String("key", oldKey), zap.Error(err))
		}
	}
	s.invalidate(ctx)
	return s.Get(code)
}

// Active returns every product outside the trash, ordered by name.
func (s *Service) Active() ([]models.Product, error) {
	var items []models.Product
	if err := database.DB.Where("deleted = ?", false).Order("name asc").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list active products: %w", err)
	}
	return items, nil
}

// Count returns the size of the trash bin or of the active bin.
func (s *Service) Count(deleted bool) (int64, error) {
	var n int64
	if err := database.DB.Model(&models.Product{}).Where("deleted = ?", deleted).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}
