// Package photo validates uploaded product photos and keeps them in an object
// store addressed by key.
package photo

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrTooLarge        = errors.New("photo is too large")
	ErrUnsupportedType = errors.New("photo must be a jpeg, png, webp or gif image")
	ErrEmpty           = errors.New("photo is empty")
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Upload is a validated photo ready to be stored.
type Upload struct {
	Data        []byte
	ContentType string
	Ext         string
}

func (u Upload) Reader() io.Reader { return bytes.NewReader(u.Data) }

// ReadUpload reads the multipart file and checks size and sniffed content type.
// The declared Content-Type of the part is ignored.
func ReadUpload(fh *multipart.FileHeader, maxBytes int64) (Upload, error) {
	if fh.Size > maxBytes {
		return Upload{}, ErrTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return Upload{}, fmt.Errorf("photo could not be opened: %w", err)
	}
	defer f.Close()

	return Read(f, maxBytes)
}

// Read is ReadUpload for a plain reader.
func Read(r io.Reader, maxBytes int64) (Upload, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return Upload{}, fmt.Errorf("photo could not be read: %w", err)
	}
	if len(data) == 0 {
		return Upload{}, ErrEmpty
	}
	if int64(len(data)) > maxBytes {
		return Upload{}, ErrTooLarge
	}

	contentType := http.DetectContentType(data)
	ext, ok := extensions[contentType]
	if !ok {
		return Upload{}, ErrUnsupportedType
	}
	return Upload{Data: data, ContentType: contentType, Ext: ext}, nil
}

// NewKey returns a fresh key for a photo of the product with code owner.
func NewKey(owner, ext string) string {
	return owner + "/" + uuid.NewString() + ext
}

// URL joins the public base URL and key.
func URL(baseURL, key string) string {
	return baseURL + "/" + key
}

// StatusFor maps upload errors to HTTP errors.
func StatusFor(err error) *fiber.Error {
	switch {
	case errors.Is(err, ErrTooLarge):
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, ErrUnsupportedType):
		return fiber.NewError(fiber.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, ErrEmpty):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

// GET /photos/*
func ServeHandler(store Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Params("*")

		rc, obj, err := store.Open(c.UserContext(), key)
		if err != nil {
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidKey) {
				return fiber.NewError(fiber.StatusNotFound, "photo not found")
			}
			zap.L().Error("photo open failed", zap.String("key", key), zap.Error(err))
			return fiber.NewError(fiber.StatusInternalServerError, "photo could not be read")
		}

		c.Set(fiber.HeaderContentType, obj.ContentType)
		// Keys are never reused, so a stored photo never changes.
		c.Set(fiber.HeaderCacheControl, "public, max-age=31536000, immutable")
		return c.SendStream(rc, int(obj.Size))
	}
}
