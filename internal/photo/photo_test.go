package photo

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestRead(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		max      int64
		wantType string
		wantExt  string
		wantErr  error
	}{
		{"png", string(pngHeader), 1024, "image/png", ".png", nil},
		{"gif", "GIF89a\x01\x00\x01\x00", 1024, "image/gif", ".gif", nil},
		{"jpeg", "\xff\xd8\xff\xe0\x00\x10JFIF", 1024, "image/jpeg", ".jpg", nil},
		{"text", "hello, this is not an image", 1024, "", "", ErrUnsupportedType},
		{"too large", string(pngHeader), 4, "", "", ErrTooLarge},
		{"empty", "", 1024, "", "", ErrEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up, err := Read(strings.NewReader(tt.data), tt.max)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, up.ContentType)
			assert.Equal(t, tt.wantExt, up.Ext)
			assert.Len(t, up.Data, len(tt.data))
		})
	}
}

func TestNewKey(t *testing.T) {
	a := NewKey("p1", ".png")
	b := NewKey("p1", ".png")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "p1/"))
	assert.True(t, strings.HasSuffix(a, ".png"))
	assert.Equal(t, "/photos/p1/x.png", URL("/photos", "p1/x.png"))
}

func TestDiskStore(t *testing.T) {
	root := t.TempDir()
	store, err := NewDiskStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	obj, err := store.Put(ctx, "p1/a.png", "image/png", strings.NewReader("data"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), obj.Size)
	assert.FileExists(t, filepath.Join(root, "p1", "a.png"))

	rc, got, err := store.Open(ctx, "p1/a.png")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "data", string(body))
	assert.Equal(t, "image/png", got.ContentType)

	require.NoError(t, store.Delete(ctx, "p1/a.png"))
	_, err = os.Stat(filepath.Join(root, "p1", "a.png"))
	assert.True(t, os.IsNotExist(err))

	// Deleting twice is fine.
	require.NoError(t, store.Delete(ctx, "p1/a.png"))

	_, _, err = store.Open(ctx, "p1/a.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDiskStore_RejectsEscapingKeys(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"", "../x.png", "p1/../../x.png", "/etc/passwd", `p1\..\x.png`, "p1//x.png", ".", "p1/.upload-123", ".hidden/x.png"} {
		_, err := store.Put(ctx, key, "image/png", strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrInvalidKey, key)
		assert.ErrorIs(t, store.Delete(ctx, key), ErrInvalidKey, key)
	}
}

func TestServeHandler(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	_, err = store.Put(context.Background(), "p1/a.png", "image/png", strings.NewReader(string(pngHeader)))
	require.NoError(t, err)

	app := fiber.New()
	app.Get("/photos/*", ServeHandler(store))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/photos/p1/a.png", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, pngHeader, body)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/photos/p1/missing.png", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// A file still being uploaded is not served.
	require.NoError(t, os.WriteFile(filepath.Join(store.Root, "p1", ".upload-42"), pngHeader, 0o644))
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/photos/p1/.upload-42", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
