package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"catalog-backend/internal/config"
	"catalog-backend/internal/database/dbtest"
	"catalog-backend/internal/photo"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopSender struct{}

func (nopSender) Send(context.Context, string, string, string) error { return nil }

type envelope struct {
	Quantity int64           `json:"quantity"`
	Response json.RawMessage `json:"response"`
	Message  string          `json:"message"`
}

type product struct {
	Code  string  `json:"code"`
	Name  string  `json:"name"`
	Brand string  `json:"brand"`
	Price float64 `json:"price"`
	URL   string  `json:"url"`
}

func setupApp(t *testing.T) *fiber.App {
	t.Helper()
	dbtest.SetupTestDB(t)

	store, err := photo.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{
		JWTSecret:     "0123456789abcdef0123456789abcdef",
		JWTTTL:        time.Hour,
		CORSOrigins:   "http://localhost:4200",
		PhotoBaseURL:  "/photos",
		PhotoMaxBytes: 1024,
		ResetTokenTTL: time.Hour,
	}
	return New(Deps{Config: cfg, Mailer: nopSender{}, Photos: store})
}

func do(t *testing.T, app *fiber.App, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return send(t, app, req)
}

func send(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func login(t *testing.T, app *fiber.App, name, email string) string {
	t.Helper()
	creds := map[string]string{"name": name, "email": email, "password": "password123"}
	resp, _ := do(t, app, http.MethodPost, "/api/auth/register", "", creds)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, data := do(t, app, http.MethodPost, "/api/auth/login", "", creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func decode(t *testing.T, data []byte) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestProductFlow(t *testing.T) {
	app := setupApp(t)
	admin := login(t, app, "Admin", "admin@catalog.test")
	operator := login(t, app, "Op", "op@catalog.test")

	resp, data := do(t, app, http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(data), `"error"`)

	resp, data = do(t, app, http.MethodPost, "/api/products", operator, map[string]any{"name": "", "brand": "Acme", "price": 1})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(data), "name is required")

	resp, data = do(t, app, http.MethodPost, "/api/products", operator, map[string]any{"name": "Milk", "brand": "Acme", "price": 1.5})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	env := decode(t, data)
	assert.Equal(t, "OK", env.Message)
	assert.Equal(t, int64(1), env.Quantity)
	var created product
	require.NoError(t, json.Unmarshal(env.Response, &created))
	require.NotEmpty(t, created.Code)

	for _, name := range []string{"Butter", "Cheese"} {
		resp, data = do(t, app, http.MethodPost, "/api/products", operator, map[string]any{"name": name, "brand": "Acme", "price": 3})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	assert.Equal(t, int64(3), decode(t, data).Quantity)

	resp, data = do(t, app, http.MethodGet, "/api/products?filter=name&search=MIL", operator, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), decode(t, data).Quantity)

	resp, _ = do(t, app, http.MethodGet, "/api/products?filter=price&search=1", operator, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, data = do(t, app, http.MethodPut, "/api/products/"+created.Code, operator, map[string]any{"name": "Whole milk", "brand": "Acme", "price": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	env = decode(t, data)
	assert.Equal(t, "OK: MODIFICATIONS - 1", env.Message)
	assert.Equal(t, int64(3), env.Quantity)
	var updated product
	require.NoError(t, json.Unmarshal(env.Response, &updated))
	assert.Equal(t, "Whole milk", updated.Name)

	resp, data = do(t, app, http.MethodPut, "/api/products/"+created.Code, operator, map[string]any{"name": "Whole milk", "brand": "Acme", "price": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK: MODIFICATIONS - 0", decode(t, data).Message)

	// Photo upload, then the public URL serves it.
	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, err := mw.CreateFormFile("photo", "milk.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/products/"+created.Code+"/photo", &form)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+operator)
	resp, data = send(t, app, req)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var withPhoto product
	require.NoError(t, json.Unmarshal(decode(t, data).Response, &withPhoto))
	require.True(t, strings.HasPrefix(withPhoto.URL, "/photos/"+created.Code+"/"))

	resp, _ = do(t, app, http.MethodGet, withPhoto.URL, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	// Trash, then only the trash bin lists it.
	resp, data = do(t, app, http.MethodDelete, "/api/products/"+created.Code, operator, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	env = decode(t, data)
	assert.Equal(t, int64(2), env.Quantity)
	assert.JSONEq(t, `{"code":"`+created.Code+`","modified":1}`, string(env.Response))

	_, data = do(t, app, http.MethodGet, "/api/products", operator, nil)
	assert.Equal(t, int64(2), decode(t, data).Quantity)
	_, data = do(t, app, http.MethodGet, "/api/products?deleted=true", operator, nil)
	assert.Equal(t, int64(1), decode(t, data).Quantity)

	resp, data = do(t, app, http.MethodGet, "/api/products/"+created.Code+"/history", operator, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal(data, &entries))
	assert.Len(t, entries, 4)

	resp, _ = do(t, app, http.MethodDelete, "/api/products/trash", operator, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, data = do(t, app, http.MethodDelete, "/api/products/trash", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, decode(t, data).Quantity)

	resp, _ = do(t, app, http.MethodGet, withPhoto.URL, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, app, http.MethodGet, "/api/products/"+created.Code, operator, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSupplierFlow(t *testing.T) {
	app := setupApp(t)
	token := login(t, app, "Admin", "admin@catalog.test")

	resp, data := do(t, app, http.MethodPost, "/api/suppliers", token, map[string]any{"name": "Dairy", "email": "sales@dairy.test"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sup struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(decode(t, data).Response, &sup))

	resp, data = do(t, app, http.MethodGet, "/api/suppliers/select", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), decode(t, data).Quantity)

	resp, _ = do(t, app, http.MethodPost, "/api/products", token, map[string]any{"name": "Milk", "brand": "Acme", "price": 1, "supplier_code": sup.Code})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, data = do(t, app, http.MethodDelete, "/api/suppliers/"+sup.Code, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"deleted":true`)
	assert.Zero(t, decode(t, data).Quantity)

	resp, _ = do(t, app, http.MethodPost, "/api/products", token, map[string]any{"name": "Milk", "brand": "Acme", "price": 1, "supplier_code": sup.Code})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, data = do(t, app, http.MethodDelete, "/api/suppliers/"+sup.Code, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"deleted":false`)
	assert.Equal(t, int64(1), decode(t, data).Quantity)
}

func TestExport(t *testing.T) {
	app := setupApp(t)
	token := login(t, app, "Admin", "admin@catalog.test")

	resp, _ := do(t, app, http.MethodPost, "/api/products", token, map[string]any{"name": "Milk", "brand": "Acme", "price": 1})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, data := do(t, app, http.MethodGet, "/api/products/export?format=csv", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/csv"))
	assert.Contains(t, string(data), "Milk")

	resp, _ = do(t, app, http.MethodGet, "/api/products/export?format=pdf", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
