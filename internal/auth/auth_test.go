package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"catalog-backend/internal/config"
	"catalog-backend/internal/database"
	"catalog-backend/internal/database/dbtest"
	"catalog-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type capturedMail struct {
	to, subject, body string
}

type fakeSender struct {
	sent []capturedMail
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) error {
	f.sent = append(f.sent, capturedMail{to, subject, body})
	return nil
}

func TestGenerateAndParseToken(t *testing.T) {
	user := &models.User{ID: 7, Code: "u-7", Email: "a@b.c", Role: models.RoleAdmin}

	token, err := GenerateToken(testSecret, time.Hour, user)
	require.NoError(t, err)

	claims, err := ParseToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "u-7", claims.UserCode)
	assert.Equal(t, models.RoleAdmin, claims.Role)

	_, err = ParseToken("another-secret-another-secret-xx", token)
	assert.Error(t, err)

	expired, err := GenerateToken(testSecret, -time.Minute, user)
	require.NoError(t, err)
	_, err = ParseToken(testSecret, expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParseToken_RejectsOtherAlgorithms(t *testing.T) {
	claims := &JWTCustomClaims{UserCode: "u-1", RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = ParseToken(testSecret, token)
	assert.Error(t, err)
}

func TestJWTMiddleware(t *testing.T) {
	cfg := &config.Config{JWTSecret: testSecret}
	valid, err := GenerateToken(testSecret, time.Hour, &models.User{ID: 1, Code: "u-1", Role: models.RoleOperator})
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid token", "Bearer " + valid, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", JWTMiddleware(cfg), func(c *fiber.Ctx) error {
				code, err := UserCode(c)
				if err != nil {
					return err
				}
				return c.SendString(code)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestRequireRole(t *testing.T) {
	app := fiber.New()
	app.Get("/admin", func(c *fiber.Ctx) error {
		c.Locals(CtxUserRoleKey, models.UserRole(c.Query("role")))
		return c.Next()
	}, RequireRole(models.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin?role=admin", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/admin?role=operator", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRegister_FirstUserIsAdmin(t *testing.T) {
	dbtest.SetupTestDB(t)

	first, err := Register(RegisterInput{Name: "Ana", Email: " Ana@Example.com ", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, first.Role)
	assert.Equal(t, "ana@example.com", first.Email)
	assert.NotEmpty(t, first.Code)
	assert.NotEqual(t, "secret123", first.PasswordHash)

	second, err := Register(RegisterInput{Name: "Bia", Email: "bia@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleOperator, second.Role)

	_, err = Register(RegisterInput{Name: "Ana 2", Email: "ANA@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = Register(RegisterInput{Name: "Short", Email: "s@example.com", Password: "123"})
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestRegister_LongPassword(t *testing.T) {
	dbtest.SetupTestDB(t)

	long := strings.Repeat("p", maxPasswordLength+1)
	_, err := Register(RegisterInput{Name: "Ana", Email: "ana@example.com", Password: long})
	assert.ErrorIs(t, err, ErrLongPassword)

	app := fiber.New()
	app.Post("/register", RegisterHandler())

	req := httptest.NewRequest(http.MethodPost, "/register",
		strings.NewReader(`{"name":"Ana","email":"ana@example.com","password":"`+long+`"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Exactly the limit is fine.
	_, err = Register(RegisterInput{Name: "Ana", Email: "ana@example.com", Password: long[1:]})
	assert.NoError(t, err)
}

func TestAuthenticate(t *testing.T) {
	dbtest.SetupTestDB(t)
	_, err := Register(RegisterInput{Name: "Ana", Email: "ana@example.com", Password: "secret123"})
	require.NoError(t, err)

	user, err := Authenticate("ANA@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "Ana", user.Name)

	_, err = Authenticate("ana@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = Authenticate("nobody@example.com", "secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRecoveryFlow(t *testing.T) {
	dbtest.SetupTestDB(t)
	_, err := Register(RegisterInput{Name: "Ana", Email: "ana@example.com", Password: "secret123"})
	require.NoError(t, err)

	sender := &fakeSender{}
	require.NoError(t, RequestRecovery(context.Background(), sender, "nobody@example.com", time.Hour))
	assert.Empty(t, sender.sent)

	require.NoError(t, RequestRecovery(context.Background(), sender, "ana@example.com", time.Hour))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "ana@example.com", sender.sent[0].to)

	var reset models.PasswordReset
	require.NoError(t, database.DB.First(&reset).Error)
	token := findToken(t, sender.sent[0].body, reset.TokenHash)

	assert.ErrorIs(t, ResetPassword("wrong-token", "newpassword1"), ErrInvalidResetToken)
	assert.ErrorIs(t, ResetPassword(token, "short"), ErrWeakPassword)
	assert.ErrorIs(t, ResetPassword(token, strings.Repeat("p", 73)), ErrLongPassword)
	require.NoError(t, ResetPassword(token, "newpassword1"))
	assert.ErrorIs(t, ResetPassword(token, "newpassword2"), ErrInvalidResetToken)

	_, err = Authenticate("ana@example.com", "newpassword1")
	assert.NoError(t, err)
	_, err = Authenticate("ana@example.com", "secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestResetPassword_Expired(t *testing.T) {
	dbtest.SetupTestDB(t)
	user, err := Register(RegisterInput{Name: "Ana", Email: "ana@example.com", Password: "secret123"})
	require.NoError(t, err)

	require.NoError(t, database.DB.Create(&models.PasswordReset{
		UserID:    user.ID,
		TokenHash: hashToken("stale-token"),
		ExpiresAt: time.Now().Add(-time.Minute),
	}).Error)

	assert.ErrorIs(t, ResetPassword("stale-token", "newpassword1"), ErrInvalidResetToken)
}

func TestClaimReset_OnlyOnce(t *testing.T) {
	db := dbtest.SetupTestDB(t)
	user, err := Register(RegisterInput{Name: "Ana", Email: "ana@example.com", Password: "secret123"})
	require.NoError(t, err)

	reset := models.PasswordReset{
		UserID:    user.ID,
		TokenHash: hashToken("token"),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, db.Create(&reset).Error)

	// Both confirms read the row before either claims it.
	require.NoError(t, claimReset(db, reset.ID, time.Now()))
	assert.ErrorIs(t, claimReset(db, reset.ID, time.Now()), ErrInvalidResetToken)

	assert.ErrorIs(t, ResetPassword("token", "newpassword1"), ErrInvalidResetToken)
	_, err = Authenticate("ana@example.com", "secret123")
	assert.NoError(t, err)
}

// findToken pulls the uuid out of the mail body and checks it against the stored hash.
func findToken(t *testing.T, body, wantHash string) string {
	t.Helper()
	const marker = "new password: "
	start := strings.Index(body, marker)
	require.GreaterOrEqual(t, start, 0, "token marker missing from mail body")
	token := body[start+len(marker) : start+len(marker)+36]
	require.Equal(t, wantHash, hashToken(token))
	return token
}
