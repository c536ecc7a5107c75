package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"catalog-backend/internal/database"
	"catalog-backend/internal/mailer"
	"catalog-backend/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	minPasswordLength = 8
	// bcrypt only reads this many bytes.
	maxPasswordLength = 72
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", minPasswordLength)
	ErrLongPassword       = fmt.Errorf("password must be at most %d bytes", maxPasswordLength)
	ErrInvalidResetToken  = errors.New("invalid or expired recovery token")
)

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func checkPassword(password string) error {
	switch {
	case len(password) < minPasswordLength:
		return ErrWeakPassword
	case len(password) > maxPasswordLength:
		return ErrLongPassword
	}
	return nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Register creates an account. The very first account becomes admin.
func Register(in RegisterInput) (*models.User, error) {
	if err := checkPassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("password could not be hashed: %w", err)
	}

	user := models.User{
		Code:         uuid.NewString(),
		Name:         strings.TrimSpace(in.Name),
		Email:        normalizeEmail(in.Email),
		PasswordHash: string(hash),
		Role:         models.RoleOperator,
	}

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.User{}).Where("email = ?", user.Email).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return ErrEmailTaken
		}

		var users int64
		if err := tx.Model(&models.User{}).Count(&users).Error; err != nil {
			return err
		}
		if users == 0 {
			user.Role = models.RoleAdmin
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("user could not be created: %w", err)
	}
	return &user, nil
}

// Authenticate checks credentials and returns the matching user.
func Authenticate(email, password string) (*models.User, error) {
	var user models.User
	if err := database.DB.Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("user lookup failed: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// RequestRecovery mails a one-time reset token when email belongs to a user.
// Unknown emails are silently ignored so the endpoint does not reveal accounts.
func RequestRecovery(ctx context.Context, sender mailer.Sender, email string, ttl time.Duration) error {
	var user models.User
	if err := database.DB.Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("user lookup failed: %w", err)
	}

	token := uuid.NewString()
	reset := models.PasswordReset{
		UserID:    user.ID,
		TokenHash: hashToken(token),
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := database.DB.Create(&reset).Error; err != nil {
		return fmt.Errorf("recovery token could not be saved: %w", err)
	}

	body := fmt.Sprintf("Hello %s,\n\nUse this code to choose a new password: %s\nIt expires in %s.\n",
		user.Name, token, ttl)
	if err := sender.Send(ctx, user.Email, "Password recovery", body); err != nil {
		return err
	}

	zap.L().Info("recovery token issued", zap.String("user_code", user.Code))
	return nil
}

// claimReset marks a reset as used. Of two concurrent claims only one
// matches the row; the other gets ErrInvalidResetToken.
func claimReset(tx *gorm.DB, id uint, now time.Time) error {
	res := tx.Model(&models.PasswordReset{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrInvalidResetToken
	}
	return nil
}

// ResetPassword consumes a recovery token and sets a new password.
func ResetPassword(token, newPassword string) error {
	if err := checkPassword(newPassword); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("password could not be hashed: %w", err)
	}

	return database.DB.Transaction(func(tx *gorm.DB) error {
		var reset models.PasswordReset
		if err := tx.Where("token_hash = ?", hashToken(strings.TrimSpace(token))).First(&reset).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidResetToken
			}
			return err
		}
		now := time.Now()
		if reset.UsedAt != nil || now.After(reset.ExpiresAt) {
			return ErrInvalidResetToken
		}

		if err := claimReset(tx, reset.ID, now); err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", reset.UserID).
			Update("password_hash", string(hash)).Error
	})
}
