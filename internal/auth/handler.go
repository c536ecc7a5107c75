package auth

import (
	"errors"
	"strings"

	"catalog-backend/internal/config"
	"catalog-backend/internal/database"
	"catalog-backend/internal/mailer"
	"catalog-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RecoveryRequest struct {
	Email string `json:"email"`
}

type RecoveryConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type UserResponse struct {
	Code  string          `json:"code"`
	Name  string          `json:"name"`
	Email string          `json:"email"`
	Role  models.UserRole `json:"role"`
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{Code: u.Code, Name: u.Name, Email: u.Email, Role: u.Role}
}

// POST /api/auth/register
func RegisterHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		if strings.TrimSpace(body.Name) == "" || strings.TrimSpace(body.Email) == "" || body.Password == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name, email and password are required")
		}
		if !strings.Contains(body.Email, "@") {
			return fiber.NewError(fiber.StatusBadRequest, "invalid email")
		}

		user, err := Register(RegisterInput{Name: body.Name, Email: body.Email, Password: body.Password})
		switch {
		case errors.Is(err, ErrWeakPassword), errors.Is(err, ErrLongPassword):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		case errors.Is(err, ErrEmailTaken):
			return fiber.NewError(fiber.StatusConflict, err.Error())
		case err != nil:
			zap.L().Error("register failed", zap.Error(err))
			return fiber.NewError(fiber.StatusInternalServerError, "user could not be created")
		}

		return c.Status(fiber.StatusCreated).JSON(toUserResponse(user))
	}
}

// POST /api/auth/login
func LoginHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		user, err := Authenticate(body.Email, body.Password)
		if err != nil {
			if errors.Is(err, ErrInvalidCredentials) {
				return fiber.NewError(fiber.StatusUnauthorized, err.Error())
			}
			zap.L().Error("login failed", zap.Error(err))
			return fiber.NewError(fiber.StatusInternalServerError, "login failed")
		}

		token, err := GenerateToken(cfg.JWTSecret, cfg.JWTTTL, user)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "token could not be created")
		}

		return c.JSON(fiber.Map{
			"token": token,
			"user":  toUserResponse(user),
		})
	}
}

// GET /api/auth/me
func MeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		code, err := UserCode(c)
		if err != nil {
			return err
		}

		var user models.User
		if err := database.DB.Where("code = ?", code).First(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "user not found")
		}
		return c.JSON(toUserResponse(&user))
	}
}

// POST /api/auth/recovery
func RecoveryHandler(cfg *config.Config, sender mailer.Sender) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RecoveryRequest
		if err := c.BodyParser(&body); err != nil || strings.TrimSpace(body.Email) == "" {
			return fiber.NewError(fiber.StatusBadRequest, "email is required")
		}

		if err := RequestRecovery(c.UserContext(), sender, body.Email, cfg.ResetTokenTTL); err != nil {
			// Same answer either way; the failure only goes to the log.
			zap.L().Error("recovery request failed", zap.Error(err))
		}

		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"message": "if the email is registered, a recovery code has been sent",
		})
	}
}

// POST /api/auth/recovery/confirm
func RecoveryConfirmHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RecoveryConfirmRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		err := ResetPassword(body.Token, body.Password)
		switch {
		case errors.Is(err, ErrWeakPassword), errors.Is(err, ErrLongPassword), errors.Is(err, ErrInvalidResetToken):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		case err != nil:
			zap.L().Error("password reset failed", zap.Error(err))
			return fiber.NewError(fiber.StatusInternalServerError, "password could not be changed")
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}
