package auth

import (
	"errors"
	"strings"

	"receiving-backend/internal/config"
	"receiving-backend/internal/database"
	"receiving-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type RegisterSupervisorRequest struct {
	TenantCode string `json:"tenant_code"`
	TenantName string `json:"tenant_name"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Warehouse  string `json:"warehouse"`
}

type CreateOperatorRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Warehouse string `json:"warehouse"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// POST /api/auth/register-supervisor
// Bootstraps a tenant: only allowed while it has no supervisor.
func RegisterSupervisorHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterSupervisorRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la solicitud inválido")
		}

		body.Email = strings.TrimSpace(strings.ToLower(body.Email))
		body.TenantCode = strings.ToUpper(strings.TrimSpace(body.TenantCode))

		if body.TenantCode == "" || body.Email == "" || body.Password == "" || body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Base, nombre, email y contraseña son obligatorios")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo cifrar la contraseña")
		}

		var user models.User
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			tenant := models.Tenant{Code: body.TenantCode, Name: body.TenantName}
			if tenant.Name == "" {
				tenant.Name = body.TenantCode
			}
			if err := tx.Where("code = ?", tenant.Code).FirstOrCreate(&tenant).Error; err != nil {
				return err
			}

			var count int64
			tx.Model(&models.User{}).
				Where("tenant_id = ? AND role = ?", tenant.ID, models.RoleSupervisor).
				Count(&count)
			if count > 0 {
				return fiber.NewError(fiber.StatusForbidden, "La base ya tiene un supervisor")
			}

			user = models.User{
				TenantID:     tenant.ID,
				Name:         body.Name,
				Email:        body.Email,
				PasswordHash: string(hash),
				Role:         models.RoleSupervisor,
				Warehouse:    body.Warehouse,
			}
			return tx.Create(&user).Error
		})
		if err != nil {
			return userCreateError(err)
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":     user.ID,
			"email":  user.Email,
			"role":   user.Role,
			"tenant": body.TenantCode,
		})
	}
}

// POST /api/auth/operators
func CreateOperatorHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := TenantID(c)
		if err != nil {
			return err
		}

		var body CreateOperatorRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la solicitud inválido")
		}
		body.Email = strings.TrimSpace(strings.ToLower(body.Email))
		body.Warehouse = strings.TrimSpace(body.Warehouse)
		if body.Email == "" || body.Password == "" || body.Name == "" || body.Warehouse == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Nombre, email, contraseña y almacén son obligatorios")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo cifrar la contraseña")
		}

		user := models.User{
			TenantID:     tenantID,
			Name:         body.Name,
			Email:        body.Email,
			PasswordHash: string(hash),
			Role:         models.RoleOperator,
			Warehouse:    body.Warehouse,
		}
		if err := database.DB.Create(&user).Error; err != nil {
			return userCreateError(err)
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":        user.ID,
			"email":     user.Email,
			"role":      user.Role,
			"warehouse": user.Warehouse,
		})
	}
}

func userCreateError(err error) error {
	var ferr *fiber.Error
	switch {
	case errors.As(err, &ferr):
		return ferr
	case database.IsUniqueViolation(err):
		return fiber.NewError(fiber.StatusConflict, "El email ya está registrado")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "No se pudo crear el usuario")
	}
}

// POST /api/auth/login
func LoginHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la solicitud inválido")
		}

		body.Email = strings.TrimSpace(strings.ToLower(body.Email))

		var user models.User
		if err := database.DB.Preload("Tenant").Where("email = ?", body.Email).First(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Email o contraseña incorrectos")
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Email o contraseña incorrectos")
		}
		if user.Tenant == nil {
			return fiber.NewError(fiber.StatusForbidden, "El usuario no pertenece a ninguna base")
		}

		token, err := GenerateToken(cfg.JWTSecret, &user, user.Tenant.Code)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo generar el token")
		}

		return c.JSON(fiber.Map{
			"token": token,
			"user": fiber.Map{
				"id":        user.ID,
				"name":      user.Name,
				"email":     user.Email,
				"role":      user.Role,
				"tenant":    user.Tenant.Code,
				"warehouse": user.Warehouse,
			},
		})
	}
}

// GET /api/auth/me
func MeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userIDVal := c.Locals(CtxUserIDKey)

		if userID, ok := userIDVal.(uint); ok && database.DB != nil {
			var user models.User
			if err := database.DB.Preload("Tenant").First(&user, userID).Error; err == nil {
				resp := fiber.Map{
					"user_id":   user.ID,
					"name":      user.Name,
					"email":     user.Email,
					"role":      user.Role,
					"warehouse": user.Warehouse,
				}
				if user.Tenant != nil {
					resp["tenant"] = fiber.Map{
						"id":   user.Tenant.ID,
						"code": user.Tenant.Code,
						"name": user.Tenant.Name,
					}
				}
				return c.JSON(resp)
			}
		}

		// Fall back to the token claims.
		return c.JSON(fiber.Map{
			"user_id":   userIDVal,
			"role":      c.Locals(CtxUserRoleKey),
			"tenant":    c.Locals(CtxTenantKey),
			"warehouse": c.Locals(CtxWarehouseKey),
		})
	}
}
