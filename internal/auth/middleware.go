package auth

import (
	"strings"

	"receiving-backend/internal/config"
	"receiving-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	CtxUserIDKey    = "user_id"
	CtxUserRoleKey  = "user_role"
	CtxTenantIDKey  = "tenant_id"
	CtxTenantKey    = "tenant"
	CtxWarehouseKey = "warehouse"
)

// JWTMiddleware accepts HS256 tokens with an expiry and a tenant scope, and
// copies the scope into the request locals.
func JWTMiddleware(cfg *config.Config) fiber.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	key := func(*jwt.Token) (interface{}, error) { return []byte(cfg.JWTSecret), nil }

	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Falta el encabezado Authorization")
		}
		scheme, raw, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") {
			return fiber.NewError(fiber.StatusUnauthorized, "El formato de Authorization debe ser 'Bearer <token>'")
		}

		claims := &JWTCustomClaims{}
		token, err := parser.ParseWithClaims(strings.TrimSpace(raw), claims, key)
		if err != nil || !token.Valid {
			return fiber.NewError(fiber.StatusUnauthorized, "Token inválido o expirado")
		}
		if !claims.Scoped() {
			return fiber.NewError(fiber.StatusForbidden, "El token no indica la base del usuario")
		}

		c.Locals(CtxUserIDKey, claims.UserID)
		c.Locals(CtxUserRoleKey, claims.Role)
		c.Locals(CtxTenantIDKey, claims.TenantID)
		c.Locals(CtxTenantKey, claims.Tenant)
		c.Locals(CtxWarehouseKey, claims.Warehouse)

		return c.Next()
	}
}

// TenantID returns the tenant of the authenticated request. Every tenant
// scoped query starts here.
func TenantID(c *fiber.Ctx) (uint, error) {
	id, ok := c.Locals(CtxTenantIDKey).(uint)
	if !ok || id == 0 {
		return 0, fiber.NewError(fiber.StatusForbidden, "El usuario no pertenece a ninguna base")
	}
	return id, nil
}

func RequireRole(allowedRoles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "No se pudo obtener el rol")
		}

		for _, r := range allowedRoles {
			if r == role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "No tienes permiso para esta operación")
	}
}
