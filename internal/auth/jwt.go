package auth

import (
	"errors"
	"strconv"
	"time"

	"receiving-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// shift bounds a token's lifetime.
const shift = 12 * time.Hour

var ErrNoTenant = errors.New("el usuario no pertenece a ninguna base")

// JWTCustomClaims scope a token to one tenant (the ERP database) and the
// warehouse the operator receives into.
type JWTCustomClaims struct {
	UserID    uint            `json:"user_id"`
	Email     string          `json:"email"`
	Role      models.UserRole `json:"role"`
	TenantID  uint            `json:"tenant_id"`
	Tenant    string          `json:"tenant"`
	Warehouse string          `json:"warehouse"`
	jwt.RegisteredClaims
}

// Scoped reports whether the claims name a user inside a tenant.
func (c *JWTCustomClaims) Scoped() bool {
	return c.UserID != 0 && c.TenantID != 0 && c.Tenant != ""
}

// GenerateToken signs a token for user. tenantCode is the code of
// user.TenantID; a user without both gets ErrNoTenant.
func GenerateToken(secret string, user *models.User, tenantCode string) (string, error) {
	now := time.Now()
	claims := &JWTCustomClaims{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		TenantID:  user.TenantID,
		Tenant:    tenantCode,
		Warehouse: user.Warehouse,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(shift)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if !claims.Scoped() {
		return "", ErrNoTenant
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
