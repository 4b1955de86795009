package middleware

import (
	"crypto/subtle"
	"strings"

	"consigaz-valegas/internal/config"
	"consigaz-valegas/internal/core/domain"
	"consigaz-valegas/internal/pkg/jwt"
	"consigaz-valegas/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// CronKeyHeader carries the shared secret of external cron triggers
const CronKeyHeader = "x-cron-key"

// AuthMiddleware creates authentication middleware
func AuthMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// 1. Try to get token from cookie first
		accessToken := c.Cookies("access_token")

		// 2. If not in cookie, try Authorization header
		if accessToken == "" {
			authHeader := c.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				accessToken = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if accessToken == "" {
			return response.Unauthorized(c, "Access token required")
		}

		claims, err := jwt.ValidateAccessToken(accessToken, cfg.JWT.Secret)
		if err != nil {
			if err == jwt.ErrTokenExpired {
				return response.Unauthorized(c, "Access token expired")
			}
			return response.Unauthorized(c, "Invalid access token")
		}

		c.Locals("userID", claims.UserID)
		c.Locals("distributorID", claims.DistributorID)
		c.Locals("employeeID", claims.EmployeeID)
		c.Locals("username", claims.Username)
		c.Locals("role", claims.Role)

		return c.Next()
	}
}

// RoleMiddleware creates role-based authorization middleware
func RoleMiddleware(allowedRoles ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals("role").(string)
		if !ok {
			return response.Unauthorized(c, "Unauthorized")
		}

		for _, allowedRole := range allowedRoles {
			if role == string(allowedRole) {
				return c.Next()
			}
		}

		return response.Forbidden(c, "You don't have permission to access this resource")
	}
}

// AdminOnly middleware allows only ADMIN role
func AdminOnly() fiber.Handler {
	return RoleMiddleware(domain.RoleAdmin)
}

// AdminOrSupervisor allows the admin panel roles
func AdminOrSupervisor() fiber.Handler {
	return RoleMiddleware(domain.RoleAdmin, domain.RoleSupervisor)
}

// DistributorOnly allows distributor tokens that carry a distributor id
func DistributorOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("role").(string)
		id, _ := c.Locals("distributorID").(uint)
		if role != string(domain.RoleDistributor) || id == 0 {
			return response.Forbidden(c, "Distributor access only")
		}
		return c.Next()
	}
}

// EmployeeOnly allows employee tokens that carry an employee id
func EmployeeOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("role").(string)
		id, _ := c.Locals("employeeID").(uint)
		if role != string(domain.RoleEmployee) || id == 0 {
			return response.Forbidden(c, "Employee access only")
		}
		return c.Next()
	}
}

// CronKeyMiddleware guards the cron trigger endpoints. An empty configured
// key rejects every call.
func CronKeyMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(CronKeyHeader)
		if cfg.Cron.Key == "" || key == "" ||
			subtle.ConstantTimeCompare([]byte(key), []byte(cfg.Cron.Key)) != 1 {
			return response.Unauthorized(c, "Invalid cron key")
		}
		return c.Next()
	}
}
