package handlers

import (
	"errors"
	"strconv"
	"strings"

	"consigaz-valegas/internal/core/domain"
	"consigaz-valegas/internal/core/services"
	"consigaz-valegas/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// getClientIP gets client IP address
func getClientIP(c *fiber.Ctx) string {
	ip := c.Get("X-Real-IP")
	if ip == "" {
		ip = strings.TrimSpace(strings.Split(c.Get("X-Forwarded-For"), ",")[0])
	}
	if ip == "" {
		ip = c.IP()
	}
	return ip
}

// parseID reads a positive numeric route parameter
func parseID(c *fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// actorFrom builds the acting principal from the token locals
func actorFrom(c *fiber.Ctx) services.Actor {
	role, _ := c.Locals("role").(string)
	username, _ := c.Locals("username").(string)

	switch domain.Role(role) {
	case domain.RoleDistributor:
		id, _ := c.Locals("distributorID").(uint)
		return services.Actor{Type: services.ActorDistributor, ID: id, Name: username, IP: getClientIP(c)}
	case domain.RoleEmployee:
		id, _ := c.Locals("employeeID").(uint)
		return services.Actor{Type: services.ActorEmployee, ID: id, Name: username, IP: getClientIP(c)}
	}

	id, _ := c.Locals("userID").(uint)
	return services.Actor{Type: services.ActorAdmin, ID: id, Name: username, IP: getClientIP(c)}
}

// respondError maps service errors onto HTTP responses. Business outcomes
// are logged at info, everything else at error with a generic message.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	var (
		quotaErr *domain.QuotaExceededError
		stateErr *domain.InvalidStateError
		validErr *domain.ValidationError
	)

	if domain.IsBusiness(err) {
		log.Info("request rejected",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}

	switch {
	case errors.As(err, &quotaErr):
		return response.Error(c, fiber.StatusBadRequest, err.Error(), fiber.Map{
			"current": quotaErr.Current,
			"quota":   quotaErr.Quota,
		})
	case errors.As(err, &stateErr):
		return response.Error(c, fiber.StatusConflict, err.Error(), fiber.Map{
			"current":  stateErr.Current,
			"required": stateErr.Required,
		})
	case errors.As(err, &validErr):
		return response.Error(c, fiber.StatusBadRequest, err.Error(), fiber.Map{"field": validErr.Field})
	case errors.Is(err, domain.ErrNotFound):
		return response.NotFound(c, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return response.Conflict(c, err.Error())
	case errors.Is(err, domain.ErrValidation):
		return response.BadRequest(c, err.Error())
	}

	log.Error("request failed",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return response.InternalServerError(c, "Internal server error")
}
