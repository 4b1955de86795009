package response

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Response is the JSON envelope returned by every endpoint. On failure Data
// may still carry machine-readable details such as the current and required
// status of a rejected transition.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Success sends a 200 envelope
func Success(c *fiber.Ctx, message string, data interface{}) error {
	return c.JSON(Response{Success: true, Message: message, Data: data})
}

// Created sends a 201 envelope
func Created(c *fiber.Ctx, message string, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(Response{Success: true, Message: message, Data: data})
}

// Items sends an unpaged collection as {<key>: items, total: n}
func Items[T any](c *fiber.Ctx, key string, items []T) error {
	return Success(c, "", fiber.Map{key: items, "total": len(items)})
}

// CSV sends body as a downloadable UTF-8 CSV file
func CSV(c *fiber.Ctx, filename string, body []byte) error {
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	return c.Send(body)
}

// Error sends a failure envelope. details, when given, go into data.
func Error(c *fiber.Ctx, statusCode int, message string, details ...interface{}) error {
	resp := Response{Error: message}
	if len(details) > 0 {
		resp.Data = details[0]
	}
	return c.Status(statusCode).JSON(resp)
}

func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, message)
}

func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusUnauthorized, message)
}

func Forbidden(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusForbidden, message)
}

func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, message)
}

func Conflict(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusConflict, message)
}

func InternalServerError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, message)
}
