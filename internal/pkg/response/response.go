package response

import (
	"library-circulation/internal/core/domain"

	"github.com/gofiber/fiber/v2"
)

// Response is the envelope every circulation endpoint answers with.
// Failures carry the stable error code and kind next to the message.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Kind    string      `json:"kind,omitempty"`
}

// Success sends a 200 response with data
func Success(c *fiber.Ctx, message string, data interface{}) error {
	return c.JSON(Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Created sends a 201 response with the new resource
func Created(c *fiber.Ctx, message string, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func fail(c *fiber.Ctx, status int, kind domain.Kind, code, message string) error {
	return c.Status(status).JSON(Response{
		Success: false,
		Error:   message,
		Code:    code,
		Kind:    string(kind),
	})
}

// BadRequest rejects a malformed request body or parameter
func BadRequest(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusBadRequest, domain.KindInvalidInput, domain.ErrInvalidInput.Code, message)
}

// Unauthorized rejects a request without a valid access token
func Unauthorized(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusUnauthorized, domain.KindUnauthorized, "UNAUTHENTICATED", message)
}

// Forbidden rejects an authenticated caller whose role may not use the route
func Forbidden(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusForbidden, domain.KindUnauthorized, domain.ErrUnauthorized.Code, message)
}
