package response

import (
	"errors"
	"log"

	"library-circulation/internal/core/domain"

	"github.com/gofiber/fiber/v2"
)

// StatusFor maps an error kind to its HTTP status
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return fiber.StatusNotFound
	case domain.KindConflict:
		return fiber.StatusConflict
	case domain.KindResourceUnavailable:
		return fiber.StatusConflict
	case domain.KindPolicyViolation:
		return fiber.StatusUnprocessableEntity
	case domain.KindInvalidState:
		return fiber.StatusConflict
	case domain.KindUnauthorized:
		return fiber.StatusForbidden
	case domain.KindInvalidInput:
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

// FromError sends the response matching err's kind. Internal errors are
// logged and their text is not exposed.
func FromError(c *fiber.Ctx, err error) error {
	var de *domain.Error
	if !errors.As(err, &de) {
		log.Printf("❌ %s %s: %v", c.Method(), c.Path(), err)
		return fail(c, fiber.StatusInternalServerError, domain.KindInternal, "INTERNAL", "Internal server error")
	}
	return fail(c, StatusFor(de.Kind), de.Kind, de.Code, err.Error())
}
