package handlers

import (
	"strconv"

	"library-circulation/internal/adapters/http/middleware"
	"library-circulation/internal/core/domain"

	"github.com/gofiber/fiber/v2"
)

// paramID parses a positive numeric route parameter
func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || id == 0 {
		return 0, domain.InvalidInput("invalid " + name)
	}
	return uint(id), nil
}

// actor returns the authenticated caller or an UNAUTHORIZED error
func actor(c *fiber.Ctx) (domain.Actor, error) {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		return domain.Actor{}, domain.ErrUnauthorized
	}
	return a, nil
}
