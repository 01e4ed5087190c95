package handlers

import (
	"library-circulation/internal/core/services"
	"library-circulation/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// QueueHandler handles waitlist endpoints
type QueueHandler struct {
	waitlistService *services.WaitlistService
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(waitlistService *services.WaitlistService) *QueueHandler {
	return &QueueHandler{
		waitlistService: waitlistService,
	}
}

// EnqueueInput represents a join-queue request
type EnqueueInput struct {
	BookID uint `json:"book_id"`
}

// ============================================================
// POST /api/v1/queue: join a book's queue
// ============================================================
func (h *QueueHandler) Enqueue(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return response.FromError(c, err)
	}

	var input EnqueueInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if input.BookID == 0 {
		return response.BadRequest(c, "book_id is required")
	}

	entry, err := h.waitlistService.Enqueue(c.UserContext(), input.BookID, a.UserID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, "Joined queue", entry)
}

// ============================================================
// DELETE /api/v1/queue/:id: leave a queue
// ============================================================
func (h *QueueHandler) Cancel(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return response.FromError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}

	if err := h.waitlistService.Cancel(c.UserContext(), id, a); err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Left queue", nil)
}

// ============================================================
// GET /api/v1/queue/me: my active queue entries
// ============================================================
func (h *QueueHandler) GetMyEntries(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return response.FromError(c, err)
	}

	entries, err := h.waitlistService.ListUserEntries(c.UserContext(), a.UserID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Queue entries retrieved", entries)
}

// ============================================================
// GET /api/v1/queue/books/:bookId: a book's queue
// ============================================================
func (h *QueueHandler) GetBookQueue(c *fiber.Ctx) error {
	bookID, err := paramID(c, "bookId")
	if err != nil {
		return response.FromError(c, err)
	}

	entries, err := h.waitlistService.GetBookQueue(c.UserContext(), bookID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Book queue retrieved", entries)
}

// ============================================================
// GET /api/v1/queue/books/:bookId/position: my position
// ============================================================
func (h *QueueHandler) GetPosition(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return response.FromError(c, err)
	}
	bookID, err := paramID(c, "bookId")
	if err != nil {
		return response.FromError(c, err)
	}

	pos, err := h.waitlistService.GetPosition(c.UserContext(), bookID, a.UserID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Queue position retrieved", pos)
}

// ============================================================
// POST /api/v1/queue/:id/pickup: hand the held copy over (staff)
// ============================================================
func (h *QueueHandler) MarkPickup(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return response.FromError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}

	loan, err := h.waitlistService.MarkPickup(c.UserContext(), id, a.UserID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, "Hold picked up", loan)
}

// ============================================================
// POST /api/v1/queue/expire-holds: run the hold expiry now (staff)
// ============================================================
func (h *QueueHandler) ExpireHolds(c *fiber.Ctx) error {
	result, err := h.waitlistService.ExpireHolds(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Hold expiry completed", result)
}
