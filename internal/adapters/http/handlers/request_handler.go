package handlers

import (
	"strings"

	"library-circulation/internal/core/services"
	"library-circulation/internal/pkg/pagination"
	"library-circulation/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// RequestHandler handles book request endpoints
type RequestHandler struct {
	requestService *services.RequestService
}

// NewRequestHandler creates a new request handler
func NewRequestHandler(requestService *services.RequestService) *RequestHandler {
	return &RequestHandler{
		requestService: requestService,
	}
}

// OpenRequestInput represents a direct book request
type OpenRequestInput struct {
	BookID uint `json:"book_id"`
}

// ApproveInput represents a librarian approval
type ApproveInput struct {
	CopyID *uint `json:"copy_id"`
}

// RejectInput represents a librarian rejection
type RejectInput struct {
	Reason string `json:"reason"`
}

// ============================================================
// POST /api/v1/requests: request an out-of-stock book
// ============================================================
func (h *RequestHandler) Open(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return response.FromError(c, err)
	}

	var input OpenRequestInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if input.BookID == 0 {
		return response.BadRequest(c, "book_id is required")
	}

	req, err := h.requestService.Open(c.UserContext(), input.BookID, a.UserID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, "Request opened", req)
}

// ============================================================
// GET /api/v1/requests/pending: approval queue (staff)
// ============================================================
func (h *RequestHandler) ListPending(c *fiber.Ctx) error {
	params := pagination.Parse(c)
	reqs, total, err := h.requestService.ListPending(c.UserContext(), params.Offset, params.Limit)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Pending requests retrieved", pagination.Wrap(reqs, params, total))
}

// ============================================================
// GET /api/v1/requests/:id
// ============================================================
func (h *RequestHandler) Get(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return response.FromError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}

	req, err := h.requestService.Get(c.UserContext(), id, a)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Request retrieved", req)
}

// ============================================================
// POST /api/v1/requests/:id/approve (staff)
// ============================================================
func (h *RequestHandler) Approve(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return response.FromError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}

	var input ApproveInput
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&input); err != nil {
			return response.BadRequest(c, "Invalid request body")
		}
	}

	loan, err := h.requestService.Approve(c.UserContext(), id, a.UserID, input.CopyID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, "Request approved", loan)
}

// ============================================================
// POST /api/v1/requests/:id/reject (staff)
// ============================================================
func (h *RequestHandler) Reject(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return response.FromError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}

	var input RejectInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	input.Reason = strings.TrimSpace(input.Reason)
	if input.Reason == "" {
		return response.BadRequest(c, "reason is required")
	}

	req, err := h.requestService.Reject(c.UserContext(), id, a.UserID, input.Reason)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Request rejected", req)
}

// ============================================================
// POST /api/v1/requests/:id/cancel
// ============================================================
func (h *RequestHandler) Cancel(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return response.FromError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}

	req, err := h.requestService.Cancel(c.UserContext(), id, a)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Request cancelled", req)
}
