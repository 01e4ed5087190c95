package handlers

import (
	"library-circulation/internal/core/services"
	"library-circulation/internal/pkg/pagination"
	"library-circulation/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// LoanHandler handles loan endpoints
type LoanHandler struct {
	loanService *services.LoanService
}

// NewLoanHandler creates a new loan handler
func NewLoanHandler(loanService *services.LoanService) *LoanHandler {
	return &LoanHandler{
		loanService: loanService,
	}
}

// ============================================================
// POST /api/v1/loans: borrow a book
// ============================================================
func (h *LoanHandler) CreateLoan(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return response.FromError(c, err)
	}

	var input services.CreateLoanInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if input.BookID == 0 && input.CopyID == nil {
		return response.BadRequest(c, "book_id or copy_id is required")
	}

	// Members borrow for themselves; staff may lend on behalf of a member
	if !a.IsStaff() || input.UserID == 0 {
		input.UserID = a.UserID
	}

	loan, err := h.loanService.CreateLoan(c.UserContext(), input)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, "Loan created", loan)
}

// ============================================================
// GET /api/v1/loans/me: my loans (?status=ACTIVE&page=1&limit=20)
// ============================================================
func (h *LoanHandler) GetMyLoans(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return response.FromError(c, err)
	}

	params := pagination.Parse(c)
	loans, total, err := h.loanService.ListUserLoans(c.UserContext(), a.UserID, c.Query("status"), params.Offset, params.Limit)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Loans retrieved", pagination.Wrap(loans, params, total))
}

// ============================================================
// GET /api/v1/loans/overdue: overdue loans (staff)
// ============================================================
func (h *LoanHandler) GetOverdueLoans(c *fiber.Ctx) error {
	params := pagination.Parse(c)
	loans, total, err := h.loanService.ListOverdueLoans(c.UserContext(), params.Offset, params.Limit)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Overdue loans retrieved", pagination.Wrap(loans, params, total))
}

// ============================================================
// GET /api/v1/loans/:id
// ============================================================
func (h *LoanHandler) GetLoan(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return response.FromError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}

	loan, err := h.loanService.GetLoan(c.UserContext(), id, a)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Loan retrieved", loan)
}

// ============================================================
// GET /api/v1/loans/:id/fine: fine accrued so far
// ============================================================
func (h *LoanHandler) GetFine(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return response.FromError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}

	loan, err := h.loanService.GetLoan(c.UserContext(), id, a)
	if err != nil {
		return response.FromError(c, err)
	}
	fine, err := h.loanService.CalculateFine(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Fine calculated", fiber.Map{
		"loan_id":  loan.ID,
		"due_date": loan.DueDate,
		"status":   loan.Status,
		"amount":   fine,
	})
}

// ============================================================
// POST /api/v1/loans/:id/return
// ============================================================
func (h *LoanHandler) ReturnLoan(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return response.FromError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}

	loan, err := h.loanService.ReturnBook(c.UserContext(), id, a)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Book returned", loan)
}

// ============================================================
// POST /api/v1/loans/:id/renew
// ============================================================
func (h *LoanHandler) RenewLoan(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return response.FromError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}

	loan, err := h.loanService.RenewLoan(c.UserContext(), id, a)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Loan renewed", loan)
}

// ============================================================
// POST /api/v1/loans/:id/lost: write off a lost copy (staff)
// ============================================================
func (h *LoanHandler) MarkLost(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return response.FromError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}

	loan, err := h.loanService.MarkLost(c.UserContext(), id, a.UserID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Loan marked lost", loan)
}

// ============================================================
// POST /api/v1/loans/sweep-overdue: run the overdue sweep now (staff)
// ============================================================
func (h *LoanHandler) SweepOverdue(c *fiber.Ctx) error {
	result, err := h.loanService.SweepOverdue(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Overdue sweep completed", result)
}
