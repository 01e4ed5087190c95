package routes

import (
	"time"

	"library-circulation/internal/adapters/http/handlers"
	"library-circulation/internal/adapters/http/middleware"
	"library-circulation/internal/config"
	"library-circulation/internal/core/services"

	"github.com/gofiber/fiber/v2"
)

// Setup configures all routes for the application
func Setup(app *fiber.App, circ *services.Circulation, cfg *config.Config) {
	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.AppMode, nil)
	loanHandler := handlers.NewLoanHandler(circ.Loans)
	queueHandler := handlers.NewQueueHandler(circ.Waitlist)
	requestHandler := handlers.NewRequestHandler(circ.Requests)
	dashboardHandler := handlers.NewDashboardHandler(circ.Dashboard)

	// Health check & root routes
	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.HealthCheck)

	// API v1 group
	apiV1 := app.Group("/api/v1")
	apiV1.Get("/", healthHandler.APIInfo)

	auth := middleware.AuthMiddleware(cfg.JWT.Secret)

	// Loan routes (Authenticated users)
	loanRoutes := apiV1.Group("/loans", auth, middleware.NoCacheHeaders())
	setupLoanRoutes(loanRoutes, loanHandler)

	// Queue routes (Authenticated users)
	queueRoutes := apiV1.Group("/queue", auth, middleware.NoCacheHeaders())
	setupQueueRoutes(queueRoutes, queueHandler)

	// Request routes (Authenticated users)
	requestRoutes := apiV1.Group("/requests", auth, middleware.NoCacheHeaders())
	setupRequestRoutes(requestRoutes, requestHandler)

	// Dashboard routes (Authenticated users)
	dashboardRoutes := apiV1.Group("/dashboard", auth, middleware.NoCacheHeaders())
	dashboardRoutes.Get("/", dashboardHandler.GetMyDashboard)
	dashboardRoutes.Get("/staff", middleware.StaffOnly(), dashboardHandler.GetStaffDashboard)
}

// setupLoanRoutes configures loan routes; static paths before /:id
func setupLoanRoutes(router fiber.Router, h *handlers.LoanHandler) {
	router.Post("/", h.CreateLoan)
	router.Get("/me", middleware.PrivateCacheHeaders(30*time.Second), h.GetMyLoans)

	// Staff only
	router.Get("/overdue", middleware.StaffOnly(), h.GetOverdueLoans)
	router.Post("/sweep-overdue", middleware.StaffOnly(), middleware.SweepRateLimiter(), h.SweepOverdue)

	router.Get("/:id", h.GetLoan)
	router.Get("/:id/fine", h.GetFine)
	router.Post("/:id/return", h.ReturnLoan)
	router.Post("/:id/renew", h.RenewLoan)
	router.Post("/:id/lost", middleware.StaffOnly(), h.MarkLost)
}

// setupQueueRoutes configures waitlist routes
func setupQueueRoutes(router fiber.Router, h *handlers.QueueHandler) {
	router.Post("/", h.Enqueue)
	router.Get("/me", h.GetMyEntries)
	router.Get("/books/:bookId", h.GetBookQueue)
	router.Get("/books/:bookId/position", h.GetPosition)

	// Staff only
	router.Post("/expire-holds", middleware.StaffOnly(), middleware.SweepRateLimiter(), h.ExpireHolds)
	router.Post("/:id/pickup", middleware.StaffOnly(), h.MarkPickup)

	router.Delete("/:id", h.Cancel)
}

// setupRequestRoutes configures book request routes
func setupRequestRoutes(router fiber.Router, h *handlers.RequestHandler) {
	router.Post("/", h.Open)

	// Staff only
	router.Get("/pending", middleware.StaffOnly(), h.ListPending)
	router.Post("/:id/approve", middleware.StaffOnly(), h.Approve)
	router.Post("/:id/reject", middleware.StaffOnly(), h.Reject)

	router.Get("/:id", h.Get)
	router.Post("/:id/cancel", h.Cancel)
}
