package handlers

import (
	"library-circulation/internal/core/services"
	"library-circulation/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// DashboardHandler handles dashboard endpoints
type DashboardHandler struct {
	dashboardService *services.DashboardService
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(dashboardService *services.DashboardService) *DashboardHandler {
	return &DashboardHandler{
		dashboardService: dashboardService,
	}
}

// GetStaffDashboard returns the circulation desk overview (staff)
func (h *DashboardHandler) GetStaffDashboard(c *fiber.Ctx) error {
	data, err := h.dashboardService.GetStaffDashboard(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Staff dashboard retrieved successfully", data)
}

// GetMyDashboard returns the dashboard matching the caller's role
func (h *DashboardHandler) GetMyDashboard(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return response.FromError(c, err)
	}

	var data interface{}
	if a.IsStaff() {
		data, err = h.dashboardService.GetStaffDashboard(c.UserContext())
	} else {
		data, err = h.dashboardService.GetMemberDashboard(c.UserContext(), a.UserID)
	}
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Dashboard retrieved successfully", fiber.Map{
		"role": a.Role,
		"data": data,
	})
}
