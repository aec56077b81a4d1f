package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/recitation-service/internal/api/http/handlers"
	"github.com/spec-kit/recitation-service/internal/auth"
	"github.com/spec-kit/recitation-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Sessions       *handlers.SessionsHandler
	Review         *handlers.ReviewHandler
	StudentTickets *handlers.StudentTicketsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/students/register", cfg.Auth.RegisterStudent)
	authGroup.Post("/students/login", cfg.Auth.LoginStudent)
	authGroup.Post("/staff/login", cfg.Auth.LoginStaff)

	authProtected := authGroup.Group("", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	authProtected.Post("/password/change", cfg.Auth.ChangePassword)

	staffOnly := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireStaffRole(domain.StaffRoleTeacher, domain.StaffRoleAdmin)}
	adminOnly := auth.RequireStaffRole(domain.StaffRoleAdmin)
	staff := app.Group("/staff/tickets", staffOnly...)
	staff.Get("/", cfg.Sessions.List)
	staff.Get("/stale", adminOnly, cfg.Review.Stale)
	staff.Get("/:id", cfg.Sessions.Get)
	staff.Post("/:id/start", cfg.Sessions.Start)
	staff.Post("/:id/pause", cfg.Sessions.Pause)
	staff.Post("/:id/resume", cfg.Sessions.Resume)
	staff.Post("/:id/heartbeat", cfg.Sessions.Heartbeat)
	staff.Post("/:id/mistakes", cfg.Sessions.AddMistake)
	staff.Delete("/:id/mistakes/:index", cfg.Sessions.RemoveMistake)
	staff.Post("/:id/submit", cfg.Sessions.Submit)
	staff.Post("/:id/approve", adminOnly, cfg.Review.Approve)
	staff.Post("/:id/reject", adminOnly, cfg.Review.Reject)
	staff.Post("/:id/reassign", adminOnly, cfg.Review.Reassign)
	staff.Post("/:id/close", adminOnly, cfg.Review.Close)

	studentOnly := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireStudent()}
	student := app.Group("/tickets", studentOnly...)
	student.Get("/", cfg.StudentTickets.List)
	student.Get("/:id", cfg.StudentTickets.Get)

	my := app.Group("/my", studentOnly...)
	my.Get("/mistakes", cfg.StudentTickets.Mistakes)
	my.Get("/assignments", cfg.StudentTickets.Assignments)
}
