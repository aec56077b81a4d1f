package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/recitation-service/internal/api/dto"
	"github.com/spec-kit/recitation-service/internal/auth"
	"github.com/spec-kit/recitation-service/internal/domain"
	"github.com/spec-kit/recitation-service/internal/repository"
	"github.com/spec-kit/recitation-service/internal/service"
	apperrors "github.com/spec-kit/recitation-service/pkg/util"
)

// StudentTicketsHandler exposes the student-facing read surface.
type StudentTicketsHandler struct {
	sessions    *service.SessionService
	mistakes    repository.MistakeHistoryRepository
	assignments repository.AssignmentRepository
}

// NewStudentTicketsHandler constructs handler.
func NewStudentTicketsHandler(sessions *service.SessionService, mistakes repository.MistakeHistoryRepository, assignments repository.AssignmentRepository) *StudentTicketsHandler {
	return &StudentTicketsHandler{sessions: sessions, mistakes: mistakes, assignments: assignments}
}

// List GET /tickets.
func (h *StudentTicketsHandler) List(c *fiber.Ctx) error {
	student, err := studentFromContext(c)
	if err != nil {
		return err
	}
	page := parseIntQuery(c.Query("page"), 1)
	pageSize := parseIntQuery(c.Query("page_size"), 20)
	tickets, err := h.sessions.ListForStudent(c.Context(), student.ID, pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponses(tickets)})
}

// Get GET /tickets/:id.
func (h *StudentTicketsHandler) Get(c *fiber.Ctx) error {
	student, err := studentFromContext(c)
	if err != nil {
		return err
	}
	ticket, err := h.sessions.GetForStudent(c.Context(), student.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Mistakes GET /my/mistakes returns the durable cross-session history.
func (h *StudentTicketsHandler) Mistakes(c *fiber.Ctx) error {
	student, err := studentFromContext(c)
	if err != nil {
		return err
	}
	var step *domain.WorkflowStep
	if stepStr := c.Query("workflow_step"); stepStr != "" {
		parsed := domain.WorkflowStep(strings.ToLower(strings.TrimSpace(stepStr)))
		step = &parsed
	}
	page := parseIntQuery(c.Query("page"), 1)
	pageSize := parseIntQuery(c.Query("page_size"), 50)
	rows, err := h.mistakes.ListByStudent(c.Context(), student.ID, step, pageSize, (page-1)*pageSize)
	if err != nil {
		return apperrors.MapError(err)
	}
	items := make([]dto.StudentMistakeResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, dto.StudentMistakeResponse{
			ID:           row.ID,
			TicketID:     row.TicketID,
			WorkflowStep: row.WorkflowStep,
			Entry:        row.Entry,
			CreatedAt:    row.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// Assignments GET /my/assignments returns homework created on approvals.
func (h *StudentTicketsHandler) Assignments(c *fiber.Ctx) error {
	student, err := studentFromContext(c)
	if err != nil {
		return err
	}
	page := parseIntQuery(c.Query("page"), 1)
	pageSize := parseIntQuery(c.Query("page_size"), 20)
	rows, err := h.assignments.ListByStudent(c.Context(), student.ID, pageSize, (page-1)*pageSize)
	if err != nil {
		return apperrors.MapError(err)
	}
	items := make([]dto.AssignmentResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, dto.AssignmentResponse{
			ID:           row.ID,
			TeacherID:    row.TeacherID,
			WorkflowStep: row.WorkflowStep,
			Title:        row.Title,
			Description:  row.Description,
			AyahRange:    row.AyahRange,
			FromTicketID: row.FromTicketID,
			DueAt:        row.DueAt,
			CreatedAt:    row.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

func studentFromContext(c *fiber.Ctx) (*domain.Student, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Student == nil {
		return nil, apperrors.NewUnauthorized("student required")
	}
	return principal.Student, nil
}
