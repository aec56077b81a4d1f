package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/recitation-service/internal/api/dto"
	"github.com/spec-kit/recitation-service/internal/auth"
	"github.com/spec-kit/recitation-service/internal/domain"
	"github.com/spec-kit/recitation-service/internal/repository"
	"github.com/spec-kit/recitation-service/internal/service"
	apperrors "github.com/spec-kit/recitation-service/pkg/util"
)

// SessionsHandler exposes teacher-facing session commands.
type SessionsHandler struct {
	sessions *service.SessionService
	ledger   *service.LedgerService
	liveness *service.LivenessService
}

// NewSessionsHandler constructs handler.
func NewSessionsHandler(sessions *service.SessionService, ledger *service.LedgerService, liveness *service.LivenessService) *SessionsHandler {
	return &SessionsHandler{sessions: sessions, ledger: ledger, liveness: liveness}
}

// List GET /staff/tickets.
func (h *SessionsHandler) List(c *fiber.Ctx) error {
	staff, err := staffFromContext(c)
	if err != nil {
		return err
	}
	filter := repository.TicketFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	if stepStr := c.Query("workflow_step"); stepStr != "" {
		step := domain.WorkflowStep(strings.ToLower(strings.TrimSpace(stepStr)))
		filter.WorkflowStep = &step
	}
	page := parseIntQuery(c.Query("page"), 1)
	pageSize := parseIntQuery(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize

	tickets, err := h.sessions.ListForStaff(c.Context(), staff, filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponses(tickets)})
}

// Get GET /staff/tickets/:id.
func (h *SessionsHandler) Get(c *fiber.Ctx) error {
	staff, err := staffFromContext(c)
	if err != nil {
		return err
	}
	ticket, err := h.sessions.GetForStaff(c.Context(), staff, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Start POST /staff/tickets/:id/start.
func (h *SessionsHandler) Start(c *fiber.Ctx) error {
	staff, err := staffFromContext(c)
	if err != nil {
		return err
	}
	var req dto.StartSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	ticket, err := h.sessions.Start(c.Context(), staff, c.Params("id"), req.AyahRange)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Pause POST /staff/tickets/:id/pause.
func (h *SessionsHandler) Pause(c *fiber.Ctx) error {
	staff, err := staffFromContext(c)
	if err != nil {
		return err
	}
	ticket, err := h.sessions.Pause(c.Context(), staff, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Resume POST /staff/tickets/:id/resume.
func (h *SessionsHandler) Resume(c *fiber.Ctx) error {
	staff, err := staffFromContext(c)
	if err != nil {
		return err
	}
	ticket, err := h.sessions.Resume(c.Context(), staff, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Heartbeat POST /staff/tickets/:id/heartbeat.
func (h *SessionsHandler) Heartbeat(c *fiber.Ctx) error {
	staff, err := staffFromContext(c)
	if err != nil {
		return err
	}
	stamped, err := h.liveness.RecordHeartbeat(c.Context(), staff, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.HeartbeatResponse{LastHeartbeatAt: stamped}})
}

// AddMistake POST /staff/tickets/:id/mistakes.
func (h *SessionsHandler) AddMistake(c *fiber.Ctx) error {
	staff, err := staffFromContext(c)
	if err != nil {
		return err
	}
	var req dto.AddMistakeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	entry := domain.MistakeEntry{
		Type:        req.Type,
		Category:    req.Category,
		Page:        req.Page,
		Surah:       req.Surah,
		Ayah:        req.Ayah,
		WordIndex:   req.WordIndex,
		LetterIndex: req.LetterIndex,
		Position:    req.Position,
		TajweedData: req.TajweedData,
		Note:        req.Note,
		AudioURL:    req.AudioURL,
	}
	if req.Timestamp != nil {
		entry.Timestamp = *req.Timestamp
	}
	ticket, err := h.ledger.AddMistake(c.Context(), staff, c.Params("id"), entry)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// RemoveMistake DELETE /staff/tickets/:id/mistakes/:index.
func (h *SessionsHandler) RemoveMistake(c *fiber.Ctx) error {
	staff, err := staffFromContext(c)
	if err != nil {
		return err
	}
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return apperrors.NewValidationError("invalid mistake index", nil)
	}
	ticket, err := h.ledger.RemoveMistake(c.Context(), staff, c.Params("id"), index)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Submit POST /staff/tickets/:id/submit.
func (h *SessionsHandler) Submit(c *fiber.Ctx) error {
	staff, err := staffFromContext(c)
	if err != nil {
		return err
	}
	var req dto.SubmitSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	ticket, err := h.sessions.SubmitForReview(c.Context(), staff, c.Params("id"), req.SessionNotes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

func staffFromContext(c *fiber.Ctx) (*domain.StaffMember, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Staff == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	return principal.Staff, nil
}

func parseIntQuery(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketResponses(tickets []domain.TicketRecord) []dto.TicketResponse {
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return items
}

func ticketResponse(ticket *domain.TicketRecord) dto.TicketResponse {
	mistakes := ticket.Mistakes
	if mistakes == nil {
		mistakes = []domain.MistakeEntry{}
	}
	return dto.TicketResponse{
		ID:           ticket.ID,
		StudentID:    ticket.StudentID,
		TeacherID:    ticket.TeacherID,
		WorkflowStep: ticket.WorkflowStep,
		Status:       ticket.Status,

		AyahRange:   ticket.AyahRange,
		RangeLocked: ticket.RangeLocked,

		Mistakes:         mistakes,
		PreviousMistakes: ticket.PreviousMistakes,

		Notes:        ticket.Notes,
		AudioURL:     ticket.AudioURL,
		SessionNotes: ticket.SessionNotes,

		StartedAt:                ticket.StartedAt,
		PausedSeconds:            ticket.PausedSeconds,
		LastHeartbeatAt:          ticket.LastHeartbeatAt,
		SubmittedAt:              ticket.SubmittedAt,
		ListeningDurationSeconds: ticket.ListeningDurationSeconds,

		ReviewedBy:  ticket.ReviewedBy,
		ReviewNotes: ticket.ReviewNotes,
		ReviewedAt:  ticket.ReviewedAt,

		ReassignedFromTeacherID:   ticket.ReassignedFromTeacherID,
		ReassignedFromTeacherName: ticket.ReassignedFromTeacherName,
		ReassignedToTeacherID:     ticket.ReassignedToTeacherID,
		ReassignedToTeacherName:   ticket.ReassignedToTeacherName,
		ReassignmentReason:        ticket.ReassignmentReason,
		ReassignedAt:              ticket.ReassignedAt,
		PreviousTeacherComment:    ticket.PreviousTeacherComment,

		CreatedAt: ticket.CreatedAt,
		UpdatedAt: ticket.UpdatedAt,
	}
}
