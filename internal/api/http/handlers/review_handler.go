package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/recitation-service/internal/api/dto"
	"github.com/spec-kit/recitation-service/internal/service"
	apperrors "github.com/spec-kit/recitation-service/pkg/util"
)

// ReviewHandler exposes the review gate and administrative ticket actions.
type ReviewHandler struct {
	review   *service.ReviewService
	sessions *service.SessionService
	liveness *service.LivenessService
}

// NewReviewHandler constructs handler.
func NewReviewHandler(review *service.ReviewService, sessions *service.SessionService, liveness *service.LivenessService) *ReviewHandler {
	return &ReviewHandler{review: review, sessions: sessions, liveness: liveness}
}

// Approve POST /staff/tickets/:id/approve.
func (h *ReviewHandler) Approve(c *fiber.Ctx) error {
	staff, err := staffFromContext(c)
	if err != nil {
		return err
	}
	var req dto.ApproveTicketRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	var homework *service.HomeworkInput
	if req.Homework != nil {
		homework = &service.HomeworkInput{
			Title:       req.Homework.Title,
			Description: req.Homework.Description,
			AyahRange:   req.Homework.AyahRange,
			DueAt:       req.Homework.DueAt,
		}
	}
	ticket, err := h.review.Approve(c.Context(), staff, c.Params("id"), req.ReviewNotes, homework)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Reject POST /staff/tickets/:id/reject.
func (h *ReviewHandler) Reject(c *fiber.Ctx) error {
	staff, err := staffFromContext(c)
	if err != nil {
		return err
	}
	var req dto.RejectTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.review.Reject(c.Context(), staff, c.Params("id"), req.ReviewNotes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Reassign POST /staff/tickets/:id/reassign.
func (h *ReviewHandler) Reassign(c *fiber.Ctx) error {
	staff, err := staffFromContext(c)
	if err != nil {
		return err
	}
	var req dto.ReassignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.sessions.Reassign(c.Context(), staff, c.Params("id"), req.FromTeacherID, req.ToTeacherID, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Close POST /staff/tickets/:id/close.
func (h *ReviewHandler) Close(c *fiber.Ctx) error {
	staff, err := staffFromContext(c)
	if err != nil {
		return err
	}
	ticket, err := h.sessions.Close(c.Context(), staff, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Stale GET /staff/tickets/stale.
func (h *ReviewHandler) Stale(c *fiber.Ctx) error {
	if _, err := staffFromContext(c); err != nil {
		return err
	}
	sessions, err := h.liveness.ListStale(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sessions})
}
