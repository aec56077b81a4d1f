package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/recitation-service/internal/domain"
	"github.com/spec-kit/recitation-service/internal/events"
	"github.com/spec-kit/recitation-service/internal/repository"
	apperrors "github.com/spec-kit/recitation-service/pkg/util"
)

// ReviewService is the terminal approve/reject gate for submitted tickets.
// The status write is the exactly-once guard: side effects (mistake
// migration, homework creation) run only after winning the conditional
// update, so a double approve performs one migration and one StateConflict.
type ReviewService struct {
	tickets     repository.TicketRepository
	mistakes    repository.MistakeHistoryRepository
	assignments repository.AssignmentRepository
	audit       repository.TicketAuditRepository
	dispatcher  events.Dispatcher
	now         func() time.Time
}

// ReviewDependencies bundles collaborators for the review service.
type ReviewDependencies struct {
	TicketRepo     repository.TicketRepository
	MistakeRepo    repository.MistakeHistoryRepository
	AssignmentRepo repository.AssignmentRepository
	AuditRepo      repository.TicketAuditRepository
	Dispatcher     events.Dispatcher
	Clock          func() time.Time
}

// HomeworkInput describes the assignment created alongside an approval.
type HomeworkInput struct {
	Title       string
	Description string
	AyahRange   *domain.AyahRange
	DueAt       *time.Time
}

// NewReviewService constructs the service.
func NewReviewService(deps ReviewDependencies) *ReviewService {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &ReviewService{
		tickets:     deps.TicketRepo,
		mistakes:    deps.MistakeRepo,
		assignments: deps.AssignmentRepo,
		audit:       deps.AuditRepo,
		dispatcher:  deps.Dispatcher,
		now:         clock,
	}
}

// Approve transitions a submitted ticket to approved, migrates the frozen
// mistakes into the student's durable history with provenance, and creates
// homework when requested.
func (s *ReviewService) Approve(ctx context.Context, reviewer *domain.StaffMember, ticketID, reviewNotes string, homework *HomeworkInput) (*domain.TicketRecord, error) {
	if reviewer == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	ticket, err := s.loadSubmitted(ctx, ticketID, "approve")
	if err != nil {
		return nil, err
	}

	now := s.now()
	ticket.Status = domain.TicketStatusApproved
	ticket.ReviewedBy = &reviewer.ID
	ticket.ReviewNotes = strings.TrimSpace(reviewNotes)
	ticket.ReviewedAt = &now

	if err := s.commitReview(ctx, ticket, "approve"); err != nil {
		return nil, err
	}

	migrated, err := s.migrateMistakes(ctx, ticket)
	if err != nil {
		return nil, err
	}

	homeworkCreated := false
	if homework != nil {
		if err := s.createHomework(ctx, reviewer, ticket, homework); err != nil {
			return nil, err
		}
		homeworkCreated = true
	}

	s.recordReview(ctx, reviewer, ticket, domain.TicketStatusSubmitted)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketApproved,
		TicketID: ticket.ID,
		Actor:    staffActor(reviewer.ID),
		Payload: events.ReviewPayload{
			ReviewerID:      reviewer.ID,
			ReviewNotes:     ticket.ReviewNotes,
			MigratedCount:   migrated,
			HomeworkCreated: homeworkCreated,
		},
	})
	return ticket, nil
}

// Reject transitions a submitted ticket to rejected. Mistakes are not
// migrated; the ticket becomes eligible for reassignment. Review notes are
// mandatory so the next teacher knows what to fix.
func (s *ReviewService) Reject(ctx context.Context, reviewer *domain.StaffMember, ticketID, reviewNotes string) (*domain.TicketRecord, error) {
	if reviewer == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	if strings.TrimSpace(reviewNotes) == "" {
		return nil, apperrors.NewValidationError("review notes required when rejecting", nil)
	}
	ticket, err := s.loadSubmitted(ctx, ticketID, "reject")
	if err != nil {
		return nil, err
	}

	now := s.now()
	ticket.Status = domain.TicketStatusRejected
	ticket.ReviewedBy = &reviewer.ID
	ticket.ReviewNotes = strings.TrimSpace(reviewNotes)
	ticket.ReviewedAt = &now

	if err := s.commitReview(ctx, ticket, "reject"); err != nil {
		return nil, err
	}

	s.recordReview(ctx, reviewer, ticket, domain.TicketStatusSubmitted)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketRejected,
		TicketID: ticket.ID,
		Actor:    staffActor(reviewer.ID),
		Payload: events.ReviewPayload{
			ReviewerID:  reviewer.ID,
			ReviewNotes: ticket.ReviewNotes,
		},
	})
	return ticket, nil
}

func (s *ReviewService) loadSubmitted(ctx context.Context, ticketID, requested string) (*domain.TicketRecord, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if ticket.Status != domain.TicketStatusSubmitted {
		return nil, apperrors.NewStateConflict(string(ticket.Status), requested, nil)
	}
	return ticket, nil
}

func (s *ReviewService) commitReview(ctx context.Context, ticket *domain.TicketRecord, requested string) error {
	err := s.tickets.UpdateGuarded(ctx, ticket, domain.TicketStatusSubmitted)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrGuardFailed) {
		return apperrors.MapError(err)
	}
	current, readErr := s.tickets.GetByID(ctx, ticket.ID)
	if readErr != nil {
		return ticketLookupError(readErr, ticket.ID)
	}
	return apperrors.NewStateConflict(string(current.Status), requested, nil)
}

func (s *ReviewService) migrateMistakes(ctx context.Context, ticket *domain.TicketRecord) (int, error) {
	if len(ticket.Mistakes) == 0 {
		return 0, nil
	}
	records := make([]domain.StudentMistake, 0, len(ticket.Mistakes))
	for _, entry := range ticket.Mistakes {
		records = append(records, domain.StudentMistake{
			StudentID:    ticket.StudentID,
			TicketID:     ticket.ID,
			WorkflowStep: ticket.WorkflowStep,
			Entry:        entry,
		})
	}
	if err := s.mistakes.BulkInsert(ctx, records); err != nil {
		return 0, apperrors.MapError(err)
	}
	return len(records), nil
}

func (s *ReviewService) createHomework(ctx context.Context, reviewer *domain.StaffMember, ticket *domain.TicketRecord, homework *HomeworkInput) error {
	teacherID := reviewer.ID
	if ticket.TeacherID != nil {
		teacherID = *ticket.TeacherID
	}
	assignment := &domain.Assignment{
		StudentID:    ticket.StudentID,
		TeacherID:    teacherID,
		WorkflowStep: ticket.WorkflowStep,
		Title:        strings.TrimSpace(homework.Title),
		Description:  strings.TrimSpace(homework.Description),
		AyahRange:    homework.AyahRange,
		FromTicketID: &ticket.ID,
		DueAt:        homework.DueAt,
	}
	if assignment.Title == "" {
		return apperrors.NewValidationError("homework title required", nil)
	}
	if err := s.assignments.Create(ctx, assignment); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

func (s *ReviewService) recordReview(ctx context.Context, reviewer *domain.StaffMember, ticket *domain.TicketRecord, oldStatus domain.TicketStatus) {
	if s.audit == nil {
		return
	}
	entry := &domain.TicketAudit{
		TicketID:      ticket.ID,
		ChangedByType: domain.SubjectTypeStaff,
		ChangedByID:   &reviewer.ID,
		ChangeType:    domain.ChangeTypeReview,
		OldValue: map[string]any{
			"status": oldStatus,
		},
		NewValue: map[string]any{
			"status":       ticket.Status,
			"review_notes": ticket.ReviewNotes,
		},
	}
	_ = s.audit.Create(ctx, entry)
}

func (s *ReviewService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
