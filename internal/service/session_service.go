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

// SessionService drives the ticket status lifecycle. It keeps no in-process
// session state: every command re-reads the persisted record, decides, and
// commits through a conditional write so racing commands resolve to exactly
// one winner.
type SessionService struct {
	tickets    repository.TicketRepository
	staff      repository.StaffRepository
	audit      repository.TicketAuditRepository
	dispatcher events.Dispatcher
	now        func() time.Time
}

// SessionDependencies bundles collaborators for the session service.
type SessionDependencies struct {
	TicketRepo repository.TicketRepository
	StaffRepo  repository.StaffRepository
	AuditRepo  repository.TicketAuditRepository
	Dispatcher events.Dispatcher
	Clock      func() time.Time
}

// NewSessionService constructs the service.
func NewSessionService(deps SessionDependencies) *SessionService {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionService{
		tickets:    deps.TicketRepo,
		staff:      deps.StaffRepo,
		audit:      deps.AuditRepo,
		dispatcher: deps.Dispatcher,
		now:        clock,
	}
}

// Start claims a pending ticket for the teacher and opens the session.
// The teacher binding happens through an atomic conditional write; when two
// teachers race for the same ticket exactly one wins.
func (s *SessionService) Start(ctx context.Context, teacher *domain.StaffMember, ticketID string, ayahRange *domain.AyahRange) (*domain.TicketRecord, error) {
	if teacher == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketStatusPending {
		return nil, apperrors.NewStateConflict(string(ticket.Status), "start", nil)
	}
	if ticket.TeacherID != nil && *ticket.TeacherID != teacher.ID {
		return nil, apperrors.NewForbidden("ticket is reserved for another teacher")
	}
	if ayahRange != nil {
		if err := lockRangeOnStart(ticket, ayahRange); err != nil {
			return nil, err
		}
	} else {
		ticket.RangeLocked = true
	}

	now := s.now()
	ticket.Status = domain.TicketStatusInProgress
	ticket.TeacherID = &teacher.ID
	ticket.StartedAt = &now
	ticket.PausedAt = nil
	ticket.PausedSeconds = 0
	ticket.LastHeartbeatAt = nil

	if err := s.tickets.ClaimForStart(ctx, ticket); err != nil {
		if errors.Is(err, repository.ErrGuardFailed) {
			return nil, s.classifyStartLoss(ctx, ticketID)
		}
		return nil, apperrors.MapError(err)
	}

	s.recordStatusChange(ctx, teacher, ticket.ID, domain.TicketStatusPending, ticket.Status)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventSessionStarted,
		TicketID: ticket.ID,
		Actor:    staffActor(teacher.ID),
		Payload: events.SessionStartedPayload{
			TeacherID:    teacher.ID,
			WorkflowStep: ticket.WorkflowStep,
			AyahRange:    ticket.AyahRange,
		},
	})
	return ticket, nil
}

// Pause suspends an in-progress session. The pause start is recorded on the
// record itself so duration accounting survives client refreshes.
func (s *SessionService) Pause(ctx context.Context, teacher *domain.StaffMember, ticketID string) (*domain.TicketRecord, error) {
	ticket, err := s.loadOwnedSession(ctx, teacher, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketStatusInProgress {
		return nil, apperrors.NewStateConflict(string(ticket.Status), "pause", nil)
	}

	now := s.now()
	ticket.Status = domain.TicketStatusPaused
	ticket.PausedAt = &now

	if err := s.commitTransition(ctx, ticket, "pause", domain.TicketStatusInProgress); err != nil {
		return nil, err
	}
	s.recordStatusChange(ctx, teacher, ticket.ID, domain.TicketStatusInProgress, ticket.Status)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventSessionPaused,
		TicketID: ticket.ID,
		Actor:    staffActor(teacher.ID),
		Payload: events.StatusChangedPayload{
			OldStatus: domain.TicketStatusInProgress,
			NewStatus: ticket.Status,
		},
	})
	return ticket, nil
}

// Resume reopens a paused session, folding the elapsed pause interval into
// the pausedSeconds accumulator.
func (s *SessionService) Resume(ctx context.Context, teacher *domain.StaffMember, ticketID string) (*domain.TicketRecord, error) {
	ticket, err := s.loadOwnedSession(ctx, teacher, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketStatusPaused {
		return nil, apperrors.NewStateConflict(string(ticket.Status), "resume", nil)
	}

	now := s.now()
	ticket.PausedSeconds += elapsedSeconds(ticket.PausedAt, now)
	ticket.PausedAt = nil
	ticket.Status = domain.TicketStatusInProgress

	if err := s.commitTransition(ctx, ticket, "resume", domain.TicketStatusPaused); err != nil {
		return nil, err
	}
	s.recordStatusChange(ctx, teacher, ticket.ID, domain.TicketStatusPaused, ticket.Status)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventSessionResumed,
		TicketID: ticket.ID,
		Actor:    staffActor(teacher.ID),
		Payload: events.StatusChangedPayload{
			OldStatus: domain.TicketStatusPaused,
			NewStatus: ticket.Status,
		},
	})
	return ticket, nil
}

// SubmitForReview finalizes the session: listening duration is computed as
// wall-clock time since start minus the accumulated pause time, and the
// mistake ledger freezes.
func (s *SessionService) SubmitForReview(ctx context.Context, teacher *domain.StaffMember, ticketID, sessionNotes string) (*domain.TicketRecord, error) {
	ticket, err := s.loadOwnedSession(ctx, teacher, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketStatusInProgress && ticket.Status != domain.TicketStatusPaused {
		return nil, apperrors.NewStateConflict(string(ticket.Status), "submit", nil)
	}
	if ticket.StartedAt == nil {
		return nil, apperrors.NewInternalError(errors.New("session has no start timestamp"))
	}

	now := s.now()
	oldStatus := ticket.Status
	if ticket.Status == domain.TicketStatusPaused {
		ticket.PausedSeconds += elapsedSeconds(ticket.PausedAt, now)
		ticket.PausedAt = nil
	}
	listening := elapsedSeconds(ticket.StartedAt, now) - ticket.PausedSeconds
	if listening < 0 {
		listening = 0
	}
	ticket.ListeningDurationSeconds = &listening
	ticket.SubmittedAt = &now
	ticket.SessionNotes = strings.TrimSpace(sessionNotes)
	ticket.Status = domain.TicketStatusSubmitted

	if err := s.commitTransition(ctx, ticket, "submit", oldStatus); err != nil {
		return nil, err
	}
	s.recordStatusChange(ctx, teacher, ticket.ID, oldStatus, ticket.Status)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventSessionSubmitted,
		TicketID: ticket.ID,
		Actor:    staffActor(teacher.ID),
		Payload: events.SessionSubmittedPayload{
			ListeningDurationSeconds: listening,
			MistakeCount:             len(ticket.Mistakes),
		},
	})
	return ticket, nil
}

// Reassign hands the ticket to another teacher (or back to the open pool).
// The current session is archived: mistakes move to previousMistakes, the
// range unlocks, and duration accounting resets for the next teacher.
func (s *SessionService) Reassign(ctx context.Context, actor *domain.StaffMember, ticketID, fromTeacherID, toTeacherID, reason string) (*domain.TicketRecord, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.NewValidationError("reassignment reason required", nil)
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !reassignable(ticket.Status) {
		return nil, apperrors.NewStateConflict(string(ticket.Status), "reassign", nil)
	}
	if ticket.TeacherID != nil && fromTeacherID != "" && *ticket.TeacherID != fromTeacherID {
		return nil, apperrors.NewConflict("ticket is not bound to the given teacher",
			map[string]any{"from_teacher_id": fromTeacherID})
	}

	fromID := ticket.TeacherID
	fromName := s.staffName(ctx, fromID)
	var toID *string
	toName := ""
	if toTeacherID != "" {
		target, err := s.staff.GetByID(ctx, toTeacherID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewNotFound("teacher", map[string]any{"teacher_id": toTeacherID})
			}
			return nil, apperrors.MapError(err)
		}
		if !target.Active {
			return nil, apperrors.NewConflict("target teacher inactive", map[string]any{"teacher_id": toTeacherID})
		}
		toID = &target.ID
		toName = target.Name
	}

	now := s.now()
	oldStatus := ticket.Status

	ticket.PreviousMistakes = ticket.Mistakes
	ticket.Mistakes = []domain.MistakeEntry{}
	ticket.PreviousTeacherComment = ticket.SessionNotes
	ticket.SessionNotes = ""
	ticket.TeacherID = toID
	ticket.StartedAt = nil
	ticket.PausedAt = nil
	ticket.PausedSeconds = 0
	ticket.LastHeartbeatAt = nil
	ticket.SubmittedAt = nil
	ticket.ListeningDurationSeconds = nil
	clearRangeOnReassign(ticket)
	ticket.ReassignedFromTeacherID = fromID
	ticket.ReassignedFromTeacherName = fromName
	ticket.ReassignedToTeacherID = toID
	ticket.ReassignedToTeacherName = toName
	ticket.ReassignmentReason = strings.TrimSpace(reason)
	ticket.ReassignedAt = &now
	ticket.Status = domain.TicketStatusPending

	if err := s.commitTransition(ctx, ticket, "reassign", oldStatus); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, ticket.ID, domain.ChangeTypeReassignment,
		map[string]any{"status": oldStatus, "teacher_id": derefOrNil(fromID)},
		map[string]any{"status": ticket.Status, "teacher_id": derefOrNil(toID), "reason": ticket.ReassignmentReason},
	)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketReassigned,
		TicketID: ticket.ID,
		Actor:    staffActor(actor.ID),
		Payload: events.ReassignedPayload{
			FromTeacherID: fromID,
			ToTeacherID:   toID,
			Reason:        ticket.ReassignmentReason,
		},
	})
	return ticket, nil
}

// Close ends a ticket administratively. Pending tickets cannot be closed
// (they were never worked), and terminal tickets stay as they are.
func (s *SessionService) Close(ctx context.Context, actor *domain.StaffMember, ticketID string) (*domain.TicketRecord, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == domain.TicketStatusPending || ticket.Terminal() {
		return nil, apperrors.NewStateConflict(string(ticket.Status), "close", nil)
	}

	oldStatus := ticket.Status
	ticket.Status = domain.TicketStatusClosed
	ticket.PausedAt = nil

	if err := s.commitTransition(ctx, ticket, "close", oldStatus); err != nil {
		return nil, err
	}
	s.recordStatusChange(ctx, actor, ticket.ID, oldStatus, ticket.Status)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketClosed,
		TicketID: ticket.ID,
		Actor:    staffActor(actor.ID),
		Payload: events.StatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: ticket.Status,
		},
	})
	return ticket, nil
}

// GetForStaff fetches a ticket for a teacher or admin. Teachers see only
// tickets bound to them or still unclaimed.
func (s *SessionService) GetForStaff(ctx context.Context, staff *domain.StaffMember, ticketID string) (*domain.TicketRecord, error) {
	if staff == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if staff.Role != domain.StaffRoleAdmin && ticket.TeacherID != nil && *ticket.TeacherID != staff.ID {
		return nil, apperrors.NewForbidden("access denied")
	}
	return ticket, nil
}

// ListForStaff returns the staff queue. Teachers are scoped to their own
// tickets plus the unclaimed pending pool.
func (s *SessionService) ListForStaff(ctx context.Context, staff *domain.StaffMember, filter repository.TicketFilter) ([]domain.TicketRecord, error) {
	if staff == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	if staff.Role != domain.StaffRoleAdmin {
		filter.TeacherID = &staff.ID
	}
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ListForStudent returns a student's own tickets.
func (s *SessionService) ListForStudent(ctx context.Context, studentID string, limit, offset int) ([]domain.TicketRecord, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		StudentID: &studentID,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// GetForStudent fetches a ticket ensuring ownership.
func (s *SessionService) GetForStudent(ctx context.Context, studentID, ticketID string) (*domain.TicketRecord, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.StudentID != studentID {
		return nil, apperrors.NewForbidden("access denied")
	}
	return ticket, nil
}

func (s *SessionService) getTicket(ctx context.Context, ticketID string) (*domain.TicketRecord, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *SessionService) loadOwnedSession(ctx context.Context, teacher *domain.StaffMember, ticketID string) (*domain.TicketRecord, error) {
	if teacher == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.BoundTo(teacher.ID) {
		return nil, apperrors.NewForbidden("session belongs to another teacher")
	}
	return ticket, nil
}

// commitTransition performs the guarded write and converts a lost race into
// the StateConflict the caller would have seen on a fresh read.
func (s *SessionService) commitTransition(ctx context.Context, ticket *domain.TicketRecord, requested string, expected ...domain.TicketStatus) error {
	err := s.tickets.UpdateGuarded(ctx, ticket, expected...)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrGuardFailed) {
		return apperrors.MapError(err)
	}
	current, readErr := s.tickets.GetByID(ctx, ticket.ID)
	if readErr != nil {
		if errors.Is(readErr, pgx.ErrNoRows) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticket.ID})
		}
		return apperrors.MapError(readErr)
	}
	return apperrors.NewStateConflict(string(current.Status), requested, nil)
}

func (s *SessionService) classifyStartLoss(ctx context.Context, ticketID string) error {
	current, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return apperrors.MapError(err)
	}
	if current.Status == domain.TicketStatusPending {
		return apperrors.NewForbidden("ticket claimed by another teacher")
	}
	return apperrors.NewConflict("ticket already started",
		map[string]any{"current_status": current.Status})
}

func (s *SessionService) recordStatusChange(ctx context.Context, actor *domain.StaffMember, ticketID string, oldStatus, newStatus domain.TicketStatus) {
	s.recordAudit(ctx, actor, ticketID, domain.ChangeTypeStatus,
		map[string]any{"status": oldStatus},
		map[string]any{"status": newStatus},
	)
}

func (s *SessionService) recordAudit(ctx context.Context, actor *domain.StaffMember, ticketID string, changeType domain.TicketChangeType, oldValue, newValue map[string]any) {
	if s.audit == nil {
		return
	}
	entry := &domain.TicketAudit{
		TicketID:      ticketID,
		ChangedByType: domain.SubjectTypeStaff,
		ChangedByID:   &actor.ID,
		ChangeType:    changeType,
		OldValue:      oldValue,
		NewValue:      newValue,
	}
	_ = s.audit.Create(ctx, entry)
}

func (s *SessionService) staffName(ctx context.Context, id *string) string {
	if id == nil {
		return ""
	}
	staff, err := s.staff.GetByID(ctx, *id)
	if err != nil {
		return ""
	}
	return staff.Name
}

func (s *SessionService) publishEvent(ctx context.Context, event events.Event) {
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

func ticketLookupError(err error, ticketID string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return apperrors.MapError(err)
}

func reassignable(status domain.TicketStatus) bool {
	switch status {
	case domain.TicketStatusRejected, domain.TicketStatusInProgress,
		domain.TicketStatusPaused, domain.TicketStatusPending:
		return true
	}
	return false
}

func elapsedSeconds(from *time.Time, until time.Time) int {
	if from == nil {
		return 0
	}
	seconds := int(until.Sub(*from).Seconds())
	if seconds < 0 {
		return 0
	}
	return seconds
}

func derefOrNil(id *string) any {
	if id == nil {
		return nil
	}
	return *id
}

func staffActor(staffID string) events.Actor {
	return events.Actor{
		Type:    domain.SubjectTypeStaff,
		StaffID: &staffID,
	}
}
