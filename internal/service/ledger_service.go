package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/recitation-service/internal/domain"
	"github.com/spec-kit/recitation-service/internal/events"
	"github.com/spec-kit/recitation-service/internal/repository"
	apperrors "github.com/spec-kit/recitation-service/pkg/util"
)

// LedgerService mutates the session-scoped mistake ledger. The ledger lives
// inside the ticket row, so every change is one guarded write; once the
// session is submitted the ledger is frozen and stale-client retries bounce
// off the status guard.
type LedgerService struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	now        func() time.Time
}

// LedgerDependencies bundles collaborators for the ledger service.
type LedgerDependencies struct {
	TicketRepo repository.TicketRepository
	Dispatcher events.Dispatcher
	Clock      func() time.Time
}

// NewLedgerService constructs the service.
func NewLedgerService(deps LedgerDependencies) *LedgerService {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &LedgerService{
		tickets:    deps.TicketRepo,
		dispatcher: deps.Dispatcher,
		now:        clock,
	}
}

// AddMistake appends a located mistake annotation to the session ledger.
// The entry timestamp is server-stamped when the client omits it.
func (s *LedgerService) AddMistake(ctx context.Context, teacher *domain.StaffMember, ticketID string, entry domain.MistakeEntry) (*domain.TicketRecord, error) {
	ticket, err := s.loadMutableLedger(ctx, teacher, ticketID, "add mistake")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(entry.Type) == "" || strings.TrimSpace(entry.Category) == "" {
		return nil, apperrors.NewValidationError("mistake type and category required", nil)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}

	ticket.Mistakes = append(ticket.Mistakes, entry)

	if err := s.commit(ctx, ticket, "add mistake"); err != nil {
		return nil, err
	}
	s.publish(ctx, teacher.ID, events.Event{
		Type:     events.EventMistakeAdded,
		TicketID: ticket.ID,
		Payload: events.MistakeChangedPayload{
			Index:       len(ticket.Mistakes) - 1,
			MistakeType: entry.Type,
			LedgerSize:  len(ticket.Mistakes),
		},
	})
	return ticket, nil
}

// RemoveMistake deletes the entry at the given position.
func (s *LedgerService) RemoveMistake(ctx context.Context, teacher *domain.StaffMember, ticketID string, index int) (*domain.TicketRecord, error) {
	ticket, err := s.loadMutableLedger(ctx, teacher, ticketID, "remove mistake")
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(ticket.Mistakes) {
		return nil, apperrors.NewNotFound("mistake", map[string]any{
			"index":       index,
			"ledger_size": len(ticket.Mistakes),
		})
	}

	removed := ticket.Mistakes[index]
	ticket.Mistakes = append(ticket.Mistakes[:index], ticket.Mistakes[index+1:]...)

	if err := s.commit(ctx, ticket, "remove mistake"); err != nil {
		return nil, err
	}
	s.publish(ctx, teacher.ID, events.Event{
		Type:     events.EventMistakeRemoved,
		TicketID: ticket.ID,
		Payload: events.MistakeChangedPayload{
			Index:       index,
			MistakeType: removed.Type,
			LedgerSize:  len(ticket.Mistakes),
		},
	})
	return ticket, nil
}

func (s *LedgerService) loadMutableLedger(ctx context.Context, teacher *domain.StaffMember, ticketID, requested string) (*domain.TicketRecord, error) {
	if teacher == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, ticketLookupError(err, ticketID)
	}
	if !ticket.BoundTo(teacher.ID) {
		return nil, apperrors.NewForbidden("session belongs to another teacher")
	}
	if !ticket.LedgerMutable() {
		return nil, apperrors.NewStateConflict(string(ticket.Status), requested, nil)
	}
	return ticket, nil
}

func (s *LedgerService) commit(ctx context.Context, ticket *domain.TicketRecord, requested string) error {
	err := s.tickets.UpdateGuarded(ctx, ticket,
		domain.TicketStatusInProgress, domain.TicketStatusPaused)
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

func (s *LedgerService) publish(ctx context.Context, teacherID string, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	event.Actor = staffActor(teacherID)
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
