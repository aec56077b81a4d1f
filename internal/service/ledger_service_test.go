package service

import (
	"context"
	"testing"
	"time"

	"github.com/spec-kit/recitation-service/internal/domain"
	apperrors "github.com/spec-kit/recitation-service/pkg/util"
)

type ledgerFixture struct {
	tickets    *fakeTicketRepo
	dispatcher *recordingDispatcher
	clock      *fakeClock
	service    *LedgerService
}

func newLedgerFixture() *ledgerFixture {
	f := &ledgerFixture{
		tickets:    newFakeTicketRepo(),
		dispatcher: &recordingDispatcher{},
		clock:      newFakeClock(baseTime),
	}
	f.service = NewLedgerService(LedgerDependencies{
		TicketRepo: f.tickets,
		Dispatcher: f.dispatcher,
		Clock:      f.clock.Now,
	})
	return f
}

func inProgressTicket(id, studentID, teacherID string) *domain.TicketRecord {
	started := baseTime.Add(-time.Minute)
	return &domain.TicketRecord{
		ID:           id,
		StudentID:    studentID,
		TeacherID:    &teacherID,
		WorkflowStep: domain.WorkflowStepSabq,
		Status:       domain.TicketStatusInProgress,
		StartedAt:    &started,
		Mistakes:     []domain.MistakeEntry{},
	}
}

func TestAddMistakeAppendsAndStamps(t *testing.T) {
	f := newLedgerFixture()
	f.tickets.put(inProgressTicket("ticket-1", "s1", "t1"))
	teacher := newTeacher("t1")

	ticket, err := f.service.AddMistake(context.Background(), teacher, "ticket-1", domain.MistakeEntry{
		Type:     "tajweed",
		Category: "ghunnah",
		Page:     4,
		Surah:    2,
		Ayah:     15,
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(ticket.Mistakes) != 1 {
		t.Fatalf("ledger size = %d, want 1", len(ticket.Mistakes))
	}
	if !ticket.Mistakes[0].Timestamp.Equal(baseTime) {
		t.Errorf("timestamp = %v, want server-stamped %v", ticket.Mistakes[0].Timestamp, baseTime)
	}

	stored, _ := f.tickets.GetByID(context.Background(), "ticket-1")
	if len(stored.Mistakes) != 1 {
		t.Errorf("persisted ledger size = %d, want 1", len(stored.Mistakes))
	}
}

func TestAddMistakeKeepsClientTimestamp(t *testing.T) {
	f := newLedgerFixture()
	f.tickets.put(inProgressTicket("ticket-1", "s1", "t1"))

	clientTime := baseTime.Add(-30 * time.Second)
	ticket, err := f.service.AddMistake(context.Background(), newTeacher("t1"), "ticket-1", domain.MistakeEntry{
		Type:      "hifz",
		Category:  "hesitation",
		Page:      10,
		Timestamp: clientTime,
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !ticket.Mistakes[0].Timestamp.Equal(clientTime) {
		t.Errorf("timestamp = %v, want %v", ticket.Mistakes[0].Timestamp, clientTime)
	}
}

func TestAddMistakeRequiresTypeAndCategory(t *testing.T) {
	f := newLedgerFixture()
	f.tickets.put(inProgressTicket("ticket-1", "s1", "t1"))

	_, err := f.service.AddMistake(context.Background(), newTeacher("t1"), "ticket-1", domain.MistakeEntry{Page: 4})
	if !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("err = %v, want VALIDATION_FAILED", err)
	}
}

func TestAddMistakeWhilePaused(t *testing.T) {
	f := newLedgerFixture()
	ticket := inProgressTicket("ticket-1", "s1", "t1")
	ticket.Status = domain.TicketStatusPaused
	f.tickets.put(ticket)

	if _, err := f.service.AddMistake(context.Background(), newTeacher("t1"), "ticket-1", domain.MistakeEntry{
		Type: "tajweed", Category: "madd", Page: 1,
	}); err != nil {
		t.Fatalf("paused sessions accept ledger edits: %v", err)
	}
}

func TestLedgerFrozenAfterSubmit(t *testing.T) {
	f := newLedgerFixture()
	ticket := inProgressTicket("ticket-1", "s1", "t1")
	ticket.Status = domain.TicketStatusSubmitted
	ticket.Mistakes = []domain.MistakeEntry{{Type: "tajweed", Category: "madd", Page: 1}}
	f.tickets.put(ticket)

	teacher := newTeacher("t1")
	if _, err := f.service.AddMistake(context.Background(), teacher, "ticket-1", domain.MistakeEntry{
		Type: "tajweed", Category: "madd", Page: 2,
	}); !apperrors.IsCode(err, "STATE_CONFLICT") {
		t.Fatalf("add err = %v, want STATE_CONFLICT", err)
	}
	if _, err := f.service.RemoveMistake(context.Background(), teacher, "ticket-1", 0); !apperrors.IsCode(err, "STATE_CONFLICT") {
		t.Fatalf("remove err = %v, want STATE_CONFLICT", err)
	}
}

func TestRemoveMistakeOutOfBounds(t *testing.T) {
	f := newLedgerFixture()
	ticket := inProgressTicket("ticket-1", "s1", "t1")
	ticket.Mistakes = []domain.MistakeEntry{{Type: "tajweed", Category: "madd", Page: 1}}
	f.tickets.put(ticket)

	teacher := newTeacher("t1")
	for _, index := range []int{-1, 1, 5} {
		if _, err := f.service.RemoveMistake(context.Background(), teacher, "ticket-1", index); !apperrors.IsCode(err, "NOT_FOUND") {
			t.Errorf("index %d: err = %v, want NOT_FOUND", index, err)
		}
	}
}

func TestRemoveMistakeShiftsLedger(t *testing.T) {
	f := newLedgerFixture()
	ticket := inProgressTicket("ticket-1", "s1", "t1")
	ticket.Mistakes = []domain.MistakeEntry{
		{Type: "tajweed", Category: "madd", Page: 1},
		{Type: "hifz", Category: "forgotten", Page: 2},
		{Type: "tajweed", Category: "ghunnah", Page: 3},
	}
	f.tickets.put(ticket)

	got, err := f.service.RemoveMistake(context.Background(), newTeacher("t1"), "ticket-1", 1)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(got.Mistakes) != 2 {
		t.Fatalf("ledger size = %d, want 2", len(got.Mistakes))
	}
	if got.Mistakes[0].Page != 1 || got.Mistakes[1].Page != 3 {
		t.Errorf("remaining pages = %d,%d, want 1,3", got.Mistakes[0].Page, got.Mistakes[1].Page)
	}
}

func TestLedgerRequiresBinding(t *testing.T) {
	f := newLedgerFixture()
	f.tickets.put(inProgressTicket("ticket-1", "s1", "t1"))

	_, err := f.service.AddMistake(context.Background(), newTeacher("t2"), "ticket-1", domain.MistakeEntry{
		Type: "tajweed", Category: "madd", Page: 1,
	})
	if !apperrors.IsCode(err, "FORBIDDEN") {
		t.Fatalf("err = %v, want FORBIDDEN", err)
	}
}
