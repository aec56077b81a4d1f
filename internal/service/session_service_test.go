package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/recitation-service/internal/domain"
	"github.com/spec-kit/recitation-service/internal/events"
	"github.com/spec-kit/recitation-service/internal/repository"
	apperrors "github.com/spec-kit/recitation-service/pkg/util"
)

var baseTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newTeacher(id string) *domain.StaffMember {
	return &domain.StaffMember{ID: id, Name: "Teacher " + id, Role: domain.StaffRoleTeacher, Active: true}
}

func newAdmin(id string) *domain.StaffMember {
	return &domain.StaffMember{ID: id, Name: "Admin " + id, Role: domain.StaffRoleAdmin, Active: true}
}

func pendingTicket(id, studentID string) *domain.TicketRecord {
	return &domain.TicketRecord{
		ID:           id,
		StudentID:    studentID,
		WorkflowStep: domain.WorkflowStepSabq,
		Status:       domain.TicketStatusPending,
		Mistakes:     []domain.MistakeEntry{},
	}
}

type sessionFixture struct {
	tickets    *fakeTicketRepo
	staff      *fakeStaffRepo
	audit      *fakeAuditRepo
	dispatcher *recordingDispatcher
	clock      *fakeClock
	service    *SessionService
}

func newSessionFixture(staffMembers ...*domain.StaffMember) *sessionFixture {
	f := &sessionFixture{
		tickets:    newFakeTicketRepo(),
		staff:      newFakeStaffRepo(staffMembers...),
		audit:      &fakeAuditRepo{},
		dispatcher: &recordingDispatcher{},
		clock:      newFakeClock(baseTime),
	}
	f.service = NewSessionService(SessionDependencies{
		TicketRepo: f.tickets,
		StaffRepo:  f.staff,
		AuditRepo:  f.audit,
		Dispatcher: f.dispatcher,
		Clock:      f.clock.Now,
	})
	return f
}

func TestStartClaimsPendingTicket(t *testing.T) {
	teacher := newTeacher("t1")
	f := newSessionFixture(teacher)
	f.tickets.put(pendingTicket("ticket-1", "s1"))

	rng := &domain.AyahRange{FromSurah: 2, FromAyah: 1, ToSurah: 2, ToAyah: 20}
	ticket, err := f.service.Start(context.Background(), teacher, "ticket-1", rng)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if ticket.Status != domain.TicketStatusInProgress {
		t.Errorf("status = %s, want IN_PROGRESS", ticket.Status)
	}
	if ticket.TeacherID == nil || *ticket.TeacherID != "t1" {
		t.Errorf("teacher not bound: %v", ticket.TeacherID)
	}
	if ticket.StartedAt == nil || !ticket.StartedAt.Equal(baseTime) {
		t.Errorf("startedAt = %v, want %v", ticket.StartedAt, baseTime)
	}
	if !ticket.RangeLocked {
		t.Error("range should be locked on start")
	}
	if got := f.dispatcher.byType(events.EventSessionStarted); len(got) != 1 {
		t.Errorf("started events = %d, want 1", len(got))
	}
}

func TestStartRejectsInvalidRange(t *testing.T) {
	teacher := newTeacher("t1")
	f := newSessionFixture(teacher)
	f.tickets.put(pendingTicket("ticket-1", "s1"))

	rng := &domain.AyahRange{FromSurah: 3, FromAyah: 10, ToSurah: 2, ToAyah: 1}
	_, err := f.service.Start(context.Background(), teacher, "ticket-1", rng)
	if !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("err = %v, want VALIDATION_FAILED", err)
	}
}

func TestStartReservedForAnotherTeacher(t *testing.T) {
	teacher := newTeacher("t1")
	f := newSessionFixture(teacher)
	ticket := pendingTicket("ticket-1", "s1")
	ticket.TeacherID = strPtr("t2")
	f.tickets.put(ticket)

	_, err := f.service.Start(context.Background(), teacher, "ticket-1", nil)
	if !apperrors.IsCode(err, "FORBIDDEN") {
		t.Fatalf("err = %v, want FORBIDDEN", err)
	}
}

func TestStartUnknownTicket(t *testing.T) {
	teacher := newTeacher("t1")
	f := newSessionFixture(teacher)

	_, err := f.service.Start(context.Background(), teacher, "missing", nil)
	if !apperrors.IsCode(err, "NOT_FOUND") {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
}

func TestStartRaceHasOneWinner(t *testing.T) {
	a, b := newTeacher("t1"), newTeacher("t2")
	f := newSessionFixture(a, b)
	f.tickets.put(pendingTicket("ticket-1", "s1"))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, teacher := range []*domain.StaffMember{a, b} {
		wg.Add(1)
		go func(i int, teacher *domain.StaffMember) {
			defer wg.Done()
			_, errs[i] = f.service.Start(context.Background(), teacher, "ticket-1", nil)
		}(i, teacher)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1 (errs: %v)", wins, errs)
	}

	stored, err := f.tickets.GetByID(context.Background(), "ticket-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.TicketStatusInProgress {
		t.Errorf("status = %s, want IN_PROGRESS", stored.Status)
	}
}

func TestIllegalTransitions(t *testing.T) {
	teacher := newTeacher("t1")

	cases := []struct {
		name   string
		status domain.TicketStatus
		call   func(*SessionService) error
	}{
		{"pause pending", domain.TicketStatusPending, func(s *SessionService) error {
			_, err := s.Pause(context.Background(), teacher, "ticket-1")
			return err
		}},
		{"pause submitted", domain.TicketStatusSubmitted, func(s *SessionService) error {
			_, err := s.Pause(context.Background(), teacher, "ticket-1")
			return err
		}},
		{"resume in progress", domain.TicketStatusInProgress, func(s *SessionService) error {
			_, err := s.Resume(context.Background(), teacher, "ticket-1")
			return err
		}},
		{"submit submitted", domain.TicketStatusSubmitted, func(s *SessionService) error {
			_, err := s.SubmitForReview(context.Background(), teacher, "ticket-1", "")
			return err
		}},
		{"submit approved", domain.TicketStatusApproved, func(s *SessionService) error {
			_, err := s.SubmitForReview(context.Background(), teacher, "ticket-1", "")
			return err
		}},
		{"start in progress", domain.TicketStatusInProgress, func(s *SessionService) error {
			_, err := s.Start(context.Background(), teacher, "ticket-1", nil)
			return err
		}},
		{"close pending", domain.TicketStatusPending, func(s *SessionService) error {
			_, err := s.Close(context.Background(), teacher, "ticket-1")
			return err
		}},
		{"close approved", domain.TicketStatusApproved, func(s *SessionService) error {
			_, err := s.Close(context.Background(), teacher, "ticket-1")
			return err
		}},
		{"reassign closed", domain.TicketStatusClosed, func(s *SessionService) error {
			_, err := s.Reassign(context.Background(), teacher, "ticket-1", "", "", "workload")
			return err
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newSessionFixture(teacher)
			ticket := pendingTicket("ticket-1", "s1")
			ticket.Status = tc.status
			ticket.TeacherID = strPtr("t1")
			if tc.status != domain.TicketStatusPending {
				started := baseTime.Add(-time.Hour)
				ticket.StartedAt = &started
			}
			f.tickets.put(ticket)

			err := tc.call(f.service)
			if !apperrors.IsCode(err, "STATE_CONFLICT") {
				t.Fatalf("err = %v, want STATE_CONFLICT", err)
			}
		})
	}
}

func TestDurationAccounting(t *testing.T) {
	teacher := newTeacher("t1")
	f := newSessionFixture(teacher)
	f.tickets.put(pendingTicket("ticket-1", "s1"))

	ctx := context.Background()
	if _, err := f.service.Start(ctx, teacher, "ticket-1", nil); err != nil {
		t.Fatalf("start: %v", err)
	}

	f.clock.Advance(10 * time.Second)
	if _, err := f.service.Pause(ctx, teacher, "ticket-1"); err != nil {
		t.Fatalf("pause: %v", err)
	}

	f.clock.Advance(10 * time.Second)
	resumed, err := f.service.Resume(ctx, teacher, "ticket-1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.PausedSeconds != 10 {
		t.Errorf("pausedSeconds = %d, want 10", resumed.PausedSeconds)
	}

	f.clock.Advance(10 * time.Second)
	submitted, err := f.service.SubmitForReview(ctx, teacher, "ticket-1", "good session")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.ListeningDurationSeconds == nil || *submitted.ListeningDurationSeconds != 20 {
		t.Errorf("listening = %v, want 20", submitted.ListeningDurationSeconds)
	}
	if submitted.SessionNotes != "good session" {
		t.Errorf("sessionNotes = %q", submitted.SessionNotes)
	}
	if submitted.SubmittedAt == nil {
		t.Error("submittedAt not set")
	}
}

func TestSubmitWhilePausedFoldsOpenPause(t *testing.T) {
	teacher := newTeacher("t1")
	f := newSessionFixture(teacher)
	f.tickets.put(pendingTicket("ticket-1", "s1"))

	ctx := context.Background()
	if _, err := f.service.Start(ctx, teacher, "ticket-1", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.clock.Advance(10 * time.Second)
	if _, err := f.service.Pause(ctx, teacher, "ticket-1"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	f.clock.Advance(20 * time.Second)

	submitted, err := f.service.SubmitForReview(ctx, teacher, "ticket-1", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.PausedSeconds != 20 {
		t.Errorf("pausedSeconds = %d, want 20", submitted.PausedSeconds)
	}
	if submitted.ListeningDurationSeconds == nil || *submitted.ListeningDurationSeconds != 10 {
		t.Errorf("listening = %v, want 10", submitted.ListeningDurationSeconds)
	}
}

func TestSessionCommandsRequireBinding(t *testing.T) {
	owner, other := newTeacher("t1"), newTeacher("t2")
	f := newSessionFixture(owner, other)
	ticket := pendingTicket("ticket-1", "s1")
	ticket.Status = domain.TicketStatusInProgress
	ticket.TeacherID = strPtr("t1")
	started := baseTime.Add(-time.Minute)
	ticket.StartedAt = &started
	f.tickets.put(ticket)

	if _, err := f.service.Pause(context.Background(), other, "ticket-1"); !apperrors.IsCode(err, "FORBIDDEN") {
		t.Fatalf("pause err = %v, want FORBIDDEN", err)
	}
	if _, err := f.service.SubmitForReview(context.Background(), other, "ticket-1", ""); !apperrors.IsCode(err, "FORBIDDEN") {
		t.Fatalf("submit err = %v, want FORBIDDEN", err)
	}
}

func TestReassignArchivesSession(t *testing.T) {
	from, to := newTeacher("t1"), newTeacher("t2")
	admin := newAdmin("a1")
	f := newSessionFixture(from, to, admin)

	ticket := pendingTicket("ticket-1", "s1")
	ticket.Status = domain.TicketStatusRejected
	ticket.TeacherID = strPtr("t1")
	started := baseTime.Add(-time.Hour)
	ticket.StartedAt = &started
	ticket.PausedSeconds = 30
	ticket.AyahRange = &domain.AyahRange{FromSurah: 2, FromAyah: 1, ToSurah: 2, ToAyah: 20}
	ticket.RangeLocked = true
	ticket.SessionNotes = "struggled with madd"
	ticket.Mistakes = []domain.MistakeEntry{{Type: "tajweed", Category: "madd", Page: 3}}
	f.tickets.put(ticket)

	got, err := f.service.Reassign(context.Background(), admin, "ticket-1", "t1", "t2", "teacher unavailable")
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if got.Status != domain.TicketStatusPending {
		t.Errorf("status = %s, want PENDING", got.Status)
	}
	if got.TeacherID == nil || *got.TeacherID != "t2" {
		t.Errorf("teacher = %v, want t2", got.TeacherID)
	}
	if len(got.PreviousMistakes) != 1 || len(got.Mistakes) != 0 {
		t.Errorf("mistakes not archived: prev=%d cur=%d", len(got.PreviousMistakes), len(got.Mistakes))
	}
	if got.PreviousTeacherComment != "struggled with madd" {
		t.Errorf("previousTeacherComment = %q", got.PreviousTeacherComment)
	}
	if got.StartedAt != nil || got.PausedSeconds != 0 || got.ListeningDurationSeconds != nil {
		t.Error("duration accounting should reset on reassign")
	}
	if got.RangeLocked || got.AyahRange != nil {
		t.Error("range should unlock and clear on reassign")
	}
	if got.ReassignedFromTeacherID == nil || *got.ReassignedFromTeacherID != "t1" {
		t.Errorf("reassignedFrom = %v", got.ReassignedFromTeacherID)
	}
	if got.ReassignmentReason != "teacher unavailable" {
		t.Errorf("reason = %q", got.ReassignmentReason)
	}
}

func TestReassignRequiresReason(t *testing.T) {
	admin := newAdmin("a1")
	f := newSessionFixture(admin)
	f.tickets.put(pendingTicket("ticket-1", "s1"))

	_, err := f.service.Reassign(context.Background(), admin, "ticket-1", "", "", "  ")
	if !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("err = %v, want VALIDATION_FAILED", err)
	}
}

func TestReassignToUnknownTeacher(t *testing.T) {
	admin := newAdmin("a1")
	f := newSessionFixture(admin)
	f.tickets.put(pendingTicket("ticket-1", "s1"))

	_, err := f.service.Reassign(context.Background(), admin, "ticket-1", "", "ghost", "cover")
	if !apperrors.IsCode(err, "NOT_FOUND") {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
}

func TestCloseFromSubmitted(t *testing.T) {
	admin := newAdmin("a1")
	f := newSessionFixture(admin)
	ticket := pendingTicket("ticket-1", "s1")
	ticket.Status = domain.TicketStatusSubmitted
	ticket.TeacherID = strPtr("t1")
	f.tickets.put(ticket)

	got, err := f.service.Close(context.Background(), admin, "ticket-1")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if got.Status != domain.TicketStatusClosed {
		t.Errorf("status = %s, want CLOSED", got.Status)
	}
}

func TestListForStaffScopesTeachers(t *testing.T) {
	teacher := newTeacher("t1")
	f := newSessionFixture(teacher)

	mine := pendingTicket("ticket-1", "s1")
	mine.Status = domain.TicketStatusInProgress
	mine.TeacherID = strPtr("t1")
	f.tickets.put(mine)

	theirs := pendingTicket("ticket-2", "s2")
	theirs.Status = domain.TicketStatusInProgress
	theirs.TeacherID = strPtr("t2")
	f.tickets.put(theirs)

	tickets, err := f.service.ListForStaff(context.Background(), teacher, repository.TicketFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tickets) != 1 || tickets[0].ID != "ticket-1" {
		t.Fatalf("tickets = %v, want only ticket-1", tickets)
	}
}

func TestGetForStudentEnforcesOwnership(t *testing.T) {
	f := newSessionFixture()
	f.tickets.put(pendingTicket("ticket-1", "s1"))

	if _, err := f.service.GetForStudent(context.Background(), "s1", "ticket-1"); err != nil {
		t.Fatalf("owner get: %v", err)
	}
	if _, err := f.service.GetForStudent(context.Background(), "s2", "ticket-1"); !apperrors.IsCode(err, "FORBIDDEN") {
		t.Fatalf("err = %v, want FORBIDDEN", err)
	}
}

func TestFullLifecycle(t *testing.T) {
	teacher := newTeacher("t1")
	f := newSessionFixture(teacher)
	f.tickets.put(pendingTicket("ticket-1", "s1"))

	ctx := context.Background()
	ledger := NewLedgerService(LedgerDependencies{
		TicketRepo: f.tickets,
		Dispatcher: f.dispatcher,
		Clock:      f.clock.Now,
	})

	rng := &domain.AyahRange{FromSurah: 67, FromAyah: 1, ToSurah: 67, ToAyah: 30}
	if _, err := f.service.Start(ctx, teacher, "ticket-1", rng); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.clock.Advance(5 * time.Minute)
	if _, err := ledger.AddMistake(ctx, teacher, "ticket-1", domain.MistakeEntry{Type: "hifz", Category: "forgotten", Page: 562}); err != nil {
		t.Fatalf("add mistake: %v", err)
	}
	f.clock.Advance(time.Minute)
	if _, err := f.service.Pause(ctx, teacher, "ticket-1"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	f.clock.Advance(2 * time.Minute)
	if _, err := f.service.Resume(ctx, teacher, "ticket-1"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	f.clock.Advance(4 * time.Minute)
	ticket, err := f.service.SubmitForReview(ctx, teacher, "ticket-1", "done")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if ticket.Status != domain.TicketStatusSubmitted {
		t.Errorf("status = %s, want SUBMITTED", ticket.Status)
	}
	// 12 minutes wall clock minus the 2 minute pause.
	if ticket.ListeningDurationSeconds == nil || *ticket.ListeningDurationSeconds != 600 {
		t.Errorf("listening = %v, want 600", ticket.ListeningDurationSeconds)
	}
	if len(ticket.Mistakes) != 1 {
		t.Errorf("mistakes = %d, want 1", len(ticket.Mistakes))
	}
}
