package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/recitation-service/internal/domain"
	"github.com/spec-kit/recitation-service/internal/events"
	"github.com/spec-kit/recitation-service/internal/repository"
)

// fakeTicketRepo mimics the conditional-write semantics of the postgres
// repository: a guarded update only lands when the stored status still
// matches, under a mutex so race tests exercise real contention.
type fakeTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]*domain.TicketRecord
	nextID  int
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: map[string]*domain.TicketRecord{}}
}

func (f *fakeTicketRepo) put(ticket *domain.TicketRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickets[ticket.ID] = cloneTicket(ticket)
}

func (f *fakeTicketRepo) Create(_ context.Context, ticket *domain.TicketRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	ticket.ID = "ticket-" + strconv.Itoa(f.nextID)
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	f.tickets[ticket.ID] = cloneTicket(ticket)
	return nil
}

func (f *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.TicketRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneTicket(stored), nil
}

func (f *fakeTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.TicketRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.TicketRecord{}
	for _, stored := range f.tickets {
		if filter.StudentID != nil && stored.StudentID != *filter.StudentID {
			continue
		}
		if filter.TeacherID != nil && (stored.TeacherID == nil || *stored.TeacherID != *filter.TeacherID) {
			continue
		}
		if filter.WorkflowStep != nil && stored.WorkflowStep != *filter.WorkflowStep {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, stored.Status) {
			continue
		}
		out = append(out, *cloneTicket(stored))
	}
	return out, nil
}

func (f *fakeTicketRepo) ClaimForStart(_ context.Context, ticket *domain.TicketRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.tickets[ticket.ID]
	if !ok || stored.Status != domain.TicketStatusPending {
		return repository.ErrGuardFailed
	}
	if stored.TeacherID != nil && ticket.TeacherID != nil && *stored.TeacherID != *ticket.TeacherID {
		return repository.ErrGuardFailed
	}
	ticket.UpdatedAt = time.Now()
	f.tickets[ticket.ID] = cloneTicket(ticket)
	return nil
}

func (f *fakeTicketRepo) UpdateGuarded(_ context.Context, ticket *domain.TicketRecord, expected ...domain.TicketStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.tickets[ticket.ID]
	if !ok || !containsStatus(expected, stored.Status) {
		return repository.ErrGuardFailed
	}
	ticket.UpdatedAt = time.Now()
	f.tickets[ticket.ID] = cloneTicket(ticket)
	return nil
}

func (f *fakeTicketRepo) TouchHeartbeat(_ context.Context, ticketID, teacherID string, at time.Time) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.tickets[ticketID]
	if !ok || stored.Status != domain.TicketStatusInProgress {
		return time.Time{}, repository.ErrGuardFailed
	}
	if stored.TeacherID == nil || *stored.TeacherID != teacherID {
		return time.Time{}, repository.ErrGuardFailed
	}
	stored.LastHeartbeatAt = &at
	return at, nil
}

func containsStatus(list []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}

func cloneTicket(t *domain.TicketRecord) *domain.TicketRecord {
	copied := *t
	copied.Mistakes = append([]domain.MistakeEntry(nil), t.Mistakes...)
	copied.PreviousMistakes = append([]domain.MistakeEntry(nil), t.PreviousMistakes...)
	return &copied
}

type fakeStaffRepo struct {
	members map[string]*domain.StaffMember
}

func newFakeStaffRepo(members ...*domain.StaffMember) *fakeStaffRepo {
	repo := &fakeStaffRepo{members: map[string]*domain.StaffMember{}}
	for _, m := range members {
		repo.members[m.ID] = m
	}
	return repo
}

func (f *fakeStaffRepo) Create(_ context.Context, staff *domain.StaffMember) error {
	f.members[staff.ID] = staff
	return nil
}

func (f *fakeStaffRepo) Update(_ context.Context, staff *domain.StaffMember) error {
	f.members[staff.ID] = staff
	return nil
}

func (f *fakeStaffRepo) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	staff, ok := f.members[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return staff, nil
}

func (f *fakeStaffRepo) GetByEmail(_ context.Context, email string) (*domain.StaffMember, error) {
	for _, staff := range f.members {
		if staff.Email == email {
			return staff, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeStaffRepo) List(_ context.Context, _ repository.StaffFilter) ([]domain.StaffMember, error) {
	out := []domain.StaffMember{}
	for _, staff := range f.members {
		out = append(out, *staff)
	}
	return out, nil
}

type fakeMistakeRepo struct {
	mu      sync.Mutex
	records []domain.StudentMistake
}

func (f *fakeMistakeRepo) BulkInsert(_ context.Context, mistakes []domain.StudentMistake) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, mistakes...)
	return nil
}

func (f *fakeMistakeRepo) ListByStudent(_ context.Context, studentID string, step *domain.WorkflowStep, _, _ int) ([]domain.StudentMistake, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.StudentMistake{}
	for _, rec := range f.records {
		if rec.StudentID != studentID {
			continue
		}
		if step != nil && rec.WorkflowStep != *step {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

type fakeAssignmentRepo struct {
	created []domain.Assignment
}

func (f *fakeAssignmentRepo) Create(_ context.Context, assignment *domain.Assignment) error {
	assignment.ID = "assignment-" + strconv.Itoa(len(f.created)+1)
	f.created = append(f.created, *assignment)
	return nil
}

func (f *fakeAssignmentRepo) ListByStudent(_ context.Context, studentID string, _, _ int) ([]domain.Assignment, error) {
	out := []domain.Assignment{}
	for _, a := range f.created {
		if a.StudentID == studentID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []domain.TicketAudit
}

func (f *fakeAuditRepo) Create(_ context.Context, audit *domain.TicketAudit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *audit)
	return nil
}

func (f *fakeAuditRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketAudit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.TicketAudit{}
	for _, e := range f.entries {
		if e.TicketID == ticketID {
			out = append(out, e)
		}
	}
	return out, nil
}

// recordingDispatcher captures published events for assertions.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) byType(eventType events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []events.Event{}
	for _, e := range d.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// fakeClock is a settable clock for duration assertions.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func strPtr(s string) *string { return &s }
