package service

import (
	"context"
	"testing"
	"time"

	"github.com/spec-kit/recitation-service/internal/domain"
	apperrors "github.com/spec-kit/recitation-service/pkg/util"
)

func newLivenessFixture(threshold time.Duration) (*fakeTicketRepo, *fakeClock, *LivenessService) {
	tickets := newFakeTicketRepo()
	clock := newFakeClock(baseTime)
	svc := NewLivenessService(LivenessDependencies{
		TicketRepo: tickets,
		Threshold:  threshold,
		Clock:      clock.Now,
	})
	return tickets, clock, svc
}

func TestIsStale(t *testing.T) {
	threshold := 135 * time.Second
	cases := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{"fresh", 10 * time.Second, false},
		{"at threshold", threshold, false},
		{"just past threshold", threshold + time.Second, true},
		{"long gone", time.Hour, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			last := baseTime.Add(-tc.age)
			if got := IsStale(baseTime, last, threshold); got != tc.want {
				t.Errorf("IsStale(age=%v) = %v, want %v", tc.age, got, tc.want)
			}
		})
	}
}

func TestRecordHeartbeatStampsOwner(t *testing.T) {
	tickets, clock, svc := newLivenessFixture(135 * time.Second)
	tickets.put(inProgressTicket("ticket-1", "s1", "t1"))

	clock.Advance(45 * time.Second)
	stamped, err := svc.RecordHeartbeat(context.Background(), newTeacher("t1"), "ticket-1")
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if stamped == nil || !stamped.Equal(clock.Now()) {
		t.Errorf("stamped = %v, want %v", stamped, clock.Now())
	}

	stored, _ := tickets.GetByID(context.Background(), "ticket-1")
	if stored.LastHeartbeatAt == nil || !stored.LastHeartbeatAt.Equal(clock.Now()) {
		t.Errorf("persisted heartbeat = %v, want %v", stored.LastHeartbeatAt, clock.Now())
	}
}

func TestHeartbeatWhilePausedIsNoop(t *testing.T) {
	tickets, _, svc := newLivenessFixture(135 * time.Second)
	ticket := inProgressTicket("ticket-1", "s1", "t1")
	ticket.Status = domain.TicketStatusPaused
	previous := baseTime.Add(-30 * time.Second)
	ticket.LastHeartbeatAt = &previous
	tickets.put(ticket)

	stamped, err := svc.RecordHeartbeat(context.Background(), newTeacher("t1"), "ticket-1")
	if err != nil {
		t.Fatalf("heartbeat during pause must succeed: %v", err)
	}
	if stamped == nil || !stamped.Equal(previous) {
		t.Errorf("stamped = %v, want unchanged %v", stamped, previous)
	}
}

func TestHeartbeatFromWrongTeacher(t *testing.T) {
	tickets, _, svc := newLivenessFixture(135 * time.Second)
	tickets.put(inProgressTicket("ticket-1", "s1", "t1"))

	_, err := svc.RecordHeartbeat(context.Background(), newTeacher("t2"), "ticket-1")
	if !apperrors.IsCode(err, "FORBIDDEN") {
		t.Fatalf("err = %v, want FORBIDDEN", err)
	}
}

func TestHeartbeatUnknownTicket(t *testing.T) {
	_, _, svc := newLivenessFixture(135 * time.Second)

	_, err := svc.RecordHeartbeat(context.Background(), newTeacher("t1"), "missing")
	if !apperrors.IsCode(err, "NOT_FOUND") {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
}

func TestListStale(t *testing.T) {
	tickets, _, svc := newLivenessFixture(135 * time.Second)

	fresh := inProgressTicket("ticket-fresh", "s1", "t1")
	freshBeat := baseTime.Add(-30 * time.Second)
	fresh.LastHeartbeatAt = &freshBeat
	tickets.put(fresh)

	stale := inProgressTicket("ticket-stale", "s2", "t2")
	staleBeat := baseTime.Add(-10 * time.Minute)
	stale.LastHeartbeatAt = &staleBeat
	tickets.put(stale)

	// Never heartbeated; staleness falls back to the session start.
	silent := inProgressTicket("ticket-silent", "s3", "t3")
	silentStart := baseTime.Add(-20 * time.Minute)
	silent.StartedAt = &silentStart
	silent.LastHeartbeatAt = nil
	tickets.put(silent)

	paused := inProgressTicket("ticket-paused", "s4", "t4")
	paused.Status = domain.TicketStatusPaused
	paused.LastHeartbeatAt = &staleBeat
	tickets.put(paused)

	got, err := svc.ListStale(context.Background())
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}

	found := map[string]StaleSession{}
	for _, s := range got {
		found[s.TicketID] = s
	}
	if len(found) != 2 {
		t.Fatalf("stale sessions = %v, want ticket-stale and ticket-silent", found)
	}
	if _, ok := found["ticket-stale"]; !ok {
		t.Error("ticket-stale missing")
	}
	entry, ok := found["ticket-silent"]
	if !ok {
		t.Fatal("ticket-silent missing")
	}
	if !entry.LastSeenAt.Equal(silentStart) {
		t.Errorf("lastSeen = %v, want start %v", entry.LastSeenAt, silentStart)
	}
	if entry.StaleForSeconds != 1200 {
		t.Errorf("staleFor = %d, want 1200", entry.StaleForSeconds)
	}
}
