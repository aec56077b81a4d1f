package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spec-kit/recitation-service/internal/domain"
	"github.com/spec-kit/recitation-service/internal/persistence"
	"github.com/spec-kit/recitation-service/internal/repository"
	apperrors "github.com/spec-kit/recitation-service/pkg/util"
)

// LivenessService tracks advisory session heartbeats. It never mutates
// ticket status: staleness is computed lazily by whoever asks, and an
// abandoned session stays where it is until a human reassigns or closes it.
type LivenessService struct {
	tickets   repository.TicketRepository
	cache     *persistence.Redis
	threshold time.Duration
	now       func() time.Time
}

// LivenessDependencies bundles collaborators for the liveness service.
type LivenessDependencies struct {
	TicketRepo repository.TicketRepository
	Cache      *persistence.Redis
	Threshold  time.Duration
	Clock      func() time.Time
}

// StaleSession describes an in-progress session whose teacher client has
// gone quiet. Exposed to operator tooling only.
type StaleSession struct {
	TicketID         string              `json:"ticket_id"`
	TeacherID        *string             `json:"teacher_id"`
	StudentID        string              `json:"student_id"`
	WorkflowStep     domain.WorkflowStep `json:"workflow_step"`
	LastSeenAt       time.Time           `json:"last_seen_at"`
	StaleForSeconds  int                 `json:"stale_for_seconds"`
	ThresholdSeconds int                 `json:"threshold_seconds"`
}

// NewLivenessService constructs the service.
func NewLivenessService(deps LivenessDependencies) *LivenessService {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	threshold := deps.Threshold
	if threshold <= 0 {
		threshold = 135 * time.Second
	}
	return &LivenessService{
		tickets:   deps.TicketRepo,
		cache:     deps.Cache,
		threshold: threshold,
		now:       clock,
	}
}

// RecordHeartbeat stamps the session's liveness timestamp. A heartbeat that
// arrives while the session is not in progress (the usual pause race) is a
// no-op success, returning the unchanged timestamp.
func (s *LivenessService) RecordHeartbeat(ctx context.Context, teacher *domain.StaffMember, ticketID string) (*time.Time, error) {
	if teacher == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	stamped, err := s.tickets.TouchHeartbeat(ctx, ticketID, teacher.ID, s.now())
	if err == nil {
		s.mirrorHeartbeat(ctx, ticketID, stamped)
		return &stamped, nil
	}
	if !errors.Is(err, repository.ErrGuardFailed) {
		return nil, apperrors.MapError(err)
	}

	ticket, readErr := s.tickets.GetByID(ctx, ticketID)
	if readErr != nil {
		return nil, ticketLookupError(readErr, ticketID)
	}
	if ticket.Status == domain.TicketStatusInProgress {
		return nil, apperrors.NewForbidden("session belongs to another teacher")
	}
	return ticket.LastHeartbeatAt, nil
}

// ListStale returns in-progress sessions whose last heartbeat (or session
// start, when no heartbeat ever arrived) is older than the threshold.
func (s *LivenessService) ListStale(ctx context.Context) ([]StaleSession, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses: []domain.TicketStatus{domain.TicketStatusInProgress},
		Limit:    200,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	now := s.now()
	stale := []StaleSession{}
	for i := range tickets {
		ticket := &tickets[i]
		lastSeen := ticket.LastHeartbeatAt
		if lastSeen == nil {
			lastSeen = ticket.StartedAt
		}
		if lastSeen == nil {
			continue
		}
		if !IsStale(now, *lastSeen, s.threshold) {
			continue
		}
		stale = append(stale, StaleSession{
			TicketID:         ticket.ID,
			TeacherID:        ticket.TeacherID,
			StudentID:        ticket.StudentID,
			WorkflowStep:     ticket.WorkflowStep,
			LastSeenAt:       *lastSeen,
			StaleForSeconds:  int(now.Sub(*lastSeen).Seconds()),
			ThresholdSeconds: int(s.threshold.Seconds()),
		})
	}
	return stale, nil
}

// mirrorHeartbeat keeps a TTL'd copy in redis so operator dashboards can
// poll liveness without touching the tickets table. Best effort: the ticket
// row stays the source of truth.
func (s *LivenessService) mirrorHeartbeat(ctx context.Context, ticketID string, at time.Time) {
	if s.cache == nil || s.cache.Client == nil {
		return
	}
	key := heartbeatKey(ticketID)
	_ = s.cache.Client.Set(ctx, key, at.UTC().Format(time.RFC3339Nano), s.threshold).Err()
}

func heartbeatKey(ticketID string) string {
	return fmt.Sprintf("session:heartbeat:%s", ticketID)
}

// IsStale reports whether a heartbeat timestamp is older than the threshold.
// Pure; never drives a transition.
func IsStale(now, lastHeartbeatAt time.Time, threshold time.Duration) bool {
	return now.Sub(lastHeartbeatAt) > threshold
}
