package events

import (
	"time"

	"github.com/spec-kit/recitation-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSessionStarted   EventType = "session_started"
	EventSessionPaused    EventType = "session_paused"
	EventSessionResumed   EventType = "session_resumed"
	EventSessionSubmitted EventType = "session_submitted"
	EventMistakeAdded     EventType = "mistake_added"
	EventMistakeRemoved   EventType = "mistake_removed"
	EventTicketApproved   EventType = "ticket_approved"
	EventTicketRejected   EventType = "ticket_rejected"
	EventTicketReassigned EventType = "ticket_reassigned"
	EventTicketClosed     EventType = "ticket_closed"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type      domain.SubjectType `json:"type"`
	StudentID *string            `json:"student_id,omitempty"`
	StaffID   *string            `json:"staff_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// SessionStartedPayload payload.
type SessionStartedPayload struct {
	TeacherID    string              `json:"teacher_id"`
	WorkflowStep domain.WorkflowStep `json:"workflow_step"`
	AyahRange    *domain.AyahRange   `json:"ayah_range,omitempty"`
}

// StatusChangedPayload payload shared by pause/resume/submit/close.
type StatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// SessionSubmittedPayload payload.
type SessionSubmittedPayload struct {
	ListeningDurationSeconds int `json:"listening_duration_seconds"`
	MistakeCount             int `json:"mistake_count"`
}

// MistakeChangedPayload payload for ledger changes.
type MistakeChangedPayload struct {
	Index       int    `json:"index"`
	MistakeType string `json:"mistake_type,omitempty"`
	LedgerSize  int    `json:"ledger_size"`
}

// ReviewPayload payload for approve/reject.
type ReviewPayload struct {
	ReviewerID      string `json:"reviewer_id"`
	ReviewNotes     string `json:"review_notes,omitempty"`
	MigratedCount   int    `json:"migrated_count,omitempty"`
	HomeworkCreated bool   `json:"homework_created,omitempty"`
}

// ReassignedPayload payload.
type ReassignedPayload struct {
	FromTeacherID *string `json:"from_teacher_id,omitempty"`
	ToTeacherID   *string `json:"to_teacher_id,omitempty"`
	Reason        string  `json:"reason"`
}
