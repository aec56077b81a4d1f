package dto

import (
	"time"

	"github.com/spec-kit/recitation-service/internal/domain"
)

// StartSessionRequest payload.
type StartSessionRequest struct {
	AyahRange *domain.AyahRange `json:"ayah_range,omitempty"`
}

// SubmitSessionRequest payload.
type SubmitSessionRequest struct {
	SessionNotes string `json:"session_notes,omitempty"`
}

// AddMistakeRequest payload.
type AddMistakeRequest struct {
	Type        string         `json:"type"`
	Category    string         `json:"category"`
	Page        int            `json:"page"`
	Surah       int            `json:"surah,omitempty"`
	Ayah        int            `json:"ayah,omitempty"`
	WordIndex   int            `json:"word_index,omitempty"`
	LetterIndex *int           `json:"letter_index,omitempty"`
	Position    *string        `json:"position,omitempty"`
	TajweedData map[string]any `json:"tajweed_data,omitempty"`
	Note        string         `json:"note,omitempty"`
	AudioURL    string         `json:"audio_url,omitempty"`
	Timestamp   *time.Time     `json:"timestamp,omitempty"`
}

// HeartbeatResponse reports the stamped liveness timestamp.
type HeartbeatResponse struct {
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at"`
}

// ApproveTicketRequest payload.
type ApproveTicketRequest struct {
	ReviewNotes string           `json:"review_notes,omitempty"`
	Homework    *HomeworkRequest `json:"homework,omitempty"`
}

// HomeworkRequest describes the assignment created on approval.
type HomeworkRequest struct {
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	AyahRange   *domain.AyahRange `json:"ayah_range,omitempty"`
	DueAt       *time.Time        `json:"due_at,omitempty"`
}

// RejectTicketRequest payload.
type RejectTicketRequest struct {
	ReviewNotes string `json:"review_notes"`
}

// ReassignTicketRequest payload.
type ReassignTicketRequest struct {
	FromTeacherID string `json:"from_teacher_id,omitempty"`
	ToTeacherID   string `json:"to_teacher_id,omitempty"`
	Reason        string `json:"reason"`
}

// TicketResponse provides full ticket info.
type TicketResponse struct {
	ID           string              `json:"id"`
	StudentID    string              `json:"student_id"`
	TeacherID    *string             `json:"teacher_id"`
	WorkflowStep domain.WorkflowStep `json:"workflow_step"`
	Status       domain.TicketStatus `json:"status"`

	AyahRange   *domain.AyahRange `json:"ayah_range,omitempty"`
	RangeLocked bool              `json:"range_locked"`

	Mistakes         []domain.MistakeEntry `json:"mistakes"`
	PreviousMistakes []domain.MistakeEntry `json:"previous_mistakes,omitempty"`

	Notes        string `json:"notes,omitempty"`
	AudioURL     string `json:"audio_url,omitempty"`
	SessionNotes string `json:"session_notes,omitempty"`

	StartedAt                *time.Time `json:"started_at,omitempty"`
	PausedSeconds            int        `json:"paused_seconds"`
	LastHeartbeatAt          *time.Time `json:"last_heartbeat_at,omitempty"`
	SubmittedAt              *time.Time `json:"submitted_at,omitempty"`
	ListeningDurationSeconds *int       `json:"listening_duration_seconds,omitempty"`

	ReviewedBy  *string    `json:"reviewed_by,omitempty"`
	ReviewNotes string     `json:"review_notes,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`

	ReassignedFromTeacherID   *string    `json:"reassigned_from_teacher_id,omitempty"`
	ReassignedFromTeacherName string     `json:"reassigned_from_teacher_name,omitempty"`
	ReassignedToTeacherID     *string    `json:"reassigned_to_teacher_id,omitempty"`
	ReassignedToTeacherName   string     `json:"reassigned_to_teacher_name,omitempty"`
	ReassignmentReason        string     `json:"reassignment_reason,omitempty"`
	ReassignedAt              *time.Time `json:"reassigned_at,omitempty"`
	PreviousTeacherComment    string     `json:"previous_teacher_comment,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StudentMistakeResponse is one migrated mistake-history row.
type StudentMistakeResponse struct {
	ID           string              `json:"id"`
	TicketID     string              `json:"ticket_id"`
	WorkflowStep domain.WorkflowStep `json:"workflow_step"`
	Entry        domain.MistakeEntry `json:"entry"`
	CreatedAt    time.Time           `json:"created_at"`
}

// AssignmentResponse is one homework row.
type AssignmentResponse struct {
	ID           string              `json:"id"`
	TeacherID    string              `json:"teacher_id"`
	WorkflowStep domain.WorkflowStep `json:"workflow_step"`
	Title        string              `json:"title"`
	Description  string              `json:"description,omitempty"`
	AyahRange    *domain.AyahRange   `json:"ayah_range,omitempty"`
	FromTicketID *string             `json:"from_ticket_id,omitempty"`
	DueAt        *time.Time          `json:"due_at,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}
