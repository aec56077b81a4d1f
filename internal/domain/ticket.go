package domain

import "time"

// TicketStatus enumerates lifecycle states for recitation tickets.
type TicketStatus string

const (
	TicketStatusPending    TicketStatus = "PENDING"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusPaused     TicketStatus = "PAUSED"
	TicketStatusSubmitted  TicketStatus = "SUBMITTED"
	TicketStatusApproved   TicketStatus = "APPROVED"
	TicketStatusRejected   TicketStatus = "REJECTED"
	TicketStatusReassigned TicketStatus = "REASSIGNED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// WorkflowStep identifies which recitation category a ticket belongs to.
// Immutable after creation.
type WorkflowStep string

const (
	WorkflowStepSabq   WorkflowStep = "sabq"
	WorkflowStepSabqi  WorkflowStep = "sabqi"
	WorkflowStepManzil WorkflowStep = "manzil"
)

// AyahRange is the surah:ayah span the student recites during a session.
type AyahRange struct {
	FromSurah int `json:"from_surah"`
	FromAyah  int `json:"from_ayah"`
	ToSurah   int `json:"to_surah"`
	ToAyah    int `json:"to_ayah"`
}

// Valid checks surah/ayah bounds and span ordering.
func (r AyahRange) Valid() bool {
	if r.FromSurah < 1 || r.FromSurah > 114 || r.ToSurah < 1 || r.ToSurah > 114 {
		return false
	}
	if r.FromAyah < 1 || r.ToAyah < 1 {
		return false
	}
	if r.ToSurah < r.FromSurah {
		return false
	}
	if r.ToSurah == r.FromSurah && r.ToAyah < r.FromAyah {
		return false
	}
	return true
}

// TicketRecord is the aggregate for one supervised recitation session.
// Every engine command reconstructs its decision from this persisted record;
// no in-process session state exists between requests.
type TicketRecord struct {
	ID           string
	StudentID    string
	TeacherID    *string
	WorkflowStep WorkflowStep
	Status       TicketStatus

	AyahRange   *AyahRange
	RangeLocked bool

	Mistakes         []MistakeEntry
	PreviousMistakes []MistakeEntry

	Notes        string
	AudioURL     string
	SessionNotes string

	StartedAt       *time.Time
	PausedAt        *time.Time
	PausedSeconds   int
	LastHeartbeatAt *time.Time
	SubmittedAt     *time.Time

	ListeningDurationSeconds *int

	ReviewedBy  *string
	ReviewNotes string
	ReviewedAt  *time.Time

	ReassignedFromTeacherID   *string
	ReassignedFromTeacherName string
	ReassignedToTeacherID     *string
	ReassignedToTeacherName   string
	ReassignmentReason        string
	ReassignedAt              *time.Time
	PreviousTeacherComment    string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BoundTo reports whether the given teacher owns this session.
func (t *TicketRecord) BoundTo(teacherID string) bool {
	return t.TeacherID != nil && *t.TeacherID == teacherID
}

// Terminal reports whether no further transitions are possible.
func (t *TicketRecord) Terminal() bool {
	return t.Status == TicketStatusApproved || t.Status == TicketStatusClosed
}

// LedgerMutable reports whether the mistake ledger accepts changes. The
// ledger is frozen the moment the session is submitted.
func (t *TicketRecord) LedgerMutable() bool {
	return t.Status == TicketStatusInProgress || t.Status == TicketStatusPaused
}
