package domain

import "time"

// TicketChangeType captures what changed in an audit entry.
type TicketChangeType string

const (
	ChangeTypeStatus       TicketChangeType = "STATUS_CHANGE"
	ChangeTypeReassignment TicketChangeType = "REASSIGNMENT"
	ChangeTypeReview       TicketChangeType = "REVIEW"
)

// TicketAudit is an immutable audit trail entry.
type TicketAudit struct {
	ID            string
	TicketID      string
	ChangedByType SubjectType
	ChangedByID   *string
	ChangeType    TicketChangeType
	OldValue      map[string]any
	NewValue      map[string]any
	CreatedAt     time.Time
}
