package domain

import "time"

// StudentMistake is a durable, cross-session mistake record. Rows are
// appended only when a ticket is approved; the ticket id and workflow step
// keep provenance back to the reviewed session.
type StudentMistake struct {
	ID           string
	StudentID    string
	TicketID     string
	WorkflowStep WorkflowStep
	Entry        MistakeEntry
	CreatedAt    time.Time
}
