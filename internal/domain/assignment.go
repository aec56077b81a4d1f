package domain

import "time"

// Assignment is homework created for a student, optionally derived from an
// approved ticket (FromTicketID carries the linkage).
type Assignment struct {
	ID           string
	StudentID    string
	TeacherID    string
	WorkflowStep WorkflowStep
	Title        string
	Description  string
	AyahRange    *AyahRange
	FromTicketID *string
	DueAt        *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
