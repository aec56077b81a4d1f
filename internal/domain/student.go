package domain

import "time"

// StudentStatus represents account state.
type StudentStatus string

const (
	StudentStatusActive   StudentStatus = "ACTIVE"
	StudentStatusInactive StudentStatus = "INACTIVE"
)

// Student models an end-user whose recitation sessions are reviewed.
type Student struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Status       StudentStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
