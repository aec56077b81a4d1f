package domain

import "time"

// StaffRole enumerates internal operator roles.
type StaffRole string

const (
	StaffRoleTeacher StaffRole = "TEACHER"
	StaffRoleAdmin   StaffRole = "ADMIN"
)

// StaffMember models a reviewing teacher or administrator.
type StaffMember struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         StaffRole
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
