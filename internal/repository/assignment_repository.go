package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/recitation-service/internal/domain"
)

// AssignmentRepository persists homework assignments.
type AssignmentRepository interface {
	Create(ctx context.Context, assignment *domain.Assignment) error
	ListByStudent(ctx context.Context, studentID string, limit, offset int) ([]domain.Assignment, error)
}

type assignmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssignmentRepository builds repository.
func NewAssignmentRepository(pool *pgxpool.Pool) AssignmentRepository {
	return &assignmentRepository{pool: pool}
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *domain.Assignment) error {
	const query = `
        INSERT INTO assignments (student_id, teacher_id, workflow_step, title, description, ayah_range, from_ticket_id, due_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		assignment.StudentID,
		assignment.TeacherID,
		assignment.WorkflowStep,
		assignment.Title,
		assignment.Description,
		assignment.AyahRange,
		assignment.FromTicketID,
		assignment.DueAt,
	).Scan(&assignment.ID, &assignment.CreatedAt, &assignment.UpdatedAt)
}

func (r *assignmentRepository) ListByStudent(ctx context.Context, studentID string, limit, offset int) ([]domain.Assignment, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, student_id, teacher_id, workflow_step, title, description, ayah_range, from_ticket_id, due_at, created_at, updated_at
        FROM assignments WHERE student_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, studentID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Assignment
	for rows.Next() {
		var a domain.Assignment
		if err := rows.Scan(
			&a.ID,
			&a.StudentID,
			&a.TeacherID,
			&a.WorkflowStep,
			&a.Title,
			&a.Description,
			&a.AyahRange,
			&a.FromTicketID,
			&a.DueAt,
			&a.CreatedAt,
			&a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
