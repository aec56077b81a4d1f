package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/recitation-service/internal/domain"
)

// MistakeHistoryRepository stores the durable per-student mistake record.
// Rows only arrive through ticket approval.
type MistakeHistoryRepository interface {
	BulkInsert(ctx context.Context, mistakes []domain.StudentMistake) error
	ListByStudent(ctx context.Context, studentID string, step *domain.WorkflowStep, limit, offset int) ([]domain.StudentMistake, error)
}

type mistakeHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewMistakeHistoryRepository builds repository.
func NewMistakeHistoryRepository(pool *pgxpool.Pool) MistakeHistoryRepository {
	return &mistakeHistoryRepository{pool: pool}
}

func (r *mistakeHistoryRepository) BulkInsert(ctx context.Context, mistakes []domain.StudentMistake) error {
	if len(mistakes) == 0 {
		return nil
	}
	const query = `
        INSERT INTO student_mistakes (student_id, ticket_id, workflow_step, entry)
        VALUES ($1,$2,$3,$4)`
	batch := &pgx.Batch{}
	for _, m := range mistakes {
		batch.Queue(query, m.StudentID, m.TicketID, m.WorkflowStep, m.Entry)
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range mistakes {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (r *mistakeHistoryRepository) ListByStudent(ctx context.Context, studentID string, step *domain.WorkflowStep, limit, offset int) ([]domain.StudentMistake, error) {
	query := `
        SELECT id, student_id, ticket_id, workflow_step, entry, created_at
        FROM student_mistakes WHERE student_id=$1`
	args := []any{studentID}
	if step != nil {
		args = append(args, *step)
		query += " AND workflow_step=$2"
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StudentMistake
	for rows.Next() {
		var m domain.StudentMistake
		if err := rows.Scan(
			&m.ID,
			&m.StudentID,
			&m.TicketID,
			&m.WorkflowStep,
			&m.Entry,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}
