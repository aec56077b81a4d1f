package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/recitation-service/internal/domain"
)

// TicketAuditRepository stores audit entries.
type TicketAuditRepository interface {
	Create(ctx context.Context, audit *domain.TicketAudit) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketAudit, error)
}

type ticketAuditRepository struct {
	pool *pgxpool.Pool
}

// NewTicketAuditRepository builds repository.
func NewTicketAuditRepository(pool *pgxpool.Pool) TicketAuditRepository {
	return &ticketAuditRepository{pool: pool}
}

func (r *ticketAuditRepository) Create(ctx context.Context, audit *domain.TicketAudit) error {
	const query = `
        INSERT INTO ticket_audit (ticket_id, changed_by_type, changed_by_id, change_type, old_value, new_value)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		audit.TicketID,
		audit.ChangedByType,
		audit.ChangedByID,
		audit.ChangeType,
		audit.OldValue,
		audit.NewValue,
	).Scan(&audit.ID, &audit.CreatedAt)
}

func (r *ticketAuditRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketAudit, error) {
	const query = `
        SELECT id, ticket_id, changed_by_type, changed_by_id, change_type, old_value, new_value, created_at
        FROM ticket_audit WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketAudit
	for rows.Next() {
		var audit domain.TicketAudit
		if err := rows.Scan(
			&audit.ID,
			&audit.TicketID,
			&audit.ChangedByType,
			&audit.ChangedByID,
			&audit.ChangeType,
			&audit.OldValue,
			&audit.NewValue,
			&audit.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, audit)
	}
	return result, rows.Err()
}
