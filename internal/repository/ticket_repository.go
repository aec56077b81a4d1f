package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/recitation-service/internal/domain"
)

// ErrGuardFailed signals that a conditional write matched no row: either the
// ticket does not exist or its status (or teacher binding) no longer matches
// the guard. Callers re-read the record to tell the cases apart.
var ErrGuardFailed = errors.New("conditional update guard failed")

// TicketFilter captures listing parameters.
type TicketFilter struct {
	StudentID     *string
	TeacherID     *string
	WorkflowStep  *domain.WorkflowStep
	Statuses      []domain.TicketStatus
	HeartbeatFrom *time.Time
	Limit         int
	Offset        int
}

// TicketRepository encapsulates ticket persistence. All mutating writes are
// single-statement conditional updates keyed by ticket id and guarded by the
// expected current status, so two racing commands resolve to exactly one
// winner inside the database.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.TicketRecord) error
	GetByID(ctx context.Context, id string) (*domain.TicketRecord, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.TicketRecord, error)

	// ClaimForStart atomically binds the teacher and opens the session.
	// The guard requires status PENDING and the teacher column unset or
	// already equal to the claimant. Returns ErrGuardFailed when another
	// teacher won the race or the ticket left PENDING.
	ClaimForStart(ctx context.Context, ticket *domain.TicketRecord) error

	// UpdateGuarded writes the full mutable row state, succeeding only if
	// the persisted status still matches one of the expected values.
	UpdateGuarded(ctx context.Context, ticket *domain.TicketRecord, expected ...domain.TicketStatus) error

	// TouchHeartbeat stamps last_heartbeat_at iff the session is
	// IN_PROGRESS and owned by the teacher. Returns ErrGuardFailed
	// otherwise; the caller decides whether that is a no-op or an error.
	TouchHeartbeat(ctx context.Context, ticketID, teacherID string, at time.Time) (time.Time, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, student_id, teacher_id, workflow_step, status,
        ayah_range, range_locked, mistakes, previous_mistakes,
        notes, audio_url, session_notes,
        started_at, paused_at, paused_seconds, last_heartbeat_at, submitted_at,
        listening_duration_seconds,
        reviewed_by, review_notes, reviewed_at,
        reassigned_from_teacher_id, reassigned_from_teacher_name,
        reassigned_to_teacher_id, reassigned_to_teacher_name,
        reassignment_reason, reassigned_at, previous_teacher_comment,
        created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.TicketRecord) error {
	const query = `
        INSERT INTO tickets (student_id, teacher_id, workflow_step, status, ayah_range, range_locked,
            mistakes, previous_mistakes, notes, audio_url)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, created_at, updated_at`
	if ticket.Mistakes == nil {
		ticket.Mistakes = []domain.MistakeEntry{}
	}
	if ticket.PreviousMistakes == nil {
		ticket.PreviousMistakes = []domain.MistakeEntry{}
	}
	return r.pool.QueryRow(ctx, query,
		ticket.StudentID,
		ticket.TeacherID,
		ticket.WorkflowStep,
		ticket.Status,
		ticket.AyahRange,
		ticket.RangeLocked,
		ticket.Mistakes,
		ticket.PreviousMistakes,
		ticket.Notes,
		ticket.AudioURL,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.TicketRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	row := r.pool.QueryRow(ctx, query, id)
	return scanTicket(row)
}

func (r *ticketRepository) ClaimForStart(ctx context.Context, ticket *domain.TicketRecord) error {
	const query = `
        UPDATE tickets
        SET status=$2, teacher_id=$3, started_at=$4, ayah_range=$5, range_locked=TRUE,
            paused_seconds=0, paused_at=NULL, last_heartbeat_at=NULL, updated_at=NOW()
        WHERE id=$1 AND status=$6 AND (teacher_id IS NULL OR teacher_id=$3)
        RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.ID,
		ticket.Status,
		ticket.TeacherID,
		ticket.StartedAt,
		ticket.AyahRange,
		domain.TicketStatusPending,
	).Scan(&ticket.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrGuardFailed
	}
	return err
}

func (r *ticketRepository) UpdateGuarded(ctx context.Context, ticket *domain.TicketRecord, expected ...domain.TicketStatus) error {
	if len(expected) == 0 {
		return errors.New("guarded update requires expected statuses")
	}
	query := `
        UPDATE tickets
        SET teacher_id=$1, status=$2, ayah_range=$3, range_locked=$4,
            mistakes=$5, previous_mistakes=$6,
            notes=$7, audio_url=$8, session_notes=$9,
            started_at=$10, paused_at=$11, paused_seconds=$12, last_heartbeat_at=$13, submitted_at=$14,
            listening_duration_seconds=$15,
            reviewed_by=$16, review_notes=$17, reviewed_at=$18,
            reassigned_from_teacher_id=$19, reassigned_from_teacher_name=$20,
            reassigned_to_teacher_id=$21, reassigned_to_teacher_name=$22,
            reassignment_reason=$23, reassigned_at=$24, previous_teacher_comment=$25,
            updated_at=NOW()
        WHERE id=$26 AND status IN (` + statusPlaceholders(27, len(expected)) + `)
        RETURNING updated_at`
	args := []any{
		ticket.TeacherID,
		ticket.Status,
		ticket.AyahRange,
		ticket.RangeLocked,
		ticket.Mistakes,
		ticket.PreviousMistakes,
		ticket.Notes,
		ticket.AudioURL,
		ticket.SessionNotes,
		ticket.StartedAt,
		ticket.PausedAt,
		ticket.PausedSeconds,
		ticket.LastHeartbeatAt,
		ticket.SubmittedAt,
		ticket.ListeningDurationSeconds,
		ticket.ReviewedBy,
		ticket.ReviewNotes,
		ticket.ReviewedAt,
		ticket.ReassignedFromTeacherID,
		ticket.ReassignedFromTeacherName,
		ticket.ReassignedToTeacherID,
		ticket.ReassignedToTeacherName,
		ticket.ReassignmentReason,
		ticket.ReassignedAt,
		ticket.PreviousTeacherComment,
		ticket.ID,
	}
	for _, status := range expected {
		args = append(args, status)
	}
	err := r.pool.QueryRow(ctx, query, args...).Scan(&ticket.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrGuardFailed
	}
	return err
}

func (r *ticketRepository) TouchHeartbeat(ctx context.Context, ticketID, teacherID string, at time.Time) (time.Time, error) {
	const query = `
        UPDATE tickets SET last_heartbeat_at=$3, updated_at=NOW()
        WHERE id=$1 AND status=$4 AND teacher_id=$2
        RETURNING last_heartbeat_at`
	var stamped time.Time
	err := r.pool.QueryRow(ctx, query, ticketID, teacherID, at, domain.TicketStatusInProgress).Scan(&stamped)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ErrGuardFailed
	}
	return stamped, err
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.TicketRecord, error) {
	base := fmt.Sprintf(`SELECT %s FROM tickets`, ticketColumns)
	clauses := []string{"1=1"}
	args := []any{}

	if filter.StudentID != nil {
		args = append(args, *filter.StudentID)
		clauses = append(clauses, fmt.Sprintf("student_id=$%d", len(args)))
	}
	if filter.TeacherID != nil {
		args = append(args, *filter.TeacherID)
		clauses = append(clauses, fmt.Sprintf("teacher_id=$%d", len(args)))
	}
	if filter.WorkflowStep != nil {
		args = append(args, *filter.WorkflowStep)
		clauses = append(clauses, fmt.Sprintf("workflow_step=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.HeartbeatFrom != nil {
		args = append(args, *filter.HeartbeatFrom)
		clauses = append(clauses, fmt.Sprintf("(last_heartbeat_at IS NULL OR last_heartbeat_at < $%d)", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketRecord
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func statusPlaceholders(start, count int) string {
	placeholders := make([]string, count)
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(placeholders, ",")
}

func scanTicket(row pgx.Row) (*domain.TicketRecord, error) {
	var ticket domain.TicketRecord
	if err := row.Scan(
		&ticket.ID,
		&ticket.StudentID,
		&ticket.TeacherID,
		&ticket.WorkflowStep,
		&ticket.Status,
		&ticket.AyahRange,
		&ticket.RangeLocked,
		&ticket.Mistakes,
		&ticket.PreviousMistakes,
		&ticket.Notes,
		&ticket.AudioURL,
		&ticket.SessionNotes,
		&ticket.StartedAt,
		&ticket.PausedAt,
		&ticket.PausedSeconds,
		&ticket.LastHeartbeatAt,
		&ticket.SubmittedAt,
		&ticket.ListeningDurationSeconds,
		&ticket.ReviewedBy,
		&ticket.ReviewNotes,
		&ticket.ReviewedAt,
		&ticket.ReassignedFromTeacherID,
		&ticket.ReassignedFromTeacherName,
		&ticket.ReassignedToTeacherID,
		&ticket.ReassignedToTeacherName,
		&ticket.ReassignmentReason,
		&ticket.ReassignedAt,
		&ticket.PreviousTeacherComment,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
