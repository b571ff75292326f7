package poll

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const pollColumns = `id, host_id, title, description, duration_minutes, slots, status,
	allow_multiple_votes, deadline, auto_close, final_slot, created_at, updated_at`

func scanPoll(row pgx.Row) (*Poll, error) {
	var p Poll

	err := row.Scan(
		&p.ID,
		&p.HostID,
		&p.Title,
		&p.Description,
		&p.DurationMinutes,
		&p.Slots,
		&p.Status,
		&p.AllowMultipleVotes,
		&p.Deadline,
		&p.AutoClose,
		&p.FinalSlot,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPollNotFound
		}
		return nil, err
	}

	return &p, nil
}

func (r *PgRepository) Create(ctx context.Context, p *Poll) error {
	query := `
		INSERT INTO polls (host_id, title, description, duration_minutes, slots, status,
			allow_multiple_votes, deadline, auto_close)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + pollColumns

	created, err := scanPoll(r.pool.QueryRow(ctx, query,
		p.HostID, p.Title, p.Description, p.DurationMinutes, p.Slots, p.Status,
		p.AllowMultipleVotes, p.Deadline, p.AutoClose,
	))
	if err != nil {
		return fmt.Errorf("insert poll: %w", err)
	}
	*p = *created
	p.Votes = []Vote{}
	return nil
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Poll, error) {
	p, err := scanPoll(r.pool.QueryRow(ctx, `SELECT `+pollColumns+` FROM polls WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if p.Votes, err = r.votes(ctx, id); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PgRepository) votes(ctx context.Context, pollID uuid.UUID) ([]Vote, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT participant, selected_slots, voted_at
		FROM poll_votes
		WHERE poll_id = $1
		ORDER BY voted_at`, pollID)
	if err != nil {
		return nil, fmt.Errorf("query votes: %w", err)
	}
	defer rows.Close()

	votes := []Vote{}
	for rows.Next() {
		var v Vote
		if err := rows.Scan(&v.Participant, &v.SelectedSlots, &v.VotedAt); err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

func (r *PgRepository) List(ctx context.Context, f ListFilter) ([]Poll, error) {
	query := `SELECT ` + pollColumns + ` FROM polls WHERE host_id = $1`
	args := []any{f.HostID}

	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+q+"%")
		query += fmt.Sprintf(" AND (title ILIKE $%d OR description ILIKE $%d)", len(args), len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list polls: %w", err)
	}
	defer rows.Close()

	polls := []Poll{}
	for rows.Next() {
		p, err := scanPoll(rows)
		if err != nil {
			return nil, err
		}
		polls = append(polls, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range polls {
		if polls[i].Votes, err = r.votes(ctx, polls[i].ID); err != nil {
			return nil, err
		}
	}
	return polls, nil
}

func (r *PgRepository) SetStatus(ctx context.Context, p *Poll, from Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE polls
		SET status = $4, final_slot = $5, updated_at = NOW()
		WHERE id = $1 AND host_id = $2 AND status = $3`,
		p.ID, p.HostID, from, p.Status, p.FinalSlot,
	)
	if err != nil {
		return fmt.Errorf("set poll status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM polls WHERE id = $1 AND host_id = $2)`,
		p.ID, p.HostID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check poll: %w", err)
	}
	if !exists {
		return ErrPollNotFound
	}
	return ErrStatusChanged
}

func (r *PgRepository) Expire(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE polls
		SET status = 'expired', updated_at = NOW()
		WHERE id = $1 AND status = 'active' AND auto_close AND deadline <= $2`,
		id, now,
	)
	if err != nil {
		return false, fmt.Errorf("expire poll: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) Delete(ctx context.Context, hostID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM polls WHERE id = $1 AND host_id = $2`, id, hostID)
	if err != nil {
		return fmt.Errorf("delete poll: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPollNotFound
	}
	return nil
}

func (r *PgRepository) UpsertVote(ctx context.Context, pollID uuid.UUID, v Vote) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO poll_votes (poll_id, participant, participant_key, selected_slots, voted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (poll_id, participant_key)
		DO UPDATE SET participant = EXCLUDED.participant,
			selected_slots = EXCLUDED.selected_slots,
			voted_at = EXCLUDED.voted_at`,
		pollID, v.Participant, participantKey(v.Participant), v.SelectedSlots, v.VotedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert vote: %w", err)
	}
	return nil
}

func (r *PgRepository) ListDue(ctx context.Context, now time.Time) ([]Poll, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+pollColumns+`
		FROM polls
		WHERE status = 'active' AND auto_close AND deadline <= $1`, now)
	if err != nil {
		return nil, fmt.Errorf("list due polls: %w", err)
	}
	defer rows.Close()

	var polls []Poll
	for rows.Next() {
		p, err := scanPoll(rows)
		if err != nil {
			return nil, err
		}
		polls = append(polls, *p)
	}
	return polls, rows.Err()
}
