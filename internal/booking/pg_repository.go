package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/meeting-scheduler/internal/availability"
)

const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func scanHost(row pgx.Row) (*Host, error) {
	var h Host

	err := row.Scan(
		&h.ID,
		&h.Username,
		&h.Name,
		&h.Email,
		&h.Timezone,
		&h.CreatedAt,
		&h.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHostNotFound
		}
		return nil, err
	}

	return &h, nil
}

func scanEventType(row pgx.Row) (*EventType, error) {
	var e EventType

	err := row.Scan(
		&e.ID,
		&e.HostID,
		&e.Title,
		&e.Slug,
		&e.Description,
		&e.DurationMinutes,
		&e.LocationType,
		&e.IsVisible,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}

	return &e, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var cancelledAt *time.Time

	err := row.Scan(
		&b.ID,
		&b.EventID,
		&b.HostID,
		&b.GuestName,
		&b.GuestEmail,
		&b.AdditionalInfo,
		&b.StartTime,
		&b.EndTime,
		&b.Status,
		&b.MeetingLink,
		&b.CancelReason,
		&b.CreatedAt,
		&cancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	b.CancelledAt = cancelledAt
	return &b, nil
}

const hostColumns = `id, username, name, email, timezone, created_at, updated_at`

const eventTypeColumns = `id, host_id, title, slug, description, duration_minutes, location_type, is_visible, created_at, updated_at`

const bookingColumns = `id, event_id, host_id, guest_name, guest_email, additional_info, start_time, end_time,
	status, meeting_link, cancel_reason, created_at, cancelled_at`

// Hosts

func (r *PgRepository) CreateHost(ctx context.Context, h *Host) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO hosts (id, username, name, email, timezone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING created_at, updated_at
	`, h.ID, h.Username, h.Name, h.Email, h.Timezone).Scan(&h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if pgErrCode(err) == pgUniqueViolation {
			return ErrUsernameTaken
		}
		return fmt.Errorf("insert host: %w", err)
	}
	return nil
}

func (r *PgRepository) GetHostByID(ctx context.Context, id uuid.UUID) (*Host, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+hostColumns+`
		FROM hosts
		WHERE id = $1
	`, id)
	return scanHost(row)
}

func (r *PgRepository) GetHostByUsername(ctx context.Context, username string) (*Host, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+hostColumns+`
		FROM hosts
		WHERE lower(username) = lower($1)
	`, username)
	return scanHost(row)
}

// Availability

func (r *PgRepository) GetAvailability(ctx context.Context, hostID uuid.UUID) (*availability.Rules, error) {
	var rules availability.Rules
	err := r.pool.QueryRow(ctx, `
		SELECT timezone, time_gap
		FROM availability
		WHERE host_id = $1
	`, hostID).Scan(&rules.Timezone, &rules.TimeGap)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAvailabilityNotFound
		}
		return nil, fmt.Errorf("load availability: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT d.day, d.is_available, w.start_time::text, w.end_time::text
		FROM availability_days d
		LEFT JOIN availability_windows w ON w.host_id = d.host_id AND w.day = d.day
		WHERE d.host_id = $1
		ORDER BY d.day_index, w.position
	`, hostID)
	if err != nil {
		return nil, fmt.Errorf("load availability days: %w", err)
	}
	defer rows.Close()

	index := make(map[availability.Weekday]int)
	for rows.Next() {
		var (
			day        availability.Weekday
			available  bool
			start, end *string
		)
		if err := rows.Scan(&day, &available, &start, &end); err != nil {
			return nil, err
		}
		i, ok := index[day]
		if !ok {
			i = len(rules.Days)
			index[day] = i
			rules.Days = append(rules.Days, availability.DayRule{Day: day, IsAvailable: available, Windows: []availability.Window{}})
		}
		if start == nil || end == nil {
			continue
		}
		w, err := parseWindow(*start, *end)
		if err != nil {
			return nil, fmt.Errorf("stored window for %s: %w", day, err)
		}
		rules.Days[i].Windows = append(rules.Days[i].Windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &rules, nil
}

func parseWindow(start, end string) (availability.Window, error) {
	s, err := availability.ParseClock(start)
	if err != nil {
		return availability.Window{}, err
	}
	e, err := availability.ParseClock(end)
	if err != nil {
		return availability.Window{}, err
	}
	return availability.Window{Start: s, End: e}, nil
}

// SaveAvailability replaces the whole weekly record for the host.
func (r *PgRepository) SaveAvailability(ctx context.Context, hostID uuid.UUID, rules availability.Rules) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin availability tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO availability (host_id, timezone, time_gap, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (host_id) DO UPDATE
		SET timezone = EXCLUDED.timezone,
		    time_gap = EXCLUDED.time_gap,
		    updated_at = now()
	`, hostID, rules.Timezone, rules.TimeGap)
	if err != nil {
		return fmt.Errorf("upsert availability: %w", err)
	}

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM availability_windows WHERE host_id = $1`, hostID)
	batch.Queue(`DELETE FROM availability_days WHERE host_id = $1`, hostID)
	for _, d := range rules.Days {
		batch.Queue(`
			INSERT INTO availability_days (host_id, day, day_index, is_available)
			VALUES ($1, $2, $3, $4)
		`, hostID, d.Day, d.Day.Index(), d.IsAvailable)
		for pos, w := range d.Windows {
			batch.Queue(`
				INSERT INTO availability_windows (host_id, day, position, start_time, end_time)
				VALUES ($1, $2, $3, $4::time, $5::time)
			`, hostID, d.Day, pos, w.Start.String(), w.End.String())
		}
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("replace availability days: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit availability: %w", err)
	}
	return nil
}

func (r *PgRepository) ListOverrides(ctx context.Context, hostID uuid.UUID, from, to availability.Date) ([]availability.Override, error) {
	var fromArg, toArg *string
	if !from.IsZero() {
		s := from.String()
		fromArg = &s
	}
	if !to.IsZero() {
		s := to.String()
		toArg = &s
	}

	rows, err := r.pool.Query(ctx, `
		SELECT date::text, is_available, time_slots
		FROM date_overrides
		WHERE host_id = $1
		  AND ($2::date IS NULL OR date >= $2::date)
		  AND ($3::date IS NULL OR date <= $3::date)
		ORDER BY date
	`, hostID, fromArg, toArg)
	if err != nil {
		return nil, fmt.Errorf("list date overrides: %w", err)
	}
	defer rows.Close()

	out := []availability.Override{}
	for rows.Next() {
		var (
			date  string
			o     availability.Override
			slots []byte
		)
		if err := rows.Scan(&date, &o.IsAvailable, &slots); err != nil {
			return nil, err
		}
		if o.Date, err = availability.ParseDate(date); err != nil {
			return nil, err
		}
		o.Windows = []availability.Window{}
		if len(slots) > 0 {
			if err := json.Unmarshal(slots, &o.Windows); err != nil {
				return nil, fmt.Errorf("decode override %s: %w", date, err)
			}
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *PgRepository) UpsertOverride(ctx context.Context, hostID uuid.UUID, o availability.Override) error {
	windows := o.Windows
	if windows == nil {
		windows = []availability.Window{}
	}
	slots, err := json.Marshal(windows)
	if err != nil {
		return fmt.Errorf("encode override windows: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO date_overrides (host_id, date, is_available, time_slots, updated_at)
		VALUES ($1, $2::date, $3, $4, now())
		ON CONFLICT (host_id, date) DO UPDATE
		SET is_available = EXCLUDED.is_available,
		    time_slots = EXCLUDED.time_slots,
		    updated_at = now()
	`, hostID, o.Date.String(), o.IsAvailable, slots)
	if err != nil {
		return fmt.Errorf("upsert date override: %w", err)
	}
	return nil
}

func (r *PgRepository) DeleteOverride(ctx context.Context, hostID uuid.UUID, date availability.Date) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM date_overrides WHERE host_id = $1 AND date = $2::date`, hostID, date.String())
	if err != nil {
		return fmt.Errorf("delete date override: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOverrideNotFound
	}
	return nil
}

// Event types

func (r *PgRepository) CreateEventType(ctx context.Context, e *EventType) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO event_types (id, host_id, title, slug, description, duration_minutes, location_type, is_visible, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING created_at, updated_at
	`, e.ID, e.HostID, e.Title, e.Slug, e.Description, e.DurationMinutes, e.LocationType, e.IsVisible).
		Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if pgErrCode(err) == pgUniqueViolation {
			return ErrSlugTaken
		}
		return fmt.Errorf("insert event type: %w", err)
	}
	return nil
}

func (r *PgRepository) GetEventType(ctx context.Context, id uuid.UUID) (*EventType, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+eventTypeColumns+`
		FROM event_types
		WHERE id = $1
	`, id)
	return scanEventType(row)
}

func (r *PgRepository) GetEventTypeBySlug(ctx context.Context, hostID uuid.UUID, slug string) (*EventType, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+eventTypeColumns+`
		FROM event_types
		WHERE host_id = $1 AND slug = $2
	`, hostID, slug)
	return scanEventType(row)
}

func (r *PgRepository) ListEventTypes(ctx context.Context, hostID uuid.UUID) ([]EventType, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventTypeColumns+`
		FROM event_types
		WHERE host_id = $1
		ORDER BY created_at, slug
	`, hostID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []EventType{}
	for rows.Next() {
		e, err := scanEventType(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

func (r *PgRepository) UpdateEventType(ctx context.Context, e *EventType) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE event_types
		SET title = $3,
		    description = $4,
		    duration_minutes = $5,
		    is_visible = $6,
		    updated_at = now()
		WHERE id = $1 AND host_id = $2
		RETURNING created_at, updated_at
	`, e.ID, e.HostID, e.Title, e.Description, e.DurationMinutes, e.IsVisible).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrEventNotFound
		}
		return fmt.Errorf("update event type: %w", err)
	}
	return nil
}

func (r *PgRepository) DeleteEventType(ctx context.Context, hostID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM event_types WHERE id = $1 AND host_id = $2`, id, hostID)
	if err != nil {
		return fmt.Errorf("delete event type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// Bookings

// CreateBooking relies on the bookings_no_overlap exclusion constraint, so
// two concurrent inserts for overlapping ranges cannot both commit.
func (r *PgRepository) CreateBooking(ctx context.Context, b *Booking, finalize FinalizeFunc) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin booking tx: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (id, event_id, host_id, guest_name, guest_email, additional_info,
		                      start_time, end_time, status, meeting_link, cancel_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'confirmed', '', '', now())
		RETURNING created_at
	`, b.ID, b.EventID, b.HostID, b.GuestName, b.GuestEmail, b.AdditionalInfo, b.StartTime, b.EndTime).
		Scan(&b.CreatedAt)
	if err != nil {
		if pgErrCode(err) == pgExclusionViolation {
			return ErrBookingConflict
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	b.Status = StatusConfirmed

	if finalize != nil {
		if err := finalize(ctx, b); err != nil {
			return err
		}
		if b.MeetingLink != "" {
			if _, err := tx.Exec(ctx, `UPDATE bookings SET meeting_link = $2 WHERE id = $1`, b.ID, b.MeetingLink); err != nil {
				return fmt.Errorf("store meeting link: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if pgErrCode(err) == pgExclusionViolation {
			return ErrBookingConflict
		}
		return fmt.Errorf("commit booking: %w", err)
	}
	return nil
}

func (r *PgRepository) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id)
	return scanBooking(row)
}

func (r *PgRepository) ListBookings(ctx context.Context, f BookingFilter) ([]Booking, error) {
	var from, to *time.Time
	if !f.From.IsZero() {
		from = &f.From
	}
	if !f.To.IsZero() {
		to = &f.To
	}
	var status *string
	if f.Status != "" {
		s := string(f.Status)
		status = &s
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE host_id = $1
		  AND ($2::timestamptz IS NULL OR end_time >= $2)
		  AND ($3::timestamptz IS NULL OR start_time < $3)
		  AND ($4::text IS NULL OR status = $4)
		ORDER BY start_time
		LIMIT $5 OFFSET $6
	`, f.HostID, from, to, status, limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListBusy(ctx context.Context, hostID uuid.UUID, from, to time.Time) ([]availability.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM bookings
		WHERE host_id = $1
		  AND status = 'confirmed'
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
	`, hostID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list busy intervals: %w", err)
	}
	defer rows.Close()

	var out []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

func (r *PgRepository) CancelBooking(ctx context.Context, hostID, id uuid.UUID, reason string, at time.Time) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'cancelled',
		    cancel_reason = $3,
		    cancelled_at = $4
		WHERE id = $1
		  AND host_id = $2
		  AND status = 'confirmed'
		RETURNING `+bookingColumns, id, hostID, reason, at)

	b, err := scanBooking(row)
	if !errors.Is(err, ErrBookingNotFound) {
		return b, err
	}

	// Nothing updated: tell a missing booking from one already cancelled.
	existing, getErr := r.GetBooking(ctx, id)
	if getErr != nil || existing.HostID != hostID {
		return nil, ErrBookingNotFound
	}
	return nil, ErrAlreadyCancelled
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, booking_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.BookingID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
