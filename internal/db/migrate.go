package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied in order on startup. Every statement is idempotent.
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS btree_gist`,

	`CREATE TABLE IF NOT EXISTS hosts (
		id          UUID PRIMARY KEY,
		username    TEXT NOT NULL UNIQUE,
		name        TEXT NOT NULL DEFAULT '',
		email       TEXT NOT NULL DEFAULT '',
		timezone    TEXT NOT NULL DEFAULT 'UTC',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS availability (
		host_id     UUID PRIMARY KEY REFERENCES hosts(id) ON DELETE CASCADE,
		timezone    TEXT NOT NULL,
		time_gap    INTEGER NOT NULL CHECK (time_gap BETWEEN 15 AND 120),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS availability_days (
		host_id       UUID NOT NULL REFERENCES availability(host_id) ON DELETE CASCADE,
		day           TEXT NOT NULL,
		day_index     SMALLINT NOT NULL,
		is_available  BOOLEAN NOT NULL,
		PRIMARY KEY (host_id, day)
	)`,

	`CREATE TABLE IF NOT EXISTS availability_windows (
		host_id     UUID NOT NULL,
		day         TEXT NOT NULL,
		position    SMALLINT NOT NULL,
		start_time  TIME NOT NULL,
		end_time    TIME NOT NULL,
		PRIMARY KEY (host_id, day, position),
		FOREIGN KEY (host_id, day) REFERENCES availability_days(host_id, day) ON DELETE CASCADE,
		CHECK (start_time < end_time)
	)`,

	`CREATE TABLE IF NOT EXISTS date_overrides (
		host_id       UUID NOT NULL REFERENCES hosts(id) ON DELETE CASCADE,
		date          DATE NOT NULL,
		is_available  BOOLEAN NOT NULL,
		time_slots    JSONB NOT NULL DEFAULT '[]',
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (host_id, date)
	)`,

	`CREATE TABLE IF NOT EXISTS event_types (
		id                UUID PRIMARY KEY,
		host_id           UUID NOT NULL REFERENCES hosts(id) ON DELETE CASCADE,
		title             TEXT NOT NULL,
		slug              TEXT NOT NULL,
		description       TEXT NOT NULL DEFAULT '',
		duration_minutes  INTEGER NOT NULL CHECK (duration_minutes > 0),
		location_type     TEXT NOT NULL,
		is_visible        BOOLEAN NOT NULL DEFAULT TRUE,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (host_id, slug)
	)`,

	`CREATE TABLE IF NOT EXISTS bookings (
		id               UUID PRIMARY KEY,
		event_id         UUID NOT NULL REFERENCES event_types(id) ON DELETE CASCADE,
		host_id          UUID NOT NULL REFERENCES hosts(id) ON DELETE CASCADE,
		guest_name       TEXT NOT NULL,
		guest_email      TEXT NOT NULL,
		additional_info  TEXT NOT NULL DEFAULT '',
		start_time       TIMESTAMPTZ NOT NULL,
		end_time         TIMESTAMPTZ NOT NULL,
		status           TEXT NOT NULL CHECK (status IN ('confirmed', 'cancelled')),
		meeting_link     TEXT NOT NULL DEFAULT '',
		cancel_reason    TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		cancelled_at     TIMESTAMPTZ,
		CHECK (start_time < end_time)
	)`,

	// Two confirmed bookings of one host never overlap, whatever the
	// event type.
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'bookings_no_overlap') THEN
			ALTER TABLE bookings ADD CONSTRAINT bookings_no_overlap
				EXCLUDE USING gist (host_id WITH =, tstzrange(start_time, end_time, '[)') WITH &&)
				WHERE (status = 'confirmed');
		END IF;
	END
	$$`,

	`CREATE INDEX IF NOT EXISTS idx_bookings_host_start ON bookings(host_id, start_time)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,

	`CREATE TABLE IF NOT EXISTS event_logs (
		id          BIGSERIAL PRIMARY KEY,
		event_type  TEXT NOT NULL,
		booking_id  UUID,
		payload     JSONB NOT NULL DEFAULT '{}',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS integrations (
		id             UUID PRIMARY KEY,
		host_id        UUID NOT NULL REFERENCES hosts(id) ON DELETE CASCADE,
		platform       TEXT NOT NULL,
		access_token   TEXT NOT NULL,
		refresh_token  TEXT NOT NULL DEFAULT '',
		token_type     TEXT NOT NULL DEFAULT '',
		expiry         TIMESTAMPTZ,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (host_id, platform)
	)`,

	`CREATE TABLE IF NOT EXISTS polls (
		id                    UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		host_id               UUID NOT NULL REFERENCES hosts(id) ON DELETE CASCADE,
		title                 TEXT NOT NULL,
		description           TEXT NOT NULL DEFAULT '',
		duration_minutes      INTEGER NOT NULL CHECK (duration_minutes > 0),
		slots                 TIMESTAMPTZ[] NOT NULL,
		status                TEXT NOT NULL,
		allow_multiple_votes  BOOLEAN NOT NULL DEFAULT FALSE,
		deadline              TIMESTAMPTZ,
		auto_close            BOOLEAN NOT NULL DEFAULT FALSE,
		final_slot            TIMESTAMPTZ,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_polls_due ON polls(deadline) WHERE status = 'active' AND auto_close`,

	`CREATE TABLE IF NOT EXISTS poll_votes (
		poll_id          UUID NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
		participant      TEXT NOT NULL,
		participant_key  TEXT NOT NULL,
		selected_slots   TIMESTAMPTZ[] NOT NULL,
		voted_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (poll_id, participant_key)
	)`,
}

// Migrate creates the tables the repositories need.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %q: %w", head(stmt), err)
		}
	}
	return nil
}

func head(stmt string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(stmt), "\n")
	return line
}
