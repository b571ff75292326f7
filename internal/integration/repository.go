package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Get(ctx context.Context, hostID uuid.UUID, p Platform) (*Integration, error)
	List(ctx context.Context, hostID uuid.UUID) ([]Integration, error)
	Upsert(ctx context.Context, in *Integration) error
	Delete(ctx context.Context, hostID uuid.UUID, p Platform) error
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const integrationColumns = `id, host_id, platform, access_token, refresh_token, token_type, expiry, created_at, updated_at`

func scanIntegration(row pgx.Row) (*Integration, error) {
	var in Integration
	var expiry *time.Time

	err := row.Scan(
		&in.ID,
		&in.HostID,
		&in.Platform,
		&in.AccessToken,
		&in.RefreshToken,
		&in.TokenType,
		&expiry,
		&in.CreatedAt,
		&in.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIntegrationNotFound
		}
		return nil, err
	}

	if expiry != nil {
		in.Expiry = *expiry
	}
	return &in, nil
}

func (r *PgRepository) Get(ctx context.Context, hostID uuid.UUID, p Platform) (*Integration, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+integrationColumns+`
		FROM integrations
		WHERE host_id = $1 AND platform = $2
	`, hostID, p)
	return scanIntegration(row)
}

func (r *PgRepository) List(ctx context.Context, hostID uuid.UUID) ([]Integration, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+integrationColumns+`
		FROM integrations
		WHERE host_id = $1
		ORDER BY platform
	`, hostID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Integration
	for rows.Next() {
		in, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *in)
	}
	return result, rows.Err()
}

func (r *PgRepository) Upsert(ctx context.Context, in *Integration) error {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	var expiry *time.Time
	if !in.Expiry.IsZero() {
		expiry = &in.Expiry
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO integrations (id, host_id, platform, access_token, refresh_token, token_type, expiry, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (host_id, platform) DO UPDATE
		SET access_token = EXCLUDED.access_token,
		    refresh_token = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), integrations.refresh_token),
		    token_type = EXCLUDED.token_type,
		    expiry = EXCLUDED.expiry,
		    updated_at = now()
		RETURNING id, created_at, updated_at
	`, in.ID, in.HostID, in.Platform, in.AccessToken, in.RefreshToken, in.TokenType, expiry).
		Scan(&in.ID, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert integration: %w", err)
	}
	return nil
}

func (r *PgRepository) Delete(ctx context.Context, hostID uuid.UUID, p Platform) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM integrations WHERE host_id = $1 AND platform = $2`, hostID, p)
	if err != nil {
		return fmt.Errorf("delete integration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIntegrationNotFound
	}
	return nil
}

type integrationKey struct {
	host     uuid.UUID
	platform Platform
}

type MemoryRepository struct {
	mu    sync.RWMutex
	items map[integrationKey]Integration
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[integrationKey]Integration)}
}

func (r *MemoryRepository) Get(_ context.Context, hostID uuid.UUID, p Platform) (*Integration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	in, ok := r.items[integrationKey{hostID, p}]
	if !ok {
		return nil, ErrIntegrationNotFound
	}
	return &in, nil
}

func (r *MemoryRepository) List(_ context.Context, hostID uuid.UUID) ([]Integration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Integration
	for _, p := range Platforms {
		if in, ok := r.items[integrationKey{hostID, p}]; ok {
			out = append(out, in)
		}
	}
	return out, nil
}

func (r *MemoryRepository) Upsert(_ context.Context, in *Integration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := integrationKey{in.HostID, in.Platform}
	now := time.Now()
	if prev, ok := r.items[key]; ok {
		in.ID = prev.ID
		in.CreatedAt = prev.CreatedAt
		if in.RefreshToken == "" {
			in.RefreshToken = prev.RefreshToken
		}
	} else {
		if in.ID == uuid.Nil {
			in.ID = uuid.New()
		}
		in.CreatedAt = now
	}
	in.UpdatedAt = now
	r.items[key] = *in
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, hostID uuid.UUID, p Platform) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := integrationKey{hostID, p}
	if _, ok := r.items[key]; !ok {
		return ErrIntegrationNotFound
	}
	delete(r.items, key)
	return nil
}
