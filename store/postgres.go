package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentracore/sessiond/session"
)

// Schema is the durable-tier table layout. Bootstrap applies it; deployments
// that manage migrations elsewhere can apply the same statements themselves.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL,
	refresh_expires_at TIMESTAMPTZ NOT NULL,
	payload            JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_user_id_idx ON sessions (user_id);
CREATE INDEX IF NOT EXISTS sessions_refresh_expires_at_idx ON sessions (refresh_expires_at);
`

// PostgresTier is the durable authoritative tier. Sessions are stored as a
// JSONB payload with the columns needed for the user index and expiry sweep
// denormalized alongside.
type PostgresTier struct {
	db *pgxpool.Pool
}

// NewPostgresTier creates a durable tier on the given connection pool.
func NewPostgresTier(db *pgxpool.Pool) *PostgresTier {
	return &PostgresTier{db: db}
}

// Bootstrap applies the durable-tier schema.
func (p *PostgresTier) Bootstrap(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}
	return nil
}

// Get returns the session for id, or ErrNotFound.
func (p *PostgresTier) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	var payload []byte
	err := p.db.QueryRow(ctx,
		`SELECT payload FROM sessions WHERE id = $1`, sessionID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}
	return session.Decode(payload)
}

// Save upserts the session record.
func (p *PostgresTier) Save(ctx context.Context, s *session.Session) error {
	payload, err := session.Encode(s)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(ctx, `
		INSERT INTO sessions (id, user_id, created_at, refresh_expires_at, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			created_at = EXCLUDED.created_at,
			refresh_expires_at = EXCLUDED.refresh_expires_at,
			payload = EXCLUDED.payload`,
		s.ID, s.UserID, s.CreatedAt, s.RefreshExpiresAt, payload,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}
	return nil
}

// Delete removes the session record; absent ids are not an error.
func (p *PostgresTier) Delete(ctx context.Context, sessionID string) (bool, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListByUser returns every stored session for the user, oldest first.
func (p *PostgresTier) ListByUser(ctx context.Context, userID string) ([]*session.Session, error) {
	rows, err := p.db.Query(ctx, `
		SELECT payload FROM sessions
		WHERE user_id = $1
		ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}
	defer rows.Close()

	var sessions []*session.Session
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTierUnavailable, err)
		}
		s, decErr := session.Decode(payload)
		if decErr != nil {
			return nil, decErr
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}
	return sessions, nil
}

// DeleteByUser removes the user's sessions except excludeID and returns the
// number removed.
func (p *PostgresTier) DeleteByUser(ctx context.Context, userID, excludeID string) (int, error) {
	tag, err := p.db.Exec(ctx, `
		DELETE FROM sessions
		WHERE user_id = $1 AND ($2 = '' OR id <> $2)`,
		userID, excludeID,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}
	return int(tag.RowsAffected()), nil
}

// PurgeExpired removes sessions whose refresh window is past now.
func (p *PostgresTier) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := p.db.Exec(ctx,
		`DELETE FROM sessions WHERE refresh_expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}
	return int(tag.RowsAffected()), nil
}

// Ping reports point-in-time database availability.
func (p *PostgresTier) Ping(ctx context.Context) error {
	if err := p.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}
	return nil
}
