package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore keeps mounts in the mounts table. Rows past expires_at are
// treated as missing and removed by Sweep.
type PostgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewPostgresStore creates a store whose rows expire ttl after their last save.
func NewPostgresStore(pool *pgxpool.Pool, ttl time.Duration) *PostgresStore {
	return &PostgresStore{pool: pool, ttl: ttl}
}

func (s *PostgresStore) Save(ctx context.Context, st MountState) error {
	if st.ID == "" {
		return fmt.Errorf("mount id is required")
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal mount %s: %w", st.ID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO mounts (id, route, state, expires_at)
		 VALUES ($1, $2, $3, NOW() + make_interval(secs => $4))
		 ON CONFLICT (id) DO UPDATE
		 SET route = EXCLUDED.route, state = EXCLUDED.state, expires_at = EXCLUDED.expires_at`,
		st.ID, st.Route, data, s.ttl.Seconds(),
	)
	if err != nil {
		return fmt.Errorf("save mount %s: %w", st.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (MountState, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM mounts WHERE id = $1 AND expires_at > NOW()`,
		id,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return MountState{}, fmt.Errorf("%w: %s", ErrMountNotFound, id)
	}
	if err != nil {
		return MountState{}, fmt.Errorf("get mount %s: %w", id, err)
	}

	var st MountState
	if err := json.Unmarshal(data, &st); err != nil {
		return MountState{}, fmt.Errorf("decode mount %s: %w", id, err)
	}
	return st, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM mounts WHERE id = $1 AND expires_at > NOW()`, id)
	if err != nil {
		return fmt.Errorf("delete mount %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrMountNotFound, id)
	}
	return nil
}

// Sweep deletes expired rows and returns how many were removed.
func (s *PostgresStore) Sweep(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM mounts WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("sweep mounts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RunJanitor sweeps expired rows every interval until ctx is done. swept,
// when non-nil, receives the count removed by each successful sweep.
func (s *PostgresStore) RunJanitor(ctx context.Context, interval time.Duration, swept func(n int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				slog.Warn("mount sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Debug("swept expired mounts", "count", n)
			}
			if swept != nil {
				swept(int(n))
			}
		}
	}
}
