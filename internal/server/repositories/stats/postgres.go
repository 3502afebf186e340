package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/poapgate/internal/common"
	"github.com/dmitrijs2005/poapgate/internal/dbx"
	"github.com/dmitrijs2005/poapgate/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `address, posts_created, votes_cast, likes_given, poaps_owned, created_at, updated_at`

func scan(row *sql.Row) (*models.UserStats, error) {
	s := &models.UserStats{}
	err := row.Scan(&s.Address, &s.PostsCreated, &s.VotesCast, &s.LikesGiven, &s.POAPsOwned, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *PostgresRepository) Get(ctx context.Context, address string) (*models.UserStats, error) {
	query :=
		`SELECT ` + selectColumns + ` FROM user_stats
		 WHERE address = $1
		 `

	s, err := scan(r.db.QueryRowContext(ctx, query, address))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) Ensure(ctx context.Context, address string) (*models.UserStats, error) {
	// the no-op update makes RETURNING yield the existing row
	query :=
		`INSERT INTO user_stats (address)
		 VALUES ($1)
		 ON CONFLICT (address) DO UPDATE SET address = EXCLUDED.address
		 RETURNING ` + selectColumns + `
		 `

	s, err := scan(r.db.QueryRowContext(ctx, query, address))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) Increment(ctx context.Context, address string, counter Counter) (int64, error) {
	switch counter {
	case PostsCreated, VotesCast, LikesGiven:
	default:
		return 0, fmt.Errorf("%w: unknown counter %q", common.ErrInvalidInput, counter)
	}

	col := string(counter)
	query :=
		`INSERT INTO user_stats (address, ` + col + `)
		 VALUES ($1, 1)
		 ON CONFLICT (address) DO UPDATE SET ` + col + ` = user_stats.` + col + ` + 1, updated_at = now()
		 RETURNING ` + col + `
		 `

	var n int64
	if err := r.db.QueryRowContext(ctx, query, address).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) RaisePOAPs(ctx context.Context, address string, n int64) (int64, error) {
	query :=
		`INSERT INTO user_stats (address, poaps_owned)
		 VALUES ($1, GREATEST($2::BIGINT, 0))
		 ON CONFLICT (address) DO UPDATE SET poaps_owned = GREATEST(user_stats.poaps_owned, EXCLUDED.poaps_owned), updated_at = now()
		 RETURNING poaps_owned
		 `

	var got int64
	if err := r.db.QueryRowContext(ctx, query, address, n).Scan(&got); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return got, nil
}

func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_stats`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
