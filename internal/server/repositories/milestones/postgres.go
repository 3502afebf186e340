package milestones

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

const selectColumns = `id, title, description, category, target, reward_points`

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.Milestone, error) {
	m := &models.Milestone{}
	var category string
	if err := s.Scan(&m.ID, &m.Title, &m.Description, &category, &m.Target, &m.RewardPoints); err != nil {
		return nil, err
	}
	m.Category = models.MilestoneCategory(category)
	return m, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, m *models.Milestone) error {
	if m.Target <= 0 {
		return fmt.Errorf("%w: milestone %s target must be positive", common.ErrInvalidInput, m.ID)
	}

	query :=
		`INSERT INTO milestones (id, title, description, category, target, reward_points)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, description = EXCLUDED.description,
		     category = EXCLUDED.category, target = EXCLUDED.target, reward_points = EXCLUDED.reward_points
		 `

	_, err := r.db.ExecContext(ctx, query, m.ID, m.Title, m.Description, string(m.Category), m.Target, m.RewardPoints)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Milestone, error) {
	m, err := scan(r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM milestones WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.Milestone, error) {
	return r.list(ctx, `SELECT `+selectColumns+` FROM milestones ORDER BY target, id`)
}

func (r *PostgresRepository) ListByCategory(ctx context.Context, category models.MilestoneCategory) ([]*models.Milestone, error) {
	return r.list(ctx, `SELECT `+selectColumns+` FROM milestones WHERE category = $1 ORDER BY target, id`, string(category))
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.Milestone, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Milestone
	for rows.Next() {
		m, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
