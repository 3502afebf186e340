package completions

import (
	"context"
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

func (r *PostgresRepository) Create(ctx context.Context, address, milestoneID string) (*models.Completion, error) {
	query :=
		`INSERT INTO user_milestones (address, milestone_id)
		 VALUES ($1, $2)
		 RETURNING completed_at
		 `

	c := &models.Completion{Address: address, MilestoneID: milestoneID}
	if err := r.db.QueryRowContext(ctx, query, address, milestoneID).Scan(&c.CompletedAt); err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s already completed %s", common.ErrDuplicateAction, address, milestoneID)
		}
		if dbx.IsForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: milestone %s", common.ErrorNotFound, milestoneID)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) Exists(ctx context.Context, address, milestoneID string) (bool, error) {
	query :=
		`SELECT EXISTS (SELECT 1 FROM user_milestones WHERE address = $1 AND milestone_id = $2)
		 `

	var ok bool
	if err := r.db.QueryRowContext(ctx, query, address, milestoneID).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (r *PostgresRepository) ListForAddress(ctx context.Context, address string) ([]*models.Completion, error) {
	query :=
		`SELECT address, milestone_id, completed_at FROM user_milestones
		 WHERE address = $1
		 ORDER BY completed_at, milestone_id
		 `

	rows, err := r.db.QueryContext(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Completion
	for rows.Next() {
		c := &models.Completion{}
		if err := rows.Scan(&c.Address, &c.MilestoneID, &c.CompletedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
