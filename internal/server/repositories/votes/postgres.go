package votes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/poapgate/internal/common"
	"github.com/dmitrijs2005/poapgate/internal/dbx"
	"github.com/dmitrijs2005/poapgate/internal/server/models"
	"github.com/google/uuid"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `id, proposal_id, voter, option_index, tx_id, ledger_status, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.Vote, error) {
	v := &models.Vote{}
	var status string
	if err := s.Scan(&v.ID, &v.ProposalID, &v.Voter, &v.OptionIndex, &v.TxID, &status, &v.CreatedAt); err != nil {
		return nil, err
	}
	v.LedgerStatus = models.LedgerStatus(status)
	return v, nil
}

func (r *PostgresRepository) Create(ctx context.Context, v *models.Vote) (*models.Vote, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.LedgerStatus == "" {
		v.LedgerStatus = models.LedgerPending
	}

	query :=
		`INSERT INTO votes (id, proposal_id, voter, option_index, tx_id, ledger_status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query, v.ID, v.ProposalID, v.Voter, v.OptionIndex, v.TxID, string(v.LedgerStatus)).
		Scan(&v.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s already voted on proposal %s", common.ErrDuplicateAction, v.Voter, v.ProposalID)
		}
		if dbx.IsForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: proposal %s", common.ErrorNotFound, v.ProposalID)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

func (r *PostgresRepository) Get(ctx context.Context, proposalID, voter string) (*models.Vote, error) {
	query :=
		`SELECT ` + selectColumns + ` FROM votes
		 WHERE proposal_id = $1 AND voter = $2
		 `

	v, err := scan(r.db.QueryRowContext(ctx, query, proposalID, voter))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

func (r *PostgresRepository) ListPending(ctx context.Context, limit int) ([]*models.Vote, error) {
	query :=
		`SELECT ` + selectColumns + ` FROM votes
		 WHERE ledger_status = 'pending' AND tx_id <> ''
		 ORDER BY created_at
		 LIMIT $1
		 `

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Vote
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) SetLedgerStatus(ctx context.Context, id string, status models.LedgerStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE votes SET ledger_status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
