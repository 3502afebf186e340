package proposals

import (
	"context"
	"database/sql"
	"encoding/json"
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

const selectColumns = `id, ledger_id, title, description, creator, start_block, end_block, options, votes,
		 total_votes, status, tx_id, ledger_status, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.Proposal, error) {
	p := &models.Proposal{}
	var (
		ledgerID        sql.NullInt64
		start, end      int64
		options, votes  []byte
		status, lstatus string
	)
	err := s.Scan(&p.ID, &ledgerID, &p.Title, &p.Description, &p.Creator, &start, &end,
		&options, &votes, &p.TotalVotes, &status, &p.TxID, &lstatus, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if ledgerID.Valid {
		id := uint64(ledgerID.Int64)
		p.LedgerID = &id
	}
	p.StartBlock = uint64(start)
	p.EndBlock = uint64(end)
	p.Status = models.ProposalStatus(status)
	p.LedgerStatus = models.LedgerStatus(lstatus)
	if err := json.Unmarshal(options, &p.Options); err != nil {
		return nil, fmt.Errorf("decoding options: %w", err)
	}
	if err := json.Unmarshal(votes, &p.Votes); err != nil {
		return nil, fmt.Errorf("decoding votes: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) Create(ctx context.Context, p *models.Proposal) (*models.Proposal, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Votes == nil {
		p.Votes = make([]int64, len(p.Options))
	}
	if p.Status == "" {
		p.Status = models.ProposalActive
	}
	if p.LedgerStatus == "" {
		p.LedgerStatus = models.LedgerPending
	}

	options, err := json.Marshal(p.Options)
	if err != nil {
		return nil, fmt.Errorf("encoding options: %w", err)
	}
	votes, err := json.Marshal(p.Votes)
	if err != nil {
		return nil, fmt.Errorf("encoding votes: %w", err)
	}

	query :=
		`INSERT INTO proposals (id, title, description, creator, start_block, end_block, options, votes,
		                        total_votes, status, tx_id, ledger_status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING created_at
		 `

	err = r.db.QueryRowContext(ctx, query, p.ID, p.Title, p.Description, p.Creator,
		int64(p.StartBlock), int64(p.EndBlock), options, votes, p.TotalVotes,
		string(p.Status), p.TxID, string(p.LedgerStatus)).Scan(&p.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: proposal %s", common.ErrDuplicateAction, p.ID)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) get(ctx context.Context, query, id string) (*models.Proposal, error) {
	p, err := scan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Proposal, error) {
	return r.get(ctx, `SELECT `+selectColumns+` FROM proposals WHERE id = $1`, id)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.Proposal, error) {
	return r.get(ctx, `SELECT `+selectColumns+` FROM proposals WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.Proposal, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Proposal
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) List(ctx context.Context, limit, offset int) ([]*models.Proposal, error) {
	query :=
		`SELECT ` + selectColumns + ` FROM proposals
		 ORDER BY created_at DESC, id
		 LIMIT $1 OFFSET $2
		 `
	return r.list(ctx, query, limit, offset)
}

func (r *PostgresRepository) ListPending(ctx context.Context, limit int) ([]*models.Proposal, error) {
	query :=
		`SELECT ` + selectColumns + ` FROM proposals
		 WHERE ledger_status = 'pending' AND tx_id <> ''
		 ORDER BY created_at
		 LIMIT $1
		 `
	return r.list(ctx, query, limit)
}

func (r *PostgresRepository) UpdateTally(ctx context.Context, id string, votes []int64, total int64) error {
	encoded, err := json.Marshal(votes)
	if err != nil {
		return fmt.Errorf("encoding votes: %w", err)
	}

	query :=
		`UPDATE proposals SET votes = $2, total_votes = $3
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, id, encoded, total)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *PostgresRepository) Link(ctx context.Context, id string, ledgerID *uint64, status models.LedgerStatus) error {
	var lid sql.NullInt64
	if ledgerID != nil {
		lid = sql.NullInt64{Int64: int64(*ledgerID), Valid: true}
	}

	query :=
		`UPDATE proposals SET ledger_id = COALESCE($2, ledger_id), ledger_status = $3
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, id, lid, string(status))
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("%w: ledger id already linked to another proposal", common.ErrDuplicateAction)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *PostgresRepository) CloseEnded(ctx context.Context, tip uint64) (int64, error) {
	query :=
		`UPDATE proposals SET status = 'ended'
		 WHERE status = 'active' AND end_block <= $1
		 `

	res, err := r.db.ExecContext(ctx, query, int64(tip))
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM proposals`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) CountActive(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM proposals WHERE status = 'active'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
