// Package memory is an in-process mirror store implementing every repository
// and dbx.Transactor. Transactions are serialized behind one lock and roll
// back by restoring a snapshot. It backs development runs without PostgreSQL
// and the service tests.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/dmitrijs2005/poapgate/internal/dbx"
	"github.com/dmitrijs2005/poapgate/internal/server/models"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/completions"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/likes"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/milestones"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/posts"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/proposals"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/stats"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/votes"
)

var errNoSQL = errors.New("memory store does not execute SQL")

// conn is the DBTX handed to repositories. It carries no connection; it
// only tells a repository whether the store lock is already held.
type conn struct {
	tx bool
}

func (conn) ExecContext(context.Context, string, ...any) (sql.Result, error) { return nil, errNoSQL }
func (conn) QueryContext(context.Context, string, ...any) (*sql.Rows, error) { return nil, errNoSQL }
func (conn) QueryRowContext(context.Context, string, ...any) *sql.Row         { return nil }

type state struct {
	stats       map[string]*models.UserStats
	posts       map[string]*models.Post
	postOrder   []string
	likes       map[string]*models.Like
	proposals   map[string]*models.Proposal
	propOrder   []string
	votes       map[string]*models.Vote
	voteOrder   []string
	milestones  map[string]*models.Milestone
	completions map[string]*models.Completion
}

func newState() *state {
	return &state{
		stats:       map[string]*models.UserStats{},
		posts:       map[string]*models.Post{},
		likes:       map[string]*models.Like{},
		proposals:   map[string]*models.Proposal{},
		votes:       map[string]*models.Vote{},
		milestones:  map[string]*models.Milestone{},
		completions: map[string]*models.Completion{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.stats {
		cp := *v
		c.stats[k] = &cp
	}
	for k, v := range s.posts {
		cp := *v
		c.posts[k] = &cp
	}
	for k, v := range s.likes {
		cp := *v
		c.likes[k] = &cp
	}
	for k, v := range s.proposals {
		c.proposals[k] = copyProposal(v)
	}
	for k, v := range s.votes {
		cp := *v
		c.votes[k] = &cp
	}
	for k, v := range s.milestones {
		cp := *v
		c.milestones[k] = &cp
	}
	for k, v := range s.completions {
		cp := *v
		c.completions[k] = &cp
	}
	c.postOrder = append([]string(nil), s.postOrder...)
	c.propOrder = append([]string(nil), s.propOrder...)
	c.voteOrder = append([]string(nil), s.voteOrder...)
	return c
}

func copyProposal(p *models.Proposal) *models.Proposal {
	cp := *p
	cp.Options = append([]string(nil), p.Options...)
	cp.Votes = append([]int64(nil), p.Votes...)
	if p.LedgerID != nil {
		id := *p.LedgerID
		cp.LedgerID = &id
	}
	return &cp
}

type Store struct {
	mu   sync.Mutex
	data *state
}

func NewStore() *Store {
	return &Store{data: newState()}
}

// Conn returns the handle for statements outside a transaction.
func (s *Store) Conn() dbx.DBTX {
	return conn{}
}

// WithTx runs fn with the store locked. Changes made by fn are discarded if
// it returns an error or panics.
func (s *Store) WithTx(ctx context.Context, fn dbx.TxFunc) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	defer func() {
		if p := recover(); p != nil {
			s.data = snapshot
			panic(p)
		}
		if err != nil {
			s.data = snapshot
		}
	}()

	return fn(ctx, conn{tx: true})
}

func (s *Store) lock(db dbx.DBTX) func() {
	if c, ok := db.(conn); ok && c.tx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// RunMigrations is a no-op; the store has no schema.
func (s *Store) RunMigrations(context.Context, *sql.DB) error {
	return nil
}

func (s *Store) Stats(db dbx.DBTX) stats.Repository {
	return &statsRepo{store: s, db: db}
}

func (s *Store) Posts(db dbx.DBTX) posts.Repository {
	return &postsRepo{store: s, db: db}
}

func (s *Store) Likes(db dbx.DBTX) likes.Repository {
	return &likesRepo{store: s, db: db}
}

func (s *Store) Proposals(db dbx.DBTX) proposals.Repository {
	return &proposalsRepo{store: s, db: db}
}

func (s *Store) Votes(db dbx.DBTX) votes.Repository {
	return &votesRepo{store: s, db: db}
}

func (s *Store) Milestones(db dbx.DBTX) milestones.Repository {
	return &milestonesRepo{store: s, db: db}
}

func (s *Store) Completions(db dbx.DBTX) completions.Repository {
	return &completionsRepo{store: s, db: db}
}
