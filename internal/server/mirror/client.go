// Package mirror is the typed client for the secondary store. It binds the
// repository factories to a connection, runs multi-collection writes in one
// transaction and relays post inserts to the notification stream.
package mirror

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/poapgate/internal/dbx"
	"github.com/dmitrijs2005/poapgate/internal/logging"
	"github.com/dmitrijs2005/poapgate/internal/server/models"
	"github.com/dmitrijs2005/poapgate/internal/server/notify"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/completions"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/likes"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/milestones"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/posts"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/proposals"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/stats"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/votes"
)

// Store exposes every collection through one connection.
type Store interface {
	Stats() stats.Repository
	Posts() posts.Repository
	Likes() likes.Repository
	Proposals() proposals.Repository
	Votes() votes.Repository
	Milestones() milestones.Repository
	Completions() completions.Repository
}

type boundStore struct {
	db    dbx.DBTX
	repos repomanager.RepositoryManager
}

func (b boundStore) Stats() stats.Repository             { return b.repos.Stats(b.db) }
func (b boundStore) Posts() posts.Repository             { return b.repos.Posts(b.db) }
func (b boundStore) Likes() likes.Repository             { return b.repos.Likes(b.db) }
func (b boundStore) Proposals() proposals.Repository     { return b.repos.Proposals(b.db) }
func (b boundStore) Votes() votes.Repository             { return b.repos.Votes(b.db) }
func (b boundStore) Milestones() milestones.Repository   { return b.repos.Milestones(b.db) }
func (b boundStore) Completions() completions.Repository { return b.repos.Completions(b.db) }

type Client struct {
	boundStore
	tx     dbx.Transactor
	stream notify.Stream
	logger logging.Logger
}

// New builds a client. stream may be nil, in which case post notifications
// are dropped and Subscribe fails.
func New(db dbx.DBTX, tx dbx.Transactor, repos repomanager.RepositoryManager, stream notify.Stream, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Client{
		boundStore: boundStore{db: db, repos: repos},
		tx:         tx,
		stream:     stream,
		logger:     logger.With("module", "mirror"),
	}
}

// InTx runs fn against a Store bound to a single transaction. Everything fn
// writes is committed together or not at all.
func (c *Client) InTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	return c.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, boundStore{db: tx, repos: c.repos})
	})
}

// NotifyPost publishes a committed post insert. Delivery failures are logged;
// the post itself is already durable.
func (c *Client) NotifyPost(ctx context.Context, post *models.Post) {
	if c.stream == nil {
		return
	}
	if err := c.stream.Publish(ctx, post); err != nil {
		c.logger.Warn(ctx, "post notification not published", "post_id", post.ID, "error", err)
	}
}

// Subscribe streams post inserts committed after the event with ID after.
func (c *Client) Subscribe(ctx context.Context, after string) (<-chan notify.Event, error) {
	if c.stream == nil {
		return nil, fmt.Errorf("post notifications are not configured")
	}
	return c.stream.Subscribe(ctx, after)
}
