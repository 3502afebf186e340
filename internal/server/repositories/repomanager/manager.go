package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/poapgate/internal/dbx"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/completions"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/likes"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/milestones"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/posts"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/proposals"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/stats"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/votes"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Stats(db dbx.DBTX) stats.Repository
	Posts(db dbx.DBTX) posts.Repository
	Likes(db dbx.DBTX) likes.Repository
	Proposals(db dbx.DBTX) proposals.Repository
	Votes(db dbx.DBTX) votes.Repository
	Milestones(db dbx.DBTX) milestones.Repository
	Completions(db dbx.DBTX) completions.Repository
}
