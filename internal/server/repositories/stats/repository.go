package stats

import (
	"context"

	"github.com/dmitrijs2005/poapgate/internal/server/models"
)

// Counter names one of the monotonic activity counters.
type Counter string

const (
	PostsCreated Counter = "posts_created"
	VotesCast    Counter = "votes_cast"
	LikesGiven   Counter = "likes_given"
)

type Repository interface {
	// Get returns common.ErrorNotFound when the account has no row yet.
	Get(ctx context.Context, address string) (*models.UserStats, error)
	// Ensure returns the row for address, creating a zeroed one if needed.
	Ensure(ctx context.Context, address string) (*models.UserStats, error)
	// Increment adds one to counter, creating the row if needed, and returns
	// the new value.
	Increment(ctx context.Context, address string, counter Counter) (int64, error)
	// RaisePOAPs sets poaps_owned to max(current, n) and returns the result.
	RaisePOAPs(ctx context.Context, address string, n int64) (int64, error)
	Count(ctx context.Context) (int64, error)
}
