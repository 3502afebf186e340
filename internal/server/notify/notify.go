// Package notify delivers post-insert notifications to live subscribers.
//
// Each subscriber gets its own ordered stream. Events carry an ID so a
// subscriber that drops can resume after the last ID it saw; delivery is
// therefore at-least-once across reconnects.
package notify

import (
	"context"

	"github.com/dmitrijs2005/poapgate/internal/server/models"
)

// Event is one post-insert notification.
type Event struct {
	ID   string
	Post models.Post
}

// Stream is implemented by Hub (in-process) and RedisStream.
type Stream interface {
	Publish(ctx context.Context, post *models.Post) error
	// Subscribe returns a channel of events published after the event with ID
	// after ("" means from now on). The channel is closed when ctx ends.
	Subscribe(ctx context.Context, after string) (<-chan Event, error)
}
