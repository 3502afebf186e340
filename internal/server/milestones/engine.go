// Package milestones awards one-time completions when an account's activity
// counter reaches a milestone target.
package milestones

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/poapgate/internal/common"
	"github.com/dmitrijs2005/poapgate/internal/logging"
	"github.com/dmitrijs2005/poapgate/internal/metrics"
	"github.com/dmitrijs2005/poapgate/internal/server/mirror"
	"github.com/dmitrijs2005/poapgate/internal/server/models"
)

type Engine struct {
	store   mirror.Store
	logger  logging.Logger
	metrics *metrics.Metrics
}

func NewEngine(store mirror.Store, logger logging.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Engine{store: store, logger: logger.With("module", "milestones"), metrics: m}
}

// Evaluate inserts a completion for every milestone in category whose target
// the account's counter has reached, and returns the ones created by this
// call. Calling it again, or concurrently, never creates a second completion
// for the same pair.
func (e *Engine) Evaluate(ctx context.Context, address string, category models.MilestoneCategory) ([]*models.Milestone, error) {
	st, err := e.store.Stats().Get(ctx, address)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading counters: %w", err)
	}
	value := st.Value(category)

	defs, err := e.store.Milestones().ListByCategory(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("reading milestones: %w", err)
	}

	var awarded []*models.Milestone
	for _, m := range defs {
		if m.Target > value {
			// ordered by target
			break
		}
		done, err := e.store.Completions().Exists(ctx, address, m.ID)
		if err != nil {
			return awarded, fmt.Errorf("checking completion %s: %w", m.ID, err)
		}
		if done {
			continue
		}
		if _, err := e.store.Completions().Create(ctx, address, m.ID); err != nil {
			if errors.Is(err, common.ErrDuplicateAction) {
				continue
			}
			return awarded, fmt.Errorf("recording completion %s: %w", m.ID, err)
		}
		e.metrics.Completion(string(category))
		e.logger.Info(ctx, "milestone completed", "address", address, "milestone_id", m.ID, "category", category)
		awarded = append(awarded, m)
	}
	return awarded, nil
}

// Progress returns value as a percentage of target, clamped to [0, 100].
func Progress(value, target int64) (float64, error) {
	if target <= 0 {
		return 0, fmt.Errorf("%w: milestone target must be positive", common.ErrInvalidInput)
	}
	if value <= 0 {
		return 0, nil
	}
	if value >= target {
		return 100, nil
	}
	return float64(value) / float64(target) * 100, nil
}

type MilestoneProgress struct {
	Milestone *models.Milestone `json:"milestone"`
	Value     int64             `json:"value"`
	Percent   float64           `json:"percent"`
	Completed bool              `json:"completed"`
}

// Overview is an account's standing across every milestone.
type Overview struct {
	Stats        *models.UserStats    `json:"stats"`
	Milestones   []MilestoneProgress  `json:"milestones"`
	Completed    []*models.Completion `json:"completed"`
	RewardPoints int64                `json:"reward_points"`
}

// Overview reports progress toward every milestone for address. It only
// reads; an account without a counters row reports zeros.
func (e *Engine) Overview(ctx context.Context, address string) (*Overview, error) {
	st, err := e.store.Stats().Get(ctx, address)
	if errors.Is(err, common.ErrorNotFound) {
		st, err = &models.UserStats{Address: address}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading counters: %w", err)
	}
	defs, err := e.store.Milestones().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading milestones: %w", err)
	}
	done, err := e.store.Completions().ListForAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("reading completions: %w", err)
	}

	completed := make(map[string]bool, len(done))
	for _, c := range done {
		completed[c.MilestoneID] = true
	}

	ov := &Overview{Stats: st, Completed: done, Milestones: make([]MilestoneProgress, 0, len(defs))}
	for _, m := range defs {
		v := st.Value(m.Category)
		pct, err := Progress(v, m.Target)
		if err != nil {
			e.logger.Warn(ctx, "skipping invalid milestone", "milestone_id", m.ID, "error", err)
			continue
		}
		ov.Milestones = append(ov.Milestones, MilestoneProgress{
			Milestone: m,
			Value:     v,
			Percent:   pct,
			Completed: completed[m.ID],
		})
		if completed[m.ID] {
			ov.RewardPoints += m.RewardPoints
		}
	}
	return ov, nil
}
