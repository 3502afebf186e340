package services

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/poapgate/internal/common"
	"github.com/dmitrijs2005/poapgate/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountService_OverviewSyncsCredentials(t *testing.T) {
	e := newEnv(t, holder)
	ctx := context.Background()
	e.milestone(t, &models.Milestone{ID: "collector", Title: "Collector", Category: models.CategoryPOAPs, Target: 3, RewardPoints: 30})
	e.milestone(t, &models.Milestone{ID: "first-poap", Title: "First POAP", Category: models.CategoryPOAPs, Target: 1, RewardPoints: 5})
	e.contracts.holders[holder] = 2

	svc := NewAccountService(e.mirror, e.contracts, e.engine, nil)
	ov, err := svc.Overview(ctx, holder)
	require.NoError(t, err)

	assert.EqualValues(t, 2, ov.Stats.POAPsOwned)
	assert.EqualValues(t, 5, ov.RewardPoints)
	require.Len(t, ov.Completed, 1)
	assert.Equal(t, "first-poap", ov.Completed[0].MilestoneID)

	// a lower ledger balance never lowers the mirrored count
	e.contracts.holders[holder] = 1
	ov, err = svc.Overview(ctx, holder)
	require.NoError(t, err)
	assert.EqualValues(t, 2, ov.Stats.POAPsOwned)
}

func TestAccountService_OverviewLedgerDown(t *testing.T) {
	e := newEnv(t, holder)
	e.contracts.readErr = errors.New("timeout")

	svc := NewAccountService(e.mirror, e.contracts, e.engine, nil)
	ov, err := svc.Overview(context.Background(), outsider)
	require.NoError(t, err)
	assert.Zero(t, ov.Stats.POAPsOwned)
	assert.Equal(t, outsider, ov.Stats.Address)
}

func TestAccountService_PublicOverviewIsReadOnly(t *testing.T) {
	e := newEnv(t, holder)
	ctx := context.Background()
	e.milestone(t, &models.Milestone{ID: "first-post", Title: "p", Category: models.CategoryPosts, Target: 1})
	e.contracts.holders[outsider] = 4

	svc := NewAccountService(e.mirror, e.contracts, e.engine, nil)
	ov, err := svc.PublicOverview(ctx, outsider)
	require.NoError(t, err)
	assert.Equal(t, outsider, ov.Stats.Address)
	assert.Zero(t, ov.Stats.POAPsOwned)
	assert.Len(t, ov.Milestones, 1)

	_, err = svc.PublicOverview(ctx, "not-an-address")
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	n, err := e.mirror.Stats().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAccountService_EvaluateAllCategories(t *testing.T) {
	e := newEnv(t, holder)
	ctx := context.Background()
	e.milestone(t, &models.Milestone{ID: "first-post", Title: "p", Category: models.CategoryPosts, Target: 1})
	e.milestone(t, &models.Milestone{ID: "first-like", Title: "l", Category: models.CategoryLikes, Target: 1})

	post, err := e.intents.CreatePost(ctx, holder, "a", "b")
	require.NoError(t, err)
	_, err = e.intents.LikePost(ctx, post.ID, holder)
	require.NoError(t, err)

	svc := NewAccountService(e.mirror, e.contracts, e.engine, nil)
	got, err := svc.Evaluate(ctx, holder)
	require.NoError(t, err)
	assert.Empty(t, got)

	done, err := e.mirror.Completions().ListForAddress(ctx, holder)
	require.NoError(t, err)
	assert.Len(t, done, 2)
}
