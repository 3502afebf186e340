package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/poapgate/internal/common"
	"github.com/dmitrijs2005/poapgate/internal/dbx"
	"github.com/dmitrijs2005/poapgate/internal/server/models"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/stats"
	"github.com/google/uuid"
)

func pairKey(a, b string) string {
	return a + "\x00" + b
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

type statsRepo struct {
	store *Store
	db    dbx.DBTX
}

func (r *statsRepo) row(address string) *models.UserStats {
	d := r.store.data
	s, ok := d.stats[address]
	if !ok {
		now := time.Now()
		s = &models.UserStats{Address: address, CreatedAt: now, UpdatedAt: now}
		d.stats[address] = s
	}
	return s
}

func (r *statsRepo) Get(_ context.Context, address string) (*models.UserStats, error) {
	defer r.store.lock(r.db)()
	s, ok := r.store.data.stats[address]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *statsRepo) Ensure(_ context.Context, address string) (*models.UserStats, error) {
	defer r.store.lock(r.db)()
	cp := *r.row(address)
	return &cp, nil
}

func (r *statsRepo) Increment(_ context.Context, address string, counter stats.Counter) (int64, error) {
	defer r.store.lock(r.db)()
	s := r.row(address)
	var n *int64
	switch counter {
	case stats.PostsCreated:
		n = &s.PostsCreated
	case stats.VotesCast:
		n = &s.VotesCast
	case stats.LikesGiven:
		n = &s.LikesGiven
	default:
		return 0, fmt.Errorf("%w: unknown counter %q", common.ErrInvalidInput, counter)
	}
	*n++
	s.UpdatedAt = time.Now()
	return *n, nil
}

func (r *statsRepo) RaisePOAPs(_ context.Context, address string, n int64) (int64, error) {
	defer r.store.lock(r.db)()
	s := r.row(address)
	if n > s.POAPsOwned {
		s.POAPsOwned = n
		s.UpdatedAt = time.Now()
	}
	return s.POAPsOwned, nil
}

func (r *statsRepo) Count(context.Context) (int64, error) {
	defer r.store.lock(r.db)()
	return int64(len(r.store.data.stats)), nil
}

type postsRepo struct {
	store *Store
	db    dbx.DBTX
}

func (r *postsRepo) Create(_ context.Context, post *models.Post) (*models.Post, error) {
	defer r.store.lock(r.db)()
	d := r.store.data
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if _, ok := d.posts[post.ID]; ok {
		return nil, fmt.Errorf("%w: post %s", common.ErrDuplicateAction, post.ID)
	}
	post.CreatedAt = time.Now()
	post.LikeCount, post.CommentCount = 0, 0
	cp := *post
	d.posts[post.ID] = &cp
	d.postOrder = append(d.postOrder, post.ID)
	return post, nil
}

func (r *postsRepo) Get(_ context.Context, id string) (*models.Post, error) {
	defer r.store.lock(r.db)()
	p, ok := r.store.data.posts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *postsRepo) List(_ context.Context, limit, offset int) ([]*models.Post, error) {
	defer r.store.lock(r.db)()
	d := r.store.data
	all := make([]*models.Post, 0, len(d.postOrder))
	for i := len(d.postOrder) - 1; i >= 0; i-- {
		cp := *d.posts[d.postOrder[i]]
		all = append(all, &cp)
	}
	return page(all, limit, offset), nil
}

func (r *postsRepo) IncrementLikes(_ context.Context, id string) (int64, error) {
	defer r.store.lock(r.db)()
	p, ok := r.store.data.posts[id]
	if !ok {
		return 0, common.ErrorNotFound
	}
	p.LikeCount++
	return p.LikeCount, nil
}

func (r *postsRepo) Count(context.Context) (int64, error) {
	defer r.store.lock(r.db)()
	return int64(len(r.store.data.posts)), nil
}

type likesRepo struct {
	store *Store
	db    dbx.DBTX
}

func (r *likesRepo) Create(_ context.Context, like *models.Like) (*models.Like, error) {
	defer r.store.lock(r.db)()
	d := r.store.data
	if _, ok := d.posts[like.PostID]; !ok {
		return nil, fmt.Errorf("%w: post %s", common.ErrorNotFound, like.PostID)
	}
	key := pairKey(like.PostID, like.Liker)
	if _, ok := d.likes[key]; ok {
		return nil, fmt.Errorf("%w: %s already liked post %s", common.ErrDuplicateAction, like.Liker, like.PostID)
	}
	if like.ID == "" {
		like.ID = uuid.NewString()
	}
	like.CreatedAt = time.Now()
	cp := *like
	d.likes[key] = &cp
	return like, nil
}

func (r *likesRepo) Exists(_ context.Context, postID, liker string) (bool, error) {
	defer r.store.lock(r.db)()
	_, ok := r.store.data.likes[pairKey(postID, liker)]
	return ok, nil
}

func (r *likesRepo) CountForPost(_ context.Context, postID string) (int64, error) {
	defer r.store.lock(r.db)()
	var n int64
	for _, l := range r.store.data.likes {
		if l.PostID == postID {
			n++
		}
	}
	return n, nil
}

type proposalsRepo struct {
	store *Store
	db    dbx.DBTX
}

func (r *proposalsRepo) Create(_ context.Context, p *models.Proposal) (*models.Proposal, error) {
	defer r.store.lock(r.db)()
	d := r.store.data
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, ok := d.proposals[p.ID]; ok {
		return nil, fmt.Errorf("%w: proposal %s", common.ErrDuplicateAction, p.ID)
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
	p.CreatedAt = time.Now()
	d.proposals[p.ID] = copyProposal(p)
	d.propOrder = append(d.propOrder, p.ID)
	return p, nil
}

func (r *proposalsRepo) Get(_ context.Context, id string) (*models.Proposal, error) {
	defer r.store.lock(r.db)()
	p, ok := r.store.data.proposals[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copyProposal(p), nil
}

// GetForUpdate needs no extra locking: transactions already hold the store lock.
func (r *proposalsRepo) GetForUpdate(ctx context.Context, id string) (*models.Proposal, error) {
	return r.Get(ctx, id)
}

func (r *proposalsRepo) List(_ context.Context, limit, offset int) ([]*models.Proposal, error) {
	defer r.store.lock(r.db)()
	d := r.store.data
	all := make([]*models.Proposal, 0, len(d.propOrder))
	for i := len(d.propOrder) - 1; i >= 0; i-- {
		all = append(all, copyProposal(d.proposals[d.propOrder[i]]))
	}
	return page(all, limit, offset), nil
}

func (r *proposalsRepo) UpdateTally(_ context.Context, id string, votes []int64, total int64) error {
	defer r.store.lock(r.db)()
	p, ok := r.store.data.proposals[id]
	if !ok {
		return common.ErrorNotFound
	}
	p.Votes = append([]int64(nil), votes...)
	p.TotalVotes = total
	return nil
}

func (r *proposalsRepo) Link(_ context.Context, id string, ledgerID *uint64, status models.LedgerStatus) error {
	defer r.store.lock(r.db)()
	d := r.store.data
	p, ok := d.proposals[id]
	if !ok {
		return common.ErrorNotFound
	}
	if ledgerID != nil {
		for oid, other := range d.proposals {
			if oid != id && other.LedgerID != nil && *other.LedgerID == *ledgerID {
				return fmt.Errorf("%w: ledger id already linked to another proposal", common.ErrDuplicateAction)
			}
		}
		lid := *ledgerID
		p.LedgerID = &lid
	}
	p.LedgerStatus = status
	return nil
}

func (r *proposalsRepo) ListPending(_ context.Context, limit int) ([]*models.Proposal, error) {
	defer r.store.lock(r.db)()
	d := r.store.data
	var out []*models.Proposal
	for _, id := range d.propOrder {
		p := d.proposals[id]
		if p.LedgerStatus == models.LedgerPending && p.TxID != "" {
			out = append(out, copyProposal(p))
		}
	}
	return page(out, limit, 0), nil
}

func (r *proposalsRepo) CloseEnded(_ context.Context, tip uint64) (int64, error) {
	defer r.store.lock(r.db)()
	var n int64
	for _, p := range r.store.data.proposals {
		if p.Status == models.ProposalActive && p.EndBlock <= tip {
			p.Status = models.ProposalEnded
			n++
		}
	}
	return n, nil
}

func (r *proposalsRepo) Count(context.Context) (int64, error) {
	defer r.store.lock(r.db)()
	return int64(len(r.store.data.proposals)), nil
}

func (r *proposalsRepo) CountActive(context.Context) (int64, error) {
	defer r.store.lock(r.db)()
	var n int64
	for _, p := range r.store.data.proposals {
		if p.Status == models.ProposalActive {
			n++
		}
	}
	return n, nil
}

type votesRepo struct {
	store *Store
	db    dbx.DBTX
}

func (r *votesRepo) Create(_ context.Context, v *models.Vote) (*models.Vote, error) {
	defer r.store.lock(r.db)()
	d := r.store.data
	if _, ok := d.proposals[v.ProposalID]; !ok {
		return nil, fmt.Errorf("%w: proposal %s", common.ErrorNotFound, v.ProposalID)
	}
	for _, id := range d.voteOrder {
		existing := d.votes[id]
		if existing.ProposalID == v.ProposalID && existing.Voter == v.Voter {
			return nil, fmt.Errorf("%w: %s already voted on proposal %s", common.ErrDuplicateAction, v.Voter, v.ProposalID)
		}
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.LedgerStatus == "" {
		v.LedgerStatus = models.LedgerPending
	}
	v.CreatedAt = time.Now()
	cp := *v
	d.votes[v.ID] = &cp
	d.voteOrder = append(d.voteOrder, v.ID)
	return v, nil
}

func (r *votesRepo) Get(_ context.Context, proposalID, voter string) (*models.Vote, error) {
	defer r.store.lock(r.db)()
	for _, v := range r.store.data.votes {
		if v.ProposalID == proposalID && v.Voter == voter {
			cp := *v
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *votesRepo) ListPending(_ context.Context, limit int) ([]*models.Vote, error) {
	defer r.store.lock(r.db)()
	d := r.store.data
	var out []*models.Vote
	for _, id := range d.voteOrder {
		v := d.votes[id]
		if v.LedgerStatus == models.LedgerPending && v.TxID != "" {
			cp := *v
			out = append(out, &cp)
		}
	}
	return page(out, limit, 0), nil
}

func (r *votesRepo) SetLedgerStatus(_ context.Context, id string, status models.LedgerStatus) error {
	defer r.store.lock(r.db)()
	v, ok := r.store.data.votes[id]
	if !ok {
		return common.ErrorNotFound
	}
	v.LedgerStatus = status
	return nil
}

type milestonesRepo struct {
	store *Store
	db    dbx.DBTX
}

func (r *milestonesRepo) Upsert(_ context.Context, m *models.Milestone) error {
	if m.Target <= 0 {
		return fmt.Errorf("%w: milestone %s target must be positive", common.ErrInvalidInput, m.ID)
	}
	defer r.store.lock(r.db)()
	cp := *m
	r.store.data.milestones[m.ID] = &cp
	return nil
}

func (r *milestonesRepo) Get(_ context.Context, id string) (*models.Milestone, error) {
	defer r.store.lock(r.db)()
	m, ok := r.store.data.milestones[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *milestonesRepo) List(ctx context.Context) ([]*models.Milestone, error) {
	return r.filter(func(*models.Milestone) bool { return true }), nil
}

func (r *milestonesRepo) ListByCategory(_ context.Context, category models.MilestoneCategory) ([]*models.Milestone, error) {
	return r.filter(func(m *models.Milestone) bool { return m.Category == category }), nil
}

func (r *milestonesRepo) filter(keep func(*models.Milestone) bool) []*models.Milestone {
	defer r.store.lock(r.db)()
	var out []*models.Milestone
	for _, m := range r.store.data.milestones {
		if keep(m) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Target != out[j].Target {
			return out[i].Target < out[j].Target
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type completionsRepo struct {
	store *Store
	db    dbx.DBTX
}

func (r *completionsRepo) Create(_ context.Context, address, milestoneID string) (*models.Completion, error) {
	defer r.store.lock(r.db)()
	d := r.store.data
	if _, ok := d.milestones[milestoneID]; !ok {
		return nil, fmt.Errorf("%w: milestone %s", common.ErrorNotFound, milestoneID)
	}
	key := pairKey(address, milestoneID)
	if _, ok := d.completions[key]; ok {
		return nil, fmt.Errorf("%w: %s already completed %s", common.ErrDuplicateAction, address, milestoneID)
	}
	c := &models.Completion{Address: address, MilestoneID: milestoneID, CompletedAt: time.Now()}
	cp := *c
	d.completions[key] = &cp
	return c, nil
}

func (r *completionsRepo) Exists(_ context.Context, address, milestoneID string) (bool, error) {
	defer r.store.lock(r.db)()
	_, ok := r.store.data.completions[pairKey(address, milestoneID)]
	return ok, nil
}

func (r *completionsRepo) ListForAddress(_ context.Context, address string) ([]*models.Completion, error) {
	defer r.store.lock(r.db)()
	var out []*models.Completion
	for _, c := range r.store.data.completions {
		if c.Address == address {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CompletedAt.Equal(out[j].CompletedAt) {
			return out[i].CompletedAt.Before(out[j].CompletedAt)
		}
		return out[i].MilestoneID < out[j].MilestoneID
	})
	return out, nil
}
