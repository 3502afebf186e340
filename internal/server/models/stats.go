package models

import "time"

// UserStats holds the per-account activity counters. Counters never decrease.
type UserStats struct {
	Address      string    `json:"address"`
	PostsCreated int64     `json:"posts_created"`
	VotesCast    int64     `json:"votes_cast"`
	LikesGiven   int64     `json:"likes_given"`
	POAPsOwned   int64     `json:"poaps_owned"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Value returns the counter a milestone category measures.
func (s *UserStats) Value(c MilestoneCategory) int64 {
	switch c {
	case CategoryPosts:
		return s.PostsCreated
	case CategoryVotes:
		return s.VotesCast
	case CategoryLikes:
		return s.LikesGiven
	case CategoryPOAPs:
		return s.POAPsOwned
	default:
		return 0
	}
}

// PlatformStats is the platform-wide summary.
type PlatformStats struct {
	Posts           int64 `json:"total_posts"`
	Proposals       int64 `json:"total_proposals"`
	Users           int64 `json:"total_users"`
	ActiveProposals int64 `json:"active_proposals"`
}
