package models

import (
	"fmt"
	"time"
)

type MilestoneCategory string

const (
	CategoryPosts MilestoneCategory = "posts"
	CategoryVotes MilestoneCategory = "votes"
	CategoryLikes MilestoneCategory = "likes"
	CategoryPOAPs MilestoneCategory = "poaps"
)

var Categories = []MilestoneCategory{CategoryPosts, CategoryVotes, CategoryLikes, CategoryPOAPs}

func ParseCategory(s string) (MilestoneCategory, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown milestone category %q", s)
}

type Milestone struct {
	ID           string            `json:"id" yaml:"id"`
	Title        string            `json:"title" yaml:"title"`
	Description  string            `json:"description" yaml:"description"`
	Category     MilestoneCategory `json:"category" yaml:"category"`
	Target       int64             `json:"target" yaml:"target"`
	RewardPoints int64             `json:"reward_points" yaml:"reward_points"`
}

// Completion records that Address reached MilestoneID. At most one exists
// per pair.
type Completion struct {
	Address     string    `json:"address"`
	MilestoneID string    `json:"milestone_id"`
	CompletedAt time.Time `json:"completed_at"`
}
