// Package tally maintains per-option vote counts on a mirrored proposal.
package tally

import (
	"fmt"

	"github.com/dmitrijs2005/poapgate/internal/common"
	"github.com/dmitrijs2005/poapgate/internal/server/models"
)

// RecordVote adds one vote for option. Missing option slots are created at
// zero so that every option index has an entry.
func RecordVote(p *models.Proposal, option int) error {
	if option < 0 || option >= len(p.Options) {
		return fmt.Errorf("%w: option %d out of range for %d options", common.ErrInvalidInput, option, len(p.Options))
	}
	Normalize(p)
	p.Votes[option]++
	p.TotalVotes++
	return nil
}

// RetractVote removes one vote for option, for a vote the ledger never
// recorded. Counts never drop below zero.
func RetractVote(p *models.Proposal, option int) error {
	if option < 0 || option >= len(p.Options) {
		return fmt.Errorf("%w: option %d out of range for %d options", common.ErrInvalidInput, option, len(p.Options))
	}
	Normalize(p)
	if p.Votes[option] == 0 || p.TotalVotes == 0 {
		return fmt.Errorf("proposal %s has no vote on option %d to retract", p.ID, option)
	}
	p.Votes[option]--
	p.TotalVotes--
	return nil
}

// Normalize pads Votes to one entry per option.
func Normalize(p *models.Proposal) {
	for len(p.Votes) < len(p.Options) {
		p.Votes = append(p.Votes, 0)
	}
}

// Percentage returns the share of total votes cast for option, or 0 when no
// votes have been cast.
func Percentage(p *models.Proposal, option int) float64 {
	if p.TotalVotes == 0 || option < 0 || option >= len(p.Votes) {
		return 0
	}
	return float64(p.Votes[option]) / float64(p.TotalVotes) * 100
}

// Percentages returns Percentage for every option.
func Percentages(p *models.Proposal) []float64 {
	out := make([]float64, len(p.Options))
	for i := range out {
		out[i] = Percentage(p, i)
	}
	return out
}

// Check reports whether TotalVotes equals the sum of the option counts.
func Check(p *models.Proposal) error {
	var sum int64
	for _, v := range p.Votes {
		if v < 0 {
			return fmt.Errorf("negative vote count on proposal %s", p.ID)
		}
		sum += v
	}
	if sum != p.TotalVotes {
		return fmt.Errorf("proposal %s total %d does not match option sum %d", p.ID, p.TotalVotes, sum)
	}
	return nil
}
