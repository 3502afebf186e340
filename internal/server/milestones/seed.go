package milestones

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/poapgate/internal/common"
	"github.com/dmitrijs2005/poapgate/internal/server/mirror"
	"github.com/dmitrijs2005/poapgate/internal/server/models"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultDefinitions []byte

// DefaultDefinitions returns the built-in milestone set.
func DefaultDefinitions() ([]*models.Milestone, error) {
	return LoadDefinitions(bytes.NewReader(defaultDefinitions))
}

// LoadDefinitions reads a YAML list of milestones and validates each entry.
func LoadDefinitions(r io.Reader) ([]*models.Milestone, error) {
	var defs []*models.Milestone
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&defs); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: milestones: %v", common.ErrInvalidInput, err)
	}

	seen := make(map[string]bool, len(defs))
	for i, m := range defs {
		m.ID = strings.TrimSpace(m.ID)
		switch {
		case m.ID == "":
			return nil, fmt.Errorf("%w: milestone %d has no id", common.ErrInvalidInput, i)
		case seen[m.ID]:
			return nil, fmt.Errorf("%w: milestone %q defined twice", common.ErrInvalidInput, m.ID)
		case m.Target <= 0:
			return nil, fmt.Errorf("%w: milestone %q target must be positive", common.ErrInvalidInput, m.ID)
		case m.RewardPoints < 0:
			return nil, fmt.Errorf("%w: milestone %q reward is negative", common.ErrInvalidInput, m.ID)
		}
		if _, err := models.ParseCategory(string(m.Category)); err != nil {
			return nil, fmt.Errorf("%w: milestone %q: %v", common.ErrInvalidInput, m.ID, err)
		}
		seen[m.ID] = true
	}
	return defs, nil
}

// Seed upserts defs in one transaction.
func Seed(ctx context.Context, c *mirror.Client, defs []*models.Milestone) error {
	return c.InTx(ctx, func(ctx context.Context, s mirror.Store) error {
		for _, m := range defs {
			if err := s.Milestones().Upsert(ctx, m); err != nil {
				return fmt.Errorf("upserting %s: %w", m.ID, err)
			}
		}
		return nil
	})
}
