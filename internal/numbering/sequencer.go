// Package numbering allocates human-readable ticket numbers.
package numbering

import (
	"context"
	"fmt"
	"time"

	"github.com/spec-kit/branch-queue/internal/domain"
	"github.com/spec-kit/branch-queue/internal/registry"
	"github.com/spec-kit/branch-queue/internal/repository"
)

// BranchlessMarker leads the number of a ticket issued without a branch. Those
// tickets count in their own sequence and may be served at any branch, so the
// marker keeps them apart from the branch's own numbers.
const BranchlessMarker = "#"

// Sequencer formats numbers as prefix followed by a zero-padded counter that
// restarts every branch-local calendar day.
type Sequencer struct {
	catalog     *registry.Catalog
	defaultZone *time.Location
	now         func() time.Time
}

// NewSequencer builds a sequencer. defaultZone applies to tickets without a
// branch and to branches with no valid timezone.
func NewSequencer(catalog *registry.Catalog, defaultZone *time.Location) *Sequencer {
	if defaultZone == nil {
		defaultZone = time.UTC
	}
	return &Sequencer{catalog: catalog, defaultZone: defaultZone, now: time.Now}
}

// NextNumber allocates the next number for service at branch. Allocation is
// atomic in the store; callers pass the repositories of their transaction.
func (s *Sequencer) NextNumber(ctx context.Context, repos repository.Repositories, service domain.ServiceType, branch *domain.Branch) (string, error) {
	category, err := s.catalog.Category(service)
	if err != nil {
		return "", err
	}
	key := repository.SequenceKey{
		Prefix: category.Prefix,
		Day:    s.now().In(s.zone(branch)).Format("2006-01-02"),
	}
	prefix := category.Prefix
	if branch != nil {
		key.BranchID = branch.ID
	} else {
		prefix = BranchlessMarker + prefix
	}
	next, err := repos.Sequences.Next(ctx, key)
	if err != nil {
		return "", err
	}
	return Format(prefix, next), nil
}

func (s *Sequencer) zone(branch *domain.Branch) *time.Location {
	if branch == nil || branch.Timezone == "" {
		return s.defaultZone
	}
	loc, err := time.LoadLocation(branch.Timezone)
	if err != nil {
		return s.defaultZone
	}
	return loc
}

// Format renders prefix and n as the displayed ticket number.
func Format(prefix string, n int64) string {
	return fmt.Sprintf("%s%03d", prefix, n)
}
