package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/branch-queue/internal/domain"
	"github.com/spec-kit/branch-queue/internal/repository/memstore"
)

const seedYAML = `
branches:
  - id: b1
    name: Downtown
    timezone: Europe/Berlin
    counters:
      - id: c1
        name: Counter 1
        services: [deposit, WITHDRAWAL]
        status: online
      - id: c2
        services: [LOAN]
staff:
  - id: u1
    name: Tina
    role: teller
    branch_id: b1
`

func writeSeed(t *testing.T, raw string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))
	return path
}

func TestSeedApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	seed, err := LoadSeed(writeSeed(t, seedYAML))
	require.NoError(t, err)

	store := memstore.New()
	repos := store.Repositories()
	created, err := seed.Apply(ctx, repos)
	require.NoError(t, err)
	assert.Equal(t, 4, created)

	c1, err := repos.Counters.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.CounterStatusOnline, c1.Status)
	assert.Equal(t, []domain.ServiceType{domain.ServiceDeposit, domain.ServiceWithdrawal}, c1.ServiceTags)

	c2, err := repos.Counters.GetByID(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, domain.CounterStatusOffline, c2.Status)
	assert.Equal(t, "c2", c2.Name)

	staff, err := repos.Staff.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StaffRoleTeller, staff.Role)
	require.NotNil(t, staff.BranchID)
	assert.Equal(t, "b1", *staff.BranchID)

	created, err = seed.Apply(ctx, repos)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestSeedRejectsUnknownValues(t *testing.T) {
	ctx := context.Background()
	for name, raw := range map[string]string{
		"service": "branches:\n  - id: b1\n    counters:\n      - id: c1\n        services: [CASH]\n",
		"status":  "branches:\n  - id: b1\n    counters:\n      - id: c1\n        status: broken\n",
		"role":    "staff:\n  - id: u1\n    role: janitor\n",
	} {
		t.Run(name, func(t *testing.T) {
			seed, err := LoadSeed(writeSeed(t, raw))
			require.NoError(t, err)
			_, err = seed.Apply(ctx, memstore.New().Repositories())
			assert.Error(t, err)
		})
	}
}
