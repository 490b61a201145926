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
	apperrors "github.com/spec-kit/branch-queue/pkg/util"
)

func TestDefaultPriority(t *testing.T) {
	catalog := DefaultCatalog()

	score, err := catalog.Priority(domain.ServiceLoan, domain.SegmentSenior)
	require.NoError(t, err)
	assert.Equal(t, 35, score)

	score, err = catalog.Priority(domain.ServiceDeposit, "")
	require.NoError(t, err)
	assert.Equal(t, 10, score)

	_, err = catalog.Priority(domain.ServiceType("CASH"), "")
	assert.True(t, apperrors.IsValidation(err))
}

func TestLoadCatalogOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	raw := `
services:
  - type: loan
    prefix: K
    base_priority: 40
segment_bonuses:
  PRIVATE: 100
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)

	loan, err := catalog.Category(domain.ServiceLoan)
	require.NoError(t, err)
	assert.Equal(t, "K", loan.Prefix)
	assert.Equal(t, "Loan", loan.Name)
	assert.Equal(t, 40, loan.BasePriority)
	assert.Equal(t, 100, catalog.SegmentBonus(domain.SegmentPrivate))
	assert.Equal(t, 15, catalog.SegmentBonus(domain.SegmentSenior))

	deposit, err := catalog.Category(domain.ServiceDeposit)
	require.NoError(t, err)
	assert.Equal(t, "A", deposit.Prefix)
}

func TestLoadCatalogRejectsUnknownService(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("services:\n  - type: CASH\n    prefix: Z\n"), 0o600))
	_, err := LoadCatalog(path)
	assert.Error(t, err)
}

func TestBranchRegistryWithoutCache(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	require.NoError(t, store.Repositories().Branches.Create(ctx, &domain.Branch{ID: "b1", Name: "Main", Timezone: "Europe/Berlin", Active: true}))

	reg := NewBranchRegistry(store.Repositories().Branches, nil, 0, nil)
	branch, err := reg.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", branch.Timezone)

	_, err = reg.Get(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))
}
