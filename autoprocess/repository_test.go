package autoprocess

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()

	first := rangeCheckDefinition()
	second := rangeCheckDefinition()
	second.ID = "another-check"
	second.SourceID = "checked"
	second.TargetID = "raw"

	repo, err := NewMemoryRepository(testLogger(), first, second)
	require.NoError(t, err)
	assert.True(t, repo.IsReady())

	d, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Name, d.Name)

	_, err = repo.GetByID(ctx, "unknown")
	assert.ErrorIs(t, err, ErrDefinitionNotFound)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "another-check", all[0].ID)
	assert.Equal(t, "raw-range", all[1].ID)

	bySource, err := repo.ListBySource(ctx, "raw")
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	assert.Equal(t, first.ID, bySource[0].ID)

	second.Name = "Renamed"
	require.NoError(t, repo.Save(ctx, &second))
	d, err = repo.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", d.Name)

	assert.Error(t, repo.Save(ctx, &Definition{}))

	require.NoError(t, repo.Delete(ctx, second.ID))
	assert.ErrorIs(t, repo.Delete(ctx, second.ID), ErrDefinitionNotFound)

	all, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryRepositoryRejectsDuplicates(t *testing.T) {
	d := rangeCheckDefinition()

	_, err := NewMemoryRepository(testLogger(), d, d)
	assert.ErrorIs(t, err, ErrDefinitionExists)
}

func TestMemoryRepositoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo, err := NewMemoryRepository(testLogger(), rangeCheckDefinition())
	require.NoError(t, err)

	d, err := repo.GetByID(ctx, "raw-range")
	require.NoError(t, err)
	d.Name = "changed"

	again, err := repo.GetByID(ctx, "raw-range")
	require.NoError(t, err)
	assert.Equal(t, "Raw range", again.Name)
}
