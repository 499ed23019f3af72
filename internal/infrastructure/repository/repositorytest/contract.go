// Package repositorytest holds the behaviour every domain.ProductRepository backend must share.
package repositorytest

import (
	"context"
	"testing"
	"time"

	"github.com/mrops-br/catalog-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises repo against the repository contract. newRepo must return an empty repository.
func Run(t *testing.T, newRepo func(t *testing.T) domain.ProductRepository) {
	t.Run("insert then find", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Insert(ctx, sample(t, "Salmon"))
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)

		found, err := repo.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)
		assert.Equal(t, "Salmon", found.Name)
		assert.Equal(t, 12.5, found.Price)
		assert.Equal(t, "Smoked", found.Description)
		assert.Equal(t, "/uploads/1-Salmon.jpg", found.Image)
		assert.Equal(t, domain.StatusAvailable, found.Status)
	})

	t.Run("find all is ordered by insertion", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		first, err := repo.Insert(ctx, sample(t, "Salmon"))
		require.NoError(t, err)
		second, err := repo.Insert(ctx, sample(t, "Trout"))
		require.NoError(t, err)

		products, err := repo.FindAll(ctx)
		require.NoError(t, err)
		require.Len(t, products, 2)
		assert.Equal(t, first.ID, products[0].ID)
		assert.Equal(t, second.ID, products[1].ID)
	})

	t.Run("update applies only supplied fields", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Insert(ctx, sample(t, "Salmon"))
		require.NoError(t, err)

		status := domain.StatusInProduction
		updated, err := repo.UpdateByID(ctx, created.ID, domain.ProductPatch{
			Status:    &status,
			UpdatedAt: created.UpdatedAt.Add(time.Minute),
		})
		require.NoError(t, err)

		assert.Equal(t, domain.StatusInProduction, updated.Status)
		assert.Equal(t, created.Name, updated.Name)
		assert.Equal(t, created.Price, updated.Price)
		assert.Equal(t, created.Description, updated.Description)
		assert.Equal(t, created.Image, updated.Image)
	})

	t.Run("update trims name and description", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Insert(ctx, sample(t, "Salmon"))
		require.NoError(t, err)

		name := "  Trout  "
		description := " Cold smoked "
		updated, err := repo.UpdateByID(ctx, created.ID, domain.ProductPatch{Name: &name, Description: &description})
		require.NoError(t, err)
		assert.Equal(t, "Trout", updated.Name)
		assert.Equal(t, "Cold smoked", updated.Description)

		found, err := repo.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Trout", found.Name)
		assert.Equal(t, "Cold smoked", found.Description)
	})

	t.Run("update unknown id", func(t *testing.T) {
		repo := newRepo(t)
		name := "Trout"

		_, err := repo.UpdateByID(context.Background(), unknownID, domain.ProductPatch{Name: &name})
		assert.ErrorIs(t, err, domain.ErrProductNotFound)
	})

	t.Run("delete then list and update", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Insert(ctx, sample(t, "Salmon"))
		require.NoError(t, err)
		require.NoError(t, repo.DeleteByID(ctx, created.ID))

		products, err := repo.FindAll(ctx)
		require.NoError(t, err)
		for _, p := range products {
			assert.NotEqual(t, created.ID, p.ID)
		}

		name := "Trout"
		_, err = repo.UpdateByID(ctx, created.ID, domain.ProductPatch{Name: &name})
		assert.ErrorIs(t, err, domain.ErrProductNotFound)
		assert.ErrorIs(t, repo.DeleteByID(ctx, created.ID), domain.ErrProductNotFound)
	})

	t.Run("malformed id is not found", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.FindByID(context.Background(), "not-an-id")
		assert.ErrorIs(t, err, domain.ErrProductNotFound)
	})
}

// unknownID is well formed for every backend but never assigned
const unknownID = "000000000000000000000000"

func sample(t *testing.T, name string) *domain.Product {
	t.Helper()
	p, err := domain.NewProduct(name, "Smoked", 12.5, "/uploads/1-"+name+".jpg", domain.StatusAvailable)
	require.NoError(t, err)
	// storage backends may truncate sub-microsecond precision
	p.CreatedAt = p.CreatedAt.Truncate(time.Millisecond)
	p.UpdatedAt = p.CreatedAt
	return p
}
