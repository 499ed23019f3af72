package memory

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/mrops-br/catalog-api/internal/domain"
	"github.com/mrops-br/catalog-api/internal/infrastructure/repository/repositorytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func newTestRepository() *ProductRepository {
	return NewProductRepository(
		noop.NewTracerProvider().Tracer("test"),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func TestContract(t *testing.T) {
	repositorytest.Run(t, func(t *testing.T) domain.ProductRepository {
		return newTestRepository()
	})
}

func newProduct(t *testing.T, name string) *domain.Product {
	t.Helper()
	p, err := domain.NewProduct(name, "Smoked", 12.5, "/uploads/1-"+name+".jpg", domain.StatusAvailable)
	require.NoError(t, err)
	return p
}

func TestInsertAssignsID(t *testing.T) {
	repo := newTestRepository()
	ctx := context.Background()

	input := newProduct(t, "Salmon")
	created, err := repo.Insert(ctx, input)

	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Empty(t, input.ID, "input must not be mutated")

	found, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, found)
}

func TestFindAllKeepsInsertionOrder(t *testing.T) {
	repo := newTestRepository()
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"Salmon", "Trout", "Mackerel"} {
		p, err := repo.Insert(ctx, newProduct(t, name))
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	products, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, products, 3)
	for i, p := range products {
		assert.Equal(t, ids[i], p.ID)
	}
}

func TestUpdateByID(t *testing.T) {
	repo := newTestRepository()
	ctx := context.Background()
	created, err := repo.Insert(ctx, newProduct(t, "Salmon"))
	require.NoError(t, err)

	price := 15.0
	updated, err := repo.UpdateByID(ctx, created.ID, domain.ProductPatch{Price: &price})

	require.NoError(t, err)
	assert.Equal(t, 15.0, updated.Price)
	assert.Equal(t, created.Name, updated.Name)
	assert.Equal(t, created.Image, updated.Image)
	assert.Equal(t, created.Status, updated.Status)
}

func TestUpdateByID_NotFound(t *testing.T) {
	repo := newTestRepository()
	status := domain.StatusInProduction

	_, err := repo.UpdateByID(context.Background(), "missing", domain.ProductPatch{Status: &status})

	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestDeleteByID(t *testing.T) {
	repo := newTestRepository()
	ctx := context.Background()
	keep, err := repo.Insert(ctx, newProduct(t, "Salmon"))
	require.NoError(t, err)
	gone, err := repo.Insert(ctx, newProduct(t, "Trout"))
	require.NoError(t, err)

	require.NoError(t, repo.DeleteByID(ctx, gone.ID))

	products, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, keep.ID, products[0].ID)

	_, err = repo.FindByID(ctx, gone.ID)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.ErrorIs(t, repo.DeleteByID(ctx, gone.ID), domain.ErrProductNotFound)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	repo := newTestRepository()
	ctx := context.Background()
	created, err := repo.Insert(ctx, newProduct(t, "Salmon"))
	require.NoError(t, err)

	created.Name = "mutated"
	found, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Salmon", found.Name)
}

func TestConcurrentUpdates(t *testing.T) {
	repo := newTestRepository()
	ctx := context.Background()
	created, err := repo.Insert(ctx, newProduct(t, "Salmon"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := domain.StatusAvailable
			if i%2 == 0 {
				status = domain.StatusInProduction
			}
			_, err := repo.UpdateByID(ctx, created.ID, domain.ProductPatch{Status: &status})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	found, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, found.Status.Valid())
	assert.Equal(t, "Salmon", found.Name)
}
