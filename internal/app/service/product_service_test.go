package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mrops-br/catalog-api/internal/app/dto"
	"github.com/mrops-br/catalog-api/internal/domain"
	"github.com/mrops-br/catalog-api/internal/infrastructure/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

var errBackend = errors.New("connection refused")

// fakeAssets hands out sequential references and remembers what is still stored
type fakeAssets struct {
	mu        sync.Mutex
	seq       int
	stored    map[string][]byte
	storeErr  error
	removeErr error
	stores    int
}

func newFakeAssets() *fakeAssets {
	return &fakeAssets{stored: make(map[string][]byte)}
}

func (f *fakeAssets) Store(_ context.Context, payload []byte, originalName, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stores++
	if f.storeErr != nil {
		return "", f.storeErr
	}
	f.seq++
	ref := fmt.Sprintf("/uploads/%d-%s", f.seq, originalName)
	f.stored[ref] = payload
	return ref, nil
}

func (f *fakeAssets) Open(context.Context, string) (*domain.Asset, error) {
	return nil, domain.ErrAssetNotFound
}

func (f *fakeAssets) Remove(_ context.Context, reference string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.stored, reference)
	return nil
}

func (f *fakeAssets) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stored)
}

// flakyRepo fails the configured operations and delegates the rest
type flakyRepo struct {
	domain.ProductRepository
	failInsert bool
	failUpdate bool
	failRead   bool
}

func (r *flakyRepo) Insert(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	if r.failInsert {
		return nil, errBackend
	}
	return r.ProductRepository.Insert(ctx, p)
}

func (r *flakyRepo) UpdateByID(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	if r.failUpdate {
		return nil, errBackend
	}
	return r.ProductRepository.UpdateByID(ctx, id, patch)
}

func (r *flakyRepo) FindAll(ctx context.Context) ([]*domain.Product, error) {
	if r.failRead {
		return nil, errBackend
	}
	return r.ProductRepository.FindAll(ctx)
}

// recordingRepo remembers the last patch handed to UpdateByID
type recordingRepo struct {
	domain.ProductRepository
	patch domain.ProductPatch
}

func (r *recordingRepo) UpdateByID(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	r.patch = patch
	return r.ProductRepository.UpdateByID(ctx, id, patch)
}

type fixture struct {
	service *ProductService
	repo    *flakyRepo
	assets  *fakeAssets
}

func setup(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracer := tracenoop.NewTracerProvider().Tracer("test")

	repo := &flakyRepo{ProductRepository: memory.NewProductRepository(tracer, logger)}
	assets := newFakeAssets()
	svc := NewProductService(repo, assets, tracer, metricnoop.NewMeterProvider().Meter("test"), logger)

	return &fixture{service: svc, repo: repo, assets: assets}
}

func salmonRequest() *dto.CreateProductRequest {
	return &dto.CreateProductRequest{
		Name:        "Salmon",
		Description: "Smoked",
		Price:       12.5,
		Image:       &dto.Upload{Filename: "salmon.jpg", ContentType: "image/jpeg", Data: []byte("jpeg")},
	}
}

func ptr[T any](v T) *T { return &v }

func TestCreateProduct_DefaultsToAvailable(t *testing.T) {
	f := setup(t)

	product, err := f.service.CreateProduct(context.Background(), salmonRequest())

	require.NoError(t, err)
	assert.NotEmpty(t, product.ID)
	assert.Equal(t, "/uploads/1-salmon.jpg", product.Image)
	assert.Equal(t, "available", product.Status)
	assert.Equal(t, "Salmon", product.Name)
	assert.Equal(t, 12.5, product.Price)
}

func TestCreateProduct_KeepsSuppliedStatus(t *testing.T) {
	f := setup(t)
	req := salmonRequest()
	req.Status = "inProduction"

	product, err := f.service.CreateProduct(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "inProduction", product.Status)
}

func TestCreateProduct_MissingImage(t *testing.T) {
	for name, image := range map[string]*dto.Upload{
		"no upload":   nil,
		"empty bytes": {Filename: "a.jpg"},
	} {
		t.Run(name, func(t *testing.T) {
			f := setup(t)
			req := salmonRequest()
			req.Image = image

			_, err := f.service.CreateProduct(context.Background(), req)

			assert.ErrorIs(t, err, domain.ErrMissingImage)
			assert.Zero(t, f.assets.stores)
			products, _ := f.service.ListProducts(context.Background())
			assert.Empty(t, products)
		})
	}
}

func TestCreateProduct_RejectsBeforeStoringImage(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*dto.CreateProductRequest)
		want   error
	}{
		{"invalid status", func(r *dto.CreateProductRequest) { r.Status = "sold" }, domain.ErrInvalidStatus},
		{"empty name", func(r *dto.CreateProductRequest) { r.Name = "  " }, domain.ErrInvalidProductName},
		{"empty description", func(r *dto.CreateProductRequest) { r.Description = "" }, domain.ErrInvalidProductDescription},
		{"negative price", func(r *dto.CreateProductRequest) { r.Price = -1 }, domain.ErrInvalidProductPrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			req := salmonRequest()
			tt.modify(req)

			_, err := f.service.CreateProduct(context.Background(), req)

			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsValidationError(err))
			assert.Zero(t, f.assets.stores)
		})
	}
}

func TestCreateProduct_AssetStoreFailure(t *testing.T) {
	f := setup(t)
	f.assets.storeErr = errors.New("disk full")

	_, err := f.service.CreateProduct(context.Background(), salmonRequest())

	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.NotContains(t, err.Error(), "disk full")
	products, _ := f.service.ListProducts(context.Background())
	assert.Empty(t, products)
}

func TestCreateProduct_InsertFailureRemovesAsset(t *testing.T) {
	f := setup(t)
	f.repo.failInsert = true

	_, err := f.service.CreateProduct(context.Background(), salmonRequest())

	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.NotContains(t, err.Error(), errBackend.Error())
	assert.Equal(t, 1, f.assets.stores)
	assert.Zero(t, f.assets.count(), "stored image should be removed again")
}

func TestCreateProduct_InsertFailureWithFailedCleanup(t *testing.T) {
	f := setup(t)
	f.repo.failInsert = true
	f.assets.removeErr = errors.New("read-only")

	_, err := f.service.CreateProduct(context.Background(), salmonRequest())

	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.Equal(t, 1, f.assets.count())
}

func TestSetProductStatus_ChangesOnlyStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	created, err := f.service.CreateProduct(ctx, salmonRequest())
	require.NoError(t, err)

	updated, err := f.service.SetProductStatus(ctx, created.ID, "inProduction")

	require.NoError(t, err)
	assert.Equal(t, "inProduction", updated.Status)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.Name, updated.Name)
	assert.Equal(t, created.Price, updated.Price)
	assert.Equal(t, created.Description, updated.Description)
	assert.Equal(t, created.Image, updated.Image)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
}

func TestSetProductStatus_InvalidLeavesRecordUnchanged(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	created, err := f.service.CreateProduct(ctx, salmonRequest())
	require.NoError(t, err)

	for _, status := range []string{"sold", "", "Available", "in_production"} {
		_, err := f.service.SetProductStatus(ctx, created.ID, status)
		assert.ErrorIs(t, err, domain.ErrInvalidStatus, status)
	}

	current, err := f.service.GetProduct(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, *created, *current)
}

func TestSetProductStatus_InvalidIsCheckedBeforeStorage(t *testing.T) {
	f := setup(t)
	f.repo.failUpdate = true

	_, err := f.service.SetProductStatus(context.Background(), "whatever", "sold")

	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestSetProductStatus_NotFound(t *testing.T) {
	f := setup(t)

	_, err := f.service.SetProductStatus(context.Background(), "missing", "available")

	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestUpdateProduct_NewImageReplacesReference(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	created, err := f.service.CreateProduct(ctx, salmonRequest())
	require.NoError(t, err)

	updated, err := f.service.UpdateProduct(ctx, created.ID, &dto.UpdateProductRequest{
		Image: &dto.Upload{Filename: "salmon.jpg", Data: []byte("new")},
	})

	require.NoError(t, err)
	assert.NotEqual(t, created.Image, updated.Image)
	assert.Equal(t, "/uploads/2-salmon.jpg", updated.Image)
	assert.Equal(t, "Salmon", updated.Name)
}

func TestUpdateProduct_WithoutImageKeepsReference(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	created, err := f.service.CreateProduct(ctx, salmonRequest())
	require.NoError(t, err)

	updated, err := f.service.UpdateProduct(ctx, created.ID, &dto.UpdateProductRequest{
		Name:  ptr("Trout"),
		Price: ptr(9.0),
	})

	require.NoError(t, err)
	assert.Equal(t, created.Image, updated.Image)
	assert.Equal(t, "Trout", updated.Name)
	assert.Equal(t, 9.0, updated.Price)
	assert.Equal(t, "Smoked", updated.Description)
	assert.Equal(t, 1, f.assets.stores)
}

func TestUpdateProduct_TrimsTextBeforeStorage(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	created, err := f.service.CreateProduct(ctx, salmonRequest())
	require.NoError(t, err)

	recorder := &recordingRepo{ProductRepository: f.repo}
	f.service.repo = recorder

	updated, err := f.service.UpdateProduct(ctx, created.ID, &dto.UpdateProductRequest{
		Name:        ptr("  Trout  "),
		Description: ptr(" Cold smoked "),
	})

	require.NoError(t, err)
	require.NotNil(t, recorder.patch.Name)
	require.NotNil(t, recorder.patch.Description)
	assert.Equal(t, "Trout", *recorder.patch.Name)
	assert.Equal(t, "Cold smoked", *recorder.patch.Description)
	assert.Equal(t, "Trout", updated.Name)
	assert.Equal(t, "Cold smoked", updated.Description)
}

func TestUpdateProduct_InvalidStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	created, err := f.service.CreateProduct(ctx, salmonRequest())
	require.NoError(t, err)

	_, err = f.service.UpdateProduct(ctx, created.ID, &dto.UpdateProductRequest{
		Status: ptr("sold"),
		Image:  &dto.Upload{Filename: "b.jpg", Data: []byte("b")},
	})

	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	assert.Equal(t, 1, f.assets.stores, "no image stored for a rejected update")
}

func TestUpdateProduct_UnknownIDRemovesNewImage(t *testing.T) {
	f := setup(t)

	_, err := f.service.UpdateProduct(context.Background(), "missing", &dto.UpdateProductRequest{
		Image: &dto.Upload{Filename: "b.jpg", Data: []byte("b")},
	})

	assert.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.Zero(t, f.assets.count())
}

func TestUpdateProduct_StorageFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	created, err := f.service.CreateProduct(ctx, salmonRequest())
	require.NoError(t, err)
	f.repo.failUpdate = true

	_, err = f.service.UpdateProduct(ctx, created.ID, &dto.UpdateProductRequest{
		Image: &dto.Upload{Filename: "b.jpg", Data: []byte("b")},
	})

	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.Equal(t, 1, f.assets.count(), "only the original image remains")
}

func TestUpdateProduct_AdvancesUpdatedAt(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	f.service.now = func() time.Time { return base }
	created, err := f.service.CreateProduct(ctx, salmonRequest())
	require.NoError(t, err)

	f.service.now = func() time.Time { return base.Add(time.Hour) }
	updated, err := f.service.SetProductStatus(ctx, created.ID, "inProduction")

	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Hour), updated.UpdatedAt)
}

func TestDeleteProduct(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	created, err := f.service.CreateProduct(ctx, salmonRequest())
	require.NoError(t, err)

	require.NoError(t, f.service.DeleteProduct(ctx, created.ID))

	products, err := f.service.ListProducts(ctx)
	require.NoError(t, err)
	assert.Empty(t, products)

	_, err = f.service.UpdateProduct(ctx, created.ID, &dto.UpdateProductRequest{Name: ptr("x")})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	assert.ErrorIs(t, f.service.DeleteProduct(ctx, created.ID), domain.ErrProductNotFound)
	assert.Equal(t, 1, f.assets.count(), "deleting a product keeps its image")
}

func TestListProducts_StorageFailure(t *testing.T) {
	f := setup(t)
	f.repo.failRead = true

	_, err := f.service.ListProducts(context.Background())

	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.False(t, IsValidationError(err))
}

func TestSalmonLifecycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	created, err := f.service.CreateProduct(ctx, salmonRequest())
	require.NoError(t, err)
	assert.Equal(t, "available", created.Status)

	inProduction, err := f.service.SetProductStatus(ctx, created.ID, "inProduction")
	require.NoError(t, err)
	assert.Equal(t, "inProduction", inProduction.Status)
	assert.Equal(t, "Salmon", inProduction.Name)

	_, err = f.service.SetProductStatus(ctx, created.ID, "sold")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	unchanged, err := f.service.GetProduct(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "inProduction", unchanged.Status)

	require.NoError(t, f.service.DeleteProduct(ctx, created.ID))

	_, err = f.service.GetProduct(ctx, created.ID)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
	_, err = f.service.UpdateProduct(ctx, created.ID, &dto.UpdateProductRequest{Name: ptr("Trout")})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}
