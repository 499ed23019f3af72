package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mrops-br/catalog-api/internal/app/dto"
	"github.com/mrops-br/catalog-api/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	opList      = "list"
	opGet       = "read"
	opCreate    = "create"
	opUpdate    = "update"
	opDelete    = "delete"
	opSetStatus = "set_status"
)

// ProductService handles product use cases
type ProductService struct {
	repo                  domain.ProductRepository
	assets                domain.AssetStore
	tracer                trace.Tracer
	logger                *slog.Logger
	now                   func() time.Time
	productCreatedCounter metric.Int64Counter
	productOperations     metric.Int64Counter
	orphanedAssets        metric.Int64Counter
}

// NewProductService creates a new product service
func NewProductService(
	repo domain.ProductRepository,
	assets domain.AssetStore,
	tracer trace.Tracer,
	meter metric.Meter,
	logger *slog.Logger,
) *ProductService {
	productCreatedCounter, _ := meter.Int64Counter(
		"products.created.total",
		metric.WithDescription("Total number of products created"),
	)

	productOperations, _ := meter.Int64Counter(
		"products.operations",
		metric.WithDescription("Total number of product operations"),
	)

	orphanedAssets, _ := meter.Int64Counter(
		"products.assets.orphaned",
		metric.WithDescription("Stored images left behind because cleanup after a failed write did not succeed"),
	)

	return &ProductService{
		repo:                  repo,
		assets:                assets,
		tracer:                tracer,
		logger:                logger,
		now:                   time.Now,
		productCreatedCounter: productCreatedCounter,
		productOperations:     productOperations,
		orphanedAssets:        orphanedAssets,
	}
}

// ListProducts retrieves all products
func (s *ProductService) ListProducts(ctx context.Context) ([]*dto.ProductResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.ListProducts")
	defer span.End()

	s.logger.InfoContext(ctx, "Listing all products")

	products, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, s.fail(ctx, span, opList, err)
	}

	span.SetAttributes(attribute.Int("product.count", len(products)))
	s.record(ctx, opList, "success")

	s.logger.InfoContext(ctx, "Products listed successfully",
		slog.Int("count", len(products)),
	)

	span.SetStatus(codes.Ok, "Products listed successfully")
	return dto.ToProductResponseList(products), nil
}

// GetProduct retrieves a product by ID
func (s *ProductService) GetProduct(ctx context.Context, id string) (*dto.ProductResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.GetProduct")
	defer span.End()

	span.SetAttributes(attribute.String("product.id", id))

	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, span, opGet, err)
	}

	s.record(ctx, opGet, "success")
	span.SetStatus(codes.Ok, "Product retrieved successfully")
	return dto.ToProductResponse(product), nil
}

// CreateProduct stores the uploaded image and then persists the product referencing it.
// Nothing is written when the request is missing the image or fails validation.
func (s *ProductService) CreateProduct(ctx context.Context, req *dto.CreateProductRequest) (*dto.ProductResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.CreateProduct")
	defer span.End()

	span.SetAttributes(
		attribute.String("product.name", req.Name),
		attribute.Float64("product.price", req.Price),
	)

	s.logger.InfoContext(ctx, "Creating product",
		slog.String("name", req.Name),
		slog.Float64("price", req.Price),
	)

	if req.Image == nil || len(req.Image.Data) == 0 {
		return nil, s.fail(ctx, span, opCreate, domain.ErrMissingImage)
	}

	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		return nil, s.fail(ctx, span, opCreate, err)
	}

	if err := domain.ValidateDetails(req.Name, req.Description, req.Price); err != nil {
		return nil, s.fail(ctx, span, opCreate, err)
	}

	reference, err := s.assets.Store(ctx, req.Image.Data, req.Image.Filename, req.Image.ContentType)
	if err != nil {
		return nil, s.fail(ctx, span, opCreate, err)
	}
	span.SetAttributes(attribute.String("product.image", reference))

	product, err := domain.NewProduct(req.Name, req.Description, req.Price, reference, status)
	if err != nil {
		s.discardAsset(ctx, reference)
		return nil, s.fail(ctx, span, opCreate, err)
	}

	created, err := s.repo.Insert(ctx, product)
	if err != nil {
		s.discardAsset(ctx, reference)
		return nil, s.fail(ctx, span, opCreate, err)
	}

	span.SetAttributes(attribute.String("product.id", created.ID))

	s.productCreatedCounter.Add(ctx, 1)
	s.record(ctx, opCreate, "success")

	s.logger.InfoContext(ctx, "Product created successfully",
		slog.String("product_id", created.ID),
		slog.String("image", reference),
	)

	span.SetStatus(codes.Ok, "Product created successfully")
	return dto.ToProductResponse(created), nil
}

// UpdateProduct applies the supplied fields. A new image replaces the reference; without one the
// existing reference is kept.
func (s *ProductService) UpdateProduct(ctx context.Context, id string, req *dto.UpdateProductRequest) (*dto.ProductResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.UpdateProduct")
	defer span.End()

	span.SetAttributes(attribute.String("product.id", id))

	s.logger.InfoContext(ctx, "Updating product",
		slog.String("product_id", id),
		slog.Bool("new_image", req.Image != nil),
	)

	patch := domain.ProductPatch{
		Name:        req.Name,
		Price:       req.Price,
		Description: req.Description,
		UpdatedAt:   s.now().UTC(),
	}
	if req.Status != nil {
		status := domain.Status(*req.Status)
		patch.Status = &status
	}
	patch.Normalize()
	if err := patch.Validate(); err != nil {
		return nil, s.fail(ctx, span, opUpdate, err)
	}

	var reference string
	if req.Image != nil && len(req.Image.Data) > 0 {
		ref, err := s.assets.Store(ctx, req.Image.Data, req.Image.Filename, req.Image.ContentType)
		if err != nil {
			return nil, s.fail(ctx, span, opUpdate, err)
		}
		reference = ref
		patch.Image = &reference
		span.SetAttributes(attribute.String("product.image", reference))
	}

	updated, err := s.repo.UpdateByID(ctx, id, patch)
	if err != nil {
		if reference != "" {
			s.discardAsset(ctx, reference)
		}
		return nil, s.fail(ctx, span, opUpdate, err)
	}

	s.record(ctx, opUpdate, "success")

	s.logger.InfoContext(ctx, "Product updated successfully",
		slog.String("product_id", id),
	)

	span.SetStatus(codes.Ok, "Product updated successfully")
	return dto.ToProductResponse(updated), nil
}

// DeleteProduct removes a product. Its image stays in the asset store.
func (s *ProductService) DeleteProduct(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "ProductService.DeleteProduct")
	defer span.End()

	span.SetAttributes(attribute.String("product.id", id))

	s.logger.InfoContext(ctx, "Deleting product",
		slog.String("product_id", id),
	)

	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return s.fail(ctx, span, opDelete, err)
	}

	s.record(ctx, opDelete, "success")

	s.logger.InfoContext(ctx, "Product deleted successfully",
		slog.String("product_id", id),
	)

	span.SetStatus(codes.Ok, "Product deleted successfully")
	return nil
}

// SetProductStatus changes only the status field. The value is checked before storage is touched.
func (s *ProductService) SetProductStatus(ctx context.Context, id, rawStatus string) (*dto.ProductResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.SetProductStatus")
	defer span.End()

	span.SetAttributes(
		attribute.String("product.id", id),
		attribute.String("product.status", rawStatus),
	)

	status := domain.Status(rawStatus)
	if !status.Valid() {
		return nil, s.fail(ctx, span, opSetStatus, domain.ErrInvalidStatus)
	}

	updated, err := s.repo.UpdateByID(ctx, id, domain.ProductPatch{
		Status:    &status,
		UpdatedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, s.fail(ctx, span, opSetStatus, err)
	}

	s.record(ctx, opSetStatus, "success")

	s.logger.InfoContext(ctx, "Product status updated",
		slog.String("product_id", id),
		slog.String("status", rawStatus),
	)

	span.SetStatus(codes.Ok, "Product status updated")
	return dto.ToProductResponse(updated), nil
}

// discardAsset removes an image stored for a write that did not complete
func (s *ProductService) discardAsset(ctx context.Context, reference string) {
	if err := s.assets.Remove(ctx, reference); err != nil {
		s.orphanedAssets.Add(ctx, 1)
		s.logger.ErrorContext(ctx, "Failed to remove orphaned asset",
			slog.String("image", reference),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.InfoContext(ctx, "Removed asset of failed write",
		slog.String("image", reference),
	)
}

func (s *ProductService) record(ctx context.Context, operation, result string) {
	s.productOperations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("result", result),
		),
	)
}

// fail classifies err for the caller. Validation errors and not found pass through unchanged;
// anything else is logged with its cause and reported as ErrStorageUnavailable.
func (s *ProductService) fail(ctx context.Context, span trace.Span, operation string, err error) error {
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		span.SetStatus(codes.Error, "Product not found")
		s.logger.WarnContext(ctx, "Product not found",
			slog.String("operation", operation),
		)
		s.record(ctx, operation, "not_found")
		return err

	case IsValidationError(err):
		span.SetStatus(codes.Error, "Validation failed")
		s.logger.WarnContext(ctx, "Product request rejected",
			slog.String("operation", operation),
			slog.String("reason", err.Error()),
		)
		s.record(ctx, operation, "invalid")
		return err
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "Storage failure")
	s.logger.ErrorContext(ctx, "Product operation failed",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
	s.record(ctx, operation, "failure")
	return fmt.Errorf("%s product: %w", operation, domain.ErrStorageUnavailable)
}

// IsValidationError reports whether err was caused by the request contents
func IsValidationError(err error) bool {
	return errors.Is(err, domain.ErrMissingImage) ||
		errors.Is(err, domain.ErrInvalidStatus) ||
		errors.Is(err, domain.ErrInvalidProductName) ||
		errors.Is(err, domain.ErrInvalidProductDescription) ||
		errors.Is(err, domain.ErrInvalidProductPrice)
}
