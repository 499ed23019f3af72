// Package cached provides a Redis cache-aside decorator for product repositories.
package cached

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/mrops-br/catalog-api/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const allKey = "products:all"

func productKey(id string) string {
	return "products:" + id
}

// ProductRepository serves reads from Redis when possible and invalidates on every write.
// Redis failures are logged and the wrapped repository answers instead.
type ProductRepository struct {
	next   domain.ProductRepository
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
	lookup metric.Int64Counter
}

// NewProductRepository wraps next. Entries live for ttl under keys starting with prefix.
func NewProductRepository(next domain.ProductRepository, client *redis.Client, prefix string, ttl time.Duration, meter metric.Meter, logger *slog.Logger) *ProductRepository {
	lookup, _ := meter.Int64Counter(
		"products.cache.lookups",
		metric.WithDescription("Product cache lookups by result"),
	)

	return &ProductRepository{
		next:   next,
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
		lookup: lookup,
	}
}

func (r *ProductRepository) get(ctx context.Context, key string, dest any) bool {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		result := "miss"
		if !errors.Is(err, redis.Nil) {
			result = "error"
			r.logger.WarnContext(ctx, "Cache read failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		r.count(ctx, result)
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		r.count(ctx, "error")
		r.logger.WarnContext(ctx, "Cache entry unreadable",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}

	r.count(ctx, "hit")
	return true
}

func (r *ProductRepository) set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, r.prefix+key, data, r.ttl).Err(); err != nil {
		r.logger.WarnContext(ctx, "Cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func (r *ProductRepository) invalidate(ctx context.Context, keys ...string) {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.prefix + k
	}
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		r.logger.WarnContext(ctx, "Cache invalidation failed",
			slog.Any("keys", keys),
			slog.String("error", err.Error()),
		)
	}
}

func (r *ProductRepository) count(ctx context.Context, result string) {
	r.lookup.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// FindAll serves the cached list or loads and caches it
func (r *ProductRepository) FindAll(ctx context.Context) ([]*domain.Product, error) {
	var products []*domain.Product
	if r.get(ctx, allKey, &products) {
		return products, nil
	}

	products, err := r.next.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	r.set(ctx, allKey, products)
	return products, nil
}

// FindByID serves the cached product or loads and caches it
func (r *ProductRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	if r.get(ctx, productKey(id), &product) {
		return &product, nil
	}

	found, err := r.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.set(ctx, productKey(id), found)
	return found, nil
}

// Insert invalidates the cached list
func (r *ProductRepository) Insert(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	created, err := r.next.Insert(ctx, product)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, allKey)
	return created, nil
}

// UpdateByID invalidates the list and the product entry
func (r *ProductRepository) UpdateByID(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	updated, err := r.next.UpdateByID(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, allKey, productKey(id))
	return updated, nil
}

// DeleteByID invalidates the list and the product entry
func (r *ProductRepository) DeleteByID(ctx context.Context, id string) error {
	if err := r.next.DeleteByID(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, allKey, productKey(id))
	return nil
}
