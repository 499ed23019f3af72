package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mrops-br/catalog-api/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	seq         BIGSERIAL,
	id          UUID PRIMARY KEY,
	name        TEXT NOT NULL,
	price       DOUBLE PRECISION NOT NULL,
	description TEXT NOT NULL,
	image       TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'available' CHECK (status IN ('available', 'inProduction')),
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
)`

const columns = `id::text, name, price, description, image, status, created_at, updated_at`

// Connect creates a pool and verifies the database answers
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}

// ProductRepository stores products in a PostgreSQL table
type ProductRepository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewProductRepository creates a repository on pool. Every query is bounded by timeout.
func NewProductRepository(pool *pgxpool.Pool, timeout time.Duration, tracer trace.Tracer, logger *slog.Logger) *ProductRepository {
	return &ProductRepository{
		pool:    pool,
		timeout: timeout,
		tracer:  tracer,
		logger:  logger,
	}
}

// Migrate creates the products table if it is missing
func (r *ProductRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create products table: %w", err)
	}
	r.logger.InfoContext(ctx, "Products table ready")
	return nil
}

func (r *ProductRepository) start(ctx context.Context, name string) (context.Context, context.CancelFunc, trace.Span) {
	ctx, span := r.tracer.Start(ctx, "PostgresProductRepository."+name,
		trace.WithAttributes(attribute.String("db.system", "postgresql")),
	)
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	return ctx, cancel, span
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var (
		p      domain.Product
		status string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Description, &p.Image, &status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = domain.Status(status)
	return &p, nil
}

// validID filters strings that cannot be a stored UUID
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Insert stores product under a new UUID
func (r *ProductRepository) Insert(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	ctx, cancel, span := r.start(ctx, "Insert")
	defer cancel()
	defer span.End()

	query := `INSERT INTO products (id, name, price, description, image, status, created_at, updated_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + columns

	created, err := scanProduct(r.pool.QueryRow(ctx, query,
		uuid.NewString(), product.Name, product.Price, product.Description,
		product.Image, string(product.Status), product.CreatedAt, product.UpdatedAt,
	))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return nil, fmt.Errorf("insert product: %w", err)
	}

	span.SetAttributes(attribute.String("product.id", created.ID))
	span.SetStatus(codes.Ok, "Product inserted")
	return created, nil
}

// FindAll returns every product in insertion order
func (r *ProductRepository) FindAll(ctx context.Context) ([]*domain.Product, error) {
	ctx, cancel, span := r.start(ctx, "FindAll")
	defer cancel()
	defer span.End()

	rows, err := r.pool.Query(ctx, `SELECT `+columns+` FROM products ORDER BY seq`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	span.SetAttributes(attribute.Int("product.count", len(products)))
	span.SetStatus(codes.Ok, "Products retrieved successfully")
	return products, nil
}

// FindByID returns ErrProductNotFound for unknown or malformed ids
func (r *ProductRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	if !validID(id) {
		return nil, domain.ErrProductNotFound
	}

	ctx, cancel, span := r.start(ctx, "FindByID")
	defer cancel()
	defer span.End()

	span.SetAttributes(attribute.String("product.id", id))

	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM products WHERE id = $1::uuid`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		span.SetStatus(codes.Error, "Product not found")
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("find product: %w", err)
	}

	span.SetStatus(codes.Ok, "Product found")
	return p, nil
}

// UpdateByID keeps the stored value of every column whose patch field is nil
func (r *ProductRepository) UpdateByID(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	if !validID(id) {
		return nil, domain.ErrProductNotFound
	}

	ctx, cancel, span := r.start(ctx, "UpdateByID")
	defer cancel()
	defer span.End()

	span.SetAttributes(attribute.String("product.id", id))

	patch.Normalize()

	var status *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}
	var updatedAt *time.Time
	if !patch.UpdatedAt.IsZero() {
		updatedAt = &patch.UpdatedAt
	}

	query := `UPDATE products SET
			name        = COALESCE($2, name),
			price       = COALESCE($3, price),
			description = COALESCE($4, description),
			image       = COALESCE($5, image),
			status      = COALESCE($6, status),
			updated_at  = COALESCE($7, updated_at)
		WHERE id = $1::uuid
		RETURNING ` + columns

	p, err := scanProduct(r.pool.QueryRow(ctx, query,
		id, patch.Name, patch.Price, patch.Description, patch.Image, status, updatedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		span.SetStatus(codes.Error, "Product not found")
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return nil, fmt.Errorf("update product: %w", err)
	}

	span.SetStatus(codes.Ok, "Product updated")
	return p, nil
}

// DeleteByID reports ErrProductNotFound when no row was removed
func (r *ProductRepository) DeleteByID(ctx context.Context, id string) error {
	if !validID(id) {
		return domain.ErrProductNotFound
	}

	ctx, cancel, span := r.start(ctx, "DeleteByID")
	defer cancel()
	defer span.End()

	span.SetAttributes(attribute.String("product.id", id))

	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1::uuid`, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "Product not found")
		return domain.ErrProductNotFound
	}

	span.SetStatus(codes.Ok, "Product deleted")
	return nil
}
