package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mrops-br/catalog-api/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// productDocument is the stored shape of a product
type productDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Name        string             `bson:"name"`
	Price       float64            `bson:"price"`
	Description string             `bson:"description"`
	Image       string             `bson:"image"`
	Status      string             `bson:"status"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

func toDocument(p *domain.Product) productDocument {
	return productDocument{
		Name:        p.Name,
		Price:       p.Price,
		Description: p.Description,
		Image:       p.Image,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (d productDocument) toDomain() *domain.Product {
	return &domain.Product{
		ID:          d.ID.Hex(),
		Name:        d.Name,
		Price:       d.Price,
		Description: d.Description,
		Image:       d.Image,
		Status:      domain.Status(d.Status),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// patchToSet builds the $set document for the supplied patch fields only
func patchToSet(patch domain.ProductPatch) bson.D {
	patch.Normalize()

	set := bson.D{}
	if patch.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *patch.Name})
	}
	if patch.Price != nil {
		set = append(set, bson.E{Key: "price", Value: *patch.Price})
	}
	if patch.Description != nil {
		set = append(set, bson.E{Key: "description", Value: *patch.Description})
	}
	if patch.Image != nil {
		set = append(set, bson.E{Key: "image", Value: *patch.Image})
	}
	if patch.Status != nil {
		set = append(set, bson.E{Key: "status", Value: string(*patch.Status)})
	}
	if !patch.UpdatedAt.IsZero() {
		set = append(set, bson.E{Key: "updatedAt", Value: patch.UpdatedAt})
	}
	return set
}

// Connect opens a client and verifies the server is reachable
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return client, nil
}

// ProductRepository stores products as documents in a MongoDB collection
type ProductRepository struct {
	collection *mongo.Collection
	timeout    time.Duration
	tracer     trace.Tracer
	logger     *slog.Logger
}

// NewProductRepository creates a repository on the given collection
func NewProductRepository(collection *mongo.Collection, timeout time.Duration, tracer trace.Tracer, logger *slog.Logger) *ProductRepository {
	return &ProductRepository{
		collection: collection,
		timeout:    timeout,
		tracer:     tracer,
		logger:     logger,
	}
}

func (r *ProductRepository) start(ctx context.Context, name string) (context.Context, context.CancelFunc, trace.Span) {
	ctx, span := r.tracer.Start(ctx, "MongoProductRepository."+name,
		trace.WithAttributes(
			attribute.String("db.system", "mongodb"),
			attribute.String("db.collection.name", r.collection.Name()),
		),
	)
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	return ctx, cancel, span
}

func (r *ProductRepository) failed(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Insert stores a new document and returns it with the generated ObjectID
func (r *ProductRepository) Insert(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	ctx, cancel, span := r.start(ctx, "Insert")
	defer cancel()
	defer span.End()

	doc := toDocument(product)
	doc.ID = primitive.NewObjectID()

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		r.failed(span, err)
		return nil, fmt.Errorf("insert product: %w", err)
	}

	span.SetAttributes(attribute.String("product.id", doc.ID.Hex()))
	span.SetStatus(codes.Ok, "Product inserted")
	return doc.toDomain(), nil
}

// FindAll returns every document ordered by _id, which follows insertion time
func (r *ProductRepository) FindAll(ctx context.Context) ([]*domain.Product, error) {
	ctx, cancel, span := r.start(ctx, "FindAll")
	defer cancel()
	defer span.End()

	cursor, err := r.collection.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		r.failed(span, err)
		return nil, fmt.Errorf("find products: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []productDocument
	if err := cursor.All(ctx, &docs); err != nil {
		r.failed(span, err)
		return nil, fmt.Errorf("decode products: %w", err)
	}

	products := make([]*domain.Product, 0, len(docs))
	for _, d := range docs {
		products = append(products, d.toDomain())
	}

	span.SetAttributes(attribute.Int("product.count", len(products)))
	span.SetStatus(codes.Ok, "Products retrieved successfully")
	return products, nil
}

// FindByID loads one document. IDs that are not valid ObjectIDs cannot exist and report not found.
func (r *ProductRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	ctx, cancel, span := r.start(ctx, "FindByID")
	defer cancel()
	defer span.End()

	span.SetAttributes(attribute.String("product.id", id))

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrProductNotFound
	}

	var doc productDocument
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		span.SetStatus(codes.Error, "Product not found")
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		r.failed(span, err)
		return nil, fmt.Errorf("find product: %w", err)
	}

	span.SetStatus(codes.Ok, "Product found")
	return doc.toDomain(), nil
}

// UpdateByID sets only the patched fields and returns the document after the update
func (r *ProductRepository) UpdateByID(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	set := patchToSet(patch)
	if len(set) == 0 {
		return r.FindByID(ctx, id)
	}

	ctx, cancel, span := r.start(ctx, "UpdateByID")
	defer cancel()
	defer span.End()

	span.SetAttributes(attribute.String("product.id", id))

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrProductNotFound
	}

	var doc productDocument
	err = r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		span.SetStatus(codes.Error, "Product not found")
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		r.failed(span, err)
		return nil, fmt.Errorf("update product: %w", err)
	}

	span.SetStatus(codes.Ok, "Product updated")
	return doc.toDomain(), nil
}

// DeleteByID removes the document, reporting not found when nothing matched
func (r *ProductRepository) DeleteByID(ctx context.Context, id string) error {
	ctx, cancel, span := r.start(ctx, "DeleteByID")
	defer cancel()
	defer span.End()

	span.SetAttributes(attribute.String("product.id", id))

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrProductNotFound
	}

	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		r.failed(span, err)
		return fmt.Errorf("delete product: %w", err)
	}
	if res.DeletedCount == 0 {
		span.SetStatus(codes.Error, "Product not found")
		return domain.ErrProductNotFound
	}

	r.logger.DebugContext(ctx, "Product deleted from mongo",
		slog.String("product_id", id),
	)

	span.SetStatus(codes.Ok, "Product deleted")
	return nil
}
