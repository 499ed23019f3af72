package mongodb

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/mrops-br/catalog-api/internal/domain"
	"github.com/mrops-br/catalog-api/internal/infrastructure/repository/repositorytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestPatchToSet(t *testing.T) {
	name := "Trout"
	status := domain.StatusInProduction
	updatedAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	set := patchToSet(domain.ProductPatch{Name: &name, Status: &status, UpdatedAt: updatedAt})

	assert.Equal(t, bson.D{
		{Key: "name", Value: "Trout"},
		{Key: "status", Value: "inProduction"},
		{Key: "updatedAt", Value: updatedAt},
	}, set)
	assert.Empty(t, patchToSet(domain.ProductPatch{}))
}

func TestPatchToSet_TrimsText(t *testing.T) {
	name := "  Trout  "
	description := " Cold smoked "

	set := patchToSet(domain.ProductPatch{Name: &name, Description: &description})

	assert.Equal(t, bson.D{
		{Key: "name", Value: "Trout"},
		{Key: "description", Value: "Cold smoked"},
	}, set)
}

func TestDocumentRoundTrip(t *testing.T) {
	product, err := domain.NewProduct("Salmon", "Smoked", 12.5, "/uploads/1-a.jpg", domain.StatusInProduction)
	require.NoError(t, err)

	doc := toDocument(product)
	assert.True(t, doc.ID.IsZero())

	back := doc.toDomain()
	assert.Equal(t, product.Name, back.Name)
	assert.Equal(t, product.Image, back.Image)
	assert.Equal(t, product.Status, back.Status)
}

// TestContract runs against a live server when MONGO_TEST_URI is set
func TestContract(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	ctx := context.Background()
	client, err := Connect(ctx, uri)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database("catalog_test")

	repositorytest.Run(t, func(t *testing.T) domain.ProductRepository {
		collection := db.Collection("products")
		_, err := collection.DeleteMany(ctx, bson.D{})
		require.NoError(t, err)

		return NewProductRepository(collection, 3*time.Second,
			noop.NewTracerProvider().Tracer("test"),
			slog.New(slog.NewTextHandler(io.Discard, nil)),
		)
	})
}
