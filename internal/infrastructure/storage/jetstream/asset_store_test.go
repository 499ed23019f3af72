package jetstream

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mrops-br/catalog-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

// newTestStore opens a fresh bucket on the JetStream server at NATS_TEST_URL
func newTestStore(t *testing.T) *AssetStore {
	t.Helper()

	url := os.Getenv("NATS_TEST_URL")
	if url == "" {
		t.Skip("NATS_TEST_URL not set")
	}

	bucket := "catalog-test-" + uuid.NewString()[:8]
	store, err := NewAssetStore(context.Background(), url, bucket, "https://shop.example.com",
		noop.NewTracerProvider().Tracer("test"),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAssetStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ref, err := store.Store(ctx, []byte("jpeg-bytes"), "salmon.jpg", "image/jpeg")
	require.NoError(t, err)
	assert.Contains(t, ref, "https://shop.example.com/uploads/")

	asset, err := store.Open(ctx, domain.AssetName(ref))
	require.NoError(t, err)
	data, err := io.ReadAll(asset)
	asset.Close()
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
	assert.Equal(t, "image/jpeg", asset.ContentType)

	second, err := store.Store(ctx, []byte("other"), "salmon.jpg", "image/jpeg")
	require.NoError(t, err)
	assert.NotEqual(t, ref, second)

	require.NoError(t, store.Remove(ctx, ref))
	_, err = store.Open(ctx, domain.AssetName(ref))
	assert.ErrorIs(t, err, domain.ErrAssetNotFound)
}

func TestStore_ConcurrentUploadsKeepTheirBytes(t *testing.T) {
	store := newTestStore(t)
	store.now = func() time.Time { return time.UnixMilli(1718000000000) }
	ctx := context.Background()

	const uploads = 8
	refs := make([]string, uploads)
	var wg sync.WaitGroup
	for i := 0; i < uploads; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref, err := store.Store(ctx, []byte{byte('a' + i)}, "image.jpg", "image/jpeg")
			assert.NoError(t, err)
			refs[i] = ref
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i, ref := range refs {
		require.NotEmpty(t, ref)
		assert.False(t, seen[ref], "duplicate reference %s", ref)
		seen[ref] = true

		asset, err := store.Open(ctx, domain.AssetName(ref))
		require.NoError(t, err)
		data, err := io.ReadAll(asset)
		asset.Close()
		require.NoError(t, err)
		assert.Equal(t, []byte{byte('a' + i)}, data)
	}
}
