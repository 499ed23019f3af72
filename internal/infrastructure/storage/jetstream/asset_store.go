package jetstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mrops-br/catalog-api/internal/domain"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultContentType = "application/octet-stream"
	maxNameAttempts    = 16
)

// AssetStore keeps uploads in a NATS JetStream object store bucket
type AssetStore struct {
	// mu is held from name lookup until Put returns so two uploads never claim the same name
	mu      sync.Mutex
	conn    *nats.Conn
	store   jetstream.ObjectStore
	baseURL string
	now     func() time.Time
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewAssetStore connects to NATS and opens the bucket, creating it on first use
func NewAssetStore(ctx context.Context, natsURL, bucket, baseURL string, tracer trace.Tracer, logger *slog.Logger) (*AssetStore, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := js.ObjectStore(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		store, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
			Bucket:      bucket,
			Description: "Product images",
		})
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open object store bucket: %w", err)
	}

	return &AssetStore{
		conn:    conn,
		store:   store,
		baseURL: baseURL,
		now:     time.Now,
		tracer:  tracer,
		logger:  logger,
	}, nil
}

// freeName picks the first storage name not already present in the bucket
func (s *AssetStore) freeName(ctx context.Context, originalName string) (string, error) {
	now := s.now()
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name := domain.StorageName(now.Add(time.Duration(attempt)*time.Millisecond), originalName)

		_, err := s.store.GetInfo(ctx, name)
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return name, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check object name: %w", err)
		}
	}
	return "", fmt.Errorf("no free asset name for %q", originalName)
}

func (s *AssetStore) put(ctx context.Context, payload []byte, originalName, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, err := s.freeName(ctx, originalName)
	if err != nil {
		return "", err
	}

	meta := jetstream.ObjectMeta{
		Name: name,
		Headers: nats.Header{
			"Content-Type": []string{contentType},
		},
	}
	if _, err := s.store.Put(ctx, meta, bytes.NewReader(payload)); err != nil {
		return "", fmt.Errorf("failed to store object: %w", err)
	}
	return name, nil
}

// Store puts payload into the bucket under a fresh name and returns its public reference
func (s *AssetStore) Store(ctx context.Context, payload []byte, originalName, contentType string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "JetStreamAssetStore.Store")
	defer span.End()

	span.SetAttributes(
		attribute.String("asset.original_name", originalName),
		attribute.Int("asset.size", len(payload)),
	)

	if contentType == "" {
		contentType = defaultContentType
	}

	name, err := s.put(ctx, payload, originalName, contentType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "put failed")
		return "", err
	}

	s.logger.DebugContext(ctx, "Asset stored in object store",
		slog.String("name", name),
		slog.Int("size", len(payload)),
	)
	span.SetStatus(codes.Ok, "Asset stored")
	return domain.AssetReference(s.baseURL, name), nil
}

// Open streams an object; the content type comes from its headers
func (s *AssetStore) Open(ctx context.Context, name string) (*domain.Asset, error) {
	ctx, span := s.tracer.Start(ctx, "JetStreamAssetStore.Open")
	defer span.End()

	result, err := s.store.Get(ctx, name)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return nil, domain.ErrAssetNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get object: %w", err)
	}

	info, err := result.Info()
	if err != nil {
		result.Close()
		return nil, fmt.Errorf("failed to get object info: %w", err)
	}

	contentType := defaultContentType
	if info.Headers != nil {
		if ct := info.Headers.Get("Content-Type"); ct != "" {
			contentType = ct
		}
	}

	return &domain.Asset{
		ReadCloser:  result,
		Name:        info.Name,
		ContentType: contentType,
		Size:        int64(info.Size),
		ModTime:     info.ModTime,
	}, nil
}

// Remove deletes the object behind reference. A missing object is not an error.
func (s *AssetStore) Remove(ctx context.Context, reference string) error {
	ctx, span := s.tracer.Start(ctx, "JetStreamAssetStore.Remove")
	defer span.End()

	err := s.store.Delete(ctx, domain.AssetName(reference))
	if err != nil && !errors.Is(err, jetstream.ErrObjectNotFound) {
		span.RecordError(err)
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Close closes the NATS connection
func (s *AssetStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}
