package disk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/mrops-br/catalog-api/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxNameAttempts bounds the retries when two uploads land on the same millisecond and filename
const maxNameAttempts = 16

// AssetStore writes uploads into a local directory that is served under /uploads/
type AssetStore struct {
	dir     string
	baseURL string
	now     func() time.Time
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewAssetStore creates dir if needed
func NewAssetStore(dir, baseURL string, tracer trace.Tracer, logger *slog.Logger) (*AssetStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &AssetStore{
		dir:     dir,
		baseURL: baseURL,
		now:     time.Now,
		tracer:  tracer,
		logger:  logger,
	}, nil
}

// Store writes payload under a fresh name and returns its public reference
func (s *AssetStore) Store(ctx context.Context, payload []byte, originalName, _ string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "DiskAssetStore.Store")
	defer span.End()

	span.SetAttributes(
		attribute.String("asset.original_name", originalName),
		attribute.Int("asset.size", len(payload)),
	)

	now := s.now()
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name := domain.StorageName(now.Add(time.Duration(attempt)*time.Millisecond), originalName)

		err := s.write(name, payload)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "write failed")
			return "", err
		}

		s.logger.DebugContext(ctx, "Asset stored",
			slog.String("name", name),
			slog.Int("size", len(payload)),
		)
		span.SetStatus(codes.Ok, "Asset stored")
		return domain.AssetReference(s.baseURL, name), nil
	}

	err := fmt.Errorf("no free asset name for %q", originalName)
	span.RecordError(err)
	span.SetStatus(codes.Error, "name collision")
	return "", err
}

// write creates the file exclusively and removes it again if the payload could not be written
func (s *AssetStore) write(name string, payload []byte) error {
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write asset: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to close asset: %w", err)
	}
	return nil
}

// resolve maps a storage name to a path inside dir, rejecting anything that is not a plain file name
func (s *AssetStore) resolve(name string) (string, error) {
	if name == "" || domain.SanitizeFilename(name) != name {
		return "", domain.ErrAssetNotFound
	}
	return filepath.Join(s.dir, name), nil
}

// Open returns the stored file, ErrAssetNotFound for unknown or unsafe names
func (s *AssetStore) Open(ctx context.Context, name string) (*domain.Asset, error) {
	_, span := s.tracer.Start(ctx, "DiskAssetStore.Open")
	defer span.End()

	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrAssetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open asset: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat asset: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, domain.ErrAssetNotFound
	}

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &domain.Asset{
		ReadCloser:  f,
		Name:        name,
		ContentType: contentType,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
	}, nil
}

// Remove deletes the file behind reference. A file that is already gone is not an error.
func (s *AssetStore) Remove(ctx context.Context, reference string) error {
	_, span := s.tracer.Start(ctx, "DiskAssetStore.Remove")
	defer span.End()

	path, err := s.resolve(domain.AssetName(reference))
	if err != nil {
		return nil
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		span.RecordError(err)
		return fmt.Errorf("failed to remove asset: %w", err)
	}
	return nil
}
