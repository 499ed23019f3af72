package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// UploadsPath is the URL prefix under which stored assets are served
const UploadsPath = "/uploads/"

var ErrAssetNotFound = errors.New("asset not found")

// Asset is an open handle on stored content
type Asset struct {
	io.ReadCloser
	Name        string
	ContentType string
	Size        int64
	ModTime     time.Time
}

// AssetStore persists uploaded payloads and hands back a reference clients can resolve later
type AssetStore interface {
	Store(ctx context.Context, payload []byte, originalName, contentType string) (string, error)
	Open(ctx context.Context, name string) (*Asset, error)
	Remove(ctx context.Context, reference string) error
}

// StorageName derives the on-disk/object name for an upload
func StorageName(now time.Time, originalName string) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), SanitizeFilename(originalName))
}

// unsafeInURL would end or alter the path of an asset reference
var unsafeInURL = strings.NewReplacer("/", "_", "#", "_", "?", "_", "%", "_")

// SanitizeFilename strips directory components, separators and URL delimiters from a client supplied name
func SanitizeFilename(name string) string {
	clean := filepath.Base(filepath.Clean(strings.ReplaceAll(name, "\\", "/")))
	clean = unsafeInURL.Replace(clean)
	if clean == "." || clean == ".." || clean == "" || clean == "_" {
		return "unnamed"
	}
	return clean
}

// AssetReference joins the public base URL with the uploads path. An empty base gives a server-relative path.
func AssetReference(baseURL, storageName string) string {
	return strings.TrimRight(baseURL, "/") + UploadsPath + storageName
}

// AssetName recovers the storage name from a reference produced by AssetReference
func AssetName(reference string) string {
	if i := strings.LastIndex(reference, UploadsPath); i >= 0 {
		return reference[i+len(UploadsPath):]
	}
	return path.Base(reference)
}
