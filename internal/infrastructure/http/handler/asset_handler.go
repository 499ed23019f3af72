package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mrops-br/catalog-api/internal/domain"
	"github.com/mrops-br/catalog-api/internal/infrastructure/http/response"
)

// AssetHandler serves stored product images
type AssetHandler struct {
	assets domain.AssetStore
	logger *slog.Logger
}

// NewAssetHandler creates a handler serving files from assets
func NewAssetHandler(assets domain.AssetStore, logger *slog.Logger) *AssetHandler {
	return &AssetHandler{
		assets: assets,
		logger: logger,
	}
}

// ServeAsset handles GET /uploads/{name}
func (h *AssetHandler) ServeAsset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	asset, err := h.assets.Open(r.Context(), name)
	if errors.Is(err, domain.ErrAssetNotFound) {
		response.Error(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to open asset",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		response.Message(w, http.StatusInternalServerError, "failed to read asset")
		return
	}
	defer asset.Close()

	w.Header().Set("Content-Type", asset.ContentType)

	// files support range requests and conditional GETs
	if rs, ok := asset.ReadCloser.(io.ReadSeeker); ok {
		http.ServeContent(w, r, asset.Name, asset.ModTime, rs)
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(asset.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, asset); err != nil {
		h.logger.WarnContext(r.Context(), "Asset transfer interrupted",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
	}
}
