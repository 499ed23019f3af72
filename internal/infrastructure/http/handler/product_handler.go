package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mrops-br/catalog-api/internal/app/dto"
	"github.com/mrops-br/catalog-api/internal/app/service"
	"github.com/mrops-br/catalog-api/internal/domain"
	"github.com/mrops-br/catalog-api/internal/infrastructure/http/response"
)

const imageField = "image"

// ProductHandler handles HTTP requests for products
type ProductHandler struct {
	service        *service.ProductService
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewProductHandler creates a new product handler. Multipart bodies larger than maxUploadBytes are rejected.
func NewProductHandler(service *service.ProductService, maxUploadBytes int64, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{
		service:        service,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// ListProducts handles GET /api/products
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.fail(w, "failed to list products", err)
		return
	}

	response.JSON(w, http.StatusOK, products)
}

// GetProduct handles GET /api/products/{id}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "failed to get product", err)
		return
	}

	response.JSON(w, http.StatusOK, product)
}

// CreateProduct handles POST /api/products (multipart: name, price, description, status, image)
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	form, ok := h.parseForm(w, r)
	if !ok {
		return
	}

	req, err := form.createRequest()
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	product, err := h.service.CreateProduct(r.Context(), req)
	if err != nil {
		h.fail(w, "failed to create product", err)
		return
	}

	response.JSON(w, http.StatusCreated, product)
}

// UpdateProduct handles PUT /api/products/{id}. Only the fields present in the form are changed.
func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	form, ok := h.parseForm(w, r)
	if !ok {
		return
	}

	req, err := form.updateRequest()
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	product, err := h.service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, "failed to update product", err)
		return
	}

	response.JSON(w, http.StatusOK, product)
}

// DeleteProduct handles DELETE /api/products/{id}
func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "failed to delete product", err)
		return
	}

	response.JSON(w, http.StatusOK, dto.MessageResponse{Message: "product deleted"})
}

// SetProductStatus handles PATCH /api/products/{id}/status with a JSON or form encoded body
func (h *ProductHandler) SetProductStatus(w http.ResponseWriter, r *http.Request) {
	var req dto.SetStatusRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.badRequest(w, r, errors.New("invalid JSON body"))
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.badRequest(w, r, errors.New("invalid form body"))
			return
		}
		req.Status = r.PostForm.Get("status")
	}

	product, err := h.service.SetProductStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.fail(w, "failed to update product status", err)
		return
	}

	response.JSON(w, http.StatusOK, product)
}

// parseForm reads a size-limited multipart body. It writes the error response itself when it returns false.
func (h *ProductHandler) parseForm(w http.ResponseWriter, r *http.Request) (productForm, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.WarnContext(r.Context(), "Request body too large",
				slog.Int64("limit", tooLarge.Limit),
			)
			response.Message(w, http.StatusRequestEntityTooLarge, "request body too large")
			return productForm{}, false
		}
		h.badRequest(w, r, errors.New("expected a multipart/form-data body"))
		return productForm{}, false
	}

	return productForm{r: r}, true
}

func (h *ProductHandler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.WarnContext(r.Context(), "Invalid product request",
		slog.String("reason", err.Error()),
	)
	response.Error(w, http.StatusBadRequest, err)
}

// fail maps service errors onto status codes. Storage failures are answered with message only; the
// cause was already logged by the service.
func (h *ProductHandler) fail(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		response.Error(w, http.StatusNotFound, domain.ErrProductNotFound)
	case service.IsValidationError(err):
		response.Error(w, http.StatusBadRequest, err)
	default:
		response.Message(w, http.StatusInternalServerError, message)
	}
}

// productForm extracts typed request fields from a parsed multipart form
type productForm struct {
	r *http.Request
}

func (f productForm) value(key string) (string, bool) {
	values, ok := f.r.MultipartForm.Value[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func (f productForm) required(key string) (string, error) {
	v, ok := f.value(key)
	if !ok {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

func parsePrice(raw string) (float64, error) {
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.New("price must be a number")
	}
	return price, nil
}

// image returns nil when no file was sent under the image field
func (f productForm) image() (*dto.Upload, error) {
	file, header, err := f.r.FormFile(imageField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.New("invalid image upload")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.New("invalid image upload")
	}

	return &dto.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (f productForm) createRequest() (*dto.CreateProductRequest, error) {
	name, err := f.required("name")
	if err != nil {
		return nil, err
	}
	description, err := f.required("description")
	if err != nil {
		return nil, err
	}
	rawPrice, err := f.required("price")
	if err != nil {
		return nil, err
	}
	price, err := parsePrice(rawPrice)
	if err != nil {
		return nil, err
	}
	image, err := f.image()
	if err != nil {
		return nil, err
	}

	status, _ := f.value("status")
	return &dto.CreateProductRequest{
		Name:        name,
		Description: description,
		Price:       price,
		Status:      status,
		Image:       image,
	}, nil
}

func (f productForm) updateRequest() (*dto.UpdateProductRequest, error) {
	req := &dto.UpdateProductRequest{}

	if v, ok := f.value("name"); ok {
		req.Name = &v
	}
	if v, ok := f.value("description"); ok {
		req.Description = &v
	}
	if v, ok := f.value("status"); ok {
		req.Status = &v
	}
	if v, ok := f.value("price"); ok {
		price, err := parsePrice(v)
		if err != nil {
			return nil, err
		}
		req.Price = &price
	}

	image, err := f.image()
	if err != nil {
		return nil, err
	}
	req.Image = image
	return req, nil
}
