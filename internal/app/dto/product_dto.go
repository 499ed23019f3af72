package dto

import (
	"time"

	"github.com/mrops-br/catalog-api/internal/domain"
)

// Upload is an image file received with a create or update request
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// CreateProductRequest represents the request to create a product
type CreateProductRequest struct {
	Name        string
	Description string
	Price       float64
	// Status is optional; empty means available
	Status string
	Image  *Upload
}

// UpdateProductRequest carries only the fields the client supplied
type UpdateProductRequest struct {
	Name        *string
	Description *string
	Price       *float64
	Status      *string
	Image       *Upload
}

// SetStatusRequest is the body of PATCH /api/products/{id}/status
type SetStatusRequest struct {
	Status string `json:"status"`
}

// ProductResponse represents the product response
type ProductResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Price       float64   `json:"price"`
	Description string    `json:"description"`
	Image       string    `json:"image"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MessageResponse is returned by operations without a product body
type MessageResponse struct {
	Message string `json:"message"`
}

// ToProductResponse converts a domain Product to ProductResponse
func ToProductResponse(p *domain.Product) *ProductResponse {
	return &ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Price:       p.Price,
		Description: p.Description,
		Image:       p.Image,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// ToProductResponseList converts a list of domain Products to ProductResponse list
func ToProductResponseList(products []*domain.Product) []*ProductResponse {
	responses := make([]*ProductResponse, len(products))
	for i, p := range products {
		responses[i] = ToProductResponse(p)
	}
	return responses
}
