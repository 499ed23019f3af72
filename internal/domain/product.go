package domain

import (
	"errors"
	"math"
	"strings"
	"time"
)

var (
	ErrInvalidProductName        = errors.New("product name is required")
	ErrInvalidProductDescription = errors.New("product description is required")
	ErrInvalidProductPrice       = errors.New("product price must be zero or positive")
	ErrMissingImage              = errors.New("product image is required")
	ErrInvalidStatus             = errors.New("invalid product status")
)

// Status is the availability state of a product
type Status string

const (
	StatusAvailable    Status = "available"
	StatusInProduction Status = "inProduction"
)

// ParseStatus validates a raw status value. An empty value yields the default.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case "":
		return StatusAvailable, nil
	case StatusAvailable, StatusInProduction:
		return Status(raw), nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether s is one of the known states
func (s Status) Valid() bool {
	return s == StatusAvailable || s == StatusInProduction
}

// Product represents the product entity
type Product struct {
	ID          string
	Name        string
	Price       float64
	Description string
	Image       string
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewProduct builds a product that has not been persisted yet. The repository assigns the ID.
func NewProduct(name, description string, price float64, image string, status Status) (*Product, error) {
	now := time.Now().UTC()
	product := &Product{
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Price:       price,
		Image:       image,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := product.Validate(); err != nil {
		return nil, err
	}

	return product, nil
}

// Validate performs business validation on the product
func (p *Product) Validate() error {
	if err := ValidateDetails(p.Name, p.Description, p.Price); err != nil {
		return err
	}
	if p.Image == "" {
		return ErrMissingImage
	}
	if !p.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// ValidateDetails checks the descriptive fields supplied by the client
func ValidateDetails(name, description string, price float64) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidProductName
	}
	if strings.TrimSpace(description) == "" {
		return ErrInvalidProductDescription
	}
	return ValidatePrice(price)
}

// ValidatePrice rejects negative and non-finite prices
func ValidatePrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return ErrInvalidProductPrice
	}
	return nil
}

// ProductPatch carries the fields of a partial update. Nil fields are left untouched.
type ProductPatch struct {
	Name        *string
	Price       *float64
	Description *string
	Image       *string
	Status      *Status
	UpdatedAt   time.Time
}

// Normalize trims the supplied name and description the way NewProduct does.
// The caller's strings are not modified.
func (p *ProductPatch) Normalize() {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		p.Name = &name
	}
	if p.Description != nil {
		description := strings.TrimSpace(*p.Description)
		p.Description = &description
	}
}

// Validate checks every supplied field with the same rules as NewProduct
func (p *ProductPatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return ErrInvalidProductName
	}
	if p.Description != nil && strings.TrimSpace(*p.Description) == "" {
		return ErrInvalidProductDescription
	}
	if p.Price != nil {
		if err := ValidatePrice(*p.Price); err != nil {
			return err
		}
	}
	if p.Image != nil && *p.Image == "" {
		return ErrMissingImage
	}
	if p.Status != nil && !p.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// Apply copies the supplied fields onto product
func (p *ProductPatch) Apply(product *Product) {
	if p.Name != nil {
		product.Name = strings.TrimSpace(*p.Name)
	}
	if p.Price != nil {
		product.Price = *p.Price
	}
	if p.Description != nil {
		product.Description = strings.TrimSpace(*p.Description)
	}
	if p.Image != nil {
		product.Image = *p.Image
	}
	if p.Status != nil {
		product.Status = *p.Status
	}
	if !p.UpdatedAt.IsZero() {
		product.UpdatedAt = p.UpdatedAt
	}
}
