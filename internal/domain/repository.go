package domain

import (
	"context"
	"errors"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ProductRepository defines the contract for product storage
type ProductRepository interface {
	Insert(ctx context.Context, product *Product) (*Product, error)
	FindAll(ctx context.Context) ([]*Product, error)
	FindByID(ctx context.Context, id string) (*Product, error)
	UpdateByID(ctx context.Context, id string, patch ProductPatch) (*Product, error)
	DeleteByID(ctx context.Context, id string) error
}
