package catalog

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kitworth/kitworth/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	ListComponents(ctx context.Context, limit, offset int) ([]Component, int, error)
	Component(ctx context.Context, componentID uuid.UUID) (Component, error)
	Product(ctx context.Context, productID uuid.UUID) (Product, error)
	Brands(ctx context.Context) ([]Brand, error)
	Retailers(ctx context.Context) ([]Retailer, error)
}

// Service exposes read-only catalog browsing.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Components returns one page of components with pagination metadata.
func (s *Service) Components(ctx context.Context, page, perPage int) ([]Component, shared.Pagination, error) {
	if perPage <= 0 || perPage > 200 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	p := shared.Pagination{Page: page, PerPage: perPage}
	components, total, err := s.repo.ListComponents(ctx, perPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return components, shared.NewPagination(page, perPage, total), nil
}

// Component fetches a single component.
func (s *Service) Component(ctx context.Context, componentID uuid.UUID) (Component, error) {
	return s.repo.Component(ctx, componentID)
}

// Product fetches a single product.
func (s *Service) Product(ctx context.Context, productID uuid.UUID) (Product, error) {
	return s.repo.Product(ctx, productID)
}

// Brands lists brands in display order.
func (s *Service) Brands(ctx context.Context) ([]Brand, error) {
	return s.repo.Brands(ctx)
}

// Retailers lists retailers in display order.
func (s *Service) Retailers(ctx context.Context) ([]Retailer, error) {
	return s.repo.Retailers(ctx)
}
