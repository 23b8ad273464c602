package pricing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kitworth/kitworth/internal/catalog"
	"github.com/kitworth/kitworth/internal/shared"
)

// History returns one page of a component's pricing history, most recent
// first, together with pagination metadata. Rows are never mutated, so the
// page is a stable view of everything the engine ever derived.
func (s *Service) History(ctx context.Context, componentID uuid.UUID, page, perPage int) ([]HistoryEntry, shared.Pagination, error) {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	entries, total, err := s.repo.HistoryPage(ctx, componentID, page, perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return entries, shared.NewPagination(page, perPage, total), nil
}

// LatestStandalone returns the most recent standalone-tier history row for
// the component. Returns catalog.ErrNotFound when none exists.
func (s *Service) LatestStandalone(ctx context.Context, componentID uuid.UUID) (HistoryEntry, error) {
	return s.repo.LatestStandaloneEntry(ctx, componentID)
}

// RecordManualOverride appends a manual history row. The backoffice calls
// this whenever the override toggle or manual price changes, so the history
// describes manual and derived prices uniformly.
func (s *Service) RecordManualOverride(ctx context.Context, componentID uuid.UUID, price decimal.Decimal, note string) error {
	return s.repo.InsertManualHistory(ctx, componentID, price.Round(moneyScale), note)
}

// LatestListings exposes the per-retailer selector for one product.
func (s *Service) LatestListings(ctx context.Context, productID uuid.UUID, windowDays int) (map[uuid.UUID]catalog.PriceListing, error) {
	if windowDays <= 0 {
		return nil, ErrInvalidWindow
	}
	listings, err := s.repo.ListingsForProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return LatestByRetailer(listings, s.now(), windowDays)
}
