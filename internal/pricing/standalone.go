package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// harvestStandalone builds the standalone-price table: for every component
// sold on its own through a single-component product, the most recent
// observed per-unit price. The freshness window is deliberately not
// applied here. Non-positive prices are skipped and reported.
func harvestStandalone(ctx context.Context, tx TxRepository) (map[uuid.UUID]StandalonePrice, []string, error) {
	products, err := tx.SingleComponentProducts(ctx)
	if err != nil {
		return nil, nil, err
	}

	table := make(map[uuid.UUID]StandalonePrice)
	var problems []string
	for _, p := range products {
		listing, err := tx.LatestListing(ctx, p.ProductID)
		if err != nil {
			if errors.Is(err, ErrNoListing) {
				continue
			}
			return nil, nil, err
		}
		if !listing.Price.IsPositive() {
			problems = append(problems, fmt.Sprintf("skipping %s: non-positive listing price %s", p.ProductName, listing.Price))
			continue
		}
		qty := p.Quantity
		if qty < 1 {
			qty = 1
		}
		// A multi-pack listing yields the per-unit price.
		perUnit := listing.Price.Div(decimal.NewFromInt(int64(qty)))
		candidate := StandalonePrice{
			ComponentID:     p.ComponentID,
			Price:           perUnit,
			DatePulled:      listing.DatePulled,
			SourceProductID: p.ProductID,
			SourceListingID: listing.ID,
		}
		if cur, ok := table[p.ComponentID]; ok && !replacesStandalone(candidate, cur) {
			continue
		}
		table[p.ComponentID] = candidate
	}
	return table, problems, nil
}

// replacesStandalone decides between two standalone observations of the
// same component coming from different single-component products: the more
// recent wins, and date ties go to the higher per-unit price.
func replacesStandalone(candidate, current StandalonePrice) bool {
	if candidate.DatePulled.After(current.DatePulled) {
		return true
	}
	if candidate.DatePulled.Equal(current.DatePulled) {
		return candidate.Price.GreaterThan(current.Price)
	}
	return false
}
