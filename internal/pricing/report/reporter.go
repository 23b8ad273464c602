// Package report derives per-kit effective pricing for a single component:
// every product the component ships in, each retailer's current listing,
// and the discount against the component's list price.
package report

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kitworth/kitworth/internal/catalog"
	"github.com/kitworth/kitworth/internal/pricing"
)

// Kit pairs a product with the edge linking it to the reported component.
type Kit struct {
	Product catalog.Product
	Edge    catalog.ProductComponent
}

// KitPricing is one row of the kit-pricing report.
type KitPricing struct {
	Product            catalog.Product
	Edge               catalog.ProductComponent
	Listing            catalog.PriceListing
	EffectivePrice     decimal.Decimal
	ListPrice          decimal.NullDecimal
	DollarDiscount     decimal.Decimal
	PercentageDiscount decimal.NullDecimal
	HasDiscount        bool
}

// RepositoryPort abstracts the catalog reads behind the reporter.
type RepositoryPort interface {
	Component(ctx context.Context, componentID uuid.UUID) (catalog.Component, error)
	Product(ctx context.Context, productID uuid.UUID) (catalog.Product, error)
	KitsForComponent(ctx context.Context, componentID uuid.UUID) ([]Kit, error)
	EdgesForProduct(ctx context.Context, productID uuid.UUID) ([]catalog.ProductComponent, error)
	ListingsForProduct(ctx context.Context, productID uuid.UUID) ([]catalog.PriceListing, error)
	// ListPriceAnchors resolves each component's list price: the manual
	// standalone price when curated, otherwise the most recent
	// standalone-tier history price. Components with neither are absent.
	ListPriceAnchors(ctx context.Context, componentIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
	Retailers(ctx context.Context) ([]catalog.Retailer, error)
}

// Service builds kit-pricing reports. All calls are pure reads.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the reporter.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// KitPricing lists every kit containing the component with its effective
// price under each retailer's freshest listing. Kits without a listing in
// the freshness window contribute no rows; components with no list price
// report a null list price and null percentage discount.
func (s *Service) KitPricing(ctx context.Context, componentID uuid.UUID) ([]KitPricing, error) {
	if _, err := s.repo.Component(ctx, componentID); err != nil {
		return nil, err
	}
	kits, err := s.repo.KitsForComponent(ctx, componentID)
	if err != nil {
		return nil, err
	}

	retailerOrder, err := s.retailerOrder(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var rows []KitPricing
	for _, kit := range kits {
		edges, err := s.repo.EdgesForProduct(ctx, kit.Product.ID)
		if err != nil {
			return nil, err
		}
		listings, err := s.repo.ListingsForProduct(ctx, kit.Product.ID)
		if err != nil {
			return nil, err
		}
		latest, err := pricing.LatestByRetailer(listings, now, pricing.ReporterFreshnessDays)
		if err != nil {
			return nil, err
		}
		if len(latest) == 0 {
			continue
		}

		componentIDs := make([]uuid.UUID, 0, len(edges))
		prorationEdges := make([]pricing.ProrationEdge, 0, len(edges))
		for _, e := range edges {
			componentIDs = append(componentIDs, e.ComponentID)
			prorationEdges = append(prorationEdges, pricing.ProrationEdge{ComponentID: e.ComponentID, Quantity: e.Quantity})
		}
		anchors, err := s.repo.ListPriceAnchors(ctx, componentIDs)
		if err != nil {
			return nil, err
		}
		listPrice := decimal.NullDecimal{}
		if anchor, ok := anchors[componentID]; ok {
			listPrice = decimal.NewNullDecimal(anchor)
		}

		for _, listing := range latest {
			result, err := pricing.Prorate(listing.Price, prorationEdges, anchors)
			if err != nil {
				// Degenerate kits degrade to no rows rather than failing
				// the whole report.
				s.logger.Debug("kit pricing skipped",
					slog.String("product", kit.Product.Name),
					slog.Any("error", err))
				continue
			}
			share, ok := findShare(result.Shares, componentID)
			if !ok {
				continue
			}
			effective := share.EffectivePrice.Round(2)
			dollar, pct, hasDiscount := discounts(listPrice, effective)
			rows = append(rows, KitPricing{
				Product:            kit.Product,
				Edge:               kit.Edge,
				Listing:            listing,
				EffectivePrice:     effective,
				ListPrice:          listPrice,
				DollarDiscount:     dollar,
				PercentageDiscount: pct,
				HasDiscount:        hasDiscount,
			})
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		oi, oj := retailerOrder[rows[i].Listing.RetailerID], retailerOrder[rows[j].Listing.RetailerID]
		if oi != oj {
			return oi < oj
		}
		return rows[i].Listing.DatePulled.After(rows[j].Listing.DatePulled)
	})
	return rows, nil
}

// LatestListings exposes the selector over one product for the UI layer.
func (s *Service) LatestListings(ctx context.Context, productID uuid.UUID, windowDays int) (map[uuid.UUID]catalog.PriceListing, error) {
	if windowDays <= 0 {
		return nil, pricing.ErrInvalidWindow
	}
	if _, err := s.repo.Product(ctx, productID); err != nil {
		return nil, err
	}
	listings, err := s.repo.ListingsForProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return pricing.LatestByRetailer(listings, s.now(), windowDays)
}

func (s *Service) retailerOrder(ctx context.Context) (map[uuid.UUID]int, error) {
	retailers, err := s.repo.Retailers(ctx)
	if err != nil {
		return nil, err
	}
	order := make(map[uuid.UUID]int, len(retailers))
	for i, r := range retailers {
		order[r.ID] = i
	}
	return order, nil
}

func findShare(shares []pricing.Share, componentID uuid.UUID) (pricing.Share, bool) {
	for _, s := range shares {
		if s.ComponentID == componentID {
			return s, true
		}
	}
	return pricing.Share{}, false
}

// discounts applies the list-price comparison rules: a dollar discount only
// when both prices are positive and the list price is not below the
// effective price, a percentage only when a list price exists.
func discounts(listPrice decimal.NullDecimal, effective decimal.Decimal) (decimal.Decimal, decimal.NullDecimal, bool) {
	if !listPrice.Valid || !listPrice.Decimal.IsPositive() || !effective.IsPositive() {
		return decimal.Zero, decimal.NullDecimal{}, false
	}
	dollar := listPrice.Decimal.Sub(effective)
	if dollar.IsNegative() {
		dollar = decimal.Zero
	}
	pct := dollar.Div(listPrice.Decimal).Mul(decimal.NewFromInt(100)).Round(2)
	return dollar, decimal.NewNullDecimal(pct), dollar.IsPositive()
}
