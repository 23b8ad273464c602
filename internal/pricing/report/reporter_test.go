package report

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kitworth/kitworth/internal/catalog"
	"github.com/kitworth/kitworth/internal/pricing"
)

type fakeRepo struct {
	components map[uuid.UUID]catalog.Component
	products   map[uuid.UUID]catalog.Product
	kits       map[uuid.UUID][]Kit
	edges      map[uuid.UUID][]catalog.ProductComponent
	listings   map[uuid.UUID][]catalog.PriceListing
	anchors    map[uuid.UUID]decimal.Decimal
	retailers  []catalog.Retailer
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		components: make(map[uuid.UUID]catalog.Component),
		products:   make(map[uuid.UUID]catalog.Product),
		kits:       make(map[uuid.UUID][]Kit),
		edges:      make(map[uuid.UUID][]catalog.ProductComponent),
		listings:   make(map[uuid.UUID][]catalog.PriceListing),
		anchors:    make(map[uuid.UUID]decimal.Decimal),
	}
}

func (r *fakeRepo) Component(ctx context.Context, id uuid.UUID) (catalog.Component, error) {
	c, ok := r.components[id]
	if !ok {
		return catalog.Component{}, catalog.ErrNotFound
	}
	return c, nil
}

func (r *fakeRepo) Product(ctx context.Context, id uuid.UUID) (catalog.Product, error) {
	p, ok := r.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

func (r *fakeRepo) KitsForComponent(ctx context.Context, id uuid.UUID) ([]Kit, error) {
	return r.kits[id], nil
}

func (r *fakeRepo) EdgesForProduct(ctx context.Context, id uuid.UUID) ([]catalog.ProductComponent, error) {
	return r.edges[id], nil
}

func (r *fakeRepo) ListingsForProduct(ctx context.Context, id uuid.UUID) ([]catalog.PriceListing, error) {
	return r.listings[id], nil
}

func (r *fakeRepo) ListPriceAnchors(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	anchors := make(map[uuid.UUID]decimal.Decimal)
	for _, id := range ids {
		if a, ok := r.anchors[id]; ok {
			anchors[id] = a
		}
	}
	return anchors, nil
}

func (r *fakeRepo) Retailers(ctx context.Context) ([]catalog.Retailer, error) {
	return r.retailers, nil
}

var reportNow = time.Date(2024, 10, 15, 12, 0, 0, 0, time.UTC)

func newTestReporter(repo *fakeRepo) *Service {
	svc := NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return reportNow }
	return svc
}

// addKit registers a two-component kit (drill qty 1, battery qty 1) and
// returns the product id.
func (r *fakeRepo) addKit(drill, battery uuid.UUID, name string) uuid.UUID {
	productID := uuid.New()
	product := catalog.Product{ID: productID, Name: name}
	r.products[productID] = product
	edges := []catalog.ProductComponent{
		{ID: uuid.New(), ProductID: productID, ComponentID: drill, Quantity: 1},
		{ID: uuid.New(), ProductID: productID, ComponentID: battery, Quantity: 1},
	}
	r.edges[productID] = edges
	r.kits[drill] = append(r.kits[drill], Kit{Product: product, Edge: edges[0]})
	r.kits[battery] = append(r.kits[battery], Kit{Product: product, Edge: edges[1]})
	return productID
}

func (r *fakeRepo) addListing(productID, retailerID uuid.UUID, price string, pulled time.Time) catalog.PriceListing {
	l := catalog.PriceListing{
		ID:         uuid.New(),
		RetailerID: retailerID,
		ProductID:  productID,
		Price:      decimal.RequireFromString(price),
		Currency:   "USD",
		DatePulled: pulled,
	}
	r.listings[productID] = append(r.listings[productID], l)
	return l
}

func TestKitPricingDiscounts(t *testing.T) {
	repo := newFakeRepo()
	drill, battery := uuid.New(), uuid.New()
	retailer := uuid.New()
	repo.components[drill] = catalog.Component{ID: drill, Name: "Drill X"}
	repo.retailers = []catalog.Retailer{{ID: retailer, Name: "Acme", SortOrder: 1}}
	combo := repo.addKit(drill, battery, "Combo")
	repo.addListing(combo, retailer, "120.00", reportNow.AddDate(0, 0, -2))
	repo.anchors[drill] = decimal.RequireFromString("100")
	repo.anchors[battery] = decimal.RequireFromString("50")

	rows, err := newTestReporter(repo).KitPricing(context.Background(), drill)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	require.Equal(t, "Combo", row.Product.Name)
	require.Equal(t, "80.00", row.EffectivePrice.StringFixed(2))
	require.True(t, row.ListPrice.Valid)
	require.Equal(t, "100", row.ListPrice.Decimal.String())
	require.Equal(t, "20.00", row.DollarDiscount.StringFixed(2))
	require.True(t, row.PercentageDiscount.Valid)
	require.Equal(t, "20", row.PercentageDiscount.Decimal.String())
	require.True(t, row.HasDiscount)
}

func TestKitPricingNoListPrice(t *testing.T) {
	repo := newFakeRepo()
	drill, battery := uuid.New(), uuid.New()
	retailer := uuid.New()
	repo.components[drill] = catalog.Component{ID: drill, Name: "Drill X"}
	repo.retailers = []catalog.Retailer{{ID: retailer, Name: "Acme"}}
	combo := repo.addKit(drill, battery, "Combo")
	repo.addListing(combo, retailer, "120.00", reportNow.AddDate(0, 0, -2))
	// Only the battery carries a standalone anchor; the drill's share comes
	// from the unclaimed tail.
	repo.anchors[battery] = decimal.RequireFromString("50")

	rows, err := newTestReporter(repo).KitPricing(context.Background(), drill)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	require.Equal(t, "60.00", row.EffectivePrice.StringFixed(2))
	require.False(t, row.ListPrice.Valid)
	require.False(t, row.PercentageDiscount.Valid)
	require.False(t, row.HasDiscount)
	require.Equal(t, "0.00", row.DollarDiscount.StringFixed(2))
}

func TestKitPricingExcludesStaleListings(t *testing.T) {
	repo := newFakeRepo()
	drill, battery := uuid.New(), uuid.New()
	retailer := uuid.New()
	repo.components[drill] = catalog.Component{ID: drill, Name: "Drill X"}
	repo.retailers = []catalog.Retailer{{ID: retailer, Name: "Acme"}}
	combo := repo.addKit(drill, battery, "Combo")
	repo.addListing(combo, retailer, "120.00", reportNow.AddDate(0, 0, -90))
	repo.anchors[drill] = decimal.RequireFromString("100")
	repo.anchors[battery] = decimal.RequireFromString("50")

	rows, err := newTestReporter(repo).KitPricing(context.Background(), drill)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestKitPricingRetailerOrdering(t *testing.T) {
	repo := newFakeRepo()
	drill, battery := uuid.New(), uuid.New()
	first, second := uuid.New(), uuid.New()
	repo.components[drill] = catalog.Component{ID: drill, Name: "Drill X"}
	repo.retailers = []catalog.Retailer{
		{ID: first, Name: "Acme", SortOrder: 1},
		{ID: second, Name: "ToolBarn", SortOrder: 2},
	}
	combo := repo.addKit(drill, battery, "Combo")
	// The second retailer's listing is fresher, but display order follows
	// the retailer ordering.
	repo.addListing(combo, second, "130.00", reportNow.AddDate(0, 0, -1))
	repo.addListing(combo, first, "120.00", reportNow.AddDate(0, 0, -5))
	repo.anchors[drill] = decimal.RequireFromString("100")
	repo.anchors[battery] = decimal.RequireFromString("50")

	rows, err := newTestReporter(repo).KitPricing(context.Background(), drill)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, first, rows[0].Listing.RetailerID)
	require.Equal(t, second, rows[1].Listing.RetailerID)
}

func TestKitPricingUnknownComponent(t *testing.T) {
	repo := newFakeRepo()
	_, err := newTestReporter(repo).KitPricing(context.Background(), uuid.New())
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestLatestListingsValidation(t *testing.T) {
	repo := newFakeRepo()
	productID := uuid.New()
	repo.products[productID] = catalog.Product{ID: productID, Name: "Combo"}
	retailer := uuid.New()
	fresh := repo.addListing(productID, retailer, "99.00", reportNow.AddDate(0, 0, -3))

	svc := newTestReporter(repo)

	latest, err := svc.LatestListings(context.Background(), productID, 60)
	require.NoError(t, err)
	require.Equal(t, fresh.ID, latest[retailer].ID)

	_, err = svc.LatestListings(context.Background(), productID, 0)
	require.ErrorIs(t, err, pricing.ErrInvalidWindow)

	_, err = svc.LatestListings(context.Background(), uuid.New(), 60)
	require.ErrorIs(t, err, catalog.ErrNotFound)
}
