package pricing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kitworth/kitworth/internal/catalog"
)

// SingleComponentProduct is a product with exactly one component edge.
type SingleComponentProduct struct {
	ProductID   uuid.UUID
	ProductName string
	ComponentID uuid.UUID
	Quantity    int
}

// MultiComponentProduct is a product with two or more component edges and
// at least one price listing on record.
type MultiComponentProduct struct {
	ProductID   uuid.UUID
	ProductName string
	Edges       []ProrationEdge
}

// RepositoryPort abstracts the read paths used outside the orchestrator
// transaction: listings for the selector and the pricing history store.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListingsForProduct(ctx context.Context, productID uuid.UUID) ([]catalog.PriceListing, error)
	HistoryPage(ctx context.Context, componentID uuid.UUID, page, perPage int) ([]HistoryEntry, int, error)
	LatestStandaloneEntry(ctx context.Context, componentID uuid.UUID) (HistoryEntry, error)
	InsertManualHistory(ctx context.Context, componentID uuid.UUID, price decimal.Decimal, note string) error
}

// TxRepository exposes the operations available inside one recompute
// transaction. Every read observes the same snapshot the writes land in.
type TxRepository interface {
	// AcquireRunLock takes the orchestrator advisory lock for the lifetime
	// of the transaction. It returns false when another run holds it.
	AcquireRunLock(ctx context.Context) (bool, error)
	SingleComponentProducts(ctx context.Context) ([]SingleComponentProduct, error)
	MultiComponentProducts(ctx context.Context) ([]MultiComponentProduct, error)
	// LatestListing returns the most recent listing for the product across
	// all retailers regardless of the freshness window, breaking date ties
	// by the higher price. Returns ErrNoListing when none exist.
	LatestListing(ctx context.Context, productID uuid.UUID) (catalog.PriceListing, error)
	ComponentStates(ctx context.Context) (map[uuid.UUID]ComponentState, error)
	UpdateComponentPrice(ctx context.Context, update ComponentPriceUpdate) error
	InsertHistory(ctx context.Context, entry HistoryEntry) error
}
