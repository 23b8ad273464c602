package pricing

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReporterFreshnessDays is the window inside which a price listing counts
// as current for reporter purposes. The standalone harvester deliberately
// ignores this window: standalone history is intrinsically informative
// even when stale, and staleness is recorded alongside the price.
const ReporterFreshnessDays = 60

// SourceType classifies how a derived price was obtained.
type SourceType string

const (
	// SourceStandalone means the price came from a single-component product.
	SourceStandalone SourceType = "standalone"
	// SourceProrated means the price is a weighted share of a kit price.
	SourceProrated SourceType = "prorated"
	// SourceManual records a backoffice manual override change.
	SourceManual SourceType = "manual"
)

// StandalonePrice is one harvested per-unit component price with provenance.
type StandalonePrice struct {
	ComponentID     uuid.UUID
	Price           decimal.Decimal
	DatePulled      time.Time
	SourceProductID uuid.UUID
	SourceListingID uuid.UUID
}

// HistoryEntry is one append-only row of the component pricing history.
type HistoryEntry struct {
	ID              uuid.UUID
	ComponentID     uuid.UUID
	Price           decimal.Decimal
	SourceType      SourceType
	SourceProductID uuid.NullUUID
	SourceListingID uuid.NullUUID
	CalculatedAt    time.Time
	Metadata        map[string]any
}

// ComponentState carries the component fields the orchestrator consults
// before writing: the manual override toggle and the manual list price.
type ComponentState struct {
	Name            string
	UseManualPrice  bool
	StandalonePrice decimal.NullDecimal
}

// ComponentPriceUpdate is the orchestrator's writeback to one component.
type ComponentPriceUpdate struct {
	ComponentID     uuid.UUID
	Price           decimal.Decimal
	CalculatedAt    time.Time
	SourceProductID uuid.UUID
	SourceListingID uuid.UUID
}

// Stats summarises one orchestrator run.
type Stats struct {
	StandaloneUpdated int
	ProratedUpdated   int
	Skipped           int
	ProductsProcessed int
	Errors            []string
}

// RecomputeOptions control a single orchestrator run.
type RecomputeOptions struct {
	DryRun  bool
	Verbose bool
}

var (
	// ErrInvalidWindow indicates a non-positive freshness window.
	ErrInvalidWindow = errors.New("pricing: freshness window must be positive")
	// ErrBusy indicates another orchestrator run holds the advisory lock.
	ErrBusy = errors.New("pricing: recompute already in progress")
	// ErrNoListing indicates a product without any price listing.
	ErrNoListing = errors.New("pricing: product has no price listing")
	// ErrZeroWeight indicates a degenerate proration weight sum.
	ErrZeroWeight = errors.New("pricing: proration weight sum is zero")
	// ErrNonPositivePrice indicates a product price of zero or below.
	ErrNonPositivePrice = errors.New("pricing: product price must be positive")
)
