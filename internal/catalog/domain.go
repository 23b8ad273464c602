package catalog

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Brand identifies a tool manufacturer.
type Brand struct {
	ID        uuid.UUID
	Name      string
	SortOrder int
}

// Retailer identifies a store whose listings feed the engine.
type Retailer struct {
	ID        uuid.UUID
	Name      string
	URL       string
	SortOrder int
}

// Component is a single sellable unit: a bare tool, battery, charger or
// accessory. Derived pricing fields are writable only by the pricing
// orchestrator; the manual override fields belong to the backoffice.
type Component struct {
	ID          uuid.UUID
	Name        string
	Description string
	BrandID     uuid.NullUUID
	SKU         string
	IsAccessory bool
	IsFeatured  bool

	// StandalonePrice is the manually curated single-unit list price. When
	// UseManualPrice is set it is also the component's authoritative price.
	StandalonePrice    decimal.NullDecimal
	UseManualPrice     bool
	ManualOverrideNote string

	CalculatedPrice      decimal.NullDecimal
	LastCalculatedAt     time.Time
	PriceSourceProductID uuid.NullUUID
	PriceSourceListingID uuid.NullUUID
}

// Product is a purchasable bundle of one or more components.
type Product struct {
	ID          uuid.UUID
	Name        string
	Description string
	BrandID     uuid.NullUUID
	SKU         string
}

// ProductComponent links a product to a component with a unit count.
// Each (product, component) pair is unique; Quantity is always >= 1.
type ProductComponent struct {
	ID          uuid.UUID
	ProductID   uuid.UUID
	ComponentID uuid.UUID
	Quantity    int
}

// PriceListing is one observed retailer price for a product on a given day.
// The same retailer may record a new row every day even when the price is
// unchanged, and two different prices on the same day coexist.
type PriceListing struct {
	ID          uuid.UUID
	RetailerID  uuid.UUID
	ProductID   uuid.UUID
	Price       decimal.Decimal
	Currency    string
	DatePulled  time.Time
	RetailerSKU string
	URL         string
}

// AuthoritativePrice resolves the component's single source of truth: the
// manual price when the override toggle is set, otherwise the most recent
// calculated price, otherwise undefined.
func (c Component) AuthoritativePrice() decimal.NullDecimal {
	if c.UseManualPrice && c.StandalonePrice.Valid {
		return c.StandalonePrice
	}
	return c.CalculatedPrice
}

// ErrNotFound indicates the requested catalog row does not exist.
var ErrNotFound = errors.New("catalog: not found")
