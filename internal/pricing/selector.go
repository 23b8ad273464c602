package pricing

import (
	"time"

	"github.com/google/uuid"

	"github.com/kitworth/kitworth/internal/catalog"
)

// LatestByRetailer reduces a product's listings to the single most recent
// listing per retailer inside the freshness window. Listings older than
// now minus windowDays are never returned, even when nothing newer exists.
// Ties on the pull date are broken by the larger price so that same-day
// promo and non-promo rows never undercount the effective price.
func LatestByRetailer(listings []catalog.PriceListing, now time.Time, windowDays int) (map[uuid.UUID]catalog.PriceListing, error) {
	if windowDays <= 0 {
		return nil, ErrInvalidWindow
	}
	cutoff := now.AddDate(0, 0, -windowDays)
	latest := make(map[uuid.UUID]catalog.PriceListing)
	for _, l := range listings {
		if l.DatePulled.Before(cutoff) {
			continue
		}
		cur, ok := latest[l.RetailerID]
		if !ok || newerListing(l, cur) {
			latest[l.RetailerID] = l
		}
	}
	return latest, nil
}

// newerListing reports whether a should replace b as the freshest listing.
func newerListing(a, b catalog.PriceListing) bool {
	if a.DatePulled.After(b.DatePulled) {
		return true
	}
	if a.DatePulled.Equal(b.DatePulled) {
		return a.Price.GreaterThan(b.Price)
	}
	return false
}
