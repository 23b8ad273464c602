package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kitworth/kitworth/internal/catalog"
)

// moneyScale is the fractional precision of every persisted price.
const moneyScale = 2

// Service owns the pricing recompute and the history read paths.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the pricing service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// writeMark tracks what already landed on a component within one run so
// that later, fresher observations win and standalone writes are not
// clobbered by same-day prorated ones.
type writeMark struct {
	observedAt time.Time
	source     SourceType
}

func (m writeMark) yieldsTo(observedAt time.Time, source SourceType) bool {
	if observedAt.After(m.observedAt) {
		return true
	}
	// Date tie: a prorated write may replace an older prorated one, but
	// never a standalone one.
	return observedAt.Equal(m.observedAt) && m.source == SourceProrated && source == SourceProrated
}

// Recompute runs one full pricing pass over the catalog inside a single
// transaction: harvest standalone prices, write them, then prorate every
// multi-component product with a listing. Manual-override components are
// never touched. A concurrent run fails fast with ErrBusy.
func (s *Service) Recompute(ctx context.Context, opts RecomputeOptions) (Stats, error) {
	var stats Stats
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.AcquireRunLock(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return ErrBusy
		}
		return s.recompute(ctx, tx, opts, &stats)
	})
	if err != nil {
		return stats, err
	}
	return stats, nil
}

func (s *Service) recompute(ctx context.Context, tx TxRepository, opts RecomputeOptions, stats *Stats) error {
	runAt := s.now()

	table, problems, err := harvestStandalone(ctx, tx)
	if err != nil {
		return err
	}
	stats.Errors = append(stats.Errors, problems...)
	if opts.Verbose {
		s.logger.Info("standalone harvest complete", slog.Int("components", len(table)))
	}

	states, err := tx.ComponentStates(ctx)
	if err != nil {
		return err
	}

	written := make(map[uuid.UUID]writeMark)

	// Phase 1: standalone writes.
	for componentID, sp := range table {
		state := states[componentID]
		if state.UseManualPrice {
			stats.Skipped++
			if opts.Verbose {
				s.logger.Info("skipping manual override", slog.String("component", state.Name))
			}
			continue
		}
		if !opts.DryRun {
			if err := s.writeStandalone(ctx, tx, sp, runAt); err != nil {
				return err
			}
		}
		written[componentID] = writeMark{observedAt: sp.DatePulled, source: SourceStandalone}
		stats.StandaloneUpdated++
		if opts.Verbose {
			s.logger.Info("standalone price",
				slog.String("component", state.Name),
				slog.String("price", sp.Price.StringFixed(moneyScale)))
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// Phase 2: prorated writes.
	anchors := buildAnchors(table, states)
	products, err := tx.MultiComponentProducts(ctx)
	if err != nil {
		return err
	}
	for _, product := range products {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.ProductsProcessed++
		if err := s.prorateProduct(ctx, tx, product, anchors, states, written, runAt, opts, stats); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) prorateProduct(ctx context.Context, tx TxRepository, product MultiComponentProduct, anchors map[uuid.UUID]decimal.Decimal, states map[uuid.UUID]ComponentState, written map[uuid.UUID]writeMark, runAt time.Time, opts RecomputeOptions, stats *Stats) error {
	listing, err := tx.LatestListing(ctx, product.ProductID)
	if err != nil {
		if errors.Is(err, ErrNoListing) {
			stats.Skipped++
			return nil
		}
		return err
	}

	result, err := Prorate(listing.Price, product.Edges, anchors)
	if err != nil {
		if errors.Is(err, ErrZeroWeight) || errors.Is(err, ErrNonPositivePrice) {
			stats.Errors = append(stats.Errors, fmt.Sprintf("skipping %s: %v", product.ProductName, err))
			return nil
		}
		return err
	}

	for _, share := range result.Shares {
		state := states[share.ComponentID]
		if state.UseManualPrice {
			stats.Skipped++
			if opts.Verbose {
				s.logger.Info("skipping manual override", slog.String("component", state.Name))
			}
			continue
		}
		if mark, ok := written[share.ComponentID]; ok && !mark.yieldsTo(listing.DatePulled, SourceProrated) {
			continue
		}
		if !opts.DryRun {
			if err := s.writeProrated(ctx, tx, product, listing, share, result, runAt); err != nil {
				return err
			}
		}
		written[share.ComponentID] = writeMark{observedAt: listing.DatePulled, source: SourceProrated}
		stats.ProratedUpdated++
		if opts.Verbose {
			s.logger.Info("prorated price",
				slog.String("component", state.Name),
				slog.String("product", product.ProductName),
				slog.String("price", share.EffectivePrice.StringFixed(moneyScale)),
				slog.String("ratio", share.WeightRatio.String()))
		}
	}
	return nil
}

func (s *Service) writeStandalone(ctx context.Context, tx TxRepository, sp StandalonePrice, runAt time.Time) error {
	price := sp.Price.Round(moneyScale)
	err := tx.UpdateComponentPrice(ctx, ComponentPriceUpdate{
		ComponentID:     sp.ComponentID,
		Price:           price,
		CalculatedAt:    runAt,
		SourceProductID: sp.SourceProductID,
		SourceListingID: sp.SourceListingID,
	})
	if err != nil {
		return err
	}
	return tx.InsertHistory(ctx, HistoryEntry{
		ComponentID:     sp.ComponentID,
		Price:           price,
		SourceType:      SourceStandalone,
		SourceProductID: uuid.NullUUID{UUID: sp.SourceProductID, Valid: true},
		SourceListingID: uuid.NullUUID{UUID: sp.SourceListingID, Valid: true},
		CalculatedAt:    runAt,
		Metadata: map[string]any{
			"calculation_date": sp.DatePulled.Format(time.DateOnly),
			"source":           "standalone_product",
		},
	})
}

func (s *Service) writeProrated(ctx context.Context, tx TxRepository, product MultiComponentProduct, listing catalog.PriceListing, share Share, result Proration, runAt time.Time) error {
	price := share.EffectivePrice.Round(moneyScale)
	err := tx.UpdateComponentPrice(ctx, ComponentPriceUpdate{
		ComponentID:     share.ComponentID,
		Price:           price,
		CalculatedAt:    runAt,
		SourceProductID: product.ProductID,
		SourceListingID: listing.ID,
	})
	if err != nil {
		return err
	}
	metadata := map[string]any{
		"quantity":      share.Quantity,
		"product_price": listing.Price.String(),
		"total_weight":  result.TotalWeight.String(),
		"weight_ratio":  share.WeightRatio.String(),
	}
	if share.StandalonePrice.Valid {
		metadata["standalone_price"] = share.StandalonePrice.Decimal.String()
	}
	if result.EqualFallback {
		metadata["fallback"] = "equal"
	}
	return tx.InsertHistory(ctx, HistoryEntry{
		ComponentID:     share.ComponentID,
		Price:           price,
		SourceType:      SourceProrated,
		SourceProductID: uuid.NullUUID{UUID: product.ProductID, Valid: true},
		SourceListingID: uuid.NullUUID{UUID: listing.ID, Valid: true},
		CalculatedAt:    runAt,
		Metadata:        metadata,
	})
}

// buildAnchors merges the harvested standalone table with manual list
// prices. Manual-override components always anchor at their manual price;
// otherwise a harvested observation wins over the curated list price.
func buildAnchors(table map[uuid.UUID]StandalonePrice, states map[uuid.UUID]ComponentState) map[uuid.UUID]decimal.Decimal {
	anchors := make(map[uuid.UUID]decimal.Decimal, len(table))
	for id, sp := range table {
		anchors[id] = sp.Price
	}
	for id, state := range states {
		if !state.StandalonePrice.Valid {
			continue
		}
		if _, harvested := anchors[id]; !harvested || state.UseManualPrice {
			anchors[id] = state.StandalonePrice.Decimal
		}
	}
	return anchors
}
