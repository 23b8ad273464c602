package pricing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProrationEdge is one component line of the product being prorated.
type ProrationEdge struct {
	ComponentID uuid.UUID
	Quantity    int
}

// Share is one component's slice of a prorated product price. EffectivePrice
// is per unit and unrounded; callers round at the persistence boundary.
type Share struct {
	ComponentID     uuid.UUID
	Quantity        int
	EffectivePrice  decimal.Decimal
	WeightRatio     decimal.Decimal
	Anchored        bool
	StandalonePrice decimal.NullDecimal
}

// Proration is the full result of distributing one product price.
type Proration struct {
	Shares      []Share
	TotalWeight decimal.Decimal
	// EqualFallback is set when no component carried a standalone anchor
	// and the price was split equally instead.
	EqualFallback bool
}

// Prorate distributes productPrice across the edges using standalone prices
// as weights. Components present in anchors receive weight
// standalone_price x quantity; the invariant sum(effective_i x quantity_i)
// == productPrice holds exactly in unrounded arithmetic.
//
// When some components lack an anchor, the anchored components keep their
// relative ratios scaled by used = W / (W + avg x k), where avg is the mean
// per-unit anchor of the priced components and k the count of unpriced
// ones; the remaining tail (1 - used) is split equally across the unpriced
// components. When nothing is anchored the price is split equally and
// EqualFallback is set.
func Prorate(productPrice decimal.Decimal, edges []ProrationEdge, anchors map[uuid.UUID]decimal.Decimal) (Proration, error) {
	if len(edges) == 0 {
		return Proration{}, ErrZeroWeight
	}
	if !productPrice.IsPositive() {
		return Proration{}, ErrNonPositivePrice
	}

	type line struct {
		edge   ProrationEdge
		anchor decimal.Decimal
		priced bool
		weight decimal.Decimal
	}

	lines := make([]line, 0, len(edges))
	totalWeight := decimal.Zero
	anchorSum := decimal.Zero
	pricedCount := 0
	for _, e := range edges {
		qty := e.Quantity
		if qty < 1 {
			qty = 1
		}
		l := line{edge: ProrationEdge{ComponentID: e.ComponentID, Quantity: qty}}
		if anchor, ok := anchors[e.ComponentID]; ok && anchor.IsPositive() {
			l.priced = true
			l.anchor = anchor
			l.weight = anchor.Mul(decimal.NewFromInt(int64(qty)))
			totalWeight = totalWeight.Add(l.weight)
			anchorSum = anchorSum.Add(anchor)
			pricedCount++
		}
		lines = append(lines, l)
	}

	unpricedCount := len(lines) - pricedCount
	result := Proration{TotalWeight: totalWeight}

	switch {
	case unpricedCount == 0:
		// Full coverage: ratio_i = w_i / W.
		if totalWeight.IsZero() {
			return Proration{}, ErrZeroWeight
		}
		for _, l := range lines {
			ratio := l.weight.Div(totalWeight)
			result.Shares = append(result.Shares, buildShare(l.edge, ratio, l.anchor, l.priced, productPrice))
		}
	case pricedCount == 0:
		// Nothing anchored: equal split across all components.
		result.EqualFallback = true
		equal := decimal.New(1, 0).Div(decimal.NewFromInt(int64(len(lines))))
		for _, l := range lines {
			result.Shares = append(result.Shares, buildShare(l.edge, equal, decimal.Zero, false, productPrice))
		}
	default:
		// Partial coverage: scale the priced ratios by the used portion and
		// hand the tail out equally to the unpriced components.
		avg := anchorSum.Div(decimal.NewFromInt(int64(pricedCount)))
		k := decimal.NewFromInt(int64(unpricedCount))
		used := totalWeight.Div(totalWeight.Add(avg.Mul(k)))
		tail := decimal.New(1, 0).Sub(used).Div(k)
		for _, l := range lines {
			if l.priced {
				ratio := used.Mul(l.weight).Div(totalWeight)
				result.Shares = append(result.Shares, buildShare(l.edge, ratio, l.anchor, true, productPrice))
			} else {
				result.Shares = append(result.Shares, buildShare(l.edge, tail, decimal.Zero, false, productPrice))
			}
		}
	}

	return result, nil
}

func buildShare(edge ProrationEdge, ratio, anchor decimal.Decimal, priced bool, productPrice decimal.Decimal) Share {
	qty := decimal.NewFromInt(int64(edge.Quantity))
	share := Share{
		ComponentID:    edge.ComponentID,
		Quantity:       edge.Quantity,
		WeightRatio:    ratio,
		EffectivePrice: productPrice.Mul(ratio).Div(qty),
		Anchored:       priced,
	}
	if priced {
		share.StandalonePrice = decimal.NewNullDecimal(anchor)
	}
	return share
}
