package report

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kitworth/kitworth/internal/catalog"
)

// Repository backs the reporter with PostgreSQL reads. Every method is a
// plain read on the pool; the reporter holds no locks beyond the
// database's own snapshot.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Component confirms the component exists and returns it.
func (r *Repository) Component(ctx context.Context, componentID uuid.UUID) (catalog.Component, error) {
	var c catalog.Component
	err := r.pool.QueryRow(ctx, `SELECT id, name, use_manual_price, standalone_price FROM components WHERE id=$1`, componentID).
		Scan(&c.ID, &c.Name, &c.UseManualPrice, &c.StandalonePrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Component{}, catalog.ErrNotFound
		}
		return catalog.Component{}, err
	}
	return c, nil
}

// Product confirms the product exists and returns it.
func (r *Repository) Product(ctx context.Context, productID uuid.UUID) (catalog.Product, error) {
	var p catalog.Product
	err := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(description, ''), brand_id, COALESCE(sku, '') FROM products WHERE id=$1`, productID).
		Scan(&p.ID, &p.Name, &p.Description, &p.BrandID, &p.SKU)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Product{}, catalog.ErrNotFound
		}
		return catalog.Product{}, err
	}
	return p, nil
}

// KitsForComponent lists every product containing the component together
// with the linking edge.
func (r *Repository) KitsForComponent(ctx context.Context, componentID uuid.UUID) ([]Kit, error) {
	rows, err := r.pool.Query(ctx, `SELECT pc.id, pc.product_id, pc.component_id, pc.quantity,
p.id, p.name, COALESCE(p.description, ''), p.brand_id, COALESCE(p.sku, '')
FROM product_components pc
JOIN products p ON p.id = pc.product_id
WHERE pc.component_id=$1
ORDER BY p.name, p.id`, componentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var kits []Kit
	for rows.Next() {
		var kit Kit
		if err := rows.Scan(&kit.Edge.ID, &kit.Edge.ProductID, &kit.Edge.ComponentID, &kit.Edge.Quantity,
			&kit.Product.ID, &kit.Product.Name, &kit.Product.Description, &kit.Product.BrandID, &kit.Product.SKU); err != nil {
			return nil, err
		}
		kits = append(kits, kit)
	}
	return kits, rows.Err()
}

// EdgesForProduct lists a product's component edges.
func (r *Repository) EdgesForProduct(ctx context.Context, productID uuid.UUID) ([]catalog.ProductComponent, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, component_id, quantity FROM product_components WHERE product_id=$1 ORDER BY component_id`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var edges []catalog.ProductComponent
	for rows.Next() {
		var e catalog.ProductComponent
		if err := rows.Scan(&e.ID, &e.ProductID, &e.ComponentID, &e.Quantity); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// ListingsForProduct returns every listing for the product, newest first.
func (r *Repository) ListingsForProduct(ctx context.Context, productID uuid.UUID) ([]catalog.PriceListing, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, retailer_id, product_id, price, currency, datepulled, COALESCE(retailer_sku, ''), COALESCE(url, '')
FROM price_listings WHERE product_id=$1 ORDER BY datepulled DESC, price DESC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var listings []catalog.PriceListing
	for rows.Next() {
		var l catalog.PriceListing
		if err := rows.Scan(&l.ID, &l.RetailerID, &l.ProductID, &l.Price, &l.Currency, &l.DatePulled, &l.RetailerSKU, &l.URL); err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// ListPriceAnchors resolves each component's list price: the curated
// standalone price, falling back to the latest standalone history row.
func (r *Repository) ListPriceAnchors(ctx context.Context, componentIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.id, COALESCE(c.standalone_price, h.price)
FROM components c
LEFT JOIN LATERAL (
	SELECT price FROM component_pricing_history
	WHERE component_id = c.id AND source_type = 'standalone'
	ORDER BY calculated_at DESC, id DESC LIMIT 1
) h ON TRUE
WHERE c.id = ANY($1)`, componentIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	anchors := make(map[uuid.UUID]decimal.Decimal)
	for rows.Next() {
		var id uuid.UUID
		var price decimal.NullDecimal
		if err := rows.Scan(&id, &price); err != nil {
			return nil, err
		}
		if price.Valid {
			anchors[id] = price.Decimal
		}
	}
	return anchors, rows.Err()
}

// Retailers lists retailers in display order for report sorting.
func (r *Repository) Retailers(ctx context.Context) ([]catalog.Retailer, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, COALESCE(url, ''), COALESCE(sortorder, 0) FROM retailers ORDER BY sortorder, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var retailers []catalog.Retailer
	for rows.Next() {
		var ret catalog.Retailer
		if err := rows.Scan(&ret.ID, &ret.Name, &ret.URL, &ret.SortOrder); err != nil {
			return nil, err
		}
		retailers = append(retailers, ret)
	}
	return retailers, rows.Err()
}
