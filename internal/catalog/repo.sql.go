package catalog

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads the catalog from PostgreSQL. The engine never writes
// catalog rows; the backoffice and import paths own them.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const componentColumns = `c.id, c.name, COALESCE(c.description, ''), c.brand_id, COALESCE(c.sku, ''), c.is_accessory, c.is_featured,
c.standalone_price, c.use_manual_price, COALESCE(c.manual_override_note, ''),
c.calculated_price, c.last_calculated_date, c.price_source_product_id, c.price_source_pricelisting_id`

func scanComponent(row pgx.Row) (Component, error) {
	var c Component
	var lastCalc sql.NullTime
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.BrandID, &c.SKU, &c.IsAccessory, &c.IsFeatured,
		&c.StandalonePrice, &c.UseManualPrice, &c.ManualOverrideNote,
		&c.CalculatedPrice, &lastCalc, &c.PriceSourceProductID, &c.PriceSourceListingID)
	if err != nil {
		return Component{}, err
	}
	if lastCalc.Valid {
		c.LastCalculatedAt = lastCalc.Time
	}
	return c, nil
}

// ListComponents returns one page of components in brand display order,
// then alphabetical. Brandless components sort last.
func (r *Repository) ListComponents(ctx context.Context, limit, offset int) ([]Component, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM components`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+componentColumns+` FROM components c
LEFT JOIN brands b ON b.id = c.brand_id
ORDER BY COALESCE(b.sortorder, 2147483647), c.name, c.id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var components []Component
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return nil, 0, err
		}
		components = append(components, c)
	}
	return components, total, rows.Err()
}

// Component fetches one component by id.
func (r *Repository) Component(ctx context.Context, componentID uuid.UUID) (Component, error) {
	c, err := scanComponent(r.pool.QueryRow(ctx, `SELECT `+componentColumns+` FROM components c WHERE c.id=$1`, componentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Component{}, ErrNotFound
		}
		return Component{}, err
	}
	return c, nil
}

// Product fetches one product by id.
func (r *Repository) Product(ctx context.Context, productID uuid.UUID) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(description, ''), brand_id, COALESCE(sku, '') FROM products WHERE id=$1`, productID).
		Scan(&p.ID, &p.Name, &p.Description, &p.BrandID, &p.SKU)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// Brands lists brands in display order.
func (r *Repository) Brands(ctx context.Context) ([]Brand, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, sortorder FROM brands ORDER BY sortorder, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var brands []Brand
	for rows.Next() {
		var b Brand
		if err := rows.Scan(&b.ID, &b.Name, &b.SortOrder); err != nil {
			return nil, err
		}
		brands = append(brands, b)
	}
	return brands, rows.Err()
}

// Retailers lists retailers in display order.
func (r *Repository) Retailers(ctx context.Context) ([]Retailer, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, COALESCE(url, ''), COALESCE(sortorder, 0) FROM retailers ORDER BY sortorder, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var retailers []Retailer
	for rows.Next() {
		var ret Retailer
		if err := rows.Scan(&ret.ID, &ret.Name, &ret.URL, &ret.SortOrder); err != nil {
			return nil, err
		}
		retailers = append(retailers, ret)
	}
	return retailers, rows.Err()
}
