package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kitworth/kitworth/internal/catalog"
	"github.com/kitworth/kitworth/internal/platform/db"
)

// orchestratorLockID is the advisory lock key serialising recompute runs.
// The value spells "priceeng" in ASCII.
const orchestratorLockID = int64(0x7072696365656e67)

// ErrIntegrity wraps Postgres constraint violations surfaced by writes.
var ErrIntegrity = errors.New("pricing: integrity violation")

// Repository persists pricing data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction so the
// whole recompute observes and mutates one snapshot.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("pricing repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const listingColumns = `id, retailer_id, product_id, price, currency, datepulled, COALESCE(retailer_sku, ''), COALESCE(url, '')`

func scanListing(row pgx.Row) (catalog.PriceListing, error) {
	var l catalog.PriceListing
	err := row.Scan(&l.ID, &l.RetailerID, &l.ProductID, &l.Price, &l.Currency, &l.DatePulled, &l.RetailerSKU, &l.URL)
	return l, err
}

// ListingsForProduct returns every listing for the product, newest first.
func (r *Repository) ListingsForProduct(ctx context.Context, productID uuid.UUID) ([]catalog.PriceListing, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+listingColumns+` FROM price_listings WHERE product_id=$1 ORDER BY datepulled DESC, price DESC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var listings []catalog.PriceListing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

const historyColumns = `id, component_id, price, source_type, source_product_id, source_pricelisting_id, calculated_at, metadata`

func scanHistory(row pgx.Row) (HistoryEntry, error) {
	var e HistoryEntry
	var raw []byte
	if err := row.Scan(&e.ID, &e.ComponentID, &e.Price, &e.SourceType, &e.SourceProductID, &e.SourceListingID, &e.CalculatedAt, &raw); err != nil {
		return HistoryEntry{}, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &e.Metadata); err != nil {
			return HistoryEntry{}, fmt.Errorf("pricing: decode history metadata: %w", err)
		}
	}
	return e, nil
}

// HistoryPage returns one page of history rows, most recent first.
func (r *Repository) HistoryPage(ctx context.Context, componentID uuid.UUID, page, perPage int) ([]HistoryEntry, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM component_pricing_history WHERE component_id=$1`, componentID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+historyColumns+` FROM component_pricing_history
WHERE component_id=$1 ORDER BY calculated_at DESC, id DESC LIMIT $2 OFFSET $3`, componentID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var entries []HistoryEntry
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// LatestStandaloneEntry returns the newest standalone-tier history row.
func (r *Repository) LatestStandaloneEntry(ctx context.Context, componentID uuid.UUID) (HistoryEntry, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+historyColumns+` FROM component_pricing_history
WHERE component_id=$1 AND source_type=$2 ORDER BY calculated_at DESC, id DESC LIMIT 1`, componentID, string(SourceStandalone))
	entry, err := scanHistory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return HistoryEntry{}, catalog.ErrNotFound
		}
		return HistoryEntry{}, err
	}
	return entry, nil
}

// InsertManualHistory appends a manual override history row.
func (r *Repository) InsertManualHistory(ctx context.Context, componentID uuid.UUID, price decimal.Decimal, note string) error {
	metadata, err := json.Marshal(map[string]any{"note": note})
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO component_pricing_history (id, component_id, price, source_type, calculated_at, metadata)
VALUES ($1,$2,$3,$4,NOW(),$5)`, uuid.New(), componentID, price, string(SourceManual), metadata)
	return wrapIntegrity(err)
}

func (r *txRepository) AcquireRunLock(ctx context.Context) (bool, error) {
	var ok bool
	err := r.tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1)`, orchestratorLockID).Scan(&ok)
	return ok, err
}

func (r *txRepository) SingleComponentProducts(ctx context.Context) ([]SingleComponentProduct, error) {
	rows, err := r.tx.Query(ctx, `SELECT p.id, p.name, pc.component_id, pc.quantity
FROM products p
JOIN product_components pc ON pc.product_id = p.id
WHERE (SELECT COUNT(*) FROM product_components c WHERE c.product_id = p.id) = 1
ORDER BY p.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []SingleComponentProduct
	for rows.Next() {
		var p SingleComponentProduct
		if err := rows.Scan(&p.ProductID, &p.ProductName, &p.ComponentID, &p.Quantity); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *txRepository) MultiComponentProducts(ctx context.Context) ([]MultiComponentProduct, error) {
	rows, err := r.tx.Query(ctx, `SELECT p.id, p.name, pc.component_id, pc.quantity
FROM products p
JOIN product_components pc ON pc.product_id = p.id
WHERE (SELECT COUNT(*) FROM product_components c WHERE c.product_id = p.id) > 1
  AND EXISTS (SELECT 1 FROM price_listings pl WHERE pl.product_id = p.id)
ORDER BY p.name, p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []MultiComponentProduct
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var productID uuid.UUID
		var name string
		var edge ProrationEdge
		if err := rows.Scan(&productID, &name, &edge.ComponentID, &edge.Quantity); err != nil {
			return nil, err
		}
		i, ok := index[productID]
		if !ok {
			i = len(products)
			index[productID] = i
			products = append(products, MultiComponentProduct{ProductID: productID, ProductName: name})
		}
		products[i].Edges = append(products[i].Edges, edge)
	}
	return products, rows.Err()
}

func (r *txRepository) LatestListing(ctx context.Context, productID uuid.UUID) (catalog.PriceListing, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+listingColumns+` FROM price_listings
WHERE product_id=$1 ORDER BY datepulled DESC, price DESC LIMIT 1`, productID)
	listing, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.PriceListing{}, ErrNoListing
		}
		return catalog.PriceListing{}, err
	}
	return listing, nil
}

func (r *txRepository) ComponentStates(ctx context.Context) (map[uuid.UUID]ComponentState, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, name, use_manual_price, standalone_price FROM components`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	states := make(map[uuid.UUID]ComponentState)
	for rows.Next() {
		var id uuid.UUID
		var state ComponentState
		if err := rows.Scan(&id, &state.Name, &state.UseManualPrice, &state.StandalonePrice); err != nil {
			return nil, err
		}
		states[id] = state
	}
	return states, rows.Err()
}

func (r *txRepository) UpdateComponentPrice(ctx context.Context, update ComponentPriceUpdate) error {
	_, err := r.tx.Exec(ctx, `UPDATE components
SET calculated_price=$2, last_calculated_date=$3, price_source_product_id=$4, price_source_pricelisting_id=$5
WHERE id=$1`, update.ComponentID, update.Price, update.CalculatedAt, update.SourceProductID, update.SourceListingID)
	return wrapIntegrity(err)
}

func (r *txRepository) InsertHistory(ctx context.Context, entry HistoryEntry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return err
	}
	id := entry.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	_, err = r.tx.Exec(ctx, `INSERT INTO component_pricing_history (id, component_id, price, source_type, source_product_id, source_pricelisting_id, calculated_at, metadata)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, id, entry.ComponentID, entry.Price, string(entry.SourceType), entry.SourceProductID, entry.SourceListingID, entry.CalculatedAt, metadata)
	return wrapIntegrity(err)
}

// wrapIntegrity tags constraint violations so the orchestrator can report
// them as integrity failures rather than generic write errors.
func wrapIntegrity(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 && pgErr.Code[:2] == "23" {
		return fmt.Errorf("%w: %s (%s)", ErrIntegrity, pgErr.Message, pgErr.ConstraintName)
	}
	return err
}
