package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kitworth/kitworth/internal/catalog"
	"github.com/kitworth/kitworth/internal/pricing"
	"github.com/kitworth/kitworth/internal/pricing/report"
	"github.com/kitworth/kitworth/internal/shared"
)

type fakeReporter struct {
	rows     []report.KitPricing
	listings map[uuid.UUID]catalog.PriceListing
	err      error
	calls    int
}

func (f *fakeReporter) KitPricing(ctx context.Context, componentID uuid.UUID) ([]report.KitPricing, error) {
	f.calls++
	return f.rows, f.err
}

func (f *fakeReporter) LatestListings(ctx context.Context, productID uuid.UUID, windowDays int) (map[uuid.UUID]catalog.PriceListing, error) {
	f.calls++
	return f.listings, f.err
}

type manualWrite struct {
	componentID uuid.UUID
	price       decimal.Decimal
	note        string
}

type fakePricing struct {
	entries []pricing.HistoryEntry
	manual  []manualWrite
}

func (f *fakePricing) History(ctx context.Context, componentID uuid.UUID, page, perPage int) ([]pricing.HistoryEntry, shared.Pagination, error) {
	return f.entries, shared.NewPagination(page, perPage, len(f.entries)), nil
}

func (f *fakePricing) RecordManualOverride(ctx context.Context, componentID uuid.UUID, price decimal.Decimal, note string) error {
	f.manual = append(f.manual, manualWrite{componentID: componentID, price: price, note: note})
	return nil
}

type fakeEnqueuer struct {
	reasons []string
	err     error
}

func (f *fakeEnqueuer) EnqueueRecalculate(ctx context.Context, reason string) error {
	f.reasons = append(f.reasons, reason)
	return f.err
}

func testHandler(t *testing.T, reporter *fakeReporter, pricingSvc *fakePricing, enqueuer *fakeEnqueuer) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := NewHandler(reporter, pricingSvc, enqueuer, NewCache(client, time.Minute), slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func doRequest(t *testing.T, handler http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func sampleRow() report.KitPricing {
	return report.KitPricing{
		Product:        catalog.Product{ID: uuid.New(), Name: "Combo"},
		Edge:           catalog.ProductComponent{Quantity: 1},
		Listing:        catalog.PriceListing{ID: uuid.New(), RetailerID: uuid.New(), Price: decimal.RequireFromString("120.00"), Currency: "USD", DatePulled: time.Now()},
		EffectivePrice: decimal.RequireFromString("80.00"),
		ListPrice:      decimal.NewNullDecimal(decimal.RequireFromString("100")),
		DollarDiscount: decimal.RequireFromString("20.00"),
		HasDiscount:    true,
	}
}

func TestKitPricingEndpointCaches(t *testing.T) {
	reporter := &fakeReporter{rows: []report.KitPricing{sampleRow()}}
	handler := testHandler(t, reporter, &fakePricing{}, &fakeEnqueuer{})
	target := "/components/" + uuid.NewString() + "/kit-pricing"

	rec := doRequest(t, handler, http.MethodGet, target, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Kits []json.RawMessage `json:"kits"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Kits, 1)

	// Second hit comes from the cache.
	rec = doRequest(t, handler, http.MethodGet, target, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, reporter.calls)
}

func TestKitPricingInvalidID(t *testing.T) {
	handler := testHandler(t, &fakeReporter{}, &fakePricing{}, &fakeEnqueuer{})
	rec := doRequest(t, handler, http.MethodGet, "/components/not-a-uuid/kit-pricing", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKitPricingNotFound(t *testing.T) {
	handler := testHandler(t, &fakeReporter{err: catalog.ErrNotFound}, &fakePricing{}, &fakeEnqueuer{})
	rec := doRequest(t, handler, http.MethodGet, "/components/"+uuid.NewString()+"/kit-pricing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListingsWindowValidation(t *testing.T) {
	handler := testHandler(t, &fakeReporter{}, &fakePricing{}, &fakeEnqueuer{})
	base := "/products/" + uuid.NewString() + "/listings"

	rec := doRequest(t, handler, http.MethodGet, base+"?window_days=0", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, base+"?window_days=400", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, base+"?window_days=abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListingsDefaultWindow(t *testing.T) {
	retailer := uuid.New()
	reporter := &fakeReporter{listings: map[uuid.UUID]catalog.PriceListing{
		retailer: {ID: uuid.New(), RetailerID: retailer, Price: decimal.RequireFromString("99.00"), DatePulled: time.Now()},
	}}
	handler := testHandler(t, reporter, &fakePricing{}, &fakeEnqueuer{})

	rec := doRequest(t, handler, http.MethodGet, "/products/"+uuid.NewString()+"/listings", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		WindowDays int               `json:"window_days"`
		Listings   []json.RawMessage `json:"listings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, pricing.ReporterFreshnessDays, payload.WindowDays)
	require.Len(t, payload.Listings, 1)
}

func TestHistoryEndpoint(t *testing.T) {
	componentID := uuid.New()
	pricingSvc := &fakePricing{entries: []pricing.HistoryEntry{{
		ID:          uuid.New(),
		ComponentID: componentID,
		Price:       decimal.RequireFromString("45.00"),
		SourceType:  pricing.SourceProrated,
		Metadata:    map[string]any{"quantity": 2},
	}}}
	handler := testHandler(t, &fakeReporter{}, pricingSvc, &fakeEnqueuer{})

	rec := doRequest(t, handler, http.MethodGet, "/components/"+componentID.String()+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Entries []struct {
			SourceType string `json:"source_type"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Entries, 1)
	require.Equal(t, "prorated", payload.Entries[0].SourceType)
}

func TestManualPriceEndpoint(t *testing.T) {
	pricingSvc := &fakePricing{}
	handler := testHandler(t, &fakeReporter{}, pricingSvc, &fakeEnqueuer{})
	componentID := uuid.New()
	target := "/components/" + componentID.String() + "/manual-price"

	rec := doRequest(t, handler, http.MethodPost, target, []byte(`{"price":"77.00","note":"curated"}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, pricingSvc.manual, 1)
	require.Equal(t, componentID, pricingSvc.manual[0].componentID)
	require.Equal(t, "curated", pricingSvc.manual[0].note)

	rec = doRequest(t, handler, http.MethodPost, target, []byte(`{"price":"-5"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Len(t, pricingSvc.manual, 1)
}

func TestRecalculateEndpoint(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	handler := testHandler(t, &fakeReporter{}, &fakePricing{}, enqueuer)

	rec := doRequest(t, handler, http.MethodPost, "/pricing/recalculate", []byte(`{"reason":"price import"}`))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, []string{"price import"}, enqueuer.reasons)

	// Empty body defaults the reason.
	rec = doRequest(t, handler, http.MethodPost, "/pricing/recalculate", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "api", enqueuer.reasons[1])
}
