// Package http serves the pricing read models: kit-pricing reports,
// per-retailer listing snapshots, component history, and the recompute
// trigger. Reports are cached in Redis and built under singleflight so a
// burst of identical requests costs one database pass.
package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kitworth/kitworth/internal/catalog"
	"github.com/kitworth/kitworth/internal/platform/httpx"
	"github.com/kitworth/kitworth/internal/pricing"
	"github.com/kitworth/kitworth/internal/pricing/report"
	"github.com/kitworth/kitworth/internal/shared"
)

// ReporterPort is the slice of the reporter the handlers need.
type ReporterPort interface {
	KitPricing(ctx context.Context, componentID uuid.UUID) ([]report.KitPricing, error)
	LatestListings(ctx context.Context, productID uuid.UUID, windowDays int) (map[uuid.UUID]catalog.PriceListing, error)
}

// PricingPort is the slice of the pricing service the handlers need.
type PricingPort interface {
	History(ctx context.Context, componentID uuid.UUID, page, perPage int) ([]pricing.HistoryEntry, shared.Pagination, error)
	RecordManualOverride(ctx context.Context, componentID uuid.UUID, price decimal.Decimal, note string) error
}

// Enqueuer schedules a full recompute run on the worker queue.
type Enqueuer interface {
	EnqueueRecalculate(ctx context.Context, reason string) error
}

// Handler wires the pricing endpoints.
type Handler struct {
	reporter ReporterPort
	pricing  PricingPort
	enqueuer Enqueuer
	cache    *Cache
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler constructs Handler. cache may be nil; reports are then built on
// every request.
func NewHandler(reporter ReporterPort, pricingSvc PricingPort, enqueuer Enqueuer, cache *Cache, logger *slog.Logger) *Handler {
	return &Handler{
		reporter: reporter,
		pricing:  pricingSvc,
		enqueuer: enqueuer,
		cache:    cache,
		validate: validator.New(),
		logger:   logger,
	}
}

// MountRoutes attaches pricing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/components/{componentID}/kit-pricing", h.kitPricing)
	r.Get("/components/{componentID}/history", h.history)
	r.Post("/components/{componentID}/manual-price", h.manualPrice)
	r.Get("/products/{productID}/listings", h.listings)
	r.Post("/pricing/recalculate", h.recalculate)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, pricing.ErrInvalidWindow):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, pricing.ErrBusy):
		httpx.Problem(w, http.StatusConflict, "Recompute In Progress", err.Error())
	default:
		h.logger.Error("pricing request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

type kitPricingView struct {
	ProductID          uuid.UUID           `json:"product_id"`
	ProductName        string              `json:"product_name"`
	Quantity           int                 `json:"quantity"`
	RetailerID         uuid.UUID           `json:"retailer_id"`
	ListingID          uuid.UUID           `json:"listing_id"`
	ListingPrice       decimal.Decimal     `json:"listing_price"`
	Currency           string              `json:"currency"`
	DatePulled         time.Time           `json:"date_pulled"`
	URL                string              `json:"url,omitempty"`
	EffectivePrice     decimal.Decimal     `json:"effective_price"`
	ListPrice          decimal.NullDecimal `json:"list_price"`
	DollarDiscount     decimal.Decimal     `json:"dollar_discount"`
	PercentageDiscount decimal.NullDecimal `json:"percentage_discount"`
	HasDiscount        bool                `json:"has_discount"`
}

func toKitPricingViews(rows []report.KitPricing) []kitPricingView {
	views := make([]kitPricingView, 0, len(rows))
	for _, row := range rows {
		views = append(views, kitPricingView{
			ProductID:          row.Product.ID,
			ProductName:        row.Product.Name,
			Quantity:           row.Edge.Quantity,
			RetailerID:         row.Listing.RetailerID,
			ListingID:          row.Listing.ID,
			ListingPrice:       row.Listing.Price,
			Currency:           row.Listing.Currency,
			DatePulled:         row.Listing.DatePulled,
			URL:                row.Listing.URL,
			EffectivePrice:     row.EffectivePrice,
			ListPrice:          row.ListPrice,
			DollarDiscount:     row.DollarDiscount,
			PercentageDiscount: row.PercentageDiscount,
			HasDiscount:        row.HasDiscount,
		})
	}
	return views
}

func (h *Handler) kitPricing(w http.ResponseWriter, r *http.Request) {
	componentID, err := uuid.Parse(chi.URLParam(r, "componentID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid component id")
		return
	}
	ctx := r.Context()
	key, err := h.cache.BuildKey(ctx, keyKitPricing(componentID)...)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	result, err, _ := singleflightBuild(ctx, key, func(ctx context.Context) (interface{}, error) {
		var views []kitPricingView
		err := h.cache.FetchJSON(ctx, key, &views, func(ctx context.Context) (interface{}, error) {
			rows, err := h.reporter.KitPricing(ctx, componentID)
			if err != nil {
				return nil, err
			}
			return toKitPricingViews(rows), nil
		})
		return views, err
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	views, _ := result.([]kitPricingView)
	if views == nil {
		views = []kitPricingView{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"component_id": componentID,
		"kits":         views,
	})
}

type historyEntryView struct {
	ID              uuid.UUID       `json:"id"`
	Price           decimal.Decimal `json:"price"`
	SourceType      string          `json:"source_type"`
	SourceProductID *uuid.UUID      `json:"source_product_id,omitempty"`
	SourceListingID *uuid.UUID      `json:"source_pricelisting_id,omitempty"`
	CalculatedAt    time.Time       `json:"calculated_at"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	componentID, err := uuid.Parse(chi.URLParam(r, "componentID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid component id")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	entries, pagination, err := h.pricing.History(r.Context(), componentID, page, perPage)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	views := make([]historyEntryView, 0, len(entries))
	for _, e := range entries {
		v := historyEntryView{
			ID:           e.ID,
			Price:        e.Price,
			SourceType:   string(e.SourceType),
			CalculatedAt: e.CalculatedAt,
			Metadata:     e.Metadata,
		}
		if e.SourceProductID.Valid {
			v.SourceProductID = &e.SourceProductID.UUID
		}
		if e.SourceListingID.Valid {
			v.SourceListingID = &e.SourceListingID.UUID
		}
		views = append(views, v)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"component_id": componentID,
		"entries":      views,
		"pagination":   pagination,
	})
}

type manualPriceRequest struct {
	Price decimal.Decimal `json:"price"`
	Note  string          `json:"note" validate:"max=500"`
}

func (h *Handler) manualPrice(w http.ResponseWriter, r *http.Request) {
	componentID, err := uuid.Parse(chi.URLParam(r, "componentID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid component id")
		return
	}
	var req manualPriceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if !req.Price.IsPositive() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "price must be positive")
		return
	}
	if err := h.pricing.RecordManualOverride(r.Context(), componentID, req.Price, req.Note); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"component_id": componentID,
		"price":        req.Price.Round(2),
	})
}

type listingView struct {
	RetailerID uuid.UUID       `json:"retailer_id"`
	ListingID  uuid.UUID       `json:"listing_id"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency"`
	DatePulled time.Time       `json:"date_pulled"`
	URL        string          `json:"url,omitempty"`
}

type listingsQuery struct {
	WindowDays int `validate:"gte=1,lte=365"`
}

func (h *Handler) listings(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	query := listingsQuery{WindowDays: pricing.ReporterFreshnessDays}
	if raw := r.URL.Query().Get("window_days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "window_days must be an integer")
			return
		}
		query.WindowDays = days
	}
	if err := h.validate.Struct(query); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "window_days must be between 1 and 365")
		return
	}

	ctx := r.Context()
	key, err := h.cache.BuildKey(ctx, keyListings(productID, query.WindowDays)...)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	var views []listingView
	err = h.cache.FetchJSON(ctx, key, &views, func(ctx context.Context) (interface{}, error) {
		latest, err := h.reporter.LatestListings(ctx, productID, query.WindowDays)
		if err != nil {
			return nil, err
		}
		return toListingViews(latest), nil
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if views == nil {
		views = []listingView{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"product_id":  productID,
		"window_days": query.WindowDays,
		"listings":    views,
	})
}

func toListingViews(latest map[uuid.UUID]catalog.PriceListing) []listingView {
	views := make([]listingView, 0, len(latest))
	for retailerID, listing := range latest {
		views = append(views, listingView{
			RetailerID: retailerID,
			ListingID:  listing.ID,
			Price:      listing.Price,
			Currency:   listing.Currency,
			DatePulled: listing.DatePulled,
			URL:        listing.URL,
		})
	}
	sort.Slice(views, func(i, j int) bool {
		if !views[i].DatePulled.Equal(views[j].DatePulled) {
			return views[i].DatePulled.After(views[j].DatePulled)
		}
		return views[i].RetailerID.String() < views[j].RetailerID.String()
	})
	return views
}

type recalculateRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=200"`
}

func (h *Handler) recalculate(w http.ResponseWriter, r *http.Request) {
	var req recalculateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if req.Reason == "" {
		req.Reason = "api"
	}
	if err := h.enqueuer.EnqueueRecalculate(r.Context(), req.Reason); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"status": "queued"})
}
