package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kitworth/kitworth/internal/platform/httpx"
)

// Handler serves the catalog browse endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs Handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	h.logger.Error("catalog request failed", slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

// MountRoutes attaches catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/components", h.listComponents)
	r.Get("/components/{componentID}", h.getComponent)
	r.Get("/products/{productID}", h.getProduct)
	r.Get("/brands", h.listBrands)
	r.Get("/retailers", h.listRetailers)
}

type componentView struct {
	ID                 uuid.UUID           `json:"id"`
	Name               string              `json:"name"`
	Description        string              `json:"description,omitempty"`
	BrandID            *uuid.UUID          `json:"brand_id,omitempty"`
	SKU                string              `json:"sku,omitempty"`
	IsAccessory        bool                `json:"is_accessory"`
	IsFeatured         bool                `json:"is_featured"`
	StandalonePrice    decimal.NullDecimal `json:"standalone_price"`
	UseManualPrice     bool                `json:"use_manual_price"`
	AuthoritativePrice decimal.NullDecimal `json:"authoritative_price"`
	CalculatedPrice    decimal.NullDecimal `json:"calculated_price"`
	LastCalculatedAt   *time.Time          `json:"last_calculated_date,omitempty"`
	SourceProductID    *uuid.UUID          `json:"price_source_product_id,omitempty"`
	SourceListingID    *uuid.UUID          `json:"price_source_pricelisting_id,omitempty"`
}

func toComponentView(c Component) componentView {
	v := componentView{
		ID:                 c.ID,
		Name:               c.Name,
		Description:        c.Description,
		SKU:                c.SKU,
		IsAccessory:        c.IsAccessory,
		IsFeatured:         c.IsFeatured,
		StandalonePrice:    c.StandalonePrice,
		UseManualPrice:     c.UseManualPrice,
		AuthoritativePrice: c.AuthoritativePrice(),
		CalculatedPrice:    c.CalculatedPrice,
	}
	if c.BrandID.Valid {
		v.BrandID = &c.BrandID.UUID
	}
	if !c.LastCalculatedAt.IsZero() {
		t := c.LastCalculatedAt
		v.LastCalculatedAt = &t
	}
	if c.PriceSourceProductID.Valid {
		v.SourceProductID = &c.PriceSourceProductID.UUID
	}
	if c.PriceSourceListingID.Valid {
		v.SourceListingID = &c.PriceSourceListingID.UUID
	}
	return v
}

func (h *Handler) listComponents(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	components, pagination, err := h.service.Components(r.Context(), page, perPage)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	views := make([]componentView, 0, len(components))
	for _, c := range components {
		views = append(views, toComponentView(c))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"components": views,
		"pagination": pagination,
	})
}

func (h *Handler) getComponent(w http.ResponseWriter, r *http.Request) {
	componentID, err := uuid.Parse(chi.URLParam(r, "componentID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid component id")
		return
	}
	component, err := h.service.Component(r.Context(), componentID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toComponentView(component))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	product, err := h.service.Product(r.Context(), productID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) listBrands(w http.ResponseWriter, r *http.Request) {
	brands, err := h.service.Brands(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, brands)
}

func (h *Handler) listRetailers(w http.ResponseWriter, r *http.Request) {
	retailers, err := h.service.Retailers(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, retailers)
}
