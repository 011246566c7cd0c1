// Package handler exposes the storefront and admin HTTP API. Handlers decode
// requests, delegate to the domain layer, and map domain errors to status
// codes; they hold no business rules of their own.
package handler

import (
	"net/http"

	"github.com/ministore/api/internal/domain/auth"
	"github.com/ministore/api/internal/domain/cart"
	"github.com/ministore/api/internal/domain/discount"
	"github.com/ministore/api/internal/domain/order"
	"github.com/ministore/api/internal/domain/product"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// APIKeyPepper is the HMAC secret applied to incoming API keys before
	// the hash lookup. Rotating it invalidates every issued key.
	APIKeyPepper string
	// ImageBaseURL is prepended to relative image paths in product
	// responses. When empty, paths are returned as stored.
	ImageBaseURL string
}

// Handler wires the HTTP surface to the domain layer.
type Handler struct {
	products  product.Repository
	carts     cart.Repository
	orders    order.Repository
	placement *order.PlacementService
	discounts *discount.Registry
	codes     discount.Repository
	apikeys   auth.Repository

	pepper       []byte
	imageBaseURL string
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg Config,
	products product.Repository,
	carts cart.Repository,
	orders order.Repository,
	placement *order.PlacementService,
	discounts *discount.Registry,
	codes discount.Repository,
	apikeys auth.Repository,
) *Handler {
	return &Handler{
		products:     products,
		carts:        carts,
		orders:       orders,
		placement:    placement,
		discounts:    discounts,
		codes:        codes,
		apikeys:      apikeys,
		pepper:       []byte(cfg.APIKeyPepper),
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Routes returns the API mux. The catalog and discount validation endpoints
// are public; cart and order endpoints require an API key; the /api/admin
// surface additionally requires the admin scope.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Public storefront.
	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/products/{id}", h.getProduct)
	mux.HandleFunc("POST /api/discount-codes/validate", h.validateDiscountCode)
	mux.HandleFunc("GET /api/discount-codes/active", h.listActiveDiscountCodes)

	// Authenticated storefront.
	mux.Handle("GET /api/cart", h.secured(h.getCart))
	mux.Handle("POST /api/cart/items", h.secured(h.addCartItem))
	mux.Handle("PUT /api/cart/items/{productId}", h.secured(h.updateCartItem))
	mux.Handle("DELETE /api/cart/items/{productId}", h.secured(h.removeCartItem))
	mux.Handle("DELETE /api/cart", h.secured(h.clearCart))

	mux.Handle("POST /api/orders", h.secured(h.placeOrder))
	mux.Handle("GET /api/orders", h.secured(h.listMyOrders))
	mux.Handle("GET /api/orders/{id}", h.secured(h.getOrder))

	// Admin.
	mux.Handle("GET /api/admin/discount-codes", h.admin(h.adminListDiscountCodes))
	mux.Handle("POST /api/admin/discount-codes", h.admin(h.adminCreateDiscountCode))
	mux.Handle("PUT /api/admin/discount-codes/{id}", h.admin(h.adminUpdateDiscountCode))
	mux.Handle("DELETE /api/admin/discount-codes/{id}", h.admin(h.adminDeactivateDiscountCode))
	mux.Handle("GET /api/admin/orders", h.admin(h.adminListOrders))
	mux.Handle("PUT /api/admin/orders/{id}/status", h.admin(h.adminUpdateOrderStatus))

	return mux
}

func (h *Handler) secured(fn http.HandlerFunc) http.Handler {
	return h.authenticate(fn)
}

func (h *Handler) admin(fn http.HandlerFunc) http.Handler {
	return h.authenticate(h.requireScope(auth.ScopeAdmin, fn))
}
