package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/ministore/api/internal/domain/cart"
	"github.com/ministore/api/internal/domain/product"
)

type cartItemResponse struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

type cartResponse struct {
	Items    []cartItemResponse `json:"items"`
	Subtotal decimal.Decimal    `json:"subtotal"`
}

func toCartResponse(snap *cart.Snapshot) cartResponse {
	items := make([]cartItemResponse, len(snap.Items))
	for i, it := range snap.Items {
		qty := decimal.NewFromInt(int64(it.Quantity))
		items[i] = cartItemResponse{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			LineTotal:   it.UnitPrice.Mul(qty),
		}
	}
	return cartResponse{Items: items, Subtotal: snap.Subtotal()}
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	info, _ := identityFrom(r.Context())

	snap, err := h.carts.Snapshot(r.Context(), info.UserID)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(snap))
}

type addCartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	info, _ := identityFrom(r.Context())

	var req addCartItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "productId is required")
		return
	}
	if req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "quantity must be greater than 0")
		return
	}

	if err := h.carts.AddItem(r.Context(), info.UserID, req.ProductID, req.Quantity); err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeError(w, http.StatusUnprocessableEntity, "product not found")
			return
		}
		internalError(w, r, err)
		return
	}

	h.respondWithCart(w, r, info.UserID)
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	info, _ := identityFrom(r.Context())

	var req updateCartItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "quantity must be greater than 0")
		return
	}

	err := h.carts.SetQuantity(r.Context(), info.UserID, r.PathValue("productId"), req.Quantity)
	if err != nil {
		if errors.Is(err, cart.ErrItemNotFound) {
			writeError(w, http.StatusNotFound, "item not in cart")
			return
		}
		internalError(w, r, err)
		return
	}

	h.respondWithCart(w, r, info.UserID)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	info, _ := identityFrom(r.Context())

	err := h.carts.RemoveItem(r.Context(), info.UserID, r.PathValue("productId"))
	if err != nil {
		if errors.Is(err, cart.ErrItemNotFound) {
			writeError(w, http.StatusNotFound, "item not in cart")
			return
		}
		internalError(w, r, err)
		return
	}

	h.respondWithCart(w, r, info.UserID)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	info, _ := identityFrom(r.Context())

	if err := h.carts.Clear(r.Context(), info.UserID); err != nil {
		internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondWithCart answers a mutation with the cart's new state, saving the
// client a follow-up GET.
func (h *Handler) respondWithCart(w http.ResponseWriter, r *http.Request, userID string) {
	snap, err := h.carts.Snapshot(r.Context(), userID)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(snap))
}
