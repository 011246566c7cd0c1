package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/ministore/api/internal/domain/discount"
	"github.com/ministore/api/internal/domain/order"
)

type orderItemResponse struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

type orderResponse struct {
	ID              string                `json:"id"`
	OrderNumber     string                `json:"orderNumber"`
	UserID          string                `json:"userId"`
	Items           []orderItemResponse   `json:"items"`
	Subtotal        decimal.Decimal       `json:"subtotal"`
	DiscountCode    string                `json:"discountCode,omitempty"`
	DiscountAmount  decimal.Decimal       `json:"discountAmount"`
	Total           decimal.Decimal       `json:"total"`
	Status          order.Status          `json:"status"`
	ShippingAddress order.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string                `json:"paymentMethod"`
	Note            string                `json:"note,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemResponse{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		}
	}
	return orderResponse{
		ID:              o.ID,
		OrderNumber:     o.Number,
		UserID:          o.UserID,
		Items:           items,
		Subtotal:        o.Subtotal,
		DiscountCode:    o.DiscountCode,
		DiscountAmount:  o.DiscountAmount,
		Total:           o.Total,
		Status:          o.Status,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		Note:            o.Note,
		CreatedAt:       o.CreatedAt,
	}
}

type placeOrderRequest struct {
	DiscountCode    string                `json:"discountCode"`
	ShippingAddress order.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string                `json:"paymentMethod"`
	Note            string                `json:"note"`
}

func (req *placeOrderRequest) validate() string {
	addr := req.ShippingAddress
	switch {
	case addr.FullName == "":
		return "shippingAddress.fullName is required"
	case addr.Phone == "":
		return "shippingAddress.phone is required"
	case addr.Address == "":
		return "shippingAddress.address is required"
	case addr.City == "":
		return "shippingAddress.city is required"
	}
	return ""
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	info, _ := identityFrom(r.Context())

	var req placeOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "COD"
	}

	o, err := h.placement.PlaceOrder(r.Context(), order.PlaceRequest{
		UserID:          info.UserID,
		DiscountCode:    req.DiscountCode,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Note:            req.Note,
	})
	if err != nil {
		writeOrderError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// writeOrderError maps placement failures to status codes. Discount
// rejections are client errors; anything unrecognized is a 500.
func writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	var minOrder *discount.MinOrderNotMetError
	switch {
	case errors.Is(err, order.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, "cart is empty")
	case errors.Is(err, discount.ErrCodeNotFound),
		errors.Is(err, discount.ErrCodeExpired),
		errors.Is(err, discount.ErrCodeNotStarted),
		errors.Is(err, discount.ErrCodeInactive),
		errors.Is(err, discount.ErrUsageLimitReached):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &minOrder):
		writeError(w, http.StatusUnprocessableEntity, minOrder.Error())
	default:
		internalError(w, r, err)
	}
}

func (h *Handler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	info, _ := identityFrom(r.Context())

	orders, err := h.orders.ListByUser(r.Context(), info.UserID)
	if err != nil {
		internalError(w, r, err)
		return
	}

	resp := make([]orderResponse, len(orders))
	for i := range orders {
		resp[i] = toOrderResponse(&orders[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	info, _ := identityFrom(r.Context())

	o, err := h.orders.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		internalError(w, r, err)
		return
	}
	// Another user's order is indistinguishable from a missing one.
	if o.UserID != info.UserID {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) adminListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}

	resp := make([]orderResponse, len(orders))
	for i := range orders {
		resp[i] = toOrderResponse(&orders[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

type updateOrderStatusRequest struct {
	Status order.Status `json:"status"`
}

func (h *Handler) adminUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateOrderStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown order status")
		return
	}

	o, err := h.placement.UpdateStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		var invalid *order.InvalidTransitionError
		switch {
		case errors.Is(err, order.ErrNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.As(err, &invalid):
			writeError(w, http.StatusConflict, invalid.Error())
		default:
			internalError(w, r, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o))
}
