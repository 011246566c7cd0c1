package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ministore/api/internal/domain/discount"
)

type validateDiscountRequest struct {
	Code        string          `json:"code"`
	OrderAmount decimal.Decimal `json:"orderAmount"`
}

type validateDiscountResponse struct {
	IsValid        bool            `json:"isValid"`
	Message        string          `json:"message"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
}

// validateDiscountCode is the storefront pre-check: it reports whether a code
// would apply to an order of the given amount and what it would save. A
// rejected code is still a 200; only malformed input is an error. No usage
// slot is consumed here.
func (h *Handler) validateDiscountCode(w http.ResponseWriter, r *http.Request) {
	var req validateDiscountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	c, err := h.discounts.Validate(r.Context(), req.Code, req.OrderAmount)
	if err != nil {
		msg, known := rejectionMessage(err)
		if !known {
			internalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, validateDiscountResponse{
			IsValid:        false,
			Message:        msg,
			DiscountAmount: decimal.Zero,
		})
		return
	}

	writeJSON(w, http.StatusOK, validateDiscountResponse{
		IsValid:        true,
		Message:        "Discount code applied",
		DiscountAmount: discount.Compute(c, req.OrderAmount),
	})
}

// rejectionMessage translates a validation failure into a user-facing
// message. The second return is false for unexpected errors.
func rejectionMessage(err error) (string, bool) {
	var minOrder *discount.MinOrderNotMetError
	switch {
	case errors.Is(err, discount.ErrCodeNotFound):
		return "Invalid discount code", true
	case errors.Is(err, discount.ErrCodeExpired):
		return "Discount code has expired", true
	case errors.Is(err, discount.ErrCodeNotStarted):
		return "Discount code is not active yet", true
	case errors.Is(err, discount.ErrCodeInactive):
		return "Discount code is disabled", true
	case errors.Is(err, discount.ErrUsageLimitReached):
		return "Discount code usage limit reached", true
	case errors.As(err, &minOrder):
		return minOrder.Error(), true
	}
	return "", false
}

type activeDiscountResponse struct {
	Code              string          `json:"code"`
	Type              discount.Type   `json:"type"`
	Value             decimal.Decimal `json:"value"`
	MinOrderAmount    decimal.Decimal `json:"minOrderAmount"`
	MaxDiscountAmount decimal.Decimal `json:"maxDiscountAmount"`
	StartDate         time.Time       `json:"startDate"`
	EndDate           time.Time       `json:"endDate"`
}

func (h *Handler) listActiveDiscountCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := h.discounts.ListActive(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}

	resp := make([]activeDiscountResponse, len(codes))
	for i, c := range codes {
		resp[i] = activeDiscountResponse{
			Code:              c.Code,
			Type:              c.Type,
			Value:             c.Value,
			MinOrderAmount:    c.MinOrderAmount,
			MaxDiscountAmount: c.MaxDiscountAmount,
			StartDate:         c.StartDate,
			EndDate:           c.EndDate,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type adminDiscountResponse struct {
	ID                string          `json:"id"`
	Code              string          `json:"code"`
	Type              discount.Type   `json:"type"`
	Value             decimal.Decimal `json:"value"`
	MinOrderAmount    decimal.Decimal `json:"minOrderAmount"`
	MaxDiscountAmount decimal.Decimal `json:"maxDiscountAmount"`
	StartDate         time.Time       `json:"startDate"`
	EndDate           time.Time       `json:"endDate"`
	UsageLimit        int             `json:"usageLimit"`
	UsedCount         int             `json:"usedCount"`
	Active            bool            `json:"active"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

func toAdminDiscountResponse(c *discount.Code) adminDiscountResponse {
	return adminDiscountResponse{
		ID:                c.ID,
		Code:              c.Code,
		Type:              c.Type,
		Value:             c.Value,
		MinOrderAmount:    c.MinOrderAmount,
		MaxDiscountAmount: c.MaxDiscountAmount,
		StartDate:         c.StartDate,
		EndDate:           c.EndDate,
		UsageLimit:        c.UsageLimit,
		UsedCount:         c.UsedCount,
		Active:            c.Active,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

type upsertDiscountRequest struct {
	Code              string          `json:"code"`
	Type              discount.Type   `json:"type"`
	Value             decimal.Decimal `json:"value"`
	MinOrderAmount    decimal.Decimal `json:"minOrderAmount"`
	MaxDiscountAmount decimal.Decimal `json:"maxDiscountAmount"`
	StartDate         time.Time       `json:"startDate"`
	EndDate           time.Time       `json:"endDate"`
	UsageLimit        int             `json:"usageLimit"`
	Active            bool            `json:"active"`
}

func (req *upsertDiscountRequest) validate(requireCode bool) string {
	switch {
	case requireCode && req.Code == "":
		return "code is required"
	case req.Type != discount.TypePercentage && req.Type != discount.TypeFixedAmount:
		return "type must be PERCENTAGE or FIXED_AMOUNT"
	case !req.Value.IsPositive():
		return "value must be positive"
	case req.Type == discount.TypePercentage && req.Value.GreaterThan(decimal.NewFromInt(100)):
		return "percentage value cannot exceed 100"
	case req.MinOrderAmount.IsNegative():
		return "minOrderAmount cannot be negative"
	case req.MaxDiscountAmount.IsNegative():
		return "maxDiscountAmount cannot be negative"
	case req.UsageLimit < 0:
		return "usageLimit cannot be negative"
	case !req.EndDate.After(req.StartDate):
		return "endDate must be after startDate"
	}
	return ""
}

func (h *Handler) adminListDiscountCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := h.codes.List(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}

	resp := make([]adminDiscountResponse, len(codes))
	for i := range codes {
		resp[i] = toAdminDiscountResponse(&codes[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) adminCreateDiscountCode(w http.ResponseWriter, r *http.Request) {
	var req upsertDiscountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if msg := req.validate(true); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	now := time.Now().UTC()
	c := &discount.Code{
		ID:                uuid.New().String(),
		Code:              req.Code,
		Type:              req.Type,
		Value:             req.Value,
		MinOrderAmount:    req.MinOrderAmount,
		MaxDiscountAmount: req.MaxDiscountAmount,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		UsageLimit:        req.UsageLimit,
		Active:            req.Active,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := h.codes.Create(r.Context(), c); err != nil {
		internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAdminDiscountResponse(c))
}

func (h *Handler) adminUpdateDiscountCode(w http.ResponseWriter, r *http.Request) {
	var req upsertDiscountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if msg := req.validate(false); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	c := &discount.Code{
		ID:                r.PathValue("id"),
		Type:              req.Type,
		Value:             req.Value,
		MinOrderAmount:    req.MinOrderAmount,
		MaxDiscountAmount: req.MaxDiscountAmount,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		UsageLimit:        req.UsageLimit,
		Active:            req.Active,
	}
	if err := h.codes.Update(r.Context(), c); err != nil {
		if errors.Is(err, discount.ErrCodeNotFound) {
			writeError(w, http.StatusNotFound, "discount code not found")
			return
		}
		internalError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) adminDeactivateDiscountCode(w http.ResponseWriter, r *http.Request) {
	if err := h.codes.Deactivate(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, discount.ErrCodeNotFound) {
			writeError(w, http.StatusNotFound, "discount code not found")
			return
		}
		internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
