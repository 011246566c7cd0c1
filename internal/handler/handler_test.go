package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ministore/api/internal/domain/auth"
	"github.com/ministore/api/internal/domain/cart"
	"github.com/ministore/api/internal/domain/discount"
	"github.com/ministore/api/internal/domain/order"
	"github.com/ministore/api/internal/domain/product"
)

// --- Mock implementations ---

type mockProductRepo struct {
	products []product.Product
	listErr  error
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	return m.products, m.listErr
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	for i := range m.products {
		if m.products[i].ID == id {
			return &m.products[i], nil
		}
	}
	return nil, product.ErrNotFound
}

type mockCartRepo struct {
	products *mockProductRepo
	items    map[string][]cart.Item
}

func newMockCartRepo(products *mockProductRepo) *mockCartRepo {
	return &mockCartRepo{products: products, items: make(map[string][]cart.Item)}
}

func (m *mockCartRepo) Snapshot(_ context.Context, userID string) (*cart.Snapshot, error) {
	return &cart.Snapshot{
		UserID:  userID,
		Items:   m.items[userID],
		TakenAt: time.Now(),
	}, nil
}

func (m *mockCartRepo) Clear(_ context.Context, userID string) error {
	delete(m.items, userID)
	return nil
}

func (m *mockCartRepo) AddItem(ctx context.Context, userID, productID string, quantity int) error {
	p, err := m.products.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	for i, it := range m.items[userID] {
		if it.ProductID == productID {
			m.items[userID][i].Quantity += quantity
			return nil
		}
	}
	m.items[userID] = append(m.items[userID], cart.Item{
		ProductID:   p.ID,
		ProductName: p.Name,
		Quantity:    quantity,
		UnitPrice:   p.Price,
	})
	return nil
}

func (m *mockCartRepo) SetQuantity(_ context.Context, userID, productID string, quantity int) error {
	for i, it := range m.items[userID] {
		if it.ProductID == productID {
			m.items[userID][i].Quantity = quantity
			return nil
		}
	}
	return cart.ErrItemNotFound
}

func (m *mockCartRepo) RemoveItem(_ context.Context, userID, productID string) error {
	items := m.items[userID]
	for i, it := range items {
		if it.ProductID == productID {
			m.items[userID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return cart.ErrItemNotFound
}

type mockDiscountRepo struct {
	mu    sync.Mutex
	codes map[string]*discount.Code // keyed by ID
}

func newMockDiscountRepo(codes ...*discount.Code) *mockDiscountRepo {
	m := &mockDiscountRepo{codes: make(map[string]*discount.Code)}
	for _, c := range codes {
		m.codes[c.ID] = c
	}
	return m
}

func (m *mockDiscountRepo) FindByCode(_ context.Context, code string) (*discount.Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.codes {
		if c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, discount.ErrCodeNotFound
}

func (m *mockDiscountRepo) ListActive(_ context.Context, now time.Time) ([]discount.Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []discount.Code
	for _, c := range m.codes {
		if c.Active && !c.NotStarted(now) && !c.Expired(now) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockDiscountRepo) Reserve(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[id]
	if !ok {
		return discount.ErrUsageLimitReached
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return discount.ErrUsageLimitReached
	}
	c.UsedCount++
	return nil
}

func (m *mockDiscountRepo) Release(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.codes[id]; ok && c.UsedCount > 0 {
		c.UsedCount--
	}
	return nil
}

func (m *mockDiscountRepo) Create(_ context.Context, c *discount.Code) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[c.ID] = c
	return nil
}

func (m *mockDiscountRepo) Update(_ context.Context, c *discount.Code) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.codes[c.ID]
	if !ok {
		return discount.ErrCodeNotFound
	}
	c.Code = existing.Code
	c.UsedCount = existing.UsedCount
	m.codes[c.ID] = c
	return nil
}

func (m *mockDiscountRepo) Deactivate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[id]
	if !ok {
		return discount.ErrCodeNotFound
	}
	c.Active = false
	return nil
}

func (m *mockDiscountRepo) List(_ context.Context) ([]discount.Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]discount.Code, 0, len(m.codes))
	for _, c := range m.codes {
		out = append(out, *c)
	}
	return out, nil
}

type mockOrderRepo struct {
	orders    map[string]*order.Order
	createErr error
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[string]*order.Order)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.orders[o.ID] = o
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	var out []order.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) List(_ context.Context) ([]order.Order, error) {
	out := make([]order.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, status order.Status) error {
	o, ok := m.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = status
	return nil
}

type mockAPIKeyRepo struct {
	byHash map[string]*auth.APIKeyInfo
}

func (m *mockAPIKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := m.byHash[hash]
	if !ok {
		return nil, errors.New("key not found")
	}
	return info, nil
}

// --- Helpers ---

const testPepper = "test-pepper"

func keyHash(key string) string {
	mac := hmac.New(sha256.New, []byte(testPepper))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

type fixture struct {
	mux      *http.ServeMux
	products *mockProductRepo
	carts    *mockCartRepo
	orders   *mockOrderRepo
	codes    *mockDiscountRepo
}

func newFixture(codes ...*discount.Code) *fixture {
	products := &mockProductRepo{products: []product.Product{
		{ID: "p1", Name: "Keyboard", Price: decimal.NewFromInt(200000), Category: "peripherals", Stock: 10},
		{ID: "p2", Name: "Mouse", Price: decimal.NewFromInt(100000), Category: "peripherals", Stock: 10},
	}}
	carts := newMockCartRepo(products)
	orders := newMockOrderRepo()
	codeRepo := newMockDiscountRepo(codes...)
	registry := discount.NewRegistry(codeRepo)
	placement := order.NewPlacementService(carts, registry, orders)

	apikeys := &mockAPIKeyRepo{byHash: map[string]*auth.APIKeyInfo{
		keyHash("alice-key"): {ID: "k1", KeyHash: keyHash("alice-key"), UserID: "alice", Name: "alice"},
		keyHash("bob-key"):   {ID: "k2", KeyHash: keyHash("bob-key"), UserID: "bob", Name: "bob"},
		keyHash("admin-key"): {ID: "k3", KeyHash: keyHash("admin-key"), UserID: "root", Name: "admin", Scopes: []string{auth.ScopeAdmin}},
	}}

	h := NewHandler(Config{APIKeyPepper: testPepper},
		products, carts, orders, placement, registry, codeRepo, apikeys)
	return &fixture{
		mux:      h.Routes(),
		products: products,
		carts:    carts,
		orders:   orders,
		codes:    codeRepo,
	}
}

func (f *fixture) do(t *testing.T, method, path, apiKey string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func welcome10() *discount.Code {
	return &discount.Code{
		ID:                "dc1",
		Code:              "WELCOME10",
		Type:              discount.TypePercentage,
		Value:             decimal.NewFromInt(10),
		MinOrderAmount:    decimal.NewFromInt(100000),
		MaxDiscountAmount: decimal.NewFromInt(50000),
		StartDate:         time.Now().Add(-time.Hour),
		EndDate:           time.Now().Add(24 * time.Hour),
		UsageLimit:        100,
		Active:            true,
	}
}

// --- Tests ---

func TestAuthentication(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/api/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/cart", "wrong-key", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/cart", "alice-key", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthentication_BearerToken(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.Header.Set("Authorization", "Bearer alice-key")
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminScope(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/api/admin/orders", "alice-key", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/admin/orders", "admin-key", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListProducts_Public(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []productResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "Keyboard", resp[0].Name)
}

func TestCartFlow(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/cart/items", "alice-key",
		addCartItemRequest{ProductID: "p1", Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp cartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 2, resp.Items[0].Quantity)
	assert.True(t, resp.Subtotal.Equal(decimal.NewFromInt(400000)), "subtotal %s", resp.Subtotal)

	rec = f.do(t, http.MethodPut, "/api/cart/items/p1", "alice-key",
		updateCartItemRequest{Quantity: 1})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/cart/items/p1", "alice-key", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Items)
}

func TestCart_Validation(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/cart/items", "alice-key",
		addCartItemRequest{ProductID: "p1", Quantity: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/cart/items", "alice-key",
		addCartItemRequest{ProductID: "ghost", Quantity: 1})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/cart/items/ghost", "alice-key",
		updateCartItemRequest{Quantity: 3})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func validOrderBody() placeOrderRequest {
	return placeOrderRequest{
		ShippingAddress: order.ShippingAddress{
			FullName: "Alice Nguyen",
			Phone:    "0900000001",
			Address:  "1 Main St",
			City:     "Hanoi",
		},
	}
}

func TestPlaceOrder(t *testing.T) {
	f := newFixture(welcome10())
	f.carts.items["alice"] = []cart.Item{
		{ProductID: "p1", ProductName: "Keyboard", Quantity: 3, UnitPrice: decimal.NewFromInt(200000)},
	}

	body := validOrderBody()
	body.DiscountCode = "WELCOME10"
	rec := f.do(t, http.MethodPost, "/api/orders", "alice-key", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Regexp(t, `^ORD-[0-9A-F]{8}$`, resp.OrderNumber)
	assert.Equal(t, order.StatusPending, resp.Status)
	assert.True(t, resp.Subtotal.Equal(decimal.NewFromInt(600000)))
	// 10% of 600000 is 60000, capped at 50000.
	assert.True(t, resp.DiscountAmount.Equal(decimal.NewFromInt(50000)), "discount %s", resp.DiscountAmount)
	assert.True(t, resp.Total.Equal(decimal.NewFromInt(550000)))
	assert.Equal(t, "COD", resp.PaymentMethod)

	// Placement cleared the cart.
	assert.Empty(t, f.carts.items["alice"])
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/orders", "alice-key", validOrderBody())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceOrder_MissingAddress(t *testing.T) {
	f := newFixture()
	f.carts.items["alice"] = []cart.Item{
		{ProductID: "p1", ProductName: "Keyboard", Quantity: 1, UnitPrice: decimal.NewFromInt(200000)},
	}

	body := validOrderBody()
	body.ShippingAddress.Phone = ""
	rec := f.do(t, http.MethodPost, "/api/orders", "alice-key", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceOrder_RejectedCode(t *testing.T) {
	f := newFixture(welcome10())
	f.carts.items["alice"] = []cart.Item{
		{ProductID: "p2", ProductName: "Mouse", Quantity: 1, UnitPrice: decimal.NewFromInt(50000)},
	}

	// 50000 is below the code's 100000 minimum.
	body := validOrderBody()
	body.DiscountCode = "WELCOME10"
	rec := f.do(t, http.MethodPost, "/api/orders", "alice-key", body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// The cart is untouched after a rejection.
	assert.Len(t, f.carts.items["alice"], 1)
}

func TestGetOrder_Ownership(t *testing.T) {
	f := newFixture()
	f.carts.items["alice"] = []cart.Item{
		{ProductID: "p1", ProductName: "Keyboard", Quantity: 1, UnitPrice: decimal.NewFromInt(200000)},
	}

	rec := f.do(t, http.MethodPost, "/api/orders", "alice-key", validOrderBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = f.do(t, http.MethodGet, "/api/orders/"+created.ID, "alice-key", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Bob sees a 404, not a 403, for Alice's order.
	rec = f.do(t, http.MethodGet, "/api/orders/"+created.ID, "bob-key", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidateDiscountCode(t *testing.T) {
	f := newFixture(welcome10())

	rec := f.do(t, http.MethodPost, "/api/discount-codes/validate", "",
		validateDiscountRequest{Code: "WELCOME10", OrderAmount: decimal.NewFromInt(600000)})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp validateDiscountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.IsValid)
	assert.True(t, resp.DiscountAmount.Equal(decimal.NewFromInt(50000)), "discount %s", resp.DiscountAmount)
}

func TestValidateDiscountCode_Unknown(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/discount-codes/validate", "",
		validateDiscountRequest{Code: "NOPE", OrderAmount: decimal.NewFromInt(600000)})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp validateDiscountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.IsValid)
	assert.Equal(t, "Invalid discount code", resp.Message)
	assert.True(t, resp.DiscountAmount.IsZero())
}

func TestAdminDiscountCRUD(t *testing.T) {
	f := newFixture()

	create := upsertDiscountRequest{
		Code:       "SUMMER20",
		Type:       discount.TypePercentage,
		Value:      decimal.NewFromInt(20),
		StartDate:  time.Now().Add(-time.Hour),
		EndDate:    time.Now().Add(24 * time.Hour),
		UsageLimit: 10,
		Active:     true,
	}
	rec := f.do(t, http.MethodPost, "/api/admin/discount-codes", "admin-key", create)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created adminDiscountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	update := create
	update.Value = decimal.NewFromInt(25)
	rec = f.do(t, http.MethodPut, "/api/admin/discount-codes/"+created.ID, "admin-key", update)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/admin/discount-codes/"+created.ID, "admin-key", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/admin/discount-codes/missing", "admin-key", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminCreateDiscount_Validation(t *testing.T) {
	f := newFixture()

	bad := upsertDiscountRequest{
		Code:      "BROKEN",
		Type:      discount.Type("BOGO"),
		Value:     decimal.NewFromInt(1),
		StartDate: time.Now(),
		EndDate:   time.Now().Add(time.Hour),
	}
	rec := f.do(t, http.MethodPost, "/api/admin/discount-codes", "admin-key", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminUpdateOrderStatus(t *testing.T) {
	f := newFixture()
	f.carts.items["alice"] = []cart.Item{
		{ProductID: "p1", ProductName: "Keyboard", Quantity: 1, UnitPrice: decimal.NewFromInt(200000)},
	}
	rec := f.do(t, http.MethodPost, "/api/orders", "alice-key", validOrderBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = f.do(t, http.MethodPut, "/api/admin/orders/"+created.ID+"/status", "admin-key",
		updateOrderStatusRequest{Status: order.StatusConfirmed})
	require.Equal(t, http.StatusOK, rec.Code)

	// A confirmed order cannot move back to PENDING.
	rec = f.do(t, http.MethodPut, "/api/admin/orders/"+created.ID+"/status", "admin-key",
		updateOrderStatusRequest{Status: order.StatusPending})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/admin/orders/"+created.ID+"/status", "admin-key",
		updateOrderStatusRequest{Status: order.Status("LOST")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/admin/orders/missing/status", "admin-key",
		updateOrderStatusRequest{Status: order.StatusConfirmed})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
