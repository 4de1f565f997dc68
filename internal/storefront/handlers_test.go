package storefront

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/storefront/internal/store"
)

type apiClient struct {
	t       *testing.T
	handler http.Handler
}

func (f *fixture) client(t *testing.T) *apiClient {
	return &apiClient{t: t, handler: f.svc.Handler()}
}

func (c *apiClient) do(method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(c.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	c.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func (c *apiClient) token(path, email, password string) string {
	c.t.Helper()
	rr := c.do(http.MethodPost, path, "", map[string]string{"email": email, "password": password})
	require.Equal(c.t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[TokenResponse](c.t, rr)
	assert.Equal(c.t, "bearer", resp.TokenType)
	return resp.AccessToken
}

func TestCheckoutScenario(t *testing.T) {
	f := newFixture(t, Options{})
	f.store.SeedProduct(store.Product{ID: 1, Name: "Widget", Price: 10, Description: "blue"})
	c := f.client(t)

	c.token("/user/signup", "a@x.com", "pw")
	tok := c.token("/user/login", "a@x.com", "pw")

	rr := c.do(http.MethodPost, "/user/cart/add", tok, map[string]int{"product_id": 1, "quantity": 2})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "Item added to cart", decode[MessageResponse](t, rr).Message)
	rr = c.do(http.MethodPost, "/user/cart/add", tok, map[string]int{"product_id": 1, "quantity": 3})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = c.do(http.MethodGet, "/user/cart", tok, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	cart := decode[[]store.CartItem](t, rr)
	require.Len(t, cart, 1)
	assert.Equal(t, 5, cart[0].Quantity)
	require.NotNil(t, cart[0].Product)
	assert.Equal(t, "Widget", cart[0].Product.Name)

	rr = c.do(http.MethodPost, "/user/orders", tok, map[string]interface{}{
		"items":        []map[string]int{{"product_id": 1, "quantity": 5}},
		"total_amount": 50.0,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	created := decode[OrderCreatedResponse](t, rr)
	assert.Equal(t, "Order created successfully", created.Message)
	assert.NotZero(t, created.OrderID)

	rr = c.do(http.MethodGet, "/user/cart", tok, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[[]store.CartItem](t, rr))

	rr = c.do(http.MethodGet, "/user/orders", tok, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	orders := decode[[]store.Order](t, rr)
	require.Len(t, orders, 1)
	assert.Equal(t, created.OrderID, orders[0].ID)
	assert.Equal(t, "pending", orders[0].Status)
	assert.InDelta(t, 50.0, orders[0].TotalAmount, 1e-9)
}

func TestAdminCatalogRoutes(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.client(t)
	tok := c.token("/signup", "admin@x.com", "pw")

	rr := c.do(http.MethodPost, "/products", tok, map[string]interface{}{"name": "Widget", "price": 9.99, "description": ""})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	product := decode[store.Product](t, rr)
	assert.Equal(t, "Widget", product.Name)

	rr = c.do(http.MethodPost, "/subscriptions", tok, map[string]interface{}{
		"name": "Pro", "price": 20, "duration": "monthly", "features": []string{"support"},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	plan := decode[store.SubscriptionPlan](t, rr)

	for _, path := range []string{"/products", "/user/products"} {
		rr = c.do(http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Len(t, decode[[]store.Product](t, rr), 1, path)
	}
	for _, path := range []string{"/subscriptions", "/user/subscriptions"} {
		rr = c.do(http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Len(t, decode[[]store.SubscriptionPlan](t, rr), 1, path)
	}

	rr = c.do(http.MethodDelete, "/products/"+itoa(product.ID), tok, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Product deleted", decode[MessageResponse](t, rr).Message)

	rr = c.do(http.MethodDelete, "/subscriptions/"+itoa(plan.ID), tok, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Subscription deleted", decode[MessageResponse](t, rr).Message)

	rr = c.do(http.MethodDelete, "/subscriptions/"+itoa(plan.ID), tok, nil)
	assert.Equal(t, http.StatusOK, rr.Code, "repeat delete is idempotent")
}

func TestAuthGate(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.client(t)

	expired, err := f.tokens.IssueWithTTL("a@x.com", "customer", -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		message string
	}{
		{"missing", "", "Authorization header missing"},
		{"one part", "Bearer", "Invalid authorization header format"},
		{"three parts", "Bearer a b", "Invalid authorization header format"},
		{"wrong scheme", "Basic abc", "Invalid authentication scheme"},
		{"garbage token", "Bearer not-a-token", "Invalid token"},
		{"expired", "bearer " + expired, "Invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/user/cart", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			c.handler.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			body := decode[map[string]interface{}](t, rr)
			assert.Equal(t, tt.message, body["error"])
		})
	}
}

func TestSignupConflictAndLoginFailureOverHTTP(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.client(t)
	c.token("/user/signup", "a@x.com", "pw")

	rr := c.do(http.MethodPost, "/user/signup", "", map[string]string{"email": "a@x.com", "password": "pw"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Email already registered", decode[map[string]interface{}](t, rr)["error"])

	wrong := c.do(http.MethodPost, "/user/login", "", map[string]string{"email": "a@x.com", "password": "bad"})
	unknown := c.do(http.MethodPost, "/user/login", "", map[string]string{"email": "b@x.com", "password": "pw"})
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, wrong.Code, unknown.Code)
	assert.JSONEq(t, wrong.Body.String(), unknown.Body.String())
}

func TestSignupLongPassword(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.client(t)
	long := strings.Repeat("p", 80)

	for _, space := range []struct{ signup, login string }{
		{"/signup", "/login"},
		{"/user/signup", "/user/login"},
	} {
		t.Run(space.signup, func(t *testing.T) {
			c.t = t
			assert.NotEmpty(t, c.token(space.signup, "long@x.com", long))
			assert.NotEmpty(t, c.token(space.login, "long@x.com", long))
		})
	}
}

func TestValidationFailures(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.client(t)
	admin := c.token("/signup", "admin@x.com", "pw")
	customer := c.token("/user/signup", "a@x.com", "pw")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
	}{
		{"empty signup body", http.MethodPost, "/signup", "", nil},
		{"malformed json", http.MethodPost, "/login", "", "{"},
		{"missing password", http.MethodPost, "/user/signup", "", map[string]string{"email": "x@x.com"}},
		{"product price missing", http.MethodPost, "/products", admin, map[string]string{"name": "a", "description": "d"}},
		{"product price wrong type", http.MethodPost, "/products", admin, `{"name":"a","price":"ten","description":"d"}`},
		{"plan features missing", http.MethodPost, "/subscriptions", admin, map[string]interface{}{"name": "a", "price": 1, "duration": "m"}},
		{"cart quantity zero", http.MethodPost, "/user/cart/add", customer, map[string]int{"product_id": 1, "quantity": 0}},
		{"cart without product id", http.MethodPost, "/user/cart/add", customer, map[string]int{"quantity": 1}},
		{"subscribe without id", http.MethodPost, "/user/subscribe", customer, map[string]int{}},
		{"order without total", http.MethodPost, "/user/orders", customer, map[string]interface{}{"items": []interface{}{}}},
		{"order item invalid", http.MethodPost, "/user/orders", customer, map[string]interface{}{
			"items": []map[string]int{{"product_id": 1, "quantity": -1}}, "total_amount": 1,
		}},
		{"non-integer product id", http.MethodDelete, "/products/abc", admin, nil},
		{"non-integer cart item id", http.MethodDelete, "/user/cart/abc", customer, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := c.do(tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())
			assert.Equal(t, "validation_failed", decode[map[string]interface{}](t, rr)["code"])
		})
	}
}

func TestSubscribeOverHTTP(t *testing.T) {
	f := newFixture(t, Options{})
	f.store.SeedPlan(store.SubscriptionPlan{ID: 3, Name: "Pro", Price: 20, Duration: "monthly", Features: []string{"x"}})
	c := f.client(t)
	tok := c.token("/user/signup", "a@x.com", "pw")

	rr := c.do(http.MethodPost, "/user/subscribe", tok, map[string]int{"subscription_id": 3})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[SubscribeResponse](t, rr)
	assert.Equal(t, "Subscribed successfully", resp.Message)
	require.NotNil(t, resp.Subscription)
	assert.Equal(t, "active", resp.Subscription.Status)

	rr = c.do(http.MethodPost, "/user/subscribe", tok, map[string]int{"subscription_id": 3})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Already subscribed to this plan", decode[map[string]interface{}](t, rr)["error"])

	rr = c.do(http.MethodPost, "/user/subscribe", tok, map[string]int{"subscription_id": 4})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// Zero is a well-formed id that matches no plan.
	rr = c.do(http.MethodPost, "/user/subscribe", tok, map[string]int{"subscription_id": 0})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Subscription plan not found", decode[map[string]interface{}](t, rr)["error"])

	rr = c.do(http.MethodGet, "/user/my-subscriptions", tok, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"subscriptions":{"name":"Pro"`)
}

func TestProfileOverHTTP(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.client(t)
	admin := c.token("/signup", "admin@x.com", "pw")

	rr := c.do(http.MethodGet, "/user/profile", admin, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"email":"admin@x.com","customer_found":false,"customer_data":[]}`, rr.Body.String())

	customer := c.token("/user/signup", "a@x.com", "pw")
	rr = c.do(http.MethodGet, "/user/profile", customer, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "password")
	assert.True(t, decode[Profile](t, rr).CustomerFound)
}

func TestUpstreamFailureOverHTTP(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.client(t)
	f.store.FailNext("ListProducts", assert.AnError)

	rr := c.do(http.MethodGet, "/products", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decode[map[string]interface{}](t, rr)
	assert.Equal(t, "upstream_failure", body["code"])
	assert.True(t, strings.HasPrefix(body["error"].(string), "Error: "))
}

func TestPrincipalEnforcement(t *testing.T) {
	t.Run("off by default", func(t *testing.T) {
		f := newFixture(t, Options{})
		c := f.client(t)
		customer := c.token("/user/signup", "a@x.com", "pw")

		rr := c.do(http.MethodPost, "/products", customer, map[string]interface{}{"name": "x", "price": 1, "description": "d"})
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("on", func(t *testing.T) {
		f := newFixture(t, Options{EnforcePrincipalTypes: true})
		c := f.client(t)
		customer := c.token("/user/signup", "a@x.com", "pw")
		admin := c.token("/signup", "admin@x.com", "pw")

		rr := c.do(http.MethodPost, "/products", customer, map[string]interface{}{"name": "x", "price": 1, "description": "d"})
		assert.Equal(t, http.StatusForbidden, rr.Code)

		rr = c.do(http.MethodGet, "/user/cart", admin, nil)
		assert.Equal(t, http.StatusForbidden, rr.Code)

		rr = c.do(http.MethodPost, "/products", admin, map[string]interface{}{"name": "x", "price": 1, "description": "d"})
		assert.Equal(t, http.StatusOK, rr.Code)
		rr = c.do(http.MethodGet, "/user/cart", customer, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestDebugRoutes(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		c := newFixture(t, Options{}).client(t)
		for _, path := range []string{"/test", "/debug/customers", "/debug/tables"} {
			assert.Equal(t, http.StatusNotFound, c.do(http.MethodGet, path, "", nil).Code, path)
		}
	})

	t.Run("enabled", func(t *testing.T) {
		f := newFixture(t, Options{EnableDebugRoutes: true})
		c := f.client(t)
		c.token("/user/signup", "a@x.com", "pw")

		rr := c.do(http.MethodGet, "/test", "", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "Server is running with latest code", decode[TestResponse](t, rr).Message)

		rr = c.do(http.MethodGet, "/debug/customers", "", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Len(t, decode[[]store.Customer](t, rr), 1)

		rr = c.do(http.MethodGet, "/debug/tables", "", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"customers":1,"products":0,"subscriptions":0,"customer_subscriptions_exists":true,"cart_items_exists":true}`, rr.Body.String())

		f.store.FailNext("CountRows", assert.AnError)
		rr = c.do(http.MethodGet, "/debug/tables", "", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, decode[map[string]interface{}](t, rr), "error")
	})
}

func TestHealthMetricsAndCORS(t *testing.T) {
	f := newFixture(t, Options{AllowedOrigins: []string{"http://localhost:3000"}})
	c := f.client(t)

	rr := c.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "healthy", decode[HealthResponse](t, rr).Status)
	assert.NotEmpty(t, rr.Header().Get("X-Trace-ID"))

	rr = c.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `storefront_http_requests_total{method="GET",path="/health"`)

	req := httptest.NewRequest(http.MethodOptions, "/user/cart/add", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	preflight := httptest.NewRecorder()
	c.handler.ServeHTTP(preflight, req)
	assert.Equal(t, http.StatusNoContent, preflight.Code)
	assert.Equal(t, "http://localhost:3000", preflight.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", preflight.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, Options{RateLimitRPS: 1, RateLimitBurst: 1})
	c := f.client(t)
	require.NotNil(t, f.svc.RateLimiter())

	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/health", "", nil).Code)
	rr := c.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
}

func TestRateLimit_ForwardedHeaders(t *testing.T) {
	get := func(h http.Handler, forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Forwarded-For", forwarded)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	t.Run("untrusted", func(t *testing.T) {
		h := newFixture(t, Options{RateLimitRPS: 1, RateLimitBurst: 1}).svc.Handler()
		assert.Equal(t, http.StatusOK, get(h, "10.0.0.1"))
		assert.Equal(t, http.StatusTooManyRequests, get(h, "10.0.0.2"), "rotating the header must not reset the limit")
	})

	t.Run("trusted proxy", func(t *testing.T) {
		h := newFixture(t, Options{RateLimitRPS: 1, RateLimitBurst: 1, TrustProxyHeaders: true}).svc.Handler()
		assert.Equal(t, http.StatusOK, get(h, "10.0.0.1"))
		assert.Equal(t, http.StatusOK, get(h, "10.0.0.2"))
		assert.Equal(t, http.StatusTooManyRequests, get(h, "10.0.0.1"))
	})
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
