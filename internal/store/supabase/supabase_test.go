package supabase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/storefront/internal/store"
)

type recorded struct {
	method string
	path   string
	query  map[string]string
	body   map[string]any
}

type fakePostgREST struct {
	mu       sync.Mutex
	requests []recorded
	respond  func(w http.ResponseWriter, r *http.Request)
}

func (f *fakePostgREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := recorded{method: r.Method, path: r.URL.Path, query: map[string]string{}}
	for k, v := range r.URL.Query() {
		rec.query[k] = v[0]
	}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &rec.body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()
	f.respond(w, r)
}

func (f *fakePostgREST) last() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestStore(t *testing.T, respond func(w http.ResponseWriter, r *http.Request)) (*Store, *fakePostgREST) {
	t.Helper()
	fake := &fakePostgREST{respond: respond}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	s, err := New(Config{URL: srv.URL, APIKey: "service-key"})
	require.NoError(t, err)
	return s, fake
}

func writeJSON(body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestFindCustomerByEmail(t *testing.T) {
	s, fake := newTestStore(t, writeJSON(`[{"id":4,"email":"a@x.com","name":null,"password":"$2a$hash"}]`))

	c, err := s.FindCustomerByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, int64(4), c.ID)
	assert.Equal(t, "$2a$hash", c.PasswordHash)
	assert.Nil(t, c.Name)

	req := fake.last()
	assert.Equal(t, "/rest/v1/customers", req.path)
	assert.Equal(t, "eq.a@x.com", req.query["email"])
	assert.Equal(t, "1", req.query["limit"])
}

func TestFindCustomerByEmail_NoRow(t *testing.T) {
	s, _ := newTestStore(t, writeJSON(`[]`))
	c, err := s.FindCustomerByEmail(context.Background(), "b@x.com")
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestListCartItems_NestsProducts(t *testing.T) {
	s, fake := newTestStore(t, writeJSON(`[{"id":9,"customer_id":1,"product_id":2,"quantity":5,
		"products":{"name":"Widget","price":10,"description":"w"}}]`))

	items, err := s.ListCartItems(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)
	require.NotNil(t, items[0].Product)
	assert.Equal(t, "Widget", items[0].Product.Name)

	req := fake.last()
	assert.Equal(t, cartSelect, req.query["select"])
	assert.Equal(t, "eq.1", req.query["customer_id"])
}

func TestListEnrollments_NestsPlan(t *testing.T) {
	s, fake := newTestStore(t, writeJSON(`[{"id":1,"customer_id":1,"subscription_id":3,"status":"active",
		"subscriptions":{"name":"Pro","price":9.5,"duration":"monthly","features":["a","b"]}}]`))

	rows, err := s.ListEnrollments(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Plan)
	assert.Equal(t, []string{"a", "b"}, rows[0].Plan.Features)
	assert.Equal(t, enrollmentSelect, fake.last().query["select"])
}

func TestListOrders_OrderedByCreatedAtDesc(t *testing.T) {
	s, fake := newTestStore(t, writeJSON(`[{"id":2,"customer_id":1,"total_amount":50,"status":"pending","created_at":"2026-01-02T00:00:00Z"}]`))

	orders, err := s.ListOrders(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, store.OrderStatusPending, orders[0].Status)
	assert.Equal(t, "created_at.desc", fake.last().query["order"])
}

func TestCreateOrder_EmptyRepresentation(t *testing.T) {
	s, fake := newTestStore(t, writeJSON(`[]`))

	_, err := s.CreateOrder(context.Background(), 1, 50, store.OrderStatusPending)
	assert.ErrorIs(t, err, store.ErrEmptyResult)

	req := fake.last()
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "pending", req.body["status"])
	assert.Equal(t, 50.0, req.body["total_amount"])
}

func TestDeleteCartItem_ScopedByCustomer(t *testing.T) {
	s, fake := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, s.DeleteCartItem(context.Background(), 1, 9))
	req := fake.last()
	assert.Equal(t, http.MethodDelete, req.method)
	assert.Equal(t, "eq.9", req.query["id"])
	assert.Equal(t, "eq.1", req.query["customer_id"])
}

func TestUpdateCartItemQuantity(t *testing.T) {
	s, fake := newTestStore(t, writeJSON(`[]`))

	require.NoError(t, s.UpdateCartItemQuantity(context.Background(), 9, 5))
	req := fake.last()
	assert.Equal(t, http.MethodPatch, req.method)
	assert.Equal(t, "eq.9", req.query["id"])
	assert.Equal(t, 5.0, req.body["quantity"])
}

func TestUpstreamErrorPropagates(t *testing.T) {
	s, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"relation does not exist"}`))
	})

	_, err := s.ListProducts(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relation does not exist")
}

func TestCountRows(t *testing.T) {
	s, fake := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "0-2/3")
	})

	n, err := s.CountRows(context.Background(), store.TableProducts)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, http.MethodHead, fake.last().method)

	_, err = s.CountRows(context.Background(), "pg_shadow")
	assert.ErrorIs(t, err, store.ErrUnknownCollection)
}
