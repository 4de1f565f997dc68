// Package supabase implements store.Store over the PostgREST API of a Supabase project.
package supabase

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/R3E-Network/storefront/internal/store"
	"github.com/R3E-Network/storefront/supabase/client"
)

const (
	cartSelect       = "*, products(name, price, description)"
	enrollmentSelect = "*, subscriptions(name, price, duration, features)"
)

// Store is a store.Store backed by a Supabase project.
type Store struct {
	client *client.Client
}

var _ store.Store = (*Store)(nil)

// Config configures the Supabase backend.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	// Transport wraps outgoing requests, e.g. for metrics.
	Transport http.RoundTripper
}

// New creates a Supabase-backed store.
func New(cfg Config) (*Store, error) {
	var httpClient *http.Client
	if cfg.Transport != nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout, Transport: cfg.Transport}
	}
	c, err := client.New(client.Config{
		URL:        cfg.URL,
		APIKey:     cfg.APIKey,
		Timeout:    cfg.Timeout,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("supabase client: %w", err)
	}
	return &Store{client: c}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(c *client.Client) *Store {
	return &Store{client: c}
}

// row types carry the password column, which the domain types never serialize.

type adminRow struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r adminRow) toDomain() *store.AdminUser {
	return &store.AdminUser{ID: r.ID, Email: r.Email, PasswordHash: r.Password}
}

type customerRow struct {
	ID        int64      `json:"id"`
	Email     string     `json:"email"`
	Name      *string    `json:"name"`
	Password  string     `json:"password"`
	CreatedAt *time.Time `json:"created_at"`
}

func (r customerRow) toDomain() store.Customer {
	return store.Customer{ID: r.ID, Email: r.Email, Name: r.Name, PasswordHash: r.Password, CreatedAt: r.CreatedAt}
}

func selectRows(ctx context.Context, q *client.QueryBuilder, out any) error {
	resp, err := q.Execute(ctx)
	if err != nil {
		return err
	}
	if err := resp.Error(); err != nil {
		return err
	}
	if err := resp.JSON(out); err != nil {
		return fmt.Errorf("decode rows: %w", err)
	}
	return nil
}

// insertOne inserts payload and decodes the single returned row into out.
// An empty representation is store.ErrEmptyResult.
func insertOne[T any](ctx context.Context, q *client.QueryBuilder, payload any) (*T, error) {
	resp, err := q.ExecuteInsert(ctx, payload)
	if err != nil {
		return nil, err
	}
	if err := resp.Error(); err != nil {
		return nil, err
	}
	var rows []T
	if err := resp.JSON(&rows); err != nil {
		return nil, fmt.Errorf("decode inserted row: %w", err)
	}
	if len(rows) == 0 {
		return nil, store.ErrEmptyResult
	}
	return &rows[0], nil
}

func exec(resp *client.Response, err error) error {
	if err != nil {
		return err
	}
	return resp.Error()
}

// FindAdminByEmail implements store.AdminStore.
func (s *Store) FindAdminByEmail(ctx context.Context, email string) (*store.AdminUser, error) {
	var rows []adminRow
	if err := selectRows(ctx, s.client.From(store.TableUsers).Select("*").Eq("email", email).Limit(1), &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toDomain(), nil
}

// CreateAdmin implements store.AdminStore.
func (s *Store) CreateAdmin(ctx context.Context, email, passwordHash string) (*store.AdminUser, error) {
	row, err := insertOne[adminRow](ctx, s.client.From(store.TableUsers), map[string]any{
		"email":    email,
		"password": passwordHash,
	})
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// FindCustomerByEmail implements store.CustomerStore.
func (s *Store) FindCustomerByEmail(ctx context.Context, email string) (*store.Customer, error) {
	var rows []customerRow
	if err := selectRows(ctx, s.client.From(store.TableCustomers).Select("*").Eq("email", email).Limit(1), &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	c := rows[0].toDomain()
	return &c, nil
}

// CreateCustomer implements store.CustomerStore.
func (s *Store) CreateCustomer(ctx context.Context, c store.NewCustomer) (*store.Customer, error) {
	row, err := insertOne[customerRow](ctx, s.client.From(store.TableCustomers), map[string]any{
		"email":    c.Email,
		"password": c.PasswordHash,
		"name":     c.Name,
	})
	if err != nil {
		return nil, err
	}
	out := row.toDomain()
	return &out, nil
}

// ListCustomers implements store.CustomerStore.
func (s *Store) ListCustomers(ctx context.Context) ([]store.Customer, error) {
	var rows []customerRow
	if err := selectRows(ctx, s.client.From(store.TableCustomers).Select("*"), &rows); err != nil {
		return nil, err
	}
	out := make([]store.Customer, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// ListProducts implements store.CatalogStore.
func (s *Store) ListProducts(ctx context.Context) ([]store.Product, error) {
	rows := []store.Product{}
	if err := selectRows(ctx, s.client.From(store.TableProducts).Select("*"), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// CreateProduct implements store.CatalogStore.
func (s *Store) CreateProduct(ctx context.Context, p store.NewProduct) (*store.Product, error) {
	return insertOne[store.Product](ctx, s.client.From(store.TableProducts), map[string]any{
		"name":        p.Name,
		"price":       p.Price,
		"description": p.Description,
	})
}

// DeleteProduct implements store.CatalogStore.
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	return exec(s.client.From(store.TableProducts).Eq("id", id).ExecuteDelete(ctx))
}

// ListPlans implements store.CatalogStore.
func (s *Store) ListPlans(ctx context.Context) ([]store.SubscriptionPlan, error) {
	rows := []store.SubscriptionPlan{}
	if err := selectRows(ctx, s.client.From(store.TableSubscriptions).Select("*"), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// GetPlan implements store.CatalogStore.
func (s *Store) GetPlan(ctx context.Context, id int64) (*store.SubscriptionPlan, error) {
	var rows []store.SubscriptionPlan
	if err := selectRows(ctx, s.client.From(store.TableSubscriptions).Select("*").Eq("id", id), &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// CreatePlan implements store.CatalogStore.
func (s *Store) CreatePlan(ctx context.Context, p store.NewSubscriptionPlan) (*store.SubscriptionPlan, error) {
	features := p.Features
	if features == nil {
		features = []string{}
	}
	return insertOne[store.SubscriptionPlan](ctx, s.client.From(store.TableSubscriptions), map[string]any{
		"name":     p.Name,
		"price":    p.Price,
		"duration": p.Duration,
		"features": features,
	})
}

// DeletePlan implements store.CatalogStore.
func (s *Store) DeletePlan(ctx context.Context, id int64) error {
	return exec(s.client.From(store.TableSubscriptions).Eq("id", id).ExecuteDelete(ctx))
}

// FindEnrollment implements store.EnrollmentStore.
func (s *Store) FindEnrollment(ctx context.Context, customerID, planID int64) (*store.CustomerSubscription, error) {
	var rows []store.CustomerSubscription
	q := s.client.From(store.TableCustomerSubscriptions).Select("*").
		Eq("customer_id", customerID).
		Eq("subscription_id", planID)
	if err := selectRows(ctx, q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// CreateEnrollment implements store.EnrollmentStore.
func (s *Store) CreateEnrollment(ctx context.Context, customerID, planID int64, status string) (*store.CustomerSubscription, error) {
	return insertOne[store.CustomerSubscription](ctx, s.client.From(store.TableCustomerSubscriptions), map[string]any{
		"customer_id":     customerID,
		"subscription_id": planID,
		"status":          status,
	})
}

// ListEnrollments implements store.EnrollmentStore.
func (s *Store) ListEnrollments(ctx context.Context, customerID int64) ([]store.CustomerSubscription, error) {
	rows := []store.CustomerSubscription{}
	q := s.client.From(store.TableCustomerSubscriptions).Select(enrollmentSelect).Eq("customer_id", customerID)
	if err := selectRows(ctx, q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// FindCartItem implements store.CartStore.
func (s *Store) FindCartItem(ctx context.Context, customerID, productID int64) (*store.CartItem, error) {
	var rows []store.CartItem
	q := s.client.From(store.TableCartItems).Select("*").
		Eq("customer_id", customerID).
		Eq("product_id", productID)
	if err := selectRows(ctx, q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// CreateCartItem implements store.CartStore.
func (s *Store) CreateCartItem(ctx context.Context, customerID, productID int64, quantity int) (*store.CartItem, error) {
	return insertOne[store.CartItem](ctx, s.client.From(store.TableCartItems), map[string]any{
		"customer_id": customerID,
		"product_id":  productID,
		"quantity":    quantity,
	})
}

// UpdateCartItemQuantity implements store.CartStore.
func (s *Store) UpdateCartItemQuantity(ctx context.Context, itemID int64, quantity int) error {
	return exec(s.client.From(store.TableCartItems).Eq("id", itemID).
		ExecuteUpdate(ctx, map[string]any{"quantity": quantity}))
}

// ListCartItems implements store.CartStore.
func (s *Store) ListCartItems(ctx context.Context, customerID int64) ([]store.CartItem, error) {
	rows := []store.CartItem{}
	q := s.client.From(store.TableCartItems).Select(cartSelect).Eq("customer_id", customerID)
	if err := selectRows(ctx, q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteCartItem implements store.CartStore.
func (s *Store) DeleteCartItem(ctx context.Context, customerID, itemID int64) error {
	return exec(s.client.From(store.TableCartItems).
		Eq("id", itemID).
		Eq("customer_id", customerID).
		ExecuteDelete(ctx))
}

// ClearCart implements store.CartStore.
func (s *Store) ClearCart(ctx context.Context, customerID int64) error {
	return exec(s.client.From(store.TableCartItems).Eq("customer_id", customerID).ExecuteDelete(ctx))
}

// CreateOrder implements store.OrderStore.
func (s *Store) CreateOrder(ctx context.Context, customerID int64, totalAmount float64, status string) (*store.Order, error) {
	return insertOne[store.Order](ctx, s.client.From(store.TableOrders), map[string]any{
		"customer_id":  customerID,
		"total_amount": totalAmount,
		"status":       status,
	})
}

// CreateOrderItem implements store.OrderStore.
func (s *Store) CreateOrderItem(ctx context.Context, orderID, productID int64, quantity int) (*store.OrderItem, error) {
	return insertOne[store.OrderItem](ctx, s.client.From(store.TableOrderItems), map[string]any{
		"order_id":   orderID,
		"product_id": productID,
		"quantity":   quantity,
	})
}

// ListOrders implements store.OrderStore.
func (s *Store) ListOrders(ctx context.Context, customerID int64) ([]store.Order, error) {
	rows := []store.Order{}
	q := s.client.From(store.TableOrders).Select("*").
		Eq("customer_id", customerID).
		Order("created_at", false)
	if err := selectRows(ctx, q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// CountRows implements store.DiagnosticsStore with an exact-count HEAD request.
func (s *Store) CountRows(ctx context.Context, collection string) (int, error) {
	if !store.KnownCollection(collection) {
		return 0, store.ErrUnknownCollection
	}
	resp, err := s.client.From(collection).Select("*").Count("exact").Head().Execute(ctx)
	if err != nil {
		return 0, err
	}
	if err := resp.Error(); err != nil {
		return 0, err
	}
	return resp.Count()
}
