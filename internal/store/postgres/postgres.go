// Package postgres implements store.Store directly over PostgreSQL.
//
// Each method runs one statement in autocommit mode, so multi-step workflows
// built on top of it have the same partial-failure behaviour as the PostgREST
// backend.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/R3E-Network/storefront/internal/store"
)

// Store is a store.Store backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing *sql.DB.
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

// DB exposes the underlying handle for migrations.
func (s *Store) DB() *sql.DB {
	return s.db.DB
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

type planRow struct {
	ID       int64          `db:"id"`
	Name     string         `db:"name"`
	Price    float64        `db:"price"`
	Duration string         `db:"duration"`
	Features pq.StringArray `db:"features"`
}

func (r planRow) toDomain() store.SubscriptionPlan {
	features := []string(r.Features)
	if features == nil {
		features = []string{}
	}
	return store.SubscriptionPlan{ID: r.ID, Name: r.Name, Price: r.Price, Duration: r.Duration, Features: features}
}

type enrollmentRow struct {
	ID             int64      `db:"id"`
	CustomerID     int64      `db:"customer_id"`
	SubscriptionID int64      `db:"subscription_id"`
	Status         string     `db:"status"`
	CreatedAt      *time.Time `db:"created_at"`

	PlanName     sql.NullString  `db:"plan_name"`
	PlanPrice    sql.NullFloat64 `db:"plan_price"`
	PlanDuration sql.NullString  `db:"plan_duration"`
	PlanFeatures pq.StringArray  `db:"plan_features"`
}

func (r enrollmentRow) toDomain() store.CustomerSubscription {
	out := store.CustomerSubscription{
		ID:             r.ID,
		CustomerID:     r.CustomerID,
		SubscriptionID: r.SubscriptionID,
		Status:         r.Status,
		CreatedAt:      r.CreatedAt,
	}
	if r.PlanName.Valid {
		features := []string(r.PlanFeatures)
		if features == nil {
			features = []string{}
		}
		out.Plan = &store.PlanSummary{
			Name:     r.PlanName.String,
			Price:    r.PlanPrice.Float64,
			Duration: r.PlanDuration.String,
			Features: features,
		}
	}
	return out
}

type cartRow struct {
	ID         int64 `db:"id"`
	CustomerID int64 `db:"customer_id"`
	ProductID  int64 `db:"product_id"`
	Quantity   int   `db:"quantity"`

	ProductName        sql.NullString  `db:"product_name"`
	ProductPrice       sql.NullFloat64 `db:"product_price"`
	ProductDescription sql.NullString  `db:"product_description"`
}

func (r cartRow) toDomain() store.CartItem {
	out := store.CartItem{ID: r.ID, CustomerID: r.CustomerID, ProductID: r.ProductID, Quantity: r.Quantity}
	if r.ProductName.Valid {
		out.Product = &store.ProductSummary{
			Name:        r.ProductName.String,
			Price:       r.ProductPrice.Float64,
			Description: r.ProductDescription.String,
		}
	}
	return out
}

// getOne runs a single-row query. No row is reported as (false, nil).
func (s *Store) getOne(ctx context.Context, dest any, query string, args ...any) (bool, error) {
	err := s.db.GetContext(ctx, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// insertReturning runs an INSERT ... RETURNING statement. No row is store.ErrEmptyResult.
func (s *Store) insertReturning(ctx context.Context, dest any, query string, args ...any) error {
	ok, err := s.getOne(ctx, dest, query, args...)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrEmptyResult
	}
	return nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

const (
	adminColumns    = `id, email, password`
	customerColumns = `id, email, password, name, created_at`
	productColumns  = `id, name, price, description`
	planColumns     = `id, name, price, duration, features`
	orderColumns    = `id, customer_id, total_amount, status, created_at`
)

// FindAdminByEmail implements store.AdminStore.
func (s *Store) FindAdminByEmail(ctx context.Context, email string) (*store.AdminUser, error) {
	var a store.AdminUser
	ok, err := s.getOne(ctx, &a, `SELECT `+adminColumns+` FROM users WHERE email = $1 LIMIT 1`, email)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// CreateAdmin implements store.AdminStore.
func (s *Store) CreateAdmin(ctx context.Context, email, passwordHash string) (*store.AdminUser, error) {
	var a store.AdminUser
	err := s.insertReturning(ctx, &a,
		`INSERT INTO users (email, password) VALUES ($1, $2) RETURNING `+adminColumns,
		email, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("insert users: %w", err)
	}
	return &a, nil
}

// FindCustomerByEmail implements store.CustomerStore.
func (s *Store) FindCustomerByEmail(ctx context.Context, email string) (*store.Customer, error) {
	var c store.Customer
	ok, err := s.getOne(ctx, &c, `SELECT `+customerColumns+` FROM customers WHERE email = $1 LIMIT 1`, email)
	if err != nil {
		return nil, fmt.Errorf("select customers: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// CreateCustomer implements store.CustomerStore.
func (s *Store) CreateCustomer(ctx context.Context, nc store.NewCustomer) (*store.Customer, error) {
	var c store.Customer
	err := s.insertReturning(ctx, &c,
		`INSERT INTO customers (email, password, name) VALUES ($1, $2, $3) RETURNING `+customerColumns,
		nc.Email, nc.PasswordHash, nc.Name)
	if err != nil {
		return nil, fmt.Errorf("insert customers: %w", err)
	}
	return &c, nil
}

// ListCustomers implements store.CustomerStore.
func (s *Store) ListCustomers(ctx context.Context) ([]store.Customer, error) {
	out := []store.Customer{}
	if err := s.db.SelectContext(ctx, &out, `SELECT `+customerColumns+` FROM customers ORDER BY id`); err != nil {
		return nil, fmt.Errorf("select customers: %w", err)
	}
	return out, nil
}

// ListProducts implements store.CatalogStore.
func (s *Store) ListProducts(ctx context.Context) ([]store.Product, error) {
	out := []store.Product{}
	if err := s.db.SelectContext(ctx, &out, `SELECT `+productColumns+` FROM products ORDER BY id`); err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	return out, nil
}

// CreateProduct implements store.CatalogStore.
func (s *Store) CreateProduct(ctx context.Context, p store.NewProduct) (*store.Product, error) {
	var out store.Product
	err := s.insertReturning(ctx, &out,
		`INSERT INTO products (name, price, description) VALUES ($1, $2, $3) RETURNING `+productColumns,
		p.Name, p.Price, p.Description)
	if err != nil {
		return nil, fmt.Errorf("insert products: %w", err)
	}
	return &out, nil
}

// DeleteProduct implements store.CatalogStore.
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.exec(ctx, `DELETE FROM products WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete products: %w", err)
	}
	return nil
}

// ListPlans implements store.CatalogStore.
func (s *Store) ListPlans(ctx context.Context) ([]store.SubscriptionPlan, error) {
	var rows []planRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+planColumns+` FROM subscriptions ORDER BY id`); err != nil {
		return nil, fmt.Errorf("select subscriptions: %w", err)
	}
	out := make([]store.SubscriptionPlan, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// GetPlan implements store.CatalogStore.
func (s *Store) GetPlan(ctx context.Context, id int64) (*store.SubscriptionPlan, error) {
	var r planRow
	ok, err := s.getOne(ctx, &r, `SELECT `+planColumns+` FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("select subscriptions: %w", err)
	}
	if !ok {
		return nil, nil
	}
	p := r.toDomain()
	return &p, nil
}

// CreatePlan implements store.CatalogStore.
func (s *Store) CreatePlan(ctx context.Context, p store.NewSubscriptionPlan) (*store.SubscriptionPlan, error) {
	features := p.Features
	if features == nil {
		features = []string{}
	}
	var r planRow
	err := s.insertReturning(ctx, &r,
		`INSERT INTO subscriptions (name, price, duration, features) VALUES ($1, $2, $3, $4) RETURNING `+planColumns,
		p.Name, p.Price, p.Duration, pq.Array(features))
	if err != nil {
		return nil, fmt.Errorf("insert subscriptions: %w", err)
	}
	out := r.toDomain()
	return &out, nil
}

// DeletePlan implements store.CatalogStore.
func (s *Store) DeletePlan(ctx context.Context, id int64) error {
	if err := s.exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete subscriptions: %w", err)
	}
	return nil
}

// FindEnrollment implements store.EnrollmentStore.
func (s *Store) FindEnrollment(ctx context.Context, customerID, planID int64) (*store.CustomerSubscription, error) {
	var r enrollmentRow
	ok, err := s.getOne(ctx, &r,
		`SELECT id, customer_id, subscription_id, status, created_at
		   FROM customer_subscriptions
		  WHERE customer_id = $1 AND subscription_id = $2
		  LIMIT 1`,
		customerID, planID)
	if err != nil {
		return nil, fmt.Errorf("select customer_subscriptions: %w", err)
	}
	if !ok {
		return nil, nil
	}
	out := r.toDomain()
	return &out, nil
}

// CreateEnrollment implements store.EnrollmentStore.
func (s *Store) CreateEnrollment(ctx context.Context, customerID, planID int64, status string) (*store.CustomerSubscription, error) {
	var r enrollmentRow
	err := s.insertReturning(ctx, &r,
		`INSERT INTO customer_subscriptions (customer_id, subscription_id, status)
		 VALUES ($1, $2, $3)
		 RETURNING id, customer_id, subscription_id, status, created_at`,
		customerID, planID, status)
	if err != nil {
		return nil, fmt.Errorf("insert customer_subscriptions: %w", err)
	}
	out := r.toDomain()
	return &out, nil
}

// ListEnrollments implements store.EnrollmentStore.
func (s *Store) ListEnrollments(ctx context.Context, customerID int64) ([]store.CustomerSubscription, error) {
	var rows []enrollmentRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT cs.id, cs.customer_id, cs.subscription_id, cs.status, cs.created_at,
		        p.name AS plan_name, p.price AS plan_price, p.duration AS plan_duration, p.features AS plan_features
		   FROM customer_subscriptions cs
		   LEFT JOIN subscriptions p ON p.id = cs.subscription_id
		  WHERE cs.customer_id = $1
		  ORDER BY cs.id`,
		customerID)
	if err != nil {
		return nil, fmt.Errorf("select customer_subscriptions: %w", err)
	}
	out := make([]store.CustomerSubscription, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// FindCartItem implements store.CartStore.
func (s *Store) FindCartItem(ctx context.Context, customerID, productID int64) (*store.CartItem, error) {
	var r cartRow
	ok, err := s.getOne(ctx, &r,
		`SELECT id, customer_id, product_id, quantity
		   FROM cart_items
		  WHERE customer_id = $1 AND product_id = $2
		  LIMIT 1`,
		customerID, productID)
	if err != nil {
		return nil, fmt.Errorf("select cart_items: %w", err)
	}
	if !ok {
		return nil, nil
	}
	out := r.toDomain()
	return &out, nil
}

// CreateCartItem implements store.CartStore.
func (s *Store) CreateCartItem(ctx context.Context, customerID, productID int64, quantity int) (*store.CartItem, error) {
	var r cartRow
	err := s.insertReturning(ctx, &r,
		`INSERT INTO cart_items (customer_id, product_id, quantity)
		 VALUES ($1, $2, $3)
		 RETURNING id, customer_id, product_id, quantity`,
		customerID, productID, quantity)
	if err != nil {
		return nil, fmt.Errorf("insert cart_items: %w", err)
	}
	out := r.toDomain()
	return &out, nil
}

// UpdateCartItemQuantity implements store.CartStore.
func (s *Store) UpdateCartItemQuantity(ctx context.Context, itemID int64, quantity int) error {
	if err := s.exec(ctx, `UPDATE cart_items SET quantity = $1 WHERE id = $2`, quantity, itemID); err != nil {
		return fmt.Errorf("update cart_items: %w", err)
	}
	return nil
}

// ListCartItems implements store.CartStore.
func (s *Store) ListCartItems(ctx context.Context, customerID int64) ([]store.CartItem, error) {
	var rows []cartRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT c.id, c.customer_id, c.product_id, c.quantity,
		        p.name AS product_name, p.price AS product_price, p.description AS product_description
		   FROM cart_items c
		   LEFT JOIN products p ON p.id = c.product_id
		  WHERE c.customer_id = $1
		  ORDER BY c.id`,
		customerID)
	if err != nil {
		return nil, fmt.Errorf("select cart_items: %w", err)
	}
	out := make([]store.CartItem, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// DeleteCartItem implements store.CartStore.
func (s *Store) DeleteCartItem(ctx context.Context, customerID, itemID int64) error {
	if err := s.exec(ctx, `DELETE FROM cart_items WHERE id = $1 AND customer_id = $2`, itemID, customerID); err != nil {
		return fmt.Errorf("delete cart_items: %w", err)
	}
	return nil
}

// ClearCart implements store.CartStore.
func (s *Store) ClearCart(ctx context.Context, customerID int64) error {
	if err := s.exec(ctx, `DELETE FROM cart_items WHERE customer_id = $1`, customerID); err != nil {
		return fmt.Errorf("delete cart_items: %w", err)
	}
	return nil
}

// CreateOrder implements store.OrderStore.
func (s *Store) CreateOrder(ctx context.Context, customerID int64, totalAmount float64, status string) (*store.Order, error) {
	var o store.Order
	err := s.insertReturning(ctx, &o,
		`INSERT INTO orders (customer_id, total_amount, status) VALUES ($1, $2, $3) RETURNING `+orderColumns,
		customerID, totalAmount, status)
	if err != nil {
		return nil, fmt.Errorf("insert orders: %w", err)
	}
	return &o, nil
}

// CreateOrderItem implements store.OrderStore.
func (s *Store) CreateOrderItem(ctx context.Context, orderID, productID int64, quantity int) (*store.OrderItem, error) {
	var it store.OrderItem
	err := s.insertReturning(ctx, &it,
		`INSERT INTO order_items (order_id, product_id, quantity) VALUES ($1, $2, $3)
		 RETURNING id, order_id, product_id, quantity`,
		orderID, productID, quantity)
	if err != nil {
		return nil, fmt.Errorf("insert order_items: %w", err)
	}
	return &it, nil
}

// ListOrders implements store.OrderStore.
func (s *Store) ListOrders(ctx context.Context, customerID int64) ([]store.Order, error) {
	out := []store.Order{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+orderColumns+` FROM orders WHERE customer_id = $1 ORDER BY created_at DESC, id DESC`,
		customerID)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	return out, nil
}

// CountRows implements store.DiagnosticsStore. The table name is checked
// against the fixed schema before it is interpolated.
func (s *Store) CountRows(ctx context.Context, collection string) (int, error) {
	if !store.KnownCollection(collection) {
		return 0, store.ErrUnknownCollection
	}
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM `+pq.QuoteIdentifier(collection)); err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}
