// Package store defines the storefront's data access facade.
//
// Every method is a single filtered select, insert, update or delete against one
// collection. Nothing here is transactional across calls: each call commits on its own.
// Find* and Get* methods return (nil, nil) when no row matches.
package store

import (
	"context"
	"errors"
	"time"
)

// Collection names as they exist in the relational store.
const (
	TableUsers                 = "users"
	TableCustomers             = "customers"
	TableProducts              = "products"
	TableSubscriptions         = "subscriptions"
	TableCustomerSubscriptions = "customer_subscriptions"
	TableCartItems             = "cart_items"
	TableOrders                = "orders"
	TableOrderItems            = "order_items"
)

// Status values written by this layer.
const (
	EnrollmentStatusActive = "active"
	OrderStatusPending     = "pending"
)

var (
	// ErrEmptyResult is returned when an insert or update reports success but returns no row.
	ErrEmptyResult = errors.New("store returned no rows")
	// ErrUnknownCollection is returned by CountRows for a name outside the schema.
	ErrUnknownCollection = errors.New("unknown collection")
)

// AdminUser is an account in the admin identity space.
type AdminUser struct {
	ID           int64  `json:"id,omitempty" db:"id"`
	Email        string `json:"email" db:"email"`
	PasswordHash string `json:"-" db:"password"`
}

// Customer is an account in the customer identity space.
type Customer struct {
	ID           int64      `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	Name         *string    `json:"name" db:"name"`
	PasswordHash string     `json:"-" db:"password"`
	CreatedAt    *time.Time `json:"created_at,omitempty" db:"created_at"`
}

// NewCustomer is the insert payload for a customer.
type NewCustomer struct {
	Email        string
	PasswordHash string
	Name         *string
}

// Product is a catalog entry.
type Product struct {
	ID          int64   `json:"id" db:"id"`
	Name        string  `json:"name" db:"name"`
	Price       float64 `json:"price" db:"price"`
	Description string  `json:"description" db:"description"`
}

// NewProduct is the insert payload for a product.
type NewProduct struct {
	Name        string
	Price       float64
	Description string
}

// SubscriptionPlan is a purchasable plan.
type SubscriptionPlan struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Price    float64  `json:"price"`
	Duration string   `json:"duration"`
	Features []string `json:"features"`
}

// NewSubscriptionPlan is the insert payload for a plan.
type NewSubscriptionPlan struct {
	Name     string
	Price    float64
	Duration string
	Features []string
}

// PlanSummary is the plan detail nested into enrollment reads.
type PlanSummary struct {
	Name     string   `json:"name"`
	Price    float64  `json:"price"`
	Duration string   `json:"duration"`
	Features []string `json:"features"`
}

// CustomerSubscription is an enrollment of a customer in a plan.
type CustomerSubscription struct {
	ID             int64        `json:"id"`
	CustomerID     int64        `json:"customer_id"`
	SubscriptionID int64        `json:"subscription_id"`
	Status         string       `json:"status"`
	CreatedAt      *time.Time   `json:"created_at,omitempty"`
	Plan           *PlanSummary `json:"subscriptions,omitempty"`
}

// ProductSummary is the product detail nested into cart reads.
type ProductSummary struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
}

// CartItem is one line of a customer's cart.
type CartItem struct {
	ID         int64           `json:"id"`
	CustomerID int64           `json:"customer_id"`
	ProductID  int64           `json:"product_id"`
	Quantity   int             `json:"quantity"`
	Product    *ProductSummary `json:"products,omitempty"`
}

// Order is a checkout record.
type Order struct {
	ID          int64     `json:"id" db:"id"`
	CustomerID  int64     `json:"customer_id" db:"customer_id"`
	TotalAmount float64   `json:"total_amount" db:"total_amount"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	ID        int64 `json:"id" db:"id"`
	OrderID   int64 `json:"order_id" db:"order_id"`
	ProductID int64 `json:"product_id" db:"product_id"`
	Quantity  int   `json:"quantity" db:"quantity"`
}

// AdminStore covers the users collection.
type AdminStore interface {
	FindAdminByEmail(ctx context.Context, email string) (*AdminUser, error)
	CreateAdmin(ctx context.Context, email, passwordHash string) (*AdminUser, error)
}

// CustomerStore covers the customers collection.
type CustomerStore interface {
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	CreateCustomer(ctx context.Context, c NewCustomer) (*Customer, error)
	ListCustomers(ctx context.Context) ([]Customer, error)
}

// CatalogStore covers products and subscription plans.
type CatalogStore interface {
	ListProducts(ctx context.Context) ([]Product, error)
	CreateProduct(ctx context.Context, p NewProduct) (*Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	ListPlans(ctx context.Context) ([]SubscriptionPlan, error)
	GetPlan(ctx context.Context, id int64) (*SubscriptionPlan, error)
	CreatePlan(ctx context.Context, p NewSubscriptionPlan) (*SubscriptionPlan, error)
	DeletePlan(ctx context.Context, id int64) error
}

// EnrollmentStore covers customer_subscriptions.
type EnrollmentStore interface {
	FindEnrollment(ctx context.Context, customerID, planID int64) (*CustomerSubscription, error)
	CreateEnrollment(ctx context.Context, customerID, planID int64, status string) (*CustomerSubscription, error)
	// ListEnrollments returns the customer's enrollments with plan details nested.
	ListEnrollments(ctx context.Context, customerID int64) ([]CustomerSubscription, error)
}

// CartStore covers cart_items.
type CartStore interface {
	FindCartItem(ctx context.Context, customerID, productID int64) (*CartItem, error)
	CreateCartItem(ctx context.Context, customerID, productID int64, quantity int) (*CartItem, error)
	UpdateCartItemQuantity(ctx context.Context, itemID int64, quantity int) error
	// ListCartItems returns the customer's cart with product details nested.
	ListCartItems(ctx context.Context, customerID int64) ([]CartItem, error)
	// DeleteCartItem removes itemID only if it belongs to customerID.
	DeleteCartItem(ctx context.Context, customerID, itemID int64) error
	ClearCart(ctx context.Context, customerID int64) error
}

// OrderStore covers orders and order_items.
type OrderStore interface {
	CreateOrder(ctx context.Context, customerID int64, totalAmount float64, status string) (*Order, error)
	CreateOrderItem(ctx context.Context, orderID, productID int64, quantity int) (*OrderItem, error)
	// ListOrders returns the customer's orders, newest first.
	ListOrders(ctx context.Context, customerID int64) ([]Order, error)
}

// DiagnosticsStore backs the debug routes.
type DiagnosticsStore interface {
	CountRows(ctx context.Context, collection string) (int, error)
}

// Store is the complete data access facade.
type Store interface {
	AdminStore
	CustomerStore
	CatalogStore
	EnrollmentStore
	CartStore
	OrderStore
	DiagnosticsStore
}

// KnownCollection reports whether name is one of the schema's collections.
func KnownCollection(name string) bool {
	switch name {
	case TableUsers, TableCustomers, TableProducts, TableSubscriptions,
		TableCustomerSubscriptions, TableCartItems, TableOrders, TableOrderItems:
		return true
	}
	return false
}
