package storefront

import (
	"time"

	"github.com/R3E-Network/storefront/internal/store"
)

// =============================================================================
// Request Types
// =============================================================================

// SignupRequest is the body of POST /signup and POST /user/signup. Name is
// only stored for customers.
type SignupRequest struct {
	Email    string  `json:"email" validate:"required"`
	Password string  `json:"password" validate:"required"`
	Name     *string `json:"name,omitempty"`
}

// LoginRequest is the body of POST /login and POST /user/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ProductRequest is the body of POST /products.
type ProductRequest struct {
	Name        string   `json:"name" validate:"required"`
	Price       *float64 `json:"price" validate:"required"`
	Description *string  `json:"description" validate:"required"`
}

// PlanRequest is the body of POST /subscriptions.
type PlanRequest struct {
	Name     string   `json:"name" validate:"required"`
	Price    *float64 `json:"price" validate:"required"`
	Duration string   `json:"duration" validate:"required"`
	Features []string `json:"features" validate:"required"`
}

// CartItemRequest is the body of POST /user/cart/add and one line of an order.
type CartItemRequest struct {
	ProductID *int64 `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

// SubscribeRequest is the body of POST /user/subscribe.
type SubscribeRequest struct {
	SubscriptionID *int64 `json:"subscription_id" validate:"required"`
}

// OrderRequest is the body of POST /user/orders.
type OrderRequest struct {
	Items       []CartItemRequest `json:"items" validate:"required,dive"`
	TotalAmount *float64          `json:"total_amount" validate:"required"`
}

func (r OrderRequest) lineItems() []LineItem {
	items := make([]LineItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, LineItem{ProductID: *it.ProductID, Quantity: it.Quantity})
	}
	return items
}

// =============================================================================
// Response Types
// =============================================================================

// TokenResponse is returned by every signup and login route.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// MessageResponse acknowledges a write.
type MessageResponse struct {
	Message string `json:"message"`
}

// SubscribeResponse is returned by POST /user/subscribe.
type SubscribeResponse struct {
	Message      string                      `json:"message"`
	Subscription *store.CustomerSubscription `json:"subscription"`
}

// OrderCreatedResponse is returned by POST /user/orders.
type OrderCreatedResponse struct {
	Message string `json:"message"`
	OrderID int64  `json:"order_id"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// TestResponse is returned by GET /test.
type TestResponse struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
