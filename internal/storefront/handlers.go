package storefront

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/storefront/internal/errors"
	"github.com/R3E-Network/storefront/internal/httputil"
	"github.com/R3E-Network/storefront/internal/middleware"
	"github.com/R3E-Network/storefront/internal/store"
)

// =============================================================================
// Helpers
// =============================================================================

// pathID parses the named path variable as a row id. It writes a 422 and
// returns false when the value is not an integer.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		httputil.WriteError(w, r, errors.Validation(fmt.Sprintf("invalid %s", name), err).WithDetails(name, raw))
		return 0, false
	}
	return id, true
}

// identity returns the authenticated subject. Protected routes always run
// behind the auth gate, so an empty value means the router is miswired.
func identity(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := middleware.GetUserID(r.Context())
	if id == "" {
		httputil.Unauthorized(w, "Authorization header missing")
		return "", false
	}
	return id, true
}

func writeToken(w http.ResponseWriter, tok string) {
	httputil.WriteJSON(w, http.StatusOK, TokenResponse{AccessToken: tok, TokenType: "bearer"})
}

func writeMessage(w http.ResponseWriter, msg string) {
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

// =============================================================================
// Accounts
// =============================================================================

func (s *Service) handleAdminSignup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	tok, err := s.SignupAdmin(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	writeToken(w, tok)
}

func (s *Service) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	tok, err := s.LoginAdmin(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	writeToken(w, tok)
}

func (s *Service) handleCustomerSignup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	tok, err := s.SignupCustomer(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	writeToken(w, tok)
}

func (s *Service) handleCustomerLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	tok, err := s.LoginCustomer(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	writeToken(w, tok)
}

// =============================================================================
// Catalog
// =============================================================================

func (s *Service) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.ListProducts(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, products)
}

func (s *Service) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	created, err := s.CreateProduct(r.Context(), store.NewProduct{
		Name:        req.Name,
		Price:       *req.Price,
		Description: *req.Description,
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, created)
}

func (s *Service) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.DeleteProduct(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	writeMessage(w, "Product deleted")
}

func (s *Service) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.ListPlans(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, plans)
}

func (s *Service) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	created, err := s.CreatePlan(r.Context(), store.NewSubscriptionPlan{
		Name:     req.Name,
		Price:    *req.Price,
		Duration: req.Duration,
		Features: req.Features,
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, created)
}

func (s *Service) handleDeletePlan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.DeletePlan(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	writeMessage(w, "Subscription deleted")
}

// =============================================================================
// Customer
// =============================================================================

func (s *Service) handleProfile(w http.ResponseWriter, r *http.Request) {
	email, ok := identity(w, r)
	if !ok {
		return
	}
	profile, err := s.Profile(r.Context(), email)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

func (s *Service) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	email, ok := identity(w, r)
	if !ok {
		return
	}
	var req CartItemRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if err := s.AddToCart(r.Context(), email, *req.ProductID, req.Quantity); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	writeMessage(w, "Item added to cart")
}

func (s *Service) handleGetCart(w http.ResponseWriter, r *http.Request) {
	email, ok := identity(w, r)
	if !ok {
		return
	}
	items, err := s.Cart(r.Context(), email)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (s *Service) handleRemoveFromCart(w http.ResponseWriter, r *http.Request) {
	email, ok := identity(w, r)
	if !ok {
		return
	}
	itemID, ok := pathID(w, r, "item_id")
	if !ok {
		return
	}
	if err := s.RemoveFromCart(r.Context(), email, itemID); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	writeMessage(w, "Item removed from cart")
}

func (s *Service) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	email, ok := identity(w, r)
	if !ok {
		return
	}
	var req SubscribeRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	enrollment, err := s.Subscribe(r.Context(), email, *req.SubscriptionID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SubscribeResponse{
		Message:      "Subscribed successfully",
		Subscription: enrollment,
	})
}

func (s *Service) handleMySubscriptions(w http.ResponseWriter, r *http.Request) {
	email, ok := identity(w, r)
	if !ok {
		return
	}
	rows, err := s.MySubscriptions(r.Context(), email)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}

func (s *Service) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	email, ok := identity(w, r)
	if !ok {
		return
	}
	var req OrderRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	orderID, err := s.CreateOrder(r.Context(), email, req.lineItems(), *req.TotalAmount)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, OrderCreatedResponse{
		Message: "Order created successfully",
		OrderID: orderID,
	})
}

func (s *Service) handleListOrders(w http.ResponseWriter, r *http.Request) {
	email, ok := identity(w, r)
	if !ok {
		return
	}
	orders, err := s.Orders(r.Context(), email)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, orders)
}

// =============================================================================
// Operational
// =============================================================================

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Service:   ServiceName,
		Version:   Version,
		Timestamp: s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Service) handleTest(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, TestResponse{
		Message:   "Server is running with latest code",
		Timestamp: s.now().UTC(),
	})
}

func (s *Service) handleDebugCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := s.Customers(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, customers)
}

// handleDebugTables always answers 200; a failed count is reported in the body.
func (s *Service) handleDebugTables(w http.ResponseWriter, r *http.Request) {
	report, err := s.Tables(r.Context())
	if err != nil {
		s.logger.WithContext(r.Context()).WithError(err).Warn("table report failed")
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"error": err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}
