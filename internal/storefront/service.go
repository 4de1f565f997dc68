// Package storefront implements the storefront API: account signup and login
// for admins and customers, the product and plan catalog, and per-customer
// cart, subscription and order workflows.
//
// Workflows issue their store calls sequentially. Nothing is rolled back when a
// later step fails; the failing step is logged so partial state can be found.
package storefront

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/R3E-Network/storefront/internal/crypto"
	"github.com/R3E-Network/storefront/internal/errors"
	"github.com/R3E-Network/storefront/internal/logging"
	"github.com/R3E-Network/storefront/internal/metrics"
	"github.com/R3E-Network/storefront/internal/middleware"
	"github.com/R3E-Network/storefront/internal/store"
	"github.com/R3E-Network/storefront/internal/token"
)

const (
	ServiceName = "storefront"
	Version     = "1.0.0"
)

// Service holds the collaborators every workflow needs.
type Service struct {
	store   store.Store
	hasher  crypto.PasswordHasher
	tokens  *token.Service
	logger  *logging.Logger
	metrics *metrics.Metrics
	auth    *middleware.AuthMiddleware
	limiter *middleware.RateLimiter
	now     func() time.Time

	opts Options
}

// Options are the HTTP-facing knobs of the service.
type Options struct {
	EnableDebugRoutes     bool
	EnforcePrincipalTypes bool
	AllowedOrigins        []string
	RateLimitRPS          float64
	RateLimitBurst        int
	// TrustProxyHeaders takes the client address from X-Forwarded-For or
	// X-Real-IP. Enable it only behind a proxy that overwrites those headers.
	TrustProxyHeaders bool
}

// Config configures a Service. Store, Tokens and Logger are required.
type Config struct {
	Store   store.Store
	Hasher  crypto.PasswordHasher
	Tokens  *token.Service
	Logger  *logging.Logger
	Metrics *metrics.Metrics
	Options Options
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storefront: store is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("storefront: token service is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDefault(ServiceName)
	}
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = crypto.NewBcryptHasher(0)
	}
	s := &Service{
		store:   cfg.Store,
		hasher:  hasher,
		tokens:  cfg.Tokens,
		logger:  logger,
		metrics: cfg.Metrics,
		auth:    middleware.NewAuthMiddleware(cfg.Tokens, logger),
		now:     time.Now,
		opts:    cfg.Options,
	}
	if cfg.Options.RateLimitRPS > 0 {
		s.limiter = middleware.NewRateLimiter(cfg.Options.RateLimitRPS, cfg.Options.RateLimitBurst, logger)
	}
	return s, nil
}

// upstream logs a failed store call and converts it to an UpstreamFailure.
func (s *Service) upstream(ctx context.Context, step string, err error) error {
	s.logger.WithContext(ctx).WithError(err).WithField("step", step).Error("store call failed")
	return errors.Upstream(err)
}

// insertFailed maps an empty insert result to the business failure message and
// anything else to an UpstreamFailure.
func (s *Service) insertFailed(ctx context.Context, step, message string, err error) error {
	if stderrors.Is(err, store.ErrEmptyResult) {
		s.logger.WithContext(ctx).WithField("step", step).Warn("insert returned no row")
		return errors.BadRequest(message)
	}
	return s.upstream(ctx, step, err)
}

func (s *Service) recordStepFailure(workflow, step string) {
	if s.metrics != nil {
		s.metrics.RecordWorkflowFailure(workflow, step)
	}
}

// resolveCustomer maps a token identity to the customer row id.
func (s *Service) resolveCustomer(ctx context.Context, identity string) (int64, error) {
	c, err := s.store.FindCustomerByEmail(ctx, identity)
	if err != nil {
		return 0, s.upstream(ctx, "customer_lookup", err)
	}
	if c == nil {
		return 0, errors.NotFound("Customer not found")
	}
	return c.ID, nil
}

// SignupAdmin registers an admin account and returns a token for it.
func (s *Service) SignupAdmin(ctx context.Context, email, password string) (string, error) {
	existing, err := s.store.FindAdminByEmail(ctx, email)
	if err != nil {
		return "", s.upstream(ctx, "admin_lookup", err)
	}
	if existing != nil {
		return "", errors.Conflict("Email already registered")
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return "", errors.Internal("failed to hash password", err)
	}
	if _, err := s.store.CreateAdmin(ctx, email, digest); err != nil {
		return "", s.insertFailed(ctx, "admin_insert", "Registration failed", err)
	}

	s.logger.WithContext(ctx).WithField("email", email).Info("admin registered")
	return s.issue(email, "")
}

// LoginAdmin verifies admin credentials and returns a token.
func (s *Service) LoginAdmin(ctx context.Context, email, password string) (string, error) {
	admin, err := s.store.FindAdminByEmail(ctx, email)
	if err != nil {
		return "", s.upstream(ctx, "admin_lookup", err)
	}
	if admin == nil || !s.hasher.Verify(password, admin.PasswordHash) {
		return "", s.invalidCredentials(ctx, email, "admin")
	}
	return s.issue(email, "")
}

// SignupCustomer registers a customer account and returns a customer token.
func (s *Service) SignupCustomer(ctx context.Context, email, password string, name *string) (string, error) {
	existing, err := s.store.FindCustomerByEmail(ctx, email)
	if err != nil {
		return "", s.upstream(ctx, "customer_lookup", err)
	}
	if existing != nil {
		return "", errors.Conflict("Email already registered")
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return "", errors.Internal("failed to hash password", err)
	}
	if _, err := s.store.CreateCustomer(ctx, store.NewCustomer{Email: email, PasswordHash: digest, Name: name}); err != nil {
		return "", s.insertFailed(ctx, "customer_insert", "Registration failed", err)
	}

	s.logger.WithContext(ctx).WithField("email", email).Info("customer registered")
	return s.issue(email, token.PrincipalCustomer)
}

// LoginCustomer verifies customer credentials and returns a customer token.
func (s *Service) LoginCustomer(ctx context.Context, email, password string) (string, error) {
	c, err := s.store.FindCustomerByEmail(ctx, email)
	if err != nil {
		return "", s.upstream(ctx, "customer_lookup", err)
	}
	if c == nil || !s.hasher.Verify(password, c.PasswordHash) {
		return "", s.invalidCredentials(ctx, email, token.PrincipalCustomer)
	}
	return s.issue(email, token.PrincipalCustomer)
}

// invalidCredentials is the same failure for an unknown email and a wrong password.
func (s *Service) invalidCredentials(ctx context.Context, email, space string) error {
	s.logger.LogSecurityEvent(ctx, "login_failed", map[string]interface{}{
		"email":          email,
		"identity_space": space,
	})
	return errors.Unauthorized("Invalid credentials")
}

func (s *Service) issue(identity, principalType string) (string, error) {
	tok, err := s.tokens.Issue(identity, principalType)
	if err != nil {
		return "", errors.Internal("failed to issue token", err)
	}
	return tok, nil
}

// ListProducts returns the whole catalog.
func (s *Service) ListProducts(ctx context.Context) ([]store.Product, error) {
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, s.upstream(ctx, "product_list", err)
	}
	return products, nil
}

// CreateProduct adds a catalog entry.
func (s *Service) CreateProduct(ctx context.Context, p store.NewProduct) (*store.Product, error) {
	created, err := s.store.CreateProduct(ctx, p)
	if err != nil {
		return nil, s.insertFailed(ctx, "product_insert", "Failed to create product", err)
	}
	return created, nil
}

// DeleteProduct removes a catalog entry. Missing ids succeed.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return s.upstream(ctx, "product_delete", err)
	}
	return nil
}

// ListPlans returns every subscription plan.
func (s *Service) ListPlans(ctx context.Context) ([]store.SubscriptionPlan, error) {
	plans, err := s.store.ListPlans(ctx)
	if err != nil {
		return nil, s.upstream(ctx, "plan_list", err)
	}
	return plans, nil
}

// CreatePlan adds a subscription plan.
func (s *Service) CreatePlan(ctx context.Context, p store.NewSubscriptionPlan) (*store.SubscriptionPlan, error) {
	created, err := s.store.CreatePlan(ctx, p)
	if err != nil {
		return nil, s.insertFailed(ctx, "plan_insert", "Failed to create subscription", err)
	}
	return created, nil
}

// DeletePlan removes a subscription plan. Missing ids succeed.
func (s *Service) DeletePlan(ctx context.Context, id int64) error {
	if err := s.store.DeletePlan(ctx, id); err != nil {
		return s.upstream(ctx, "plan_delete", err)
	}
	return nil
}

// Profile is the diagnostic view of the caller's customer record.
type Profile struct {
	Email         string           `json:"email"`
	CustomerFound bool             `json:"customer_found"`
	CustomerData  []store.Customer `json:"customer_data"`
}

// Profile reports whether identity has a customer record. A missing record is not an error.
func (s *Service) Profile(ctx context.Context, identity string) (*Profile, error) {
	c, err := s.store.FindCustomerByEmail(ctx, identity)
	if err != nil {
		return nil, s.upstream(ctx, "customer_lookup", err)
	}
	p := &Profile{Email: identity, CustomerData: []store.Customer{}}
	if c != nil {
		p.CustomerFound = true
		p.CustomerData = append(p.CustomerData, *c)
	}
	return p, nil
}

// AddToCart accumulates quantity onto the existing cart line for the product
// or inserts a new line. The read and the write are separate calls, so
// concurrent adds for the same product can lose an increment.
func (s *Service) AddToCart(ctx context.Context, identity string, productID int64, quantity int) error {
	customerID, err := s.resolveCustomer(ctx, identity)
	if err != nil {
		return err
	}

	existing, err := s.store.FindCartItem(ctx, customerID, productID)
	if err != nil {
		return s.upstream(ctx, "cart_lookup", err)
	}
	if existing != nil {
		if err := s.store.UpdateCartItemQuantity(ctx, existing.ID, existing.Quantity+quantity); err != nil {
			return s.upstream(ctx, "cart_update", err)
		}
		return nil
	}

	if _, err := s.store.CreateCartItem(ctx, customerID, productID, quantity); err != nil {
		return s.insertFailed(ctx, "cart_insert", "Failed to add item to cart", err)
	}
	return nil
}

// Cart returns the caller's cart lines with product details.
func (s *Service) Cart(ctx context.Context, identity string) ([]store.CartItem, error) {
	customerID, err := s.resolveCustomer(ctx, identity)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListCartItems(ctx, customerID)
	if err != nil {
		return nil, s.upstream(ctx, "cart_list", err)
	}
	return items, nil
}

// RemoveFromCart deletes one of the caller's cart lines. Lines owned by other
// customers and missing ids are left alone without error.
func (s *Service) RemoveFromCart(ctx context.Context, identity string, itemID int64) error {
	customerID, err := s.resolveCustomer(ctx, identity)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCartItem(ctx, customerID, itemID); err != nil {
		return s.upstream(ctx, "cart_delete", err)
	}
	return nil
}

// Subscribe enrolls the caller in a plan after checking that the plan exists
// and that no enrollment for the pair exists yet.
func (s *Service) Subscribe(ctx context.Context, identity string, planID int64) (*store.CustomerSubscription, error) {
	customerID, err := s.resolveCustomer(ctx, identity)
	if err != nil {
		return nil, err
	}

	plan, err := s.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, s.upstream(ctx, "plan_lookup", err)
	}
	if plan == nil {
		return nil, errors.NotFound("Subscription plan not found")
	}

	existing, err := s.store.FindEnrollment(ctx, customerID, planID)
	if err != nil {
		return nil, s.upstream(ctx, "enrollment_lookup", err)
	}
	if existing != nil {
		return nil, errors.Conflict("Already subscribed to this plan")
	}

	enrollment, err := s.store.CreateEnrollment(ctx, customerID, planID, store.EnrollmentStatusActive)
	if err != nil {
		return nil, s.insertFailed(ctx, "enrollment_insert", "Subscription failed", err)
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"customer_id":     customerID,
		"subscription_id": planID,
	}).Info("customer subscribed")
	return enrollment, nil
}

// MySubscriptions returns the caller's enrollments with plan details.
func (s *Service) MySubscriptions(ctx context.Context, identity string) ([]store.CustomerSubscription, error) {
	customerID, err := s.resolveCustomer(ctx, identity)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ListEnrollments(ctx, customerID)
	if err != nil {
		return nil, s.upstream(ctx, "enrollment_list", err)
	}
	return rows, nil
}

// LineItem is one submitted order line.
type LineItem struct {
	ProductID int64
	Quantity  int
}

// CreateOrder records a pending order, one order item per submitted line, and
// then clears the caller's cart. A failure after the order row exists leaves
// the rows written so far in place.
func (s *Service) CreateOrder(ctx context.Context, identity string, items []LineItem, totalAmount float64) (int64, error) {
	const workflow = "create_order"

	customerID, err := s.resolveCustomer(ctx, identity)
	if err != nil {
		return 0, err
	}

	order, err := s.store.CreateOrder(ctx, customerID, totalAmount, store.OrderStatusPending)
	if err != nil {
		s.recordStepFailure(workflow, "order_insert")
		return 0, s.insertFailed(ctx, "order_insert", "Order creation failed", err)
	}

	log := s.logger.WithContext(ctx).WithField("order_id", order.ID)
	for i, item := range items {
		if _, err := s.store.CreateOrderItem(ctx, order.ID, item.ProductID, item.Quantity); err != nil {
			s.recordStepFailure(workflow, "order_item_insert")
			log.WithError(err).WithFields(map[string]interface{}{
				"step":           "order_item_insert",
				"item_index":     i,
				"items_written":  i,
				"items_total":    len(items),
				"cart_cleared":   false,
				"order_customer": customerID,
			}).Error("order left partially written")
			return 0, errors.Upstream(err)
		}
	}

	if err := s.store.ClearCart(ctx, customerID); err != nil {
		s.recordStepFailure(workflow, "cart_clear")
		log.WithError(err).WithFields(map[string]interface{}{
			"step":          "cart_clear",
			"items_written": len(items),
		}).Error("order written but cart not cleared")
		return 0, errors.Upstream(err)
	}

	log.WithField("items", len(items)).Info("order created")
	return order.ID, nil
}

// Orders returns the caller's orders, newest first.
func (s *Service) Orders(ctx context.Context, identity string) ([]store.Order, error) {
	customerID, err := s.resolveCustomer(ctx, identity)
	if err != nil {
		return nil, err
	}
	orders, err := s.store.ListOrders(ctx, customerID)
	if err != nil {
		return nil, s.upstream(ctx, "order_list", err)
	}
	return orders, nil
}

// Customers lists every customer record for the debug routes.
func (s *Service) Customers(ctx context.Context) ([]store.Customer, error) {
	customers, err := s.store.ListCustomers(ctx)
	if err != nil {
		return nil, s.upstream(ctx, "customer_list", err)
	}
	return customers, nil
}

// TableReport is the /debug/tables payload.
type TableReport struct {
	Customers                   int  `json:"customers"`
	Products                    int  `json:"products"`
	Subscriptions               int  `json:"subscriptions"`
	CustomerSubscriptionsExists bool `json:"customer_subscriptions_exists"`
	CartItemsExists             bool `json:"cart_items_exists"`
}

// Tables counts the core collections and probes the optional ones. A failed
// probe reports the collection as absent rather than failing the report.
func (s *Service) Tables(ctx context.Context) (*TableReport, error) {
	report := &TableReport{}
	counted := []struct {
		name string
		dst  *int
	}{
		{store.TableCustomers, &report.Customers},
		{store.TableProducts, &report.Products},
		{store.TableSubscriptions, &report.Subscriptions},
	}
	for _, c := range counted {
		n, err := s.store.CountRows(ctx, c.name)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", c.name, err)
		}
		*c.dst = n
	}

	report.CustomerSubscriptionsExists = s.probe(ctx, store.TableCustomerSubscriptions)
	report.CartItemsExists = s.probe(ctx, store.TableCartItems)
	return report, nil
}

func (s *Service) probe(ctx context.Context, collection string) bool {
	if _, err := s.store.CountRows(ctx, collection); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("collection", collection).Debug("table probe failed")
		return false
	}
	return true
}
