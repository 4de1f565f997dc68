// Package memory is an in-memory implementation of store.Store. It is safe for
// concurrent use and is intended for tests and local development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/R3E-Network/storefront/internal/store"
)

// Store holds every collection in process memory.
type Store struct {
	mu     sync.Mutex
	nextID int64
	now    func() time.Time

	admins        []store.AdminUser
	customers     []store.Customer
	products      []store.Product
	plans         []store.SubscriptionPlan
	enrollments   []store.CustomerSubscription
	cartItems     []store.CartItem
	orders        []store.Order
	orderItems    []store.OrderItem
	failures      map[string]error
	failureCounts map[string]int
}

var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:        1,
		now:           time.Now,
		failures:      make(map[string]error),
		failureCounts: make(map[string]int),
	}
}

// SetClock overrides the time source used for created_at values.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailNext makes the next call of the named method return err.
func (s *Store) FailNext(method string, err error) {
	s.FailAfter(method, 0, err)
}

// FailAfter lets the named method succeed skip times and then return err once.
func (s *Store) FailAfter(method string, skip int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = err
	s.failureCounts[method] = skip
}

// takeErr must be called with mu held.
func (s *Store) takeErr(method string) error {
	err, ok := s.failures[method]
	if !ok {
		return nil
	}
	if s.failureCounts[method] > 0 {
		s.failureCounts[method]--
		return nil
	}
	delete(s.failures, method)
	delete(s.failureCounts, method)
	return err
}

func (s *Store) id() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// SeedProduct inserts a product with a fixed id. Later ids continue after the largest seeded one.
func (s *Store) SeedProduct(p store.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = append(s.products, p)
	if p.ID >= s.nextID {
		s.nextID = p.ID + 1
	}
}

// SeedPlan inserts a subscription plan with a fixed id.
func (s *Store) SeedPlan(p store.SubscriptionPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Features = append([]string(nil), p.Features...)
	s.plans = append(s.plans, p)
	if p.ID >= s.nextID {
		s.nextID = p.ID + 1
	}
}

// OrderItems returns a copy of every order line, in insertion order.
func (s *Store) OrderItems() []store.OrderItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.OrderItem(nil), s.orderItems...)
}

// FindAdminByEmail implements store.AdminStore.
func (s *Store) FindAdminByEmail(_ context.Context, email string) (*store.AdminUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("FindAdminByEmail"); err != nil {
		return nil, err
	}
	for _, a := range s.admins {
		if a.Email == email {
			out := a
			return &out, nil
		}
	}
	return nil, nil
}

// CreateAdmin implements store.AdminStore.
func (s *Store) CreateAdmin(_ context.Context, email, passwordHash string) (*store.AdminUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("CreateAdmin"); err != nil {
		return nil, err
	}
	a := store.AdminUser{ID: s.id(), Email: email, PasswordHash: passwordHash}
	s.admins = append(s.admins, a)
	return &a, nil
}

// FindCustomerByEmail implements store.CustomerStore.
func (s *Store) FindCustomerByEmail(_ context.Context, email string) (*store.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("FindCustomerByEmail"); err != nil {
		return nil, err
	}
	for _, c := range s.customers {
		if c.Email == email {
			out := c
			return &out, nil
		}
	}
	return nil, nil
}

// CreateCustomer implements store.CustomerStore.
func (s *Store) CreateCustomer(_ context.Context, c store.NewCustomer) (*store.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("CreateCustomer"); err != nil {
		return nil, err
	}
	created := s.now().UTC()
	row := store.Customer{
		ID:           s.id(),
		Email:        c.Email,
		Name:         c.Name,
		PasswordHash: c.PasswordHash,
		CreatedAt:    &created,
	}
	s.customers = append(s.customers, row)
	return &row, nil
}

// ListCustomers implements store.CustomerStore.
func (s *Store) ListCustomers(_ context.Context) ([]store.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("ListCustomers"); err != nil {
		return nil, err
	}
	return append([]store.Customer{}, s.customers...), nil
}

// ListProducts implements store.CatalogStore.
func (s *Store) ListProducts(_ context.Context) ([]store.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("ListProducts"); err != nil {
		return nil, err
	}
	return append([]store.Product{}, s.products...), nil
}

// CreateProduct implements store.CatalogStore.
func (s *Store) CreateProduct(_ context.Context, p store.NewProduct) (*store.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("CreateProduct"); err != nil {
		return nil, err
	}
	row := store.Product{ID: s.id(), Name: p.Name, Price: p.Price, Description: p.Description}
	s.products = append(s.products, row)
	return &row, nil
}

// DeleteProduct implements store.CatalogStore. Deleting a missing id is not an error.
func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("DeleteProduct"); err != nil {
		return err
	}
	kept := s.products[:0]
	for _, p := range s.products {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	s.products = kept
	return nil
}

// ListPlans implements store.CatalogStore.
func (s *Store) ListPlans(_ context.Context) ([]store.SubscriptionPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("ListPlans"); err != nil {
		return nil, err
	}
	out := make([]store.SubscriptionPlan, 0, len(s.plans))
	for _, p := range s.plans {
		p.Features = append([]string(nil), p.Features...)
		out = append(out, p)
	}
	return out, nil
}

// GetPlan implements store.CatalogStore.
func (s *Store) GetPlan(_ context.Context, id int64) (*store.SubscriptionPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("GetPlan"); err != nil {
		return nil, err
	}
	if p, ok := s.planByID(id); ok {
		return &p, nil
	}
	return nil, nil
}

func (s *Store) planByID(id int64) (store.SubscriptionPlan, bool) {
	for _, p := range s.plans {
		if p.ID == id {
			p.Features = append([]string(nil), p.Features...)
			return p, true
		}
	}
	return store.SubscriptionPlan{}, false
}

// CreatePlan implements store.CatalogStore.
func (s *Store) CreatePlan(_ context.Context, p store.NewSubscriptionPlan) (*store.SubscriptionPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("CreatePlan"); err != nil {
		return nil, err
	}
	row := store.SubscriptionPlan{
		ID:       s.id(),
		Name:     p.Name,
		Price:    p.Price,
		Duration: p.Duration,
		Features: append([]string{}, p.Features...),
	}
	s.plans = append(s.plans, row)
	out := row
	out.Features = append([]string{}, row.Features...)
	return &out, nil
}

// DeletePlan implements store.CatalogStore.
func (s *Store) DeletePlan(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("DeletePlan"); err != nil {
		return err
	}
	kept := s.plans[:0]
	for _, p := range s.plans {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	s.plans = kept
	return nil
}

// FindEnrollment implements store.EnrollmentStore.
func (s *Store) FindEnrollment(_ context.Context, customerID, planID int64) (*store.CustomerSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("FindEnrollment"); err != nil {
		return nil, err
	}
	for _, e := range s.enrollments {
		if e.CustomerID == customerID && e.SubscriptionID == planID {
			out := e
			return &out, nil
		}
	}
	return nil, nil
}

// CreateEnrollment implements store.EnrollmentStore.
func (s *Store) CreateEnrollment(_ context.Context, customerID, planID int64, status string) (*store.CustomerSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("CreateEnrollment"); err != nil {
		return nil, err
	}
	created := s.now().UTC()
	row := store.CustomerSubscription{
		ID:             s.id(),
		CustomerID:     customerID,
		SubscriptionID: planID,
		Status:         status,
		CreatedAt:      &created,
	}
	s.enrollments = append(s.enrollments, row)
	return &row, nil
}

// ListEnrollments implements store.EnrollmentStore.
func (s *Store) ListEnrollments(_ context.Context, customerID int64) ([]store.CustomerSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("ListEnrollments"); err != nil {
		return nil, err
	}
	out := []store.CustomerSubscription{}
	for _, e := range s.enrollments {
		if e.CustomerID != customerID {
			continue
		}
		if p, ok := s.planByID(e.SubscriptionID); ok {
			e.Plan = &store.PlanSummary{Name: p.Name, Price: p.Price, Duration: p.Duration, Features: p.Features}
		}
		out = append(out, e)
	}
	return out, nil
}

// FindCartItem implements store.CartStore.
func (s *Store) FindCartItem(_ context.Context, customerID, productID int64) (*store.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("FindCartItem"); err != nil {
		return nil, err
	}
	for _, c := range s.cartItems {
		if c.CustomerID == customerID && c.ProductID == productID {
			out := c
			return &out, nil
		}
	}
	return nil, nil
}

// CreateCartItem implements store.CartStore.
func (s *Store) CreateCartItem(_ context.Context, customerID, productID int64, quantity int) (*store.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("CreateCartItem"); err != nil {
		return nil, err
	}
	row := store.CartItem{ID: s.id(), CustomerID: customerID, ProductID: productID, Quantity: quantity}
	s.cartItems = append(s.cartItems, row)
	return &row, nil
}

// UpdateCartItemQuantity implements store.CartStore.
func (s *Store) UpdateCartItemQuantity(_ context.Context, itemID int64, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("UpdateCartItemQuantity"); err != nil {
		return err
	}
	for i := range s.cartItems {
		if s.cartItems[i].ID == itemID {
			s.cartItems[i].Quantity = quantity
		}
	}
	return nil
}

// ListCartItems implements store.CartStore.
func (s *Store) ListCartItems(_ context.Context, customerID int64) ([]store.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("ListCartItems"); err != nil {
		return nil, err
	}
	out := []store.CartItem{}
	for _, c := range s.cartItems {
		if c.CustomerID != customerID {
			continue
		}
		for _, p := range s.products {
			if p.ID == c.ProductID {
				c.Product = &store.ProductSummary{Name: p.Name, Price: p.Price, Description: p.Description}
				break
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// DeleteCartItem implements store.CartStore.
func (s *Store) DeleteCartItem(_ context.Context, customerID, itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("DeleteCartItem"); err != nil {
		return err
	}
	kept := s.cartItems[:0]
	for _, c := range s.cartItems {
		if c.ID == itemID && c.CustomerID == customerID {
			continue
		}
		kept = append(kept, c)
	}
	s.cartItems = kept
	return nil
}

// ClearCart implements store.CartStore.
func (s *Store) ClearCart(_ context.Context, customerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("ClearCart"); err != nil {
		return err
	}
	kept := s.cartItems[:0]
	for _, c := range s.cartItems {
		if c.CustomerID != customerID {
			kept = append(kept, c)
		}
	}
	s.cartItems = kept
	return nil
}

// CreateOrder implements store.OrderStore.
func (s *Store) CreateOrder(_ context.Context, customerID int64, totalAmount float64, status string) (*store.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("CreateOrder"); err != nil {
		return nil, err
	}
	row := store.Order{
		ID:          s.id(),
		CustomerID:  customerID,
		TotalAmount: totalAmount,
		Status:      status,
		CreatedAt:   s.now().UTC(),
	}
	s.orders = append(s.orders, row)
	return &row, nil
}

// CreateOrderItem implements store.OrderStore.
func (s *Store) CreateOrderItem(_ context.Context, orderID, productID int64, quantity int) (*store.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("CreateOrderItem"); err != nil {
		return nil, err
	}
	row := store.OrderItem{ID: s.id(), OrderID: orderID, ProductID: productID, Quantity: quantity}
	s.orderItems = append(s.orderItems, row)
	return &row, nil
}

// ListOrders implements store.OrderStore. Ties on created_at fall back to the newer id first.
func (s *Store) ListOrders(_ context.Context, customerID int64) ([]store.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("ListOrders"); err != nil {
		return nil, err
	}
	out := []store.Order{}
	for _, o := range s.orders {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// CountRows implements store.DiagnosticsStore.
func (s *Store) CountRows(_ context.Context, collection string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("CountRows"); err != nil {
		return 0, err
	}
	switch strings.TrimSpace(collection) {
	case store.TableUsers:
		return len(s.admins), nil
	case store.TableCustomers:
		return len(s.customers), nil
	case store.TableProducts:
		return len(s.products), nil
	case store.TableSubscriptions:
		return len(s.plans), nil
	case store.TableCustomerSubscriptions:
		return len(s.enrollments), nil
	case store.TableCartItems:
		return len(s.cartItems), nil
	case store.TableOrders:
		return len(s.orders), nil
	case store.TableOrderItems:
		return len(s.orderItems), nil
	}
	return 0, store.ErrUnknownCollection
}
