package storefront

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"

	"github.com/R3E-Network/storefront/internal/middleware"
	"github.com/R3E-Network/storefront/internal/token"
)

// Router builds the route table.
func (s *Service) Router() *mux.Router {
	router := mux.NewRouter()
	if s.metrics != nil {
		router.Use(middleware.MetricsMiddleware(ServiceName, s.metrics))
		router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.registerAdminRoutes(router)
	s.registerCustomerRoutes(router)
	if s.opts.EnableDebugRoutes {
		s.registerDebugRoutes(router)
	}
	return router
}

// Handler wraps the router with the cross-cutting middleware. CORS and
// tracing sit outside the router so preflights and unmatched paths get them too.
func (s *Service) Handler() http.Handler {
	var h http.Handler = s.Router()
	if s.limiter != nil {
		h = s.limiter.Handler(h)
	}
	h = middleware.NewCORSMiddleware(s.opts.AllowedOrigins).Handler(h)
	h = middleware.NewTracingMiddleware(s.logger).Handler(h)
	if s.opts.TrustProxyHeaders {
		h = chimw.RealIP(h)
	}
	return chimw.Recoverer(h)
}

// RateLimiter returns the limiter installed by Handler, or nil when rate
// limiting is disabled.
func (s *Service) RateLimiter() *middleware.RateLimiter {
	return s.limiter
}

// protected returns a subrouter behind the bearer gate. With principal
// enforcement on, only the given principal types get through.
func (s *Service) protected(router *mux.Router, principals ...string) *mux.Router {
	sub := router.NewRoute().Subrouter()
	sub.Use(s.auth.Handler)
	if s.opts.EnforcePrincipalTypes {
		sub.Use(middleware.RequirePrincipal(principals...))
	}
	return sub
}

func (s *Service) registerAdminRoutes(router *mux.Router) {
	router.HandleFunc("/signup", s.handleAdminSignup).Methods(http.MethodPost)
	router.HandleFunc("/login", s.handleAdminLogin).Methods(http.MethodPost)
	router.HandleFunc("/products", s.handleListProducts).Methods(http.MethodGet)
	router.HandleFunc("/subscriptions", s.handleListPlans).Methods(http.MethodGet)

	admin := s.protected(router, token.PrincipalAdmin)
	admin.HandleFunc("/products", s.handleCreateProduct).Methods(http.MethodPost)
	admin.HandleFunc("/products/{id}", s.handleDeleteProduct).Methods(http.MethodDelete)
	admin.HandleFunc("/subscriptions", s.handleCreatePlan).Methods(http.MethodPost)
	admin.HandleFunc("/subscriptions/{id}", s.handleDeletePlan).Methods(http.MethodDelete)
}

func (s *Service) registerCustomerRoutes(router *mux.Router) {
	router.HandleFunc("/user/signup", s.handleCustomerSignup).Methods(http.MethodPost)
	router.HandleFunc("/user/login", s.handleCustomerLogin).Methods(http.MethodPost)
	router.HandleFunc("/user/products", s.handleListProducts).Methods(http.MethodGet)
	router.HandleFunc("/user/subscriptions", s.handleListPlans).Methods(http.MethodGet)

	customer := s.protected(router, token.PrincipalCustomer)
	customer.HandleFunc("/user/profile", s.handleProfile).Methods(http.MethodGet)
	customer.HandleFunc("/user/cart/add", s.handleAddToCart).Methods(http.MethodPost)
	customer.HandleFunc("/user/cart", s.handleGetCart).Methods(http.MethodGet)
	customer.HandleFunc("/user/cart/{item_id}", s.handleRemoveFromCart).Methods(http.MethodDelete)
	customer.HandleFunc("/user/subscribe", s.handleSubscribe).Methods(http.MethodPost)
	customer.HandleFunc("/user/my-subscriptions", s.handleMySubscriptions).Methods(http.MethodGet)
	customer.HandleFunc("/user/orders", s.handleCreateOrder).Methods(http.MethodPost)
	customer.HandleFunc("/user/orders", s.handleListOrders).Methods(http.MethodGet)
}

func (s *Service) registerDebugRoutes(router *mux.Router) {
	router.HandleFunc("/test", s.handleTest).Methods(http.MethodGet)
	router.HandleFunc("/debug/customers", s.handleDebugCustomers).Methods(http.MethodGet)
	router.HandleFunc("/debug/tables", s.handleDebugTables).Methods(http.MethodGet)
}
