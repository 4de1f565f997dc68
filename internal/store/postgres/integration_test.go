//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/R3E-Network/storefront/internal/store"
)

func setupTestDB(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("storefront"),
		tcpostgres.WithUsername("storefront"),
		tcpostgres.WithPassword("storefront"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, Migrate(s.DB(), Up))
	// a second run is a no-op
	require.NoError(t, Migrate(s.DB(), Up))
	return s
}

func TestIntegration_CheckoutFlow(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	cust, err := s.CreateCustomer(ctx, store.NewCustomer{Email: "a@x.com", PasswordHash: "digest"})
	require.NoError(t, err)
	prod, err := s.CreateProduct(ctx, store.NewProduct{Name: "Widget", Price: 10, Description: "w"})
	require.NoError(t, err)

	item, err := s.CreateCartItem(ctx, cust.ID, prod.ID, 2)
	require.NoError(t, err)
	require.NoError(t, s.UpdateCartItemQuantity(ctx, item.ID, 5))

	cart, err := s.ListCartItems(ctx, cust.ID)
	require.NoError(t, err)
	require.Len(t, cart, 1)
	assert.Equal(t, 5, cart[0].Quantity)
	require.NotNil(t, cart[0].Product)
	assert.Equal(t, "Widget", cart[0].Product.Name)

	order, err := s.CreateOrder(ctx, cust.ID, 50, store.OrderStatusPending)
	require.NoError(t, err)
	_, err = s.CreateOrderItem(ctx, order.ID, prod.ID, 5)
	require.NoError(t, err)
	require.NoError(t, s.ClearCart(ctx, cust.ID))

	cart, err = s.ListCartItems(ctx, cust.ID)
	require.NoError(t, err)
	assert.Empty(t, cart)

	orders, err := s.ListOrders(ctx, cust.ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, store.OrderStatusPending, orders[0].Status)

	n, err := s.CountRows(ctx, store.TableOrderItems)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIntegration_Enrollments(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	cust, err := s.CreateCustomer(ctx, store.NewCustomer{Email: "b@x.com", PasswordHash: "digest"})
	require.NoError(t, err)
	plan, err := s.CreatePlan(ctx, store.NewSubscriptionPlan{Name: "Pro", Price: 9.5, Duration: "monthly", Features: []string{"a", "b"}})
	require.NoError(t, err)

	_, err = s.CreateEnrollment(ctx, cust.ID, plan.ID, store.EnrollmentStatusActive)
	require.NoError(t, err)

	found, err := s.FindEnrollment(ctx, cust.ID, plan.ID)
	require.NoError(t, err)
	require.NotNil(t, found)

	list, err := s.ListEnrollments(ctx, cust.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].Plan)
	assert.Equal(t, []string{"a", "b"}, list[0].Plan.Features)

	require.NoError(t, Migrate(s.DB(), Down))
}
