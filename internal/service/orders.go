package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/vbonduro/bannerfront/internal/auth"
	"github.com/vbonduro/bannerfront/internal/domain"
)

// orderBackend is the subset of api.Client that OrderService requires.
type orderBackend interface {
	MyOrders(ctx context.Context, token string) ([]domain.Order, error)
	AllOrders(ctx context.Context, token string) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, token, orderID string, status domain.OrderStatus) (domain.Order, error)
	EmailContent(ctx context.Context, token, orderID string) (domain.EmailContent, error)
}

// ErrRefreshFailed means a change reached the backend but the order list
// could not be reloaded afterwards.
var ErrRefreshFailed = errors.New("order list could not be reloaded")

// orderList remembers the last admin order list fetched from the backend.
type orderList interface {
	AdminOrders() []domain.Order
	SetAdminOrders([]domain.Order)
}

type OrderService struct {
	backend orderBackend
	account *AccountService
	logger  *slog.Logger
}

func NewOrderService(backend orderBackend, account *AccountService, logger *slog.Logger) *OrderService {
	return &OrderService{backend: backend, account: account, logger: logger}
}

// MyOrders lists the signed-in visitor's orders.
func (s *OrderService) MyOrders(ctx context.Context, a *auth.Store) ([]domain.Order, error) {
	return withAuth(ctx, s.account, a, func(token string) ([]domain.Order, error) {
		return s.backend.MyOrders(ctx, token)
	})
}

// AllOrders fetches every order for the admin dashboard and remembers the
// result. On failure the last known list is returned with the error.
func (s *OrderService) AllOrders(ctx context.Context, a *auth.Store, list orderList) ([]domain.Order, error) {
	orders, err := withAuth(ctx, s.account, a, func(token string) ([]domain.Order, error) {
		return s.backend.AllOrders(ctx, token)
	})
	if err != nil {
		s.logger.Warn("failed to load orders", "error", err)
		return list.AdminOrders(), err
	}
	list.SetAdminOrders(orders)
	return orders, nil
}

// UpdateStatus changes an order's status and then reloads the list from the
// backend. The list is never edited locally: on failure the last known
// server state is returned along with the error. If only the reload fails
// the error wraps ErrRefreshFailed.
func (s *OrderService) UpdateStatus(ctx context.Context, a *auth.Store, list orderList, orderID string, status domain.OrderStatus) ([]domain.Order, error) {
	_, err := withAuth(ctx, s.account, a, func(token string) (domain.Order, error) {
		return s.backend.UpdateOrderStatus(ctx, token, orderID, status)
	})
	if err != nil {
		s.logger.Error("order status update failed", "order_id", orderID, "status", status, "error", err)
		return list.AdminOrders(), err
	}
	s.logger.Info("order status updated", "order_id", orderID, "status", status)
	orders, err := s.AllOrders(ctx, a, list)
	if err != nil {
		return orders, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	return orders, nil
}

// EmailPreview fetches the notification email generated for an order.
func (s *OrderService) EmailPreview(ctx context.Context, a *auth.Store, orderID string) (domain.EmailContent, error) {
	return withAuth(ctx, s.account, a, func(token string) (domain.EmailContent, error) {
		return s.backend.EmailContent(ctx, token, orderID)
	})
}

// Stats summarises an order list for the admin dashboard.
type Stats struct {
	Total    int
	ByStatus map[domain.OrderStatus]int
	// Revenue sums the backend's order totals.
	Revenue decimal.Decimal
}

func ComputeStats(orders []domain.Order) Stats {
	st := Stats{Total: len(orders), ByStatus: make(map[domain.OrderStatus]int), Revenue: decimal.Zero}
	for _, o := range orders {
		st.ByStatus[o.Status]++
		st.Revenue = st.Revenue.Add(o.TotalPrice)
	}
	return st
}
