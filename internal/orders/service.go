package orders

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/access"
	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/ariefcatur/go-shop-orders/internal/statuses"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const MaxLinesPerOrder = 100

// Service is the order engine. Every write runs in exactly one store transaction;
// cache, events and metrics are touched only after commit.
type Service struct {
	Store    Store
	Cache    DetailCache
	Events   EventSink
	Observer Observer
	Logger   *zap.Logger
	Producer string
	Now      func() time.Time
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{Store: store, Logger: logger, Producer: "shop-api", Now: time.Now}
}

// CreateOrder validates the lines against the catalog, locks the products, and
// persists the order, its lines and the stock decrements as one unit.
func (s *Service) CreateOrder(ctx context.Context, p access.Principal, req CreateRequest) (Order, error) {
	if err := access.Authenticated(p); err != nil {
		return Order{}, err
	}
	wanted, err := normaliseLines(req.Lines)
	if err != nil {
		return Order{}, err
	}
	idemKey := strings.TrimSpace(req.IdempotencyKey)

	var (
		out    Order
		replay bool
	)
	err = s.Store.InTx(ctx, func(tx Tx) error {
		if idemKey != "" {
			existing, err := tx.OrderByIdempotencyKey(ctx, p.ID, idemKey)
			if err != nil {
				return err
			}
			if existing != nil {
				out, replay = *existing, true
				return nil
			}
		}

		exists, err := tx.LockUser(ctx, p.ID)
		if err != nil {
			return err
		}
		if !exists {
			return apperr.Unauthorized("account no longer exists")
		}

		pending, err := tx.StatusByName(ctx, statuses.Pending)
		if err != nil {
			return err
		}
		if pending == nil {
			return apperr.Configuration("required status %q is not registered", statuses.Pending)
		}

		products, err := tx.ProductsForUpdate(ctx, wanted.ids)
		if err != nil {
			return err
		}
		total, err := priceLines(products, wanted)
		if err != nil {
			return err
		}

		now := s.Now().UTC()
		order := Order{
			ID:         uuid.NewString(),
			UserID:     p.ID,
			StatusID:   pending.ID,
			StatusName: pending.Name,
			TotalPrice: total,
			Version:    1,
			CreatedAt:  now,
		}
		if idemKey != "" {
			order.IdempotencyKey = &idemKey
		}
		for _, lr := range wanted.lines {
			order.Lines = append(order.Lines, Line{
				ID:        uuid.NewString(),
				OrderID:   order.ID,
				ProductID: lr.ProductID,
				Quantity:  lr.Quantity,
				CreatedAt: now,
			})
		}

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, order.Lines); err != nil {
			return err
		}
		for _, id := range wanted.ids {
			if err := tx.DecrementStock(ctx, id, wanted.qty[id]); err != nil {
				return err
			}
		}
		out = order
		return nil
	})
	if err != nil {
		if idemKey != "" && postgres.IsUniqueViolation(err) {
			return Order{}, apperr.Conflict(err, "an order with this idempotency key is already being created")
		}
		if apperr.IsKind(err, apperr.KindInsufficientStock) && s.Observer != nil {
			s.Observer.StockRejected()
		}
		return Order{}, s.fail("create order", "", p.ID, err)
	}
	if replay {
		s.Logger.Info("order create replayed", zap.String("order_id", out.ID), zap.String("user_id", p.ID))
		return out, nil
	}

	s.Logger.Info("order created",
		zap.String("order_id", out.ID),
		zap.String("user_id", out.UserID),
		zap.String("total_price", out.TotalPrice.StringFixed(2)),
		zap.Int("lines", len(out.Lines)))
	if s.Observer != nil {
		s.Observer.OrderCreated()
	}
	s.emit(TopicOrderCreated, EventOrderCreated, out.ID, OrderCreatedPayload{
		OrderID:    out.ID,
		UserID:     out.UserID,
		Status:     out.StatusName,
		Items:      itemsOf(out.Lines),
		TotalPrice: out.TotalPrice.StringFixed(2),
	})
	return out, nil
}

// UpdateOrderStatus is the admin transition. Moving to Canceled goes through the
// same stock restoration as CancelOrder; every other transition leaves stock alone.
func (s *Service) UpdateOrderStatus(ctx context.Context, p access.Principal, orderID, newStatus string) (Order, error) {
	if err := access.Admin(p); err != nil {
		return Order{}, err
	}
	if _, err := uuid.Parse(orderID); err != nil {
		return Order{}, apperr.OrderNotFound(orderID)
	}
	newStatus = strings.TrimSpace(newStatus)

	var (
		out  Order
		from string
	)
	err := s.Store.InTx(ctx, func(tx Tx) error {
		order, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return apperr.OrderNotFound(orderID)
		}
		if newStatus == "" {
			return apperr.Validation("status is required")
		}
		target, err := tx.StatusByName(ctx, newStatus)
		if err != nil {
			return err
		}
		if target == nil {
			return apperr.InvalidStatus(newStatus)
		}
		if !CanTransition(order.StatusName, target.Name) {
			return apperr.InvalidTransition(order.StatusName, target.Name)
		}
		from = order.StatusName
		if target.Is(statuses.Canceled) {
			return s.cancelLocked(ctx, tx, order, *target, &out)
		}
		if err := s.setStatus(ctx, tx, order, *target); err != nil {
			return err
		}
		out = *order
		return nil
	})
	if err != nil {
		return Order{}, s.fail("update order status", orderID, p.ID, err)
	}
	s.afterTransition(ctx, out, from)
	return out, nil
}

// CancelOrder lets the owner cancel a Pending order and restores every line's stock.
func (s *Service) CancelOrder(ctx context.Context, p access.Principal, orderID string) (Order, error) {
	if err := access.Authenticated(p); err != nil {
		return Order{}, err
	}
	if _, err := uuid.Parse(orderID); err != nil {
		return Order{}, apperr.OrderNotFound(orderID)
	}

	var out Order
	err := s.Store.InTx(ctx, func(tx Tx) error {
		order, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return apperr.OrderNotFound(orderID)
		}
		if err := access.Owner(p, order.UserID); err != nil {
			return apperr.Forbidden("you don't have permission to cancel this order")
		}
		if !strings.EqualFold(order.StatusName, statuses.Pending) {
			return apperr.InvalidTransition(order.StatusName, statuses.Canceled).
				With("reason", "only pending orders can be canceled")
		}
		canceled, err := tx.StatusByName(ctx, statuses.Canceled)
		if err != nil {
			return err
		}
		if canceled == nil {
			return apperr.Configuration("required status %q is not registered", statuses.Canceled)
		}
		return s.cancelLocked(ctx, tx, order, *canceled, &out)
	})
	if err != nil {
		return Order{}, s.fail("cancel order", orderID, p.ID, err)
	}
	s.afterTransition(ctx, out, statuses.Pending)
	return out, nil
}

// GetOrderDetails returns the order with its status name and lines.
// Only the owner or an admin may read it.
func (s *Service) GetOrderDetails(ctx context.Context, p access.Principal, orderID string) (Order, error) {
	if err := access.Authenticated(p); err != nil {
		return Order{}, err
	}
	if _, err := uuid.Parse(orderID); err != nil {
		return Order{}, apperr.OrderNotFound(orderID)
	}

	if s.Cache != nil {
		if o, ok := s.Cache.Get(ctx, orderID); ok {
			if err := access.OwnerOrAdmin(p, o.UserID); err != nil {
				return Order{}, err
			}
			return *o, nil
		}
	}

	o, err := s.Store.Detail(ctx, orderID)
	if err != nil {
		return Order{}, s.fail("get order", orderID, p.ID, err)
	}
	if o == nil {
		return Order{}, apperr.OrderNotFound(orderID)
	}
	if err := access.OwnerOrAdmin(p, o.UserID); err != nil {
		return Order{}, err
	}
	if s.Cache != nil {
		s.Cache.Set(ctx, *o)
	}
	return *o, nil
}

// ListUserOrders returns order summaries (no lines) for userID.
func (s *Service) ListUserOrders(ctx context.Context, p access.Principal, userID string) ([]Order, error) {
	if err := access.OwnerOrAdmin(p, userID); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(userID); err != nil {
		return nil, apperr.NotFound("user", userID)
	}
	out, err := s.Store.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.fail("list user orders", "", userID, err)
	}
	return out, nil
}

func (s *Service) cancelLocked(ctx context.Context, tx Tx, order *Order, canceled statuses.Status, out *Order) error {
	lines, err := tx.Lines(ctx, order.ID)
	if err != nil {
		return err
	}
	restore := map[string]int{}
	var ids []string
	for _, l := range lines {
		if _, seen := restore[l.ProductID]; !seen {
			ids = append(ids, l.ProductID)
		}
		restore[l.ProductID] += l.Quantity
	}
	// same lock order as CreateOrder
	sort.Strings(ids)
	for _, id := range ids {
		if err := tx.IncrementStock(ctx, id, restore[id]); err != nil {
			return err
		}
	}
	if err := s.setStatus(ctx, tx, order, canceled); err != nil {
		return err
	}
	order.Lines = lines
	*out = *order
	return nil
}

func (s *Service) setStatus(ctx context.Context, tx Tx, order *Order, target statuses.Status) error {
	now := s.Now().UTC()
	if err := tx.SetStatus(ctx, order.ID, target.ID, now); err != nil {
		return err
	}
	order.StatusID = target.ID
	order.StatusName = target.Name
	order.UpdatedAt = &now
	order.Version++
	return nil
}

func (s *Service) afterTransition(ctx context.Context, o Order, from string) {
	if s.Cache != nil {
		s.Cache.Invalidate(ctx, o.ID, o.Version)
	}
	s.Logger.Info("order status changed",
		zap.String("order_id", o.ID), zap.String("from", from), zap.String("to", o.StatusName))
	if s.Observer != nil {
		s.Observer.StatusChanged(o.StatusName)
	}
	s.emit(TopicOrderStatusChanged, EventOrderStatusChanged, o.ID, OrderStatusChangedPayload{
		OrderID: o.ID, From: from, To: o.StatusName,
	})
	if strings.EqualFold(o.StatusName, statuses.Canceled) {
		if s.Observer != nil {
			s.Observer.OrderCanceled()
		}
		s.emit(TopicOrderCanceled, EventOrderCanceled, o.ID, OrderCanceledPayload{
			OrderID: o.ID, UserID: o.UserID, Restored: itemsOf(o.Lines),
		})
	}
}

func (s *Service) emit(topic, eventType, orderID string, payload any) {
	if s.Events == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		s.Logger.Error("encode event payload", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	s.Events.PublishJSON(topic, PartitionKey(orderID), eventType, Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    s.Now().UTC(),
		Producer:      s.Producer,
		CorrelationID: orderID,
		Payload:       body,
	})
}

// fail translates store errors into the taxonomy. Business errors pass through
// silently; anything else is logged with its operation context first.
func (s *Service) fail(op, orderID, userID string, err error) error {
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	s.Logger.Error("order store failure",
		zap.String("op", op),
		zap.String("order_id", orderID),
		zap.String("user_id", userID),
		zap.Error(err))
	return postgres.Translate(err, "order")
}

type lineSet struct {
	lines []LineRequest // product ids canonicalised
	ids   []string      // sorted, distinct
	qty   map[string]int
}

func normaliseLines(lines []LineRequest) (lineSet, error) {
	if len(lines) == 0 {
		return lineSet{}, apperr.Validation("order must contain at least one product")
	}
	if len(lines) > MaxLinesPerOrder {
		return lineSet{}, apperr.Validation("order may contain at most %d lines", MaxLinesPerOrder)
	}
	set := lineSet{qty: map[string]int{}}
	for i, l := range lines {
		raw := strings.TrimSpace(l.ProductID)
		if raw == "" {
			return lineSet{}, apperr.Validation("line %d: product_id is required", i+1)
		}
		if l.Quantity < 1 {
			return lineSet{}, apperr.Validation("line %d: quantity must be at least 1", i+1).With("product_id", raw)
		}
		u, err := uuid.Parse(raw)
		if err != nil {
			return lineSet{}, apperr.ProductNotFound(raw)
		}
		id := u.String()
		if _, seen := set.qty[id]; !seen {
			set.ids = append(set.ids, id)
		}
		set.qty[id] += l.Quantity
		set.lines = append(set.lines, LineRequest{ProductID: id, Quantity: l.Quantity})
	}
	sort.Strings(set.ids)
	return set, nil
}

// priceLines checks existence, then availability and stock against the locked
// snapshot, and returns the exact decimal total.
func priceLines(products map[string]catalog.Product, wanted lineSet) (decimal.Decimal, error) {
	for _, l := range wanted.lines {
		if _, ok := products[l.ProductID]; !ok {
			return decimal.Zero, apperr.ProductNotFound(l.ProductID)
		}
	}
	for _, id := range wanted.ids {
		prod := products[id]
		if !prod.IsAvailable {
			return decimal.Zero, apperr.Validation("product %s is not available", prod.Name).With("product_id", id)
		}
		if prod.Stock < wanted.qty[id] {
			return decimal.Zero, apperr.InsufficientStock(id, prod.Stock, wanted.qty[id])
		}
	}
	total := decimal.Zero
	for _, l := range wanted.lines {
		total = total.Add(products[l.ProductID].Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total.Round(2), nil
}
