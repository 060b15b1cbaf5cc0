package orders

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/preorder-backend/internal/realtime"
	"github.com/angelmondragon/preorder-backend/pkg/db/models"
	"github.com/angelmondragon/preorder-backend/pkg/enums"
)

func (s *service) view(ctx context.Context, order *models.Order) (*OrderView, error) {
	view := newOrderView(order, s.bestEffortNames(ctx, []models.Order{*order}))
	return &view, nil
}

func (s *service) views(ctx context.Context, orders []models.Order) ([]OrderView, error) {
	names := s.bestEffortNames(ctx, orders)
	out := make([]OrderView, 0, len(orders))
	for i := range orders {
		out = append(out, newOrderView(&orders[i], names))
	}
	return out, nil
}

// bestEffortNames resolves display names for a batch of orders.
// Lookup failures leave names empty; the ids still identify every party.
func (s *service) bestEffortNames(ctx context.Context, orders []models.Order) displayNames {
	names := displayNames{
		customers:   map[uuid.UUID]string{},
		restaurants: map[uuid.UUID]string{},
		items:       map[uuid.UUID]string{},
	}
	if len(orders) == 0 {
		return names
	}

	customerIDs := make([]uuid.UUID, 0, len(orders))
	restaurantIDs := make([]uuid.UUID, 0, len(orders))
	var itemIDs []uuid.UUID
	for _, order := range orders {
		customerIDs = append(customerIDs, order.CustomerID)
		restaurantIDs = append(restaurantIDs, order.RestaurantID)
		for _, line := range order.Lines {
			itemIDs = append(itemIDs, line.MenuItemID)
		}
	}

	if resolved, err := s.users.Names(ctx, customerIDs); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "order.names.customers_failed")
	} else {
		names.customers = resolved
	}
	if resolved, err := s.catalog.RestaurantNames(ctx, restaurantIDs); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "order.names.restaurants_failed")
	} else {
		names.restaurants = resolved
	}
	if len(itemIDs) > 0 {
		if resolved, err := s.catalog.MenuItemNames(ctx, itemIDs); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "order.names.items_failed")
		} else {
			names.items = resolved
		}
	}
	return names
}

// publish pushes a realtime event to each topic. Failures never fail the operation.
func (s *service) publish(ctx context.Context, name string, data any, topics ...string) {
	event, err := realtime.NewEvent(name, data, s.now())
	if err != nil {
		s.logg.Error(ctx, "realtime.encode_failed", err)
		return
	}
	for _, topic := range topics {
		if err := s.notifier.Publish(ctx, topic, event); err != nil {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"topic": topic,
				"event": name,
				"error": err.Error(),
			}), "realtime.publish_failed")
		}
	}
}

func (s *service) publishStatus(ctx context.Context, order *models.Order, from enums.OrderStatus) {
	update := StatusUpdate{
		OrderID:      order.ID,
		RestaurantID: order.RestaurantID,
		CustomerID:   order.CustomerID,
		From:         from,
		Status:       order.Status,
		CancelReason: order.CancelReason,
		RefundStatus: order.RefundStatus,
		UpdatedAt:    order.UpdatedAt,
	}
	s.publish(ctx, realtime.EventOrderStatusUpdate, update,
		realtime.RestaurantTopic(order.RestaurantID),
		realtime.UserTopic(order.CustomerID),
	)
}
