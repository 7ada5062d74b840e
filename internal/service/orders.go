package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-payouts/internal/fee"
	"github.com/mmeshcher/storefront-payouts/internal/goal"
	"github.com/mmeshcher/storefront-payouts/internal/model"
	"github.com/mmeshcher/storefront-payouts/internal/repository"
	"github.com/mmeshcher/storefront-payouts/internal/validation"
)

// CreateOrderParams параметры нового заказа.
type CreateOrderParams struct {
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	Subtotal      int64  `json:"subtotal"`
	Discount      int64  `json:"discount"`
	PaymentMethod string `json:"payment_method"`
}

var orderTransitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderStatusPending:  {model.OrderStatusPaid, model.OrderStatusApproved, model.OrderStatusCancelled},
	model.OrderStatusPaid:     {model.OrderStatusRefunded},
	model.OrderStatusApproved: {model.OrderStatusRefunded},
}

// CreateOrder сохраняет заказ в статусе pending.
func (s *Service) CreateOrder(ctx context.Context, storeID uuid.UUID, p CreateOrderParams) (*model.Order, error) {
	if p.Subtotal < 0 || p.Discount < 0 {
		return nil, fmt.Errorf("order subtotal %d discount %d: %w", p.Subtotal, p.Discount, model.ErrInvalidAmount)
	}
	if p.Discount > p.Subtotal {
		return nil, fmt.Errorf("discount %d over subtotal %d: %w", p.Discount, p.Subtotal, model.ErrInvalidAmount)
	}

	o := &model.Order{
		ID:            uuid.New(),
		StoreID:       storeID,
		CustomerName:  strings.TrimSpace(p.CustomerName),
		CustomerEmail: strings.TrimSpace(p.CustomerEmail),
		CustomerPhone: strings.TrimSpace(p.CustomerPhone),
		Subtotal:      p.Subtotal,
		Discount:      p.Discount,
		Total:         p.Subtotal - p.Discount,
		Status:        model.OrderStatusPending,
		PaymentMethod: p.PaymentMethod,
		CreatedAt:     s.now(),
	}
	if err := validation.Struct(o); err != nil {
		return nil, invalidInput("order: %v", err)
	}

	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		return tx.InsertOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// UpdateOrderStatus меняет статус заказа. При первом переходе в paid или approved
// чистая выручка зачисляется в кошелёк, а сумма заказа учитывается в целях магазина.
func (s *Service) UpdateOrderStatus(ctx context.Context, storeID, orderID uuid.UUID, status model.OrderStatus) (*model.Order, error) {
	switch status {
	case model.OrderStatusPaid, model.OrderStatusApproved, model.OrderStatusCancelled, model.OrderStatusRefunded:
	default:
		return nil, invalidInput("order status %q", status)
	}

	var res model.Order
	err := s.withStoreLock(ctx, storeID, func() error {
		return s.repo.InTx(ctx, func(tx repository.Tx) error {
			o, err := tx.GetOrder(ctx, orderID)
			if err != nil {
				return err
			}
			if o.StoreID != storeID {
				return fmt.Errorf("order %s of store %s: %w", orderID, storeID, model.ErrNotFound)
			}
			if !slices.Contains(orderTransitions[o.Status], status) {
				return fmt.Errorf("order %s %s -> %s: %w", o.ID, o.Status, status, model.ErrIllegalTransition)
			}

			credit := !o.Status.IsPaid() && status.IsPaid()
			o.Status = status
			if err := tx.UpdateOrder(ctx, o); err != nil {
				return err
			}

			if credit {
				if err := s.creditOrder(ctx, tx, o); err != nil {
					return err
				}
			}
			res = *o
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order status updated",
		zap.String("order_id", res.ID.String()),
		zap.String("store_id", storeID.String()),
		zap.String("status", string(res.Status)),
	)
	return &res, nil
}

func (s *Service) creditOrder(ctx context.Context, tx repository.Tx, o *model.Order) error {
	now := s.now()

	net, err := fee.NetAmount(o.Total)
	if err != nil {
		return err
	}

	w, exists, err := loadWallet(ctx, tx, o.StoreID, now)
	if err != nil {
		return err
	}
	w, _ = s.ledger.ReleaseMatured(w, now)
	w, err = s.ledger.CreditSale(w, o.ID, net, now)
	if err != nil {
		return err
	}
	w.UpdatedAt = now
	if err := storeWallet(ctx, tx, w, exists); err != nil {
		return err
	}

	return s.recordGoalRevenue(ctx, tx, o.StoreID, o.Total)
}

func (s *Service) recordGoalRevenue(ctx context.Context, tx repository.Tx, actorID uuid.UUID, amount int64) error {
	goals, err := tx.ListGoals(ctx)
	if err != nil {
		return err
	}
	if len(goals) == 0 {
		return nil
	}

	progress, err := loadProgress(ctx, tx, actorID)
	if err != nil {
		return err
	}

	changed, err := goal.Apply(goals, progress, actorID, amount, s.now())
	if err != nil {
		return err
	}
	for i := range changed {
		if err := tx.UpsertUserGoal(ctx, &changed[i]); err != nil {
			return err
		}
	}
	return nil
}

func loadProgress(ctx context.Context, tx repository.Tx, actorID uuid.UUID) (goal.Progress, error) {
	list, err := tx.ListUserGoals(ctx, actorID)
	if err != nil {
		return nil, err
	}
	progress := make(goal.Progress, len(list))
	for _, ug := range list {
		progress[ug.GoalID] = ug
	}
	return progress, nil
}
