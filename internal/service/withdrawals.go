package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-payouts/internal/model"
	"github.com/mmeshcher/storefront-payouts/internal/repository"
	"github.com/mmeshcher/storefront-payouts/internal/withdrawal"
)

const defaultListLimit = 100

// Quote комиссия и чистая сумма вывода до отправки запроса.
type Quote struct {
	Amount    int64                `json:"amount"`
	Type      model.WithdrawalType `json:"type"`
	Fee       int64                `json:"fee"`
	NetAmount int64                `json:"net_amount"`
	MaxAmount int64                `json:"max_amount"`
}

// QuoteWithdrawal рассчитывает комиссию и чистую сумму вывода.
func (s *Service) QuoteWithdrawal(amount int64, t model.WithdrawalType) (*Quote, error) {
	f, err := withdrawal.FeeFor(t)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("quote %d: %w", amount, model.ErrInvalidAmount)
	}

	net, err := withdrawal.CalculateNetAmount(amount, t)
	if err != nil {
		return nil, err
	}
	return &Quote{Amount: amount, Type: t, Fee: f, NetAmount: net, MaxAmount: withdrawal.MaxAmount}, nil
}

// RequestWithdrawal создаёт вывод в статусе pending. Сумма проверяется против available
// за вычетом выводов, ожидающих одобрения.
func (s *Service) RequestWithdrawal(ctx context.Context, storeID uuid.UUID, p withdrawal.RequestParams) (*model.Withdrawal, error) {
	var res *model.Withdrawal

	err := s.withStoreLock(ctx, storeID, func() error {
		return s.repo.InTx(ctx, func(tx repository.Tx) error {
			now := s.now()
			w, exists, err := loadWallet(ctx, tx, storeID, now)
			if err != nil {
				return err
			}
			if !w.IsApproved {
				return fmt.Errorf("store %s: %w", storeID, model.ErrWalletNotApproved)
			}

			w, released := s.ledger.ReleaseMatured(w, now)
			if exists && released > 0 {
				w.UpdatedAt = now
				if err := storeWallet(ctx, tx, w, true); err != nil {
					return err
				}
			}

			reserved, err := tx.SumPendingWithdrawals(ctx, storeID)
			if err != nil {
				return err
			}
			view := w
			view.Available = max(0, w.Available-reserved)

			wd, err := withdrawal.Request(view, p, now)
			if err != nil {
				return err
			}
			if err := tx.InsertWithdrawal(ctx, wd); err != nil {
				return err
			}
			res = wd
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("withdrawal requested",
		zap.String("withdrawal_id", res.ID.String()),
		zap.String("store_id", storeID.String()),
		zap.Int64("amount", res.Amount),
		zap.String("type", string(res.Type)),
	)
	return res, nil
}

// ApproveWithdrawal переводит вывод в processing и списывает сумму с кошелька магазина.
func (s *Service) ApproveWithdrawal(ctx context.Context, id uuid.UUID) (*model.Withdrawal, error) {
	storeID, err := s.withdrawalStore(ctx, id)
	if err != nil {
		return nil, err
	}

	var res model.Withdrawal
	err = s.withStoreLock(ctx, storeID, func() error {
		return s.repo.InTx(ctx, func(tx repository.Tx) error {
			wd, err := tx.GetWithdrawal(ctx, id)
			if err != nil {
				return err
			}
			w, err := tx.GetWallet(ctx, wd.StoreID)
			if err != nil {
				return err
			}

			now := s.now()
			released, _ := s.ledger.ReleaseMatured(*w, now)
			approved, debited, err := withdrawal.Approve(s.ledger, *wd, released, now)
			if err != nil {
				return err
			}

			if err := storeWallet(ctx, tx, debited, true); err != nil {
				return err
			}
			if err := tx.UpdateWithdrawal(ctx, &approved); err != nil {
				return err
			}
			res = approved
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("withdrawal approved",
		zap.String("withdrawal_id", id.String()),
		zap.String("store_id", storeID.String()),
		zap.Int64("amount", res.Amount),
	)
	return &res, nil
}

// CompleteWithdrawal отмечает вывод выплаченным.
func (s *Service) CompleteWithdrawal(ctx context.Context, id uuid.UUID) (*model.Withdrawal, error) {
	return s.transition(ctx, id, func(wd model.Withdrawal) (model.Withdrawal, error) {
		return withdrawal.Complete(wd, s.now())
	})
}

// RejectWithdrawal отклоняет вывод, ожидающий одобрения. Кошелёк не меняется.
func (s *Service) RejectWithdrawal(ctx context.Context, id uuid.UUID, reason string) (*model.Withdrawal, error) {
	return s.transition(ctx, id, func(wd model.Withdrawal) (model.Withdrawal, error) {
		return withdrawal.Reject(wd, reason, s.now())
	})
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, fn func(model.Withdrawal) (model.Withdrawal, error)) (*model.Withdrawal, error) {
	var res model.Withdrawal

	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		wd, err := tx.GetWithdrawal(ctx, id)
		if err != nil {
			return err
		}
		next, err := fn(*wd)
		if err != nil {
			return err
		}
		if err := tx.UpdateWithdrawal(ctx, &next); err != nil {
			return err
		}
		res = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("withdrawal status updated",
		zap.String("withdrawal_id", id.String()),
		zap.String("status", string(res.Status)),
	)
	return &res, nil
}

func (s *Service) withdrawalStore(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var storeID uuid.UUID
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		wd, err := tx.GetWithdrawal(ctx, id)
		if err != nil {
			return err
		}
		storeID = wd.StoreID
		return nil
	})
	return storeID, err
}

// ListWithdrawals возвращает историю выводов магазина.
func (s *Service) ListWithdrawals(ctx context.Context, storeID uuid.UUID) ([]model.Withdrawal, error) {
	return s.repo.ListWithdrawalsByStore(ctx, storeID)
}

// ListWithdrawalsByStatus возвращает выводы в статусе для очереди администратора.
func (s *Service) ListWithdrawalsByStatus(ctx context.Context, status model.WithdrawalStatus, limit int) ([]model.Withdrawal, error) {
	switch status {
	case model.WithdrawalStatusPending, model.WithdrawalStatusProcessing,
		model.WithdrawalStatusCompleted, model.WithdrawalStatusRejected:
	default:
		return nil, invalidInput("withdrawal status %q", status)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.repo.ListWithdrawalsByStatus(ctx, status, limit)
}
