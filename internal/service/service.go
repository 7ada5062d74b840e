// Package service реализует бизнес-логику выплат витрины поверх чистых компонентов и хранилища.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-payouts/internal/fee"
	"github.com/mmeshcher/storefront-payouts/internal/lock"
	"github.com/mmeshcher/storefront-payouts/internal/model"
	"github.com/mmeshcher/storefront-payouts/internal/repository"
	"github.com/mmeshcher/storefront-payouts/internal/wallet"
)

const releaseBatchSize = 100

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	InTx(ctx context.Context, fn repository.TxFunc) error
	ListWithdrawalsByStore(ctx context.Context, storeID uuid.UUID) ([]model.Withdrawal, error)
	ListWithdrawalsByStatus(ctx context.Context, status model.WithdrawalStatus, limit int) ([]model.Withdrawal, error)
	ListStoresWithDueHolds(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// Service содержит бизнес-логику выплат: зачисления, выводы и цели.
type Service struct {
	repo   Repository
	locker lock.Locker
	ledger *wallet.Ledger
	logger *zap.Logger
	now    func() time.Time
}

// NewService создаёт сервис с указанным хранилищем, блокировщиком и политикой кошелька.
func NewService(repo Repository, locker lock.Locker, policy wallet.Policy, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		locker: locker,
		ledger: wallet.NewLedger(policy),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// SaleQuote возвращает комиссию платформы и чистую сумму продажи.
func (s *Service) SaleQuote(gross int64) (fee.Breakdown, error) {
	return fee.Sale(gross)
}

// withStoreLock выполняет fn под блокировкой магазина.
func (s *Service) withStoreLock(ctx context.Context, storeID uuid.UUID, fn func() error) error {
	release, err := s.locker.Acquire(ctx, "store:"+storeID.String())
	if err != nil {
		return err
	}
	defer release()

	return fn()
}

// loadWallet возвращает кошелёк магазина или пустой, если его ещё нет.
func loadWallet(ctx context.Context, tx repository.Tx, storeID uuid.UUID, now time.Time) (model.Wallet, bool, error) {
	w, err := tx.GetWallet(ctx, storeID)
	if errors.Is(err, model.ErrNotFound) {
		return wallet.New(storeID, now), false, nil
	}
	if err != nil {
		return model.Wallet{}, false, err
	}
	return *w, true, nil
}

func storeWallet(ctx context.Context, tx repository.Tx, w model.Wallet, exists bool) error {
	if err := wallet.CheckConsistency(w); err != nil {
		return err
	}
	if exists {
		return tx.SaveWallet(ctx, &w)
	}
	return tx.InsertWallet(ctx, &w)
}

// BalanceView баланс кошелька для отображения.
type BalanceView struct {
	wallet.Balance
	IsApproved         bool       `json:"is_approved"`
	PendingWithdrawals int64      `json:"pending_withdrawals"`
	NextReleaseAt      *time.Time `json:"next_release_at,omitempty"`
}

// GetBalance освобождает созревшие удержания и возвращает разделы баланса магазина.
func (s *Service) GetBalance(ctx context.Context, storeID uuid.UUID) (*BalanceView, error) {
	var view BalanceView

	err := s.withStoreLock(ctx, storeID, func() error {
		return s.repo.InTx(ctx, func(tx repository.Tx) error {
			now := s.now()
			w, exists, err := loadWallet(ctx, tx, storeID, now)
			if err != nil {
				return err
			}

			w, released := s.ledger.ReleaseMatured(w, now)
			if exists && released > 0 {
				w.UpdatedAt = now
				if err := storeWallet(ctx, tx, w, true); err != nil {
					return err
				}
			}

			pending, err := tx.SumPendingWithdrawals(ctx, storeID)
			if err != nil {
				return err
			}

			view = BalanceView{
				Balance:            wallet.GetBalance(w),
				IsApproved:         w.IsApproved,
				PendingWithdrawals: pending,
			}
			if at, ok := wallet.NextRelease(w); ok {
				view.NextReleaseAt = &at
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// ReleaseMatured переводит созревшие удержания магазина в available и возвращает переведённую сумму.
func (s *Service) ReleaseMatured(ctx context.Context, storeID uuid.UUID) (int64, error) {
	var released int64

	err := s.withStoreLock(ctx, storeID, func() error {
		return s.repo.InTx(ctx, func(tx repository.Tx) error {
			w, err := tx.GetWallet(ctx, storeID)
			if err != nil {
				return err
			}

			now := s.now()
			next, amount := s.ledger.ReleaseMatured(*w, now)
			if amount == 0 {
				return nil
			}
			next.UpdatedAt = now
			released = amount
			return storeWallet(ctx, tx, next, true)
		})
	})
	return released, err
}

// StartReleaseSweeper запускает фоновое освобождение созревших удержаний.
func (s *Service) StartReleaseSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processReleaseBatch(ctx)
			}
		}
	}()
}

func (s *Service) processReleaseBatch(ctx context.Context) {
	ids, err := s.repo.ListStoresWithDueHolds(ctx, s.now(), releaseBatchSize)
	if err != nil {
		s.logger.Error("list stores with due holds", zap.Error(err))
		return
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}

		amount, err := s.ReleaseMatured(ctx, id)
		if err != nil {
			s.logger.Warn("release matured holds", zap.String("store_id", id.String()), zap.Error(err))
			continue
		}
		if amount > 0 {
			s.logger.Debug("holds released", zap.String("store_id", id.String()), zap.Int64("amount", amount))
		}
	}
}

// ApproveWallet разрешает магазину выводить средства. Создаёт кошелёк, если его нет.
func (s *Service) ApproveWallet(ctx context.Context, storeID uuid.UUID) (*model.Wallet, error) {
	var res model.Wallet

	err := s.withStoreLock(ctx, storeID, func() error {
		return s.repo.InTx(ctx, func(tx repository.Tx) error {
			now := s.now()
			w, exists, err := loadWallet(ctx, tx, storeID, now)
			if err != nil {
				return err
			}
			if w.IsApproved {
				res = w
				return nil
			}

			w.IsApproved = true
			w.UpdatedAt = now
			if err := storeWallet(ctx, tx, w, exists); err != nil {
				return err
			}
			res = w
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("wallet approved", zap.String("store_id", storeID.String()))
	return &res, nil
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), model.ErrInvalidInput)
}
