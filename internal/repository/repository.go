// Package repository содержит реализации хранилища данных: PostgreSQL и хранилище в памяти.
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/mmeshcher/storefront-payouts/internal/model"
	"github.com/mmeshcher/storefront-payouts/internal/validation"
)

// Tx операции над записями внутри одной транзакции.
// Методы Get* блокируют строку до конца транзакции.
type Tx interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)
	InsertOrder(ctx context.Context, o *model.Order) error
	UpdateOrder(ctx context.Context, o *model.Order) error

	GetWallet(ctx context.Context, storeID uuid.UUID) (*model.Wallet, error)
	InsertWallet(ctx context.Context, w *model.Wallet) error
	SaveWallet(ctx context.Context, w *model.Wallet) error

	GetWithdrawal(ctx context.Context, id uuid.UUID) (*model.Withdrawal, error)
	InsertWithdrawal(ctx context.Context, wd *model.Withdrawal) error
	UpdateWithdrawal(ctx context.Context, wd *model.Withdrawal) error
	SumPendingWithdrawals(ctx context.Context, storeID uuid.UUID) (int64, error)

	ListGoals(ctx context.Context) ([]model.Goal, error)
	InsertGoal(ctx context.Context, g *model.Goal) error
	UpdateGoal(ctx context.Context, g *model.Goal) error
	ListUserGoals(ctx context.Context, actorID uuid.UUID) ([]model.UserGoal, error)
	UpsertUserGoal(ctx context.Context, ug *model.UserGoal) error
}

// TxFunc выполняется внутри транзакции. Ошибка откатывает транзакцию.
type TxFunc func(tx Tx) error

// checkRecord проверяет запись, пришедшую из хранилища, и превращает некорректную в StoreError.
func checkRecord(op string, v any) error {
	if err := validation.Struct(v); err != nil {
		return model.NewStoreError(op+": malformed record", err)
	}
	return nil
}
