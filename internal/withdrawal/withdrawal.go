// Package withdrawal проверяет запросы на вывод средств и ведёт их жизненный цикл.
package withdrawal

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/storefront-payouts/internal/model"
	"github.com/mmeshcher/storefront-payouts/internal/validation"
	"github.com/mmeshcher/storefront-payouts/internal/wallet"
)

// MaxAmount максимальная сумма одного вывода в центах (R$1.000,00).
const MaxAmount int64 = 100000

var fees = map[model.WithdrawalType]int64{
	model.WithdrawalTypeAutomatic: 350,
	model.WithdrawalTypeManual:    100,
}

// FeeFor возвращает фиксированную комиссию способа выплаты.
func FeeFor(t model.WithdrawalType) (int64, error) {
	f, ok := fees[t]
	if !ok {
		return 0, fmt.Errorf("withdrawal type %q: %w", t, model.ErrInvalidWithdrawalType)
	}
	return f, nil
}

// CalculateNetAmount возвращает сумму, которую получит магазин после комиссии.
func CalculateNetAmount(amount int64, t model.WithdrawalType) (int64, error) {
	f, err := FeeFor(t)
	if err != nil {
		return 0, err
	}
	return max(0, amount-f), nil
}

// RequestParams параметры запроса на вывод.
type RequestParams struct {
	Amount     int64
	Type       model.WithdrawalType
	PixKey     string
	PixKeyType model.PixKeyType
}

// Request проверяет запрос против available кошелька и создаёт вывод в статусе pending.
// Кошелёк не списывается: списание происходит при одобрении.
func Request(w model.Wallet, p RequestParams, now time.Time) (*model.Withdrawal, error) {
	f, err := FeeFor(p.Type)
	if err != nil {
		return nil, err
	}

	switch {
	case p.Amount <= 0:
		return nil, fmt.Errorf("withdraw %d: %w", p.Amount, model.ErrInvalidAmount)
	case p.Amount > w.Available:
		return nil, fmt.Errorf("withdraw %d of %d: %w", p.Amount, w.Available, model.ErrInsufficientBalance)
	case p.Amount > MaxAmount:
		return nil, fmt.Errorf("withdraw %d over %d: %w", p.Amount, MaxAmount, model.ErrExceedsMaximum)
	case p.Amount <= f:
		return nil, fmt.Errorf("withdraw %d with fee %d: %w", p.Amount, f, model.ErrBelowFeeThreshold)
	}

	key := strings.TrimSpace(p.PixKey)
	if key == "" {
		return nil, model.ErrMissingDestination
	}
	if !validation.IsValidPixKey(p.PixKeyType, key) {
		return nil, fmt.Errorf("pix key of type %q: %w", p.PixKeyType, model.ErrInvalidDestination)
	}

	return &model.Withdrawal{
		ID:         uuid.New(),
		StoreID:    w.StoreID,
		Amount:     p.Amount,
		Fee:        f,
		NetAmount:  p.Amount - f,
		PixKey:     key,
		PixKeyType: p.PixKeyType,
		Type:       p.Type,
		Status:     model.WithdrawalStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Approve переводит вывод из pending в processing и списывает сумму с кошелька.
func Approve(l *wallet.Ledger, wd model.Withdrawal, w model.Wallet, now time.Time) (model.Withdrawal, model.Wallet, error) {
	if err := checkTransition(wd, model.WithdrawalStatusProcessing); err != nil {
		return wd, w, err
	}

	debited, err := l.Debit(w, wd.Amount, now)
	if err != nil {
		return wd, w, err
	}

	wd.Status = model.WithdrawalStatusProcessing
	wd.UpdatedAt = now
	return wd, debited, nil
}

// Complete завершает вывод, находящийся в processing.
func Complete(wd model.Withdrawal, now time.Time) (model.Withdrawal, error) {
	if err := checkTransition(wd, model.WithdrawalStatusCompleted); err != nil {
		return wd, err
	}

	wd.Status = model.WithdrawalStatusCompleted
	wd.CompletedAt = &now
	wd.UpdatedAt = now
	return wd, nil
}

// Reject отклоняет вывод в pending с указанием причины.
func Reject(wd model.Withdrawal, reason string, now time.Time) (model.Withdrawal, error) {
	if err := checkTransition(wd, model.WithdrawalStatusRejected); err != nil {
		return wd, err
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return wd, model.ErrMissingRejectReason
	}

	wd.Status = model.WithdrawalStatusRejected
	wd.RejectReason = reason
	wd.UpdatedAt = now
	return wd, nil
}

var transitions = map[model.WithdrawalStatus][]model.WithdrawalStatus{
	model.WithdrawalStatusPending:    {model.WithdrawalStatusProcessing, model.WithdrawalStatusRejected},
	model.WithdrawalStatusProcessing: {model.WithdrawalStatusCompleted},
}

// CanTransition сообщает, допустим ли переход между статусами.
func CanTransition(from, to model.WithdrawalStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(wd model.Withdrawal, to model.WithdrawalStatus) error {
	if !CanTransition(wd.Status, to) {
		return fmt.Errorf("withdrawal %s %s -> %s: %w", wd.ID, wd.Status, to, model.ErrIllegalTransition)
	}
	return nil
}
