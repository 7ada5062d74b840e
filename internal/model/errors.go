package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount возвращается для неположительной или некорректной суммы.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInsufficientBalance возвращается, если сумма превышает доступный баланс.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrExceedsMaximum возвращается, если сумма вывода выше лимита платформы.
	ErrExceedsMaximum = errors.New("amount exceeds withdrawal maximum")
	// ErrBelowFeeThreshold возвращается, если сумма вывода не покрывает комиссию.
	ErrBelowFeeThreshold = errors.New("amount does not exceed withdrawal fee")
	// ErrMissingDestination возвращается, если не указан ключ выплаты.
	ErrMissingDestination = errors.New("payout key is missing")
	// ErrInvalidDestination возвращается, если ключ выплаты не соответствует своему типу.
	ErrInvalidDestination = errors.New("payout key does not match its type")
	// ErrInvalidWithdrawalType возвращается для неизвестного способа выплаты.
	ErrInvalidWithdrawalType = errors.New("unknown withdrawal type")
	// ErrIllegalTransition возвращается при недопустимой смене статуса.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrMissingRejectReason возвращается при отклонении без причины.
	ErrMissingRejectReason = errors.New("reject reason is required")
	// ErrWalletNotApproved возвращается, если кошелёк ещё не одобрен для выводов.
	ErrWalletNotApproved = errors.New("wallet is not approved for withdrawals")
	// ErrInvalidInput возвращается для некорректных параметров заказа, цели или фильтра.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound возвращается, если запись отсутствует в хранилище.
	ErrNotFound = errors.New("record not found")
	// ErrConflict возвращается при нарушении уникальности.
	ErrConflict = errors.New("record already exists")
	// ErrLockHeld возвращается, если блокировка магазина занята.
	ErrLockHeld = errors.New("store lock already held")
	// ErrStore является общей ошибкой хранилища, на неё ссылается StoreError.
	ErrStore = errors.New("store error")
)

// StoreError оборачивает сбой хранилища данных.
type StoreError struct {
	Op  string
	Err error
}

// NewStoreError создаёт StoreError для операции op.
func NewStoreError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err}
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is позволяет сопоставлять любую StoreError с ErrStore.
func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}
