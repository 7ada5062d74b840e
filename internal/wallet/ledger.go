// Package wallet ведёт разделы баланса магазина и правила их созревания.
package wallet

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storefront-payouts/internal/fee"
	"github.com/mmeshcher/storefront-payouts/internal/model"
)

// Policy задаёт доли и сроки удержания средств.
type Policy struct {
	ReserveFraction   decimal.Decimal
	PendingHold       time.Duration
	ReserveExtraHold  time.Duration
	LargestSaleWindow time.Duration
}

// DefaultPolicy возвращает политику платформы: резерв 4%, удержание 15 дней,
// дополнительные 24 часа для крупнейшей продажи за скользящие сутки.
func DefaultPolicy() Policy {
	return Policy{
		ReserveFraction:   decimal.RequireFromString("0.04"),
		PendingHold:       15 * 24 * time.Hour,
		ReserveExtraHold:  24 * time.Hour,
		LargestSaleWindow: 24 * time.Hour,
	}
}

// Balance разделы баланса и их сумма.
type Balance struct {
	Available int64 `json:"available"`
	Pending   int64 `json:"pending"`
	Reserved  int64 `json:"reserved"`
	Total     int64 `json:"total"`
}

// Ledger применяет политику к кошелькам. Не хранит состояние.
type Ledger struct {
	policy Policy
}

// NewLedger создаёт Ledger с указанной политикой.
func NewLedger(p Policy) *Ledger {
	return &Ledger{policy: p}
}

// Policy возвращает действующую политику.
func (l *Ledger) Policy() Policy {
	return l.policy
}

// New возвращает пустой кошелёк магазина.
func New(storeID uuid.UUID, now time.Time) model.Wallet {
	return model.Wallet{StoreID: storeID, CreatedAt: now, UpdatedAt: now}
}

// CreditSale зачисляет чистую выручку продажи: доля резерва уходит в reserved,
// остаток в pending. Каждая часть получает собственную запись удержания.
func (l *Ledger) CreditSale(w model.Wallet, orderID uuid.UUID, net int64, now time.Time) (model.Wallet, error) {
	if net < 0 {
		return w, fmt.Errorf("credit %d: %w", net, model.ErrInvalidAmount)
	}

	reserve := fee.Percent(net, l.policy.ReserveFraction)
	pending := net - reserve

	holds := slices.Clone(w.Holds)
	if pending > 0 {
		holds = append(holds, model.Hold{
			ID:         uuid.New(),
			StoreID:    w.StoreID,
			OrderID:    orderID,
			Partition:  model.PartitionPending,
			Amount:     pending,
			SaleAmount: net,
			CreditedAt: now,
			ReleaseAt:  now.Add(l.policy.PendingHold),
		})
	}
	if reserve > 0 {
		releaseAt := now.Add(l.policy.PendingHold)
		if l.isLargestInWindow(w.Holds, net, now) {
			releaseAt = releaseAt.Add(l.policy.ReserveExtraHold)
		}
		holds = append(holds, model.Hold{
			ID:         uuid.New(),
			StoreID:    w.StoreID,
			OrderID:    orderID,
			Partition:  model.PartitionReserved,
			Amount:     reserve,
			SaleAmount: net,
			CreditedAt: now,
			ReleaseAt:  releaseAt,
		})
	}

	w.Holds = holds
	w.Pending += pending
	w.Reserved += reserve
	w.UpdatedAt = now
	return w, nil
}

// isLargestInWindow сообщает, что продажа не меньше любой другой, зачисленной
// в резерв за окно LargestSaleWindow до now.
func (l *Ledger) isLargestInWindow(holds []model.Hold, sale int64, now time.Time) bool {
	from := now.Add(-l.policy.LargestSaleWindow)
	for _, h := range holds {
		if h.Partition != model.PartitionReserved || h.CreditedAt.Before(from) || h.CreditedAt.After(now) {
			continue
		}
		if h.SaleAmount > sale {
			return false
		}
	}
	return true
}

// ReleaseMatured переводит созревшие удержания в available и возвращает переведённую сумму.
func (l *Ledger) ReleaseMatured(w model.Wallet, now time.Time) (model.Wallet, int64) {
	var released int64
	kept := make([]model.Hold, 0, len(w.Holds))

	for _, h := range w.Holds {
		if h.ReleaseAt.After(now) {
			kept = append(kept, h)
			continue
		}
		switch h.Partition {
		case model.PartitionPending:
			w.Pending -= h.Amount
		case model.PartitionReserved:
			w.Reserved -= h.Amount
		}
		w.Available += h.Amount
		released += h.Amount
	}

	if released == 0 {
		return w, 0
	}
	w.Holds = kept
	w.UpdatedAt = now
	return w, released
}

// Debit списывает сумму с available. Сумма больше доступной отклоняется, а не урезается.
func (l *Ledger) Debit(w model.Wallet, amount int64, now time.Time) (model.Wallet, error) {
	if amount <= 0 {
		return w, fmt.Errorf("debit %d: %w", amount, model.ErrInvalidAmount)
	}
	if amount > w.Available {
		return w, fmt.Errorf("debit %d of %d: %w", amount, w.Available, model.ErrInsufficientBalance)
	}
	w.Available -= amount
	w.UpdatedAt = now
	return w, nil
}

// GetBalance возвращает разделы баланса кошелька.
func GetBalance(w model.Wallet) Balance {
	return Balance{
		Available: w.Available,
		Pending:   w.Pending,
		Reserved:  w.Reserved,
		Total:     w.Total(),
	}
}

// NextRelease возвращает ближайший момент созревания удержаний.
func NextRelease(w model.Wallet) (time.Time, bool) {
	var next time.Time
	for _, h := range w.Holds {
		if next.IsZero() || h.ReleaseAt.Before(next) {
			next = h.ReleaseAt
		}
	}
	return next, !next.IsZero()
}

// CheckConsistency проверяет, что разделы совпадают с суммами удержаний.
func CheckConsistency(w model.Wallet) error {
	var pending, reserved int64
	for _, h := range w.Holds {
		switch h.Partition {
		case model.PartitionPending:
			pending += h.Amount
		case model.PartitionReserved:
			reserved += h.Amount
		}
	}
	if pending != w.Pending || reserved != w.Reserved {
		return fmt.Errorf("wallet %s: holds pending=%d reserved=%d, partitions pending=%d reserved=%d",
			w.StoreID, pending, reserved, w.Pending, w.Reserved)
	}
	if w.Available < 0 || w.Pending < 0 || w.Reserved < 0 {
		return fmt.Errorf("wallet %s: negative partition", w.StoreID)
	}
	return nil
}
