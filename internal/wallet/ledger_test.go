package wallet

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/storefront-payouts/internal/model"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestWallet() model.Wallet {
	return New(uuid.New(), t0)
}

func TestCreditSale_Scenario(t *testing.T) {
	l := NewLedger(DefaultPolicy())

	w, err := l.CreditSale(newTestWallet(), uuid.New(), 4760, t0)
	require.NoError(t, err)

	assert.Equal(t, int64(190), w.Reserved)
	assert.Equal(t, int64(4570), w.Pending)
	assert.Equal(t, int64(0), w.Available)
	assert.Equal(t, int64(4760), w.Total())
	require.Len(t, w.Holds, 2)
	require.NoError(t, CheckConsistency(w))
}

func TestCreditSale_Negative(t *testing.T) {
	l := NewLedger(DefaultPolicy())

	_, err := l.CreditSale(newTestWallet(), uuid.New(), -5, t0)
	if !errors.Is(err, model.ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
}

func TestCreditSale_DoesNotMutateInput(t *testing.T) {
	l := NewLedger(DefaultPolicy())
	w := newTestWallet()

	w1, err := l.CreditSale(w, uuid.New(), 1000, t0)
	require.NoError(t, err)
	_, err = l.CreditSale(w1, uuid.New(), 2000, t0.Add(time.Minute))
	require.NoError(t, err)

	assert.Len(t, w1.Holds, 2)
	assert.Empty(t, w.Holds)
}

func TestCreditSale_ReserveHoldForLargestSale(t *testing.T) {
	p := DefaultPolicy()
	l := NewLedger(p)
	w := newTestWallet()

	w, err := l.CreditSale(w, uuid.New(), 10000, t0)
	require.NoError(t, err)
	w, err = l.CreditSale(w, uuid.New(), 5000, t0.Add(time.Hour))
	require.NoError(t, err)
	w, err = l.CreditSale(w, uuid.New(), 3000, t0.Add(30*time.Hour))
	require.NoError(t, err)

	reserved := map[int64]time.Time{}
	for _, h := range w.Holds {
		if h.Partition == model.PartitionReserved {
			reserved[h.SaleAmount] = h.ReleaseAt
		}
	}

	assert.Equal(t, t0.Add(p.PendingHold+p.ReserveExtraHold), reserved[10000], "largest in window")
	assert.Equal(t, t0.Add(time.Hour+p.PendingHold), reserved[5000], "smaller than a sale within 24h")
	assert.Equal(t, t0.Add(30*time.Hour+p.PendingHold+p.ReserveExtraHold), reserved[3000], "alone in its window")
}

func TestReleaseMatured(t *testing.T) {
	p := DefaultPolicy()
	l := NewLedger(p)

	w, err := l.CreditSale(newTestWallet(), uuid.New(), 4760, t0)
	require.NoError(t, err)

	w, released := l.ReleaseMatured(w, t0.Add(p.PendingHold-time.Second))
	assert.Equal(t, int64(0), released)
	assert.Equal(t, int64(0), w.Available)

	w, released = l.ReleaseMatured(w, t0.Add(p.PendingHold))
	assert.Equal(t, int64(4570), released)
	assert.Equal(t, int64(4570), w.Available)
	assert.Equal(t, int64(0), w.Pending)
	assert.Equal(t, int64(190), w.Reserved)

	w, released = l.ReleaseMatured(w, t0.Add(p.PendingHold+p.ReserveExtraHold))
	assert.Equal(t, int64(190), released)
	assert.Equal(t, int64(4760), w.Available)
	assert.Equal(t, int64(0), w.Reserved)
	assert.Empty(t, w.Holds)
	require.NoError(t, CheckConsistency(w))
}

func TestDebit(t *testing.T) {
	l := NewLedger(DefaultPolicy())
	w := newTestWallet()
	w.Available = 5000

	_, err := l.Debit(w, 5001, t0)
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)

	_, err = l.Debit(w, 0, t0)
	assert.ErrorIs(t, err, model.ErrInvalidAmount)

	debitedAt := t0.Add(time.Hour)
	w, err = l.Debit(w, 5000, debitedAt)
	require.NoError(t, err)
	assert.Equal(t, int64(0), w.Available)
	assert.Equal(t, debitedAt, w.UpdatedAt)
}

func TestPartitionsStayNonNegative(t *testing.T) {
	p := DefaultPolicy()
	l := NewLedger(p)
	w := newTestWallet()
	now := t0

	for i := 0; i < 60; i++ {
		now = now.Add(13 * time.Hour)

		var err error
		w, err = l.CreditSale(w, uuid.New(), int64(100+i*37), now)
		require.NoError(t, err)

		w, _ = l.ReleaseMatured(w, now)

		if w.Available > 0 && i%3 == 0 {
			w, err = l.Debit(w, w.Available/2+1, now)
			require.NoError(t, err)
		}
		_, err = l.Debit(w, w.Available+1, now)
		require.ErrorIs(t, err, model.ErrInsufficientBalance)

		require.NoError(t, CheckConsistency(w))
	}
}

func TestGetBalanceAndNextRelease(t *testing.T) {
	p := DefaultPolicy()
	l := NewLedger(p)

	w := newTestWallet()
	_, ok := NextRelease(w)
	assert.False(t, ok)

	w, err := l.CreditSale(w, uuid.New(), 1000, t0)
	require.NoError(t, err)
	w.Available = 300

	assert.Equal(t, Balance{Available: 300, Pending: 960, Reserved: 40, Total: 1300}, GetBalance(w))

	next, ok := NextRelease(w)
	require.True(t, ok)
	assert.Equal(t, t0.Add(p.PendingHold), next)
}

func TestLargestSaleDecidedAtCredit(t *testing.T) {
	p := DefaultPolicy()
	l := NewLedger(p)

	smallOrder, bigOrder := uuid.New(), uuid.New()
	w, err := l.CreditSale(newTestWallet(), smallOrder, 1000, t0)
	require.NoError(t, err)
	w, err = l.CreditSale(w, bigOrder, 9000, t0.Add(time.Hour))
	require.NoError(t, err)

	reserveRelease := map[uuid.UUID]time.Time{}
	for _, h := range w.Holds {
		if h.Partition == model.PartitionReserved {
			reserveRelease[h.OrderID] = h.ReleaseAt
		}
	}
	require.Len(t, reserveRelease, 2)

	// Более крупная продажа позже не отменяет уже назначенные +24 часа.
	assert.Equal(t, t0.Add(p.PendingHold+p.ReserveExtraHold), reserveRelease[smallOrder])
	assert.Equal(t, t0.Add(time.Hour+p.PendingHold+p.ReserveExtraHold), reserveRelease[bigOrder])

	w, err = l.CreditSale(w, uuid.New(), 500, t0.Add(2*time.Hour))
	require.NoError(t, err)
	last := w.Holds[len(w.Holds)-1]
	require.Equal(t, model.PartitionReserved, last.Partition)
	assert.Equal(t, t0.Add(2*time.Hour+p.PendingHold), last.ReleaseAt)
}
