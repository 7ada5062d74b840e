package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/storefront-payouts/internal/lock"
	"github.com/mmeshcher/storefront-payouts/internal/model"
	"github.com/mmeshcher/storefront-payouts/internal/repository"
	"github.com/mmeshcher/storefront-payouts/internal/wallet"
	"github.com/mmeshcher/storefront-payouts/internal/withdrawal"
)

var start = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T) (*Service, *clock) {
	t.Helper()

	c := &clock{now: start}
	svc := NewService(repository.NewMemoryRepository(), lock.NewMemoryLocker(), wallet.DefaultPolicy(), nil)
	svc.now = c.Now
	return svc, c
}

func emailWithdrawal(amount int64) withdrawal.RequestParams {
	return withdrawal.RequestParams{
		Amount:     amount,
		Type:       model.WithdrawalTypeAutomatic,
		PixKey:     "seller@example.com",
		PixKeyType: model.PixKeyEmail,
	}
}

func paidOrder(t *testing.T, svc *Service, storeID uuid.UUID, subtotal int64) *model.Order {
	t.Helper()
	ctx := context.Background()

	o, err := svc.CreateOrder(ctx, storeID, CreateOrderParams{CustomerName: "Ana", Subtotal: subtotal})
	require.NoError(t, err)

	o, err = svc.UpdateOrderStatus(ctx, storeID, o.ID, model.OrderStatusPaid)
	require.NoError(t, err)
	return o
}

func TestSaleQuote(t *testing.T) {
	svc, _ := newTestService(t)

	b, err := svc.SaleQuote(4990)
	require.NoError(t, err)
	assert.Equal(t, int64(230), b.Fee)
	assert.Equal(t, int64(4760), b.Net)

	_, err = svc.SaleQuote(-1)
	assert.ErrorIs(t, err, model.ErrInvalidAmount)
}

func TestCreateOrder_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	storeID := uuid.New()

	_, err := svc.CreateOrder(ctx, storeID, CreateOrderParams{Subtotal: 100, Discount: 200})
	assert.ErrorIs(t, err, model.ErrInvalidAmount)

	_, err = svc.CreateOrder(ctx, storeID, CreateOrderParams{Subtotal: 100, CustomerEmail: "not-an-email"})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	o, err := svc.CreateOrder(ctx, storeID, CreateOrderParams{Subtotal: 5000, Discount: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(4990), o.Total)
	assert.Equal(t, model.OrderStatusPending, o.Status)
}

func TestUpdateOrderStatus_CreditsOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	storeID := uuid.New()

	o := paidOrder(t, svc, storeID, 4990)

	bal, err := svc.GetBalance(ctx, storeID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.Available)
	assert.Equal(t, int64(4570), bal.Pending)
	assert.Equal(t, int64(190), bal.Reserved)
	assert.Equal(t, int64(4760), bal.Total)
	require.NotNil(t, bal.NextReleaseAt)
	assert.Equal(t, start.Add(15*24*time.Hour), *bal.NextReleaseAt)

	_, err = svc.UpdateOrderStatus(ctx, storeID, o.ID, model.OrderStatusApproved)
	assert.ErrorIs(t, err, model.ErrIllegalTransition)

	_, err = svc.UpdateOrderStatus(ctx, storeID, o.ID, model.OrderStatusRefunded)
	require.NoError(t, err)

	bal, err = svc.GetBalance(ctx, storeID)
	require.NoError(t, err)
	assert.Equal(t, int64(4760), bal.Total)
}

func TestUpdateOrderStatus_Errors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	storeID := uuid.New()

	o, err := svc.CreateOrder(ctx, storeID, CreateOrderParams{Subtotal: 1000})
	require.NoError(t, err)

	_, err = svc.UpdateOrderStatus(ctx, uuid.New(), o.ID, model.OrderStatusPaid)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = svc.UpdateOrderStatus(ctx, storeID, o.ID, "shipped")
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = svc.UpdateOrderStatus(ctx, storeID, o.ID, model.OrderStatusCancelled)
	require.NoError(t, err)

	_, err = svc.UpdateOrderStatus(ctx, storeID, o.ID, model.OrderStatusPaid)
	assert.ErrorIs(t, err, model.ErrIllegalTransition)

	_, err = svc.GetBalance(ctx, storeID)
	require.NoError(t, err)
}

func TestWithdrawalLifecycle(t *testing.T) {
	svc, c := newTestService(t)
	ctx := context.Background()
	storeID := uuid.New()

	paidOrder(t, svc, storeID, 4990)
	c.Advance(15 * 24 * time.Hour)

	_, err := svc.RequestWithdrawal(ctx, storeID, emailWithdrawal(3000))
	require.ErrorIs(t, err, model.ErrWalletNotApproved)

	_, err = svc.ApproveWallet(ctx, storeID)
	require.NoError(t, err)

	wd, err := svc.RequestWithdrawal(ctx, storeID, emailWithdrawal(3000))
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalStatusPending, wd.Status)
	assert.Equal(t, int64(350), wd.Fee)
	assert.Equal(t, int64(2650), wd.NetAmount)

	// 4570 available, 3000 already requested
	_, err = svc.RequestWithdrawal(ctx, storeID, emailWithdrawal(2000))
	require.ErrorIs(t, err, model.ErrInsufficientBalance)

	bal, err := svc.GetBalance(ctx, storeID)
	require.NoError(t, err)
	assert.Equal(t, int64(4570), bal.Available)
	assert.Equal(t, int64(190), bal.Reserved)
	assert.Equal(t, int64(3000), bal.PendingWithdrawals)

	wd, err = svc.ApproveWithdrawal(ctx, wd.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalStatusProcessing, wd.Status)

	bal, err = svc.GetBalance(ctx, storeID)
	require.NoError(t, err)
	assert.Equal(t, int64(1570), bal.Available)
	assert.Equal(t, int64(0), bal.PendingWithdrawals)

	_, err = svc.RejectWithdrawal(ctx, wd.ID, "late")
	assert.ErrorIs(t, err, model.ErrIllegalTransition)

	wd, err = svc.CompleteWithdrawal(ctx, wd.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalStatusCompleted, wd.Status)
	require.NotNil(t, wd.CompletedAt)

	_, err = svc.ApproveWithdrawal(ctx, wd.ID)
	assert.ErrorIs(t, err, model.ErrIllegalTransition)

	list, err := svc.ListWithdrawals(ctx, storeID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRejectWithdrawal_KeepsBalance(t *testing.T) {
	svc, c := newTestService(t)
	ctx := context.Background()
	storeID := uuid.New()

	paidOrder(t, svc, storeID, 4990)
	c.Advance(15 * 24 * time.Hour)
	_, err := svc.ApproveWallet(ctx, storeID)
	require.NoError(t, err)

	wd, err := svc.RequestWithdrawal(ctx, storeID, emailWithdrawal(4000))
	require.NoError(t, err)

	_, err = svc.RejectWithdrawal(ctx, wd.ID, "   ")
	assert.ErrorIs(t, err, model.ErrMissingRejectReason)

	wd, err = svc.RejectWithdrawal(ctx, wd.ID, "pix key owner mismatch")
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalStatusRejected, wd.Status)

	bal, err := svc.GetBalance(ctx, storeID)
	require.NoError(t, err)
	assert.Equal(t, int64(4570), bal.Available)

	pending, err := svc.ListWithdrawalsByStatus(ctx, model.WithdrawalStatusPending, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = svc.ListWithdrawalsByStatus(ctx, "paid", 0)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestRequestWithdrawal_ConcurrentCannotOverdraw(t *testing.T) {
	svc, c := newTestService(t)
	ctx := context.Background()
	storeID := uuid.New()

	paidOrder(t, svc, storeID, 4990)
	c.Advance(15 * 24 * time.Hour)
	_, err := svc.ApproveWallet(ctx, storeID)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			wd, err := svc.RequestWithdrawal(ctx, storeID, emailWithdrawal(1000))
			if err != nil {
				if !errors.Is(err, model.ErrInsufficientBalance) {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if _, err := svc.ApproveWithdrawal(ctx, wd.ID); err != nil {
				t.Errorf("approve: %v", err)
				return
			}
			succeeded.Add(1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(4), succeeded.Load())

	bal, err := svc.GetBalance(ctx, storeID)
	require.NoError(t, err)
	assert.Equal(t, int64(570), bal.Available)
}

func TestQuoteWithdrawal(t *testing.T) {
	svc, _ := newTestService(t)

	q, err := svc.QuoteWithdrawal(1000, model.WithdrawalTypeManual)
	require.NoError(t, err)
	assert.Equal(t, int64(100), q.Fee)
	assert.Equal(t, int64(900), q.NetAmount)

	q, err = svc.QuoteWithdrawal(200, model.WithdrawalTypeAutomatic)
	require.NoError(t, err)
	assert.Equal(t, int64(0), q.NetAmount)

	_, err = svc.QuoteWithdrawal(1000, "wire")
	assert.ErrorIs(t, err, model.ErrInvalidWithdrawalType)

	_, err = svc.QuoteWithdrawal(0, model.WithdrawalTypeManual)
	assert.ErrorIs(t, err, model.ErrInvalidAmount)
}

func TestReleaseSweeper(t *testing.T) {
	svc, c := newTestService(t)
	ctx := context.Background()
	storeID := uuid.New()

	paidOrder(t, svc, storeID, 4990)

	svc.processReleaseBatch(ctx)
	released, err := svc.ReleaseMatured(ctx, storeID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), released)

	c.Advance(16 * 24 * time.Hour)
	svc.processReleaseBatch(ctx)

	released, err = svc.ReleaseMatured(ctx, storeID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), released)

	bal, err := svc.GetBalance(ctx, storeID)
	require.NoError(t, err)
	assert.Equal(t, int64(4760), bal.Available)
	assert.Nil(t, bal.NextReleaseAt)
}

func TestStartReleaseSweeper_StopsOnCancel(t *testing.T) {
	svc, _ := newTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	svc.StartReleaseSweeper(ctx, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	cancel()

	svc.StartReleaseSweeper(context.Background(), 0)
}

func TestGoals_SequentialUnlock(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	storeID := uuid.New()

	silver, err := svc.CreateGoal(ctx, CreateGoalParams{Name: "Silver", TargetAmount: 10000, RewardType: model.RewardBadge})
	require.NoError(t, err)
	assert.Nil(t, silver.PreviousGoalID)

	bronze, err := svc.CreateGoal(ctx, CreateGoalParams{Name: "Bronze", TargetAmount: 1000, RewardType: model.RewardCredit})
	require.NoError(t, err)

	goals, err := svc.ListGoals(ctx)
	require.NoError(t, err)
	require.Len(t, goals, 2)
	assert.Equal(t, bronze.ID, goals[0].ID)
	require.NotNil(t, goals[1].PreviousGoalID)
	assert.Equal(t, bronze.ID, *goals[1].PreviousGoalID)

	board, err := svc.GoalBoard(ctx, storeID)
	require.NoError(t, err)
	assert.Len(t, board.Active, 1)
	assert.Len(t, board.Locked, 1)

	paidOrder(t, svc, storeID, 4990)

	board, err = svc.GoalBoard(ctx, storeID)
	require.NoError(t, err)
	require.Len(t, board.Completed, 1)
	assert.Equal(t, bronze.ID, board.Completed[0].Goal.ID)
	require.Len(t, board.Active, 1)
	assert.Equal(t, int64(4990), board.Active[0].CurrentAmount)
	assert.Equal(t, 49, board.Active[0].Percent)
	assert.Empty(t, board.Locked)

	_, err = svc.CreateGoal(ctx, CreateGoalParams{Name: "", TargetAmount: 10, RewardType: model.RewardBadge})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = svc.CreateGoal(ctx, CreateGoalParams{Name: "Gold", TargetAmount: 0, RewardType: model.RewardBadge})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

type failingRepo struct {
	*repository.MemoryRepository
	err error
}

func (r *failingRepo) InTx(ctx context.Context, fn repository.TxFunc) error {
	return r.err
}

func TestStoreErrorsPropagate(t *testing.T) {
	storeErr := model.NewStoreError("begin tx", errors.New("connection refused"))
	repo := &failingRepo{MemoryRepository: repository.NewMemoryRepository(), err: storeErr}
	svc := NewService(repo, lock.NewMemoryLocker(), wallet.DefaultPolicy(), nil)
	ctx := context.Background()

	_, err := svc.GetBalance(ctx, uuid.New())
	assert.ErrorIs(t, err, model.ErrStore)

	_, err = svc.RequestWithdrawal(ctx, uuid.New(), emailWithdrawal(1000))
	assert.ErrorIs(t, err, model.ErrStore)

	_, err = svc.GoalBoard(ctx, uuid.New())
	assert.ErrorIs(t, err, model.ErrStore)
}
