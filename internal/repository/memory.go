package repository

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/storefront-payouts/internal/model"
)

type memState struct {
	orders      map[uuid.UUID]model.Order
	wallets     map[uuid.UUID]model.Wallet
	withdrawals map[uuid.UUID]model.Withdrawal
	goals       map[uuid.UUID]model.Goal
	userGoals   map[uuid.UUID]map[uuid.UUID]model.UserGoal
}

func (s *memState) clone() *memState {
	c := &memState{
		orders:      maps.Clone(s.orders),
		wallets:     make(map[uuid.UUID]model.Wallet, len(s.wallets)),
		withdrawals: maps.Clone(s.withdrawals),
		goals:       maps.Clone(s.goals),
		userGoals:   make(map[uuid.UUID]map[uuid.UUID]model.UserGoal, len(s.userGoals)),
	}
	for k, w := range s.wallets {
		w.Holds = slices.Clone(w.Holds)
		c.wallets[k] = w
	}
	for k, m := range s.userGoals {
		c.userGoals[k] = maps.Clone(m)
	}
	return c
}

// MemoryRepository хранилище в памяти. Транзакции сериализуются одним мьютексом
// и применяются целиком только при успешном завершении.
type MemoryRepository struct {
	mu    sync.Mutex
	state *memState
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		state: &memState{
			orders:      map[uuid.UUID]model.Order{},
			wallets:     map[uuid.UUID]model.Wallet{},
			withdrawals: map[uuid.UUID]model.Withdrawal{},
			goals:       map[uuid.UUID]model.Goal{},
			userGoals:   map[uuid.UUID]map[uuid.UUID]model.UserGoal{},
		},
	}
}

// Close ничего не делает.
func (r *MemoryRepository) Close() error {
	return nil
}

// InTx выполняет fn над копией состояния и применяет её, если fn завершилась без ошибки.
func (r *MemoryRepository) InTx(ctx context.Context, fn TxFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{state: r.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	r.state = tx.state
	return nil
}

// ListWithdrawalsByStore возвращает выводы магазина, новые первыми.
func (r *MemoryRepository) ListWithdrawalsByStore(ctx context.Context, storeID uuid.UUID) ([]model.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Withdrawal
	for _, wd := range r.state.withdrawals {
		if wd.StoreID == storeID {
			res = append(res, wd)
		}
	}
	sortWithdrawals(res, true)
	return res, nil
}

// ListWithdrawalsByStatus возвращает выводы в статусе, старые первыми.
func (r *MemoryRepository) ListWithdrawalsByStatus(ctx context.Context, status model.WithdrawalStatus, limit int) ([]model.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Withdrawal
	for _, wd := range r.state.withdrawals {
		if wd.Status == status {
			res = append(res, wd)
		}
	}
	sortWithdrawals(res, false)
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// ListStoresWithDueHolds возвращает магазины, у которых есть удержания со сроком не позже now.
func (r *MemoryRepository) ListStoresWithDueHolds(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []uuid.UUID
	for id, w := range r.state.wallets {
		for _, h := range w.Holds {
			if !h.ReleaseAt.After(now) {
				res = append(res, id)
				break
			}
		}
	}
	slices.SortFunc(res, func(a, b uuid.UUID) int { return cmp.Compare(a.String(), b.String()) })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func sortWithdrawals(list []model.Withdrawal, newestFirst bool) {
	slices.SortFunc(list, func(a, b model.Withdrawal) int {
		c := a.CreatedAt.Compare(b.CreatedAt)
		if newestFirst {
			return -c
		}
		return c
	})
}

type memTx struct {
	state *memState
}

func (t *memTx) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	o, ok := t.state.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, model.ErrNotFound)
	}
	return &o, nil
}

func (t *memTx) InsertOrder(ctx context.Context, o *model.Order) error {
	if _, ok := t.state.orders[o.ID]; ok {
		return fmt.Errorf("order %s: %w", o.ID, model.ErrConflict)
	}
	if err := checkRecord("insert order", o); err != nil {
		return err
	}
	t.state.orders[o.ID] = *o
	return nil
}

func (t *memTx) UpdateOrder(ctx context.Context, o *model.Order) error {
	if _, ok := t.state.orders[o.ID]; !ok {
		return fmt.Errorf("order %s: %w", o.ID, model.ErrNotFound)
	}
	if err := checkRecord("update order", o); err != nil {
		return err
	}
	t.state.orders[o.ID] = *o
	return nil
}

func (t *memTx) GetWallet(ctx context.Context, storeID uuid.UUID) (*model.Wallet, error) {
	w, ok := t.state.wallets[storeID]
	if !ok {
		return nil, fmt.Errorf("wallet %s: %w", storeID, model.ErrNotFound)
	}
	w.Holds = slices.Clone(w.Holds)
	return &w, nil
}

func (t *memTx) InsertWallet(ctx context.Context, w *model.Wallet) error {
	if _, ok := t.state.wallets[w.StoreID]; ok {
		return fmt.Errorf("wallet %s: %w", w.StoreID, model.ErrConflict)
	}
	return t.putWallet("insert wallet", w)
}

func (t *memTx) SaveWallet(ctx context.Context, w *model.Wallet) error {
	if _, ok := t.state.wallets[w.StoreID]; !ok {
		return fmt.Errorf("wallet %s: %w", w.StoreID, model.ErrNotFound)
	}
	return t.putWallet("save wallet", w)
}

func (t *memTx) putWallet(op string, w *model.Wallet) error {
	if err := checkRecord(op, w); err != nil {
		return err
	}
	stored := *w
	stored.Holds = slices.Clone(w.Holds)
	t.state.wallets[w.StoreID] = stored
	return nil
}

func (t *memTx) GetWithdrawal(ctx context.Context, id uuid.UUID) (*model.Withdrawal, error) {
	wd, ok := t.state.withdrawals[id]
	if !ok {
		return nil, fmt.Errorf("withdrawal %s: %w", id, model.ErrNotFound)
	}
	return &wd, nil
}

func (t *memTx) InsertWithdrawal(ctx context.Context, wd *model.Withdrawal) error {
	if _, ok := t.state.withdrawals[wd.ID]; ok {
		return fmt.Errorf("withdrawal %s: %w", wd.ID, model.ErrConflict)
	}
	if err := checkRecord("insert withdrawal", wd); err != nil {
		return err
	}
	t.state.withdrawals[wd.ID] = *wd
	return nil
}

func (t *memTx) UpdateWithdrawal(ctx context.Context, wd *model.Withdrawal) error {
	if _, ok := t.state.withdrawals[wd.ID]; !ok {
		return fmt.Errorf("withdrawal %s: %w", wd.ID, model.ErrNotFound)
	}
	if err := checkRecord("update withdrawal", wd); err != nil {
		return err
	}
	t.state.withdrawals[wd.ID] = *wd
	return nil
}

func (t *memTx) SumPendingWithdrawals(ctx context.Context, storeID uuid.UUID) (int64, error) {
	var sum int64
	for _, wd := range t.state.withdrawals {
		if wd.StoreID == storeID && wd.Status == model.WithdrawalStatusPending {
			sum += wd.Amount
		}
	}
	return sum, nil
}

func (t *memTx) ListGoals(ctx context.Context) ([]model.Goal, error) {
	res := slices.Collect(maps.Values(t.state.goals))
	slices.SortFunc(res, func(a, b model.Goal) int { return cmp.Compare(a.TargetAmount, b.TargetAmount) })
	return res, nil
}

func (t *memTx) InsertGoal(ctx context.Context, g *model.Goal) error {
	if _, ok := t.state.goals[g.ID]; ok {
		return fmt.Errorf("goal %s: %w", g.ID, model.ErrConflict)
	}
	if err := checkRecord("insert goal", g); err != nil {
		return err
	}
	t.state.goals[g.ID] = *g
	return nil
}

func (t *memTx) UpdateGoal(ctx context.Context, g *model.Goal) error {
	if _, ok := t.state.goals[g.ID]; !ok {
		return fmt.Errorf("goal %s: %w", g.ID, model.ErrNotFound)
	}
	if err := checkRecord("update goal", g); err != nil {
		return err
	}
	t.state.goals[g.ID] = *g
	return nil
}

func (t *memTx) ListUserGoals(ctx context.Context, actorID uuid.UUID) ([]model.UserGoal, error) {
	return slices.Collect(maps.Values(t.state.userGoals[actorID])), nil
}

func (t *memTx) UpsertUserGoal(ctx context.Context, ug *model.UserGoal) error {
	if err := checkRecord("upsert user goal", ug); err != nil {
		return err
	}
	m, ok := t.state.userGoals[ug.ActorID]
	if !ok {
		m = map[uuid.UUID]model.UserGoal{}
		t.state.userGoals[ug.ActorID] = m
	}
	m[ug.GoalID] = *ug
	return nil
}
