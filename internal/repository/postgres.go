package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/storefront-payouts/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет fn при конфликте сериализации, взаимной блокировке
// и обрыве соединения до начала транзакции.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(delays) {
			break
		}

		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

// opBegin помечает ошибку открытия транзакции. Обрыв соединения повторяется
// только на этом шаге: после COMMIT исход транзакции неизвестен.
const opBegin = "begin tx"

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	var se *model.StoreError
	return errors.As(err, &se) && se.Op == opBegin && isConnectionError(se.Err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// InTx выполняет fn в транзакции: фиксирует при успехе, откатывает при ошибке.
func (r *PostgresRepository) InTx(ctx context.Context, fn TxFunc) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return model.NewStoreError(opBegin, err)
		}
		defer tx.Rollback(ctx)

		if err := fn(&pgTx{tx: tx}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return model.NewStoreError("commit tx", err)
		}
		return nil
	})
}

const withdrawalColumns = `id, store_id, amount, fee, net_amount, pix_key, pix_key_type, type, status,
	reject_reason, created_at, updated_at, completed_at`

// ListWithdrawalsByStore возвращает выводы магазина, новые первыми.
func (r *PostgresRepository) ListWithdrawalsByStore(ctx context.Context, storeID uuid.UUID) ([]model.Withdrawal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+withdrawalColumns+`
		 FROM withdrawals
		 WHERE store_id = $1
		 ORDER BY created_at DESC`,
		storeID,
	)
	if err != nil {
		return nil, model.NewStoreError("select withdrawals", err)
	}
	return collectWithdrawals(rows)
}

// ListWithdrawalsByStatus возвращает выводы в статусе, старые первыми.
func (r *PostgresRepository) ListWithdrawalsByStatus(ctx context.Context, status model.WithdrawalStatus, limit int) ([]model.Withdrawal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+withdrawalColumns+`
		 FROM withdrawals
		 WHERE status = $1
		 ORDER BY created_at
		 LIMIT $2`,
		string(status), limit,
	)
	if err != nil {
		return nil, model.NewStoreError("select withdrawals by status", err)
	}
	return collectWithdrawals(rows)
}

// ListStoresWithDueHolds возвращает магазины, у которых есть удержания со сроком не позже now.
func (r *PostgresRepository) ListStoresWithDueHolds(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT store_id
		 FROM wallet_holds
		 WHERE release_at <= $1
		 ORDER BY store_id
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, model.NewStoreError("select due holds", err)
	}
	defer rows.Close()

	var res []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, model.NewStoreError("scan due hold", err)
		}
		res = append(res, id)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewStoreError("rows error", err)
	}
	return res, nil
}

func collectWithdrawals(rows pgx.Rows) ([]model.Withdrawal, error) {
	defer rows.Close()

	var res []model.Withdrawal
	for rows.Next() {
		wd, err := scanWithdrawal(rows)
		if err != nil {
			return nil, storeErr("scan withdrawal", err)
		}
		res = append(res, *wd)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewStoreError("rows error", err)
	}
	return res, nil
}

func scanWithdrawal(row pgx.Row) (*model.Withdrawal, error) {
	var (
		wd                            model.Withdrawal
		pixKeyType, typ, status, rjct string
	)
	err := row.Scan(&wd.ID, &wd.StoreID, &wd.Amount, &wd.Fee, &wd.NetAmount, &wd.PixKey, &pixKeyType,
		&typ, &status, &rjct, &wd.CreatedAt, &wd.UpdatedAt, &wd.CompletedAt)
	if err != nil {
		return nil, err
	}
	wd.PixKeyType = model.PixKeyType(pixKeyType)
	wd.Type = model.WithdrawalType(typ)
	wd.Status = model.WithdrawalStatus(status)
	wd.RejectReason = rjct

	if err := checkRecord("scan withdrawal", &wd); err != nil {
		return nil, err
	}
	return &wd, nil
}

// pgTx реализует Tx поверх транзакции pgx.
type pgTx struct {
	tx pgx.Tx
}

func storeErr(op string, err error) error {
	var se *model.StoreError
	if errors.As(err, &se) {
		return err
	}
	return model.NewStoreError(op, err)
}

func notFoundOr(op string, id uuid.UUID, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", op, id, model.ErrNotFound)
	}
	return storeErr(op, err)
}

func insertErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return fmt.Errorf("%s: %w", op, model.ErrConflict)
	}
	return model.NewStoreError(op, err)
}

func (t *pgTx) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var (
		o      model.Order
		status string
	)
	err := t.tx.QueryRow(ctx,
		`SELECT id, store_id, customer_name, customer_email, customer_phone, subtotal, discount, total,
		        status, payment_method, created_at
		 FROM orders WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&o.ID, &o.StoreID, &o.CustomerName, &o.CustomerEmail, &o.CustomerPhone, &o.Subtotal,
		&o.Discount, &o.Total, &status, &o.PaymentMethod, &o.CreatedAt)
	if err != nil {
		return nil, notFoundOr("get order", id, err)
	}
	o.Status = model.OrderStatus(status)

	if err := checkRecord("get order", &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *model.Order) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO orders (id, store_id, customer_name, customer_email, customer_phone, subtotal, discount,
		                     total, status, payment_method, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		o.ID, o.StoreID, o.CustomerName, o.CustomerEmail, o.CustomerPhone, o.Subtotal, o.Discount,
		o.Total, string(o.Status), o.PaymentMethod, o.CreatedAt,
	)
	if err != nil {
		return insertErr("insert order", err)
	}
	return nil
}

func (t *pgTx) UpdateOrder(ctx context.Context, o *model.Order) error {
	tag, err := t.tx.Exec(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, o.ID, string(o.Status))
	if err != nil {
		return model.NewStoreError("update order", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update order %s: %w", o.ID, model.ErrNotFound)
	}
	return nil
}

func (t *pgTx) GetWallet(ctx context.Context, storeID uuid.UUID) (*model.Wallet, error) {
	var w model.Wallet
	err := t.tx.QueryRow(ctx,
		`SELECT store_id, available, pending, reserved, is_approved, created_at, updated_at
		 FROM wallets WHERE store_id = $1 FOR UPDATE`,
		storeID,
	).Scan(&w.StoreID, &w.Available, &w.Pending, &w.Reserved, &w.IsApproved, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, notFoundOr("get wallet", storeID, err)
	}

	rows, err := t.tx.Query(ctx,
		`SELECT id, store_id, order_id, partition, amount, sale_amount, credited_at, release_at
		 FROM wallet_holds WHERE store_id = $1
		 ORDER BY credited_at, id`,
		storeID,
	)
	if err != nil {
		return nil, model.NewStoreError("select holds", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			h         model.Hold
			partition string
		)
		if err := rows.Scan(&h.ID, &h.StoreID, &h.OrderID, &partition, &h.Amount, &h.SaleAmount,
			&h.CreditedAt, &h.ReleaseAt); err != nil {
			return nil, model.NewStoreError("scan hold", err)
		}
		h.Partition = model.Partition(partition)
		w.Holds = append(w.Holds, h)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewStoreError("rows error", err)
	}

	if err := checkRecord("get wallet", &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (t *pgTx) InsertWallet(ctx context.Context, w *model.Wallet) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO wallets (store_id, available, pending, reserved, is_approved, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.StoreID, w.Available, w.Pending, w.Reserved, w.IsApproved, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return insertErr("insert wallet", err)
	}
	return t.syncHolds(ctx, w)
}

func (t *pgTx) SaveWallet(ctx context.Context, w *model.Wallet) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE wallets
		 SET available = $2, pending = $3, reserved = $4, is_approved = $5, updated_at = $6
		 WHERE store_id = $1`,
		w.StoreID, w.Available, w.Pending, w.Reserved, w.IsApproved, w.UpdatedAt,
	)
	if err != nil {
		return model.NewStoreError("update wallet", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update wallet %s: %w", w.StoreID, model.ErrNotFound)
	}
	return t.syncHolds(ctx, w)
}

// syncHolds приводит wallet_holds к набору удержаний кошелька. Удержания неизменяемы,
// поэтому достаточно удалить отсутствующие и вставить новые.
func (t *pgTx) syncHolds(ctx context.Context, w *model.Wallet) error {
	ids := make([]string, 0, len(w.Holds))
	for _, h := range w.Holds {
		ids = append(ids, h.ID.String())
	}

	if _, err := t.tx.Exec(ctx,
		`DELETE FROM wallet_holds WHERE store_id = $1 AND NOT (id = ANY($2::uuid[]))`,
		w.StoreID, ids,
	); err != nil {
		return model.NewStoreError("delete released holds", err)
	}

	batch := &pgx.Batch{}
	for _, h := range w.Holds {
		batch.Queue(
			`INSERT INTO wallet_holds (id, store_id, order_id, partition, amount, sale_amount, credited_at, release_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (id) DO NOTHING`,
			h.ID, h.StoreID, h.OrderID, string(h.Partition), h.Amount, h.SaleAmount, h.CreditedAt, h.ReleaseAt,
		)
	}
	if batch.Len() == 0 {
		return nil
	}

	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return model.NewStoreError("insert holds", err)
	}
	return nil
}

func (t *pgTx) GetWithdrawal(ctx context.Context, id uuid.UUID) (*model.Withdrawal, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`,
		id,
	)
	wd, err := scanWithdrawal(row)
	if err != nil {
		return nil, notFoundOr("get withdrawal", id, err)
	}
	return wd, nil
}

func (t *pgTx) InsertWithdrawal(ctx context.Context, wd *model.Withdrawal) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO withdrawals (`+withdrawalColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		wd.ID, wd.StoreID, wd.Amount, wd.Fee, wd.NetAmount, wd.PixKey, string(wd.PixKeyType),
		string(wd.Type), string(wd.Status), wd.RejectReason, wd.CreatedAt, wd.UpdatedAt, wd.CompletedAt,
	)
	if err != nil {
		return insertErr("insert withdrawal", err)
	}
	return nil
}

func (t *pgTx) UpdateWithdrawal(ctx context.Context, wd *model.Withdrawal) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE withdrawals
		 SET status = $2, reject_reason = $3, updated_at = $4, completed_at = $5
		 WHERE id = $1`,
		wd.ID, string(wd.Status), wd.RejectReason, wd.UpdatedAt, wd.CompletedAt,
	)
	if err != nil {
		return model.NewStoreError("update withdrawal", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update withdrawal %s: %w", wd.ID, model.ErrNotFound)
	}
	return nil
}

func (t *pgTx) SumPendingWithdrawals(ctx context.Context, storeID uuid.UUID) (int64, error) {
	var sum int64
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)
		 FROM withdrawals
		 WHERE store_id = $1 AND status = $2`,
		storeID, string(model.WithdrawalStatusPending),
	).Scan(&sum)
	if err != nil {
		return 0, model.NewStoreError("sum pending withdrawals", err)
	}
	return sum, nil
}

func (t *pgTx) ListGoals(ctx context.Context) ([]model.Goal, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, name, target_amount, reward_type, reward_description, is_active, previous_goal_id
		 FROM goals
		 ORDER BY target_amount, name`,
	)
	if err != nil {
		return nil, model.NewStoreError("select goals", err)
	}
	defer rows.Close()

	var res []model.Goal
	for rows.Next() {
		var (
			g          model.Goal
			rewardType string
		)
		if err := rows.Scan(&g.ID, &g.Name, &g.TargetAmount, &rewardType, &g.RewardDescription,
			&g.IsActive, &g.PreviousGoalID); err != nil {
			return nil, model.NewStoreError("scan goal", err)
		}
		g.RewardType = model.RewardType(rewardType)

		if err := checkRecord("scan goal", &g); err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewStoreError("rows error", err)
	}
	return res, nil
}

func (t *pgTx) InsertGoal(ctx context.Context, g *model.Goal) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO goals (id, name, target_amount, reward_type, reward_description, is_active, previous_goal_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		g.ID, g.Name, g.TargetAmount, string(g.RewardType), g.RewardDescription, g.IsActive, g.PreviousGoalID,
	)
	if err != nil {
		return insertErr("insert goal", err)
	}
	return nil
}

func (t *pgTx) UpdateGoal(ctx context.Context, g *model.Goal) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE goals
		 SET name = $2, target_amount = $3, reward_type = $4, reward_description = $5, is_active = $6,
		     previous_goal_id = $7
		 WHERE id = $1`,
		g.ID, g.Name, g.TargetAmount, string(g.RewardType), g.RewardDescription, g.IsActive, g.PreviousGoalID,
	)
	if err != nil {
		return model.NewStoreError("update goal", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update goal %s: %w", g.ID, model.ErrNotFound)
	}
	return nil
}

func (t *pgTx) ListUserGoals(ctx context.Context, actorID uuid.UUID) ([]model.UserGoal, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT actor_id, goal_id, current_amount, achieved_at, created_at, updated_at
		 FROM user_goals
		 WHERE actor_id = $1
		 FOR UPDATE`,
		actorID,
	)
	if err != nil {
		return nil, model.NewStoreError("select user goals", err)
	}
	defer rows.Close()

	var res []model.UserGoal
	for rows.Next() {
		var ug model.UserGoal
		if err := rows.Scan(&ug.ActorID, &ug.GoalID, &ug.CurrentAmount, &ug.AchievedAt,
			&ug.CreatedAt, &ug.UpdatedAt); err != nil {
			return nil, model.NewStoreError("scan user goal", err)
		}
		if err := checkRecord("scan user goal", &ug); err != nil {
			return nil, err
		}
		res = append(res, ug)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewStoreError("rows error", err)
	}
	return res, nil
}

// UpsertUserGoal не уменьшает накопленную сумму и не сбрасывает отметку достижения.
func (t *pgTx) UpsertUserGoal(ctx context.Context, ug *model.UserGoal) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO user_goals (actor_id, goal_id, current_amount, achieved_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (actor_id, goal_id) DO UPDATE
		 SET current_amount = GREATEST(user_goals.current_amount, EXCLUDED.current_amount),
		     achieved_at    = COALESCE(user_goals.achieved_at, EXCLUDED.achieved_at),
		     updated_at     = EXCLUDED.updated_at`,
		ug.ActorID, ug.GoalID, ug.CurrentAmount, ug.AchievedAt, ug.CreatedAt, ug.UpdatedAt,
	)
	if err != nil {
		return model.NewStoreError("upsert user goal", err)
	}
	return nil
}
