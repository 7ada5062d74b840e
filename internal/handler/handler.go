// Package handler содержит HTTP-обработчики API выплат витрины.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-payouts/internal/fee"
	"github.com/mmeshcher/storefront-payouts/internal/goal"
	"github.com/mmeshcher/storefront-payouts/internal/model"
	"github.com/mmeshcher/storefront-payouts/internal/service"
	"github.com/mmeshcher/storefront-payouts/internal/withdrawal"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	SaleQuote(gross int64) (fee.Breakdown, error)
	CreateOrder(ctx context.Context, storeID uuid.UUID, p service.CreateOrderParams) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, storeID, orderID uuid.UUID, status model.OrderStatus) (*model.Order, error)
	GetBalance(ctx context.Context, storeID uuid.UUID) (*service.BalanceView, error)
	ApproveWallet(ctx context.Context, storeID uuid.UUID) (*model.Wallet, error)
	QuoteWithdrawal(amount int64, t model.WithdrawalType) (*service.Quote, error)
	RequestWithdrawal(ctx context.Context, storeID uuid.UUID, p withdrawal.RequestParams) (*model.Withdrawal, error)
	ApproveWithdrawal(ctx context.Context, id uuid.UUID) (*model.Withdrawal, error)
	CompleteWithdrawal(ctx context.Context, id uuid.UUID) (*model.Withdrawal, error)
	RejectWithdrawal(ctx context.Context, id uuid.UUID, reason string) (*model.Withdrawal, error)
	ListWithdrawals(ctx context.Context, storeID uuid.UUID) ([]model.Withdrawal, error)
	ListWithdrawalsByStatus(ctx context.Context, status model.WithdrawalStatus, limit int) ([]model.Withdrawal, error)
	CreateGoal(ctx context.Context, p service.CreateGoalParams) (*model.Goal, error)
	GoalBoard(ctx context.Context, actorID uuid.UUID) (*goal.Board, error)
}

// Handler реализует HTTP-обработчики API выплат.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus сопоставляет доменную ошибку с HTTP-статусом.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, model.ErrInvalidAmount),
		errors.Is(err, model.ErrExceedsMaximum),
		errors.Is(err, model.ErrBelowFeeThreshold),
		errors.Is(err, model.ErrMissingDestination),
		errors.Is(err, model.ErrInvalidDestination),
		errors.Is(err, model.ErrInvalidWithdrawalType),
		errors.Is(err, model.ErrMissingRejectReason),
		errors.Is(err, model.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrWalletNotApproved):
		return http.StatusForbidden
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrIllegalTransition),
		errors.Is(err, model.ErrConflict),
		errors.Is(err, model.ErrLockHeld):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error, fields ...zap.Field) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(op+" error", append(fields, zap.Error(err))...)
		http.Error(w, http.StatusText(status), status)
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func uuidParam(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}

func int64Query(r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v, err == nil
}

// SaleFee возвращает комиссию платформы и чистую сумму продажи.
func (h *Handler) SaleFee(w http.ResponseWriter, r *http.Request) {
	gross, ok := int64Query(r, "gross")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	b, err := h.service.SaleQuote(gross)
	if err != nil {
		h.fail(w, "sale fee", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// CreateOrder сохраняет новый заказ магазина.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	storeID, ok := uuidParam(r, "storeID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req service.CreateOrderParams
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	o, err := h.service.CreateOrder(r.Context(), storeID, req)
	if err != nil {
		h.fail(w, "create order", err, zap.String("store_id", storeID.String()))
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

type orderStatusRequest struct {
	Status model.OrderStatus `json:"status"`
}

// UpdateOrderStatus меняет статус заказа; оплата зачисляет выручку в кошелёк.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	storeID, ok := uuidParam(r, "storeID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	orderID, ok := uuidParam(r, "orderID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req orderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	o, err := h.service.UpdateOrderStatus(r.Context(), storeID, orderID, req.Status)
	if err != nil {
		h.fail(w, "update order status", err, zap.String("order_id", orderID.String()))
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// GetWallet возвращает баланс кошелька магазина.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	storeID, ok := uuidParam(r, "storeID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	balance, err := h.service.GetBalance(r.Context(), storeID)
	if err != nil {
		h.fail(w, "get balance", err, zap.String("store_id", storeID.String()))
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// ApproveWallet разрешает магазину выводы.
func (h *Handler) ApproveWallet(w http.ResponseWriter, r *http.Request) {
	storeID, ok := uuidParam(r, "storeID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	wallet, err := h.service.ApproveWallet(r.Context(), storeID)
	if err != nil {
		h.fail(w, "approve wallet", err, zap.String("store_id", storeID.String()))
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

// QuoteWithdrawal возвращает комиссию и чистую сумму вывода.
func (h *Handler) QuoteWithdrawal(w http.ResponseWriter, r *http.Request) {
	amount, ok := int64Query(r, "amount")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	q, err := h.service.QuoteWithdrawal(amount, model.WithdrawalType(r.URL.Query().Get("type")))
	if err != nil {
		h.fail(w, "quote withdrawal", err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

type withdrawRequest struct {
	Amount     int64                `json:"amount"`
	Type       model.WithdrawalType `json:"type"`
	PixKey     string               `json:"pix_key"`
	PixKeyType model.PixKeyType     `json:"pix_key_type"`
}

// RequestWithdrawal создаёт запрос на вывод средств магазина.
func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	storeID, ok := uuidParam(r, "storeID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	wd, err := h.service.RequestWithdrawal(r.Context(), storeID, withdrawal.RequestParams{
		Amount:     req.Amount,
		Type:       req.Type,
		PixKey:     req.PixKey,
		PixKeyType: req.PixKeyType,
	})
	if err != nil {
		h.fail(w, "request withdrawal", err, zap.String("store_id", storeID.String()), zap.Int64("amount", req.Amount))
		return
	}
	writeJSON(w, http.StatusCreated, wd)
}

// ListWithdrawals возвращает историю выводов магазина.
func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	storeID, ok := uuidParam(r, "storeID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	list, err := h.service.ListWithdrawals(r.Context(), storeID)
	if err != nil {
		h.fail(w, "list withdrawals", err, zap.String("store_id", storeID.String()))
		return
	}

	if len(list) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ListWithdrawalsByStatus возвращает очередь выводов для администратора.
func (h *Handler) ListWithdrawalsByStatus(w http.ResponseWriter, r *http.Request) {
	status := model.WithdrawalStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = model.WithdrawalStatusPending
	}

	var limit int
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		limit = v
	}

	list, err := h.service.ListWithdrawalsByStatus(r.Context(), status, limit)
	if err != nil {
		h.fail(w, "list withdrawals by status", err)
		return
	}

	if len(list) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ApproveWithdrawal одобряет вывод и списывает средства.
func (h *Handler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.withdrawalAction(w, r, "approve withdrawal", h.service.ApproveWithdrawal)
}

// CompleteWithdrawal отмечает вывод выплаченным.
func (h *Handler) CompleteWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.withdrawalAction(w, r, "complete withdrawal", h.service.CompleteWithdrawal)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// RejectWithdrawal отклоняет вывод с причиной.
func (h *Handler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	h.withdrawalAction(w, r, "reject withdrawal", func(ctx context.Context, id uuid.UUID) (*model.Withdrawal, error) {
		return h.service.RejectWithdrawal(ctx, id, req.Reason)
	})
}

func (h *Handler) withdrawalAction(w http.ResponseWriter, r *http.Request, op string,
	fn func(ctx context.Context, id uuid.UUID) (*model.Withdrawal, error)) {
	id, ok := uuidParam(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	wd, err := fn(r.Context(), id)
	if err != nil {
		h.fail(w, op, err, zap.String("withdrawal_id", id.String()))
		return
	}
	writeJSON(w, http.StatusOK, wd)
}

// CreateGoal добавляет цель выручки.
func (h *Handler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	var req service.CreateGoalParams
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	g, err := h.service.CreateGoal(r.Context(), req)
	if err != nil {
		h.fail(w, "create goal", err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// GoalBoard возвращает цели участника с прогрессом.
func (h *Handler) GoalBoard(w http.ResponseWriter, r *http.Request) {
	actorID, ok := uuidParam(r, "actorID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	board, err := h.service.GoalBoard(r.Context(), actorID)
	if err != nil {
		h.fail(w, "goal board", err, zap.String("actor_id", actorID.String()))
		return
	}
	writeJSON(w, http.StatusOK, board)
}
