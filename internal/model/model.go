// Package model содержит доменные сущности витрины: заказы, кошельки, выводы средств и цели.
package model

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusApproved  OrderStatus = "approved"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// IsPaid сообщает, подтверждена ли оплата заказа.
func (s OrderStatus) IsPaid() bool {
	return s == OrderStatusPaid || s == OrderStatusApproved
}

// Order описывает покупку клиента в магазине. Суммы хранятся в центах.
type Order struct {
	ID            uuid.UUID   `json:"id" validate:"required"`
	StoreID       uuid.UUID   `json:"store_id" validate:"required"`
	CustomerName  string      `json:"customer_name"`
	CustomerEmail string      `json:"customer_email" validate:"omitempty,email"`
	CustomerPhone string      `json:"customer_phone"`
	Subtotal      int64       `json:"subtotal" validate:"gte=0"`
	Discount      int64       `json:"discount" validate:"gte=0"`
	Total         int64       `json:"total" validate:"gte=0"`
	Status        OrderStatus `json:"status" validate:"oneof=pending paid approved cancelled refunded"`
	PaymentMethod string      `json:"payment_method"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Partition определяет раздел баланса кошелька.
type Partition string

const (
	PartitionAvailable Partition = "available"
	PartitionPending   Partition = "pending"
	PartitionReserved  Partition = "reserved"
)

// Hold хранит происхождение зачисления, ожидающего созревания.
type Hold struct {
	ID         uuid.UUID `json:"id" validate:"required"`
	StoreID    uuid.UUID `json:"store_id" validate:"required"`
	OrderID    uuid.UUID `json:"order_id"`
	Partition  Partition `json:"partition" validate:"oneof=pending reserved"`
	Amount     int64     `json:"amount" validate:"gt=0"`
	SaleAmount int64     `json:"sale_amount" validate:"gte=0"`
	CreditedAt time.Time `json:"credited_at" validate:"required"`
	ReleaseAt  time.Time `json:"release_at" validate:"required"`
}

// Wallet содержит средства магазина в трёх непересекающихся разделах.
type Wallet struct {
	StoreID    uuid.UUID `json:"store_id" validate:"required"`
	Available  int64     `json:"available" validate:"gte=0"`
	Pending    int64     `json:"pending" validate:"gte=0"`
	Reserved   int64     `json:"reserved" validate:"gte=0"`
	IsApproved bool      `json:"is_approved"`
	Holds      []Hold    `json:"-" validate:"dive"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Total возвращает полный баланс кошелька.
func (w Wallet) Total() int64 {
	return w.Available + w.Pending + w.Reserved
}

// WithdrawalType определяет способ выплаты.
type WithdrawalType string

const (
	WithdrawalTypeManual    WithdrawalType = "manual"
	WithdrawalTypeAutomatic WithdrawalType = "automatic"
)

// WithdrawalStatus описывает этап жизненного цикла вывода средств.
type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "pending"
	WithdrawalStatusProcessing WithdrawalStatus = "processing"
	WithdrawalStatusCompleted  WithdrawalStatus = "completed"
	WithdrawalStatusRejected   WithdrawalStatus = "rejected"
)

// IsTerminal сообщает, что из статуса нет переходов.
func (s WithdrawalStatus) IsTerminal() bool {
	return s == WithdrawalStatusCompleted || s == WithdrawalStatusRejected
}

// PixKeyType описывает тип ключа PIX.
type PixKeyType string

const (
	PixKeyCPF    PixKeyType = "cpf"
	PixKeyCNPJ   PixKeyType = "cnpj"
	PixKeyEmail  PixKeyType = "email"
	PixKeyPhone  PixKeyType = "phone"
	PixKeyRandom PixKeyType = "random"
)

// Withdrawal описывает запрос магазина на вывод доступных средств.
type Withdrawal struct {
	ID           uuid.UUID        `json:"id" validate:"required"`
	StoreID      uuid.UUID        `json:"store_id" validate:"required"`
	Amount       int64            `json:"amount" validate:"gt=0"`
	Fee          int64            `json:"fee" validate:"gte=0"`
	NetAmount    int64            `json:"net_amount" validate:"gte=0"`
	PixKey       string           `json:"pix_key" validate:"required"`
	PixKeyType   PixKeyType       `json:"pix_key_type" validate:"oneof=cpf cnpj email phone random"`
	Type         WithdrawalType   `json:"type" validate:"oneof=manual automatic"`
	Status       WithdrawalStatus `json:"status" validate:"oneof=pending processing completed rejected"`
	RejectReason string           `json:"reject_reason,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

// RewardType описывает вид награды за цель.
type RewardType string

const (
	RewardBadge    RewardType = "badge"
	RewardCredit   RewardType = "credit"
	RewardMoney    RewardType = "money"
	RewardPlan     RewardType = "plan"
	RewardDiscount RewardType = "discount"
)

// Goal описывает порог выручки платформы с наградой.
type Goal struct {
	ID                uuid.UUID  `json:"id" validate:"required"`
	Name              string     `json:"name" validate:"required"`
	TargetAmount      int64      `json:"target_amount" validate:"gt=0"`
	RewardType        RewardType `json:"reward_type" validate:"oneof=badge credit money plan discount"`
	RewardDescription string     `json:"reward_description"`
	IsActive          bool       `json:"is_active"`
	PreviousGoalID    *uuid.UUID `json:"previous_goal_id,omitempty"`
}

// UserGoal хранит прогресс участника по одной цели.
type UserGoal struct {
	ActorID       uuid.UUID  `json:"actor_id" validate:"required"`
	GoalID        uuid.UUID  `json:"goal_id" validate:"required"`
	CurrentAmount int64      `json:"current_amount" validate:"gte=0"`
	AchievedAt    *time.Time `json:"achieved_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Achieved сообщает, достигнута ли цель.
func (ug UserGoal) Achieved() bool {
	return ug.AchievedAt != nil
}
