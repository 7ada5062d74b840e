// Package goal отслеживает прогресс участников по упорядоченным целям выручки.
package goal

import (
	"cmp"
	"fmt"
	"math/bits"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/storefront-payouts/internal/model"
)

// Progress прогресс участника по идентификатору цели.
type Progress map[uuid.UUID]model.UserGoal

// SortByTarget сортирует цели по возрастанию порога, при равенстве по имени. Ссылки не меняются.
func SortByTarget(goals []model.Goal) []model.Goal {
	sorted := slices.Clone(goals)
	slices.SortStableFunc(sorted, func(a, b model.Goal) int {
		if c := cmp.Compare(a.TargetAmount, b.TargetAmount); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return sorted
}

// Order сортирует цели по возрастанию порога и связывает каждую с предыдущей.
// Используется при создании цели; блокировку определяют сохранённые ссылки.
func Order(goals []model.Goal) []model.Goal {
	ordered := SortByTarget(goals)
	for i := range ordered {
		if i == 0 {
			ordered[i].PreviousGoalID = nil
			continue
		}
		prev := ordered[i-1].ID
		ordered[i].PreviousGoalID = &prev
	}
	return ordered
}

// IsLockedByLink сообщает, что цель ждёт достижения предыдущей цели по ссылке PreviousGoalID.
func IsLockedByLink(g model.Goal, progress Progress) bool {
	if g.PreviousGoalID == nil {
		return false
	}
	return !progress[*g.PreviousGoalID].Achieved()
}

// Start создаёт прогресс участника по цели.
func Start(actorID uuid.UUID, g model.Goal, now time.Time) model.UserGoal {
	return model.UserGoal{ActorID: actorID, GoalID: g.ID, CreatedAt: now, UpdatedAt: now}
}

// RecordRevenue увеличивает накопленную выручку и однократно отмечает достижение цели.
func RecordRevenue(ug model.UserGoal, g model.Goal, amount int64, now time.Time) (model.UserGoal, error) {
	ug, err := accrue(ug, amount, now)
	if err != nil {
		return ug, err
	}
	return settle(ug, g, now), nil
}

func accrue(ug model.UserGoal, amount int64, now time.Time) (model.UserGoal, error) {
	if amount < 0 {
		return ug, fmt.Errorf("goal revenue %d: %w", amount, model.ErrInvalidAmount)
	}
	ug.CurrentAmount += amount
	ug.UpdatedAt = now
	return ug, nil
}

func settle(ug model.UserGoal, g model.Goal, now time.Time) model.UserGoal {
	if ug.AchievedAt == nil && ug.CurrentAmount >= g.TargetAmount {
		at := now
		ug.AchievedAt = &at
	}
	return ug
}

// ProgressPercent возвращает процент выполнения цели, не больше 100.
func ProgressPercent(ug model.UserGoal, g model.Goal) int {
	if g.TargetAmount <= 0 || ug.CurrentAmount >= g.TargetAmount {
		return 100
	}
	if ug.CurrentAmount <= 0 {
		return 0
	}
	// CurrentAmount < TargetAmount, поэтому частное меньше 100 и Div64 не переполняется.
	hi, lo := bits.Mul64(uint64(ug.CurrentAmount), 100)
	p, _ := bits.Div64(hi, lo, uint64(g.TargetAmount))
	return int(p)
}

// Apply применяет событие выручки ко всем активным целям.
// Заблокированные цели накапливают выручку, но отмечаются достигнутыми только после разблокировки;
// цель, разблокированная этим же событием, проверяется повторно.
// Возвращает изменённые записи прогресса в порядке порогов.
func Apply(goals []model.Goal, progress Progress, actorID uuid.UUID, amount int64, now time.Time) ([]model.UserGoal, error) {
	if amount < 0 {
		return nil, fmt.Errorf("goal revenue %d: %w", amount, model.ErrInvalidAmount)
	}

	sorted := SortByTarget(active(goals))
	next := make(Progress, len(progress)+len(sorted))
	for k, v := range progress {
		next[k] = v
	}

	for _, g := range sorted {
		ug, ok := next[g.ID]
		if !ok {
			ug = Start(actorID, g, now)
		}

		ug, err := accrue(ug, amount, now)
		if err != nil {
			return nil, err
		}
		next[g.ID] = ug
	}

	for settled := true; settled; {
		settled = false
		for _, g := range sorted {
			ug := next[g.ID]
			if ug.Achieved() || IsLockedByLink(g, next) {
				continue
			}
			if ug = settle(ug, g, now); ug.Achieved() {
				next[g.ID] = ug
				settled = true
			}
		}
	}

	changed := make([]model.UserGoal, 0, len(sorted))
	for _, g := range sorted {
		changed = append(changed, next[g.ID])
	}
	return changed, nil
}

// Item цель с вычисленным прогрессом участника.
type Item struct {
	Goal          model.Goal `json:"goal"`
	CurrentAmount int64      `json:"current_amount"`
	Percent       int        `json:"percent"`
	AchievedAt    *time.Time `json:"achieved_at,omitempty"`
}

// Board разбиение целей на активные, выполненные и заблокированные.
type Board struct {
	Active    []Item `json:"active"`
	Completed []Item `json:"completed"`
	Locked    []Item `json:"locked"`
}

// Partition вычисляет Board по активным целям и прогрессу участника.
func Partition(goals []model.Goal, progress Progress) Board {
	sorted := SortByTarget(active(goals))
	b := Board{
		Active:    []Item{},
		Completed: []Item{},
		Locked:    []Item{},
	}

	for _, g := range sorted {
		ug := progress[g.ID]
		item := Item{
			Goal:          g,
			CurrentAmount: ug.CurrentAmount,
			Percent:       ProgressPercent(ug, g),
			AchievedAt:    ug.AchievedAt,
		}

		switch {
		case ug.Achieved():
			b.Completed = append(b.Completed, item)
		case IsLockedByLink(g, progress):
			b.Locked = append(b.Locked, item)
		default:
			b.Active = append(b.Active, item)
		}
	}
	return b
}

func active(goals []model.Goal) []model.Goal {
	res := make([]model.Goal, 0, len(goals))
	for _, g := range goals {
		if g.IsActive {
			res = append(res, g)
		}
	}
	return res
}
