package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-payouts/internal/goal"
	"github.com/mmeshcher/storefront-payouts/internal/model"
	"github.com/mmeshcher/storefront-payouts/internal/repository"
	"github.com/mmeshcher/storefront-payouts/internal/validation"
)

// CreateGoalParams параметры новой цели.
type CreateGoalParams struct {
	Name              string           `json:"name"`
	TargetAmount      int64            `json:"target_amount"`
	RewardType        model.RewardType `json:"reward_type"`
	RewardDescription string           `json:"reward_description"`
}

// CreateGoal добавляет активную цель и пересчитывает ссылки на предыдущие цели.
func (s *Service) CreateGoal(ctx context.Context, p CreateGoalParams) (*model.Goal, error) {
	g := model.Goal{
		ID:                uuid.New(),
		Name:              strings.TrimSpace(p.Name),
		TargetAmount:      p.TargetAmount,
		RewardType:        p.RewardType,
		RewardDescription: strings.TrimSpace(p.RewardDescription),
		IsActive:          true,
	}
	if err := validation.Struct(&g); err != nil {
		return nil, invalidInput("goal: %v", err)
	}

	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		goals, err := tx.ListGoals(ctx)
		if err != nil {
			return err
		}
		if err := tx.InsertGoal(ctx, &g); err != nil {
			return err
		}

		stored := make(map[uuid.UUID]model.Goal, len(goals)+1)
		for _, existing := range goals {
			stored[existing.ID] = existing
		}
		stored[g.ID] = g

		active := make([]model.Goal, 0, len(stored))
		for _, existing := range stored {
			if existing.IsActive {
				active = append(active, existing)
			}
		}

		for _, linked := range goal.Order(active) {
			if linked.ID == g.ID {
				g.PreviousGoalID = linked.PreviousGoalID
			}
			if samePrevious(stored[linked.ID].PreviousGoalID, linked.PreviousGoalID) {
				continue
			}
			if err := tx.UpdateGoal(ctx, &linked); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("goal created", zap.String("goal_id", g.ID.String()), zap.Int64("target", g.TargetAmount))
	return &g, nil
}

func samePrevious(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ListGoals возвращает все цели по возрастанию порога с сохранёнными ссылками.
func (s *Service) ListGoals(ctx context.Context) ([]model.Goal, error) {
	var res []model.Goal
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		goals, err := tx.ListGoals(ctx)
		if err != nil {
			return err
		}
		res = goal.SortByTarget(goals)
		return nil
	})
	return res, err
}

// GoalBoard возвращает активные, выполненные и заблокированные цели участника.
func (s *Service) GoalBoard(ctx context.Context, actorID uuid.UUID) (*goal.Board, error) {
	var board goal.Board
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		goals, err := tx.ListGoals(ctx)
		if err != nil {
			return err
		}
		progress, err := loadProgress(ctx, tx, actorID)
		if err != nil {
			return err
		}
		board = goal.Partition(goals, progress)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &board, nil
}
