package repository

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/learnhub/internal/models"
)

// CreateReward вставляет новую награду и возвращает ее ID.
func (s *Storage) CreateReward(ctx context.Context, reward models.Reward) (int, error) {
	const op = "storage.CreateReward"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	query := `INSERT INTO rewards (owner_uid, title, cost)
			  VALUES ($1, $2, $3)
			  RETURNING id`
	var id int
	if err := s.DB.QueryRowContext(ctx, query, reward.OwnerUID, reward.Title, reward.Cost).Scan(&id); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// ListRewards возвращает награды владельца.
func (s *Storage) ListRewards(ctx context.Context, ownerUID string) ([]*models.Reward, error) {
	const op = "storage.ListRewards"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT id, owner_uid, title, cost, created_at
			  FROM rewards
			  WHERE owner_uid = $1
			  ORDER BY cost, id`
	rows, err := s.DB.QueryContext(ctx, query, ownerUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]*models.Reward, 0)
	for rows.Next() {
		var r models.Reward
		if err := rows.Scan(&r.ID, &r.OwnerUID, &r.Title, &r.Cost, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// RemoveReward удаляет награду владельца по ID.
func (s *Storage) RemoveReward(ctx context.Context, id int, ownerUID string) error {
	const op = "storage.RemoveReward"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM rewards WHERE id = $1 AND owner_uid = $2`, id, ownerUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
