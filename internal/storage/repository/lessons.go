package repository

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/learnhub/internal/models"
)

// CreateLesson вставляет новый урок и возвращает его ID.
func (s *Storage) CreateLesson(ctx context.Context, lesson models.Lesson) (int, error) {
	const op = "storage.CreateLesson"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	query := `INSERT INTO lessons (owner_uid, title, description, video_url, is_active)
			  VALUES ($1, $2, $3, $4, $5)
			  RETURNING id`
	var id int
	if err := s.DB.QueryRowContext(ctx, query,
		lesson.OwnerUID, lesson.Title, lesson.Description, lesson.VideoURL, lesson.IsActive).Scan(&id); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// ListLessons возвращает уроки владельца; при onlyActive только опубликованные.
func (s *Storage) ListLessons(ctx context.Context, ownerUID string, onlyActive bool) ([]*models.Lesson, error) {
	const op = "storage.ListLessons"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT id, owner_uid, title, description, video_url, is_active, created_at
			  FROM lessons
			  WHERE owner_uid = $1 AND ($2 = FALSE OR is_active)
			  ORDER BY created_at DESC, id DESC`
	rows, err := s.DB.QueryContext(ctx, query, ownerUID, onlyActive)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]*models.Lesson, 0)
	for rows.Next() {
		var l models.Lesson
		if err := rows.Scan(&l.ID, &l.OwnerUID, &l.Title, &l.Description, &l.VideoURL,
			&l.IsActive, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// RemoveLesson удаляет урок владельца по ID.
func (s *Storage) RemoveLesson(ctx context.Context, id int, ownerUID string) error {
	const op = "storage.RemoveLesson"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM lessons WHERE id = $1 AND owner_uid = $2`, id, ownerUID)
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
