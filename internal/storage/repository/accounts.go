package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/learnhub/internal/models"
)

const accountColumns = `uid, email, name, password_hash, role, subscription_status,
			      trial_start_date, subscription_end_date, last_payment_date, is_active, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a                models.Account
		endDate, payDate sql.NullTime
	)
	if err := row.Scan(&a.UID, &a.Email, &a.Name, &a.PasswordHash, &a.Role, &a.SubscriptionStatus,
		&a.TrialStartDate, &endDate, &payDate, &a.IsActive, &a.CreatedAt); err != nil {
		return nil, err
	}
	if endDate.Valid {
		a.SubscriptionEndDate = &endDate.Time
	}
	if payDate.Valid {
		a.LastPaymentDate = &payDate.Time
	}
	return &a, nil
}

// CreateAccount сохраняет новую учетную запись и возвращает ее UID.
func (s *Storage) CreateAccount(ctx context.Context, acc models.Account) (string, error) {
	const op = "storage.CreateAccount"
	if err := checkCtx(ctx, op); err != nil {
		return "", err
	}

	query := `INSERT INTO accounts (email, name, password_hash, role, subscription_status,
			      trial_start_date, is_active)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  RETURNING uid`
	var uid string
	err := s.DB.QueryRowContext(ctx, query,
		acc.Email, acc.Name, acc.PasswordHash, acc.Role, acc.SubscriptionStatus,
		acc.TrialStartDate, acc.IsActive).Scan(&uid)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return uid, nil
}

// GetAccount возвращает учетную запись по UID.
func (s *Storage) GetAccount(ctx context.Context, uid string) (*models.Account, error) {
	const op = "storage.GetAccount"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE uid = $1`
	acc, err := scanAccount(s.DB.QueryRowContext(ctx, query, uid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return acc, nil
}

// GetAccountByEmail возвращает учетную запись по email.
func (s *Storage) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	const op = "storage.GetAccountByEmail"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	acc, err := scanAccount(s.DB.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return acc, nil
}

// ExtendSubscription переводит учетную запись в статус active с новой датой
// окончания, только если текущая дата окончания все еще равна expectedEnd.
// Возвращает false, если запись успел изменить другой запрос.
func (s *Storage) ExtendSubscription(ctx context.Context, uid string, expectedEnd *time.Time, newEnd, paidAt time.Time) (bool, error) {
	const op = "storage.ExtendSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}

	query := `UPDATE accounts
			  SET subscription_status = 'active',
			      subscription_end_date = $2,
			      last_payment_date = $3
			  WHERE uid = $1
			    AND role <> 'admin'
			    AND subscription_end_date IS NOT DISTINCT FROM $4`
	res, err := s.DB.ExecContext(ctx, query, uid, newEnd, paidAt, expectedEnd)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 1, nil
}

// FindTrialsStartedBetween возвращает активные учетные записи на пробном
// периоде, начатом в интервале [from, to).
func (s *Storage) FindTrialsStartedBetween(ctx context.Context, from, to time.Time) ([]*models.Account, error) {
	const op = "storage.FindTrialsStartedBetween"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + accountColumns + `
			  FROM accounts
			  WHERE subscription_status = 'trial'
			    AND role <> 'admin'
			    AND is_active
			    AND trial_start_date >= $1
			    AND trial_start_date < $2`
	rows, err := s.DB.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, acc)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
