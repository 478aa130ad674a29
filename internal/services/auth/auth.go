// Package auth регистрирует преподавателей и выдает токены доступа.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/learnhub/internal/lib/clock"
	"github.com/magabrotheeeer/learnhub/internal/lib/jwt"
	"github.com/magabrotheeeer/learnhub/internal/lib/password"
	"github.com/magabrotheeeer/learnhub/internal/models"
	"github.com/magabrotheeeer/learnhub/internal/storage/repository"
)

// ErrInvalidCredentials означает неверный email или пароль. Какая именно часть
// не совпала, не сообщается.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AccountRepository описывает хранилище учетных записей.
type AccountRepository interface {
	CreateAccount(ctx context.Context, acc models.Account) (string, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
}

// Service отвечает за регистрацию и вход.
type Service struct {
	accounts AccountRepository
	jwtMaker jwt.Maker
	clock    clock.Clock
	log      *slog.Logger
}

// New создает Service.
func New(accounts AccountRepository, jwtMaker jwt.Maker, clk clock.Clock, log *slog.Logger) *Service {
	return &Service{
		accounts: accounts,
		jwtMaker: jwtMaker,
		clock:    clk,
		log:      log,
	}
}

// Register создает учетную запись преподавателя на пробном периоде,
// который начинается в момент регистрации.
func (s *Service) Register(ctx context.Context, email, name, rawPassword string) (*models.Account, error) {
	const op = "auth.Register"

	hashed, err := password.GetHash(rawPassword)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	now := s.clock.Now()
	acc := models.Account{
		Email:              normalizeEmail(email),
		Name:               strings.TrimSpace(name),
		PasswordHash:       hashed,
		Role:               models.RoleTeacher,
		SubscriptionStatus: models.StatusTrial,
		TrialStartDate:     now,
		IsActive:           true,
		CreatedAt:          now,
	}
	uid, err := s.accounts.CreateAccount(ctx, acc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	acc.UID = uid
	return &acc, nil
}

// Login проверяет пароль и выпускает токен.
func (s *Service) Login(ctx context.Context, email, rawPassword string) (string, *models.Account, error) {
	const op = "auth.Login"

	acc, err := s.accounts.GetAccountByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repository.ErrAccountNotFound) {
		return "", nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	if err = password.CompareHash(acc.PasswordHash, rawPassword); err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	token, err := s.jwtMaker.GenerateToken(acc.UID, acc.Role)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	return token, acc, nil
}

// EnsureAdmin создает администратора, если учетной записи с таким email еще нет.
// Существующая запись не изменяется. Пустой email ничего не делает.
func (s *Service) EnsureAdmin(ctx context.Context, email, rawPassword string) error {
	const op = "auth.EnsureAdmin"
	log := s.log.With(slog.String("op", op))

	if strings.TrimSpace(email) == "" {
		return nil
	}
	if rawPassword == "" {
		return fmt.Errorf("%s: admin password is empty", op)
	}

	existing, err := s.accounts.GetAccountByEmail(ctx, normalizeEmail(email))
	if err == nil {
		if !existing.IsAdmin() {
			log.Warn("bootstrap admin email belongs to a non-admin account", slog.String("uid", existing.UID))
		}
		return nil
	}
	if !errors.Is(err, repository.ErrAccountNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}

	hashed, err := password.GetHash(rawPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	now := s.clock.Now()
	uid, err := s.accounts.CreateAccount(ctx, models.Account{
		Email:          normalizeEmail(email),
		Name:           "admin",
		PasswordHash:   hashed,
		Role:           models.RoleAdmin,
		TrialStartDate: now,
		IsActive:       true,
		CreatedAt:      now,
	})
	if errors.Is(err, repository.ErrEmailTaken) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Info("bootstrap admin created", slog.String("uid", uid))
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
