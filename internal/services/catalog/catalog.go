// Package catalog отдает уроки и награды преподавателя через кэш.
//
// Чтение сначала идет в кэш, при промахе в хранилище, одновременные
// промахи по одному ключу схлопываются в один запрос. Запись сначала
// сохраняется, затем сбрасывает все ключи своей коллекции. Сбой кэша
// никогда не ломает запрос: он логируется и считается промахом.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/magabrotheeeer/learnhub/internal/lib/clock"
	"github.com/magabrotheeeer/learnhub/internal/lib/sl"
	"github.com/magabrotheeeer/learnhub/internal/metrics"
	"github.com/magabrotheeeer/learnhub/internal/models"
)

// Пространства имен ключей кэша.
const (
	LessonsNamespace = "lessons"
	RewardsNamespace = "rewards"
)

// Cache описывает кэш с TTL и инвалидацией по подстроке.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, ttl time.Duration) error
	Invalidate(substring string) error
}

// Repository описывает хранилище каталога.
type Repository interface {
	CreateLesson(ctx context.Context, lesson models.Lesson) (int, error)
	ListLessons(ctx context.Context, ownerUID string, onlyActive bool) ([]*models.Lesson, error)
	RemoveLesson(ctx context.Context, id int, ownerUID string) error
	CreateReward(ctx context.Context, reward models.Reward) (int, error)
	ListRewards(ctx context.Context, ownerUID string) ([]*models.Reward, error)
	RemoveReward(ctx context.Context, id int, ownerUID string) error
}

// TTL задает время жизни закэшированных списков.
type TTL struct {
	Lessons time.Duration
	Rewards time.Duration
}

// Service реализует операции каталога.
type Service struct {
	repo  Repository
	cache Cache
	ttl   TTL
	clock clock.Clock
	log   *slog.Logger
	group singleflight.Group

	// generations растет при каждой записи в коллекцию. Загрузка, начатая
	// до записи, не кладет свой результат в кэш.
	mu          sync.Mutex
	generations map[string]uint64
}

// New создает Service.
func New(repo Repository, cache Cache, ttl TTL, clk clock.Clock, log *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		cache:       cache,
		ttl:         ttl,
		clock:       clk,
		log:         log,
		generations: make(map[string]uint64),
	}
}

// LessonsKey возвращает ключ кэша списка уроков.
func LessonsKey(ownerUID string, onlyActive bool) string {
	return LessonsNamespace + ":owner:" + ownerUID + ":active:" + strconv.FormatBool(onlyActive)
}

// RewardsKey возвращает ключ кэша списка наград.
func RewardsKey(ownerUID string) string {
	return RewardsNamespace + ":owner:" + ownerUID
}

// ListLessons возвращает уроки владельца.
func (s *Service) ListLessons(ctx context.Context, ownerUID string, onlyActive bool) ([]*models.Lesson, error) {
	const op = "catalog.ListLessons"
	lessons, err := readThrough(ctx, s, LessonsNamespace, LessonsKey(ownerUID, onlyActive), s.ttl.Lessons,
		func(ctx context.Context) ([]*models.Lesson, error) {
			return s.repo.ListLessons(ctx, ownerUID, onlyActive)
		})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return lessons, nil
}

// CreateLesson сохраняет урок. По умолчанию урок опубликован.
func (s *Service) CreateLesson(ctx context.Context, ownerUID string, req models.DummyLesson) (*models.Lesson, error) {
	const op = "catalog.CreateLesson"

	lesson := models.Lesson{
		OwnerUID:    ownerUID,
		Title:       req.Title,
		Description: req.Description,
		VideoURL:    req.VideoURL,
		IsActive:    req.IsActive == nil || *req.IsActive,
		CreatedAt:   s.clock.Now(),
	}
	id, err := s.repo.CreateLesson(ctx, lesson)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	lesson.ID = id

	s.invalidate(LessonsNamespace)
	return &lesson, nil
}

// RemoveLesson удаляет урок владельца.
func (s *Service) RemoveLesson(ctx context.Context, ownerUID string, id int) error {
	const op = "catalog.RemoveLesson"
	if err := s.repo.RemoveLesson(ctx, id, ownerUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(LessonsNamespace)
	return nil
}

// ListRewards возвращает награды владельца.
func (s *Service) ListRewards(ctx context.Context, ownerUID string) ([]*models.Reward, error) {
	const op = "catalog.ListRewards"
	rewards, err := readThrough(ctx, s, RewardsNamespace, RewardsKey(ownerUID), s.ttl.Rewards,
		func(ctx context.Context) ([]*models.Reward, error) {
			return s.repo.ListRewards(ctx, ownerUID)
		})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rewards, nil
}

// CreateReward сохраняет награду.
func (s *Service) CreateReward(ctx context.Context, ownerUID string, req models.DummyReward) (*models.Reward, error) {
	const op = "catalog.CreateReward"

	reward := models.Reward{
		OwnerUID:  ownerUID,
		Title:     req.Title,
		Cost:      req.Cost,
		CreatedAt: s.clock.Now(),
	}
	id, err := s.repo.CreateReward(ctx, reward)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	reward.ID = id

	s.invalidate(RewardsNamespace)
	return &reward, nil
}

// RemoveReward удаляет награду владельца.
func (s *Service) RemoveReward(ctx context.Context, ownerUID string, id int) error {
	const op = "catalog.RemoveReward"
	if err := s.repo.RemoveReward(ctx, id, ownerUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(RewardsNamespace)
	return nil
}

func (s *Service) generation(namespace string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[namespace]
}

func (s *Service) invalidate(namespace string) {
	s.mu.Lock()
	s.generations[namespace]++
	s.mu.Unlock()

	if err := s.cache.Invalidate(namespace); err != nil {
		metrics.CacheResult(namespace, "fault")
		s.log.Warn("failed to invalidate cache", slog.String("namespace", namespace), sl.Err(err))
	}
}

// readThrough читает key из кэша, при промахе загружает значение через load
// и кладет его в кэш. Загрузка не отменяется вместе с ctx первого вызова,
// потому что ее результат ждут и другие запросы.
func readThrough[T any](ctx context.Context, s *Service, namespace, key string, ttl time.Duration,
	load func(context.Context) (T, error)) (T, error) {
	var cached T
	found, err := s.cache.Get(key, &cached)
	switch {
	case err != nil:
		metrics.CacheResult(namespace, "fault")
		s.log.Warn("cache read failed", slog.String("key", key), sl.Err(err))
	case found:
		metrics.CacheResult(namespace, "hit")
		return cached, nil
	default:
		metrics.CacheResult(namespace, "miss")
	}

	gen := s.generation(namespace)
	v, err, _ := s.group.Do(key+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		loaded, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s.storeIfCurrent(namespace, key, gen, loaded, ttl)
		return loaded, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// storeIfCurrent кладет loaded в кэш, только если с начала загрузки в
// коллекцию ничего не записывали.
func (s *Service) storeIfCurrent(namespace, key string, gen uint64, loaded any, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[namespace] != gen {
		return
	}
	if err := s.cache.Set(key, loaded, ttl); err != nil {
		metrics.CacheResult(namespace, "fault")
		s.log.Warn("cache write failed", slog.String("key", key), sl.Err(err))
	}
}
