package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/learnhub/internal/cache"
	"github.com/magabrotheeeer/learnhub/internal/lib/clock"
	"github.com/magabrotheeeer/learnhub/internal/models"
	"github.com/magabrotheeeer/learnhub/internal/storage/repository"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateLesson(ctx context.Context, lesson models.Lesson) (int, error) {
	args := m.Called(ctx, lesson)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) ListLessons(ctx context.Context, ownerUID string, onlyActive bool) ([]*models.Lesson, error) {
	args := m.Called(ctx, ownerUID, onlyActive)
	lessons, _ := args.Get(0).([]*models.Lesson)
	return lessons, args.Error(1)
}

func (m *MockRepository) RemoveLesson(ctx context.Context, id int, ownerUID string) error {
	return m.Called(ctx, id, ownerUID).Error(0)
}

func (m *MockRepository) CreateReward(ctx context.Context, reward models.Reward) (int, error) {
	args := m.Called(ctx, reward)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) ListRewards(ctx context.Context, ownerUID string) ([]*models.Reward, error) {
	args := m.Called(ctx, ownerUID)
	rewards, _ := args.Get(0).([]*models.Reward)
	return rewards, args.Error(1)
}

func (m *MockRepository) RemoveReward(ctx context.Context, id int, ownerUID string) error {
	return m.Called(ctx, id, ownerUID).Error(0)
}

// brokenCache отказывает на каждой операции.
type brokenCache struct{}

func (brokenCache) Get(string, any) (bool, error)        { return false, errors.New("cache down") }
func (brokenCache) Set(string, any, time.Duration) error { return errors.New("cache down") }
func (brokenCache) Invalidate(string) error              { return errors.New("cache down") }

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

var (
	start = time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	ttl   = TTL{Lessons: time.Minute, Rewards: 5 * time.Minute}
)

func newService(repo Repository, c Cache, clk clock.Clock) *Service {
	return New(repo, c, ttl, clk, newNoopLogger())
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "lessons:owner:u1:active:true", LessonsKey("u1", true))
	assert.Equal(t, "lessons:owner:u1:active:false", LessonsKey("u1", false))
	assert.Equal(t, "rewards:owner:u1", RewardsKey("u1"))
}

func TestService_ListLessons_ReadThrough(t *testing.T) {
	clk := clock.NewManual(start)
	repo := new(MockRepository)
	lessons := []*models.Lesson{{ID: 1, OwnerUID: "u1", Title: "Intro", IsActive: true}}
	repo.On("ListLessons", mock.Anything, "u1", true).Return(lessons, nil).Twice()

	svc := newService(repo, cache.NewEphemeral(clk), clk)

	for range 3 {
		got, err := svc.ListLessons(context.Background(), "u1", true)
		require.NoError(t, err)
		assert.Equal(t, lessons, got)
	}
	repo.AssertNumberOfCalls(t, "ListLessons", 1)

	clk.Advance(ttl.Lessons)
	_, err := svc.ListLessons(context.Background(), "u1", true)
	require.NoError(t, err)
	repo.AssertNumberOfCalls(t, "ListLessons", 2)
}

func TestService_WriteInvalidatesCollection(t *testing.T) {
	clk := clock.NewManual(start)
	repo := new(MockRepository)
	c := cache.NewEphemeral(clk)
	svc := newService(repo, c, clk)

	repo.On("ListLessons", mock.Anything, "u1", true).Return([]*models.Lesson{}, nil)
	repo.On("ListLessons", mock.Anything, "u1", false).Return([]*models.Lesson{}, nil)
	repo.On("ListRewards", mock.Anything, "u1").Return([]*models.Reward{}, nil)
	repo.On("CreateLesson", mock.Anything, mock.MatchedBy(func(l models.Lesson) bool {
		return l.OwnerUID == "u1" && l.Title == "New" && l.IsActive && l.CreatedAt.Equal(start)
	})).Return(7, nil).Once()

	ctx := context.Background()
	_, err := svc.ListLessons(ctx, "u1", true)
	require.NoError(t, err)
	_, err = svc.ListLessons(ctx, "u1", false)
	require.NoError(t, err)
	_, err = svc.ListRewards(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 3, c.Len())

	created, err := svc.CreateLesson(ctx, "u1", models.DummyLesson{Title: "New"})
	require.NoError(t, err)
	assert.Equal(t, 7, created.ID)

	var rewards []*models.Reward
	found, err := c.Get(RewardsKey("u1"), &rewards)
	require.NoError(t, err)
	assert.True(t, found, "rewards must survive a lesson write")

	var lessons []*models.Lesson
	found, _ = c.Get(LessonsKey("u1", true), &lessons)
	assert.False(t, found)
	found, _ = c.Get(LessonsKey("u1", false), &lessons)
	assert.False(t, found)
}

func TestService_CreateLesson_Unpublished(t *testing.T) {
	clk := clock.NewManual(start)
	repo := new(MockRepository)
	inactive := false
	repo.On("CreateLesson", mock.Anything, mock.MatchedBy(func(l models.Lesson) bool { return !l.IsActive })).
		Return(1, nil).Once()

	svc := newService(repo, cache.NewEphemeral(clk), clk)
	lesson, err := svc.CreateLesson(context.Background(), "u1", models.DummyLesson{Title: "Draft", IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, lesson.IsActive)
	repo.AssertExpectations(t)
}

func TestService_Rewards(t *testing.T) {
	clk := clock.NewManual(start)
	repo := new(MockRepository)
	c := cache.NewEphemeral(clk)
	svc := newService(repo, c, clk)
	ctx := context.Background()

	repo.On("ListRewards", mock.Anything, "u1").Return([]*models.Reward{{ID: 1, Title: "Star"}}, nil)
	repo.On("CreateReward", mock.Anything, mock.MatchedBy(func(r models.Reward) bool {
		return r.OwnerUID == "u1" && r.Cost == 10
	})).Return(2, nil).Once()
	repo.On("RemoveReward", mock.Anything, 1, "u1").Return(nil).Once()
	repo.On("RemoveReward", mock.Anything, 9, "u1").Return(repository.ErrNotFound).Once()

	_, err := svc.ListRewards(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	reward, err := svc.CreateReward(ctx, "u1", models.DummyReward{Title: "Cup", Cost: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, reward.ID)
	assert.Equal(t, 0, c.Len())

	_, err = svc.ListRewards(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, svc.RemoveReward(ctx, "u1", 1))
	assert.Equal(t, 0, c.Len())

	assert.ErrorIs(t, svc.RemoveReward(ctx, "u1", 9), repository.ErrNotFound)
	repo.AssertExpectations(t)
}

func TestService_RemoveLesson(t *testing.T) {
	clk := clock.NewManual(start)
	repo := new(MockRepository)
	repo.On("RemoveLesson", mock.Anything, 3, "u1").Return(nil).Once()
	repo.On("RemoveLesson", mock.Anything, 4, "u1").Return(repository.ErrNotFound).Once()

	svc := newService(repo, cache.NewEphemeral(clk), clk)
	require.NoError(t, svc.RemoveLesson(context.Background(), "u1", 3))
	assert.ErrorIs(t, svc.RemoveLesson(context.Background(), "u1", 4), repository.ErrNotFound)
}

func TestService_CacheFaultFallsThrough(t *testing.T) {
	clk := clock.NewManual(start)
	repo := new(MockRepository)
	svc := newService(repo, brokenCache{}, clk)
	ctx := context.Background()

	repo.On("ListLessons", mock.Anything, "u1", false).Return([]*models.Lesson{{ID: 1}}, nil).Twice()
	repo.On("CreateLesson", mock.Anything, mock.Anything).Return(5, nil).Once()

	for range 2 {
		got, err := svc.ListLessons(ctx, "u1", false)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	}
	_, err := svc.CreateLesson(ctx, "u1", models.DummyLesson{Title: "x"})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestService_StoreErrorNotCached(t *testing.T) {
	clk := clock.NewManual(start)
	repo := new(MockRepository)
	c := cache.NewEphemeral(clk)
	svc := newService(repo, c, clk)

	repo.On("ListRewards", mock.Anything, "u1").Return(nil, errors.New("db down")).Once()
	_, err := svc.ListRewards(context.Background(), "u1")
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

// slowRepo считает загрузки и держит их до release.
type slowRepo struct {
	MockRepository
	loads   atomic.Int32
	release chan struct{}
}

func (r *slowRepo) ListLessons(_ context.Context, _ string, _ bool) ([]*models.Lesson, error) {
	r.loads.Add(1)
	<-r.release
	return []*models.Lesson{{ID: 1}}, nil
}

func TestService_ConcurrentMissesLoadOnce(t *testing.T) {
	clk := clock.NewManual(start)
	repo := &slowRepo{release: make(chan struct{})}
	svc := newService(repo, cache.NewEphemeral(clk), clk)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := svc.ListLessons(context.Background(), "u1", true)
			assert.NoError(t, err)
			assert.Len(t, got, 1)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(repo.release)
	wg.Wait()

	assert.Equal(t, int32(1), repo.loads.Load())
}

func TestService_LoadStartedBeforeWriteIsNotCached(t *testing.T) {
	clk := clock.NewManual(start)
	repo := &slowRepo{release: make(chan struct{})}
	repo.On("CreateLesson", mock.Anything, mock.Anything).Return(2, nil).Once()
	c := cache.NewEphemeral(clk)
	svc := newService(repo, c, clk)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := svc.ListLessons(context.Background(), "u1", true)
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return repo.loads.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, err := svc.CreateLesson(context.Background(), "u1", models.DummyLesson{Title: "New"})
	require.NoError(t, err)

	close(repo.release)
	<-done

	assert.Equal(t, 0, c.Len())
}

func TestService_ReadAfterWriteDoesNotJoinOlderLoad(t *testing.T) {
	clk := clock.NewManual(start)
	repo := &slowRepo{release: make(chan struct{})}
	repo.On("CreateLesson", mock.Anything, mock.Anything).Return(2, nil).Once()
	svc := newService(repo, cache.NewEphemeral(clk), clk)

	var wg sync.WaitGroup
	read := func() {
		defer wg.Done()
		_, err := svc.ListLessons(context.Background(), "u1", true)
		assert.NoError(t, err)
	}

	wg.Add(1)
	go read()
	require.Eventually(t, func() bool { return repo.loads.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, err := svc.CreateLesson(context.Background(), "u1", models.DummyLesson{Title: "New"})
	require.NoError(t, err)

	wg.Add(1)
	go read()
	require.Eventually(t, func() bool { return repo.loads.Load() == 2 }, time.Second, 5*time.Millisecond)

	close(repo.release)
	wg.Wait()
}
