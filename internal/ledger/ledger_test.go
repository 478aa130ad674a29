package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/learnhub/internal/lib/clock"
	"github.com/magabrotheeeer/learnhub/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) GetAccount(ctx context.Context, uid string) (*models.Account, error) {
	args := m.Called(ctx, uid)
	acc, _ := args.Get(0).(*models.Account)
	return acc, args.Error(1)
}

func (m *RepoMock) ExtendSubscription(ctx context.Context, uid string, expectedEnd *time.Time, newEnd, paidAt time.Time) (bool, error) {
	args := m.Called(ctx, uid, expectedEnd, newEnd, paidAt)
	return args.Bool(0), args.Error(1)
}

type PublisherMock struct{ mock.Mock }

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, message any) error {
	args := m.Called(ctx, routingKey, message)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

var now = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func ptr(t time.Time) *time.Time { return &t }

func TestNextEndDate(t *testing.T) {
	tests := []struct {
		name string
		acc  models.Account
		want time.Time
	}{
		{
			name: "trial resets from now",
			acc:  models.Account{SubscriptionStatus: models.StatusTrial, TrialStartDate: now.AddDate(0, 0, -2)},
			want: now.AddDate(0, 0, 10),
		},
		{
			name: "trial with stray end date in future still resets",
			acc:  models.Account{SubscriptionStatus: models.StatusTrial, SubscriptionEndDate: ptr(now.AddDate(0, 0, 20))},
			want: now.AddDate(0, 0, 10),
		},
		{
			name: "active in future is additive",
			acc:  models.Account{SubscriptionStatus: models.StatusActive, SubscriptionEndDate: ptr(now.AddDate(0, 0, 5))},
			want: now.AddDate(0, 0, 5).AddDate(0, 0, 10),
		},
		{
			name: "active expired resets",
			acc:  models.Account{SubscriptionStatus: models.StatusActive, SubscriptionEndDate: ptr(now.AddDate(0, 0, -3))},
			want: now.AddDate(0, 0, 10),
		},
		{
			name: "active ending exactly now resets",
			acc:  models.Account{SubscriptionStatus: models.StatusActive, SubscriptionEndDate: ptr(now)},
			want: now.AddDate(0, 0, 10),
		},
		{
			name: "active without end date resets",
			acc:  models.Account{SubscriptionStatus: models.StatusActive},
			want: now.AddDate(0, 0, 10),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextEndDate(tt.acc, 10, now))
		})
	}
}

func TestNextEndDate_LargePeriodStaysInFuture(t *testing.T) {
	trial := models.Account{SubscriptionStatus: models.StatusTrial, TrialStartDate: now}
	activeEnd := now.AddDate(0, 0, 30)
	active := models.Account{SubscriptionStatus: models.StatusActive, SubscriptionEndDate: &activeEnd}

	for _, days := range []int{MaxDays, 106751, 106752, 200000} {
		assert.True(t, NextEndDate(trial, days, now).After(now), "trial, days=%d", days)
		assert.True(t, NextEndDate(active, days, now).After(activeEnd), "active, days=%d", days)
	}
}

func TestLedger_Extend(t *testing.T) {
	trial := &models.Account{UID: "u1", Email: "t@x.y", Role: models.RoleTeacher, SubscriptionStatus: models.StatusTrial, TrialStartDate: now.AddDate(0, 0, -8)}
	activeEnd := now.AddDate(0, 0, 5)
	active := &models.Account{UID: "u1", Role: models.RoleTeacher, SubscriptionStatus: models.StatusActive, SubscriptionEndDate: &activeEnd}
	admin := &models.Account{UID: "u1", Role: models.RoleAdmin}

	tests := []struct {
		name       string
		uid        string
		days       int
		setupMocks func(r *RepoMock, p *PublisherMock)
		wantEnd    time.Time
		wantErr    error
	}{
		{
			name: "trial account converts to active",
			uid:  "u1",
			days: 10,
			setupMocks: func(r *RepoMock, p *PublisherMock) {
				r.On("GetAccount", mock.Anything, "u1").Return(trial, nil).Once()
				r.On("ExtendSubscription", mock.Anything, "u1", (*time.Time)(nil), now.AddDate(0, 0, 10), now).Return(true, nil).Once()
				p.On("Publish", mock.Anything, models.NotificationSubscriptionExtended, mock.MatchedBy(func(n models.Notification) bool {
					return n.AccountUID == "u1" && n.Email == "t@x.y" && n.DaysRemaining == 10
				})).Return(nil).Once()
			},
			wantEnd: now.AddDate(0, 0, 10),
		},
		{
			name: "active account is extended from current end",
			uid:  "u1",
			days: 10,
			setupMocks: func(r *RepoMock, p *PublisherMock) {
				r.On("GetAccount", mock.Anything, "u1").Return(active, nil).Once()
				r.On("ExtendSubscription", mock.Anything, "u1", &activeEnd, activeEnd.AddDate(0, 0, 10), now).Return(true, nil).Once()
				p.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
			},
			wantEnd: activeEnd.AddDate(0, 0, 10),
		},
		{
			name: "publish failure does not fail extension",
			uid:  "u1",
			days: 1,
			setupMocks: func(r *RepoMock, p *PublisherMock) {
				r.On("GetAccount", mock.Anything, "u1").Return(trial, nil).Once()
				r.On("ExtendSubscription", mock.Anything, "u1", (*time.Time)(nil), now.AddDate(0, 0, 1), now).Return(true, nil).Once()
				p.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()
			},
			wantEnd: now.AddDate(0, 0, 1),
		},
		{
			name:       "zero days",
			uid:        "u1",
			days:       0,
			setupMocks: func(_ *RepoMock, _ *PublisherMock) {},
			wantErr:    ErrInvalidDays,
		},
		{
			name:       "negative days",
			uid:        "u1",
			days:       -5,
			setupMocks: func(_ *RepoMock, _ *PublisherMock) {},
			wantErr:    ErrValidation,
		},
		{
			name:       "more than max days",
			uid:        "u1",
			days:       MaxDays + 1,
			setupMocks: func(_ *RepoMock, _ *PublisherMock) {},
			wantErr:    ErrTooManyDays,
		},
		{
			name: "max days is accepted",
			uid:  "u1",
			days: MaxDays,
			setupMocks: func(r *RepoMock, p *PublisherMock) {
				r.On("GetAccount", mock.Anything, "u1").Return(trial, nil).Once()
				r.On("ExtendSubscription", mock.Anything, "u1", (*time.Time)(nil), now.AddDate(0, 0, MaxDays), now).Return(true, nil).Once()
				p.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
			},
			wantEnd: now.AddDate(0, 0, MaxDays),
		},
		{
			name:       "missing account id",
			uid:        "",
			days:       5,
			setupMocks: func(_ *RepoMock, _ *PublisherMock) {},
			wantErr:    ErrAccountIDRequired,
		},
		{
			name: "admin account rejected",
			uid:  "u1",
			days: 5,
			setupMocks: func(r *RepoMock, _ *PublisherMock) {
				r.On("GetAccount", mock.Anything, "u1").Return(admin, nil).Once()
			},
			wantErr: ErrAdminAccount,
		},
		{
			name: "repository error propagated",
			uid:  "u1",
			days: 5,
			setupMocks: func(r *RepoMock, _ *PublisherMock) {
				r.On("GetAccount", mock.Anything, "u1").Return(nil, errNotFound).Once()
			},
			wantErr: errNotFound,
		},
		{
			name: "conflict is retried",
			uid:  "u1",
			days: 10,
			setupMocks: func(r *RepoMock, p *PublisherMock) {
				r.On("GetAccount", mock.Anything, "u1").Return(trial, nil).Once()
				r.On("ExtendSubscription", mock.Anything, "u1", (*time.Time)(nil), mock.Anything, now).Return(false, nil).Once()
				r.On("GetAccount", mock.Anything, "u1").Return(active, nil).Once()
				r.On("ExtendSubscription", mock.Anything, "u1", &activeEnd, activeEnd.AddDate(0, 0, 10), now).Return(true, nil).Once()
				p.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
			},
			wantEnd: activeEnd.AddDate(0, 0, 10),
		},
		{
			name: "persistent conflict gives up",
			uid:  "u1",
			days: 10,
			setupMocks: func(r *RepoMock, _ *PublisherMock) {
				r.On("GetAccount", mock.Anything, "u1").Return(trial, nil).Times(maxAttempts)
				r.On("ExtendSubscription", mock.Anything, "u1", mock.Anything, mock.Anything, now).Return(false, nil).Times(maxAttempts)
			},
			wantErr: ErrConcurrentUpdate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			pub := new(PublisherMock)
			tt.setupMocks(repo, pub)

			l := New(repo, clock.NewManual(now), pub, newNoopLogger())
			got, err := l.Extend(context.Background(), tt.uid, tt.days)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, got.IsZero())
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantEnd, got)
			}

			repo.AssertExpectations(t)
			pub.AssertExpectations(t)
			assert.Equal(t, 0, l.locks.size())
		})
	}
}

var errNotFound = errors.New("account not found")

// memoryRepo повторяет условное обновление хранилища.
type memoryRepo struct {
	mu  sync.Mutex
	acc models.Account
}

func (r *memoryRepo) GetAccount(_ context.Context, _ string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc := r.acc
	if acc.SubscriptionEndDate != nil {
		end := *acc.SubscriptionEndDate
		acc.SubscriptionEndDate = &end
	}
	return &acc, nil
}

func (r *memoryRepo) ExtendSubscription(_ context.Context, _ string, expectedEnd *time.Time, newEnd, paidAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.acc.SubscriptionEndDate
	if (cur == nil) != (expectedEnd == nil) || (cur != nil && !cur.Equal(*expectedEnd)) {
		return false, nil
	}
	r.acc.SubscriptionStatus = models.StatusActive
	r.acc.SubscriptionEndDate = &newEnd
	r.acc.LastPaymentDate = &paidAt
	return true, nil
}

func TestLedger_Extend_ConcurrentRequestsAreNotLost(t *testing.T) {
	repo := &memoryRepo{acc: models.Account{
		UID:                "u1",
		Role:               models.RoleTeacher,
		SubscriptionStatus: models.StatusTrial,
		TrialStartDate:     now,
	}}
	l := New(repo, clock.NewManual(now), nil, newNoopLogger())

	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			_, err := l.Extend(context.Background(), "u1", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	acc, _ := repo.GetAccount(context.Background(), "u1")
	require.NotNil(t, acc.SubscriptionEndDate)
	assert.Equal(t, now.AddDate(0, 0, workers), *acc.SubscriptionEndDate)
	assert.Equal(t, models.StatusActive, acc.SubscriptionStatus)
	assert.Equal(t, now, acc.TrialStartDate)
	assert.Equal(t, 0, l.locks.size())
}
