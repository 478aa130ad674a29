// Package cache содержит кэш для редко меняющихся коллекций (уроки, награды).
//
// Ephemeral хранит значения в памяти процесса, Redis хранит их в общем для всех
// реплик redis. Обе реализации одинаково трактуют TTL и инвалидацию: запись
// удаляется по любой подстроке ключа, пустая подстрока очищает все.
package cache

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/magabrotheeeer/learnhub/internal/lib/clock"
)

var (
	// ErrInvalidTarget возвращается, если result не ненулевой указатель.
	ErrInvalidTarget = errors.New("cache: result must be a non-nil pointer")
	// ErrTypeMismatch возвращается, если тип сохраненного значения не подходит под result.
	ErrTypeMismatch = errors.New("cache: stored value type mismatch")
)

type entry struct {
	value  any
	expiry time.Time
}

// Ephemeral реализует потокобезопасный кэш в памяти с TTL на каждую запись.
// Сохраненные значения не копируются, вызывающий не должен их изменять.
type Ephemeral struct {
	mu    sync.RWMutex
	items map[string]entry
	clock clock.Clock
}

// NewEphemeral создает пустой кэш.
func NewEphemeral(clk clock.Clock) *Ephemeral {
	return &Ephemeral{
		items: make(map[string]entry),
		clock: clk,
	}
}

// Get записывает значение по ключу в result. Возвращает false, если записи
// нет или ее срок истек; истекшая запись удаляется.
func (c *Ephemeral) Get(key string, result any) (bool, error) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}

	if !c.clock.Now().Before(e.expiry) {
		c.mu.Lock()
		if cur, ok := c.items[key]; ok && cur.expiry.Equal(e.expiry) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return false, nil
	}

	if err := assign(result, e.value); err != nil {
		return false, err
	}
	return true, nil
}

// Set сохраняет значение до now+ttl, заменяя прежнее.
func (c *Ephemeral) Set(key string, value any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		delete(c.items, key)
		return nil
	}
	c.items[key] = entry{value: value, expiry: c.clock.Now().Add(ttl)}
	return nil
}

// Invalidate удаляет все ключи, содержащие substring.
func (c *Ephemeral) Invalidate(substring string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if substring == "" {
		clear(c.items)
		return nil
	}
	for key := range c.items {
		if strings.Contains(key, substring) {
			delete(c.items, key)
		}
	}
	return nil
}

// Purge удаляет все истекшие записи и возвращает их количество.
func (c *Ephemeral) Purge() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.items {
		if !now.Before(e.expiry) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Len возвращает число хранимых записей, включая еще не вычищенные истекшие.
func (c *Ephemeral) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// RunJanitor периодически вызывает Purge, пока не отменен ctx.
func (c *Ephemeral) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Purge()
		}
	}
}

func assign(result, value any) error {
	rv := reflect.ValueOf(result)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return ErrInvalidTarget
	}
	target := rv.Elem()
	if value == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}
	vv := reflect.ValueOf(value)
	if !vv.Type().AssignableTo(target.Type()) {
		return fmt.Errorf("%w: have %s, want %s", ErrTypeMismatch, vv.Type(), target.Type())
	}
	target.Set(vv)
	return nil
}
