// Package clock предоставляет источник текущего времени, который можно
// подменить в тестах.
package clock

import (
	"sync"
	"time"
)

// Clock возвращает текущее время.
type Clock interface {
	Now() time.Time
}

// Real использует системное время в UTC.
type Real struct{}

// Now возвращает текущее время в UTC.
func (Real) Now() time.Time {
	return time.Now().UTC()
}

// Manual реализует часы с ручным управлением для тестов.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual создает часы, остановленные на моменте t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

// Now возвращает установленное время.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set переводит часы на момент t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Advance сдвигает часы вперед на d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}
