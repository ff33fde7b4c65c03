package infra

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// WeightedSlots implementa domain.Slots sobre semaphore.Weighted.
type WeightedSlots struct {
	sem      *semaphore.Weighted
	capacity int
	inUse    atomic.Int64
}

func NewSlots(capacity int) *WeightedSlots {
	return &WeightedSlots{sem: semaphore.NewWeighted(int64(capacity)), capacity: capacity}
}

// Acquire espera por uma vaga até ctx encerrar.
func (s *WeightedSlots) Acquire(ctx context.Context) (func(), bool) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, false
	}
	return s.hold(), true
}

// TryAcquire não espera.
func (s *WeightedSlots) TryAcquire() (func(), bool) {
	if !s.sem.TryAcquire(1) {
		return nil, false
	}
	return s.hold(), true
}

func (s *WeightedSlots) hold() func() {
	s.inUse.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			s.inUse.Add(-1)
			s.sem.Release(1)
		})
	}
}

func (s *WeightedSlots) InUse() int    { return int(s.inUse.Load()) }
func (s *WeightedSlots) Capacity() int { return s.capacity }
