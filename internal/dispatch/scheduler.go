package dispatch

import (
	"sort"
	"sync"
	"time"
)

// Scheduler runs tasks at an offset from the moment they were scheduled.
type Scheduler interface {
	Schedule(offset time.Duration, task func())
	// Wait blocks until every scheduled task has run or been stopped.
	Wait()
}

// TimerScheduler runs each task on its own timer goroutine.
type TimerScheduler struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	timers []*time.Timer
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{}
}

func (s *TimerScheduler) Schedule(offset time.Duration, task func()) {
	s.wg.Add(1)
	timer := time.AfterFunc(offset, func() {
		defer s.wg.Done()
		task()
	})

	s.mu.Lock()
	s.timers = append(s.timers, timer)
	s.mu.Unlock()
}

func (s *TimerScheduler) Wait() {
	s.wg.Wait()
}

// Stop cancels every task that has not started yet.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.timers {
		if t.Stop() {
			s.wg.Done()
		}
	}
	s.timers = nil
}

// RecordingScheduler records offsets and runs tasks synchronously, in offset
// order, when Wait is called. It never sleeps.
type RecordingScheduler struct {
	mu      sync.Mutex
	Offsets []time.Duration
	pending []scheduled
}

type scheduled struct {
	offset time.Duration
	task   func()
}

func NewRecordingScheduler() *RecordingScheduler {
	return &RecordingScheduler{}
}

func (s *RecordingScheduler) Schedule(offset time.Duration, task func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Offsets = append(s.Offsets, offset)
	s.pending = append(s.pending, scheduled{offset: offset, task: task})
}

func (s *RecordingScheduler) Wait() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].offset < pending[j].offset
	})
	for _, p := range pending {
		p.task()
	}
}
