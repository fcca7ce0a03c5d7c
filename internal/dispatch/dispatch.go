// Package dispatch runs one task per entity at a fixed spacing, oldest entity
// first, isolating every task's failure from its siblings.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "civicrelay/internal/errors"
	"civicrelay/internal/models"

	"github.com/sirupsen/logrus"
)

// OrderBy extracts the timestamp entities are ordered by.
type OrderBy func(models.Entity) models.Millis

func ByCreatedDate(e models.Entity) models.Millis { return e.CreatedDate }
func ByLastUpdated(e models.Entity) models.Millis { return e.LastUpdated }

type Options struct {
	// Delay separates consecutive task starts.
	Delay time.Duration
	// MaxPerRun bounds how many tasks may publish. <= 0 means unlimited.
	MaxPerRun int
	// OrderBy defaults to ByCreatedDate.
	OrderBy OrderBy
	// Name labels log entries of this batch.
	Name string
}

// Handler processes one entity. publish is false for entities beyond the
// per-run publish budget; they are still processed otherwise.
type Handler func(ctx context.Context, entity models.Entity, publish bool) error

type Result struct {
	Scheduled int
	// Published counts tasks that were allowed to publish.
	Published int
	Failed    int
	// Skipped counts tasks that never ran because the context ended first.
	Skipped int
}

type stopper interface {
	Stop()
}

type Dispatcher struct {
	scheduler Scheduler
	logger    *logrus.Logger
}

func New(scheduler Scheduler, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{scheduler: scheduler, logger: logger}
}

// Dispatch schedules handler for every item and blocks until the batch has
// drained. Task i starts at i*Delay; a sentinel fires at n*Delay.
func (d *Dispatcher) Dispatch(ctx context.Context, items []models.Entity, opts Options, handler Handler) Result {
	orderBy := opts.OrderBy
	if orderBy == nil {
		orderBy = ByCreatedDate
	}

	sorted := make([]models.Entity, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return orderBy(sorted[i]) < orderBy(sorted[j])
	})

	logger := d.logger.WithField("batch", opts.Name)

	var (
		mu     sync.Mutex
		ran    int
		result = Result{Scheduled: len(sorted)}
	)
	record := func(fn func(r *Result)) {
		mu.Lock()
		fn(&result)
		mu.Unlock()
	}

	for i, entity := range sorted {
		publish := opts.MaxPerRun <= 0 || i < opts.MaxPerRun
		if publish {
			result.Published++
		}

		entity := entity
		d.scheduler.Schedule(time.Duration(i)*opts.Delay, func() {
			if ctx.Err() != nil {
				return
			}
			mu.Lock()
			ran++
			mu.Unlock()
			if err := runIsolated(ctx, handler, entity, publish); err != nil {
				record(func(r *Result) { r.Failed++ })
				apperrors.WithAppContext(logger.WithError(err), err).
					WithField("entity_id", entity.ID.String()).
					Errorf("Processing %s failed", batchLabel(opts.Name))
			}
		})
	}

	done := make(chan struct{})
	d.scheduler.Schedule(time.Duration(len(sorted))*opts.Delay, func() {
		close(done)
	})

	if s, ok := d.scheduler.(stopper); ok {
		stop := context.AfterFunc(ctx, s.Stop)
		defer stop()
	}

	d.scheduler.Wait()

	select {
	case <-done:
	default:
		logger.Warn("Batch cancelled before all tasks started")
	}

	mu.Lock()
	result.Skipped = result.Scheduled - ran
	mu.Unlock()

	logger.WithFields(logrus.Fields{
		"scheduled": result.Scheduled,
		"published": result.Published,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
	}).Info("Batch finished")

	return result
}

func runIsolated(ctx context.Context, handler Handler, entity models.Entity, publish bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.New(apperrors.ErrCodeInternalError, fmt.Sprintf("panic: %v", r))
		}
	}()
	return handler(ctx, entity, publish)
}

func batchLabel(name string) string {
	if name == "" {
		return "entity"
	}
	return name
}
