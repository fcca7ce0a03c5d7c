// Package archive moves entities that left the portal, or went quiet for too
// long, out of the active tenant data.
package archive

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "civicrelay/internal/errors"
	"civicrelay/internal/models"
	"civicrelay/internal/storage"

	"github.com/sirupsen/logrus"
)

type Archiver struct {
	store  storage.Store
	layout storage.Layout
	logger *logrus.Logger
}

func New(store storage.Store, tenantKey string, logger *logrus.Logger) *Archiver {
	return &Archiver{store: store, layout: storage.NewLayout(tenantKey), logger: logger}
}

// Threshold is the end of the ISO week lying months before now.
func Threshold(now time.Time, months int) time.Time {
	return endOfISOWeek(subMonths(now, months))
}

// Candidates returns the ledger entities absent from current or last updated
// before threshold.
func Candidates(ledger, current []models.Entity, threshold time.Time) []models.Entity {
	present := make(map[models.EntityID]struct{}, len(current))
	for _, e := range current {
		present[e.ID] = struct{}{}
	}

	var out []models.Entity
	for _, e := range ledger {
		_, inFetch := present[e.ID]
		if !inFetch || e.LastUpdated.Time().Before(threshold) {
			out = append(out, e)
		}
	}
	return out
}

// Archive relocates the media files and then the detail record of every
// candidate. Artifacts move independently: a failed media move leaves the
// detail record move unaffected. The ledger is never modified. It returns the
// ids for which at least one artifact moved, plus the joined move failures.
func (a *Archiver) Archive(ctx context.Context, ledger, current []models.Entity, threshold time.Time) ([]models.EntityID, error) {
	candidates := Candidates(ledger, current, threshold)

	var (
		moved  []models.EntityID
		errs   []error
		images []string
	)
	if len(candidates) > 0 {
		dir := a.layout.ImagesDir() + "/"
		var err error
		images, err = a.store.List(ctx, dir)
		if err != nil {
			errs = append(errs, apperrors.NewArchivalError("", dir, err))
		}
	}

	for _, e := range candidates {
		id := e.ID.String()
		movedAny := false

		for _, key := range a.mediaOf(images, id) {
			if err := a.store.Move(ctx, key, a.layout.ArchivedImage(storage.Base(key))); err != nil {
				errs = append(errs, apperrors.NewArchivalError(id, key, err))
				continue
			}
			movedAny = true
		}

		err := a.store.Move(ctx, a.layout.Detail(id), a.layout.ArchivedDetail(id))
		switch {
		case err == nil:
			movedAny = true
		case errors.Is(err, storage.ErrNotFound):
			// archived by an earlier run
		default:
			errs = append(errs, apperrors.NewArchivalError(id, a.layout.Detail(id), err))
		}

		if movedAny {
			moved = append(moved, e.ID)
		}
	}

	for _, err := range errs {
		apperrors.WithAppContext(a.logger.WithError(err), err).Warn("Archiving artifact failed")
	}
	a.logger.WithFields(logrus.Fields{
		"candidates": len(candidates),
		"archived":   len(moved),
		"threshold":  threshold.Format(time.RFC3339),
	}).Info("Archiving old entities finished")

	return moved, errors.Join(errs...)
}

// mediaOf picks the media files of one entity out of the images listing.
func (a *Archiver) mediaOf(images []string, id string) []string {
	prefix := a.layout.MediaPrefix(id)
	var out []string
	for _, key := range images {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	return out
}

// subMonths steps back whole calendar months, clamping the day to the last
// day of the target month (March 31 minus one month is the last of February).
func subMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m-time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return first.AddDate(0, 0, d-1)
}

func endOfISOWeek(t time.Time) time.Time {
	daysToSunday := (7 - int(t.Weekday())) % 7
	y, m, d := t.AddDate(0, 0, daysToSunday).Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
