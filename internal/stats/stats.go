// Package stats renders the weekly histogram of newly created entities.
package stats

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"civicrelay/internal/constants"
	"civicrelay/internal/models"
)

const block = "▓"

type WeekCount struct {
	Year  int
	Week  int
	Count int
}

// CountByWeek groups entities created after the start of the ISO week
// lookbackWeeks before now, newest week first.
func CountByWeek(entities []models.Entity, now time.Time, lookbackWeeks int) []WeekCount {
	lowerBound := startOfISOWeek(now).AddDate(0, 0, -7*lookbackWeeks)

	counts := make(map[[2]int]int)
	for _, e := range entities {
		created := e.CreatedDate.Time().In(now.Location())
		if !created.After(lowerBound) {
			continue
		}
		year, week := created.ISOWeek()
		counts[[2]int{year, week}]++
	}

	weeks := make([]WeekCount, 0, len(counts))
	for k, n := range counts {
		weeks = append(weeks, WeekCount{Year: k[0], Week: k[1], Count: n})
	}
	sort.Slice(weeks, func(i, j int) bool {
		if weeks[i].Year != weeks[j].Year {
			return weeks[i].Year > weeks[j].Year
		}
		return weeks[i].Week > weeks[j].Week
	})
	return weeks
}

// WeeklyReport renders the periodic report text for entities.
func WeeklyReport(entities []models.Entity, now time.Time, title, hashtag string) string {
	weeks := CountByWeek(entities, now, constants.StatsLookbackWeeks)
	if len(weeks) > constants.StatsMaxLines {
		weeks = weeks[:constants.StatsMaxLines]
	}

	lines := make([]string, 0, len(weeks))
	for _, w := range weeks {
		blocks := int(math.Floor(float64(w.Count)/constants.StatsPerBlock + 0.5))
		if blocks > constants.StatsMaxBlocks {
			blocks = constants.StatsMaxBlocks
		}
		lines = append(lines, fmt.Sprintf("KW %s %s  %d", weekLabel(w.Week), strings.Repeat(block, blocks), w.Count))
	}

	return fmt.Sprintf("%s\n\n%s\n\n#%s", title, strings.Join(lines, "\n"), hashtag)
}

// weekLabel renders the week number in full-width digits, padding single
// digit weeks so the bars line up.
func weekLabel(week int) string {
	s := fmt.Sprintf("%d", week)
	if week < 10 {
		s = "    " + s
	}

	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune('０' + (r - '0'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func startOfISOWeek(t time.Time) time.Time {
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -daysSinceMonday).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
