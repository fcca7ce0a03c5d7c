// Package detect partitions a fetched entity set against what is already
// known.
package detect

import "civicrelay/internal/models"

// UpdatePair is a known entity whose fetched version is newer than its
// stored detail record.
type UpdatePair struct {
	Old models.Entity
	New models.Entity
}

type Partition struct {
	// New holds current entities whose id is not in the ledger.
	New []models.Entity
	// Updated holds current entities with a detail record older than the
	// fetched lastUpdated.
	Updated []UpdatePair
	// Unchanged holds known current entities that are not updates, including
	// those without an active detail record.
	Unchanged []models.Entity
	// Unmatched holds ledger entities absent from the current fetch.
	Unmatched []models.Entity
}

// Detect partitions current against the ledger and the active detail
// records. It has no side effects and does not order its output.
func Detect(current, ledger []models.Entity, details map[models.EntityID]models.Entity) Partition {
	known := make(map[models.EntityID]struct{}, len(ledger))
	for _, e := range ledger {
		known[e.ID] = struct{}{}
	}

	var p Partition
	seen := make(map[models.EntityID]struct{}, len(current))
	for _, e := range current {
		seen[e.ID] = struct{}{}

		if _, ok := known[e.ID]; !ok {
			p.New = append(p.New, e)
			continue
		}

		old, ok := details[e.ID]
		if ok && e.LastUpdated > old.LastUpdated {
			p.Updated = append(p.Updated, UpdatePair{Old: old, New: e})
			continue
		}
		p.Unchanged = append(p.Unchanged, e)
	}

	for _, e := range ledger {
		if _, ok := seen[e.ID]; !ok {
			p.Unmatched = append(p.Unmatched, e)
		}
	}

	return p
}

// NewResponses reports how many responses the fetched version adds.
func (u UpdatePair) NewResponses() int {
	return len(u.New.Responses) - len(u.Old.Responses)
}

// StatusChanged reports whether the status differs between versions.
func (u UpdatePair) StatusChanged() bool {
	return u.Old.Status != u.New.Status
}
