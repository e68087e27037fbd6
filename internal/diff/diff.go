// Package diff detects task changes between the last recorded state and the
// current contents of the task database.
package diff

import (
	"sort"
	"time"
)

// Kind classifies a change.
type Kind string

const (
	KindCreated       Kind = "created"
	KindStatusChanged Kind = "status_changed"
	KindRenamed       Kind = "renamed"
	KindRemoved       Kind = "removed"
)

var kindOrder = map[Kind]int{
	KindCreated:       0,
	KindStatusChanged: 1,
	KindRenamed:       2,
	KindRemoved:       3,
}

// ParseKind returns the kind named s.
func ParseKind(s string) (Kind, bool) {
	k := Kind(s)
	_, ok := kindOrder[k]
	return k, ok
}

// Snapshot is the recorded state of one task.
type Snapshot struct {
	TaskID     string    `json:"task_id"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	URL        string    `json:"url"`
	ObservedAt time.Time `json:"observed_at"`
}

// Change is one observed difference.
type Change struct {
	Kind           Kind      `json:"kind"`
	TaskID         string    `json:"task_id"`
	Title          string    `json:"title"`
	PreviousStatus string    `json:"previous_status"`
	Status         string    `json:"status"`
	URL            string    `json:"url"`
	ChangedAt      time.Time `json:"changed_at"`
}

// Compare returns the changes that turn prev into curr, stamped with at.
// The result is ordered by kind then task id.
func Compare(prev map[string]Snapshot, curr []Snapshot, at time.Time) []Change {
	var out []Change
	seen := make(map[string]struct{}, len(curr))
	for _, c := range curr {
		seen[c.TaskID] = struct{}{}
		p, ok := prev[c.TaskID]
		switch {
		case !ok:
			out = append(out, Change{Kind: KindCreated, TaskID: c.TaskID, Title: c.Title, Status: c.Status, URL: c.URL, ChangedAt: at})
		case p.Status != c.Status:
			out = append(out, Change{Kind: KindStatusChanged, TaskID: c.TaskID, Title: c.Title, PreviousStatus: p.Status, Status: c.Status, URL: c.URL, ChangedAt: at})
		case p.Title != c.Title:
			out = append(out, Change{Kind: KindRenamed, TaskID: c.TaskID, Title: c.Title, PreviousStatus: p.Status, Status: c.Status, URL: c.URL, ChangedAt: at})
		}
	}
	for id, p := range prev {
		if _, ok := seen[id]; ok {
			continue
		}
		out = append(out, Change{Kind: KindRemoved, TaskID: id, Title: p.Title, PreviousStatus: p.Status, URL: p.URL, ChangedAt: at})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return kindOrder[out[i].Kind] < kindOrder[out[j].Kind]
		}
		return out[i].TaskID < out[j].TaskID
	})
	return out
}

// Apply folds changes, oldest first, into a snapshot map. prev is not
// modified.
func Apply(prev map[string]Snapshot, changes []Change) map[string]Snapshot {
	next := make(map[string]Snapshot, len(prev))
	for k, v := range prev {
		next[k] = v
	}
	for _, c := range changes {
		if c.Kind == KindRemoved {
			delete(next, c.TaskID)
			continue
		}
		next[c.TaskID] = Snapshot{
			TaskID:     c.TaskID,
			Title:      c.Title,
			Status:     c.Status,
			URL:        c.URL,
			ObservedAt: c.ChangedAt,
		}
	}
	return next
}

// Index keys snapshots by task id.
func Index(snaps []Snapshot) map[string]Snapshot {
	m := make(map[string]Snapshot, len(snaps))
	for _, s := range snaps {
		m[s.TaskID] = s
	}
	return m
}
