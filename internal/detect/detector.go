// Package detect diffs the fingerprints discoverable on disk against the
// loaded build cache and classifies every source identity as added,
// modified, removed or unchanged.
package detect

import (
	"log/slog"

	"git.home.luguber.info/inful/sitegen/internal/source"
	"git.home.luguber.info/inful/sitegen/internal/util/sets"
)

// Change labels a single identity's classification. The labels are stable
// strings so reports and logs can carry them without drift.
type Change string

const (
	ChangeAdded     Change = "added"
	ChangeModified  Change = "modified"
	ChangeRemoved   Change = "removed"
	ChangeUnchanged Change = "unchanged"
)

// Changes is the result of one detection pass.
type Changes struct {
	Added    []source.Identity
	Modified []source.Identity
	Removed  []source.Identity

	// Unchanged counts identities present in both snapshots with equal
	// content hashes.
	Unchanged int

	// ConfigChanged is set when the config identity was added or modified.
	// Config changes are global: every artifact that recorded a config
	// dependency is impacted, never a subset.
	ConfigChanged bool

	// Reasons maps each non-unchanged identity to its classification.
	Reasons map[source.Identity]Change
}

// Any reports whether anything changed at all.
func (c Changes) Any() bool {
	return len(c.Added) > 0 || len(c.Modified) > 0 || len(c.Removed) > 0
}

// ChangedSet returns all changed identities (added, modified and removed) as
// a set for reverse reachability.
func (c Changes) ChangedSet() sets.Set[source.Identity] {
	out := sets.New[source.Identity]()
	for _, id := range c.Added {
		out.Add(id)
	}
	for _, id := range c.Modified {
		out.Add(id)
	}
	for _, id := range c.Removed {
		out.Add(id)
	}
	return out
}

// Detect classifies every identity in the current snapshot against the
// cached one. Classification order per identity:
//  1. absent from cache, present now  -> added
//  2. present in both, hash differs   -> modified
//  3. present in cache, absent now    -> removed
//  4. otherwise                       -> unchanged
func Detect(cached source.Snapshot, current source.Snapshot) Changes {
	c := Changes{Reasons: make(map[source.Identity]Change)}

	for _, id := range current.Identities() {
		fp := current[id]
		prev, ok := cached[id]
		switch {
		case !ok:
			c.Added = append(c.Added, id)
			c.Reasons[id] = ChangeAdded
		case prev.ContentHash != fp.ContentHash:
			c.Modified = append(c.Modified, id)
			c.Reasons[id] = ChangeModified
		default:
			c.Unchanged++
		}
		if id.Kind == source.KindConfig && c.Reasons[id] != "" {
			c.ConfigChanged = true
		}
	}

	for _, id := range cached.Identities() {
		if _, ok := current[id]; !ok {
			c.Removed = append(c.Removed, id)
			c.Reasons[id] = ChangeRemoved
		}
	}

	slog.Debug("Change detection complete",
		"added", len(c.Added),
		"modified", len(c.Modified),
		"removed", len(c.Removed),
		"unchanged", c.Unchanged,
		"config_changed", c.ConfigChanged)
	return c
}
