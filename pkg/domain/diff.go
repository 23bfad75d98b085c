package domain

import "strconv"

// FieldDiffStatus classifies the change of a single field.
type FieldDiffStatus string

const (
	FieldAdded     FieldDiffStatus = "added"
	FieldRemoved   FieldDiffStatus = "removed"
	FieldModified  FieldDiffStatus = "modified"
	FieldUnchanged FieldDiffStatus = "unchanged"
)

// FieldDiff is the change of one field between two snapshots.
// Before is nil for added fields and After is nil for removed ones.
type FieldDiff struct {
	Key      string          `json:"key"`
	Status   FieldDiffStatus `json:"status"`
	Before   *FieldSnapshot  `json:"before,omitempty"`
	After    *FieldSnapshot  `json:"after,omitempty"`
	Children []FieldDiff     `json:"children,omitempty"`
}

// Changed reports whether the field differs between the two sides.
func (d FieldDiff) Changed() bool {
	return d.Status != FieldUnchanged
}

// DiffEntries compares two entry snapshots.
// A nil side means there is no snapshot to compare against (e.g. the first
// step of a pipeline); every field of the other side is then reported as
// unchanged relative to itself.
func DiffEntries(before, after *EntrySnapshot) []FieldDiff {
	switch {
	case before == nil && after == nil:
		return nil
	case before == nil:
		return unchangedFields(after.Fields)
	case after == nil:
		return unchangedFields(before.Fields)
	}
	return DiffFields(before.Fields, after.Fields)
}

// DiffFields computes a keyed tree diff of two field lists.
//
// The result covers the union of keys, ordered by first appearance in before
// followed by keys only present in after. Fields are matched by key, never by
// position: a renamed field is one removal plus one addition. Scalar summaries
// are compared as their formatted strings. Duplicate keys within one list
// match on their first occurrence only. Inputs are never mutated.
//
// A nil list is an empty list, not an absent side: DiffFields(nil, after)
// reports every field of after as added. Use DiffEntries for the
// absent-predecessor rule.
func DiffFields(before, after []FieldSnapshot) []FieldDiff {
	beforeIdx := indexByKey(before)
	afterIdx := indexByKey(after)

	keys := make([]string, 0, len(beforeIdx)+len(afterIdx))
	seen := make(map[string]bool, len(beforeIdx)+len(afterIdx))
	for _, f := range before {
		if !seen[f.Key] {
			seen[f.Key] = true
			keys = append(keys, f.Key)
		}
	}
	for _, f := range after {
		if !seen[f.Key] {
			seen[f.Key] = true
			keys = append(keys, f.Key)
		}
	}

	diffs := make([]FieldDiff, 0, len(keys))
	for _, key := range keys {
		b, inBefore := beforeIdx[key]
		a, inAfter := afterIdx[key]

		switch {
		case !inBefore:
			diffs = append(diffs, FieldDiff{Key: key, Status: FieldAdded, After: a})
		case !inAfter:
			diffs = append(diffs, FieldDiff{Key: key, Status: FieldRemoved, Before: b})
		default:
			diffs = append(diffs, diffPair(key, b, a))
		}
	}
	return diffs
}

func diffPair(key string, b, a *FieldSnapshot) FieldDiff {
	d := FieldDiff{Key: key, Status: FieldUnchanged, Before: b, After: a}

	if len(b.Children) > 0 || len(a.Children) > 0 {
		d.Children = DiffFields(b.Children, a.Children)
	}

	if !sameSummary(b, a) {
		d.Status = FieldModified
		return d
	}
	for _, c := range d.Children {
		if c.Changed() {
			d.Status = FieldModified
			break
		}
	}
	return d
}

// sameSummary compares the scalar attributes that define a field's identity.
func sameSummary(b, a *FieldSnapshot) bool {
	return b.PythonType == a.PythonType &&
		b.Shape == a.Shape &&
		b.Dtype == a.Dtype &&
		b.Min == a.Min &&
		b.Max == a.Max &&
		b.Mean == a.Mean &&
		b.Std == a.Std &&
		formatSize(b.SizeBytes) == formatSize(a.SizeBytes) &&
		b.Preview == a.Preview
}

func formatSize(size *int64) string {
	if size == nil {
		return ""
	}
	return strconv.FormatInt(*size, 10)
}

func indexByKey(fields []FieldSnapshot) map[string]*FieldSnapshot {
	idx := make(map[string]*FieldSnapshot, len(fields))
	for i := range fields {
		if _, dup := idx[fields[i].Key]; !dup {
			idx[fields[i].Key] = &fields[i]
		}
	}
	return idx
}

func unchangedFields(fields []FieldSnapshot) []FieldDiff {
	diffs := make([]FieldDiff, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for i := range fields {
		f := &fields[i]
		if seen[f.Key] {
			continue
		}
		seen[f.Key] = true
		d := FieldDiff{Key: f.Key, Status: FieldUnchanged, Before: f, After: f}
		if len(f.Children) > 0 {
			d.Children = unchangedFields(f.Children)
		}
		diffs = append(diffs, d)
	}
	return diffs
}

// DiffSummary counts top-level statuses of a diff.
type DiffSummary struct {
	Added     int `json:"added"`
	Removed   int `json:"removed"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
}

// Summarize counts the top-level statuses in diffs.
func Summarize(diffs []FieldDiff) DiffSummary {
	var s DiffSummary
	for _, d := range diffs {
		switch d.Status {
		case FieldAdded:
			s.Added++
		case FieldRemoved:
			s.Removed++
		case FieldModified:
			s.Modified++
		default:
			s.Unchanged++
		}
	}
	return s
}
