// Package diff computes which grade records are new or changed between two
// snapshots of the results table.
package diff

import "github.com/user/obs-watcher/internal/domain"

// Changed returns the subset of current records that carry a grade the
// previous snapshot did not have for the same course code.
//
// Previous records without a grade carry no information: a course that was
// listed ungraded and now has a result counts as new. Grade comparison is
// exact string equality; values are never normalized, matching the portal's
// own rendering.
func Changed(previous, current domain.Snapshot) []domain.GradeRecord {
	known := make(map[string]string, len(previous))
	for _, r := range previous {
		if r.HasGrade() {
			known[r.CourseCode] = r.Grade
		}
	}

	var changed []domain.GradeRecord
	for _, r := range current {
		if !r.HasGrade() {
			continue
		}
		prev, ok := known[r.CourseCode]
		if !ok || prev != r.Grade {
			changed = append(changed, r)
		}
	}
	return changed
}
