package domain

import "time"

// GradeRecord holds one course row from the results table. CourseCode is the
// identity key within a snapshot; an empty Grade means the result has not
// been announced yet.
type GradeRecord struct {
	CourseCode string             `json:"course_code"`
	CourseName string             `json:"course_name"`
	Grade      string             `json:"grade"`
	ExamGrades map[string]float64 `json:"exam_grades,omitempty"`
	Status     string             `json:"status,omitempty"`
}

// HasGrade reports whether a result has been announced for this course.
func (r GradeRecord) HasGrade() bool {
	return r.Grade != ""
}

// Snapshot is the full ordered set of grade records observed in one run.
type Snapshot []GradeRecord

// CheckResult summarizes one completed watcher run.
type CheckResult struct {
	Fetched   int
	Changed   []GradeRecord
	CheckedAt time.Time
}
