package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/obs-watcher/internal/domain"
)

// HistoryStore appends every announced grade change to Postgres, giving a
// queryable record across semesters. Optional: the watcher runs without it.
type HistoryStore struct {
	db *pgxpool.Pool
}

func NewHistoryStore(ctx context.Context, connStr string) (*HistoryStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &HistoryStore{db: db}, nil
}

func (s *HistoryStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *HistoryStore) Close() {
	s.db.Close()
}

// RecordChanges writes the run's new or changed grades within a single
// transaction. The latest row per course is also upserted into
// grade_current so state queries need no window functions.
func (s *HistoryStore) RecordChanges(ctx context.Context, changes []domain.GradeRecord, observedAt time.Time) error {
	if len(changes) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range changes {
		batch.Queue(
			`INSERT INTO grade_history (course_code, course_name, grade, observed_at)
			 VALUES ($1, $2, $3, $4)`,
			r.CourseCode, r.CourseName, r.Grade, observedAt)
		batch.Queue(
			`INSERT INTO grade_current (course_code, course_name, grade, observed_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (course_code) DO UPDATE SET
			   course_name = EXCLUDED.course_name,
			   grade = EXCLUDED.grade,
			   observed_at = EXCLUDED.observed_at`,
			r.CourseCode, r.CourseName, r.Grade, observedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
