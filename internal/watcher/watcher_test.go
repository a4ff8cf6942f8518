package watcher

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/user/obs-watcher/internal/domain"
)

type fakePortal struct {
	loginErr error
	html     string
	fetchErr error
	closed   bool
}

func (f *fakePortal) Login(context.Context) error { return f.loginErr }
func (f *fakePortal) FetchResultsPage(context.Context) (string, error) {
	return f.html, f.fetchErr
}
func (f *fakePortal) Close() { f.closed = true }

type fakeExtractor struct {
	records []domain.GradeRecord
	err     error
}

func (f *fakeExtractor) Extract(string) ([]domain.GradeRecord, error) {
	return f.records, f.err
}

type fakeStore struct {
	snapshot domain.Snapshot
	saved    []domain.Snapshot
	saveErr  error
}

func (f *fakeStore) Load(context.Context) (domain.Snapshot, error) { return f.snapshot, nil }
func (f *fakeStore) Save(_ context.Context, snap domain.Snapshot) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, snap)
	return nil
}

type fakeNotifier struct {
	grades   [][]domain.GradeRecord
	gradeErr error
	errors   []string
}

func (f *fakeNotifier) Startup(time.Duration) error { return nil }
func (f *fakeNotifier) GradeAlert(changes []domain.GradeRecord) error {
	if f.gradeErr != nil {
		return f.gradeErr
	}
	f.grades = append(f.grades, changes)
	return nil
}
func (f *fakeNotifier) ErrorAlert(msg string) error {
	f.errors = append(f.errors, msg)
	return nil
}

type fakeHistory struct {
	recorded []domain.GradeRecord
	err      error
}

func (f *fakeHistory) RecordChanges(_ context.Context, changes []domain.GradeRecord, _ time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.recorded = append(f.recorded, changes...)
	return nil
}

func newTestWatcher(portal *fakePortal, ex *fakeExtractor, store *fakeStore, hist History, n *fakeNotifier) *Watcher {
	return New(func() Portal { return portal }, ex, store, hist, n, nil, zap.NewNop())
}

func TestCheckNotifiesAndSaves(t *testing.T) {
	portal := &fakePortal{html: "<html/>"}
	current := []domain.GradeRecord{
		{CourseCode: "BLM207", CourseName: "Veri Yapıları", Grade: "AA"},
		{CourseCode: "MAT101", CourseName: "Matematik I", Grade: "72"},
	}
	store := &fakeStore{snapshot: domain.Snapshot{{CourseCode: "BLM207", Grade: ""}}}
	notifier := &fakeNotifier{}
	hist := &fakeHistory{}
	w := newTestWatcher(portal, &fakeExtractor{records: current}, store, hist, notifier)

	result, err := w.Check(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// BLM207 newly graded, MAT101 newly appeared with a grade.
	if len(result.Changed) != 2 {
		t.Fatalf("changed = %+v, want both records", result.Changed)
	}
	if len(notifier.grades) != 1 || len(notifier.grades[0]) != 2 {
		t.Errorf("notified %+v, want one batched alert with 2 records", notifier.grades)
	}
	if len(hist.recorded) != 2 {
		t.Errorf("history recorded %d records, want 2", len(hist.recorded))
	}
	if len(store.saved) != 1 || len(store.saved[0]) != 2 {
		t.Errorf("saved %+v, want the full current snapshot", store.saved)
	}
	if !portal.closed {
		t.Error("portal session left open")
	}
}

func TestCheckNoChangesStillSaves(t *testing.T) {
	snap := domain.Snapshot{{CourseCode: "BLM207", Grade: "AA"}}
	portal := &fakePortal{html: "<html/>"}
	store := &fakeStore{snapshot: snap}
	notifier := &fakeNotifier{}
	w := newTestWatcher(portal, &fakeExtractor{records: snap}, store, nil, notifier)

	result, err := w.Check(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Changed) != 0 {
		t.Errorf("changed = %+v, want none", result.Changed)
	}
	if len(notifier.grades) != 0 {
		t.Errorf("unexpected notification: %+v", notifier.grades)
	}
	if len(store.saved) != 1 {
		t.Errorf("snapshot not refreshed after completed run")
	}
}

func TestCheckEmptyExtractionKeepsSnapshot(t *testing.T) {
	portal := &fakePortal{html: "<html/>"}
	store := &fakeStore{snapshot: domain.Snapshot{{CourseCode: "BLM207", Grade: "AA"}}}
	w := newTestWatcher(portal, &fakeExtractor{}, store, nil, &fakeNotifier{})

	result, err := w.Check(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Fetched != 0 {
		t.Errorf("fetched = %d, want 0", result.Fetched)
	}
	if len(store.saved) != 0 {
		t.Errorf("empty extraction overwrote the snapshot: %+v", store.saved)
	}
}

func TestCheckLoginFailure(t *testing.T) {
	portal := &fakePortal{loginErr: errors.New("captcha could not be solved")}
	store := &fakeStore{}
	w := newTestWatcher(portal, &fakeExtractor{}, store, nil, &fakeNotifier{})

	if _, err := w.Check(context.Background()); err == nil {
		t.Fatal("login failure not surfaced")
	}
	if !portal.closed {
		t.Error("portal session left open after failure")
	}
	if len(store.saved) != 0 {
		t.Error("snapshot written after failed run")
	}
}

func TestCheckNotifyFailureBlocksSave(t *testing.T) {
	portal := &fakePortal{html: "<html/>"}
	current := []domain.GradeRecord{{CourseCode: "BLM207", Grade: "AA"}}
	store := &fakeStore{}
	notifier := &fakeNotifier{gradeErr: errors.New("telegram down")}
	w := newTestWatcher(portal, &fakeExtractor{records: current}, store, nil, notifier)

	if _, err := w.Check(context.Background()); err == nil {
		t.Fatal("notify failure not surfaced")
	}
	// The unsent grades must re-surface on the next run.
	if len(store.saved) != 0 {
		t.Error("snapshot written despite failed notification")
	}
}

func TestCheckHistoryFailureIsNotFatal(t *testing.T) {
	portal := &fakePortal{html: "<html/>"}
	current := []domain.GradeRecord{{CourseCode: "BLM207", Grade: "AA"}}
	store := &fakeStore{}
	hist := &fakeHistory{err: errors.New("db down")}
	w := newTestWatcher(portal, &fakeExtractor{records: current}, store, hist, &fakeNotifier{})

	if _, err := w.Check(context.Background()); err != nil {
		t.Fatalf("history failure should not fail the run: %v", err)
	}
	if len(store.saved) != 1 {
		t.Error("snapshot not saved after history failure")
	}
}

func TestRunReportsFailureViaNotifier(t *testing.T) {
	portal := &fakePortal{loginErr: errors.New("timeout waiting for page")}
	notifier := &fakeNotifier{}
	w := newTestWatcher(portal, &fakeExtractor{}, &fakeStore{}, nil, notifier)

	w.Run(context.Background())

	if len(notifier.errors) != 1 || !strings.Contains(notifier.errors[0], "timeout") {
		t.Errorf("error alerts = %v, want one mentioning the timeout", notifier.errors)
	}
}
