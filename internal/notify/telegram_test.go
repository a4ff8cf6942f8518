package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/user/obs-watcher/internal/domain"
)

func TestFormatStartup(t *testing.T) {
	got := FormatStartup(30 * time.Minute)
	if !strings.Contains(got, "30 dakika") {
		t.Errorf("startup message missing interval: %q", got)
	}
}

func TestFormatGradesSingle(t *testing.T) {
	got := FormatGrades([]domain.GradeRecord{{
		CourseCode: "BLM207",
		CourseName: "Veri Yapıları",
		Grade:      "AA",
		Status:     "Geçti",
	}})
	for _, want := range []string{"BLM207", "Veri Yapıları", "<code>AA</code>", "Geçti"} {
		if !strings.Contains(got, want) {
			t.Errorf("single-grade message missing %q:\n%s", want, got)
		}
	}
}

func TestFormatGradesBatched(t *testing.T) {
	got := FormatGrades([]domain.GradeRecord{
		{CourseCode: "BLM207", CourseName: "Veri Yapıları", Grade: "AA"},
		{CourseCode: "MAT101", CourseName: "Matematik I", Grade: "72"},
	})
	if !strings.Contains(got, "2 Yeni Sınav Sonucu") {
		t.Errorf("batched message missing count header:\n%s", got)
	}
	if !strings.Contains(got, "1. <b>BLM207</b>") || !strings.Contains(got, "2. <b>MAT101</b>") {
		t.Errorf("batched message missing numbered entries:\n%s", got)
	}
}

func TestFormatError(t *testing.T) {
	got := FormatError("login failed")
	if !strings.Contains(got, "login failed") || !strings.Contains(got, "Hata") {
		t.Errorf("error message = %q", got)
	}
}
