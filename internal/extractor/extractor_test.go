package extractor

import (
	"testing"

	"go.uber.org/zap"
)

const genericPage = `
<html><body>
<table id="navTable"><tr><td>Menü</td></tr><tr><td>Çıkış</td></tr></table>
<table id="grdNotListesi">
  <tr>
    <th>#</th><th>Ders Kodu</th><th>Ders Adı</th><th>Sonuç/Durumu</th>
    <th>Sınav Notları</th><th>Örf</th><th>Not</th><th>Durumu</th>
  </tr>
  <tr>
    <td>1</td><td>BLM207</td><td>Veri Yapıları</td><td>Açıklandı</td>
    <td>Vize: 85</td><td></td><td>AA</td><td>Geçti</td>
  </tr>
  <tr>
    <td>2</td><td>MAT101</td><td>Matematik I</td><td>Açıklandı</td>
    <td>Vize: 60</td><td></td><td>72</td><td>Geçti</td>
  </tr>
  <tr>
    <td>3</td><td>FIZ102</td><td>Fizik II</td><td>Bekleniyor</td>
    <td></td><td></td><td></td><td></td>
  </tr>
  <tr>
    <td>4</td><td></td><td>kısa satır</td>
  </tr>
</table>
</body></html>`

func TestExtractGenericLayout(t *testing.T) {
	e := New(zap.NewNop())
	records, err := e.Extract(genericPage)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3: %+v", len(records), records)
	}

	if records[0].CourseCode != "BLM207" || records[0].Grade != "AA" {
		t.Errorf("record 0 = %+v, want BLM207/AA", records[0])
	}
	if records[0].CourseName != "Veri Yapıları" {
		t.Errorf("record 0 name = %q", records[0].CourseName)
	}
	if records[0].ExamGrades["Vize"] != 85 {
		t.Errorf("record 0 exam grades = %v, want Vize:85", records[0].ExamGrades)
	}
	if records[1].CourseCode != "MAT101" || records[1].Grade != "72" {
		t.Errorf("record 1 = %+v, want MAT101/72", records[1])
	}
	// Ungraded course is still admitted, with an empty grade.
	if records[2].CourseCode != "FIZ102" || records[2].Grade != "" {
		t.Errorf("record 2 = %+v, want FIZ102 with empty grade", records[2])
	}
}

const genericNoHeaderPage = `
<html><body>
<table border="1">
  <tr><td>sıra</td><td>ders</td><td>durum</td><td>sonuç</td><td>not</td></tr>
  <tr><td>1</td><td>BLM207</td><td>Veri Yapıları</td><td>Açıklandı</td><td>84,5</td></tr>
</table>
</body></html>`

func TestExtractGenericWithoutHeaderMap(t *testing.T) {
	e := New(zap.NewNop())
	records, err := e.Extract(genericNoHeaderPage)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1: %+v", len(records), records)
	}
	// Code guessed as the first short alphanumeric column, name as the next
	// column, grade by the right-to-left numeric scan.
	if records[0].CourseCode != "BLM207" {
		t.Errorf("code = %q, want BLM207", records[0].CourseCode)
	}
	if records[0].CourseName != "Veri Yapıları" {
		t.Errorf("name = %q, want Veri Yapıları", records[0].CourseName)
	}
	if records[0].Grade != "84,5" {
		t.Errorf("grade = %q, want 84,5 (as rendered)", records[0].Grade)
	}
}

const curriculumPage = `
<html><body>
<table id="grdDersMufredat">
  <tr>
    <th>#</th><th>Ders Kodu</th><th>Ders Adı</th><th>T</th><th>U</th>
    <th>Kredi</th><th>AKTS</th><th>Açıklama</th>
  </tr>
  <tr>
    <td>1</td><td>BLM207</td><td>Veri Yapıları</td><td>3</td><td>0</td>
    <td>3</td><td>5</td><td>2024 Güz döneminde alındı AA</td>
  </tr>
  <tr>
    <td>2</td><td>MAT101</td><td>Matematik I</td><td>4</td><td>0</td>
    <td>4</td><td>6</td><td>Devam ediyor</td>
  </tr>
  <tr>
    <td>3</td><td>KIM104</td><td>Kimya</td><td>2</td>
  </tr>
</table>
</body></html>`

func TestExtractCurriculumLayout(t *testing.T) {
	e := New(zap.NewNop())
	records, err := e.Extract(curriculumPage)
	if err != nil {
		t.Fatal(err)
	}
	// The 4-cell row is below the curriculum minimum and must be skipped.
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(records), records)
	}
	if records[0].CourseCode != "BLM207" || records[0].Grade != "AA" {
		t.Errorf("record 0 = %+v, want BLM207/AA", records[0])
	}
	if records[1].CourseCode != "MAT101" || records[1].Grade != "" {
		t.Errorf("record 1 = %+v, want MAT101 with empty grade", records[1])
	}
}

func TestCurriculumGrade(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"2024 Güz döneminde alındı AA", "AA"},
		{"devam ediyor", ""},
		{"sonuç açıklandı ff", "FF"}, // vocabulary fallback on the last token
		{"SINAV TAMAMLANDI", ""},    // word suffix is not a grade token
		{"BAŞARILI", ""},
		{"AA", "AA"}, // a bare token still matches at the start
		{"", ""},
	}
	for _, tt := range tests {
		if got := curriculumGrade(tt.in); got != tt.want {
			t.Errorf("curriculumGrade(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractNoTables(t *testing.T) {
	e := New(zap.NewNop())
	records, err := e.Extract(`<html><body><p>Oturum süresi doldu</p></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records from empty page, want 0", len(records))
	}
}

const codeShapePage = `
<html><body>
<table>
  <tr><td>x</td><td>y</td><td>z</td><td>w</td><td>v</td></tr>
  <tr><td>1</td><td>BLM207</td><td>Veri Yapıları</td><td>-</td><td>AA</td></tr>
</table>
</body></html>`

func TestExtractCourseCodeFallback(t *testing.T) {
	// No domain keywords, only two rows: the cascade and the largest-table
	// fallback both miss, and the course-code shape match catches it.
	e := New(zap.NewNop())
	records, err := e.Extract(codeShapePage)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].CourseCode != "BLM207" || records[0].Grade != "AA" {
		t.Fatalf("got %+v, want one BLM207/AA record", records)
	}
}

func TestScanGradeRightToLeft(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		want  string
	}{
		{"letter grade", []string{"1", "BLM207", "Ad", "x", "AA"}, "AA"},
		{"numeric in range", []string{"1", "BLM207", "Ad", "x", "89"}, "89"},
		{"numeric out of range skipped", []string{"1", "BLM207", "Ad", "72", "2024"}, "72"},
		{"identity columns untouched", []string{"85", "BLM207", "Ad"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scanGradeRightToLeft(tt.texts); got != tt.want {
				t.Errorf("scanGradeRightToLeft(%v) = %q, want %q", tt.texts, got, tt.want)
			}
		})
	}
}

func TestGuessCourseCode(t *testing.T) {
	code, idx := guessCourseCode([]string{"1", "Veri Yapıları dersi uzun ad", "BLM207", "85"})
	if code != "BLM207" || idx != 2 {
		t.Errorf("guess = %q at %d, want BLM207 at 2", code, idx)
	}
	code, _ = guessCourseCode([]string{"1", "2", "3", "4", "BLM207"})
	if code != "" {
		t.Errorf("code found outside the first four columns: %q", code)
	}
}
