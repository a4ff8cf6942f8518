// Package extractor locates the grade-results table in a rendered portal
// page and parses it into structured records. The page labels nothing: the
// table is found by an ordered cascade of structural heuristics, and two
// distinct layouts place the grade in different positions.
package extractor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/user/obs-watcher/internal/domain"
)

// Row admission minimums per layout. The curriculum grid always renders its
// full column set; the generic grid can be as narrow as code/name/grade.
const (
	minCurriculumCells = 7
	minGenericCells    = 3
)

// letterGrades is the portal's grade vocabulary.
var letterGrades = map[string]bool{
	"AA": true, "BA": true, "BB": true, "CB": true, "CC": true,
	"DC": true, "DD": true, "FF": true, "FD": true,
	"NA": true, "VZ": true, "MU": true,
}

var (
	// domainKeywords qualifies a located table as grade-related.
	domainKeywords = []string{"ders", "not", "vize", "sınav", "final"}

	courseCodeRe    = regexp.MustCompile(`^[A-Za-z]{2,4}[0-9]{3,4}$`)
	trailingLetters = regexp.MustCompile(`(?:^|\s)([A-Z]{2})\s*$`)
)

// Extractor parses rendered HTML into grade records.
type Extractor struct {
	matchers []Matcher
	logger   *zap.Logger
}

func New(logger *zap.Logger) *Extractor {
	return &Extractor{matchers: defaultMatchers(), logger: logger}
}

// Extract returns the grade records of the results table in on-page order.
// An empty slice means no candidate table was found; that is a data
// condition, not an error.
func (e *Extractor) Extract(html string) ([]domain.GradeRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	table := e.locateTable(doc)
	if table == nil {
		e.logger.Warn("no grade table found on page")
		return nil, nil
	}

	if isCurriculumTable(table) {
		return e.parseCurriculum(table), nil
	}
	return e.parseGeneric(table), nil
}

// locateTable runs the matcher cascade and falls back to size and
// course-code shape heuristics when no matcher candidate qualifies.
func (e *Extractor) locateTable(doc *goquery.Document) *goquery.Selection {
	for _, m := range e.matchers {
		var found *goquery.Selection
		m.Find(doc).EachWithBreak(func(_ int, table *goquery.Selection) bool {
			if tableQualifies(table) {
				found = table
				return false
			}
			return true
		})
		if found != nil {
			e.logger.Info("located grade table", zap.String("matcher", m.Name()))
			return found
		}
	}

	// Fallback: the largest table with header plus at least two data rows.
	var largest *goquery.Selection
	largestRows := 0
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tr").Length()
		if rows >= 3 && rows > largestRows {
			largest, largestRows = table, rows
		}
	})
	if largest != nil {
		e.logger.Info("using largest-table fallback", zap.Int("rows", largestRows))
		return largest
	}

	// Last resort: any table holding something shaped like a course code.
	var byCode *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		hit := false
		table.Find("td").EachWithBreak(func(_ int, td *goquery.Selection) bool {
			if courseCodeRe.MatchString(strings.TrimSpace(td.Text())) {
				hit = true
				return false
			}
			return true
		})
		if hit {
			byCode = table
			return false
		}
		return true
	})
	if byCode != nil {
		e.logger.Info("using course-code-shape fallback")
	}
	return byCode
}

func tableQualifies(table *goquery.Selection) bool {
	if table.Find("tr").Length() < 2 {
		return false
	}
	text := strings.ToLower(table.Text())
	for _, kw := range domainKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// isCurriculumTable detects the curriculum-style grid by its id marker.
func isCurriculumTable(table *goquery.Selection) bool {
	id, _ := table.Attr("id")
	return strings.Contains(strings.ToLower(id), "mufredat")
}

// parseCurriculum handles the curriculum grid: code and name are fixed
// leading columns and the final grade hides at the end of the trailing
// free-text column.
func (e *Extractor) parseCurriculum(table *goquery.Selection) []domain.GradeRecord {
	var records []domain.GradeRecord
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return // header
		}
		cells := row.Find("td")
		if cells.Length() < minCurriculumCells {
			return
		}
		code := cellText(cells, 1)
		if code == "" {
			return
		}
		records = append(records, domain.GradeRecord{
			CourseCode: code,
			CourseName: cellText(cells, 2),
			Grade:      curriculumGrade(cellText(cells, cells.Length()-1)),
		})
	})
	e.logger.Info("parsed curriculum table", zap.Int("records", len(records)))
	return records
}

// curriculumGrade pulls the final grade out of the row's free-text tail: a
// two-uppercase-letter token anchored at the end, or failing that the last
// whitespace-delimited token when it belongs to the grade vocabulary.
func curriculumGrade(tail string) string {
	tail = strings.TrimSpace(tail)
	if m := trailingLetters.FindStringSubmatch(tail); m != nil {
		return m[1]
	}
	fields := strings.Fields(tail)
	if len(fields) > 0 {
		last := strings.ToUpper(fields[len(fields)-1])
		if letterGrades[last] {
			return last
		}
	}
	return ""
}

// columnMap is the header-derived index of each semantic column; -1 means
// the header did not reveal it.
type columnMap struct {
	code, name, grade, exam int
}

func (e *Extractor) parseGeneric(table *goquery.Selection) []domain.GradeRecord {
	rows := table.Find("tr")
	cols := mapHeaderColumns(rows.First())
	e.logger.Debug("generic header map",
		zap.Int("code", cols.code), zap.Int("name", cols.name), zap.Int("grade", cols.grade))

	var records []domain.GradeRecord
	rows.Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		texts := cellTexts(row)
		if len(texts) < minGenericCells {
			return
		}
		rec, ok := parseGenericRow(texts, cols)
		if ok {
			records = append(records, rec)
		}
	})
	e.logger.Info("parsed generic table", zap.Int("records", len(records)))
	return records
}

// mapHeaderColumns scans the header row once and maps column index to
// semantic role using the portal's own (Turkish) header vocabulary.
func mapHeaderColumns(header *goquery.Selection) columnMap {
	cols := columnMap{code: -1, name: -1, grade: -1, exam: -1}
	cells := header.Find("th")
	if cells.Length() == 0 {
		cells = header.Find("td")
	}
	cells.Each(func(i int, cell *goquery.Selection) {
		text := strings.ToLower(strings.TrimSpace(cell.Text()))
		switch {
		case strings.Contains(text, "ders kodu"):
			cols.code = i
		case strings.Contains(text, "ders adı"):
			cols.name = i
		case text == "not" || text == "harf notu":
			cols.grade = i
		case strings.Contains(text, "sınav") || strings.Contains(text, "vize") || strings.Contains(text, "final"):
			cols.exam = i
		}
	})
	return cols
}

func parseGenericRow(texts []string, cols columnMap) (domain.GradeRecord, bool) {
	codeIdx := cols.code
	code := ""
	if codeIdx >= 0 && codeIdx < len(texts) {
		code = texts[codeIdx]
	}
	if code == "" {
		code, codeIdx = guessCourseCode(texts)
	}
	if code == "" {
		return domain.GradeRecord{}, false
	}

	name := ""
	if cols.name >= 0 && cols.name < len(texts) {
		name = texts[cols.name]
	} else if codeIdx >= 0 && codeIdx+1 < len(texts) {
		name = texts[codeIdx+1]
	}

	grade := ""
	if cols.grade >= 0 && cols.grade < len(texts) {
		grade = texts[cols.grade]
	}
	if grade == "" {
		grade = scanGradeRightToLeft(texts)
	}

	return domain.GradeRecord{
		CourseCode: code,
		CourseName: name,
		Grade:      grade,
		ExamGrades: parseExamScores(texts),
	}, true
}

// guessCourseCode looks for a short alphanumeric token among the first four
// columns when the header did not identify the code column.
func guessCourseCode(texts []string) (string, int) {
	limit := len(texts)
	if limit > 4 {
		limit = 4
	}
	for i := 0; i < limit; i++ {
		t := texts[i]
		if len(t) < 5 || len(t) > 10 {
			continue
		}
		if hasLetter(t) && hasDigit(t) {
			return t, i
		}
	}
	return "", -1
}

// scanGradeRightToLeft accepts the first cell from the right that is either
// a vocabulary letter grade or a numeric value in [0,100]. The grade column
// sits near the table's right edge; the leading columns are identity and
// must not be mistaken for scores.
func scanGradeRightToLeft(texts []string) string {
	for i := len(texts) - 1; i > 2; i-- {
		t := strings.TrimSpace(texts[i])
		if t == "" {
			continue
		}
		if letterGrades[strings.ToUpper(t)] {
			return strings.ToUpper(t)
		}
		if v, err := strconv.ParseFloat(strings.ReplaceAll(t, ",", "."), 64); err == nil {
			if v >= 0 && v <= 100 {
				return t
			}
		}
	}
	return ""
}

// parseExamScores opportunistically collects "label:value" cells, the shape
// the portal uses for per-exam breakdowns like "Vize: 85".
func parseExamScores(texts []string) map[string]float64 {
	var scores map[string]float64
	for _, t := range texts {
		if !strings.Contains(t, ":") {
			continue
		}
		parts := strings.SplitN(t, ":", 2)
		if len(parts) != 2 {
			continue
		}
		label := strings.TrimSpace(parts[0])
		raw := strings.ReplaceAll(strings.TrimSpace(parts[1]), ",", ".")
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || label == "" {
			continue
		}
		if scores == nil {
			scores = make(map[string]float64)
		}
		scores[label] = v
	}
	return scores
}

func cellTexts(row *goquery.Selection) []string {
	var texts []string
	row.Find("td").Each(func(_ int, td *goquery.Selection) {
		texts = append(texts, strings.TrimSpace(td.Text()))
	})
	return texts
}

func cellText(cells *goquery.Selection, i int) string {
	return strings.TrimSpace(cells.Eq(i).Text())
}

func hasLetter(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
