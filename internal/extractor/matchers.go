package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Matcher is one structural strategy for locating the results table among
// the page's unlabeled tables. Matchers run in decreasing specificity; the
// cascade stops at the first candidate that also passes the domain checks.
type Matcher interface {
	Name() string
	Find(doc *goquery.Document) *goquery.Selection
}

// selectorMatcher locates tables by a CSS selector.
type selectorMatcher struct {
	name     string
	selector string
}

func (m selectorMatcher) Name() string { return m.name }

func (m selectorMatcher) Find(doc *goquery.Document) *goquery.Selection {
	return doc.Find(m.selector)
}

// headerKeywordMatcher locates tables with a header cell containing one of
// the given tokens.
type headerKeywordMatcher struct {
	name   string
	tokens []string
}

func (m headerKeywordMatcher) Name() string { return m.name }

func (m headerKeywordMatcher) Find(doc *goquery.Document) *goquery.Selection {
	return doc.Find("table").FilterFunction(func(_ int, table *goquery.Selection) bool {
		match := false
		table.Find("th").EachWithBreak(func(_ int, th *goquery.Selection) bool {
			text := th.Text()
			for _, tok := range m.tokens {
				if strings.Contains(text, tok) {
					match = true
					return false
				}
			}
			return true
		})
		return match
	})
}

// cellKeywordMatcher locates tables with a body cell containing the token.
type cellKeywordMatcher struct {
	name  string
	token string
}

func (m cellKeywordMatcher) Name() string { return m.name }

func (m cellKeywordMatcher) Find(doc *goquery.Document) *goquery.Selection {
	return doc.Find("table").FilterFunction(func(_ int, table *goquery.Selection) bool {
		match := false
		table.Find("td").EachWithBreak(func(_ int, td *goquery.Selection) bool {
			if strings.Contains(td.Text(), m.token) {
				match = true
				return false
			}
			return true
		})
		return match
	})
}

// defaultMatchers is the location cascade, most specific first. The portal's
// grids carry ASP.NET-style ids, so id hints run before the generic shapes.
func defaultMatchers() []Matcher {
	return []Matcher{
		selectorMatcher{name: "id-grd", selector: `table[id*="grd"]`},
		selectorMatcher{name: "id-grid", selector: `table[id*="Grid"]`},
		headerKeywordMatcher{name: "header-keywords", tokens: []string{"Ders", "Not"}},
		cellKeywordMatcher{name: "cell-sonuc", token: "Sonuç"},
		selectorMatcher{name: "class-grid", selector: `table[class*="grid"]`},
		selectorMatcher{name: "class-datagrid", selector: `table[class*="DataGrid"]`},
		selectorMatcher{name: "content-div", selector: `div[class*="content"] table`},
		selectorMatcher{name: "bordered", selector: "table[border]"},
		selectorMatcher{name: "any-table", selector: "table"},
	}
}
