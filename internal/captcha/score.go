package captcha

import (
	"regexp"
	"strconv"
)

var digitRunRe = regexp.MustCompile(`\d+`)

// ScoreRule is one weighted signal of how captcha-like an OCR reading is.
// The rubric is data, not control flow, so weights can be retuned without
// touching the selection loop.
type ScoreRule struct {
	Name   string
	Weight int
	Match  func(text string) bool
}

// DefaultRubric scores readings for a two-operand arithmetic expression.
// Addition dominates on this portal, so '+' carries the heaviest weight.
func DefaultRubric() []ScoreRule {
	return []ScoreRule{
		{
			Name:   "has_plus",
			Weight: 10,
			Match:  func(s string) bool { return contains(s, '+') },
		},
		{
			Name:   "has_minus",
			Weight: 6,
			Match:  func(s string) bool { return contains(s, '-') },
		},
		{
			Name:   "has_equals_question",
			Weight: 4,
			Match:  func(s string) bool { return contains(s, '=') || contains(s, '?') },
		},
		{
			Name:   "two_small_operands",
			Weight: 5,
			Match: func(s string) bool {
				nums := digitRunRe.FindAllString(s, -1)
				if len(nums) < 2 {
					return false
				}
				for _, n := range nums[:2] {
					v, err := strconv.Atoi(n)
					if err != nil || v < 1 || v >= 100 {
						return false
					}
				}
				return true
			},
		},
		{
			Name:   "two_digit_first_operand",
			Weight: 2,
			Match: func(s string) bool {
				nums := digitRunRe.FindAllString(s, -1)
				return len(nums) > 0 && len(nums[0]) == 2
			},
		},
		{
			Name:   "plausible_digit_count",
			Weight: 3,
			Match: func(s string) bool {
				n := 0
				for _, r := range s {
					if r >= '0' && r <= '9' {
						n++
					}
				}
				return n >= 2 && n <= 4
			},
		},
		{
			Name:   "fewer_than_two_groups",
			Weight: -4,
			Match: func(s string) bool {
				return len(digitRunRe.FindAllString(s, -1)) < 2
			},
		},
		{
			Name:   "implausible_length",
			Weight: -3,
			Match:  func(s string) bool { return len(s) < 3 || len(s) > 9 },
		},
	}
}

// Score sums the weights of every rule the reading matches.
func Score(rubric []ScoreRule, text string) int {
	total := 0
	for _, rule := range rubric {
		if rule.Match(text) {
			total += rule.Weight
		}
	}
	return total
}

// BestReading picks the highest-scoring reading; ties keep the earliest.
func BestReading(rubric []ScoreRule, readings []string) (string, int) {
	best, bestScore := "", 0
	for i, r := range readings {
		s := Score(rubric, r)
		if i == 0 || s > bestScore {
			best, bestScore = r, s
		}
	}
	return best, bestScore
}

func contains(s string, c byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return true
		}
	}
	return false
}
