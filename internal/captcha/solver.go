// Package captcha turns the portal's arithmetic captcha image into a numeric
// login answer. There is no guaranteed-correct method: a vision model is
// asked first, and on failure a matrix of preprocessing variants is pushed
// through OCR and the most plausible reading is solved arithmetically.
package captcha

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"regexp"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"

	"github.com/user/obs-watcher/internal/monitoring"
)

const whitelist = "0123456789+-=?"

// The OCR variant matrix. One threshold is never reliable across renders of
// the dot-noise background, so every combination is tried.
var (
	thresholds   = []uint8{100, 128, 150, 180}
	darkLimit    = uint8(120)
	pageSegModes = []gosseract.PageSegMode{
		gosseract.PSM_SINGLE_LINE,
		gosseract.PSM_SINGLE_WORD,
	}
)

var (
	leadingJunkRe  = regexp.MustCompile(`^[^0-9]*`)
	trailingJunkRe = regexp.MustCompile(`[^0-9+\-=?]*$`)
)

// OcrReading is one candidate text with the variant and engine configuration
// that produced it.
type OcrReading struct {
	Text       string
	Source     string
	Threshold  uint8
	Aggressive bool
	PSM        gosseract.PageSegMode
}

// Solver orchestrates the two captcha tiers. A nil vision tier (no API key
// configured) degrades straight to OCR.
type Solver struct {
	vision  *VisionTier
	engine  Engine
	rubric  []ScoreRule
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

func NewSolver(vision *VisionTier, engine Engine, metrics *monitoring.Metrics, logger *zap.Logger) *Solver {
	return &Solver{
		vision:  vision,
		engine:  engine,
		rubric:  DefaultRubric(),
		metrics: metrics,
		logger:  logger,
	}
}

// Solve returns the numeric answer for the captcha, or "" when no tier could
// produce one. It never returns an error: the caller's recourse is a fresh
// captcha, not error handling.
func (s *Solver) Solve(ctx context.Context, img image.Image) string {
	if s.vision != nil {
		if answer := s.solveWithVision(ctx, img); answer != "" {
			s.metrics.IncSolve("vision", "success")
			return answer
		}
		s.metrics.IncSolve("vision", "failure")
		s.logger.Info("vision tier empty, falling back to OCR")
	}

	readings := s.ocrReadings(ctx, img)
	if len(readings) == 0 {
		s.metrics.IncSolve("ocr", "failure")
		s.logger.Warn("OCR produced no usable readings")
		return ""
	}

	texts := make([]string, len(readings))
	for i, r := range readings {
		texts[i] = r.Text
	}
	best, score := BestReading(s.rubric, texts)
	s.logger.Info("best OCR reading",
		zap.String("text", best), zap.Int("score", score), zap.Int("candidates", len(readings)))

	answer := SolveExpression(best)
	if answer == "" {
		s.metrics.IncSolve("ocr", "failure")
	} else {
		s.metrics.IncSolve("ocr", "success")
	}
	return answer
}

func (s *Solver) solveWithVision(ctx context.Context, img image.Image) string {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		s.logger.Warn("encode captcha for vision tier", zap.Error(err))
		return ""
	}
	return s.vision.Solve(ctx, buf.Bytes())
}

// ocrReadings runs the full variant matrix: {original, dark mask, inverted}
// base images × thresholds × aggressive on/off × page segmentation modes.
// Readings without a digit are dropped; duplicates collapse to their first
// occurrence so tie-breaks stay in encounter order.
func (s *Solver) ocrReadings(ctx context.Context, img image.Image) []OcrReading {
	bases := []struct {
		name string
		img  image.Image
	}{
		{"original", img},
		{"darkmask", DarkMask(img, darkLimit)},
		{"inverted", Invert(img)},
	}

	var readings []OcrReading
	seen := make(map[string]bool)

	for _, base := range bases {
		for _, threshold := range thresholds {
			for _, aggressive := range []bool{false, true} {
				variant := Preprocess(base.img, threshold, aggressive)
				for _, psm := range pageSegModes {
					text, err := s.engine.Recognize(ctx, variant, EngineConfig{
						Whitelist:   whitelist,
						PageSegMode: psm,
					})
					if err != nil {
						continue
					}
					text = cleanReading(text)
					if text == "" || !hasDigit(text) || seen[text] {
						continue
					}
					seen[text] = true
					readings = append(readings, OcrReading{
						Text:       text,
						Source:     base.name,
						Threshold:  threshold,
						Aggressive: aggressive,
						PSM:        psm,
					})
				}
			}
		}
	}
	return readings
}

func cleanReading(text string) string {
	text = strings.ReplaceAll(text, " ", "")
	text = strings.ReplaceAll(text, "\n", "")
	text = strings.TrimSpace(text)
	text = leadingJunkRe.ReplaceAllString(text, "")
	text = trailingJunkRe.ReplaceAllString(text, "")
	return text
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

// SolveExpression reduces a textual captcha reading like "61+8=?" to its
// numeric answer. With two or more operands the operator is picked by first
// match among +, -, * (or x); a missing operator means addition, the
// dominant operator on this portal. A single merged numeral is repaired by
// trying every binary split where both parts stay below 100 and summing the
// first that fits. Returns "" when nothing can be computed.
func SolveExpression(text string) string {
	text = strings.TrimSpace(text)
	numbers := digitRunRe.FindAllString(text, -1)

	switch {
	case len(numbers) >= 2:
		a, err1 := strconv.Atoi(numbers[0])
		b, err2 := strconv.Atoi(numbers[1])
		if err1 != nil || err2 != nil {
			return ""
		}
		var result int
		switch {
		case strings.Contains(text, "+"):
			result = a + b
		case strings.Contains(text, "-"):
			result = a - b
		case strings.Contains(text, "*") || strings.Contains(strings.ToLower(text), "x"):
			result = a * b
		default:
			result = a + b
		}
		return strconv.Itoa(result)

	case len(numbers) == 1:
		return splitMergedNumeral(numbers[0])
	}
	return ""
}

func splitMergedNumeral(numeral string) string {
	if len(numeral) < 2 {
		return ""
	}
	for i := 1; i < len(numeral); i++ {
		a, err1 := strconv.Atoi(numeral[:i])
		b, err2 := strconv.Atoi(numeral[i:])
		if err1 != nil || err2 != nil {
			continue
		}
		if a < 100 && b < 100 {
			return strconv.Itoa(a + b)
		}
	}
	return ""
}
