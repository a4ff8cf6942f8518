package captcha

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// visionPrompt instructs the model to answer with the computed result only,
// so the response can be reduced to digits without parsing prose.
const visionPrompt = `This image shows a simple arithmetic captcha.
Read the two operands and the operator, solve the expression and return
ONLY the digits of the result. Example: for "25+17=?" answer "42".
Do not write anything else.`

// Sentinel failures a VisionModel may report. Rate limits are retried with
// backoff on the same model; an unavailable model is skipped immediately.
var (
	ErrRateLimited      = errors.New("vision model rate limited")
	ErrModelUnavailable = errors.New("vision model unavailable")
)

// VisionModel asks one concrete model to read a captcha image and returns
// its raw textual response.
type VisionModel interface {
	Read(ctx context.Context, png []byte, model string) (string, error)
}

// GeminiModel implements VisionModel against the Gemini API.
type GeminiModel struct {
	apiKey string
}

func NewGeminiModel(apiKey string) *GeminiModel {
	return &GeminiModel{apiKey: strings.TrimSpace(apiKey)}
}

func (g *GeminiModel) Read(ctx context.Context, pngData []byte, model string) (string, error) {
	if g.apiKey == "" {
		return "", errors.New("gemini api key is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return "", fmt.Errorf("gemini client: %w", err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(model)
	resp, err := m.GenerateContent(ctx,
		genai.Text(visionPrompt),
		genai.ImageData("png", pngData),
	)
	if err != nil {
		return "", classifyGeminiError(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

func classifyGeminiError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case 404:
			return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
	}
	// The SDK surfaces some transport failures as plain errors with the
	// status embedded in the message.
	msg := err.Error()
	if strings.Contains(msg, "429") {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	if strings.Contains(msg, "404") {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return err
}

// VisionTier tries an ordered list of model identifiers until one returns a
// usable answer. It never fails hard: an empty result tells the caller to
// fall through to the OCR tier.
type VisionTier struct {
	model      VisionModel
	modelList  []string
	maxRetries int
	backoff    time.Duration
	sleep      func(context.Context, time.Duration)
	logger     *zap.Logger
}

// DefaultModelList is the fallback order for the vision tier, newest first.
func DefaultModelList() []string {
	return []string{
		"gemini-2.5-flash",
		"gemini-2.0-flash",
		"gemini-1.5-pro",
		"gemini-1.5-flash",
	}
}

func NewVisionTier(model VisionModel, modelList []string, logger *zap.Logger) *VisionTier {
	if len(modelList) == 0 {
		modelList = DefaultModelList()
	}
	return &VisionTier{
		model:      model,
		modelList:  modelList,
		maxRetries: 2,
		backoff:    5 * time.Second,
		sleep:      sleepCtx,
		logger:     logger,
	}
}

// Solve walks the model list until one returns a non-empty response and
// returns its digits. A digitless response still ends the walk; the OCR
// tier takes over.
func (t *VisionTier) Solve(ctx context.Context, pngData []byte) string {
	for _, modelID := range t.modelList {
		answer, err := t.tryModel(ctx, pngData, modelID)
		if err != nil {
			t.logger.Warn("vision model failed",
				zap.String("model", modelID), zap.Error(err))
			continue
		}
		if answer == "" {
			continue
		}
		digits := keepDigits(answer)
		if digits == "" {
			t.logger.Warn("vision answer had no digits",
				zap.String("model", modelID), zap.String("answer", answer))
			return ""
		}
		t.logger.Info("vision tier solved captcha",
			zap.String("model", modelID), zap.String("answer", digits))
		return digits
	}
	t.logger.Warn("all vision models failed")
	return ""
}

// tryModel retries a single model on rate limits with linearly increasing
// backoff before giving up on it.
func (t *VisionTier) tryModel(ctx context.Context, pngData []byte, modelID string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= t.maxRetries; attempt++ {
		answer, err := t.model.Read(ctx, pngData, modelID)
		if err == nil {
			return answer, nil
		}
		lastErr = err
		if !errors.Is(err, ErrRateLimited) || attempt == t.maxRetries {
			return "", err
		}
		t.sleep(ctx, t.backoff*time.Duration(attempt))
	}
	return "", lastErr
}

func keepDigits(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
