package captcha

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/otiai10/gosseract/v2"
)

// EngineConfig constrains one Tesseract invocation. The whitelist keeps the
// engine from hallucinating letters out of the noise dots; the segmentation
// mode decides whether the expression is treated as one line or one word.
type EngineConfig struct {
	Whitelist   string
	PageSegMode gosseract.PageSegMode
}

// Engine recognizes text on a preprocessed captcha variant. Implemented by
// TesseractEngine; faked in tests.
type Engine interface {
	Recognize(ctx context.Context, img image.Image, cfg EngineConfig) (string, error)
}

// TesseractEngine runs OCR through the gosseract client. A fresh client is
// created per call; the captcha images are tiny and setup cost is irrelevant
// next to the browser round-trips.
type TesseractEngine struct {
	clientFactory func() *gosseract.Client
}

func NewTesseractEngine() *TesseractEngine {
	return &TesseractEngine{clientFactory: gosseract.NewClient}
}

func (e *TesseractEngine) Recognize(ctx context.Context, img image.Image, cfg EngineConfig) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode variant: %w", err)
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	if cfg.Whitelist != "" {
		if err := c.SetWhitelist(cfg.Whitelist); err != nil {
			return "", fmt.Errorf("set whitelist: %w", err)
		}
	}
	if err := c.SetPageSegMode(cfg.PageSegMode); err != nil {
		return "", fmt.Errorf("set page seg mode: %w", err)
	}

	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return text, nil
}
