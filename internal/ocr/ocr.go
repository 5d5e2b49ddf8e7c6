// Package ocr extracts text from encoded images.
package ocr

import (
	"context"
	"fmt"
)

// Engine names accepted by New.
const (
	EngineTesseract = "tesseract"
	EngineGosseract = "gosseract"
)

// Engine recognizes the text in one encoded image (TIFF).
type Engine interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, image []byte) (string, error)

// Recognize calls f.
func (f EngineFunc) Recognize(ctx context.Context, image []byte) (string, error) {
	return f(ctx, image)
}

// Config selects and tunes an engine.
type Config struct {
	Engine   string
	Binary   string
	Language string
	DPI      int
}

// New builds the configured engine.
func New(cfg Config) (Engine, error) {
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	switch cfg.Engine {
	case "", EngineTesseract:
		return NewTesseract(cfg.Binary, cfg.Language, cfg.DPI), nil
	case EngineGosseract:
		return newGosseract(cfg.Language)
	default:
		return nil, fmt.Errorf("unknown OCR engine %q", cfg.Engine)
	}
}
