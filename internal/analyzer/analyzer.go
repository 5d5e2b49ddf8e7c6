// Package analyzer runs OCR over a captured frame and counts blacklisted
// keywords.
package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"strings"
	"time"

	"github.com/ac-freeman/open-accountability/internal/ocr"
	"github.com/ac-freeman/open-accountability/internal/pause"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/tiff"
)

// Defaults for Config.
const (
	DefaultSliceHeight    = 512
	DefaultThrottleFactor = 10
)

// Config tunes slicing and self-throttling.
type Config struct {
	// SliceHeight is the number of pixel rows handed to OCR at a time.
	SliceHeight int
	// ThrottleFactor scales the pause after each slice: a slice that took
	// N whole seconds is followed by N*ThrottleFactor seconds of idling.
	ThrottleFactor int
	// Tick is the cancellation granularity of the pause.
	Tick time.Duration
}

func (c Config) withDefaults() Config {
	if c.SliceHeight <= 0 {
		c.SliceHeight = DefaultSliceHeight
	}
	if c.ThrottleFactor < 0 {
		c.ThrottleFactor = 0
	}
	if c.Tick <= 0 {
		c.Tick = pause.DefaultTick
	}
	return c
}

// ImageError is a slice the OCR engine could not process.
type ImageError struct {
	Slice int
	Err   error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("slice %d: %v", e.Slice, e.Err)
}

func (e *ImageError) Unwrap() error { return e.Err }

// Analyzer counts blacklisted keywords in images.
type Analyzer struct {
	engine ocr.Engine
	cfg    Config
	logger logrus.FieldLogger
	now    func() time.Time
}

// New creates an Analyzer backed by engine.
func New(engine ocr.Engine, cfg Config, logger logrus.FieldLogger) *Analyzer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Analyzer{
		engine: engine,
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    time.Now,
	}
}

// Analyze OCRs img slice by slice, top to bottom, and increments counts[token]
// for every recognized token that is already a key of counts. On cancellation
// it returns ctx.Err() and counts keep whatever the finished slices added.
func (a *Analyzer) Analyze(ctx context.Context, img image.Image, counts map[string]int) error {
	bounds := img.Bounds()
	height := a.cfg.SliceHeight

	for i, top := 0, bounds.Min.Y; top < bounds.Max.Y; i, top = i+1, top+height {
		start := a.now()

		bottom := top + height
		if bottom > bounds.Max.Y {
			bottom = bounds.Max.Y
		}
		rect := image.Rect(bounds.Min.X, top, bounds.Max.X, bottom)

		encoded, err := encodeSlice(img, rect)
		if err != nil {
			return &ImageError{Slice: i, Err: err}
		}

		text, err := a.engine.Recognize(ctx, encoded)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return &ImageError{Slice: i, Err: err}
		}
		matched := Count(text, counts)

		elapsed := a.now().Sub(start)
		a.logger.WithFields(logrus.Fields{
			"slice":   i,
			"rows":    fmt.Sprintf("%d-%d", top, bottom),
			"matches": matched,
			"elapsed": elapsed,
		}).Debug("Slice analyzed")

		if err := ctx.Err(); err != nil {
			return err
		}

		idle := int(elapsed/time.Second) * a.cfg.ThrottleFactor
		if err := pause.Ticks(ctx, idle, a.cfg.Tick); err != nil {
			return err
		}
	}
	return nil
}

func encodeSlice(img image.Image, rect image.Rectangle) ([]byte, error) {
	var slice image.Image
	if sub, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		slice = sub.SubImage(rect)
	} else {
		dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
		draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
		slice = dst
	}

	var buf bytes.Buffer
	if err := tiff.Encode(&buf, slice, nil); err != nil {
		return nil, fmt.Errorf("encoding tiff: %w", err)
	}
	return buf.Bytes(), nil
}

var punctuation = strings.NewReplacer(
	"(", " ",
	")", " ",
	",", " ",
	`"`, " ",
	".", " ",
	";", " ",
	":", " ",
	"'", " ",
)

// Tokenize lowercases text, turns ( ) , " . ; : ' into spaces and splits on
// whitespace.
func Tokenize(text string) []string {
	return strings.Fields(punctuation.Replace(strings.ToLower(text)))
}

// Count increments counts for every token of text that is a key of counts and
// returns how many tokens matched.
func Count(text string, counts map[string]int) int {
	matched := 0
	for _, tok := range Tokenize(text) {
		if _, ok := counts[tok]; ok {
			counts[tok]++
			matched++
		}
	}
	return matched
}
