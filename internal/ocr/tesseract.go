package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Tesseract runs the tesseract command line tool, streaming the image over
// stdin and reading text from stdout.
type Tesseract struct {
	binary   string
	language string
	dpi      int
}

// NewTesseract creates a CLI engine. An empty binary means "tesseract" on PATH.
func NewTesseract(binary, language string, dpi int) *Tesseract {
	if binary == "" {
		binary = "tesseract"
	}
	return &Tesseract{binary: binary, language: language, dpi: dpi}
}

func (t *Tesseract) args() []string {
	args := []string{"stdin", "stdout", "-l", t.language}
	if t.dpi > 0 {
		args = append(args, "--dpi", strconv.Itoa(t.dpi))
	}
	return args
}

// Recognize implements Engine.
func (t *Tesseract) Recognize(ctx context.Context, image []byte) (string, error) {
	cmd := exec.CommandContext(ctx, t.binary, t.args()...)
	cmd.Stdin = bytes.NewReader(image)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%s: %w: %s", t.binary, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
