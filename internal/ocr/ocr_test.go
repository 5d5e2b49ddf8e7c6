package ocr

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
)

func fakeTesseract(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "tesseract")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNew(t *testing.T) {
	tests := []struct {
		engine  string
		wantErr bool
	}{
		{"", false},
		{EngineTesseract, false},
		{"paddle", true},
	}
	for _, tt := range tests {
		_, err := New(Config{Engine: tt.engine})
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%q) error = %v, wantErr %v", tt.engine, err, tt.wantErr)
		}
	}
}

func TestTesseract_Args(t *testing.T) {
	got := NewTesseract("", "deu", 150).args()
	want := []string{"stdin", "stdout", "-l", "deu", "--dpi", "150"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("args() = %v, want %v", got, want)
	}
	if got := NewTesseract("", "eng", 0).args(); len(got) != 4 {
		t.Errorf("args() without dpi = %v", got)
	}
}

func TestTesseract_Recognize(t *testing.T) {
	bin := fakeTesseract(t, "input=$(cat)\necho \"Urgent notice: $input\"\n")
	engine := NewTesseract(bin, "eng", 100)

	text, err := engine.Recognize(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if strings.TrimSpace(text) != "Urgent notice: payload" {
		t.Errorf("text = %q", text)
	}
}

func TestTesseract_RecognizeFailure(t *testing.T) {
	bin := fakeTesseract(t, "cat >/dev/null\necho 'Error in pixReadStream' >&2\nexit 1\n")
	engine := NewTesseract(bin, "eng", 0)

	_, err := engine.Recognize(context.Background(), []byte("payload"))
	if err == nil {
		t.Fatal("expected error from failing engine")
	}
	if !strings.Contains(err.Error(), "pixReadStream") {
		t.Errorf("error = %v, want stderr included", err)
	}
}

func TestTesseract_RecognizeCancelled(t *testing.T) {
	bin := fakeTesseract(t, "sleep 5\n")
	engine := NewTesseract(bin, "eng", 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.Recognize(ctx, nil); err != context.Canceled {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
