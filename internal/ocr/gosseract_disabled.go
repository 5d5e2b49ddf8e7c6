//go:build !gosseract

package ocr

import "errors"

func newGosseract(string) (Engine, error) {
	return nil, errors.New("gosseract engine not compiled in (build with -tags gosseract)")
}
