package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"strings"
)

// Tesseract runs the tesseract binary on stdin, single uniform text block mode
type Tesseract struct {
	Path string
	Args []string
}

// NewTesseract creates a provider using the binary at path ("tesseract" when empty)
func NewTesseract(path string) *Tesseract {
	if path == "" {
		path = "tesseract"
	}
	return &Tesseract{
		Path: path,
		Args: []string{"stdin", "stdout", "--oem", "3", "--psm", "6"},
	}
}

func (t *Tesseract) Name() string { return "tesseract" }

// Recognize returns the lines tesseract printed for img
func (t *Tesseract) Recognize(ctx context.Context, img image.Image) ([]string, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return nil, err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.Path, t.Args...)
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("tesseract failed: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("tesseract failed: %w", err)
	}

	return splitLines(stdout.String()), nil
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}
