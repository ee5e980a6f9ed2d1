package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	lottery "github.com/kydenul/lottery-checker"
	"github.com/kydenul/lottery-checker/extract"
)

// ErrNoProvider is returned when image recognition is switched off
var ErrNoProvider = errors.New("ocr: no provider configured")

// Provider turns a preprocessed ticket image into raw text lines
type Provider interface {
	Name() string
	Recognize(ctx context.Context, img image.Image) ([]string, error)
}

// NewProvider builds the provider named in cfg
func NewProvider(cfg *lottery.OCRConfig) (Provider, error) {
	if cfg == nil {
		cfg = lottery.DefaultOCRConfig()
	}
	switch cfg.Provider {
	case lottery.OCRProviderTesseract:
		return NewTesseract(cfg.TesseractPath), nil
	case lottery.OCRProviderGemini:
		return NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel), nil
	case lottery.OCRProviderNone:
		return nil, ErrNoProvider
	default:
		return nil, fmt.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}

// ScanResult carries the recognized lines next to what was extracted from them
type ScanResult struct {
	Format string   `json:"format"`
	Lines  []string `json:"lines"`
	*extract.Result
}

// Scanner runs decode, preprocess, recognize and extract for one upload
type Scanner struct {
	provider  Provider
	threshold uint8
	minWidth  int
	timeout   time.Duration
	logger    lottery.Logger
}

// NewScanner creates a scanner; provider may be nil, in which case Scan fails with ErrNoProvider
func NewScanner(provider Provider, cfg *lottery.OCRConfig, logger lottery.Logger) *Scanner {
	if cfg == nil {
		cfg = lottery.DefaultOCRConfig()
	}
	if logger == nil {
		logger = lottery.NewSilentLogger()
	}
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	return &Scanner{
		provider:  provider,
		threshold: threshold,
		minWidth:  1000,
		timeout:   cfg.Timeout,
		logger:    logger,
	}
}

// Enabled reports whether a provider is configured
func (s *Scanner) Enabled() bool { return s.provider != nil }

// Scan reads one ticket image.
// An undecodable image is MalformedInput; a provider failure is returned as is.
func (s *Scanner) Scan(ctx context.Context, r io.Reader) (*ScanResult, error) {
	if s.provider == nil {
		return nil, ErrNoProvider
	}

	img, format, err := Decode(r)
	if err != nil {
		return nil, lottery.NewMalformedInput("the photo could not be read", err)
	}

	gray := Preprocess(Upscale(img, s.minWidth), s.threshold)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	lines, err := s.provider.Recognize(ctx, gray)
	if err != nil {
		s.logger.Error("%s recognition failed: %v", s.provider.Name(), err)
		return nil, err
	}

	res := extract.FromLines(lines)
	s.logger.Info("Scanned %s ticket with %s in %v: %d lines, %d rows, date %q",
		format, s.provider.Name(), time.Since(start), len(lines), len(res.Rows), res.DrawDate)

	return &ScanResult{Format: format, Lines: lines, Result: res}, nil
}
