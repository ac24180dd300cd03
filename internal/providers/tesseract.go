package providers

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const TesseractName = "tesseract"

// TesseractConfig holds configuration for the local OCR provider.
type TesseractConfig struct {
	Binary     string // defaults to "tesseract" on PATH
	Languages  string // tesseract language spec, e.g. "deu+eng"
	RateLimit  float64
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration // per-page subprocess timeout
}

// TesseractOCR implements OCRProvider by shelling out to the tesseract
// binary. Images go in on stdin, recognized text comes back on stdout.
type TesseractOCR struct {
	binary     string
	languages  string
	rateLimit  float64
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
}

// NewTesseractOCR creates a local OCR provider.
func NewTesseractOCR(cfg TesseractConfig) *TesseractOCR {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Languages == "" {
		cfg.Languages = "eng"
	}
	if cfg.RateLimit <= 0 {
		// Local CPU-bound work; the limiter just keeps load sane.
		cfg.RateLimit = 4.0
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &TesseractOCR{
		binary:     cfg.Binary,
		languages:  cfg.Languages,
		rateLimit:  cfg.RateLimit,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		timeout:    cfg.Timeout,
	}
}

// Name returns the provider identifier.
func (t *TesseractOCR) Name() string {
	return TesseractName
}

// RequestsPerSecond returns the rate limit.
func (t *TesseractOCR) RequestsPerSecond() float64 {
	return t.rateLimit
}

// MaxRetries returns the max retry count.
func (t *TesseractOCR) MaxRetries() int {
	return t.maxRetries
}

// RetryDelayBase returns the base retry delay.
func (t *TesseractOCR) RetryDelayBase() time.Duration {
	return t.retryDelay
}

// HealthCheck verifies the binary is installed.
func (t *TesseractOCR) HealthCheck(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, t.binary, "--version")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("tesseract not available: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// ProcessImage runs tesseract over one rendered page image.
func (t *TesseractOCR) ProcessImage(ctx context.Context, image []byte, pageNum int) (*OCRResult, error) {
	start := time.Now()
	result := &OCRResult{}

	if len(image) == 0 {
		result.ErrorMessage = "empty image"
		result.ExecutionTime = time.Since(start)
		return result, fmt.Errorf("empty image for page %d", pageNum)
	}

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, t.binary, "stdin", "stdout", "-l", t.languages)
	cmd.Stdin = bytes.NewReader(image)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		result.ErrorMessage = strings.TrimSpace(stderr.String())
		result.ExecutionTime = time.Since(start)
		return result, fmt.Errorf("tesseract failed on page %d: %w (%s)", pageNum, err, result.ErrorMessage)
	}

	result.Success = true
	result.Text = strings.TrimSpace(stdout.String())
	result.ExecutionTime = time.Since(start)
	return result, nil
}

var _ OCRProvider = (*TesseractOCR)(nil)
