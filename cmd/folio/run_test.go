package main

import (
	"testing"

	"github.com/jackzampolin/folio/internal/config"
)

func TestPassSelectionRejectsEmptySelection(t *testing.T) {
	restore := func(text, images, ocr, tags bool) {
		runText, runImages, runOCR, runTags = text, images, ocr, tags
	}
	defer restore(runText, runImages, runOCR, runTags)

	cfg := config.DefaultConfig()

	restore(false, false, false, false)
	if _, err := passSelection(cfg); err == nil {
		t.Fatal("expected an error when every pass is disabled")
	}

	// OCR flag on but OCR disabled in config still schedules nothing.
	restore(false, false, true, false)
	cfg.OCR.Enabled = false
	if _, err := passSelection(cfg); err == nil {
		t.Fatal("expected an error when the only enabled pass is unavailable")
	}

	cfg.OCR.Enabled = true
	opts, err := passSelection(cfg)
	if err != nil {
		t.Fatalf("passSelection: %v", err)
	}
	if !opts.OCR || opts.Text || opts.Images || opts.Tags {
		t.Errorf("unexpected selection: %+v", opts)
	}
}
