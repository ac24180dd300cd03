package pdf

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// RenderPage rasterizes a single page to PNG using pdftoppm (poppler-utils).
// This renders the page correctly, unlike extracting embedded image objects
// whose internal numbering may not match page order.
func RenderPage(ctx context.Context, pdfPath string, pageNum, dpi int) ([]byte, error) {
	if dpi <= 0 {
		dpi = renderDPI
	}

	tmpDir, err := os.MkdirTemp("", "folio-page-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outputPrefix := filepath.Join(tmpDir, "page")

	// -png: output PNG format
	// -f N / -l N: first and last page to render
	// -r N: resolution in DPI
	// -singlefile: don't add page number suffix
	pageStr := fmt.Sprintf("%d", pageNum)
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", fmt.Sprintf("%d", dpi),
		"-singlefile",
		pdfPath,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	srcPath := outputPrefix + ".png"
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}
	return data, nil
}
