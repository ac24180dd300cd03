package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// extractText pulls the text layer of every page using pdftotext
// (poppler-utils). Pages arrive separated by form feeds on stdout, so one
// subprocess covers the whole file.
func extractText(ctx context.Context, pdfPath string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "pdftotext", "-layout", pdfPath, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftotext failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}

	raw := strings.Split(stdout.String(), "\f")
	pages := make([]string, 0, len(raw))
	for _, p := range raw {
		pages = append(pages, strings.TrimSpace(p))
	}
	// pdftotext emits a trailing form feed after the last page.
	if n := len(pages); n > 0 && pages[n-1] == "" {
		pages = pages[:n-1]
	}
	return pages, nil
}

// meaningfulWord matches words of three or more letters; shorter fragments
// are mostly OCR noise and layout artifacts.
var meaningfulWord = regexp.MustCompile(`\p{L}{3,}`)

func countWords(text string) int {
	return len(meaningfulWord.FindAllString(text, -1))
}
