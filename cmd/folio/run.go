package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/cache"
	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/passes"
	"github.com/jackzampolin/folio/internal/pdf"
	"github.com/jackzampolin/folio/internal/providers"
	"github.com/jackzampolin/folio/internal/report"
	"github.com/jackzampolin/folio/internal/scheduler"
	"github.com/jackzampolin/folio/internal/selector"
)

var (
	runBaseDir          string
	runText             bool
	runImages           bool
	runOCR              bool
	runTags             bool
	runJSONOut          string
	runImportJSON       string
	runExportDir        string
	runListIncomplete   bool
	runFilterIncomplete bool
	runNoCache          bool
	runWorkers          int
	runBudget           int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scan a folder and enrich document metadata",
	Long: `Run scans the base directory for PDF documents, builds the pass graph
(OCR, text analysis, image analysis, tag consolidation), executes it on a
bounded worker pool, and writes the requested outputs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := cm.Get()
		cm.WatchConfig()

		if runBaseDir != "" {
			cfg.BaseDir = runBaseDir
		}
		if runWorkers > 0 {
			cfg.Scheduler.Workers = runWorkers
		}
		if runBudget > 0 {
			cfg.Selector.Budget = runBudget
		}

		return runEnrichment(cmd.Context(), cfg, newLogger())
	},
}

func init() {
	runCmd.Flags().StringVar(&runBaseDir, "base-dir", "", "folder to scan (default from config)")
	runCmd.Flags().BoolVar(&runText, "text", true, "run text analysis")
	runCmd.Flags().BoolVar(&runImages, "images", true, "run image analysis")
	runCmd.Flags().BoolVar(&runOCR, "ocr", true, "run OCR on pages without a text layer")
	runCmd.Flags().BoolVar(&runTags, "tags", true, "consolidate tags across documents")
	runCmd.Flags().StringVar(&runJSONOut, "json", "", "write the enriched library as JSON to this path ('-' for stdout)")
	runCmd.Flags().StringVar(&runImportJSON, "import", "", "merge a previously exported JSON library before the run")
	runCmd.Flags().StringVar(&runExportDir, "export", "", "copy documents into this folder with metadata and generated filenames")
	runCmd.Flags().BoolVar(&runListIncomplete, "list-incomplete", false, "list documents lacking sufficient metadata and exit")
	runCmd.Flags().BoolVar(&runFilterIncomplete, "filter-incomplete", false, "only analyze documents lacking sufficient metadata")
	runCmd.Flags().BoolVar(&runNoCache, "no-cache", false, "ignore cached results (still writes through)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "concurrent workers (default from config)")
	runCmd.Flags().IntVar(&runBudget, "budget", 0, "token budget per request (default from config)")
}

// passSelection resolves the pass flags against the config and rejects a
// selection that would schedule nothing.
func passSelection(cfg *config.Config) (passes.GraphOptions, error) {
	opts := passes.GraphOptions{
		OCR:    runOCR && cfg.OCR.Enabled,
		Text:   runText,
		Images: runImages,
		Tags:   runTags,
	}
	if !opts.OCR && !opts.Text && !opts.Images && !opts.Tags {
		return opts, fmt.Errorf("no passes enabled: enable at least one of --ocr, --text, --images, --tags")
	}
	return opts, nil
}

func runEnrichment(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	graphOpts, err := passSelection(cfg)
	if err != nil {
		return err
	}

	reader := pdf.NewReader(logger)
	lib := document.NewLibrary()

	if runImportJSON != "" {
		if err := importLibrary(lib, runImportJSON); err != nil {
			return err
		}
		logger.Info("imported library", "path", runImportJSON, "documents", lib.Len())
	}

	if err := scanFolder(ctx, reader, lib, cfg.BaseDir, logger); err != nil {
		return err
	}
	if lib.Len() == 0 {
		return fmt.Errorf("no documents found under %s", cfg.BaseDir)
	}
	logger.Info("library loaded", "documents", lib.Len(), "base_dir", cfg.BaseDir)

	if runListIncomplete {
		listIncomplete(lib, cfg.Analysis.ConfidenceThreshold)
		return nil
	}

	target := lib
	if runFilterIncomplete {
		target = document.NewLibrary()
		for _, d := range lib.Incomplete(cfg.Analysis.ConfidenceThreshold) {
			target.Add(d)
		}
		logger.Info("filtered to incomplete documents", "documents", target.Len())
	}

	client := providers.NewOpenAIClient(providers.OpenAIConfig{
		APIKey:    cfg.APIKey(),
		Model:     cfg.Models.Text,
		RateLimit: cfg.Provider.RateLimit,
		BaseURL:   cfg.Provider.BaseURL,
	})

	var ocrProvider providers.OCRProvider
	if graphOpts.OCR {
		ocrProvider = providers.NewTesseractOCR(providers.TesseractConfig{
			Binary:    cfg.OCR.Binary,
			Languages: cfg.OCR.Languages,
			RateLimit: cfg.OCR.RateLimit,
		})
	}

	store, err := cache.Open(cfg.Cache.Path, cache.Options{
		TTL:      cfg.Cache.TTL,
		Disabled: runNoCache,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("open result cache: %w", err)
	}
	defer store.Close()

	reporter := report.New(logger)

	sel := selector.New(selector.Options{
		Budget:          cfg.Selector.Budget,
		PriorityPages:   cfg.Selector.PriorityPages,
		MinEdgePx:       cfg.Selector.MinEdgePx,
		ClutterLimit:    cfg.Selector.ClutterLimit,
		RenderDPI:       cfg.Selector.RenderDPI,
		ScannedCoverage: cfg.Selector.ScannedCoverage,
		Logger:          logger,
		Events:          reporter,
		Render:          pdf.RenderPage,
	})

	runner := passes.NewRunner(client, ocrProvider, store, sel,
		providers.NewRateLimiter(cfg.Provider.RateLimit), pdf.RenderPage,
		passes.Config{
			TextModel:         cfg.Models.Text,
			LongTextModel:     cfg.Models.LongText,
			VisionModel:       cfg.Models.Vision,
			TagsModel:         cfg.Models.Tags,
			LongDocWords:      cfg.Analysis.LongDocWords,
			OCRWordThreshold:  cfg.Analysis.OCRWordThreshold,
			RenderDPI:         cfg.Selector.RenderDPI,
			ImageSubsumesText: cfg.Analysis.ImageSubsumesText,
			Logger:            logger,
		})

	sched := scheduler.New(scheduler.Config{
		Workers:       cfg.Scheduler.Workers,
		RetryAttempts: cfg.Scheduler.RetryAttempts,
		RetryDelay:    cfg.Scheduler.RetryDelay,
		Logger:        logger,
		Events:        reporter,
	})

	if err := runner.BuildGraph(sched, target, graphOpts); err != nil {
		return err
	}
	if sched.TaskCount() == 0 {
		return fmt.Errorf("enabled passes produced no tasks for %d documents", target.Len())
	}

	runErr := sched.Run(ctx)

	if err := writeOutputs(reader, lib, logger); err != nil {
		return err
	}

	fmt.Println(reporter.Summary(store.Ledger().Snapshot(), sched.TotalCostUSD()))
	if failed := reporter.FailedDocuments(); len(failed) > 0 {
		logger.Warn("some documents failed", "count", len(failed))
	}
	return runErr
}

// scanFolder walks the base directory and loads every PDF into the library.
// Unreadable files are logged and skipped; the run continues.
func scanFolder(ctx context.Context, reader *pdf.Reader, lib *document.Library, baseDir string, logger *slog.Logger) error {
	return filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".pdf") {
			return nil
		}

		doc, loadErr := reader.Load(ctx, path, baseDir)
		if loadErr != nil {
			logger.Warn("failed to read document, skipping", "path", path, "error", loadErr)
			return nil
		}
		lib.Add(doc)
		return nil
	})
}

func importLibrary(lib *document.Library, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()
	if err := lib.ImportJSON(f); err != nil {
		return fmt.Errorf("import library %s: %w", path, err)
	}
	return nil
}

func listIncomplete(lib *document.Library, threshold int) {
	incomplete := lib.Incomplete(threshold)
	for _, d := range incomplete {
		fmt.Printf("%s\t(confidence %.1f)\n",
			filepath.Join(d.RelPath, d.FileName), d.AggregateConfidence())
	}
	fmt.Printf("%d of %d documents lack sufficient metadata\n", len(incomplete), lib.Len())
}

func writeOutputs(reader *pdf.Reader, lib *document.Library, logger *slog.Logger) error {
	if runJSONOut != "" {
		if runJSONOut == "-" {
			if err := lib.ExportJSON(os.Stdout); err != nil {
				return err
			}
		} else {
			f, err := os.Create(runJSONOut)
			if err != nil {
				return fmt.Errorf("create JSON output: %w", err)
			}
			if err := lib.ExportJSON(f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			logger.Info("library exported", "path", runJSONOut)
		}
	}

	if runExportDir != "" {
		exported := 0
		for _, d := range lib.Documents() {
			dest, err := reader.Export(d, runExportDir)
			if err != nil {
				logger.Warn("export failed", "doc", d.FileName, "error", err)
				continue
			}
			logger.Debug("document exported", "doc", d.FileName, "dest", dest)
			exported++
		}
		logger.Info("documents exported", "count", exported, "dir", runExportDir)
	}
	return nil
}
