package passes

import (
	"context"
	"fmt"

	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/scheduler"
)

// GraphOptions selects which passes are scheduled.
type GraphOptions struct {
	OCR    bool
	Text   bool
	Images bool
	Tags   bool
}

// TagsTaskID is the single cross-document join node.
const TagsTaskID scheduler.TaskID = "tags"

func taskID(docID, kind string) scheduler.TaskID {
	return scheduler.TaskID(docID + ":" + kind)
}

// BuildGraph adds one task per (document, enabled pass) plus the tag join
// node. Within a document: analyses wait on OCR, and text analysis also
// waits on image analysis so a successful vision pass can mark it
// redundant. An OCR failure cascades only to text analysis — vision works
// on images and waits on OCR just for ordering. A vision failure does not
// cascade to text either. The tag node tolerates failed analyses; it
// consolidates whatever merged.
func (r *Runner) BuildGraph(s *scheduler.Scheduler, lib *document.Library, opts GraphOptions) error {
	var analysisIDs []scheduler.TaskID

	for _, doc := range lib.Documents() {
		doc := doc

		var ocrID, textID, imageID scheduler.TaskID
		if opts.OCR && r.NeedsOCR(doc) {
			ocrID = taskID(doc.ID, KindOCR)
		}
		if opts.Images {
			imageID = taskID(doc.ID, KindImage)
		}
		if opts.Text {
			textID = taskID(doc.ID, KindText)
		}

		if ocrID != "" {
			task := &scheduler.Task{
				ID:    ocrID,
				Kind:  KindOCR,
				DocID: doc.ID,
				Run: func(ctx context.Context) (scheduler.Outcome, error) {
					return scheduler.Outcome{}, r.OCR(ctx, doc)
				},
			}
			if err := s.Add(task); err != nil {
				return fmt.Errorf("add ocr task: %w", err)
			}
		}

		if imageID != "" {
			skipOnSuccess := textID
			task := &scheduler.Task{
				ID:           imageID,
				Kind:         KindImage,
				DocID:        doc.ID,
				Deps:         depsOf(ocrID),
				TolerantDeps: depsOf(ocrID),
				Run: func(ctx context.Context) (scheduler.Outcome, error) {
					cost, analyzed, err := r.ImageAnalysis(ctx, doc)
					out := scheduler.Outcome{CostUSD: cost}
					if err == nil && analyzed && r.cfg.ImageSubsumesText && skipOnSuccess != "" {
						out.SkipTasks = []scheduler.TaskID{skipOnSuccess}
					}
					return out, err
				},
			}
			if err := s.Add(task); err != nil {
				return fmt.Errorf("add image task: %w", err)
			}
			analysisIDs = append(analysisIDs, imageID)
		}

		if textID != "" {
			task := &scheduler.Task{
				ID:           textID,
				Kind:         KindText,
				DocID:        doc.ID,
				Deps:         depsOf(ocrID, imageID),
				TolerantDeps: depsOf(imageID),
				Run: func(ctx context.Context) (scheduler.Outcome, error) {
					cost, err := r.TextAnalysis(ctx, doc)
					return scheduler.Outcome{CostUSD: cost}, err
				},
			}
			if err := s.Add(task); err != nil {
				return fmt.Errorf("add text task: %w", err)
			}
			analysisIDs = append(analysisIDs, textID)
		}
	}

	if opts.Tags && len(analysisIDs) > 0 {
		task := &scheduler.Task{
			ID:                 TagsTaskID,
			Kind:               KindTags,
			Deps:               analysisIDs,
			TolerateDepFailure: true,
			Run: func(ctx context.Context) (scheduler.Outcome, error) {
				cost, err := r.ConsolidateTags(ctx, lib)
				return scheduler.Outcome{CostUSD: cost}, err
			},
		}
		if err := s.Add(task); err != nil {
			return fmt.Errorf("add tags task: %w", err)
		}
	}
	return nil
}

func depsOf(ids ...scheduler.TaskID) []scheduler.TaskID {
	var deps []scheduler.TaskID
	for _, id := range ids {
		if id != "" {
			deps = append(deps, id)
		}
	}
	return deps
}
