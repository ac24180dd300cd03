package passes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jackzampolin/folio/internal/cache"
	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/providers"
)

type tagReplacement struct {
	Old string `json:"old"`
	New string `json:"new"`
}

type tagsResponse struct {
	Replacements []tagReplacement `json:"replacements"`
}

// ConsolidateTags asks the model to fold synonym and variant tags across
// the whole library, then applies the replacement pairs to every document.
// Runs once per run, after the per-document analyses.
func (r *Runner) ConsolidateTags(ctx context.Context, lib *document.Library) (float64, error) {
	tags := lib.UniqueTags()
	if len(tags) < 2 {
		r.logger.Debug("tag vocabulary too small to consolidate", "tags", len(tags))
		return 0, nil
	}

	chatReq := &providers.ChatRequest{
		Model:       r.cfg.TagsModel,
		Temperature: 0.1,
		Messages: []providers.Message{
			{Role: "system", Content: tagsSystemPrompt},
			{Role: "user", Content: TagsUserPrompt(tags)},
		},
		ResponseFormat: &providers.ResponseFormat{
			Type:       "json_schema",
			Name:       "tag_replacements",
			JSONSchema: tagsSchemaJSON,
		},
		RequestID: uuid.NewString(),
	}

	fp := cache.Fingerprint(KindTags, r.cfg.TagsModel, strings.Join(tags, "\n"))
	payload, cost, err := r.chatJSON(ctx, KindTags, fp, chatReq)
	if err != nil {
		return cost, err
	}

	var resp tagsResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return cost, fmt.Errorf("decode tag consolidation: %w", err)
	}

	replacements := make(map[string]string, len(resp.Replacements))
	for _, p := range resp.Replacements {
		if p.Old == "" || p.New == "" || p.Old == p.New {
			continue
		}
		replacements[p.Old] = p.New
	}
	if len(replacements) == 0 {
		r.logger.Info("tag vocabulary already consistent", "tags", len(tags))
		return cost, nil
	}

	lib.ApplyTagReplacements(replacements)
	r.logger.Info("tags consolidated",
		"tags", len(tags),
		"replacements", len(replacements),
	)
	return cost, nil
}
