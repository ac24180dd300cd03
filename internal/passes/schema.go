package passes

import "encoding/json"

// analysisSchema constrains the metadata object the analysis passes expect
// back. Validation of the parsed response against it happens in the
// provider layer.
var analysisSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"title": map[string]any{
			"type":        "string",
			"description": "Short, specific document title in the document's language",
		},
		"title_confidence": map[string]any{
			"type": "number", "minimum": 0, "maximum": 10,
		},
		"summary": map[string]any{
			"type":        "string",
			"description": "One or two sentences describing the document",
		},
		"summary_confidence": map[string]any{
			"type": "number", "minimum": 0, "maximum": 10,
		},
		"creation_date": map[string]any{
			"type":        "string",
			"description": "Creation or issue date as YYYY-MM-DD, empty if unknown",
		},
		"creation_date_confidence": map[string]any{
			"type": "number", "minimum": 0, "maximum": 10,
		},
		"creator": map[string]any{
			"type":        "string",
			"description": "Issuing person, company, or authority, empty if unknown",
		},
		"creator_confidence": map[string]any{
			"type": "number", "minimum": 0, "maximum": 10,
		},
		"importance": map[string]any{
			"type": "number", "minimum": 0, "maximum": 10,
		},
		"importance_confidence": map[string]any{
			"type": "number", "minimum": 0, "maximum": 10,
		},
		"tags": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"tags_confidence": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "number", "minimum": 0, "maximum": 10},
		},
	},
	"required": []string{
		"title", "title_confidence",
		"summary", "summary_confidence",
		"creation_date", "creation_date_confidence",
		"creator", "creator_confidence",
		"importance", "importance_confidence",
		"tags", "tags_confidence",
	},
	"additionalProperties": false,
}

// tagsSchema constrains the tag consolidation response.
var tagsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"replacements": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"old": map[string]any{"type": "string"},
					"new": map[string]any{"type": "string"},
				},
				"required":             []string{"old", "new"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"replacements"},
	"additionalProperties": false,
}

var (
	analysisSchemaJSON = mustMarshalSchema(analysisSchema)
	tagsSchemaJSON     = mustMarshalSchema(tagsSchema)
)

func mustMarshalSchema(schema map[string]any) json.RawMessage {
	b, err := json.Marshal(schema)
	if err != nil {
		panic(err)
	}
	return json.RawMessage(b)
}
