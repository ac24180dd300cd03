package passes

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"
)

//go:embed analysis_system.tmpl
var analysisSystemPrompt string

//go:embed analysis_user.tmpl
var analysisUserTmpl string

//go:embed tags_system.tmpl
var tagsSystemPrompt string

//go:embed tags_user.tmpl
var tagsUserTmpl string

var (
	analysisUserTemplate = template.Must(template.New("analysis_user").Parse(analysisUserTmpl))
	tagsUserTemplate     = template.Must(template.New("tags_user").Parse(tagsUserTmpl))
)

// AnalysisUserPrompt builds the analysis preamble around the document's
// current metadata. Page content is appended by the selector, not here.
func AnalysisUserPrompt(recordJSON string) string {
	var buf bytes.Buffer
	data := struct{ RecordJSON string }{RecordJSON: recordJSON}
	if err := analysisUserTemplate.Execute(&buf, data); err != nil {
		return analysisUserTmpl
	}
	return buf.String()
}

// TagsUserPrompt builds the consolidation prompt from the tag vocabulary.
func TagsUserPrompt(tags []string) string {
	var buf bytes.Buffer
	data := struct{ TagList string }{TagList: strings.Join(tags, "\n")}
	if err := tagsUserTemplate.Execute(&buf, data); err != nil {
		return tagsUserTmpl
	}
	return buf.String()
}
