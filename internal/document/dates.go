package document

import (
	"regexp"
	"time"
)

// datePattern pairs a detection regexp with the Go layout used to parse
// the match. Patterns are tried in order; the first parseable match wins.
type datePattern struct {
	re     *regexp.Regexp
	layout string
}

var datePatterns = []datePattern{
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}`), "2006-01-02"},
	{regexp.MustCompile(`\d{4}_\d{2}_\d{2}`), "2006_01_02"},
	{regexp.MustCompile(`\d{4} \d{2} \d{2}`), "2006 01 02"},
	{regexp.MustCompile(`\d{8}`), "20060102"},
	{regexp.MustCompile(`\d{4}-[a-zA-Z]{3}-\d{2}`), "2006-Jan-02"},
	{regexp.MustCompile(`\d{4}_[a-zA-Z]{3}_\d{2}`), "2006_Jan_02"},
	{regexp.MustCompile(`\d{4} [a-zA-Z]{3} \d{2}`), "2006 Jan 02"},
	{regexp.MustCompile(`\d{2}-[a-zA-Z]{3}-\d{4}`), "02-Jan-2006"},
	{regexp.MustCompile(`\d{2}_[a-zA-Z]{3}_\d{4}`), "02_Jan_2006"},
	{regexp.MustCompile(`\d{2} [a-zA-Z]{3} \d{4}`), "02 Jan 2006"},
}

// DateLayout is the canonical stored form of creation dates.
const DateLayout = "2006-01-02"

// ParseDate finds and parses the first recognizable date in s, returning
// the canonical YYYY-MM-DD form.
func ParseDate(s string) (string, bool) {
	for _, p := range datePatterns {
		match := p.re.FindString(s)
		if match == "" {
			continue
		}
		t, err := time.Parse(p.layout, match)
		if err != nil {
			continue
		}
		return t.Format(DateLayout), true
	}
	return "", false
}

// stripDates removes every recognized date substring from s.
func stripDates(s string) string {
	for _, p := range datePatterns {
		s = p.re.ReplaceAllString(s, "")
	}
	return s
}
