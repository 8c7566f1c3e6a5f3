package chunker

import (
	"regexp"
	"strings"

	"github.com/harborview-labs/insight/internal/domain"
)

// mainHeadingRegex matches a top-level markdown heading line. Lines whose
// heading text starts with emphasis markup ("# *foo*") are not section
// boundaries.
var mainHeadingRegex = regexp.MustCompile(`(?m)^# ([^*\n][^\n]*)$`)

// Parse splits a markdown-like document into heading-delimited sections.
// When no top-level headings are present the whole document becomes one
// section with an empty heading. Text before the first heading is dropped.
func Parse(document string) []domain.Section {
	matches := mainHeadingRegex.FindAllStringSubmatchIndex(document, -1)
	if len(matches) == 0 {
		return []domain.Section{{Heading: "", Content: strings.TrimSpace(document)}}
	}

	sections := make([]domain.Section, 0, len(matches))
	for i, m := range matches {
		heading := strings.TrimSpace(document[m[2]:m[3]])
		end := len(document)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		content := strings.TrimSpace(document[m[1]:end])
		sections = append(sections, domain.Section{Heading: heading, Content: content})
	}
	return sections
}
