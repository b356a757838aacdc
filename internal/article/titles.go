package article

import (
	"regexp"
	"strings"
)

var (
	numberedLine = regexp.MustCompile(`^\d+\.`)
	listMarker   = regexp.MustCompile(`^\s*\d+\.\s*`)
	emphasis     = strings.NewReplacer("**", "", "__", "", "*", "")
)

// ExtractTitles returns the numbered lines of raw model output, trimmed,
// in their original order.
func ExtractTitles(raw string) []string {
	titles := []string{}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !numberedLine.MatchString(line) {
			continue
		}
		titles = append(titles, strings.TrimSpace(line))
	}
	return titles
}

// CleanTitle strips the list marker, markdown emphasis and surrounding
// quotes from a generated title.
func CleanTitle(title string) string {
	s := listMarker.ReplaceAllString(title, "")
	s = emphasis.Replace(s)
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'“”")
	return strings.TrimSpace(s)
}
