package capture

import (
	"regexp"
	"strconv"
	"strings"
)

var indicatorPattern = regexp.MustCompile(`(?i)(\d+)\s*(?:of|/)\s*(\d+)`)

// ParseIndicator reads a pagination label such as "3 of 12" or "3 / 12".
// ok is false when no well-formed label is present.
func ParseIndicator(text string) (current, total int, ok bool) {
	m := indicatorPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}
	current, err1 := strconv.Atoi(m[1])
	total, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	if current < 1 || total < 1 || current > total {
		return 0, 0, false
	}
	return current, total, true
}

var titleSuffixes = []string{" | DocSend", " - DocSend", " – DocSend", " · DocSend"}

// CleanTitle strips the viewer's branding from a document title. It
// returns "" when nothing document specific remains.
func CleanTitle(title string) string {
	t := strings.Join(strings.Fields(title), " ")
	for _, s := range titleSuffixes {
		if strings.HasSuffix(t, s) {
			t = strings.TrimSpace(strings.TrimSuffix(t, s))
			break
		}
	}
	if strings.EqualFold(t, "docsend") {
		return ""
	}
	return t
}
