package form

import (
	"regexp"
	"strings"
)

var (
	sectionStart = regexp.MustCompile(`(?i)^\s*(\d+)[\.\)]\s*`)
	subpartStart = regexp.MustCompile(`(?i)^\s*([a-zа-я])[\)\.]\s*`)
	firstSubpart = regexp.MustCompile(`(?i)\n\s*[a-zа-я][\)\.]\s+`)
)

// IsSectionStart reports whether text opens a numbered section ("1." or "2)").
func IsSectionStart(text string) bool {
	return sectionStart.MatchString(text)
}

// IsSubpart reports whether text is a lettered subpart ("a)" or "б.").
func IsSubpart(text string) bool {
	return subpartStart.MatchString(text)
}

// ExtractSectionIntro returns the shared stem of a section question: the text
// before its first line-leading subpart, or the whole text when there is none.
// Non-section text yields "".
func ExtractSectionIntro(text string) string {
	if !IsSectionStart(text) {
		return ""
	}
	if loc := firstSubpart.FindStringIndex(text); loc != nil {
		return strings.TrimSpace(text[:loc[0]])
	}
	return strings.TrimSpace(text)
}

// SectionContextMap assigns the current section stem to every following
// subpart question (keyed by entry id) until the next section starts.
func SectionContextMap(questions []Question) map[string]string {
	ctx := make(map[string]string)
	current := ""
	for _, q := range questions {
		text := strings.TrimSpace(q.Text)
		if text == "" {
			continue
		}
		if IsSectionStart(text) {
			current = ExtractSectionIntro(text)
			if current == "" {
				current = text
			}
			continue
		}
		if current != "" && q.EntryID != "" && IsSubpart(text) {
			ctx[q.EntryID] = current
		}
	}
	return ctx
}
