package gform

import (
	"regexp"
	"strings"

	xhtml "golang.org/x/net/html"

	"github.com/yanqian/formfiller/internal/domain/form"
)

var entryName = regexp.MustCompile(`^entry\.(\d+)$`)

type labelEntry struct {
	label   string
	entryID string
}

// pageMeta is what the HTML markup (outside the JSON payload) tells us.
type pageMeta struct {
	action   string
	fbzx     string
	entryIDs []string
	labels   []labelEntry
}

// extractMeta walks the page tokens collecting the submit action, the fbzx
// token, entry ids in document order and aria-label/placeholder hints.
func extractMeta(page, viewformURL string) pageMeta {
	var meta pageMeta
	seenIDs := make(map[string]struct{})
	seenLabels := make(map[string]struct{})
	var placeholders []labelEntry

	z := xhtml.NewTokenizer(strings.NewReader(page))
	for {
		tt := z.Next()
		if tt == xhtml.ErrorToken {
			// io.EOF or a malformed tail; either way the markup is exhausted
			break
		}
		if tt != xhtml.StartTagToken && tt != xhtml.SelfClosingTagToken {
			continue
		}
		tok := z.Token()
		attrs := attrMap(tok.Attr)

		if tok.Data == "form" && meta.action == "" {
			if action := attrs["action"]; strings.HasSuffix(action, "/formResponse") {
				meta.action = action
			}
		}

		name := attrs["name"]
		if name == "fbzx" && meta.fbzx == "" {
			meta.fbzx = attrs["value"]
			continue
		}
		m := entryName.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		id := m[1]
		if _, ok := seenIDs[id]; !ok {
			seenIDs[id] = struct{}{}
			meta.entryIDs = append(meta.entryIDs, id)
		}
		if label := attrs["aria-label"]; label != "" {
			meta.labels = appendLabel(meta.labels, seenLabels, label, id)
		}
		if ph := attrs["placeholder"]; ph != "" {
			placeholders = append(placeholders, labelEntry{label: ph, entryID: id})
		}
	}
	// aria-labels win over placeholders for the same text
	for _, p := range placeholders {
		meta.labels = appendLabel(meta.labels, seenLabels, p.label, p.entryID)
	}

	if meta.action == "" {
		meta.action = formResponseURL(viewformURL)
	}
	return meta
}

func appendLabel(labels []labelEntry, seen map[string]struct{}, label, id string) []labelEntry {
	key := form.NormalizeText(label)
	if key == "" {
		return labels
	}
	if _, ok := seen[key]; ok {
		return labels
	}
	seen[key] = struct{}{}
	return append(labels, labelEntry{label: key, entryID: id})
}

// matchLabel finds the entry whose label equals the question text, or
// failing that overlaps it by prefix or containment.
func (m pageMeta) matchLabel(text string) string {
	key := form.NormalizeText(text)
	if key == "" {
		return ""
	}
	for _, l := range m.labels {
		if l.label == key {
			return l.entryID
		}
	}
	for _, l := range m.labels {
		if strings.HasPrefix(key, l.label) || strings.HasPrefix(l.label, key) ||
			strings.Contains(key, l.label) || strings.Contains(l.label, key) {
			return l.entryID
		}
	}
	return ""
}

func formResponseURL(viewformURL string) string {
	action := strings.Replace(viewformURL, "/viewform", "/formResponse", 1)
	if idx := strings.Index(action, "?"); idx >= 0 {
		action = action[:idx]
	}
	return action
}

func attrMap(attrs []xhtml.Attribute) map[string]string {
	out := make(map[string]string, len(attrs))
	for _, a := range attrs {
		if _, exists := out[a.Key]; !exists {
			out[a.Key] = a.Val
		}
	}
	return out
}
