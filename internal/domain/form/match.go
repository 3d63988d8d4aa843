package form

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var (
	labelTailPattern = regexp.MustCompile(`[:\-–]\s*(.+)$`)
	multiSplitter    = regexp.MustCompile(`[,;/\n]+`)
)

const labelQuotes = "\"'«»"

// PickSingle maps a free-form answer onto one of options. It accepts a 1-based
// index, an exact (normalized) label, a label after a "N: " / "B - " prefix,
// or a unique substring match in either direction. ok is false when nothing
// maps unambiguously.
func PickSingle(answer string, options []string) (string, bool) {
	if len(options) == 0 {
		return "", false
	}
	ans := NormalizeText(answer)
	if ans == "" {
		return "", false
	}
	if k, err := strconv.Atoi(ans); err == nil && isDigits(ans) {
		if k >= 1 && k <= len(options) {
			return options[k-1], true
		}
	}

	normalized := make([]string, len(options))
	for i, opt := range options {
		normalized[i] = NormalizeText(opt)
		if normalized[i] == ans {
			return options[i], true
		}
	}

	if m := labelTailPattern.FindStringSubmatch(ans); m != nil {
		tail := strings.Trim(strings.TrimSpace(m[1]), labelQuotes)
		for i, opt := range normalized {
			if tail == opt {
				return options[i], true
			}
		}
		if tail != "" {
			ans = tail
		}
	}

	hit := -1
	for i, opt := range normalized {
		if opt == "" {
			continue
		}
		if strings.Contains(opt, ans) || strings.Contains(ans, opt) {
			if hit >= 0 {
				return "", false
			}
			hit = i
		}
	}
	if hit < 0 {
		return "", false
	}
	return options[hit], true
}

// PickMulti maps an answer listing several options. A JSON array is read item
// by item; anything else is split on commas, semicolons, slashes and newlines.
// Picks are de-duplicated and keep answer order.
func PickMulti(answer string, options []string) []string {
	if len(options) == 0 {
		return nil
	}
	trimmed := strings.TrimSpace(answer)

	var items []string
	var raw []any
	if err := json.Unmarshal([]byte(trimmed), &raw); err == nil {
		for _, item := range raw {
			items = append(items, stringify(item))
		}
	} else {
		for _, part := range multiSplitter.Split(trimmed, -1) {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
	}
	return PickEach(items, options)
}

// PickEach maps every item with PickSingle, keeping first-seen order.
func PickEach(items []string, options []string) []string {
	var picked []string
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		match, ok := PickSingle(item, options)
		if !ok {
			continue
		}
		if _, dup := seen[match]; dup {
			continue
		}
		seen[match] = struct{}{}
		picked = append(picked, match)
	}
	return picked
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
