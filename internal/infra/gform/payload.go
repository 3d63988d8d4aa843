package gform

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// minEntryID separates real entry ids from small structural integers in the payload.
const minEntryID = 10000

var payloadPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)var\s+FB_PUBLIC_LOAD_DATA_\s*=\s*(\[.+?\]);\s*</script>`),
	regexp.MustCompile(`(?s)FB_PUBLIC_LOAD_DATA_\s*=\s*(\[.+?\]);`),
}

var errNoPayload = errors.New("FB_PUBLIC_LOAD_DATA_ not found: the form may be closed, require sign-in, or its markup changed")

// extractPayload decodes the FB_PUBLIC_LOAD_DATA_ array embedded in the page.
// Numbers stay json.Number so large entry ids keep their exact digits.
func extractPayload(page string) (any, error) {
	for _, re := range payloadPatterns {
		m := re.FindStringSubmatch(page)
		if m == nil {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(m[1]))
		dec.UseNumber()
		var data any
		if err := dec.Decode(&data); err != nil {
			return nil, err
		}
		return data, nil
	}
	return nil, errNoPayload
}

// dig follows list indexes, returning nil when any step is missing.
func dig(x any, path ...int) any {
	cur := x
	for _, p := range path {
		list, ok := cur.([]any)
		if !ok || p < 0 || p >= len(list) {
			return nil
		}
		cur = list[p]
	}
	return cur
}

// walkLists visits x and every nested list in pre-order until fn returns false.
func walkLists(x any, fn func([]any) bool) bool {
	list, ok := x.([]any)
	if !ok {
		return true
	}
	if !fn(list) {
		return false
	}
	for _, v := range list {
		if !walkLists(v, fn) {
			return false
		}
	}
	return true
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asInt(v any) (int64, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	i, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return i, true
}

func asList(v any) ([]any, bool) {
	l, ok := v.([]any)
	return l, ok
}

func isBlank(v any) bool {
	s, ok := asString(v)
	return !ok || strings.TrimSpace(s) == ""
}

// firstString returns the first non-blank string held directly by any list
// under x, in pre-order.
func firstString(x any) string {
	var found string
	walkLists(x, func(node []any) bool {
		for _, v := range node {
			if s, ok := asString(v); ok && strings.TrimSpace(s) != "" {
				found = s
				return false
			}
		}
		return true
	})
	return found
}

func allLists(node []any) bool {
	if len(node) == 0 {
		return false
	}
	for _, v := range node {
		if _, ok := asList(v); !ok {
			return false
		}
	}
	return true
}

// labelsOf takes the first string of each option tuple, or the second when the
// first slot is not a string.
func labelsOf(node []any) []string {
	var out []string
	for _, raw := range node {
		ch, _ := asList(raw)
		if s, ok := asString(dig(ch, 0)); ok {
			out = append(out, s)
		} else if s, ok := asString(dig(ch, 1)); ok {
			out = append(out, s)
		}
	}
	return out
}

// guessItemsRoot prefers the canonical [1][1] item list and otherwise picks
// the longest list whose children mostly carry text.
func guessItemsRoot(data any) ([]any, error) {
	if items, ok := asList(dig(data, 1, 1)); ok && len(items) > 0 {
		return items, nil
	}
	var best []any
	walkLists(data, func(node []any) bool {
		if len(node) == 0 {
			return true
		}
		withText := 0
		for _, v := range node {
			child, ok := asList(v)
			if !ok {
				continue
			}
			for _, x := range child {
				if !isBlank(x) {
					withText++
					break
				}
			}
		}
		if withText >= max(2, len(node)/3) && len(node) > len(best) {
			best = node
		}
		return true
	})
	if best == nil {
		return nil, errors.New("question list not found in form payload")
	}
	return best, nil
}

// extractChoices reads option labels (rows for grids) and grid columns.
func extractChoices(item []any) (choices, columns []string) {
	if node, ok := asList(dig(item, 4, 0, 1)); ok && allLists(node) {
		choices = labelsOf(node)
		if cols, ok := asList(dig(item, 4, 0, 2)); ok && allLists(cols) {
			columns = labelsOf(cols)
		}
		return choices, columns
	}

	var best []any
	walkLists(item, func(node []any) bool {
		if !allLists(node) {
			return true
		}
		sample, _ := asList(node[0])
		for _, y := range sample {
			if !isBlank(y) {
				if len(node) > len(best) {
					best = node
				}
				break
			}
		}
		return true
	})
	if best != nil {
		return labelsOf(best), nil
	}
	return nil, nil
}

// isRequired looks for the trailing required flag of the answer block, then
// for any boolean in the item.
func isRequired(item []any) *bool {
	if node, ok := asList(dig(item, 4, 0)); ok {
		for i := len(node) - 1; i >= 0; i-- {
			if b, ok := node[i].(bool); ok {
				return &b
			}
			if inner, ok := asList(node[i]); ok {
				for j := len(inner) - 1; j >= 0; j-- {
					if b, ok := inner[j].(bool); ok {
						return &b
					}
				}
			}
		}
	}
	var found *bool
	walkLists(item, func(node []any) bool {
		for _, v := range node {
			if b, ok := v.(bool); ok {
				found = &b
				return false
			}
		}
		return true
	})
	return found
}

// entryIDFromItem finds an entry id inside the item when the markup had none.
func entryIDFromItem(item []any) string {
	paths := [][]int{{4, 0, 0}, {4, 0, 3, 0}, {4, 0, 0, 0}, {0}}
	for _, path := range paths {
		v := dig(item, path...)
		if n, ok := asInt(v); ok && n >= minEntryID {
			return strconv.FormatInt(n, 10)
		}
		if list, ok := asList(v); ok {
			for _, x := range list {
				if n, ok := asInt(x); ok && n >= minEntryID {
					return strconv.FormatInt(n, 10)
				}
			}
		}
	}

	var best string
	walkLists(item, func(node []any) bool {
		for _, v := range node {
			if n, ok := asInt(v); ok && n >= minEntryID {
				if s := strconv.FormatInt(n, 10); len(s) > len(best) {
					best = s
				}
			}
		}
		return true
	})
	return best
}
