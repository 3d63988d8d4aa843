package autofill

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// envelopeSchema accepts {"answer": <scalar or list of scalars>}.
const envelopeSchema = `{
	"type": "object",
	"required": ["answer"],
	"properties": {
		"answer": {
			"type": ["string", "number", "boolean", "array"],
			"items": {"type": ["string", "number", "boolean"]}
		}
	}
}`

var (
	envelopeLoader = gojsonschema.NewStringLoader(envelopeSchema)
	objectSpan     = regexp.MustCompile(`(?s)\{.*\}`)
)

// Extracted is the answer value a model returned. Lists keep their items;
// scalars land in Text.
type Extracted struct {
	Text   string
	Items  []string
	IsList bool
}

// Joined renders the value as a single string.
func (e Extracted) Joined() string {
	if e.IsList {
		return strings.Join(e.Items, ", ")
	}
	return e.Text
}

// ExtractAnswer reads the "answer" field from a model reply. The whole reply
// is tried first (code fences stripped), then the outermost {...} span.
func ExtractAnswer(raw string) (Extracted, bool) {
	for _, candidate := range []string{stripFences(raw), objectSpan.FindString(raw)} {
		if candidate == "" {
			continue
		}
		if ext, ok := decodeEnvelope(candidate); ok {
			return ext, true
		}
	}
	return Extracted{}, false
}

func stripFences(raw string) string {
	sanitized := strings.TrimSpace(raw)
	sanitized = strings.TrimPrefix(sanitized, "```json")
	sanitized = strings.TrimSuffix(sanitized, "```")
	sanitized = strings.Trim(sanitized, "`")
	return strings.TrimSpace(sanitized)
}

func decodeEnvelope(candidate string) (Extracted, bool) {
	result, err := gojsonschema.Validate(envelopeLoader, gojsonschema.NewStringLoader(candidate))
	if err != nil || !result.Valid() {
		return Extracted{}, false
	}

	dec := json.NewDecoder(strings.NewReader(candidate))
	dec.UseNumber()
	var envelope struct {
		Answer any `json:"answer"`
	}
	if err := dec.Decode(&envelope); err != nil {
		return Extracted{}, false
	}

	if list, ok := envelope.Answer.([]any); ok {
		items := make([]string, 0, len(list))
		for _, item := range list {
			items = append(items, scalarText(item))
		}
		return Extracted{Items: items, IsList: true}, true
	}
	return Extracted{Text: scalarText(envelope.Answer)}, true
}

func scalarText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
