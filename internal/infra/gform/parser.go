package gform

import (
	"strings"

	xhtml "golang.org/x/net/html"

	"github.com/yanqian/formfiller/internal/domain/form"
	apperrors "github.com/yanqian/formfiller/pkg/errors"
)

const missingEntryNote = "If entry_id is empty, open the public .../viewform link without edit_requested=true."

var typeCodes = map[int64]form.QuestionType{
	0: form.TypeShortAnswer,
	1: form.TypeParagraph,
	2: form.TypeMultipleChoice,
	3: form.TypeDropdown,
	4: form.TypeCheckboxes,
	5: form.TypeLinearScale,
	7: form.TypeDate,
	8: form.TypeTime,
}

// ParseHTML turns a viewform page into a Form. viewformURL is used to derive
// the submit action when the page has no form element.
func ParseHTML(page, viewformURL string) (form.Form, error) {
	meta := extractMeta(page, viewformURL)
	data, err := extractPayload(page)
	if err != nil {
		return form.Form{}, apperrors.Wrap(apperrors.CodeFormError, "form payload unavailable", err)
	}

	title, _ := asString(dig(data, 1, 8))
	if title == "" {
		title = firstString(data)
	}
	description, _ := asString(dig(data, 1, 0))

	items, err := guessItemsRoot(data)
	if err != nil {
		return form.Form{}, apperrors.Wrap(apperrors.CodeFormError, "form payload has no questions", err)
	}

	questions := make([]form.Question, 0, len(items))
	nextID := 0
	for _, raw := range items {
		item, ok := asList(raw)
		if !ok {
			continue
		}
		text := itemText(item)
		if text == "" {
			continue
		}

		choices, columns := extractChoices(item)
		q := form.Question{
			Text:     xhtml.UnescapeString(text),
			Type:     questionType(item, choices, columns),
			Required: isRequired(item),
			Choices:  choices,
			Columns:  columns,
		}

		if nextID < len(meta.entryIDs) {
			q.EntryID = meta.entryIDs[nextID]
			nextID++
		}
		if q.EntryID == "" {
			q.EntryID = meta.matchLabel(q.Text)
		}
		if q.EntryID == "" {
			q.EntryID = entryIDFromItem(item)
		}

		detectOther(&q)
		questions = append(questions, q)
	}

	entryIDs := meta.entryIDs
	if entryIDs == nil {
		entryIDs = []string{}
	}
	return form.Form{
		Title:          title,
		Description:    description,
		QuestionsCount: len(questions),
		Questions:      questions,
		Meta: form.Meta{
			Action:       meta.action,
			Fbzx:         meta.fbzx,
			EntryIDs:     entryIDs,
			LabelMapSize: len(meta.labels),
			Note:         missingEntryNote,
		},
	}, nil
}

func itemText(item []any) string {
	if s, ok := asString(dig(item, 1)); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	if s, ok := asString(dig(item, 0, 1)); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(firstString(item))
}

func questionType(item []any, choices, columns []string) form.QuestionType {
	if code, ok := asInt(dig(item, 3)); ok {
		if t, known := typeCodes[code]; known {
			return t
		}
	}
	switch {
	case len(choices) > 0 && len(columns) > 0:
		return form.TypeGrid
	case len(choices) > 0:
		return form.TypeChoice
	default:
		return form.TypeText
	}
}

// detectOther treats a blank option as Google's "Other" slot: it is removed
// from the choices and the question is marked as accepting free text.
func detectOther(q *form.Question) {
	if !q.Type.IsChoice() {
		return
	}
	cleaned := make([]string, 0, len(q.Choices))
	blank := false
	for _, c := range q.Choices {
		if strings.TrimSpace(c) == "" {
			blank = true
			continue
		}
		cleaned = append(cleaned, c)
	}
	if !blank {
		return
	}
	q.Choices = cleaned
	q.OtherAllowed = true
	q.OtherValue = form.OtherOptionValue
	if q.EntryID != "" {
		q.OtherResponseKey = "entry." + q.EntryID + ".other_option_response"
	}
}
