package form

import "strings"

// QuestionType identifies how a question is rendered and answered.
type QuestionType string

const (
	TypeShortAnswer    QuestionType = "short_answer"
	TypeParagraph      QuestionType = "paragraph"
	TypeMultipleChoice QuestionType = "multiple_choice"
	TypeDropdown       QuestionType = "dropdown"
	TypeCheckboxes     QuestionType = "checkboxes"
	TypeLinearScale    QuestionType = "linear_scale"
	TypeDate           QuestionType = "date"
	TypeTime           QuestionType = "time"
	// TypeGrid, TypeChoice and TypeText are inferred when the form payload
	// carries no known type code.
	TypeGrid   QuestionType = "grid"
	TypeChoice QuestionType = "choice"
	TypeText   QuestionType = "text"
)

// OtherOptionValue is the sentinel Google Forms expects when "Other" is picked.
const OtherOptionValue = "__other_option__"

// IsChoice reports whether the question offers a fixed option list.
func (t QuestionType) IsChoice() bool {
	switch t {
	case TypeMultipleChoice, TypeDropdown, TypeCheckboxes, TypeChoice:
		return true
	default:
		return false
	}
}

// IsSingleChoice reports whether exactly one option may be picked.
func (t QuestionType) IsSingleChoice() bool {
	switch t {
	case TypeMultipleChoice, TypeDropdown, TypeChoice:
		return true
	default:
		return false
	}
}

// Question is a single parsed form item.
type Question struct {
	EntryID          string       `json:"entry_id,omitempty"`
	Text             string       `json:"text"`
	Type             QuestionType `json:"type"`
	Required         *bool        `json:"required,omitempty"`
	Choices          []string     `json:"choices_or_rows,omitempty"`
	Columns          []string     `json:"columns,omitempty"`
	OtherAllowed     bool         `json:"other_allowed,omitempty"`
	OtherValue       string       `json:"other_value,omitempty"`
	OtherResponseKey string       `json:"other_response_key,omitempty"`
}

// Meta carries the submission endpoint and the raw entry discovery data.
type Meta struct {
	Action       string   `json:"action"`
	Fbzx         string   `json:"fbzx"`
	EntryIDs     []string `json:"entry_ids"`
	LabelMapSize int      `json:"label_map_size"`
	Note         string   `json:"note,omitempty"`
}

// Form is the parsed representation of a public form.
type Form struct {
	Title          string     `json:"title,omitempty"`
	Description    string     `json:"description,omitempty"`
	QuestionsCount int        `json:"questions_count"`
	Questions      []Question `json:"questions"`
	Meta           Meta       `json:"meta"`
}

// Field is one key/value pair of the urlencoded submission body. Keys may repeat.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Answer is the value assigned to a question. Other holds free text for the
// "Other" option; Values holds picked options or plain text.
type Answer struct {
	Values []string `json:"values,omitempty"`
	Other  string   `json:"other,omitempty"`
}

// Single builds an answer with one value.
func Single(value string) Answer {
	return Answer{Values: []string{value}}
}

// Multi builds an answer with several values.
func Multi(values ...string) Answer {
	return Answer{Values: append([]string(nil), values...)}
}

// OtherText builds an "Other" answer, optionally alongside picked checkbox options.
func OtherText(text string, selected ...string) Answer {
	return Answer{Other: text, Values: append([]string(nil), selected...)}
}

// HasOther reports whether free text for the "Other" option is set.
func (a Answer) HasOther() bool {
	return strings.TrimSpace(a.Other) != ""
}

// IsEmpty reports whether the answer carries nothing to submit.
func (a Answer) IsEmpty() bool {
	if a.HasOther() {
		return false
	}
	for _, v := range a.Values {
		if v != "" {
			return false
		}
	}
	return true
}

// String renders the answer for logs and the Q->A history.
func (a Answer) String() string {
	parts := make([]string, 0, len(a.Values)+1)
	parts = append(parts, a.Values...)
	if a.HasOther() {
		parts = append(parts, a.Other)
	}
	return strings.Join(parts, ", ")
}
