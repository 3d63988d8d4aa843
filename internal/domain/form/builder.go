package form

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/yanqian/formfiller/pkg/errors"
)

// Builder collects validated answers for a parsed form and renders them as
// the urlencoded fields Google Forms expects.
type Builder struct {
	form    Form
	strict  bool
	byID    map[string]Question
	order   []string
	answers map[string]Answer
}

// NewBuilder indexes the questions of form that carry an entry id.
func NewBuilder(f Form, strict bool) *Builder {
	b := &Builder{
		form:    f,
		strict:  strict,
		byID:    make(map[string]Question, len(f.Questions)),
		answers: make(map[string]Answer),
	}
	for _, q := range f.Questions {
		if q.EntryID != "" {
			b.byID[q.EntryID] = q
		}
	}
	return b
}

// SetAnswer validates answer against the question identified by entryID and
// stores it. In strict mode unknown entries and values outside the options
// (without an allowed "Other") are rejected with an invalid_input error;
// otherwise they are ignored.
func (b *Builder) SetAnswer(entryID string, answer Answer) error {
	q, ok := b.byID[entryID]
	if !ok {
		if b.strict {
			return apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("unknown entry id %q", entryID), nil)
		}
		return nil
	}

	if answer.HasOther() {
		b.store(entryID, Answer{Other: answer.Other, Values: nonEmpty(answer.Values)})
		return nil
	}

	switch {
	case q.Type == TypeCheckboxes:
		return b.setCheckboxes(q, answer)
	case q.Type.IsSingleChoice():
		return b.setSingle(q, answer)
	default:
		b.store(entryID, Single(strings.Join(answer.Values, ", ")))
		return nil
	}
}

func (b *Builder) setSingle(q Question, answer Answer) error {
	value := strings.Join(answer.Values, ", ")
	if contains(q.Choices, value) {
		b.store(q.EntryID, Single(value))
		return nil
	}
	if q.OtherAllowed && value != "" {
		b.store(q.EntryID, Answer{Other: value})
		return nil
	}
	if b.strict {
		return apperrors.Wrap(apperrors.CodeInvalidInput,
			fmt.Sprintf("answer %q is not an option of entry.%s and other is not allowed", value, q.EntryID), nil)
	}
	return nil
}

func (b *Builder) setCheckboxes(q Question, answer Answer) error {
	var selected, others []string
	for _, v := range nonEmpty(answer.Values) {
		if contains(q.Choices, v) {
			selected = append(selected, v)
		} else {
			others = append(others, v)
		}
	}

	switch {
	case len(others) == 0:
		b.store(q.EntryID, Answer{Values: selected})
	case q.OtherAllowed:
		b.store(q.EntryID, Answer{Other: strings.Join(others, "; "), Values: selected})
	case b.strict:
		return apperrors.Wrap(apperrors.CodeInvalidInput,
			fmt.Sprintf("answers %q are not options of entry.%s and other is not allowed", others, q.EntryID), nil)
	default:
		b.store(q.EntryID, Answer{Values: selected})
	}
	return nil
}

func (b *Builder) store(entryID string, answer Answer) {
	if _, exists := b.answers[entryID]; !exists {
		b.order = append(b.order, entryID)
	}
	b.answers[entryID] = answer
}

// Pairs returns the submission action and the ordered form fields: fbzx first,
// then answers in the order they were first set.
func (b *Builder) Pairs() (string, []Field) {
	var fields []Field
	if b.form.Meta.Fbzx != "" {
		fields = append(fields, Field{Key: "fbzx", Value: b.form.Meta.Fbzx})
	}

	for _, id := range b.order {
		answer := b.answers[id]
		q := b.byID[id]
		key := "entry." + id

		if answer.HasOther() {
			otherKey := q.OtherResponseKey
			if otherKey == "" {
				otherKey = key + ".other_option_response"
			}
			otherValue := q.OtherValue
			if otherValue == "" {
				otherValue = OtherOptionValue
			}
			fields = append(fields, Field{Key: key, Value: otherValue}, Field{Key: otherKey, Value: answer.Other})
			for _, v := range answer.Values {
				fields = append(fields, Field{Key: key, Value: v})
			}
			continue
		}

		if q.Type == TypeCheckboxes {
			for _, v := range answer.Values {
				fields = append(fields, Field{Key: key, Value: v})
			}
			continue
		}
		fields = append(fields, Field{Key: key, Value: strings.Join(answer.Values, ", ")})
	}
	return b.form.Meta.Action, fields
}

// Answer returns the stored answer for entryID.
func (b *Builder) Answer(entryID string) (Answer, bool) {
	a, ok := b.answers[entryID]
	return a, ok
}

// Answered reports how many questions have a stored answer.
func (b *Builder) Answered() int {
	return len(b.answers)
}

// Unanswered lists questions with an entry id and no stored answer, in form order.
func (b *Builder) Unanswered() []Question {
	var out []Question
	for _, q := range b.form.Questions {
		if q.EntryID == "" {
			continue
		}
		if _, ok := b.answers[q.EntryID]; !ok {
			out = append(out, q)
		}
	}
	return out
}

// Resolve finds a question by 0-based index ("3"), entry id or question text.
// Digit keys are tried as an entry id first.
func (b *Builder) Resolve(key string) (Question, error) {
	key = strings.TrimSpace(key)
	if q, ok := b.byID[key]; ok {
		return q, nil
	}
	if idx, err := strconv.Atoi(key); err == nil {
		if idx < 0 || idx >= len(b.form.Questions) {
			return Question{}, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("no question at index %d", idx), nil)
		}
		return b.form.Questions[idx], nil
	}
	want := NormalizeText(key)
	for _, q := range b.form.Questions {
		if NormalizeText(q.Text) == want {
			return q, nil
		}
	}
	return Question{}, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("no question matches %q", key), nil)
}

// AvailableOptions lists the options of the question found by Resolve.
func (b *Builder) AvailableOptions(key string) ([]string, error) {
	q, err := b.Resolve(key)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), q.Choices...), nil
}

// Len reports the number of questions in the form.
func (b *Builder) Len() int {
	return len(b.form.Questions)
}

func contains(options []string, v string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
