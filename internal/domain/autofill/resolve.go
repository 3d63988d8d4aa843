package autofill

import (
	"strings"

	"github.com/yanqian/formfiller/internal/domain/form"
)

// ResolveAnswer maps an extracted model answer onto the question. Choice
// questions go through option matching; when nothing matches and the
// question accepts "Other", the raw text becomes the Other answer.
func ResolveAnswer(q form.Question, ext Extracted) (form.Answer, bool) {
	switch {
	case q.Type == form.TypeCheckboxes && len(q.Choices) > 0:
		var picked []string
		if ext.IsList {
			picked = form.PickEach(ext.Items, q.Choices)
		} else {
			picked = form.PickMulti(ext.Text, q.Choices)
		}
		if len(picked) > 0 {
			return form.Multi(picked...), true
		}
	case q.Type.IsSingleChoice() && len(q.Choices) > 0:
		candidate := ext.Text
		if ext.IsList {
			candidate = ""
			if len(ext.Items) > 0 {
				candidate = ext.Items[0]
			}
		}
		if picked, ok := form.PickSingle(candidate, q.Choices); ok {
			return form.Single(picked), true
		}
	default:
		if text := strings.TrimSpace(ext.Joined()); text != "" {
			return form.Single(text), true
		}
		return form.Answer{}, false
	}

	if q.OtherAllowed {
		if other := otherText(ext); other != "" {
			return form.OtherText(other), true
		}
	}
	return form.Answer{}, false
}

func otherText(ext Extracted) string {
	if ext.IsList {
		if len(ext.Items) == 0 {
			return ""
		}
		return strings.TrimSpace(ext.Items[0])
	}
	return strings.TrimSpace(ext.Text)
}
