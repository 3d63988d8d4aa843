package form

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestExtractSectionIntro(t *testing.T) {
	require.Equal(t, "1. Read the passage.", ExtractSectionIntro("1. Read the passage.\n a) first part"))
	require.Equal(t, "2) Whole question", ExtractSectionIntro("  2) Whole question  "))
	require.Empty(t, ExtractSectionIntro("a) not a section"))
	require.Empty(t, ExtractSectionIntro(""))
}

func TestSectionContextMap(t *testing.T) {
	questions := []Question{
		{EntryID: "1", Text: "1. The train leaves at 9.\na) when?"},
		{EntryID: "2", Text: "a) When does it leave?"},
		{EntryID: "3", Text: "б) Откуда?"},
		{EntryID: "4", Text: "Free comment"},
		{EntryID: "", Text: "c) no entry"},
		{EntryID: "5", Text: "2. Second section"},
		{EntryID: "6", Text: "B. Next part"},
		{EntryID: "7", Text: "   "},
	}

	want := map[string]string{
		"2": "1. The train leaves at 9.",
		"3": "1. The train leaves at 9.",
		"6": "2. Second section",
	}
	if diff := cmp.Diff(want, SectionContextMap(questions)); diff != "" {
		t.Fatalf("context map mismatch (-want +got):\n%s", diff)
	}
}

func TestSectionContextMapWithoutSection(t *testing.T) {
	got := SectionContextMap([]Question{{EntryID: "1", Text: "a) orphan subpart"}})
	require.Empty(t, got)
}
