package notes

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "notebot/pkg/errors"
	"notebot/pkg/models"
)

func TestDescriptorTable(t *testing.T) {
	assert.Len(t, KnownTypes(), 53)
	for _, name := range KnownTypes() {
		in := Resolve(name)
		assert.Equal(t, Known, in.Source, name)
		assert.NotEmpty(t, in.Text, name)
	}
}

func TestResolve(t *testing.T) {
	in := Resolve("Action Items")
	assert.Equal(t, Known, in.Source)
	assert.Equal(t, "List any actionable tasks, assignments, or follow-ups identified during the conversation.", in.Text)

	in = Resolve("Unknown Type")
	assert.Equal(t, Fallback, in.Source)
	assert.Equal(t, "Provide details for 'Unknown Type'.", in.Text)
}

func sampleMetadata() *models.CallMetadata {
	return &models.CallMetadata{
		Date:     time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		CallType: "Sales Call",
		Participants: []models.Participant{
			{Name: "Dana", Role: "Account Executive", IsHost: true},
			{Name: "Lee", Role: "Buyer"},
		},
		NoteTypes: []string{"Action Items", "Unknown Type"},
	}
}

func TestBuildPrompt(t *testing.T) {
	utterances := []models.Utterance{
		{Speaker: "A", Start: 0, End: 1200, Text: "Thanks for joining."},
		{Speaker: "B", Start: 1300, End: 2000, Text: "Happy to be here."},
	}

	p := BuildPrompt(sampleMetadata(), utterances)

	assert.Equal(t, "Speaker A: Thanks for joining.\nSpeaker B: Happy to be here.", p.User)
	assert.Contains(t, p.System, "trained to assist Account Executive based on")
	assert.Contains(t, p.System, "transcription from a Sales Call,")
	assert.Contains(t, p.System, "The call includes 2 participants: Dana, Lee.")
	assert.Contains(t, p.System, "'No additional notes provided.'")
	assert.Contains(t, p.System,
		`"Action Items": "List any actionable tasks, assignments, or follow-ups identified during the conversation. (Use Markdown Formatting in this response)."`)
	assert.Contains(t, p.System,
		`"Unknown Type": "Provide details for 'Unknown Type'. (Use Markdown Formatting in this response)."`)
	assert.Contains(t, p.System, `"note_type_responses"`)
}

func TestBuildPromptUsesNotes(t *testing.T) {
	meta := sampleMetadata()
	meta.Notes = "Renewal due in June"
	p := BuildPrompt(meta, nil)
	assert.Contains(t, p.System, "'Renewal due in June'")
	assert.NotContains(t, p.System, noNotes)
	assert.Empty(t, p.User)
}

func TestParseSummary(t *testing.T) {
	requested := []string{"Action Items", "Unknown Type"}

	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "plain json",
			raw:  `{"title":"Renewal","note_type_responses":{"Action Items":"- send quote","Unknown Type":"n/a"}}`,
		},
		{
			name: "json fence",
			raw:  "```json\n{\"title\":\"Renewal\",\"note_type_responses\":{\"Action Items\":\"- send quote\",\"Unknown Type\":\"n/a\"}}\n```",
		},
		{
			name: "bare fence with padding",
			raw:  "  ```\n{\"title\":\"Renewal\",\"note_type_responses\":{\"Action Items\":\"- send quote\",\"Unknown Type\":\"n/a\",\"Extra\":\"dropped\"}}\n```  ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseSummary(tt.raw, requested)
			require.NoError(t, err)
			assert.Equal(t, "Renewal", s.Title)
			assert.Equal(t, map[string]string{
				"Action Items": "- send quote",
				"Unknown Type": "n/a",
			}, s.NoteTypeResponses)
		})
	}
}

func TestParseSummaryRejects(t *testing.T) {
	requested := []string{"Action Items"}

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain text", "Here are your notes: call went well.", "not a JSON object"},
		{"json array", `["title"]`, "not a JSON object"},
		{"missing title", `{"note_type_responses":{"Action Items":"x"}}`, `missing "title"`},
		{"missing responses", `{"title":"t"}`, `missing "note_type_responses"`},
		{"extra key", `{"title":"t","note_type_responses":{"Action Items":"x"},"summary":"y"}`, "unexpected keys summary"},
		{"title not string", `{"title":3,"note_type_responses":{"Action Items":"x"}}`, `"title" is not a string`},
		{"responses not strings", `{"title":"t","note_type_responses":{"Action Items":["x"]}}`, "not an object of strings"},
		{"responses null", `{"title":"t","note_type_responses":null}`, "is null"},
		{"requested type missing", `{"title":"t","note_type_responses":{"Other":"x"}}`, "no entry for Action Items"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSummary(tt.raw, requested)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrSummarizationFormatError)
			assert.True(t, strings.Contains(err.Error(), tt.want), "got %q", err.Error())
		})
	}
}
