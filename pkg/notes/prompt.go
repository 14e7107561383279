package notes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"notebot/pkg/models"
)

const noNotes = "No additional notes provided."

// Prompt is the two-part input of one summarization call.
type Prompt struct {
	System string
	User   string
}

// BuildPrompt renders the system instructions from the call metadata and
// the user content from the transcript.
func BuildPrompt(meta *models.CallMetadata, utterances []models.Utterance) Prompt {
	return Prompt{
		System: systemMessage(meta),
		User:   RenderTranscript(utterances),
	}
}

// RenderTranscript writes one "Speaker X: text" line per utterance.
func RenderTranscript(utterances []models.Utterance) string {
	lines := lo.Map(utterances, func(u models.Utterance, _ int) string {
		return fmt.Sprintf("Speaker %s: %s", u.Speaker, u.Text)
	})
	return strings.Join(lines, "\n")
}

// Instructions resolves each requested note type once, keeping request order.
func Instructions(noteTypes []string) []Instruction {
	return lo.Map(lo.Uniq(noteTypes), func(t string, _ int) Instruction { return Resolve(t) })
}

func systemMessage(meta *models.CallMetadata) string {
	if meta == nil {
		meta = &models.CallMetadata{}
	}

	notes := strings.TrimSpace(meta.Notes)
	if notes == "" {
		notes = noNotes
	}
	callType := meta.CallType
	if callType == "" {
		callType = "call"
	}
	roles := strings.Join(meta.HostRoles(), ", ")
	if roles == "" {
		roles = "the call participants"
	}

	requests := lo.Map(Instructions(meta.NoteTypes), func(in Instruction, _ int) string {
		return fmt.Sprintf("        %s: %s", quote(in.NoteType), quote(in.Text+" (Use Markdown Formatting in this response)."))
	})

	var b strings.Builder
	fmt.Fprintf(&b, "You are a highly skilled AI specializing in conversation analysis and trained to assist %s based on their specific responsibilities and tasks.\n", roles)
	fmt.Fprintf(&b, "Based on the following transcription from a %s, please generate the requested information for each of the specified note types.\n", callType)
	fmt.Fprintf(&b, "The call includes %d participants: %s.\n", len(meta.Participants), strings.Join(meta.ParticipantNames(), ", "))
	fmt.Fprintf(&b, "Additional context provided in the notes: '%s'.\n\n", notes)
	b.WriteString("Please respond in JSON format, ensuring that the values of each key are written in Markdown.\n\n")
	b.WriteString("Important: Respond **only** in the following JSON format and nothing else:\n\n")
	b.WriteString("{\n")
	b.WriteString("    \"title\": \"Your title summarizing the main focus here.\",\n")
	b.WriteString("    \"note_type_responses\": {\n")
	b.WriteString(strings.Join(requests, ",\n"))
	b.WriteString("\n    }\n}\n")
	return b.String()
}

// quote renders s as a JSON string without HTML escaping, so names like
// "Q&A Highlights" reach the model unchanged.
func quote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Sprintf("%q", s)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
