package notes

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/samber/lo"

	apperrors "notebot/pkg/errors"
)

// Summary is the validated answer of the summarizer.
type Summary struct {
	Title             string            `json:"title"`
	NoteTypeResponses map[string]string `json:"note_type_responses"`
}

// ParseSummary strips an optional Markdown code fence from raw and decodes
// it. The object must hold exactly "title" and "note_type_responses", and
// the responses must cover every requested note type. Entries for note
// types that were not requested are dropped.
func ParseSummary(raw string, requested []string) (Summary, error) {
	body := stripFence(raw)

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &top); err != nil {
		return Summary{}, apperrors.Wrap(err, apperrors.KindSummarizationFormatError, "summarizer response is not a JSON object")
	}

	var extra []string
	for key := range top {
		if key != "title" && key != "note_type_responses" {
			extra = append(extra, key)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return Summary{}, apperrors.Newf(apperrors.KindSummarizationFormatError,
			"summarizer response has unexpected keys %s", strings.Join(extra, ", "))
	}

	rawTitle, ok := top["title"]
	if !ok {
		return Summary{}, apperrors.New(apperrors.KindSummarizationFormatError, `summarizer response is missing "title"`)
	}
	rawResponses, ok := top["note_type_responses"]
	if !ok {
		return Summary{}, apperrors.New(apperrors.KindSummarizationFormatError, `summarizer response is missing "note_type_responses"`)
	}

	var summary Summary
	if err := json.Unmarshal(rawTitle, &summary.Title); err != nil {
		return Summary{}, apperrors.Wrap(err, apperrors.KindSummarizationFormatError, `"title" is not a string`)
	}
	var responses map[string]string
	if err := json.Unmarshal(rawResponses, &responses); err != nil {
		return Summary{}, apperrors.Wrap(err, apperrors.KindSummarizationFormatError,
			`"note_type_responses" is not an object of strings`)
	}
	if responses == nil {
		return Summary{}, apperrors.New(apperrors.KindSummarizationFormatError, `"note_type_responses" is null`)
	}

	wanted := lo.Uniq(requested)
	missing := lo.Filter(wanted, func(t string, _ int) bool {
		_, ok := responses[t]
		return !ok
	})
	if len(missing) > 0 {
		return Summary{}, apperrors.Newf(apperrors.KindSummarizationFormatError,
			"summarizer response has no entry for %s", strings.Join(missing, ", "))
	}

	summary.NoteTypeResponses = lo.PickByKeys(responses, wanted)
	return summary, nil
}

func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
