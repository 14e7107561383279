package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Participant is one person on the recorded call.
type Participant struct {
	ID              string `json:"id,omitempty"`
	Name            string `json:"name" validate:"required"`
	Role            string `json:"role"`
	IsHost          bool   `json:"isHost"`
	AdditionalNotes string `json:"additionalNotes,omitempty"`
}

// CallMetadata is the caller-supplied description of a recording. It is
// captured once per session and never modified afterwards.
type CallMetadata struct {
	Date           time.Time     `json:"date" validate:"required"`
	CallType       string        `json:"callType,omitempty"`
	Notes          string        `json:"notes"`
	Participants   []Participant `json:"participants" validate:"dive"`
	NoteTypes      []string      `json:"notetype" validate:"dive,required"`
	MinutesElapsed float64       `json:"minutes_elapsed" validate:"gte=0"`
	AudioFileURL   string        `json:"audioFileURL,omitempty"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func metadataValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// dateLayouts covers RFC 3339 and the zone-less ISO forms mobile clients send.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDate parses an ISO-8601 date; values without a zone are taken as UTC.
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", value)
}

// UnmarshalJSON accepts the date as an ISO string or a unix timestamp.
func (m *CallMetadata) UnmarshalJSON(data []byte) error {
	type plain CallMetadata
	var raw struct {
		plain
		Date json.RawMessage `json:"date"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = CallMetadata(raw.plain)

	if len(raw.Date) == 0 || string(raw.Date) == "null" {
		m.Date = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(raw.Date, &s); err == nil {
		d, err := parseDate(s)
		if err != nil {
			return err
		}
		m.Date = d
		return nil
	}
	var unix float64
	if err := json.Unmarshal(raw.Date, &unix); err != nil {
		return fmt.Errorf("date must be a string or a number")
	}
	sec := int64(unix)
	m.Date = time.Unix(sec, int64((unix-float64(sec))*1e9)).UTC()
	return nil
}

// Validate checks struct constraints and fills participant ids.
func (m *CallMetadata) Validate() error {
	if err := metadataValidator().Struct(m); err != nil {
		return err
	}
	for i := range m.Participants {
		if m.Participants[i].ID == "" {
			m.Participants[i].ID = uuid.NewString()
		}
	}
	return nil
}

// ParseCallMetadata decodes and validates the call_details form field.
func ParseCallMetadata(data []byte) (*CallMetadata, error) {
	var m CallMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode call details: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("validate call details: %w", err)
	}
	return &m, nil
}

// HostRoles returns the roles of participants flagged as hosts.
func (m *CallMetadata) HostRoles() []string {
	hosts := lo.Filter(m.Participants, func(p Participant, _ int) bool { return p.IsHost })
	return lo.FilterMap(hosts, func(p Participant, _ int) (string, bool) {
		return p.Role, p.Role != ""
	})
}

// ParticipantNames returns every participant name in call order.
func (m *CallMetadata) ParticipantNames() []string {
	return lo.Map(m.Participants, func(p Participant, _ int) string { return p.Name })
}

// Clone returns a deep copy.
func (m *CallMetadata) Clone() *CallMetadata {
	if m == nil {
		return nil
	}
	c := *m
	c.Participants = append([]Participant(nil), m.Participants...)
	c.NoteTypes = append([]string(nil), m.NoteTypes...)
	return &c
}
