package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDetails = `{
	"date": "2024-11-02T09:30:00",
	"callType": "Client Meeting",
	"notes": "quarterly review",
	"participants": [
		{"name": "Ana", "role": "Account Manager", "isHost": true},
		{"name": "Ben", "role": "Engineer", "isHost": false},
		{"name": "Cleo", "isHost": true}
	],
	"notetype": ["Action Items", "Unknown Type"],
	"minutes_elapsed": 42.5
}`

func TestParseCallMetadata(t *testing.T) {
	m, err := ParseCallMetadata([]byte(sampleDetails))
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 11, 2, 9, 30, 0, 0, time.UTC), m.Date)
	assert.Equal(t, "Client Meeting", m.CallType)
	assert.Equal(t, []string{"Action Items", "Unknown Type"}, m.NoteTypes)
	assert.InDelta(t, 42.5, m.MinutesElapsed, 1e-9)
	assert.Equal(t, []string{"Account Manager"}, m.HostRoles())
	assert.Equal(t, []string{"Ana", "Ben", "Cleo"}, m.ParticipantNames())
	for _, p := range m.Participants {
		assert.NotEmpty(t, p.ID)
	}
}

func TestParseCallMetadataDates(t *testing.T) {
	tests := []struct {
		name string
		date string
		want time.Time
	}{
		{"rfc3339 with offset", `"2024-01-01T10:00:00+02:00"`, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)},
		{"naive", `"2024-01-01T10:00:00"`, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
		{"unix seconds", `1704103200`, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseCallMetadata([]byte(`{"date": ` + tt.date + `, "notes": "", "participants": [], "notetype": [], "minutes_elapsed": 1}`))
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(m.Date), "got %v", m.Date)
		})
	}
}

func TestParseCallMetadataRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"date": "2024-01-01"`},
		{"bad date", `{"date": "yesterday", "notetype": []}`},
		{"missing date", `{"notes": "x", "notetype": []}`},
		{"participant without name", `{"date": "2024-01-01", "participants": [{"role": "x"}], "notetype": []}`},
		{"negative minutes", `{"date": "2024-01-01", "notetype": [], "minutes_elapsed": -1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCallMetadata([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	m, err := ParseCallMetadata([]byte(sampleDetails))
	require.NoError(t, err)

	c := m.Clone()
	c.NoteTypes[0] = "changed"
	c.Participants[0].Name = "changed"
	assert.Equal(t, "Action Items", m.NoteTypes[0])
	assert.Equal(t, "Ana", m.Participants[0].Name)

	var nilMeta *CallMetadata
	assert.Nil(t, nilMeta.Clone())
}

func TestUploadSessionCompletion(t *testing.T) {
	s := UploadSession{TotalChunks: 2, ReceivedIndices: []int{1}}
	assert.False(t, s.IsComplete())
	s.ReceivedIndices = append(s.ReceivedIndices, 0)
	assert.True(t, s.IsComplete())
	assert.Equal(t, 2, s.Received())

	assert.True(t, SessionExpired.IsTerminal())
	assert.False(t, SessionAssembling.IsTerminal())
}
