package extract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sanitizeToMap(t *testing.T, in string) (map[string]any, []string) {
	t.Helper()
	out, dropped, err := SanitizeFields([]byte(in), nil)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))
	return m, dropped
}

func TestSanitizeCanonicalizesDiscipline(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", `{"horse_name":"Bella","discipline":"dressage"}`, "Dressage"},
		{"synonym", `{"horse_name":"Bella","discipline":"dressage test"}`, "Dressage"},
		{"jumping synonym", `{"horse_name":"Bella","discipline":"show jumping"}`, "ShowJumping"},
		{"already canonical", `{"horse_name":"Bella","discipline":"Eventing"}`, "Eventing"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, _ := sanitizeToMap(t, tc.in)
			assert.Equal(t, tc.want, m["discipline"])
		})
	}
}

func TestSanitizeKeepsUnrecognizedDiscipline(t *testing.T) {
	m, _ := sanitizeToMap(t, `{"horse_name":"Bella","discipline":"western pleasure"}`)
	assert.Equal(t, "western pleasure", m["discipline"])
}

func TestSanitizeCoercesPercentageString(t *testing.T) {
	m, _ := sanitizeToMap(t, `{"horse_name":"Bella","percentage":"68.5%"}`)
	assert.Equal(t, 68.5, m["percentage"])
}

func TestSanitizeDropsUnknownKeys(t *testing.T) {
	m, dropped := sanitizeToMap(t, `{"horse_name":"Bella","arena_size":"20x60"}`)
	_, ok := m["arena_size"]
	assert.False(t, ok)
	assert.Contains(t, dropped, "arena_size(unknown)")
}
