package testutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONAsserter(t *testing.T) {
	tests := []struct {
		name     string
		opts     []Option
		actual   string
		expected string
		match    bool
	}{
		{"equal", nil, `{"hr":72,"mode":"computed"}`, `{"mode":"computed","hr":72}`, true},
		{"value differs", nil, `{"hr":71}`, `{"hr":72}`, false},
		{"extra key fails by default", nil, `{"hr":72,"ts":1}`, `{"hr":72}`, false},
		{"extra key ignored", []Option{WithIgnoreExtraKeys(true)}, `{"hr":72,"ts":1}`, `{"hr":72}`, true},
		{"presence placeholder", nil, `{"hr":72,"session":"abc"}`, `{"hr":72,"session":"<<PRESENCE>>"}`, true},
		{"presence requires key", nil, `{"hr":72}`, `{"hr":72,"session":"<<PRESENCE>>"}`, false},
		{"placeholder disabled", []Option{WithAllowPresencePlaceholder(false)}, `{"s":"abc"}`, `{"s":"<<PRESENCE>>"}`, false},
		{"ignored fields", []Option{WithIgnoredFields("ts")}, `{"hr":72,"ts":1}`, `{"hr":72,"ts":2}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff := NewJSONAsserter(&recordingT{}).WithOptions(tt.opts...).Diff(tt.actual, tt.expected)
			assert.Equal(t, tt.match, diff == "", diff)
		})
	}
}

func TestJSONAsserter_InvalidJSON(t *testing.T) {
	rt := &recordingT{}
	assert.False(t, NewJSONAsserter(rt).Assert(`{`, `{}`))
	require.Len(t, rt.errors, 1)
	assert.Contains(t, rt.errors[0], "invalid actual JSON")
}
