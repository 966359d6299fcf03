package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripThinkTags(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no tags", "plain answer", "plain answer"},
		{"single block", "<think>reasoning here</think>the answer", "the answer"},
		{"multiline block", "prefix <think>line one\nline two</think> suffix", "prefix  suffix"},
		{"multiple blocks", "<think>a</think>one<think>b</think>two", "onetwo"},
		{"unclosed tag kept", "<think>never closed", "<think>never closed"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripThinkTags(tt.in))
		})
	}
}

func TestStripThinkTagsIdempotent(t *testing.T) {
	in := "<think>reasoning</think>final text"
	once := StripThinkTags(in)
	assert.Equal(t, once, StripThinkTags(once))
}
