package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"spaces and tabs", "Software \t  Engineer", "Software Engineer"},
		{"trim lines", "  line one  \n\t line two ", "line one\nline two"},
		{"blank lines", "a\n\n\n\n\nb", "a\n\nb"},
		{"crlf", "a\r\nb\r\n\r\n\r\nc", "a\nb\n\nc"},
		{"nbsp", "Deadline:\u00a0March\u00a01", "Deadline: March 1"},
		{"nfkc ligature", "ﬁnance", "finance"},
		{"whitespace only", " \n\t\n ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestClean_Idempotent(t *testing.T) {
	in := "  Acme   Corp \n\n\n\n Intern  "
	assert.Equal(t, Clean(in), Clean(Clean(in)))
}

func TestLen(t *testing.T) {
	assert.Equal(t, 3, Len("  a b  "))
	assert.Equal(t, 1, Len("\u00e9"), "counts runes, not bytes")
}
