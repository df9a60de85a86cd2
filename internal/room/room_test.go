package room

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "ABCD", Normalize("  abcd "))
	assert.Equal(t, "X1Y2", Normalize("x1Y2"))
}

func TestGenerate(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := Generate()
		require.NoError(t, err)
		assert.Len(t, code, CodeLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(alphabet, r), "unexpected rune %q", r)
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 95)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "bare code", input: "abcd", want: "ABCD"},
		{name: "share link", input: "https://warpcall.qzz.io/r/k3j9x0qa", want: "K3J9X0QA"},
		{name: "trailing slash", input: "https://warpcall.qzz.io/r/ABCD/", want: "ABCD"},
		{name: "host only", input: "warpcall.qzz.io/r/abcd", want: "ABCD"},
		{name: "no code in link", input: "https://warpcall.qzz.io/", wantErr: true},
		{name: "empty", input: "   ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLink(t *testing.T) {
	assert.Equal(t, "https://example.com/r/ABCD", Link("example.com", "ABCD"))
}
