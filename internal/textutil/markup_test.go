package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripMarkup(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"nbsp and nested tags", "<p>Hello&nbsp;<b>world</b></p>", "Hello world"},
		{"whitespace runs", "  one \n\t two  ", "one two"},
		{"adjacent tags keep words apart", "<li>a</li><li>b</li>", "a b"},
		{"unterminated bracket", "a < b and c", "a < b and c"},
		{"greedy on nested brackets", "x <a <b> c> y", "x c> y"},
		{"only markup", "<br/><hr>", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripMarkup(tt.in))
		})
	}
}

func TestTruncateIsRuneSafe(t *testing.T) {
	assert.Equal(t, "héll", Truncate("héllo", 4))
	assert.Equal(t, "hi", Truncate("hi", 10))
	assert.Equal(t, "", Truncate("hi", 0))
}

func TestIndexRunesAfterFolding(t *testing.T) {
	s := FoldRunes("Grüße an ÄRGER")
	assert.Equal(t, 9, IndexRunes(s, FoldRunes("ärger")))
	assert.Equal(t, -1, IndexRunes(s, FoldRunes("zzz")))
	assert.Equal(t, 0, IndexRunes(s, nil))
	assert.True(t, ContainsFold("Budget Planning", "BUDGET"))
}
