package releasenotes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffAdded(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		old, new string
		want     []string
	}{
		{name: "added lines", old: "A\nB\nC", new: "A\nB\nD\nE", want: []string{"D", "E"}},
		{name: "reordered", old: "C\nB\nA", new: "E\nA\nD\nB", want: []string{"E", "D"}},
		{name: "duplicates collapse", old: "A", new: "A\nA\nB", want: []string{"B"}},
		{name: "repeated new line reported once", old: "A", new: "B\nA\nB", want: []string{"B"}},
		{name: "no trimming", old: "A", new: " A\nA ", want: []string{" A", "A "}},
		{name: "identical", old: "A\nB", new: "A\nB", want: nil},
		{name: "empty old", old: "", new: "A\n", want: []string{"A"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DiffAdded(tt.old, tt.new))
		})
	}
}

func TestDiffAddedAsSet(t *testing.T) {
	t.Parallel()
	assert.ElementsMatch(t, []string{"D", "E"}, DiffAdded("A\nB\nC", "E\nA\nB\nD"))
}
