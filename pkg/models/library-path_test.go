package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLibraryPathRel(t *testing.T) {
	lp := &LibraryPath{Filepath: "/lib"}

	tests := []struct {
		name     string
		target   string
		expected string
		ok       bool
	}{
		{"root itself", "/lib", "", true},
		{"file at root", "/lib/dune.epub", "dune.epub", true},
		{"nested", "/lib/series/book1.epub", "series/book1.epub", true},
		{"trailing slash root", "/lib/", "", true},
		{"outside", "/library/dune.epub", "", false},
		{"parent", "/", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel, ok := lp.Rel(tt.target)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, rel)
		})
	}
}

func TestFileLocation(t *testing.T) {
	f := &File{SubPath: "american gods", Name: "american gods.epub"}
	assert.Equal(t, "american gods/american gods.epub", f.RelativePath())
	assert.Equal(t, "/lib/american gods/american gods.epub", f.Filepath("/lib"))

	root := &File{Name: "dune.epub"}
	assert.Equal(t, "dune.epub", root.RelativePath())
	assert.True(t, root.IsBookFormat())
}
