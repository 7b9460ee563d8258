package models

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type LibraryPath struct {
	bun.BaseModel `bun:"table:library_paths,alias:lp"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	LibraryID int       `bun:",nullzero" json:"library_id"`
	Filepath  string    `bun:",nullzero" json:"filepath"`
}

// Rel returns the slash-separated location of target relative to this library path. The second
// return value is false when target is not inside the library path.
func (lp *LibraryPath) Rel(target string) (string, bool) {
	root := filepath.Clean(lp.Filepath)
	target = filepath.Clean(target)
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	if rel == "." {
		return "", true
	}
	return filepath.ToSlash(rel), true
}
