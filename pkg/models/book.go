package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	DataSourceManual   = "manual"
	DataSourceFilepath = "filepath"
)

type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID          int        `bun:",pk,nullzero" json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LibraryID   int        `bun:",nullzero" json:"library_id"`
	Library     *Library   `bun:"rel:belongs-to" json:"library,omitempty"`
	Title       string     `bun:",nullzero" json:"title"`
	TitleSource string     `bun:",nullzero" json:"title_source"`
	Files       []*File    `bun:"rel:has-many" json:"files"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the book has been soft-deleted.
func (b *Book) IsDeleted() bool {
	return b.DeletedAt != nil
}
