package models

import (
	"path"
	"path/filepath"
	"time"

	"github.com/uptrace/bun"
)

const (
	FileRoleMain       = "main"
	FileRoleSupplement = "supplement"
)

// FileTypeFolder is the file type recorded for folder-based audiobooks.
const FileTypeFolder = "folder"

type File struct {
	bun.BaseModel `bun:"table:files,alias:f"`

	ID            int          `bun:",pk,nullzero" json:"id"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	LibraryID     int          `bun:",nullzero" json:"library_id"`
	LibraryPathID int          `bun:",nullzero" json:"library_path_id"`
	LibraryPath   *LibraryPath `bun:"rel:belongs-to,join:library_path_id=id" json:"library_path,omitempty"`
	BookID        int          `bun:",nullzero" json:"book_id"`
	Book          *Book        `bun:"rel:belongs-to" json:"book,omitempty"`
	// SubPath is the directory containing the file, relative to the library path and always
	// slash-separated. Files at the root of a library path have an empty SubPath.
	SubPath       string    `bun:",notnull" json:"sub_path"`
	Name          string    `bun:",nullzero" json:"name"`
	FileType      string    `bun:",nullzero" json:"file_type"`
	FileRole      string    `bun:",nullzero,default:'main'" json:"file_role"`
	FolderBased   bool      `bun:",notnull" json:"folder_based"`
	ContentHash   string    `bun:",nullzero" json:"content_hash"`
	FilesizeBytes int64     `json:"filesize_bytes"`
	FileCreatedAt time.Time `bun:",nullzero" json:"file_created_at"`
}

// IsBookFormat reports whether the file is a main book format rather than a supplement.
func (f *File) IsBookFormat() bool {
	return f.FileRole == "" || f.FileRole == FileRoleMain
}

// RelativePath returns the slash-separated path of the file relative to its library path.
func (f *File) RelativePath() string {
	return path.Join(f.SubPath, f.Name)
}

// Filepath resolves the absolute location of the file under the given library path root.
func (f *File) Filepath(root string) string {
	return filepath.Join(root, filepath.FromSlash(f.SubPath), f.Name)
}
