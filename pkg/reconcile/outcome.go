package reconcile

import (
	"github.com/shishobooks/shelfwatch/pkg/mediafile"
)

// Outcome is what reconciling one path did to the catalog.
type Outcome int

const (
	// OutcomeSkipped means nothing changed: the path was unknown, unreadable or unplaceable.
	OutcomeSkipped Outcome = iota
	// OutcomeMove means a file with identical content was found elsewhere and now points here.
	OutcomeMove
	// OutcomeUnchanged means the catalog already had this content at this location.
	OutcomeUnchanged
	// OutcomeRefreshed means the file already catalogued at this location has new content.
	OutcomeRefreshed
	// OutcomeFilelessAttach means the file became the first file of a fileless book.
	OutcomeFilelessAttach
	// OutcomeFormatAttach means the file joined a book with a file in the same directory.
	OutcomeFormatAttach
	// OutcomeParentAttach means the audiobook folder joined a book with a file beside the folder.
	OutcomeParentAttach
	// OutcomeNewBook means a new book was ingested for the file.
	OutcomeNewBook
	// OutcomeSupplementAttach means a supplement joined a book with a file in the same directory.
	OutcomeSupplementAttach
	// OutcomeFileDeleted means a file was removed from a book that still has other files.
	OutcomeFileDeleted
	// OutcomeBookDeleted means the book's last file went away and the book was soft-deleted.
	OutcomeBookDeleted
	// OutcomeFolderDeleted means every book under a removed folder was soft-deleted.
	OutcomeFolderDeleted
)

var outcomeNames = map[Outcome]string{
	OutcomeSkipped:          "skipped",
	OutcomeMove:             "move",
	OutcomeUnchanged:        "unchanged",
	OutcomeRefreshed:        "refreshed",
	OutcomeFilelessAttach:   "fileless_attach",
	OutcomeFormatAttach:     "format_attach",
	OutcomeParentAttach:     "parent_attach",
	OutcomeNewBook:          "new_book",
	OutcomeSupplementAttach: "supplement_attach",
	OutcomeFileDeleted:      "file_deleted",
	OutcomeBookDeleted:      "book_deleted",
	OutcomeFolderDeleted:    "folder_deleted",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// Candidate is a settled path inside a library path.
type Candidate struct {
	LibraryID     int
	LibraryPathID int
	// Path is absolute.
	Path string
	// FolderBased marks a directory being catalogued as a single audiobook.
	FolderBased bool
	// Format is the classified format of a file. It's looked up when left empty.
	Format mediafile.Format
}

type Result struct {
	Outcome Outcome
	BookID  int
	FileID  int
	// Score is the similarity that decided a fuzzy attach.
	Score float64
	// BookIDs lists every book soft-deleted by a removal.
	BookIDs []int
}
