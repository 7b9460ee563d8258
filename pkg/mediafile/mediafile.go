// Package mediafile recognizes the file formats a library can hold.
package mediafile

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
)

// Class is the role a recognized file plays when grouping files into books.
type Class int

const (
	// ClassIgnored is anything that isn't a known format.
	ClassIgnored Class = iota
	// ClassBook is a standalone book format (ebook, comic, single-file audiobook).
	ClassBook
	// ClassAudio is an audio track. Audio files are book formats too, but a directory holding
	// several of them may be a folder audiobook.
	ClassAudio
	// ClassSupplement is a recognized file that is never a book on its own (cover art).
	ClassSupplement
)

func (c Class) String() string {
	switch c {
	case ClassBook:
		return "book"
	case ClassAudio:
		return "audio"
	case ClassSupplement:
		return "supplement"
	default:
		return "ignored"
	}
}

// IsBookFormat reports whether files of this class carry the book-format flag.
func (c Class) IsBookFormat() bool {
	return c == ClassBook || c == ClassAudio
}

type Format struct {
	// Ext is the lowercase extension without the leading dot.
	Ext       string
	Class     Class
	MimeTypes []string
}

var formats = map[string]Format{
	"epub": {"epub", ClassBook, []string{"application/epub+zip"}},
	"pdf":  {"pdf", ClassBook, []string{"application/pdf"}},
	"mobi": {"mobi", ClassBook, []string{"application/x-mobipocket-ebook"}},
	"azw":  {"azw", ClassBook, nil},
	"azw3": {"azw3", ClassBook, nil},
	"fb2":  {"fb2", ClassBook, nil},
	"djvu": {"djvu", ClassBook, []string{"image/vnd.djvu"}},
	"cbz":  {"cbz", ClassBook, nil},
	"cbr":  {"cbr", ClassBook, nil},
	"m4b":  {"m4b", ClassAudio, nil},
	"mp3":  {"mp3", ClassAudio, []string{"audio/mpeg"}},
	"m4a":  {"m4a", ClassAudio, []string{"audio/x-m4a", "audio/mp4"}},
	"flac": {"flac", ClassAudio, []string{"audio/flac"}},
	"ogg":  {"ogg", ClassAudio, []string{"audio/ogg"}},
	"opus": {"opus", ClassAudio, []string{"audio/opus"}},
	"aac":  {"aac", ClassAudio, []string{"audio/aac"}},
	"wav":  {"wav", ClassAudio, []string{"audio/wav"}},
	"jpg":  {"jpg", ClassSupplement, []string{"image/jpeg"}},
	"jpeg": {"jpeg", ClassSupplement, nil},
	"png":  {"png", ClassSupplement, []string{"image/png"}},
	"webp": {"webp", ClassSupplement, []string{"image/webp"}},
}

var formatsByMimeType = func() map[string]Format {
	index := make(map[string]Format)
	for _, f := range formats {
		for _, m := range f.MimeTypes {
			index[m] = f
		}
	}
	return index
}()

// Lookup returns the format registered for a token like "epub" or "PDF".
func Lookup(token string) (Format, bool) {
	f, ok := formats[strings.ToLower(token)]
	return f, ok
}

// Ext returns the known format extension of name, or "" when the final dot-suffix isn't one.
// "Dr. Seuss" has no extension; "Dune.EPUB" has "epub".
func Ext(name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return ""
	}
	if f, ok := Lookup(ext[1:]); ok {
		return f.Ext
	}
	return ""
}

// Classify works out the format of the file at path. The extension decides when it's a known
// one; otherwise the content is sniffed. Unrecognized files come back with ClassIgnored and a
// nil error.
func Classify(path string) (Format, error) {
	if ext := Ext(path); ext != "" {
		return formats[ext], nil
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return Format{}, errors.WithStack(err)
	}
	for m := mtype; m != nil; m = m.Parent() {
		if f, ok := formatsByMimeType[m.String()]; ok {
			return f, nil
		}
	}
	return Format{Class: ClassIgnored}, nil
}
