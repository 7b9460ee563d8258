// Package grouping turns file names into comparison keys and scores how alike two keys are.
package grouping

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/shishobooks/shelfwatch/pkg/mediafile"
	"golang.org/x/text/unicode/norm"
)

var (
	bracketedRE       = regexp.MustCompile(`[(\[]\s*([^()\[\]]*?)\s*[)\]]`)
	trailingArticleRE = regexp.MustCompile(`(?i)^(.+?),\s*(the|a|an)$`)
)

const attributionSep = " - "

// Key returns the grouping key for a file or folder name. Names that differ only by a known
// format extension, a bracketed format tag, underscores, a trailing " - Author" attribution, a
// trailing article, or case and spacing share a key:
//
//	Key("Dune.epub") == Key("Dune (PDF).pdf") == "dune"
//	Key("Hobbit, The - J.R.R. Tolkien.m4b") == "the hobbit"
//
// Only a name with a single " - " separator loses its tail, so "Series - Title - Author" keeps
// its title and distinct volumes of a series never share a key.
//
// Key is idempotent: normalize is applied until it stops changing the name. After the first
// pass every change shortens the name, so the loop always settles.
func Key(name string) string {
	key := normalize(name)
	for {
		next := normalize(key)
		if next == key {
			return key
		}
		key = next
	}
}

func normalize(s string) string {
	s = strings.ToLower(norm.NFKC.String(s))

	if mediafile.Ext(s) != "" {
		s = strings.TrimSuffix(s, filepath.Ext(s))
	}

	s = bracketedRE.ReplaceAllStringFunc(s, func(match string) string {
		inner := bracketedRE.FindStringSubmatch(match)[1]
		if _, ok := mediafile.Lookup(inner); ok {
			return " "
		}
		return match
	})

	s = strings.ReplaceAll(s, "_", " ")
	s = strings.Join(strings.Fields(s), " ")

	if strings.Count(s, attributionSep) == 1 {
		if idx := strings.Index(s, attributionSep); idx > 0 && idx+len(attributionSep) < len(s) {
			s = s[:idx]
		}
	}

	if m := trailingArticleRE.FindStringSubmatch(s); m != nil {
		s = m[2] + " " + m[1]
	}

	return strings.Join(strings.Fields(s), " ")
}
