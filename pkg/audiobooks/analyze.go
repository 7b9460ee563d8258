// Package audiobooks decides whether a directory is a folder-based audiobook.
package audiobooks

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfwatch/pkg/grouping"
	"github.com/shishobooks/shelfwatch/pkg/mediafile"
)

type Kind int

const (
	// KindContainer is a directory whose files are books of their own.
	KindContainer Kind = iota
	// KindFolderAudiobook is a directory that is one audiobook split into tracks.
	KindFolderAudiobook
)

func (k Kind) String() string {
	if k == KindFolderAudiobook {
		return "folder_audiobook"
	}
	return "container"
}

// MinTracks is the number of audio files a directory needs to be a folder audiobook.
const MinTracks = 2

type Entry struct {
	Path   string
	Format mediafile.Format
}

type Analysis struct {
	Dir  string
	Kind Kind
	// Audio holds every audio file, including ones in nested directories.
	Audio []Entry
	// Companions are non-audio recognized files directly inside Dir whose grouping key matches
	// the directory's. They're other formats of the same work and don't break the audiobook.
	Companions []Entry
	// Stray are the recognized files that are neither audio nor companions.
	Stray []Entry
	// Recognized is every recognized file under Dir, sorted by path.
	Recognized []Entry
}

// Analyze walks dir and classifies it. tracked are paths seen while dir was still settling;
// they're folded into the result when they still exist. A file that can't be classified is
// logged and left out. Failing to walk dir itself is returned as an error.
func Analyze(ctx context.Context, dir string, tracked []string) (*Analysis, error) {
	log := logger.FromContext(ctx)
	dir = filepath.Clean(dir)
	dirKey := grouping.Key(filepath.Base(dir))

	seen := make(map[string]struct{})
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return errors.WithStack(err)
			}
			log.Warn("skipping unreadable path", logger.Data{"path": path, "error": err.Error()})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			seen[path] = struct{}{}
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, t := range tracked {
		t = filepath.Clean(t)
		if _, ok := seen[t]; ok {
			continue
		}
		if !strings.HasPrefix(t, dir+string(filepath.Separator)) {
			continue
		}
		if info, err := os.Stat(t); err != nil || !info.Mode().IsRegular() {
			continue
		}
		seen[t] = struct{}{}
		paths = append(paths, t)
	}
	sort.Strings(paths)

	a := &Analysis{Dir: dir, Kind: KindContainer}
	for _, path := range paths {
		format, err := mediafile.Classify(path)
		if err != nil {
			log.Warn("skipping unclassifiable file", logger.Data{"path": path, "error": err.Error()})
			continue
		}
		if format.Class == mediafile.ClassIgnored {
			log.Debug("ignoring unknown format", logger.Data{"path": path})
			continue
		}

		entry := Entry{Path: path, Format: format}
		a.Recognized = append(a.Recognized, entry)
		switch {
		case format.Class == mediafile.ClassAudio:
			a.Audio = append(a.Audio, entry)
		case filepath.Dir(path) == dir && grouping.Key(filepath.Base(path)) == dirKey:
			a.Companions = append(a.Companions, entry)
		default:
			a.Stray = append(a.Stray, entry)
		}
	}

	if len(a.Audio) >= MinTracks && len(a.Stray) == 0 {
		a.Kind = KindFolderAudiobook
	}
	return a, nil
}
