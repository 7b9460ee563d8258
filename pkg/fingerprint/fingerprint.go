// Package fingerprint computes content digests used to recognize a file after it moves.
package fingerprint

import (
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// File returns the hex BLAKE2b-256 digest of the file's bytes along with its size.
func File(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, errors.WithStack(err)
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", 0, errors.WithStack(err)
	}
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, errors.Wrapf(err, "failed to read %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// Folder returns a digest covering every regular file under dir along with their total size.
// Each file contributes its slash-separated path relative to dir and its own digest, in path
// order, so renaming or moving dir itself leaves the digest unchanged.
func Folder(dir string) (string, int64, error) {
	var rels []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.WithStack(err)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return errors.WithStack(err)
		}
		rels = append(rels, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return "", 0, err
	}
	sort.Strings(rels)

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", 0, errors.WithStack(err)
	}
	var total int64
	for _, rel := range rels {
		digest, size, err := File(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return "", 0, err
		}
		total += size
		_, _ = io.WriteString(h, rel+"\x00"+strconv.FormatInt(size, 10)+"\x00"+digest+"\n")
	}
	return hex.EncodeToString(h.Sum(nil)), total, nil
}
