package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemove_LastFileSoftDeletesBook(t *testing.T) {
	f := newFixture(t)
	f.write("Dune.epub", "dune")
	created := f.create("Dune.epub")

	res := f.remove("Dune.epub")
	assert.Equal(t, OutcomeBookDeleted, res.Outcome)
	assert.Equal(t, []int{created.BookID}, res.BookIDs)
	assert.Equal(t, []int{created.BookID}, f.notifier.removed)

	book := f.book(created.BookID)
	assert.True(t, book.IsDeleted())
	require.Len(t, book.Files, 1, "the file row stays as a tombstone")

	t.Run("deleting the tombstone again is a no-op", func(t *testing.T) {
		again := f.remove("Dune.epub")
		assert.Equal(t, OutcomeSkipped, again.Outcome)
		assert.Len(t, f.notifier.removed, 1)
	})

	t.Run("the same content reappearing revives the book", func(t *testing.T) {
		f.write("restored/Dune.epub", "dune")
		revived := f.create("restored/Dune.epub")
		assert.Equal(t, OutcomeMove, revived.Outcome)
		assert.Equal(t, created.BookID, revived.BookID)

		book := f.book(created.BookID)
		assert.False(t, book.IsDeleted())
		require.Len(t, book.Files, 1)
		assert.Equal(t, "restored", book.Files[0].SubPath)
		assert.Contains(t, f.notifier.added, created.BookID)
	})
}

func TestRemove_OneOfSeveralFiles(t *testing.T) {
	f := newFixture(t)
	f.write("Dune.epub", "epub")
	f.write("Dune.pdf", "pdf")
	f.write("cover.jpg", "jpg")
	epub := f.create("Dune.epub")
	f.create("Dune.pdf")
	f.create("cover.jpg")

	res := f.remove("Dune.pdf")
	assert.Equal(t, OutcomeFileDeleted, res.Outcome)
	assert.Empty(t, res.BookIDs)

	book := f.book(epub.BookID)
	assert.False(t, book.IsDeleted())
	assert.Len(t, book.Files, 2)

	t.Run("a supplement doesn't keep the book alive", func(t *testing.T) {
		res := f.remove("Dune.epub")
		assert.Equal(t, OutcomeBookDeleted, res.Outcome)
		assert.True(t, f.book(epub.BookID).IsDeleted())
	})
}

func TestRemove_UnknownPath(t *testing.T) {
	f := newFixture(t)
	f.write("Dune.epub", "dune")
	f.create("Dune.epub")

	res := f.remove("never-catalogued.epub")
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Len(t, f.liveBooks(), 1)
	assert.Empty(t, f.notifier.removed)
}

func TestRemove_FolderCascade(t *testing.T) {
	f := newFixture(t)
	f.write("authors/gaiman/Coraline.epub", "coraline")
	f.write("authors/gaiman/stardust/Stardust.epub", "stardust")
	f.write("authors/gaiman-extra/Sandman.cbz", "sandman")
	f.write("authors/pratchett/Mort.epub", "mort")
	coraline := f.create("authors/gaiman/Coraline.epub")
	stardust := f.create("authors/gaiman/stardust/Stardust.epub")
	sandman := f.create("authors/gaiman-extra/Sandman.cbz")
	mort := f.create("authors/pratchett/Mort.epub")

	res := f.remove("authors/gaiman")
	assert.Equal(t, OutcomeFolderDeleted, res.Outcome)
	assert.ElementsMatch(t, []int{coraline.BookID, stardust.BookID}, res.BookIDs)
	assert.ElementsMatch(t, []int{coraline.BookID, stardust.BookID}, f.notifier.removed)

	assert.True(t, f.book(coraline.BookID).IsDeleted())
	assert.True(t, f.book(stardust.BookID).IsDeleted())
	assert.False(t, f.book(sandman.BookID).IsDeleted(), "sibling folders sharing a prefix survive")
	assert.False(t, f.book(mort.BookID).IsDeleted())
}

func TestRemove_FolderCascadeNonASCII(t *testing.T) {
	f := newFixture(t)
	f.write("Стругацкие/Улитка.epub", "snail")
	f.write("Стругацкие/Пикник/Пикник.epub", "picnic")
	f.write("série/tome/Livre.epub", "livre")
	snail := f.create("Стругацкие/Улитка.epub")
	picnic := f.create("Стругацкие/Пикник/Пикник.epub")
	livre := f.create("série/tome/Livre.epub")

	res := f.remove("Стругацкие")
	assert.Equal(t, OutcomeFolderDeleted, res.Outcome)
	assert.ElementsMatch(t, []int{snail.BookID, picnic.BookID}, res.BookIDs)
	assert.True(t, f.book(picnic.BookID).IsDeleted())

	res = f.remove("série")
	assert.Equal(t, OutcomeFolderDeleted, res.Outcome)
	assert.Equal(t, []int{livre.BookID}, res.BookIDs)
}

func TestRemove_FolderAudiobook(t *testing.T) {
	f := newFixture(t)
	f.write("american gods/american gods.epub", "epub")
	f.write("american gods/01.mp3", "one")
	f.write("american gods/02.mp3", "two")
	epub := f.create("american gods/american gods.epub")
	folder := f.createFolder("american gods")
	require.Equal(t, epub.BookID, folder.BookID)

	res := f.remove("american gods")
	assert.Equal(t, OutcomeFileDeleted, res.Outcome)
	assert.Equal(t, folder.FileID, res.FileID)
	assert.Equal(t, []int{epub.BookID}, res.BookIDs, "the companion inside the folder takes the book with it")
	assert.True(t, f.book(epub.BookID).IsDeleted())
}

func TestRemove_LibraryRoot(t *testing.T) {
	f := newFixture(t)
	f.write("a/One.epub", "one")
	f.write("Two.epub", "two")
	f.create("a/One.epub")
	f.create("Two.epub")

	res, err := f.r.Remove(f.ctx, Candidate{LibraryID: f.library.ID, LibraryPathID: f.lp.ID, Path: f.root})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFolderDeleted, res.Outcome)
	assert.Len(t, res.BookIDs, 2)
	assert.Empty(t, f.liveBooks())
}
