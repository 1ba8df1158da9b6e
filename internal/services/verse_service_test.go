package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ch2church/worship-storyboard/internal/errors"
	"github.com/ch2church/worship-storyboard/internal/storage"
)

func newVerseFixture(t *testing.T) (*VerseService, *storage.FileStorage) {
	t.Helper()
	fs, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	svc, err := NewVerseService(fs, "/bible/")
	require.NoError(t, err)

	chapter := `[
  {"verse": 17, "text": "하나님이 그 아들을 세상에 보내신 것은"},
  {"verse": 16, "text": "하나님이 세상을 이처럼 사랑하사 "},
  {"verse": 1, "text": "그런데 바리새인 중에 니고데모라 하는 사람이 있으니"}
]`
	_, err = fs.Put(context.Background(), "bible/jhn/3.json", []byte(chapter), "")
	require.NoError(t, err)
	return svc, fs
}

func TestBookCatalog(t *testing.T) {
	svc, _ := newVerseFixture(t)
	books := svc.Books()
	require.Len(t, books, 66)
	assert.Equal(t, "gen", books[0].Code)
	assert.Equal(t, "rev", books[65].Code)

	for _, key := range []string{"jhn", "요한복음", "요", "john", " JOHN "} {
		b, ok := svc.FindBook(key)
		require.True(t, ok, key)
		assert.Equal(t, "jhn", b.Code)
	}
	b, ok := svc.FindBook("요일")
	require.True(t, ok)
	assert.Equal(t, "1jn", b.Code)

	_, ok = svc.FindBook("마카베오기")
	assert.False(t, ok)

	// callers cannot mutate the catalog
	books[0].Name = "changed"
	assert.Equal(t, "창세기", svc.Books()[0].Name)
}

func TestParseBooksRejectsBadCatalogs(t *testing.T) {
	_, err := ParseBooks([]byte("books: [{code: a, name: A, chapters: 1}, {code: a, name: B, chapters: 2}]"))
	assert.ErrorContains(t, err, "duplicate")

	_, err = ParseBooks([]byte("books: [{code: a, name: A}]"))
	assert.ErrorContains(t, err, "incomplete")

	_, err = ParseBooks([]byte("books: ["))
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	svc, fs := newVerseFixture(t)

	verses, err := svc.Lookup(ctx, "요한복음", 3)
	require.NoError(t, err)
	require.Len(t, verses, 3)
	assert.Equal(t, []int{1, 16, 17}, []int{verses[0].Number, verses[1].Number, verses[2].Number})

	_, err = svc.Lookup(ctx, "없는책", 1)
	assert.True(t, apperrors.IsValidationError(err))
	assert.Equal(t, "book", apperrors.FieldOf(err))

	_, err = svc.Lookup(ctx, "jhn", 22)
	assert.Equal(t, "chapter", apperrors.FieldOf(err))
	_, err = svc.Lookup(ctx, "jhn", 0)
	assert.Equal(t, "chapter", apperrors.FieldOf(err))

	_, err = svc.Lookup(ctx, "jhn", 4)
	assert.True(t, apperrors.IsNotFoundError(err))

	_, err = fs.Put(ctx, "bible/jhn/5.json", []byte("{"), "")
	require.NoError(t, err)
	_, err = svc.Lookup(ctx, "jhn", 5)
	assert.True(t, apperrors.IsProcessingError(err))
}

func TestFormatPassage(t *testing.T) {
	book := Book{Code: "psa", Name: "시편", Chapters: 150}
	verses := []Verse{
		{Number: 1, Text: "여호와는 나의 목자시니"},
		{Number: 2, Text: " 그가 나를 푸른 풀밭에 누이시며 "},
		{Number: 3, Text: "내 영혼을 소생시키시고"},
	}

	lines, err := FormatPassage(book, 23, verses, 0, 0)
	require.NoError(t, err)
	assert.Len(t, lines, 3)

	lines, err = FormatPassage(book, 23, verses, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"시편 23:2 그가 나를 푸른 풀밭에 누이시며", "시편 23:3 내 영혼을 소생시키시고"}, lines)

	lines, err = FormatPassage(book, 23, verses, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"시편 23:1 여호와는 나의 목자시니"}, lines)

	_, err = FormatPassage(book, 23, verses, 3, 2)
	assert.Equal(t, "range", apperrors.FieldOf(err))
	_, err = FormatPassage(book, 23, verses, -1, 0)
	assert.True(t, apperrors.IsValidationError(err))

	_, err = FormatPassage(book, 23, verses, 7, 9)
	assert.True(t, apperrors.IsNotFoundError(err))
}

func TestPassage(t *testing.T) {
	svc, _ := newVerseFixture(t)
	text, err := svc.Passage(context.Background(), "John", 3, 16, 17)
	require.NoError(t, err)
	assert.Equal(t, "요한복음 3:16 하나님이 세상을 이처럼 사랑하사\n요한복음 3:17 하나님이 그 아들을 세상에 보내신 것은", text)
}
