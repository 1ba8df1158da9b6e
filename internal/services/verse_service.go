package services

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/ch2church/worship-storyboard/internal/errors"
	"github.com/ch2church/worship-storyboard/internal/storage"
)

//go:embed data/books.yaml
var booksYAML []byte

// Book is one entry of the closed book catalog.
type Book struct {
	Code      string `yaml:"code" json:"code"`
	Name      string `yaml:"name" json:"name"`
	Abbr      string `yaml:"abbr" json:"abbr"`
	English   string `yaml:"english" json:"english"`
	Testament string `yaml:"testament" json:"testament"`
	Chapters  int    `yaml:"chapters" json:"chapters"`
}

// Verse is one numbered verse of a chapter.
type Verse struct {
	Number int    `json:"verse"`
	Text   string `json:"text"`
}

type bookCatalog struct {
	Books []Book `yaml:"books"`
}

// ParseBooks decodes a YAML book catalog.
func ParseBooks(data []byte) ([]Book, error) {
	var cat bookCatalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse book catalog: %w", err)
	}
	seen := make(map[string]bool, len(cat.Books))
	for i, b := range cat.Books {
		if b.Code == "" || b.Name == "" || b.Chapters < 1 {
			return nil, fmt.Errorf("book catalog entry %d is incomplete", i)
		}
		if seen[b.Code] {
			return nil, fmt.Errorf("book catalog has duplicate code %q", b.Code)
		}
		seen[b.Code] = true
	}
	return cat.Books, nil
}

// VerseService looks up chapters stored as <prefix>/<code>/<chapter>.json.
type VerseService struct {
	store  storage.BlobStore
	prefix string
	books  []Book
	index  map[string]int
}

// NewVerseService loads the embedded catalog.
func NewVerseService(store storage.BlobStore, prefix string) (*VerseService, error) {
	books, err := ParseBooks(booksYAML)
	if err != nil {
		return nil, err
	}
	s := &VerseService{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		books:  books,
		index:  make(map[string]int, len(books)*4),
	}
	for i, b := range books {
		for _, key := range []string{b.Code, b.Name, b.Abbr, b.English} {
			if key == "" {
				continue
			}
			k := strings.ToLower(key)
			if _, taken := s.index[k]; !taken {
				s.index[k] = i
			}
		}
	}
	return s, nil
}

// Books returns the catalog in canonical order.
func (s *VerseService) Books() []Book {
	return append([]Book(nil), s.books...)
}

// FindBook matches a code, Korean name, abbreviation or English name.
func (s *VerseService) FindBook(nameOrCode string) (Book, bool) {
	i, ok := s.index[strings.ToLower(strings.TrimSpace(nameOrCode))]
	if !ok {
		return Book{}, false
	}
	return s.books[i], true
}

// Lookup returns the verses of one chapter ordered by number.
func (s *VerseService) Lookup(ctx context.Context, book string, chapter int) ([]Verse, error) {
	b, ok := s.FindBook(book)
	if !ok {
		return nil, apperrors.NewValidationError("book", fmt.Sprintf("unknown book %q", book), nil)
	}
	if chapter < 1 || chapter > b.Chapters {
		return nil, apperrors.NewValidationError("chapter", fmt.Sprintf("%s has chapters 1-%d, got %d", b.Name, b.Chapters, chapter), nil)
	}

	p := storage.Join(s.prefix, b.Code, strconv.Itoa(chapter)+".json")
	data, err := s.store.Get(ctx, p)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("%s %d is not available", b.Name, chapter), err)
		}
		return nil, err
	}

	var verses []Verse
	if err := json.Unmarshal(data, &verses); err != nil {
		return nil, apperrors.NewProcessingError(fmt.Sprintf("malformed chapter file %s", p), err)
	}
	sort.SliceStable(verses, func(i, j int) bool { return verses[i].Number < verses[j].Number })
	return verses, nil
}

// FormatPassage renders verses from..to as "<book> <ch>:<v> <text>" lines.
// from 0 means the first verse and to 0 the last.
func FormatPassage(book Book, chapter int, verses []Verse, from, to int) ([]string, error) {
	if from < 0 || to < 0 || (to > 0 && from > to) {
		return nil, apperrors.NewValidationError("range", fmt.Sprintf("invalid verse range %d-%d", from, to), nil)
	}
	var lines []string
	for _, v := range verses {
		if from > 0 && v.Number < from {
			continue
		}
		if to > 0 && v.Number > to {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %d:%d %s", book.Name, chapter, v.Number, strings.TrimSpace(v.Text)))
	}
	if len(lines) == 0 {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no verses %d-%d in %s %d", from, to, book.Name, chapter), nil)
	}
	return lines, nil
}

// Passage looks up a chapter and formats the requested range as one block
// of text ready for a verse material.
func (s *VerseService) Passage(ctx context.Context, book string, chapter, from, to int) (string, error) {
	verses, err := s.Lookup(ctx, book, chapter)
	if err != nil {
		return "", err
	}
	b, _ := s.FindBook(book)
	lines, err := FormatPassage(b, chapter, verses, from, to)
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}
