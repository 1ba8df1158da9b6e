// Package storage provides the path-addressed blob stores submissions and
// verse data are persisted in.
package storage

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path"
	"sort"
	"strings"

	apperrors "github.com/ch2church/worship-storyboard/internal/errors"
)

// EntryKind tells files from directories in a listing.
type EntryKind string

const (
	EntryFile EntryKind = "file"
	EntryDir  EntryKind = "dir"
)

// Entry is one child of a listed directory.
type Entry struct {
	Name string    `json:"name"`
	Path string    `json:"path"`
	Kind EntryKind `json:"kind"`
}

// BlobStore is a path-addressed read/write/list store.
//
// Get and List return a not_found AppError when nothing lives at the path.
// Put reads the current version tag before writing and returns the new one;
// concurrent writers are not merged and the last one wins.
type BlobStore interface {
	Get(ctx context.Context, p string) ([]byte, error)
	Put(ctx context.Context, p string, data []byte, message string) (string, error)
	List(ctx context.Context, p string) ([]Entry, error)
}

// CleanPath normalizes a store path to slash-separated form without a
// leading slash. Paths escaping the root are rejected.
func CleanPath(p string) (string, error) {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	cleaned := path.Clean("/" + p)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if strings.Contains(p, "..") {
		for _, seg := range strings.Split(p, "/") {
			if seg == ".." {
				return "", apperrors.NewValidationError("path", fmt.Sprintf("path %q escapes the store root", p), nil)
			}
		}
	}
	return cleaned, nil
}

// Join builds a store path from segments.
func Join(parts ...string) string {
	return strings.TrimPrefix(path.Join(parts...), "/")
}

// VersionTag is the content version used by stores that have no native one.
func VersionTag(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind == EntryDir
		}
		return entries[i].Name < entries[j].Name
	})
}
