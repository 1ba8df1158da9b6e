package services

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/ch2church/worship-storyboard/internal/models"
	"github.com/ch2church/worship-storyboard/internal/storage"
)

const (
	recordFileName  = "submission.json"
	draftSegment    = "draft"
	filesSegment    = "files"
	anonymousAuthor = "anonymous"
)

// SanitizeSegment makes a user-supplied name safe as one path segment.
// Letters (any script), digits, '-', '_' and '.' survive; runs of anything
// else become a single '_'.
func SanitizeSegment(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '.' {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "._")
}

func authorSegment(name string) string {
	if s := SanitizeSegment(name); s != "" {
		return s
	}
	return anonymousAuthor
}

// DateDir is <base>/<YYYY-MM-DD>.
func DateDir(base string, date time.Time) string {
	return storage.Join(base, date.Format(models.DateLayout))
}

// SubmissionDir is <base>/<date>/<author>/<draft|submission id>.
func SubmissionDir(base string, date time.Time, author, submissionID string) string {
	leaf := draftSegment
	if submissionID != "" {
		leaf = submissionID
	}
	return storage.Join(DateDir(base, date), authorSegment(author), leaf)
}

// RecordPath is the submission.json inside SubmissionDir.
func RecordPath(dir string) string {
	return storage.Join(dir, recordFileName)
}

// AttachmentPath files a blob under dir/files by content hash prefix and
// sanitized name.
func AttachmentPath(dir, contentHash, fileName string) string {
	prefix := contentHash
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	name := SanitizeSegment(path.Base(strings.ReplaceAll(fileName, "\\", "/")))
	if name == "" {
		name = "file"
	}
	return storage.Join(dir, filesSegment, prefix+"_"+name)
}

// NewSubmissionID returns YYYYMMDD-HHMMSS-<8 hex>.
func NewSubmissionID(now time.Time) string {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return fmt.Sprintf("%s-%08x", now.Format("20060102-150405"), now.UnixNano()&0xffffffff)
	}
	return fmt.Sprintf("%s-%s", now.Format("20060102-150405"), hex.EncodeToString(buf[:]))
}
