package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	apperrors "github.com/ch2church/worship-storyboard/internal/errors"
	"github.com/ch2church/worship-storyboard/internal/models"
	"github.com/ch2church/worship-storyboard/internal/storage"
	"github.com/ch2church/worship-storyboard/internal/utils"
)

// ReviewEvent announces a submitted storyboard to reviewers.
type ReviewEvent struct {
	Type         string    `json:"type"`
	WorshipDate  string    `json:"worship_date"`
	Services     []string  `json:"services"`
	UserName     string    `json:"user_name"`
	Position     string    `json:"position"`
	SubmissionID string    `json:"submission_id"`
	Path         string    `json:"path"`
	Materials    int       `json:"materials"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// ReviewNotifier receives review events. Implementations must not block.
type ReviewNotifier interface {
	NotifySubmitted(event ReviewEvent)
}

// SaveResult describes a written record.
type SaveResult struct {
	Path         string    `json:"path"`
	Version      string    `json:"version"`
	Status       string    `json:"status"`
	SubmissionID string    `json:"submission_id,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
	Uploaded     int       `json:"uploaded"`
}

// SubmissionSummary is one entry in the review listing.
type SubmissionSummary struct {
	Author       string    `json:"author"`
	Entry        string    `json:"entry"`
	Path         string    `json:"path"`
	Status       string    `json:"status"`
	SubmissionID string    `json:"submission_id,omitempty"`
	UserName     string    `json:"user_name"`
	Position     string    `json:"position"`
	Services     []string  `json:"services"`
	Materials    int       `json:"materials"`
	SavedAt      time.Time `json:"saved_at"`
}

// SubmissionService persists storyboards to the blob store.
type SubmissionService struct {
	store    storage.BlobStore
	baseDir  string
	notifier ReviewNotifier
	metrics  *utils.APIMetrics
	logger   *utils.Logger
	now      func() time.Time
}

// NewSubmissionService files records under baseDir. notifier may be nil.
func NewSubmissionService(store storage.BlobStore, baseDir string, notifier ReviewNotifier, metrics *utils.APIMetrics) *SubmissionService {
	if metrics == nil {
		metrics = utils.NewAPIMetrics()
	}
	return &SubmissionService{
		store:    store,
		baseDir:  strings.Trim(baseDir, "/"),
		notifier: notifier,
		metrics:  metrics,
		logger:   utils.GetLogger(),
		now:      time.Now,
	}
}

// SaveDraft writes the session's storyboard to its draft location.
func (s *SubmissionService) SaveDraft(ctx context.Context, sess *Session) (*SaveResult, error) {
	return s.persist(ctx, sess, models.StatusDraft)
}

// Submit writes the storyboard under the session's submission id, created
// on first submit and reused afterwards, and notifies reviewers.
func (s *SubmissionService) Submit(ctx context.Context, sess *Session) (*SaveResult, error) {
	res, err := s.persist(ctx, sess, models.StatusSubmitted)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		sub := sess.Submission
		s.notifier.NotifySubmitted(ReviewEvent{
			Type:         "submission",
			WorshipDate:  sub.WorshipDate.Format(models.DateLayout),
			Services:     append([]string(nil), sub.Services...),
			UserName:     sub.UserName,
			Position:     sub.Position,
			SubmissionID: res.SubmissionID,
			Path:         res.Path,
			Materials:    len(sub.Materials),
			SubmittedAt:  res.SavedAt,
		})
	}
	return res, nil
}

// persist works on a clone so a failed write leaves the session untouched.
func (s *SubmissionService) persist(ctx context.Context, sess *Session, status models.Status) (*SaveResult, error) {
	if sess == nil || sess.Submission == nil {
		return nil, apperrors.NewValidationError("session", "no storyboard to save", nil)
	}

	now := s.now()
	clone := sess.Submission.Clone()
	submissionID := ""
	if status == models.StatusSubmitted {
		submissionID = sess.SubmissionID
		if submissionID == "" {
			submissionID = NewSubmissionID(now)
		}
	}

	dir := SubmissionDir(s.baseDir, clone.WorshipDate, clone.UserName, submissionID)
	uploaded, err := s.detachBlobs(ctx, dir, clone)
	if err != nil {
		return nil, s.writeFailure(dir, err)
	}

	clone.Status = status
	clone.SubmissionID = submissionID
	clone.SavedAt = now

	data, err := models.EncodeJSON(clone)
	if err != nil {
		return nil, apperrors.NewProcessingError("encode submission", err)
	}
	recordPath := RecordPath(dir)
	message := fmt.Sprintf("%s %s (%s)", status, clone.WorshipDate.Format(models.DateLayout), authorSegment(clone.UserName))
	version, err := s.store.Put(ctx, recordPath, data, message)
	if err != nil {
		return nil, s.writeFailure(recordPath, err)
	}

	sess.Submission = clone
	if submissionID != "" {
		sess.SubmissionID = submissionID
	}
	s.metrics.RecordSubmission(string(status))
	s.logger.Info("storyboard saved", map[string]interface{}{
		"path":          recordPath,
		"status":        string(status),
		"submission_id": submissionID,
		"materials":     len(clone.Materials),
		"uploaded":      uploaded,
	})

	return &SaveResult{
		Path:         recordPath,
		Version:      version,
		Status:       string(status),
		SubmissionID: submissionID,
		SavedAt:      now,
		Uploaded:     uploaded,
	}, nil
}

func (s *SubmissionService) writeFailure(p string, err error) error {
	s.metrics.RecordError("remote_write_failure", "submission_service")
	if apperrors.IsRemoteWriteError(err) {
		return err
	}
	return apperrors.NewRemoteWriteError(p, apperrors.StatusOf(err), err)
}

// detachBlobs uploads every raw blob of sub and swaps it for a reference.
func (s *SubmissionService) detachBlobs(ctx context.Context, dir string, sub *models.Submission) (int, error) {
	uploaded := 0
	for _, m := range sub.Materials {
		switch p := m.Payload.(type) {
		case *models.ImagePayload:
			for i, b := range p.Files {
				ref, did, err := s.detach(ctx, dir, b)
				if err != nil {
					return uploaded, err
				}
				p.Files[i] = ref
				if did {
					uploaded++
				}
			}
		case *models.AttachmentPayload:
			if p.File == nil {
				continue
			}
			ref, did, err := s.detach(ctx, dir, p.File)
			if err != nil {
				return uploaded, err
			}
			p.File = ref
			if did {
				uploaded++
			}
		}
	}
	return uploaded, nil
}

// detach files b under dir. Raw bytes are uploaded; a reference filed
// under another entry, such as the draft, is copied so every record only
// points into its own directory.
func (s *SubmissionService) detach(ctx context.Context, dir string, b *models.Blob) (*models.Blob, bool, error) {
	if b == nil {
		return nil, false, nil
	}
	data := b.Data
	if data == nil {
		if b.Ref == nil || b.Ref.StoragePath == "" || strings.HasPrefix(b.Ref.StoragePath, dir+"/") {
			return b, false, nil
		}
		var err error
		if data, err = s.store.Get(ctx, b.Ref.StoragePath); err != nil {
			return nil, false, err
		}
	}
	ref := b.Reference()
	ref.StoragePath = AttachmentPath(dir, ref.ContentHash, ref.Name)
	if _, err := s.store.Put(ctx, ref.StoragePath, data, "attach "+ref.Name); err != nil {
		return nil, false, err
	}
	return models.NewRefBlob(ref), true, nil
}

// LoadDraft replaces the session's storyboard with the saved draft of date.
func (s *SubmissionService) LoadDraft(ctx context.Context, sess *Session, date time.Time) (*models.Submission, error) {
	if sess == nil {
		return nil, apperrors.NewValidationError("session", "no session", nil)
	}
	recordPath := RecordPath(SubmissionDir(s.baseDir, models.DateOnly(date), sess.User.Name, ""))
	sub, err := s.readRecord(ctx, recordPath)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("no draft saved for %s", models.DateOnly(date).Format(models.DateLayout)), err)
		}
		return nil, err
	}
	sess.Submission = sub
	s.logger.Info("draft loaded", map[string]interface{}{"path": recordPath, "materials": len(sub.Materials)})
	return sub, nil
}

// ListSubmissions walks <base>/<date>/<author>/<entry> and summarizes every
// readable record, newest first. A date with nothing filed is empty.
func (s *SubmissionService) ListSubmissions(ctx context.Context, date time.Time) ([]SubmissionSummary, error) {
	dateDir := DateDir(s.baseDir, models.DateOnly(date))
	authors, err := s.store.List(ctx, dateDir)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			return []SubmissionSummary{}, nil
		}
		return nil, err
	}

	summaries := []SubmissionSummary{}
	for _, author := range authors {
		if author.Kind != storage.EntryDir {
			continue
		}
		entries, err := s.store.List(ctx, author.Path)
		if err != nil {
			s.logger.Warn("skipping unreadable author directory", map[string]interface{}{"path": author.Path, "error": err.Error()})
			continue
		}
		for _, entry := range entries {
			if entry.Kind != storage.EntryDir {
				continue
			}
			recordPath := RecordPath(entry.Path)
			sub, err := s.readRecord(ctx, recordPath)
			if err != nil {
				s.logger.Warn("skipping unreadable record", map[string]interface{}{"path": recordPath, "error": err.Error()})
				continue
			}
			summaries = append(summaries, SubmissionSummary{
				Author:       author.Name,
				Entry:        entry.Name,
				Path:         recordPath,
				Status:       string(sub.Status),
				SubmissionID: sub.SubmissionID,
				UserName:     sub.UserName,
				Position:     sub.Position,
				Services:     append([]string{}, sub.Services...),
				Materials:    len(sub.Materials),
				SavedAt:      sub.SavedAt,
			})
		}
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].SavedAt.After(summaries[j].SavedAt)
	})
	return summaries, nil
}

// LoadRecord reads one record by store path. A directory path resolves to
// its submission.json. Paths outside the base directory are rejected.
func (s *SubmissionService) LoadRecord(ctx context.Context, p string) (*models.Submission, error) {
	clean, err := s.underBase(p)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(clean, "/"+recordFileName) {
		clean = RecordPath(clean)
	}
	return s.readRecord(ctx, clean)
}

func (s *SubmissionService) underBase(p string) (string, error) {
	clean, err := storage.CleanPath(p)
	if err != nil {
		return "", err
	}
	if s.baseDir != "" && !strings.HasPrefix(clean, s.baseDir+"/") {
		return "", apperrors.NewValidationError("path", fmt.Sprintf("%s is outside %s", clean, s.baseDir), nil)
	}
	return clean, nil
}

func (s *SubmissionService) readRecord(ctx context.Context, p string) (*models.Submission, error) {
	data, err := s.store.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	sub, err := models.DecodeJSON(data)
	if err != nil {
		return nil, apperrors.WrapError(err, "read "+p, apperrors.ErrorTypeValidation)
	}
	return sub, nil
}

// Attachment returns the bytes of a file filed under the base directory.
func (s *SubmissionService) Attachment(ctx context.Context, p string) ([]byte, error) {
	clean, err := s.underBase(p)
	if err != nil {
		return nil, err
	}
	return s.store.Get(ctx, clean)
}
