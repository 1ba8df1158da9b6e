package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/ch2church/worship-storyboard/internal/errors"
)

// DateLayout is the ISO calendar date used in records and storage paths.
const DateLayout = "2006-01-02"

// savedAtLayouts are accepted when reading saved_at; older records carry no zone.
var savedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
}

// SubmissionRecord is the portable form of a Submission. Binary content never
// appears here; files are FileRef records.
type SubmissionRecord struct {
	WorshipDate  string           `json:"worship_date"`
	Services     []string         `json:"services"`
	Materials    []MaterialRecord `json:"materials"`
	UserName     string           `json:"user_name"`
	Position     string           `json:"position"`
	Role         string           `json:"role"`
	SavedAt      string           `json:"saved_at,omitempty"`
	Status       string           `json:"status,omitempty"`
	SubmissionID string           `json:"submission_id,omitempty"`
}

// MaterialRecord carries only the fields of its kind.
type MaterialRecord struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Description string     `json:"description"`
	VerseText   string     `json:"verse_text,omitempty"`
	FullText    string     `json:"full_text,omitempty"`
	Files       []*FileRef `json:"files,omitempty"`
	File        *FileRef   `json:"file,omitempty"`
}

// Serialize converts the submission into its record form.
func (s *Submission) Serialize() *SubmissionRecord {
	rec := &SubmissionRecord{
		WorshipDate: s.WorshipDate.Format(DateLayout),
		Services:    append([]string{}, s.Services...),
		Materials:   make([]MaterialRecord, 0, len(s.Materials)),
		UserName:    s.UserName,
		Position:    s.Position,
		Role:        s.Role,
		Status:      string(s.Status),
	}
	if rec.Status == "" {
		rec.Status = string(StatusDraft)
	}
	if !s.SavedAt.IsZero() {
		rec.SavedAt = s.SavedAt.Format(time.RFC3339Nano)
	}
	if s.Status == StatusSubmitted {
		rec.SubmissionID = s.SubmissionID
	}
	for _, m := range s.Materials {
		rec.Materials = append(rec.Materials, serializeMaterial(m))
	}
	return rec
}

func serializeMaterial(m *Material) MaterialRecord {
	mr := MaterialRecord{
		ID:          m.ID,
		Kind:        string(m.Kind()),
		Description: m.Description,
	}
	switch p := m.Payload.(type) {
	case *VersePayload:
		mr.VerseText = p.Text
	case *TranscriptPayload:
		mr.FullText = p.Text
	case *ImagePayload:
		for _, f := range p.Files {
			mr.Files = append(mr.Files, f.Reference())
		}
	case *AttachmentPayload:
		if p.File != nil {
			mr.File = p.File.Reference()
		}
	}
	return mr
}

// Deserialize rebuilds a Submission from rec. Malformed dates, unknown kinds
// or duplicate ids fail with a validation error naming the field.
func Deserialize(rec *SubmissionRecord) (*Submission, error) {
	if rec == nil {
		return nil, apperrors.NewValidationError("record", "empty submission record", nil)
	}

	date, err := time.Parse(DateLayout, strings.TrimSpace(rec.WorshipDate))
	if err != nil {
		return nil, apperrors.NewValidationError("worship_date", "invalid worship date "+fmt.Sprintf("%q", rec.WorshipDate), err)
	}

	s := &Submission{
		WorshipDate: date,
		Services:    NewServiceTags(rec.Services...),
		UserName:    rec.UserName,
		Position:    rec.Position,
		Role:        rec.Role,
		Materials:   make([]*Material, 0, len(rec.Materials)),
	}

	switch Status(rec.Status) {
	case "", StatusDraft:
		s.Status = StatusDraft
	case StatusSubmitted:
		s.Status = StatusSubmitted
		s.SubmissionID = rec.SubmissionID
	default:
		return nil, apperrors.NewValidationError("status", "unknown status "+fmt.Sprintf("%q", rec.Status), nil)
	}

	if rec.SavedAt != "" {
		if s.SavedAt, err = parseSavedAt(rec.SavedAt); err != nil {
			return nil, apperrors.NewValidationError("saved_at", "invalid timestamp "+fmt.Sprintf("%q", rec.SavedAt), err)
		}
	}

	seen := make(map[string]bool, len(rec.Materials))
	for i, mr := range rec.Materials {
		m, err := deserializeMaterial(i, mr)
		if err != nil {
			return nil, err
		}
		if seen[m.ID] {
			return nil, apperrors.NewValidationError(fmt.Sprintf("materials[%d].id", i), "duplicate material id "+m.ID, nil)
		}
		seen[m.ID] = true
		s.Materials = append(s.Materials, m)
	}
	return s, nil
}

func deserializeMaterial(i int, mr MaterialRecord) (*Material, error) {
	kind := KindVerse
	if strings.TrimSpace(mr.Kind) != "" {
		k, ok := ParseKind(mr.Kind)
		if !ok {
			return nil, apperrors.NewValidationError(fmt.Sprintf("materials[%d].kind", i), "unknown material kind "+fmt.Sprintf("%q", mr.Kind), nil)
		}
		kind = k
	}

	m := &Material{ID: mr.ID, Description: mr.Description}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	switch kind {
	case KindVerse:
		m.Payload = &VersePayload{Text: mr.VerseText}
	case KindTranscript:
		m.Payload = &TranscriptPayload{Text: mr.FullText}
	case KindImage:
		p := &ImagePayload{}
		for _, ref := range mr.Files {
			if ref != nil {
				p.Files = append(p.Files, NewRefBlob(ref))
			}
		}
		// older records kept a single image under "file"
		if len(p.Files) == 0 && mr.File != nil {
			p.Files = append(p.Files, NewRefBlob(mr.File))
		}
		m.Payload = p
	case KindAttachment:
		p := &AttachmentPayload{}
		if mr.File != nil {
			p.File = NewRefBlob(mr.File)
		}
		m.Payload = p
	}
	return m, nil
}

func parseSavedAt(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range savedAtLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// EncodeJSON serializes the submission as indented JSON.
func EncodeJSON(s *Submission) ([]byte, error) {
	return json.MarshalIndent(s.Serialize(), "", "  ")
}

// DecodeJSON parses a stored record and deserializes it.
func DecodeJSON(data []byte) (*Submission, error) {
	var rec SubmissionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, apperrors.NewValidationError("record", "malformed submission record", err)
	}
	return Deserialize(&rec)
}
