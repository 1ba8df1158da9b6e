package models

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Kind identifies which payload a Material carries.
type Kind string

const (
	KindVerse      Kind = "verse"
	KindImage      Kind = "image"
	KindAttachment Kind = "attachment"
	KindTranscript Kind = "transcript"
)

// Kinds is the closed set of material kinds, in the order the editor offers them.
var Kinds = []Kind{KindVerse, KindImage, KindAttachment, KindTranscript}

// legacyKinds maps the labels older records stored in the kind field.
var legacyKinds = map[string]Kind{
	"성경 구절": KindVerse,
	"이미지":   KindImage,
	"기타 파일": KindAttachment,
	"설교 전문": KindTranscript,
}

// ParseKind resolves a stored kind value, accepting the legacy Korean labels.
func ParseKind(s string) (Kind, bool) {
	s = strings.TrimSpace(s)
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	k, ok := legacyKinds[s]
	return k, ok
}

// Payload is the kind-specific part of a Material. Exactly one concrete
// variant exists per kind, so fields of other kinds cannot linger.
type Payload interface {
	Kind() Kind
	clone() Payload
}

// VersePayload holds pasted or looked-up scripture, one paragraph per line.
type VersePayload struct {
	Text string
}

// ImagePayload holds zero or more images in display order.
type ImagePayload struct {
	Files []*Blob
}

// AttachmentPayload holds at most one file that is listed but never embedded.
type AttachmentPayload struct {
	File *Blob
}

// TranscriptPayload holds a full sermon text, one paragraph per line.
type TranscriptPayload struct {
	Text string
}

func (*VersePayload) Kind() Kind      { return KindVerse }
func (*ImagePayload) Kind() Kind      { return KindImage }
func (*AttachmentPayload) Kind() Kind { return KindAttachment }
func (*TranscriptPayload) Kind() Kind { return KindTranscript }

func (p *VersePayload) clone() Payload      { c := *p; return &c }
func (p *TranscriptPayload) clone() Payload { c := *p; return &c }

func (p *ImagePayload) clone() Payload {
	c := &ImagePayload{}
	for _, f := range p.Files {
		c.Files = append(c.Files, f.Clone())
	}
	return c
}

func (p *AttachmentPayload) clone() Payload {
	return &AttachmentPayload{File: p.File.Clone()}
}

// emptyPayload returns the zero payload for kind.
func emptyPayload(kind Kind) Payload {
	switch kind {
	case KindImage:
		return &ImagePayload{}
	case KindAttachment:
		return &AttachmentPayload{}
	case KindTranscript:
		return &TranscriptPayload{}
	default:
		return &VersePayload{}
	}
}

// Material is one storyboard entry.
type Material struct {
	ID          string
	Description string
	Payload     Payload
}

// NewMaterial creates an empty verse entry with a fresh id.
func NewMaterial() *Material {
	return &Material{
		ID:      uuid.NewString(),
		Payload: &VersePayload{},
	}
}

// Kind reports the current kind; a material without payload counts as a verse.
func (m *Material) Kind() Kind {
	if m.Payload == nil {
		return KindVerse
	}
	return m.Payload.Kind()
}

// Text returns the verse or transcript text, or "" for other kinds.
func (m *Material) Text() string {
	switch p := m.Payload.(type) {
	case *VersePayload:
		return p.Text
	case *TranscriptPayload:
		return p.Text
	}
	return ""
}

// SetText stores text on verse and transcript materials and reports whether
// the current kind accepts text.
func (m *Material) SetText(text string) bool {
	switch p := m.Payload.(type) {
	case *VersePayload:
		p.Text = text
	case *TranscriptPayload:
		p.Text = text
	default:
		return false
	}
	return true
}

// AddFile appends to an image material or replaces an attachment.
func (m *Material) AddFile(b *Blob) bool {
	switch p := m.Payload.(type) {
	case *ImagePayload:
		p.Files = append(p.Files, b)
	case *AttachmentPayload:
		p.File = b
	default:
		return false
	}
	return true
}

// Blobs lists every file the material carries.
func (m *Material) Blobs() []*Blob {
	switch p := m.Payload.(type) {
	case *ImagePayload:
		return p.Files
	case *AttachmentPayload:
		if p.File != nil {
			return []*Blob{p.File}
		}
	}
	return nil
}

// Clone deep-copies the material, including raw file bytes.
func (m *Material) Clone() *Material {
	c := &Material{ID: m.ID, Description: m.Description}
	if m.Payload != nil {
		c.Payload = m.Payload.clone()
	}
	return c
}

// FileRef points at a blob already written to the store.
type FileRef struct {
	Name        string `json:"name"`
	StoragePath string `json:"storage_path"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	ContentHash string `json:"content_hash"`
}

// Blob is an uploaded file: raw bytes until persisted, a FileRef afterwards.
type Blob struct {
	Name string
	Data []byte
	Ref  *FileRef
}

// NewBlob wraps freshly uploaded bytes.
func NewBlob(name string, data []byte) *Blob {
	return &Blob{Name: name, Data: data}
}

// NewRefBlob wraps an already persisted file.
func NewRefBlob(ref *FileRef) *Blob {
	return &Blob{Name: ref.Name, Ref: ref}
}

// Persisted reports whether the blob is only a reference.
func (b *Blob) Persisted() bool {
	return b.Ref != nil && b.Data == nil
}

// DisplayName is the original filename.
func (b *Blob) DisplayName() string {
	if b.Name != "" {
		return b.Name
	}
	if b.Ref != nil {
		return b.Ref.Name
	}
	return "unknown"
}

// Reference returns the stored reference, or describes raw bytes as an
// unfiled reference so bytes never leak into a record.
func (b *Blob) Reference() *FileRef {
	if b.Ref != nil {
		ref := *b.Ref
		return &ref
	}
	return &FileRef{
		Name:        b.Name,
		Size:        int64(len(b.Data)),
		ContentType: DetectContentType(b.Name, b.Data),
		ContentHash: ContentHash(b.Data),
	}
}

// Clone copies the blob.
func (b *Blob) Clone() *Blob {
	if b == nil {
		return nil
	}
	c := &Blob{Name: b.Name}
	if b.Data != nil {
		c.Data = append([]byte(nil), b.Data...)
	}
	if b.Ref != nil {
		ref := *b.Ref
		c.Ref = &ref
	}
	return c
}

// ContentHash is the hex sha256 of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DetectContentType sniffs data, falling back to the file extension.
func DetectContentType(name string, data []byte) string {
	if len(data) > 0 {
		if ct := http.DetectContentType(data); ct != "application/octet-stream" {
			return ct
		}
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".pdf":
		return "application/pdf"
	case ".pptx":
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return "application/octet-stream"
}
