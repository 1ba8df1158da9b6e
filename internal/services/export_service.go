// internal/services/export_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ch2church/worship-storyboard/internal/document"
	apperrors "github.com/ch2church/worship-storyboard/internal/errors"
	"github.com/ch2church/worship-storyboard/internal/markup"
	"github.com/ch2church/worship-storyboard/internal/models"
	"github.com/ch2church/worship-storyboard/internal/storage"
	"github.com/ch2church/worship-storyboard/internal/utils"
)

const titleSizePt = 20

// ExportService renders storyboards into documents.
type ExportService struct {
	store   storage.BlobStore
	encoder document.Encoder
	labels  document.Labels
	metrics *utils.APIMetrics
	logger  *utils.Logger
}

// NewExportService wires the renderer. store resolves persisted image
// references and may be nil when every blob still holds its bytes.
func NewExportService(store storage.BlobStore, encoder document.Encoder, labels document.Labels, metrics *utils.APIMetrics) *ExportService {
	if metrics == nil {
		metrics = utils.NewAPIMetrics()
	}
	return &ExportService{
		store:   store,
		encoder: encoder,
		labels:  labels,
		metrics: metrics,
		logger:  utils.GetLogger(),
	}
}

// Labels returns the wording in use.
func (s *ExportService) Labels() document.Labels {
	return s.labels
}

// renderPass accumulates one render.
type renderPass struct {
	doc          *document.Document
	placeholders int
}

// Render walks the storyboard in order and produces the block sequence.
// Per-item problems become placeholder paragraphs and never abort.
func (s *ExportService) Render(ctx context.Context, sub *models.Submission) (*document.Document, error) {
	if sub == nil {
		return nil, apperrors.NewValidationError("submission", "nothing to render", nil)
	}
	start := time.Now()
	l := s.labels
	pass := &renderPass{doc: document.New()}
	doc := pass.doc

	doc.AddTitle(l.Title, titleSizePt)
	doc.AddParagraph(s.metadataRuns(sub)...)
	doc.AddParagraph()
	doc.AddHeading(1, l.MaterialsHeading)

	if len(sub.Materials) == 0 {
		doc.AddText(l.NoMaterials)
		s.metrics.RecordRender(0, 0, time.Since(start))
		return doc, nil
	}

	for i, m := range sub.Materials {
		doc.AddHeading(2, fmt.Sprintf("%d. %s", i+1, l.Kind(string(m.Kind()))))

		switch p := m.Payload.(type) {
		case *models.ImagePayload:
			s.renderImages(ctx, pass, p.Files)
		case *models.AttachmentPayload:
			if p.File != nil {
				doc.AddText(fmt.Sprintf(l.Attachment, p.File.DisplayName()))
			} else {
				doc.AddText(l.NoAttachment)
			}
		default:
			s.renderText(pass, string(m.Kind()), m.Text())
		}

		desc := []document.Run{{Text: l.Description}}
		if strings.TrimSpace(m.Description) != "" {
			desc = append(desc, document.FromMarkup(markup.Interpret(normalizeNewlines(m.Description)))...)
		} else {
			desc = append(desc, document.Run{Text: l.NotProvided})
		}
		doc.AddParagraph(desc...)
		doc.AddParagraph()
	}

	s.metrics.RecordRender(len(sub.Materials), pass.placeholders, time.Since(start))
	return doc, nil
}

func (s *ExportService) metadataRuns(sub *models.Submission) []document.Run {
	l := s.labels
	services := l.ServicesNone
	if len(sub.Services) > 0 {
		services = strings.Join(sub.Services, ", ")
	}
	lines := []string{
		l.DateLine + sub.WorshipDate.Format(models.DateLayout),
		l.ServicesLine + services,
	}
	if sub.UserName != "" || sub.Position != "" || sub.Role != "" {
		lines = append(lines, l.Author(sub.UserName, sub.Position, sub.Role))
	}

	runs := make([]document.Run, 0, len(lines))
	for i, line := range lines {
		if i < len(lines)-1 {
			line += "\n"
		}
		runs = append(runs, document.Run{Text: line, Bold: true})
	}
	return runs
}

// renderText emits one paragraph per line; blank text gets the kind's
// "not provided" paragraph.
func (s *ExportService) renderText(pass *renderPass, kind, text string) {
	if strings.TrimSpace(text) == "" {
		pass.doc.AddText(s.labels.MissingText(kind))
		return
	}
	for _, line := range strings.Split(normalizeNewlines(text), "\n") {
		pass.doc.AddParagraph(document.FromMarkup(markup.Interpret(line))...)
	}
}

// normalizeNewlines turns CRLF and lone CR line endings into LF.
func normalizeNewlines(text string) string {
	return strings.ReplaceAll(strings.ReplaceAll(text, "\r\n", "\n"), "\r", "\n")
}

func (s *ExportService) renderImages(ctx context.Context, pass *renderPass, files []*models.Blob) {
	if len(files) == 0 {
		pass.doc.AddText(s.labels.NoImage)
		return
	}
	for _, f := range files {
		img, err := s.loadImage(ctx, f)
		if err != nil {
			itemErr := apperrors.NewItemRenderError(f.DisplayName(), err)
			s.logger.Warn("item render failure", map[string]interface{}{
				"file":  f.DisplayName(),
				"error": itemErr.Error(),
			})
			pass.placeholders++
			pass.doc.AddText(fmt.Sprintf(s.labels.ImageFailed, f.DisplayName()))
			continue
		}
		pass.doc.AddImage(img)
	}
}

func (s *ExportService) loadImage(ctx context.Context, f *models.Blob) (*document.Image, error) {
	data := f.Data
	if data == nil {
		if f.Ref == nil || f.Ref.StoragePath == "" {
			return nil, fmt.Errorf("file has neither content nor a stored copy")
		}
		if s.store == nil {
			return nil, fmt.Errorf("no blob store to resolve %s", f.Ref.StoragePath)
		}
		var err error
		data, err = s.store.Get(ctx, f.Ref.StoragePath)
		if err != nil {
			return nil, err
		}
	}
	return document.DecodeImage(f.DisplayName(), data)
}

// BuildDocx renders and encodes sub. A missing encoder is a fatal
// render_dependency_unavailable error.
func (s *ExportService) BuildDocx(ctx context.Context, sub *models.Submission) ([]byte, error) {
	if s.encoder == nil {
		return nil, apperrors.NewRenderUnavailableError("no document encoder configured")
	}
	doc, err := s.Render(ctx, sub)
	if err != nil {
		return nil, err
	}
	out, err := s.encoder.Encode(doc)
	if err != nil {
		return nil, apperrors.NewProcessingError("encode document", err)
	}
	s.logger.Info("document built", map[string]interface{}{
		"worship_date": sub.WorshipDate.Format(models.DateLayout),
		"materials":    len(sub.Materials),
		"bytes":        len(out),
	})
	return out, nil
}

// Filename is the download name for sub.
func (s *ExportService) Filename(sub *models.Submission) string {
	ext := "docx"
	if s.encoder != nil {
		ext = s.encoder.Extension()
	}
	return s.labels.FileName(sub.WorshipDate, sub.Services, ext)
}

// ContentType of the encoded document.
func (s *ExportService) ContentType() string {
	if s.encoder == nil {
		return "application/octet-stream"
	}
	return s.encoder.ContentType()
}
