// internal/api/handlers.go
package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ch2church/worship-storyboard/internal/auth"
	"github.com/ch2church/worship-storyboard/internal/config"
	apperrors "github.com/ch2church/worship-storyboard/internal/errors"
	"github.com/ch2church/worship-storyboard/internal/models"
	"github.com/ch2church/worship-storyboard/internal/services"
	"github.com/ch2church/worship-storyboard/internal/utils"
)

// DefaultMaxUploadBytes caps one uploaded file.
const DefaultMaxUploadBytes int64 = 25 << 20

// Handler serves the storyboard API. Stats is optional.
type Handler struct {
	Sessions       *services.SessionService
	Submissions    *services.SubmissionService
	Export         *services.ExportService
	Verses         *services.VerseService
	Gate           *auth.AccessGate
	Tokens         *auth.TokenConfig
	Reviews        *ReviewHub
	Metrics        *utils.APIMetrics
	Stats          *services.StatsService
	Response       *ResponseHelper
	MaxUploadBytes int64
}

// NewHandler wires the services into a Handler.
func NewHandler(
	sessions *services.SessionService,
	submissions *services.SubmissionService,
	export *services.ExportService,
	verses *services.VerseService,
	gate *auth.AccessGate,
	tokens *auth.TokenConfig,
	reviews *ReviewHub,
	metrics *utils.APIMetrics) *Handler {

	if metrics == nil {
		metrics = utils.NewAPIMetrics()
	}
	return &Handler{
		Sessions:       sessions,
		Submissions:    submissions,
		Export:         export,
		Verses:         verses,
		Gate:           gate,
		Tokens:         tokens,
		Reviews:        reviews,
		Metrics:        metrics,
		Response:       NewResponseHelper(),
		MaxUploadBytes: DefaultMaxUploadBytes,
	}
}

// SessionView is what clients see of their session.
type SessionView struct {
	SessionID    string                   `json:"session_id"`
	User         services.UserInfo        `json:"user"`
	CanEdit      bool                     `json:"can_edit"`
	SubmissionID string                   `json:"submission_id,omitempty"`
	Submission   *models.SubmissionRecord `json:"submission"`
}

func newSessionView(s *services.Session) *SessionView {
	return &SessionView{
		SessionID:    s.ID,
		User:         s.User,
		CanEdit:      s.CanEdit,
		SubmissionID: s.SubmissionID,
		Submission:   s.Submission.Serialize(),
	}
}

// LoginResponse carries the bearer token for later requests.
type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	Session   *SessionView `json:"session"`
}

type updateMetaRequest struct {
	WorshipDate *string   `json:"worship_date"`
	Services    *[]string `json:"services"`
}

type addServiceRequest struct {
	Name string `json:"name" binding:"required"`
}

type addMaterialRequest struct {
	Kind string `json:"kind"`
}

type updateMaterialRequest struct {
	Kind        *string `json:"kind"`
	Text        *string `json:"text"`
	Description *string `json:"description"`
}

type moveRequest struct {
	Direction string `json:"direction" binding:"required"`
}

type verseRequest struct {
	Book    string `json:"book" binding:"required"`
	Chapter int    `json:"chapter" binding:"required"`
	From    int    `json:"from"`
	To      int    `json:"to"`
}

type loadDraftRequest struct {
	WorshipDate string `json:"worship_date"`
}

// bindOptional accepts an empty body.
func bindOptional(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(models.DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, apperrors.NewValidationError(field, fmt.Sprintf("%q is not a YYYY-MM-DD date", value), err)
	}
	return t, nil
}

func findMaterial(s *services.Session, id string) (*models.Material, error) {
	m := s.Submission.Material(id)
	if m == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("material %s not found", id), nil)
	}
	return m, nil
}

func parseKind(value string) (models.Kind, error) {
	kind, ok := models.ParseKind(value)
	if !ok {
		return "", apperrors.NewValidationError("kind", fmt.Sprintf("unknown material kind %q", value), nil)
	}
	return kind, nil
}

// mutate runs fn as an editor and answers with the resulting session.
func (h *Handler) mutate(c *gin.Context, status int, fn func(*services.Session) error) {
	var view *SessionView
	err := h.Sessions.Edit(sessionID(c), func(s *services.Session) error {
		if err := fn(s); err != nil {
			return err
		}
		view = newSessionView(s)
		return nil
	})
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	if status == http.StatusCreated {
		h.Response.Created(c, view)
		return
	}
	h.Response.Success(c, view)
}

// Health answers load balancer probes.
func (h *Handler) Health(c *gin.Context) {
	h.Response.Success(c, gin.H{"status": "ok"})
}

// Login checks the access code and opens a session.
func (h *Handler) Login(c *gin.Context) {
	var creds auth.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		h.Response.BadRequest(c, "invalid login request", err.Error())
		return
	}

	canEdit, err := h.Gate.Admit(creds)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	sess := h.Sessions.Create(services.UserInfo{
		Name:     strings.TrimSpace(creds.UserName),
		Position: strings.TrimSpace(creds.Position),
		Role:     strings.TrimSpace(creds.Role),
	}, canEdit)

	token, err := auth.GenerateToken(sess.ID, sess.User.Role, h.Tokens)
	if err != nil {
		h.Sessions.Delete(sess.ID)
		h.Response.InternalError(c, "could not issue token")
		return
	}

	h.recordActivity(services.EventLogin)

	var view *SessionView
	_ = h.Sessions.View(sess.ID, func(s *services.Session) error {
		view = newSessionView(s)
		return nil
	})
	h.Response.Created(c, &LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.Tokens.Expiration),
		Session:   view,
	}, "signed in")
}

// Logout ends the session.
func (h *Handler) Logout(c *gin.Context) {
	h.Sessions.Delete(sessionID(c))
	h.Response.Success(c, nil, "signed out")
}

// GetSession returns the working storyboard.
func (h *Handler) GetSession(c *gin.Context) {
	var view *SessionView
	err := h.Sessions.View(sessionID(c), func(s *services.Session) error {
		view = newSessionView(s)
		return nil
	})
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, view)
}

// UpdateMeta sets the worship date and selected services.
func (h *Handler) UpdateMeta(c *gin.Context) {
	var req updateMetaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	var date time.Time
	if req.WorshipDate != nil {
		d, err := parseDate("worship_date", *req.WorshipDate)
		if err != nil {
			h.Response.AppError(c, err)
			return
		}
		date = d
	}

	h.mutate(c, http.StatusOK, func(s *services.Session) error {
		if req.WorshipDate != nil {
			s.Submission.WorshipDate = models.DateOnly(date)
		}
		if req.Services != nil {
			s.Submission.Services = models.NewServiceTags(*req.Services...)
		}
		return nil
	})
}

// ListServiceOptions returns the selectable service tags.
func (h *Handler) ListServiceOptions(c *gin.Context) {
	h.Response.Success(c, gin.H{"options": config.ServiceOptions()})
}

// AddServiceOption stores a custom service tag and selects it.
func (h *Handler) AddServiceOption(c *gin.Context) {
	var req addServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "service name is required", err.Error())
		return
	}

	h.mutate(c, http.StatusOK, func(s *services.Session) error {
		label, _, err := config.AddServiceOption(req.Name)
		if err != nil {
			return apperrors.NewValidationError("name", err.Error(), err)
		}
		s.Submission.Services = s.Submission.Services.Add(label)
		return nil
	})
}

// AddMaterial appends an entry, a verse unless kind says otherwise.
func (h *Handler) AddMaterial(c *gin.Context) {
	var req addMaterialRequest
	if err := bindOptional(c, &req); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	h.mutate(c, http.StatusCreated, func(s *services.Session) error {
		kind := models.KindVerse
		if req.Kind != "" {
			k, err := parseKind(req.Kind)
			if err != nil {
				return err
			}
			kind = k
		}
		m := s.Submission.AddMaterial()
		s.Submission.SetKind(m.ID, kind)
		return nil
	})
}

// UpdateMaterial changes kind, text or description. A kind change is
// applied first and discards the old payload; resending the current kind
// keeps it.
func (h *Handler) UpdateMaterial(c *gin.Context) {
	var req updateMaterialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	id := c.Param("id")
	h.mutate(c, http.StatusOK, func(s *services.Session) error {
		m, err := findMaterial(s, id)
		if err != nil {
			return err
		}
		kind := m.Kind()
		if req.Kind != nil {
			if kind, err = parseKind(*req.Kind); err != nil {
				return err
			}
		}
		if req.Text != nil && kind != models.KindVerse && kind != models.KindTranscript {
			return apperrors.NewValidationError("text", fmt.Sprintf("%s materials have no text", kind), nil)
		}

		if kind != m.Kind() {
			s.Submission.SetKind(id, kind)
		}
		if req.Text != nil {
			m.SetText(*req.Text)
		}
		if req.Description != nil {
			m.Description = *req.Description
		}
		return nil
	})
}

// DeleteMaterial removes an entry. Unknown ids leave the storyboard as is.
func (h *Handler) DeleteMaterial(c *gin.Context) {
	id := c.Param("id")
	h.mutate(c, http.StatusOK, func(s *services.Session) error {
		s.Submission.RemoveMaterial(id)
		return nil
	})
}

// MoveMaterial swaps an entry with its neighbour.
func (h *Handler) MoveMaterial(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "direction is required", err.Error())
		return
	}
	dir := models.Direction(strings.ToLower(req.Direction))
	if dir != models.Up && dir != models.Down {
		h.Response.AppError(c, apperrors.NewValidationError("direction", "direction must be up or down", nil))
		return
	}

	id := c.Param("id")
	h.mutate(c, http.StatusOK, func(s *services.Session) error {
		s.Submission.Move(id, dir)
		return nil
	})
}

// UploadFiles attaches multipart "files" to an image or attachment entry.
// Images accumulate; an attachment keeps only its latest file.
func (h *Handler) UploadFiles(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.Response.BadRequest(c, "expected a multipart form", err.Error())
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		h.Response.Error(c, http.StatusBadRequest, ErrorUploadMissing, "no files uploaded")
		return
	}

	blobs := make([]*models.Blob, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > h.MaxUploadBytes {
			h.Response.Error(c, http.StatusRequestEntityTooLarge, ErrorFileTooLarge,
				fmt.Sprintf("%s exceeds %d bytes", fh.Filename, h.MaxUploadBytes))
			return
		}
		f, err := fh.Open()
		if err != nil {
			h.Response.BadRequest(c, "cannot read upload", err.Error())
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, h.MaxUploadBytes+1))
		f.Close()
		if err != nil {
			h.Response.BadRequest(c, "cannot read upload", err.Error())
			return
		}
		if int64(len(data)) > h.MaxUploadBytes {
			h.Response.Error(c, http.StatusRequestEntityTooLarge, ErrorFileTooLarge,
				fmt.Sprintf("%s exceeds %d bytes", fh.Filename, h.MaxUploadBytes))
			return
		}
		name := filepath.Base(strings.ReplaceAll(fh.Filename, "\\", "/"))
		blobs = append(blobs, models.NewBlob(name, data))
	}

	id := c.Param("id")
	h.mutate(c, http.StatusOK, func(s *services.Session) error {
		m, err := findMaterial(s, id)
		if err != nil {
			return err
		}
		switch m.Kind() {
		case models.KindImage:
		case models.KindAttachment:
			if len(blobs) > 1 {
				return apperrors.NewValidationError("files", "an attachment takes a single file", nil)
			}
		default:
			return apperrors.NewValidationError("files", fmt.Sprintf("%s materials take no files", m.Kind()), nil)
		}
		for _, b := range blobs {
			m.AddFile(b)
		}
		return nil
	})
}

// FillVerse looks up a passage and writes it into a verse entry.
func (h *Handler) FillVerse(c *gin.Context) {
	var req verseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "book and chapter are required", err.Error())
		return
	}

	text, err := h.Verses.Passage(c.Request.Context(), req.Book, req.Chapter, req.From, req.To)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	id := c.Param("id")
	h.mutate(c, http.StatusOK, func(s *services.Session) error {
		m, err := findMaterial(s, id)
		if err != nil {
			return err
		}
		if m.Kind() != models.KindVerse {
			return apperrors.NewValidationError("kind", "passages can only fill verse materials", nil)
		}
		m.SetText(text)
		return nil
	})
}

// ListBooks returns the book catalog.
func (h *Handler) ListBooks(c *gin.Context) {
	h.Response.Success(c, h.Verses.Books())
}

// GetChapter returns the verses of one chapter.
func (h *Handler) GetChapter(c *gin.Context) {
	chapter, err := strconv.Atoi(c.Param("chapter"))
	if err != nil {
		h.Response.AppError(c, apperrors.NewValidationError("chapter", "chapter must be a number", err))
		return
	}
	verses, err := h.Verses.Lookup(c.Request.Context(), c.Param("book"), chapter)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	book, _ := h.Verses.FindBook(c.Param("book"))
	h.Response.Success(c, gin.H{"book": book, "chapter": chapter, "verses": verses})
}

// SaveDraft writes the working storyboard as the author's draft.
func (h *Handler) SaveDraft(c *gin.Context) {
	var res *services.SaveResult
	err := h.Sessions.Edit(sessionID(c), func(s *services.Session) error {
		var err error
		res, err = h.Submissions.SaveDraft(c.Request.Context(), s)
		return err
	})
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.recordActivity(services.EventDraftSaved)
	h.Response.Success(c, res, "draft saved")
}

// LoadDraft replaces the working storyboard with a saved draft.
func (h *Handler) LoadDraft(c *gin.Context) {
	var req loadDraftRequest
	if err := bindOptional(c, &req); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	var date time.Time
	if req.WorshipDate != "" {
		d, err := parseDate("worship_date", req.WorshipDate)
		if err != nil {
			h.Response.AppError(c, err)
			return
		}
		date = d
	}

	h.mutate(c, http.StatusOK, func(s *services.Session) error {
		if date.IsZero() {
			date = s.Submission.WorshipDate
		}
		_, err := h.Submissions.LoadDraft(c.Request.Context(), s, date)
		return err
	})
}

// Submit files the storyboard for review.
func (h *Handler) Submit(c *gin.Context) {
	var res *services.SaveResult
	err := h.Sessions.Edit(sessionID(c), func(s *services.Session) error {
		var err error
		res, err = h.Submissions.Submit(c.Request.Context(), s)
		return err
	})
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.recordActivity(services.EventSubmitted)
	h.Response.Success(c, res, "submitted")
}

// ListSubmissions lists what was filed for ?date, defaulting to the
// session's worship date.
func (h *Handler) ListSubmissions(c *gin.Context) {
	var date time.Time
	if q := c.Query("date"); q != "" {
		d, err := parseDate("date", q)
		if err != nil {
			h.Response.AppError(c, err)
			return
		}
		date = d
	} else {
		err := h.Sessions.View(sessionID(c), func(s *services.Session) error {
			date = s.Submission.WorshipDate
			return nil
		})
		if err != nil {
			h.Response.AppError(c, err)
			return
		}
	}

	list, err := h.Submissions.ListSubmissions(c.Request.Context(), date)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"date": date.Format(models.DateLayout), "submissions": list})
}

// GetRecord returns one stored record.
func (h *Handler) GetRecord(c *gin.Context) {
	sub, err := h.Submissions.LoadRecord(c.Request.Context(), c.Query("path"))
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, sub.Serialize())
}

// DownloadFile streams a stored attachment.
func (h *Handler) DownloadFile(c *gin.Context) {
	p := c.Query("path")
	data, err := h.Submissions.Attachment(c.Request.Context(), p)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	name := path.Base(p)
	h.Response.DownloadResponse(c, data, name, models.DetectContentType(name, data))
}

// ExportDocx renders the working storyboard, or the stored record at
// ?path, as a Word document.
func (h *Handler) ExportDocx(c *gin.Context) {
	ctx := c.Request.Context()

	var sub *models.Submission
	if p := c.Query("path"); p != "" {
		s, err := h.Submissions.LoadRecord(ctx, p)
		if err != nil {
			h.Response.AppError(c, err)
			return
		}
		sub = s
	} else {
		err := h.Sessions.View(sessionID(c), func(s *services.Session) error {
			sub = s.Submission.Clone()
			return nil
		})
		if err != nil {
			h.Response.AppError(c, err)
			return
		}
	}

	data, err := h.Export.BuildDocx(ctx, sub)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.recordActivity(services.EventExported)
	h.Response.DownloadResponse(c, data, h.Export.Filename(sub), h.Export.ContentType())
}

// GetMetrics reports collector values, sessions and review clients.
func (h *Handler) GetMetrics(c *gin.Context) {
	data := gin.H{
		"metrics":  h.Metrics.Collector().GetMetrics(),
		"sessions": h.Sessions.Count(),
	}
	if h.Reviews != nil {
		data["reviews"] = h.Reviews.GetStatus()
	}
	if h.Stats != nil {
		data["activity"] = h.Stats.Snapshot()
	}
	h.Response.Success(c, data)
}

func (h *Handler) recordActivity(event string) {
	if err := h.Stats.Record(event); err != nil {
		utils.GetLogger().Warn("activity stats not saved", map[string]interface{}{"event": event, "error": err.Error()})
	}
}
