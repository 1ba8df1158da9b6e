package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ch2church/worship-storyboard/internal/errors"
)

func ids(s *Submission) []string {
	out := make([]string, 0, len(s.Materials))
	for _, m := range s.Materials {
		out = append(out, m.ID)
	}
	return out
}

func newThree(t *testing.T) (*Submission, []string) {
	t.Helper()
	s := NewSubmission(time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC))
	s.AddMaterial()
	s.AddMaterial()
	s.AddMaterial()
	return s, ids(s)
}

func TestAddMaterialDefaults(t *testing.T) {
	s := NewSubmission(time.Now())
	a := s.AddMaterial()
	b := s.AddMaterial()

	assert.Equal(t, KindVerse, a.Kind())
	assert.Equal(t, "", a.Text())
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, s.Materials, 2)
}

func TestRemoveMaterial(t *testing.T) {
	s, before := newThree(t)

	s.RemoveMaterial("missing")
	assert.Equal(t, before, ids(s))

	s.RemoveMaterial(before[1])
	assert.Equal(t, []string{before[0], before[2]}, ids(s))
}

func TestMoveBoundariesAreNoops(t *testing.T) {
	s, before := newThree(t)

	s.Move(before[0], Up)
	assert.Equal(t, before, ids(s))

	s.Move(before[2], Down)
	assert.Equal(t, before, ids(s))

	s.Move("missing", Up)
	assert.Equal(t, before, ids(s))
}

func TestMoveIsSelfInverse(t *testing.T) {
	s, before := newThree(t)

	s.Move(before[1], Up)
	assert.Equal(t, []string{before[1], before[0], before[2]}, ids(s))
	s.Move(before[1], Down)
	assert.Equal(t, before, ids(s))

	s.Move(before[1], Down)
	assert.Equal(t, []string{before[0], before[2], before[1]}, ids(s))
	s.Move(before[1], Up)
	assert.Equal(t, before, ids(s))
}

func TestSetKindClearsPayload(t *testing.T) {
	s := NewSubmission(time.Now())
	m := s.AddMaterial()
	m.Description = "==keep=="
	require.True(t, m.SetText("요한복음 3:16"))

	s.SetKind(m.ID, KindImage)
	assert.Equal(t, KindImage, m.Kind())
	assert.Empty(t, m.Blobs())
	assert.Equal(t, "", m.Text())
	assert.Equal(t, "==keep==", m.Description)
	assert.False(t, m.SetText("ignored"))

	require.True(t, m.AddFile(NewBlob("a.png", []byte{1})))
	s.SetKind(m.ID, KindVerse)
	assert.Empty(t, m.Blobs())
	assert.Equal(t, "", m.Text())
}

func TestAttachmentHoldsOneFile(t *testing.T) {
	s := NewSubmission(time.Now())
	m := s.AddMaterial()
	s.SetKind(m.ID, KindAttachment)

	m.AddFile(NewBlob("a.pdf", []byte("one")))
	m.AddFile(NewBlob("b.pdf", []byte("two")))

	require.Len(t, m.Blobs(), 1)
	assert.Equal(t, "b.pdf", m.Blobs()[0].DisplayName())
}

func TestServiceTagsDeduplicate(t *testing.T) {
	tags := NewServiceTags("1부", " 2부 ", "1부", "", "청년예배")
	assert.Equal(t, ServiceTags{"1부", "2부", "청년예배"}, tags)
	assert.Equal(t, ServiceTags{"1부", "2부", "청년예배"}, tags.Add("2부"))
}

func TestCloneIsDeep(t *testing.T) {
	s := NewSubmission(time.Now())
	m := s.AddMaterial()
	s.SetKind(m.ID, KindImage)
	m.AddFile(NewBlob("a.png", []byte{1, 2, 3}))

	c := s.Clone()
	c.Materials[0].Blobs()[0].Data[0] = 9
	c.Materials[0].Description = "changed"
	c.Services = c.Services.Add("1부")

	assert.Equal(t, byte(1), m.Blobs()[0].Data[0])
	assert.Equal(t, "", m.Description)
	assert.Empty(t, s.Services)
}

func TestRoundTripPreservesFields(t *testing.T) {
	s := NewSubmission(time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC))
	s.Services = NewServiceTags("1부", "오후예배")
	s.UserName = "홍길동"
	s.Position = "부목사"
	s.Role = "교역자"
	s.Status = StatusSubmitted
	s.SubmissionID = "20240609-101500-abcd1234"
	s.SavedAt = time.Date(2024, 6, 8, 21, 30, 0, 0, time.UTC)

	verse := s.AddMaterial()
	verse.SetText("요한복음 3:16\n\n하나님이 세상을")
	verse.Description = "**emphasize** this"

	img := s.AddMaterial()
	s.SetKind(img.ID, KindImage)
	img.AddFile(NewRefBlob(&FileRef{Name: "a.png", StoragePath: "s/files/abc_a.png", Size: 3, ContentType: "image/png", ContentHash: "abc"}))

	att := s.AddMaterial()
	s.SetKind(att.ID, KindAttachment)

	tr := s.AddMaterial()
	s.SetKind(tr.ID, KindTranscript)
	tr.SetText("line one\nline two")

	data, err := EncodeJSON(s)
	require.NoError(t, err)
	got, err := DecodeJSON(data)
	require.NoError(t, err)

	assert.Equal(t, s, got)
}

func TestRoundTripReplacesBytesWithReference(t *testing.T) {
	s := NewSubmission(time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC))
	img := s.AddMaterial()
	s.SetKind(img.ID, KindImage)
	img.AddFile(NewBlob("a.png", []byte("raw-bytes")))

	rec := s.Serialize()
	require.Len(t, rec.Materials[0].Files, 1)
	ref := rec.Materials[0].Files[0]
	assert.Equal(t, "a.png", ref.Name)
	assert.Equal(t, int64(9), ref.Size)
	assert.Equal(t, ContentHash([]byte("raw-bytes")), ref.ContentHash)

	got, err := Deserialize(rec)
	require.NoError(t, err)
	blob := got.Materials[0].Blobs()[0]
	assert.Nil(t, blob.Data)
	assert.Equal(t, ref, blob.Ref)
}

func TestSerializeOmitsSubmissionIDForDrafts(t *testing.T) {
	s := NewSubmission(time.Now())
	s.SubmissionID = "stale"
	assert.Equal(t, "", s.Serialize().SubmissionID)
	assert.Equal(t, "draft", s.Serialize().Status)
}

func TestDeserializeValidation(t *testing.T) {
	t.Run("MalformedDate", func(t *testing.T) {
		_, err := Deserialize(&SubmissionRecord{WorshipDate: "2024/06/09"})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidationError(err))
		assert.Equal(t, "worship_date", apperrors.FieldOf(err))
	})

	t.Run("UnknownKind", func(t *testing.T) {
		_, err := Deserialize(&SubmissionRecord{
			WorshipDate: "2024-06-09",
			Materials:   []MaterialRecord{{ID: "a", Kind: "verse"}, {ID: "b", Kind: "video"}},
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidationError(err))
		assert.Equal(t, "materials[1].kind", apperrors.FieldOf(err))
	})

	t.Run("DuplicateID", func(t *testing.T) {
		_, err := Deserialize(&SubmissionRecord{
			WorshipDate: "2024-06-09",
			Materials:   []MaterialRecord{{ID: "a"}, {ID: "a"}},
		})
		require.Error(t, err)
		assert.Equal(t, "materials[1].id", apperrors.FieldOf(err))
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		_, err := DecodeJSON([]byte("{"))
		assert.True(t, apperrors.IsValidationError(err))
	})
}

func TestDeserializeDefaultsAndLegacyRecords(t *testing.T) {
	data := []byte(`{
		"worship_date": "2024-06-09",
		"materials": [
			{"id": "m1", "kind": "성경 구절", "verse_text": "시편 23:1", "files": [], "file": null, "full_text": "ignored"},
			{"kind": "이미지", "file": {"name": "old.jpg", "storage_path": "x/old.jpg"}},
			{"id": "m3"}
		],
		"saved_at": "2024-06-08T21:30:00.123456"
	}`)

	s, err := DecodeJSON(data)
	require.NoError(t, err)

	assert.Equal(t, StatusDraft, s.Status)
	assert.Empty(t, s.Services)
	require.Len(t, s.Materials, 3)
	assert.Equal(t, KindVerse, s.Materials[0].Kind())
	assert.Equal(t, "시편 23:1", s.Materials[0].Text())
	assert.Equal(t, KindImage, s.Materials[1].Kind())
	assert.NotEmpty(t, s.Materials[1].ID)
	require.Len(t, s.Materials[1].Blobs(), 1)
	assert.Equal(t, "old.jpg", s.Materials[1].Blobs()[0].DisplayName())
	assert.Equal(t, KindVerse, s.Materials[2].Kind())
	assert.Equal(t, 2024, s.SavedAt.Year())
}
