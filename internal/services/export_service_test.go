package services

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ch2church/worship-storyboard/internal/document"
	apperrors "github.com/ch2church/worship-storyboard/internal/errors"
	"github.com/ch2church/worship-storyboard/internal/models"
	"github.com/ch2church/worship-storyboard/internal/storage"
	"github.com/ch2church/worship-storyboard/internal/utils"
)

var worshipDate = time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(y), B: uint8(x), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newExporter(store storage.BlobStore, labels document.Labels) (*ExportService, *utils.APIMetrics) {
	metrics := utils.NewAPIMetricsWith(utils.NewMetricsCollector())
	return NewExportService(store, document.NewDocxEncoder("", 0), labels, metrics), metrics
}

func texts(doc *document.Document) []string {
	out := make([]string, 0, len(doc.Blocks))
	for _, b := range doc.Blocks {
		if b.Kind == document.BlockImage {
			out = append(out, "[image "+b.Image.Name+"]")
			continue
		}
		out = append(out, b.Text())
	}
	return out
}

func TestRenderEndToEnd(t *testing.T) {
	sub := models.NewSubmission(worshipDate)
	sub.Services = models.NewServiceTags("1부")
	m := sub.AddMaterial()
	m.SetText("John 3:16")
	m.Description = "**emphasize** this"

	svc, metrics := newExporter(nil, document.EnglishLabels)
	doc, err := svc.Render(context.Background(), sub)
	require.NoError(t, err)

	require.Len(t, doc.Blocks, 8)
	assert.Equal(t, document.Block{
		Kind:  document.BlockTitle,
		Align: document.AlignCenter,
		Runs:  []document.Run{{Text: "Sermon Materials", Bold: true, SizePt: 20}},
	}, doc.Blocks[0])
	assert.Equal(t, []document.Run{
		{Text: "Date: 2024-06-09\n", Bold: true},
		{Text: "Services: 1부", Bold: true},
	}, doc.Blocks[1].Runs)
	assert.Equal(t, document.Block{Kind: document.BlockParagraph}, doc.Blocks[2])
	assert.Equal(t, document.Block{Kind: document.BlockHeading, Level: 1, Runs: []document.Run{{Text: "Materials (Storyboard)"}}}, doc.Blocks[3])
	assert.Equal(t, document.Block{Kind: document.BlockHeading, Level: 2, Runs: []document.Run{{Text: "1. verse"}}}, doc.Blocks[4])
	assert.Equal(t, []document.Run{{Text: "John 3:16"}}, doc.Blocks[5].Runs)
	assert.Equal(t, []document.Run{
		{Text: "Description (storyboard): "},
		{Text: "emphasize", Bold: true},
		{Text: " this"},
	}, doc.Blocks[6].Runs)
	assert.Equal(t, document.Block{Kind: document.BlockParagraph}, doc.Blocks[7])

	assert.EqualValues(t, 1, metrics.Collector().GetCounterValue("renders_total"))
}

func TestRenderEmptyStoryboard(t *testing.T) {
	sub := models.NewSubmission(worshipDate)
	svc, _ := newExporter(nil, document.KoreanLabels)

	doc, err := svc.Render(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"설교 자료",
		"날짜: 2024-06-09\n예배 구분: (미선택)",
		"",
		"자료 (스토리보드)",
		"(추가된 자료가 없습니다)",
	}, texts(doc))
}

func TestRenderAuthorLine(t *testing.T) {
	sub := models.NewSubmission(worshipDate)
	sub.Position = "담임목사"
	svc, _ := newExporter(nil, document.KoreanLabels)

	doc, err := svc.Render(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, "날짜: 2024-06-09\n예배 구분: (미선택)\n작성자/권한: (미입력) (담임목사) - 권한 미지정", doc.Blocks[1].Text())
}

func TestRenderBlankVerse(t *testing.T) {
	sub := models.NewSubmission(worshipDate)
	sub.AddMaterial().SetText("  \n\t ")
	svc, _ := newExporter(nil, document.EnglishLabels)

	doc, err := svc.Render(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"1. verse",
		"(verse not provided)",
		"Description (storyboard): (not provided)",
		"",
	}, texts(doc)[4:])
}

func TestRenderTextLines(t *testing.T) {
	sub := models.NewSubmission(worshipDate)
	m := sub.AddMaterial()
	sub.SetKind(m.ID, models.KindTranscript)
	m.SetText("first ==line==\r\n\r\nthird")
	svc, _ := newExporter(nil, document.EnglishLabels)

	doc, err := svc.Render(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, []string{"1. transcript", "first line", "", "third"}, texts(doc)[4:8])
	assert.Equal(t, []document.Run{{Text: "first "}, {Text: "line", Highlight: true}}, doc.Blocks[5].Runs)
	assert.Empty(t, doc.Blocks[6].Runs)
}

func TestRenderLoneCarriageReturnSplitsLines(t *testing.T) {
	sub := models.NewSubmission(worshipDate)
	m := sub.AddMaterial()
	m.SetText("one\rtwo")
	svc, _ := newExporter(nil, document.EnglishLabels)

	doc, err := svc.Render(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, []string{"1. verse", "one", "two"}, texts(doc)[4:7])
}

func TestRenderMultiLineDescription(t *testing.T) {
	sub := models.NewSubmission(worshipDate)
	m := sub.AddMaterial()
	m.SetText("John 3:16")
	m.Description = "**start\nend**\r==slow== pace"
	svc, _ := newExporter(nil, document.EnglishLabels)

	doc, err := svc.Render(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, []document.Run{
		{Text: "Description (storyboard): "},
		{Text: "**start\nend**\n"},
		{Text: "slow", Highlight: true},
		{Text: " pace"},
	}, doc.Blocks[6].Runs)
	for _, r := range doc.Blocks[6].Runs {
		if r.Bold || r.Highlight {
			assert.NotContains(t, r.Text, "\n")
		}
	}
}

func TestRenderBadImageDoesNotAbort(t *testing.T) {
	sub := models.NewSubmission(worshipDate)
	img := sub.AddMaterial()
	sub.SetKind(img.ID, models.KindImage)
	img.AddFile(models.NewBlob("broken.png", []byte("not an image")))
	img.AddFile(models.NewBlob("good.png", pngBytes(t, 10, 5)))

	att := sub.AddMaterial()
	sub.SetKind(att.ID, models.KindAttachment)
	att.AddFile(models.NewBlob("slides.pptx", []byte("pk")))

	empty := sub.AddMaterial()
	sub.SetKind(empty.ID, models.KindImage)

	svc, metrics := newExporter(nil, document.EnglishLabels)
	doc, err := svc.Render(context.Background(), sub)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"1. image",
		"(image could not be embedded) file: broken.png",
		"[image good.png]",
		"Description (storyboard): (not provided)",
		"",
		"2. attachment",
		"Attached file: slides.pptx (not embedded in this document)",
		"Description (storyboard): (not provided)",
		"",
		"3. image",
		"(no image file)",
		"Description (storyboard): (not provided)",
		"",
	}, texts(doc)[4:])

	placeholders := 0
	for _, b := range doc.Blocks {
		if b.Text() == "(image could not be embedded) file: broken.png" {
			placeholders++
		}
	}
	assert.Equal(t, 1, placeholders)
	assert.EqualValues(t, 1, metrics.Collector().GetCounterValue("render_placeholders_total"))
}

func TestRenderResolvesStoredImages(t *testing.T) {
	ctx := context.Background()
	fs, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	data := pngBytes(t, 8, 8)
	_, err = fs.Put(ctx, "submissions/2024-06-09/kim/draft/files/abcd1234_cross.png", data, "")
	require.NoError(t, err)

	sub := models.NewSubmission(worshipDate)
	m := sub.AddMaterial()
	sub.SetKind(m.ID, models.KindImage)
	m.AddFile(models.NewRefBlob(&models.FileRef{Name: "cross.png", StoragePath: "submissions/2024-06-09/kim/draft/files/abcd1234_cross.png"}))
	m.AddFile(models.NewRefBlob(&models.FileRef{Name: "gone.png", StoragePath: "submissions/2024-06-09/kim/draft/files/ffff0000_gone.png"}))
	m.AddFile(models.NewRefBlob(&models.FileRef{Name: "unfiled.png"}))

	svc, _ := newExporter(fs, document.EnglishLabels)
	doc, err := svc.Render(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"[image cross.png]",
		"(image could not be embedded) file: gone.png",
		"(image could not be embedded) file: unfiled.png",
	}, texts(doc)[5:8])
}

func TestBuildDocx(t *testing.T) {
	sub := models.NewSubmission(worshipDate)
	sub.Services = models.NewServiceTags("1부", "2부")
	m := sub.AddMaterial()
	m.SetText("요 3:16 ==하나님이== 세상을")

	svc, _ := newExporter(nil, document.KoreanLabels)
	out, err := svc.BuildDocx(context.Background(), sub)
	require.NoError(t, err)

	paras, err := document.Paragraphs(out)
	require.NoError(t, err)
	assert.Contains(t, paras, "1. 성경 구절")
	assert.Contains(t, paras, "요 3:16 하나님이 세상을")
	assert.Equal(t, "설교자료_20240609_1부-2부.docx", svc.Filename(sub))
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", svc.ContentType())
}

func TestBuildDocxWithoutEncoder(t *testing.T) {
	svc := NewExportService(nil, nil, document.EnglishLabels, nil)
	_, err := svc.BuildDocx(context.Background(), models.NewSubmission(worshipDate))
	require.Error(t, err)
	assert.True(t, apperrors.IsRenderUnavailableError(err))

	_, err = svc.Render(context.Background(), nil)
	assert.True(t, apperrors.IsValidationError(err))
}
