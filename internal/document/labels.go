package document

import (
	"fmt"
	"strings"
	"time"
)

// Labels is the fixed wording the renderer writes around user content.
type Labels struct {
	Title            string
	DateLine         string // prefix before the ISO date
	ServicesLine     string
	ServicesNone     string
	AuthorLine       string // format: name, position, role
	NameMissing      string
	PositionMissing  string
	RoleMissing      string
	MaterialsHeading string
	NoMaterials      string
	TextMissing      map[string]string // by material kind
	NoImage          string
	ImageFailed      string // format: file name
	Attachment       string // format: file name
	NoAttachment     string
	Description      string
	NotProvided      string
	Kinds            map[string]string
	FilePrefix       string
	FileNoServices   string
}

// EnglishLabels names each material by its kind identifier.
var EnglishLabels = Labels{
	Title:            "Sermon Materials",
	DateLine:         "Date: ",
	ServicesLine:     "Services: ",
	ServicesNone:     "(none selected)",
	AuthorLine:       "Author/Role: %s (%s) - %s",
	NameMissing:      "(name not provided)",
	PositionMissing:  "(position not provided)",
	RoleMissing:      "(role not provided)",
	MaterialsHeading: "Materials (Storyboard)",
	NoMaterials:      "(no materials added)",
	TextMissing: map[string]string{
		"verse":      "(verse not provided)",
		"transcript": "(transcript not provided)",
	},
	NoImage:        "(no image file)",
	ImageFailed:    "(image could not be embedded) file: %s",
	Attachment:     "Attached file: %s (not embedded in this document)",
	NoAttachment:   "(no attached file)",
	Description:    "Description (storyboard): ",
	NotProvided:    "(not provided)",
	Kinds:          map[string]string{},
	FilePrefix:     "sermon-materials",
	FileNoServices: "unspecified",
}

// KoreanLabels is the wording the ministry staff use.
var KoreanLabels = Labels{
	Title:            "설교 자료",
	DateLine:         "날짜: ",
	ServicesLine:     "예배 구분: ",
	ServicesNone:     "(미선택)",
	AuthorLine:       "작성자/권한: %s (%s) - %s",
	NameMissing:      "(미입력)",
	PositionMissing:  "직분 미선택",
	RoleMissing:      "권한 미지정",
	MaterialsHeading: "자료 (스토리보드)",
	NoMaterials:      "(추가된 자료가 없습니다)",
	TextMissing: map[string]string{
		"verse":      "(성경 구절 미입력)",
		"transcript": "(설교 전문 미입력)",
	},
	NoImage:      "(이미지 파일 없음)",
	ImageFailed:  "(이미지 삽입 실패) 파일명: %s",
	Attachment:   "첨부 파일: %s (문서에 직접 삽입되지 않습니다)",
	NoAttachment: "(첨부 파일 없음)",
	Description:  "설명(스토리보드): ",
	NotProvided:  "(미입력)",
	Kinds: map[string]string{
		"verse":      "성경 구절",
		"image":      "이미지",
		"attachment": "기타 파일",
		"transcript": "설교 전문",
	},
	FilePrefix:     "설교자료",
	FileNoServices: "미지정",
}

// LabelsFor picks a label set by locale; anything but "en" gets Korean.
func LabelsFor(locale string) Labels {
	if strings.EqualFold(strings.TrimSpace(locale), "en") {
		return EnglishLabels
	}
	return KoreanLabels
}

// Kind returns the display label for a material kind.
func (l Labels) Kind(kind string) string {
	if label, ok := l.Kinds[kind]; ok {
		return label
	}
	return kind
}

// MissingText is the placeholder for a blank verse or transcript.
func (l Labels) MissingText(kind string) string {
	if s, ok := l.TextMissing[kind]; ok {
		return s
	}
	return l.NotProvided
}

// Author formats the author line with per-field placeholders.
func (l Labels) Author(name, position, role string) string {
	return fmt.Sprintf(l.AuthorLine, orDefault(name, l.NameMissing), orDefault(position, l.PositionMissing), orDefault(role, l.RoleMissing))
}

// FileName is the download name, e.g. 설교자료_20240609_1부-2부.docx.
func (l Labels) FileName(date time.Time, services []string, ext string) string {
	svc := l.FileNoServices
	if len(services) > 0 {
		svc = strings.Join(services, "-")
	}
	return fmt.Sprintf("%s_%s_%s.%s", l.FilePrefix, date.Format("20060102"), svc, ext)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
