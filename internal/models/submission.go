package models

import (
	"strings"
	"time"
)

// Status of a submission.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
)

// Direction for Move.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// BaseServices is the fixed service vocabulary offered before any custom entry.
var BaseServices = []string{"1부", "2부", "3부", "오후예배"}

// ServiceTags is an order-preserving set of service labels.
type ServiceTags []string

// Add appends label unless it is blank or already present.
func (t ServiceTags) Add(label string) ServiceTags {
	label = strings.TrimSpace(label)
	if label == "" || t.Contains(label) {
		return t
	}
	return append(t, label)
}

// Contains reports whether label is selected.
func (t ServiceTags) Contains(label string) bool {
	for _, s := range t {
		if s == label {
			return true
		}
	}
	return false
}

// NewServiceTags normalizes labels: trimmed, blanks dropped, first occurrence wins.
func NewServiceTags(labels ...string) ServiceTags {
	tags := ServiceTags{}
	for _, l := range labels {
		tags = tags.Add(l)
	}
	return tags
}

// Submission is one worship date's storyboard plus its metadata.
type Submission struct {
	WorshipDate  time.Time
	Services     ServiceTags
	UserName     string
	Position     string
	Role         string
	Materials    []*Material
	Status       Status
	SubmissionID string
	SavedAt      time.Time
}

// NewSubmission starts an empty draft for date.
func NewSubmission(date time.Time) *Submission {
	return &Submission{
		WorshipDate: DateOnly(date),
		Services:    ServiceTags{},
		Materials:   []*Material{},
		Status:      StatusDraft,
	}
}

// DateOnly truncates t to its calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddMaterial appends a new empty verse entry and returns it.
func (s *Submission) AddMaterial() *Material {
	m := NewMaterial()
	s.Materials = append(s.Materials, m)
	return m
}

// Material finds an entry by id.
func (s *Submission) Material(id string) *Material {
	if i := s.indexOf(id); i >= 0 {
		return s.Materials[i]
	}
	return nil
}

// RemoveMaterial drops the entry with id; unknown ids are ignored.
func (s *Submission) RemoveMaterial(id string) {
	i := s.indexOf(id)
	if i < 0 {
		return
	}
	s.Materials = append(s.Materials[:i], s.Materials[i+1:]...)
}

// Move swaps the entry with its neighbour. Moving past either end does nothing.
func (s *Submission) Move(id string, dir Direction) {
	i := s.indexOf(id)
	if i < 0 {
		return
	}
	j := i - 1
	if dir == Down {
		j = i + 1
	}
	if j < 0 || j >= len(s.Materials) {
		return
	}
	s.Materials[i], s.Materials[j] = s.Materials[j], s.Materials[i]
}

// SetKind switches the entry to kind, discarding the old payload.
// Description survives; setting the current kind again also clears the payload.
func (s *Submission) SetKind(id string, kind Kind) {
	if m := s.Material(id); m != nil {
		m.Payload = emptyPayload(kind)
	}
}

// Submitted reports whether the submission has been filed at least once.
func (s *Submission) Submitted() bool {
	return s.Status == StatusSubmitted
}

// Clone deep-copies the submission so a failed save cannot touch the original.
func (s *Submission) Clone() *Submission {
	c := *s
	c.Services = append(ServiceTags{}, s.Services...)
	c.Materials = make([]*Material, 0, len(s.Materials))
	for _, m := range s.Materials {
		c.Materials = append(c.Materials, m.Clone())
	}
	return &c
}

func (s *Submission) indexOf(id string) int {
	for i, m := range s.Materials {
		if m.ID == id {
			return i
		}
	}
	return -1
}
