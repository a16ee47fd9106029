// Package models defines the domain types for the study library.
package models

import (
	"strings"
	"time"
)

// Timestamp layouts.
const (
	// ISOLayout is fixed width so that string order equals chronological order.
	ISOLayout = "2006-01-02T15:04:05.000000"
	// DisplayLayout is the default human-readable rendering.
	DisplayLayout = "02/01/2006 15:04"
)

// FallbackTopic is used when a study is created without any topic.
const FallbackTopic = "Outros"

// DefaultTopics returns a fresh copy of the built-in topic list.
func DefaultTopics() TopicSet {
	return TopicSet{
		"Teologia Sistemática",
		"Estudos Bíblicos",
		"Línguas Originais (Grego)",
		"Línguas Originais (Hebraico)",
		"Assuntos Polêmicos",
		"Curiosidades",
		"Apologética",
		"História da Igreja",
		"Outros",
	}
}

// Study is a single recorded entry of the library.
type Study struct {
	ID        string   `json:"id"`
	Title     string   `json:"titulo"`
	Topic     string   `json:"tema"`
	Summary   string   `json:"resumo"`
	Body      string   `json:"anotacoes"`
	Link      string   `json:"link"`
	Tags      []string `json:"tags"`
	CreatedAt string   `json:"criado_em_iso"`
	// CreatedAtDisplay renders the same instant as CreatedAt.
	CreatedAtDisplay string `json:"criado_em"`
}

// StudyInput carries the user-supplied fields of a new study.
type StudyInput struct {
	Title   string
	Topic   string
	Summary string
	Body    string
	Link    string
	Tags    []string
}

// Stamp holds both renderings of a creation instant.
type Stamp struct {
	ISO     string
	Display string
}

// Stamper renders creation instants.
type Stamper struct {
	DisplayLayout string
	Location      *time.Location
}

// Stamp renders t in both formats. The two fields are always produced together.
func (s Stamper) Stamp(t time.Time) Stamp {
	if s.Location != nil {
		t = t.In(s.Location)
	}
	layout := s.DisplayLayout
	if layout == "" {
		layout = DisplayLayout
	}
	return Stamp{
		ISO:     t.Format(ISOLayout),
		Display: t.Format(layout),
	}
}

// NewStudy builds a study from user input. All text fields are trimmed and
// tags are never nil.
func NewStudy(id string, in StudyInput, stamp Stamp) Study {
	tags := make([]string, 0, len(in.Tags))
	for _, t := range in.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return Study{
		ID:               id,
		Title:            strings.TrimSpace(in.Title),
		Topic:            strings.TrimSpace(in.Topic),
		Summary:          strings.TrimSpace(in.Summary),
		Body:             strings.TrimSpace(in.Body),
		Link:             strings.TrimSpace(in.Link),
		Tags:             tags,
		CreatedAt:        stamp.ISO,
		CreatedAtDisplay: stamp.Display,
	}
}

// Clone returns a deep copy of s.
func (s Study) Clone() Study {
	s.Tags = append([]string(nil), s.Tags...)
	if s.Tags == nil {
		s.Tags = []string{}
	}
	return s
}
