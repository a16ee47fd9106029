package api

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/teologia/internal/index"
	"github.com/starford/teologia/internal/library"
	"github.com/starford/teologia/internal/models"
	"github.com/starford/teologia/internal/query"
)

// Field limits for incoming studies.
const (
	maxTitleRunes   = 300
	maxTopicRunes   = 120
	maxSummaryRunes = 5000
	maxBodyRunes    = 200000
	maxLinkRunes    = 2048
	maxTagsRunes    = 2000
	maxBodyBytes    = 2 << 20
)

// CreateStudyRequest is the request body for creating a study. The same
// field names are accepted as form values.
type CreateStudyRequest struct {
	Title         string `json:"titulo" example:"A prova da fé"`
	TopicExisting string `json:"tema_existente" example:"Apologética"`
	TopicNew      string `json:"tema_novo" example:""`
	Summary       string `json:"resumo"`
	Body          string `json:"anotacoes"`
	Link          string `json:"link" example:"https://example.com"`
	Tags          string `json:"tags" example:"fé, provações"`
}

// Validate implements validation.Validatable. A blank title is accepted
// here; the service treats it as a no-op.
func (r CreateStudyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.RuneLength(0, maxTitleRunes)),
		validation.Field(&r.TopicExisting, validation.RuneLength(0, maxTopicRunes)),
		validation.Field(&r.TopicNew, validation.RuneLength(0, maxTopicRunes)),
		validation.Field(&r.Summary, validation.RuneLength(0, maxSummaryRunes)),
		validation.Field(&r.Body, validation.RuneLength(0, maxBodyRunes)),
		validation.Field(&r.Link, validation.RuneLength(0, maxLinkRunes), validation.By(safeLink)),
		validation.Field(&r.Tags, validation.RuneLength(0, maxTagsRunes)),
	)
}

func (r CreateStudyRequest) input() query.CreateInput {
	return query.CreateInput{
		Title:         r.Title,
		TopicExisting: r.TopicExisting,
		TopicNew:      r.TopicNew,
		Summary:       r.Summary,
		Body:          r.Body,
		Link:          r.Link,
		TagsRaw:       r.Tags,
	}
}

// scriptSchemes are refused in links because clients render them as anchors.
var scriptSchemes = []string{"javascript:", "data:", "vbscript:"}

// safeLink accepts any link text, including bare hosts such as
// "www.example.com", except script-bearing schemes.
func safeLink(value any) error {
	s, _ := value.(string)
	s = strings.ToLower(strings.TrimSpace(s))
	for _, scheme := range scriptSchemes {
		if strings.HasPrefix(s, scheme) {
			return errors.New("script links are not allowed")
		}
	}
	return nil
}

// CreateTopicRequest is the request body for registering a topic.
type CreateTopicRequest struct {
	Name string `json:"nome" example:"Missiologia"`
}

// Validate implements validation.Validatable.
func (r CreateTopicRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.RuneLength(1, maxTopicRunes)),
	)
}

// Study is the study response type (aliased from the domain layer).
type Study = models.Study

// Overview is the dashboard response type (aliased from the domain layer).
type Overview = library.Overview

// TopicPage is the topic response type (aliased from the domain layer).
type TopicPage = library.TopicPage

// StudyListResponse wraps a search result.
type StudyListResponse struct {
	Studies []Study `json:"studies" validate:"required"`
	Total   int     `json:"total" example:"42" validate:"required"`
}

// CreateStudyResponse is returned after a study is created.
type CreateStudyResponse struct {
	Study      Study  `json:"study" validate:"required"`
	TopicAdded bool   `json:"topic_added"`
	Location   string `json:"location" example:"/api/topics/Apolog%C3%A9tica" validate:"required"`
}

// NotCreatedResponse is returned when a create request had a blank title.
type NotCreatedResponse struct {
	Error      string          `json:"error" validate:"required"`
	TopicAdded bool            `json:"topic_added"`
	Topics     models.TopicSet `json:"topics" validate:"required"`
}

// TopicListResponse wraps the per-topic counts.
type TopicListResponse struct {
	Topics []query.TopicCount `json:"topics" validate:"required"`
}

// CreateTopicResponse is returned by POST /topics.
type CreateTopicResponse struct {
	Topic string `json:"topic" validate:"required"`
	Added bool   `json:"added"`
}

// SearchResponse wraps full-text search hits.
type SearchResponse struct {
	Results []index.Hit `json:"results" validate:"required"`
}
