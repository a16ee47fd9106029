package query

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/teologia/internal/models"
)

// CreateInput is a create request as submitted by a user.
type CreateInput struct {
	Title         string
	TopicExisting string
	TopicNew      string
	Summary       string
	Body          string
	Link          string
	// TagsRaw is a comma separated list.
	TagsRaw string
}

// Config configures an Engine. Zero values select the defaults.
type Config struct {
	Now           func() time.Time
	NewID         func() string
	FallbackTopic string
	Stamper       models.Stamper
}

// Engine applies mutations that need a clock and an id source.
type Engine struct {
	now      func() time.Time
	newID    func() string
	fallback string
	stamper  models.Stamper
}

// NewEngine creates an Engine from cfg.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		now:      cfg.Now,
		newID:    cfg.NewID,
		fallback: cfg.FallbackTopic,
		stamper:  cfg.Stamper,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = func() string { return uuid.NewString() }
	}
	if e.fallback == "" {
		e.fallback = models.FallbackTopic
	}
	return e
}

// Fallback returns the topic used when none is supplied.
func (e *Engine) Fallback() string { return e.fallback }

// Create returns a copy of c with the study described by in appended, and
// the new study. The resolved topic is registered even when the title is
// blank; in that case no study is created and the returned study is nil.
// c itself is never modified.
func (e *Engine) Create(c models.Collection, in CreateInput) (models.Collection, *models.Study) {
	out := c.Clone()
	topic := ResolveTopic(in.TopicExisting, in.TopicNew, e.fallback)
	out.Topics.Add(topic)

	if strings.TrimSpace(in.Title) == "" {
		return out, nil
	}

	s := models.NewStudy(e.newID(), models.StudyInput{
		Title:   in.Title,
		Topic:   topic,
		Summary: in.Summary,
		Body:    in.Body,
		Link:    in.Link,
		Tags:    ParseTags(in.TagsRaw),
	}, e.stamper.Stamp(e.now()))
	out.Studies = append(out.Studies, s)
	return out, &s
}

// AddTopic returns a copy of c with name registered, and whether it was new.
func (e *Engine) AddTopic(c models.Collection, name string) (models.Collection, bool) {
	out := c.Clone()
	added := out.Topics.Add(strings.TrimSpace(name))
	return out, added
}
