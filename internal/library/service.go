// Package library coordinates the store, the query engine, the search index
// and change notifications. Every call reloads the collection from the store.
package library

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/starford/teologia/internal/apperr"
	"github.com/starford/teologia/internal/models"
	"github.com/starford/teologia/internal/query"
	"github.com/starford/teologia/internal/storage"
)

// RecentLimit is how many studies the overview lists when not searching.
const RecentLimit = 6

// Change event kinds.
const (
	EventStudyCreated = "study.created"
	EventTopicCreated = "topic.created"
	EventReloaded     = "library.reloaded"
)

// Indexer mirrors the collection into a secondary search index.
type Indexer interface {
	Sync(c models.Collection, checksum string) error
}

// Notifier receives change events after a successful save.
type Notifier interface {
	PublishChange(kind, id, topic string)
}

// Option is a functional option for configuring the Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithIndex keeps idx in sync after every save.
func WithIndex(idx Indexer) Option {
	return func(s *Service) { s.index = idx }
}

// WithNotifier publishes change events to n.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// Service is safe for concurrent use. Writes are serialized so that two
// creates in the same process never clobber each other.
type Service struct {
	store    storage.Provider
	engine   *query.Engine
	index    Indexer
	notifier Notifier
	logger   *slog.Logger

	mu sync.Mutex
}

// New creates a library service.
func New(store storage.Provider, engine *query.Engine, opts ...Option) *Service {
	s := &Service{store: store, engine: engine, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Overview is the dashboard view.
type Overview struct {
	Query     string             `json:"query"`
	Searching bool               `json:"searching"`
	Topics    []query.TopicCount `json:"topics"`
	Studies   []models.Study     `json:"studies"`
	// Total is the number of matching studies before truncation.
	Total int `json:"total"`
}

// TopicPage lists the studies of one topic.
type TopicPage struct {
	Topic   string         `json:"topic"`
	Known   bool           `json:"known"`
	Studies []models.Study `json:"studies"`
}

// CreateResult describes the outcome of Create.
type CreateResult struct {
	// Study is nil when the title was blank.
	Study      *models.Study   `json:"study,omitempty"`
	TopicAdded bool            `json:"topic_added"`
	Topics     models.TopicSet `json:"topics"`
}

// ImportResult describes the outcome of Import.
type ImportResult struct {
	Created []models.Study `json:"created"`
	Skipped int            `json:"skipped"`
}

// Collection returns the full reconciled collection.
func (s *Service) Collection(ctx context.Context) (models.Collection, error) {
	return s.load(ctx)
}

// Overview filters by q, counts topics over the matches and lists them by
// recency. Without a query only the RecentLimit most recent are listed.
func (s *Service) Overview(ctx context.Context, q string) (*Overview, error) {
	c, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	q = strings.TrimSpace(q)
	matched := query.Search(c.Studies, q)
	ov := &Overview{
		Query:     q,
		Searching: q != "",
		Topics:    query.TopicCounts(c.Topics, matched),
		Total:     len(matched),
	}
	if ov.Searching {
		ov.Studies = query.SortByRecency(matched)
	} else {
		ov.Studies = query.Recent(matched, RecentLimit)
	}
	return ov, nil
}

// Search returns every study matching q, most recent first.
func (s *Service) Search(ctx context.Context, q string) ([]models.Study, error) {
	c, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return query.SortByRecency(query.Search(c.Studies, q)), nil
}

// Topics returns the count of studies per topic, in topic-set order.
func (s *Service) Topics(ctx context.Context) ([]query.TopicCount, error) {
	c, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return query.TopicCounts(c.Topics, c.Studies), nil
}

// Topic returns the studies filed under name, most recent first. An unknown
// topic yields an empty page, not an error.
func (s *Service) Topic(ctx context.Context, name string) (*TopicPage, error) {
	c, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return &TopicPage{
		Topic:   name,
		Known:   c.Topics.Contains(name),
		Studies: query.SortByRecency(query.ByTopic(c.Studies, name)),
	}, nil
}

// Get returns the study with the given id.
func (s *Service) Get(ctx context.Context, id string) (*models.Study, error) {
	c, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	st, ok := query.FindByID(c.Studies, id)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &st, nil
}

// Create registers the resolved topic and, when the title is not blank,
// appends a new study. The collection is saved whenever either changed.
func (s *Service) Create(ctx context.Context, in query.CreateInput) (*CreateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	next, study := s.engine.Create(c, in)
	res := &CreateResult{
		Study:      study,
		TopicAdded: len(next.Topics) > len(c.Topics),
		Topics:     next.Topics,
	}
	if study == nil && !res.TopicAdded {
		return res, nil
	}

	if err := s.persist(next); err != nil {
		return nil, err
	}
	if res.TopicAdded {
		s.notify(EventTopicCreated, "", next.Topics[len(next.Topics)-1])
	}
	if study != nil {
		s.logger.Info("study created",
			slog.String("id", study.ID),
			slog.String("topic", study.Topic))
		s.notify(EventStudyCreated, study.ID, study.Topic)
	}
	return res, nil
}

// AddTopic registers name. It reports false when the topic already existed.
func (s *Service) AddTopic(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, fmt.Errorf("%w: topic name is required", apperr.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	next, added := s.engine.AddTopic(c, name)
	if !added {
		return false, nil
	}
	if err := s.persist(next); err != nil {
		return false, err
	}
	s.notify(EventTopicCreated, "", name)
	return true, nil
}

// Import creates every input in a single load/save. Inputs with a blank
// title are skipped but still register their topic.
func (s *Service) Import(ctx context.Context, inputs []query.CreateInput) (*ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	res := &ImportResult{Created: []models.Study{}}
	next := c
	for _, in := range inputs {
		var study *models.Study
		next, study = s.engine.Create(next, in)
		if study == nil {
			res.Skipped++
			continue
		}
		res.Created = append(res.Created, *study)
	}
	if len(res.Created) == 0 && len(next.Topics) == len(c.Topics) {
		return res, nil
	}
	if err := s.persist(next); err != nil {
		return nil, err
	}
	for _, name := range next.Topics {
		if !c.Topics.Contains(name) {
			s.notify(EventTopicCreated, "", name)
		}
	}
	for _, st := range res.Created {
		s.notify(EventStudyCreated, st.ID, st.Topic)
	}
	s.logger.Info("import finished",
		slog.Int("created", len(res.Created)),
		slog.Int("skipped", res.Skipped))
	return res, nil
}

// Reindex pushes the current collection to the index.
func (s *Service) Reindex(ctx context.Context) error {
	if s.index == nil {
		return nil
	}
	c, report, err := s.loadReport(ctx)
	if err != nil {
		return err
	}
	if err := s.index.Sync(c, report.Checksum); err != nil {
		return fmt.Errorf("library: reindex: %w", err)
	}
	return nil
}

func (s *Service) load(ctx context.Context) (models.Collection, error) {
	c, _, err := s.loadReport(ctx)
	return c, err
}

func (s *Service) loadReport(_ context.Context) (models.Collection, storage.LoadReport, error) {
	c, report, err := s.store.Load()
	if err != nil {
		return models.Collection{}, report, fmt.Errorf("library: load: %w", err)
	}
	switch report.State {
	case storage.StateRecovered:
		s.logger.Warn("library file unreadable, starting from defaults",
			slog.String("path", s.store.Path()),
			slog.String("error", report.Err.Error()))
	case storage.StateLoaded:
		if len(report.Applied) > 0 {
			s.logger.Debug("library normalized on load",
				slog.String("path", s.store.Path()),
				slog.String("passes", strings.Join(report.Applied, ",")))
		}
	}
	return c, report, nil
}

// persist saves c; index failures are logged, save failures returned.
func (s *Service) persist(c models.Collection) error {
	sum, err := s.store.Save(c)
	if err != nil {
		s.logger.Error("library save failed",
			slog.String("path", s.store.Path()),
			slog.String("error", err.Error()))
		return fmt.Errorf("library: save: %w", err)
	}
	if s.index != nil {
		if err := s.index.Sync(c, sum); err != nil {
			s.logger.Warn("index sync failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (s *Service) notify(kind, id, topic string) {
	if s.notifier != nil {
		s.notifier.PublishChange(kind, id, topic)
	}
}
