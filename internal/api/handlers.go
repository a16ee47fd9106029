package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/teologia/internal/apperr"
	"github.com/starford/teologia/internal/index"
	"github.com/starford/teologia/internal/library"
)

// Searcher runs full-text queries against the index.
type Searcher interface {
	Search(query string, limit int) ([]index.Hit, error)
}

// Handler holds API route handlers.
type Handler struct {
	svc *library.Service
	idx Searcher
}

// NewHandler creates a new Handler. idx may be nil, in which case full-text
// search answers 503.
func NewHandler(svc *library.Service, idx Searcher) *Handler {
	return &Handler{svc: svc, idx: idx}
}

// urlParam returns the decoded chi URL parameter. chi routes on RawPath
// only when it is set; otherwise the segment is already decoded.
func urlParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return raw
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// writeServiceError maps domain errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("already exists"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// decodeBody fills dst from a JSON body or, for any other content type,
// from form values keyed by the JSON field names.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, form func(get func(string) string)) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" || ct == "" {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			return errors.New("invalid JSON body")
		}
		return nil
	}
	if ct == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return errors.New("invalid form body")
		}
	} else if err := r.ParseForm(); err != nil {
		return errors.New("invalid form body")
	}
	form(r.PostFormValue)
	return nil
}

// Overview handles GET /api/overview.
//
//	@Summary		Dashboard: topic counts and recent or matching studies
//	@Tags			studies
//	@Produce		json
//	@Param			q	query		string	false	"Search query"
//	@Success		200	{object}	Overview
//	@Security		BearerAuth
//	@Router			/overview [get]
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.svc.Overview(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, "overview", err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// ListStudies handles GET /api/studies.
//
//	@Summary		List studies matching a query, most recent first
//	@Tags			studies
//	@Produce		json
//	@Param			q	query		string	false	"Search query"
//	@Success		200	{object}	StudyListResponse
//	@Security		BearerAuth
//	@Router			/studies [get]
func (h *Handler) ListStudies(w http.ResponseWriter, r *http.Request) {
	studies, err := h.svc.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, "list studies", err)
		return
	}
	writeJSON(w, http.StatusOK, StudyListResponse{Studies: studies, Total: len(studies)})
}

// GetStudy handles GET /api/studies/{id}.
//
//	@Summary		Get a single study by id
//	@Tags			studies
//	@Produce		json
//	@Param			id	path		string	true	"Study id"
//	@Success		200	{object}	Study
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/studies/{id} [get]
func (h *Handler) GetStudy(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeServiceError(w, "get study", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// CreateStudy handles POST /api/studies.
//
//	@Summary		Create a study
//	@Description	Accepts JSON or form fields. A blank title creates nothing and answers 422 with the current topics.
//	@Tags			studies
//	@Accept			json
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			body	body		CreateStudyRequest	true	"Study to create"
//	@Success		201		{object}	CreateStudyResponse
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	NotCreatedResponse
//	@Security		BearerAuth
//	@Router			/studies [post]
func (h *Handler) CreateStudy(w http.ResponseWriter, r *http.Request) {
	var req CreateStudyRequest
	err := decodeBody(w, r, &req, func(get func(string) string) {
		req = CreateStudyRequest{
			Title:         get("titulo"),
			TopicExisting: get("tema_existente"),
			TopicNew:      get("tema_novo"),
			Summary:       get("resumo"),
			Body:          get("anotacoes"),
			Link:          get("link"),
			Tags:          get("tags"),
		}
	})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "validation failed", Fields: err})
		return
	}

	res, err := h.svc.Create(r.Context(), req.input())
	if err != nil {
		writeServiceError(w, "create study", err)
		return
	}
	if res.Study == nil {
		writeJSON(w, http.StatusUnprocessableEntity, NotCreatedResponse{
			Error:      "titulo is required",
			TopicAdded: res.TopicAdded,
			Topics:     res.Topics,
		})
		return
	}
	location := "/api/topics/" + url.PathEscape(res.Study.Topic)
	w.Header().Set("Location", location)
	writeJSON(w, http.StatusCreated, CreateStudyResponse{
		Study:      *res.Study,
		TopicAdded: res.TopicAdded,
		Location:   location,
	})
}

// ListTopics handles GET /api/topics.
//
//	@Summary		List topics with their study counts
//	@Tags			topics
//	@Produce		json
//	@Success		200	{object}	TopicListResponse
//	@Security		BearerAuth
//	@Router			/topics [get]
func (h *Handler) ListTopics(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.Topics(r.Context())
	if err != nil {
		writeServiceError(w, "list topics", err)
		return
	}
	writeJSON(w, http.StatusOK, TopicListResponse{Topics: counts})
}

// CreateTopic handles POST /api/topics.
//
//	@Summary		Register a topic
//	@Tags			topics
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateTopicRequest	true	"Topic to register"
//	@Success		201		{object}	CreateTopicResponse
//	@Success		200		{object}	CreateTopicResponse	"Topic already existed"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/topics [post]
func (h *Handler) CreateTopic(w http.ResponseWriter, r *http.Request) {
	var req CreateTopicRequest
	err := decodeBody(w, r, &req, func(get func(string) string) {
		req.Name = get("nome")
	})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "validation failed", Fields: err})
		return
	}

	added, err := h.svc.AddTopic(r.Context(), req.Name)
	if err != nil {
		writeServiceError(w, "create topic", err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, CreateTopicResponse{Topic: req.Name, Added: added})
}

// GetTopic handles GET /api/topics/{topic}.
//
//	@Summary		List the studies of one topic, most recent first
//	@Tags			topics
//	@Produce		json
//	@Param			topic	path		string	true	"Topic name"
//	@Success		200		{object}	TopicPage
//	@Security		BearerAuth
//	@Router			/topics/{topic} [get]
func (h *Handler) GetTopic(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.Topic(r.Context(), urlParam(r, "topic"))
	if err != nil {
		writeServiceError(w, "get topic", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// FulltextSearch handles GET /api/search/fulltext.
//
//	@Summary		Ranked full-text search over the SQLite index
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search/fulltext [get]
func (h *Handler) FulltextSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	if h.idx == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("full-text index unavailable"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hits, err := h.idx.Search(q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: hits})
}
