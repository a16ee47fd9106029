// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the study library to LLM clients via stdio transport.
package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/teologia/internal/apperr"
	"github.com/starford/teologia/internal/index"
	"github.com/starford/teologia/internal/library"
	"github.com/starford/teologia/internal/parser"
	"github.com/starford/teologia/internal/query"
)

const formatURI = "teologia://study-format"

// Searcher runs full-text queries against the index.
type Searcher interface {
	Search(query string, limit int) ([]index.Hit, error)
}

// Server wraps the MCP server with the library tools.
type Server struct {
	mcp *server.MCPServer
	svc *library.Service
	idx Searcher
}

// New creates a new MCP server with all tools registered. idx may be nil,
// in which case fulltext_search reports an error.
func New(svc *library.Service, idx Searcher, version string) *Server {
	s := &Server{svc: svc, idx: idx}

	s.mcp = server.NewMCPServer(
		"Teologia",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_studies",
		mcp.WithDescription("Case-insensitive search over titles, summaries, tags and note lines. "+
			"Returns matching studies, most recent first. An empty query returns every study."),
		mcp.WithString("query", mcp.Description("Search text")),
	), s.searchStudies)

	s.mcp.AddTool(mcp.NewTool("list_topics",
		mcp.WithDescription("List every topic with the number of studies filed under it."),
	), s.listTopics)

	s.mcp.AddTool(mcp.NewTool("list_topic_studies",
		mcp.WithDescription("List the studies of one topic, most recent first."),
		mcp.WithString("topic", mcp.Required(), mcp.Description("Exact topic name")),
	), s.listTopicStudies)

	s.mcp.AddTool(mcp.NewTool("get_study",
		mcp.WithDescription("Read one study by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Study id")),
	), s.getStudy)

	s.mcp.AddTool(mcp.NewTool("create_study",
		mcp.WithDescription("Record a new study. Read the format first via get_study_format "+
			"or the "+formatURI+" resource."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Study title; blank stores nothing")),
		mcp.WithString("topic", mcp.Description("Existing topic name")),
		mcp.WithString("new_topic", mcp.Description("New topic name; overrides topic and is registered")),
		mcp.WithString("summary", mcp.Description("Short summary")),
		mcp.WithString("notes", mcp.Description("Free-form notes")),
		mcp.WithString("link", mcp.Description("Reference URL")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags")),
	), s.createStudy)

	s.mcp.AddTool(mcp.NewTool("create_study_from_markdown",
		mcp.WithDescription("Record a new study from a Markdown note with optional YAML frontmatter "+
			"(titulo, tema, resumo, link, tags)."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content")),
	), s.createStudyFromMarkdown)

	s.mcp.AddTool(mcp.NewTool("fulltext_search",
		mcp.WithDescription("Ranked full-text search through the SQLite index. Returns id, title, topic and a snippet."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of hits (default 20)")),
	), s.fulltextSearch)

	s.mcp.AddTool(mcp.NewTool("get_study_format",
		mcp.WithDescription("Returns the study storage format and the rules create_study follows."),
	), s.getStudyFormat)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Study Format",
			mcp.WithResourceDescription("JSON layout of the study library and creation rules."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readStudyFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// jsonResult renders v as indented JSON with literal non-ASCII characters.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}

func (s *Server) searchStudies(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	studies, err := s.svc.Search(ctx, req.GetString("query", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(studies)
}

func (s *Server) listTopics(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	counts, err := s.svc.Topics(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(counts)
}

func (s *Server) listTopicStudies(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topic, err := req.RequireString("topic")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, err := s.svc.Topic(ctx, topic)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(page)
}

func (s *Server) getStudy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := s.svc.Get(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(st)
}

// createOutcome is the create tools' response.
type createOutcome struct {
	Created    bool `json:"created"`
	TopicAdded bool `json:"topic_added"`
	Study      any  `json:"study,omitempty"`
}

func (s *Server) create(ctx context.Context, in query.CreateInput) (*mcp.CallToolResult, error) {
	res, err := s.svc.Create(ctx, in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := createOutcome{Created: res.Study != nil, TopicAdded: res.TopicAdded}
	if res.Study != nil {
		out.Study = res.Study
	}
	return jsonResult(out)
}

func (s *Server) createStudy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.create(ctx, query.CreateInput{
		Title:         title,
		TopicExisting: req.GetString("topic", ""),
		TopicNew:      req.GetString("new_topic", ""),
		Summary:       req.GetString("summary", ""),
		Body:          req.GetString("notes", ""),
		Link:          req.GetString("link", ""),
		TagsRaw:       req.GetString("tags", ""),
	})
}

func (s *Server) createStudyFromMarkdown(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	draft, err := parser.Parse([]byte(content))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.create(ctx, draft.Input())
}

func (s *Server) fulltextSearch(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if s.idx == nil {
		return mcp.NewToolResultError("full-text index unavailable"), nil
	}
	hits, err := s.idx.Search(q, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(hits)
}

func (s *Server) getStudyFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(StudyFormatContract), nil
}

func (s *Server) readStudyFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     StudyFormatContract,
		},
	}, nil
}
