// Package parser turns Markdown files into study drafts: YAML frontmatter
// supplies the fields, the rest is the study's notes.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/starford/teologia/internal/query"
)

var tagRe = regexp.MustCompile(`(?:^|\s)#(\p{L}[\p{L}\p{N}_/-]*)`)

// ErrInvalidUTF8 is returned for content that is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("parser: content is not valid UTF-8")

// Frontmatter keys, Portuguese first.
var (
	titleKeys   = []string{"titulo", "título", "title"}
	topicKeys   = []string{"tema", "topic"}
	summaryKeys = []string{"resumo", "summary"}
	linkKeys    = []string{"link", "url"}
)

// Draft holds the fields of a study read from Markdown.
type Draft struct {
	Title       string
	Topic       string
	Summary     string
	Body        string
	Link        string
	Tags        []string
	Frontmatter map[string]any
}

// Input converts the draft to a create request. The topic is passed as a
// new topic so that unknown topics get registered.
func (d *Draft) Input() query.CreateInput {
	return query.CreateInput{
		Title:    d.Title,
		TopicNew: d.Topic,
		Summary:  d.Summary,
		Body:     d.Body,
		Link:     d.Link,
		TagsRaw:  strings.Join(d.Tags, ","),
	}
}

// Parse extracts frontmatter fields, body and tags from raw Markdown bytes.
func Parse(data []byte) (*Draft, error) {
	if !utf8.Valid(data) {
		return nil, ErrInvalidUTF8
	}
	fm, body := splitFrontmatter(data)

	return &Draft{
		Title:       deriveTitle(fm, body),
		Topic:       stringField(fm, topicKeys),
		Summary:     stringField(fm, summaryKeys),
		Body:        body,
		Link:        stringField(fm, linkKeys),
		Tags:        extractTags(body, fm),
		Frontmatter: fm,
	}, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]any, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		// Invalid YAML: the whole file is body.
		return nil, string(data)
	}
	return fm, body
}

// stringField returns the first non-empty scalar value among keys.
func stringField(fm map[string]any, keys []string) string {
	for _, k := range keys {
		v, ok := fm[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case int, int64, float64, bool:
			s = fmt.Sprint(t)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// extractTags collects tags from the frontmatter "tags" field (a list or a
// comma-separated string) followed by inline #tags from the body.
func extractTags(body string, fm map[string]any) []string {
	seen := make(map[string]struct{})
	out := []string{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	switch v := fm["tags"].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			add(s)
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle returns the frontmatter title if present, otherwise the first
// H1 heading, otherwise an empty string.
func deriveTitle(fm map[string]any, body string) string {
	if s := stringField(fm, titleKeys); s != "" {
		return s
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
