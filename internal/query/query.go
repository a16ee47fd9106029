// Package query derives views over a study collection: free-text search,
// per-topic counts, topic membership and recency ordering.
package query

import (
	"sort"
	"strings"

	"github.com/starford/teologia/internal/models"
)

// TopicCount pairs a topic with the number of studies filed under it.
type TopicCount struct {
	Topic string `json:"tema"`
	Count int    `json:"quantidade"`
}

// Search returns the studies whose title, summary, any single line of the
// notes body or any single tag contains query, ignoring case. A blank query
// matches everything. The result never aliases studies.
func Search(studies []models.Study, query string) []models.Study {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]models.Study, 0, len(studies))
	for _, s := range studies {
		if q == "" || matches(s, q) {
			out = append(out, s)
		}
	}
	return out
}

// matches expects q already lower-cased. Body lines are matched one at a
// time, so a query spanning a line break never matches.
func matches(s models.Study, q string) bool {
	if strings.Contains(strings.ToLower(s.Title), q) ||
		strings.Contains(strings.ToLower(s.Summary), q) {
		return true
	}
	for _, line := range splitLines(s.Body) {
		if strings.Contains(strings.ToLower(line), q) {
			return true
		}
	}
	for _, tag := range s.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// splitLines splits on \n, \r\n and \r.
func splitLines(body string) []string {
	if body == "" {
		return nil
	}
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")
	return strings.Split(body, "\n")
}

// TopicCounts returns one entry per topic, in topic-set order, counting the
// studies of subset filed under it. Topics without studies count zero.
func TopicCounts(topics models.TopicSet, subset []models.Study) []TopicCount {
	byTopic := make(map[string]int, len(topics))
	for _, s := range subset {
		byTopic[s.Topic]++
	}
	out := make([]TopicCount, len(topics))
	for i, t := range topics {
		out[i] = TopicCount{Topic: t, Count: byTopic[t]}
	}
	return out
}

// ByTopic returns the studies whose topic is exactly topic.
func ByTopic(studies []models.Study, topic string) []models.Study {
	out := make([]models.Study, 0)
	for _, s := range studies {
		if s.Topic == topic {
			out = append(out, s)
		}
	}
	return out
}

// SortByRecency returns a copy of studies ordered by descending creation
// timestamp. Ties keep their relative order; studies without a timestamp
// come last.
func SortByRecency(studies []models.Study) []models.Study {
	out := make([]models.Study, len(studies))
	copy(out, studies)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out
}

// Recent returns at most n studies, most recent first. n <= 0 returns all.
func Recent(studies []models.Study, n int) []models.Study {
	out := SortByRecency(studies)
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// FindByID returns the study with the given id.
func FindByID(studies []models.Study, id string) (models.Study, bool) {
	for _, s := range studies {
		if s.ID == id {
			return s, true
		}
	}
	return models.Study{}, false
}

// ParseTags splits raw on commas, trims each segment and drops empty ones.
func ParseTags(raw string) []string {
	tags := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			tags = append(tags, part)
		}
	}
	return tags
}

// ResolveTopic picks the new topic when given, else the existing selection,
// else fallback.
func ResolveTopic(existing, newTopic, fallback string) string {
	if t := strings.TrimSpace(newTopic); t != "" {
		return t
	}
	if t := strings.TrimSpace(existing); t != "" {
		return t
	}
	return fallback
}
