package storage

import "github.com/starford/teologia/internal/models"

// normalizer is one idempotent pass over a freshly decoded collection.
// Passes run in version order on every load; apply reports whether it
// changed anything.
type normalizer struct {
	version int
	name    string
	apply   func(c *models.Collection) bool
}

var normalizers = []normalizer{
	{version: 1, name: "backfill-timestamps", apply: backfillTimestamps},
	{version: 2, name: "non-nil-tags", apply: nonNilTags},
	{version: 3, name: "register-study-topics", apply: registerStudyTopics},
}

// normalize runs every pass and returns the names of those that changed c.
func normalize(c *models.Collection) []string {
	var applied []string
	for _, n := range normalizers {
		if n.apply(c) {
			applied = append(applied, n.name)
		}
	}
	return applied
}

// backfillTimestamps copies whichever creation timestamp is present into the
// missing one. Records with neither are left untouched.
func backfillTimestamps(c *models.Collection) bool {
	changed := false
	for i := range c.Studies {
		s := &c.Studies[i]
		switch {
		case s.CreatedAt == "" && s.CreatedAtDisplay != "":
			s.CreatedAt = s.CreatedAtDisplay
			changed = true
		case s.CreatedAtDisplay == "" && s.CreatedAt != "":
			s.CreatedAtDisplay = s.CreatedAt
			changed = true
		}
	}
	return changed
}

func nonNilTags(c *models.Collection) bool {
	changed := false
	for i := range c.Studies {
		if c.Studies[i].Tags == nil {
			c.Studies[i].Tags = []string{}
			changed = true
		}
	}
	return changed
}

// registerStudyTopics keeps every study topic a member of the topic set,
// which hand-edited files can break.
func registerStudyTopics(c *models.Collection) bool {
	changed := false
	for _, s := range c.Studies {
		if c.Topics.Add(s.Topic) {
			changed = true
		}
	}
	return changed
}
