package models

// TopicSet is an insertion-ordered list of unique topic names.
type TopicSet []string

// Contains reports whether name is in the set.
func (ts TopicSet) Contains(name string) bool {
	for _, t := range ts {
		if t == name {
			return true
		}
	}
	return false
}

// Add appends name if it is not already present and reports whether it did.
func (ts *TopicSet) Add(name string) bool {
	if name == "" || ts.Contains(name) {
		return false
	}
	*ts = append(*ts, name)
	return true
}

// WithDefaults returns a copy of ts with every missing default appended,
// preserving the existing order.
func (ts TopicSet) WithDefaults(defaults TopicSet) TopicSet {
	out := make(TopicSet, 0, len(ts)+len(defaults))
	for _, t := range ts {
		out.Add(t)
	}
	for _, d := range defaults {
		out.Add(d)
	}
	return out
}

// Clone returns a copy of ts that never aliases the receiver.
func (ts TopicSet) Clone() TopicSet {
	out := make(TopicSet, len(ts))
	copy(out, ts)
	return out
}

// Collection is the full persisted state: the topic set plus every study.
type Collection struct {
	Topics  TopicSet `json:"temas"`
	Studies []Study  `json:"estudos"`
}

// NewCollection returns an empty collection holding a copy of topics.
func NewCollection(topics TopicSet) Collection {
	return Collection{Topics: topics.Clone(), Studies: []Study{}}
}

// Clone returns a deep copy of c.
func (c Collection) Clone() Collection {
	studies := make([]Study, len(c.Studies))
	for i, s := range c.Studies {
		studies[i] = s.Clone()
	}
	return Collection{Topics: c.Topics.Clone(), Studies: studies}
}
