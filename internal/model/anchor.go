package model

// Anchor is one anchor element captured from a rendered page.
// Two anchors are the same when their HTML markup is identical.
type Anchor struct {
	// Href is the href attribute as the browser reported it.
	Href string `json:"href"`

	// Text is the visible text of the element.
	Text string `json:"text"`

	// HTML is the element's full outer markup.
	HTML string `json:"html"`
}

// AnchorSet is an insertion-ordered set of anchors keyed by markup.
type AnchorSet struct {
	order []Anchor
	seen  map[string]struct{}
}

// NewAnchorSet returns an empty set.
func NewAnchorSet() *AnchorSet {
	return &AnchorSet{seen: make(map[string]struct{})}
}

// Add inserts the anchors that are not already present and returns how many
// were new.
func (s *AnchorSet) Add(anchors ...Anchor) int {
	added := 0
	for _, a := range anchors {
		if a.HTML == "" {
			continue
		}
		if _, ok := s.seen[a.HTML]; ok {
			continue
		}
		s.seen[a.HTML] = struct{}{}
		s.order = append(s.order, a)
		added++
	}
	return added
}

// Contains reports whether an anchor with the same markup is present.
func (s *AnchorSet) Contains(a Anchor) bool {
	_, ok := s.seen[a.HTML]
	return ok
}

// Len returns the number of distinct anchors.
func (s *AnchorSet) Len() int {
	return len(s.order)
}

// Slice returns a copy of the anchors in insertion order.
func (s *AnchorSet) Slice() []Anchor {
	out := make([]Anchor, len(s.order))
	copy(out, s.order)
	return out
}
